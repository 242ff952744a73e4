package services

import (
	"context"
	"fmt"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
	"github.com/careloop/careloop/pkg/registry"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow manages workflow definitions. All validation of a workflow's
// shape happens here, before anything reaches the store.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, registry *registry.Registry) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns a tenant's workflows with their run counters.
func (w *Workflow) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Fetch returns one workflow by ID.
func (w *Workflow) Fetch(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowByID(ctx, tenantID, id)
}

// Create validates and stores a new workflow.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := w.validate(workflow); err != nil {
		return nil, err
	}

	workflow.ID = ""
	workflow.TotalRuns = 0
	workflow.SuccessfulRuns = 0
	workflow.FailedRuns = 0

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// Update validates and stores changes to an existing workflow. Run
// counters are owned by the engine and preserved from the stored copy.
func (w *Workflow) Update(ctx context.Context, tenantID, id string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if err := w.validate(workflow); err != nil {
		return nil, err
	}

	workflow.ID = existing.ID
	workflow.TenantID = existing.TenantID
	workflow.CreatedAt = existing.CreatedAt
	workflow.TotalRuns = existing.TotalRuns
	workflow.SuccessfulRuns = existing.SuccessfulRuns
	workflow.FailedRuns = existing.FailedRuns

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow.
func (w *Workflow) Delete(ctx context.Context, tenantID, id string) error {
	return w.persistence.DeleteWorkflow(ctx, tenantID, id)
}

func (w *Workflow) validate(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	if !workflow.TriggerType.IsKnown() {
		return NewValidationError("validate", "unknown_trigger_type",
			fmt.Sprintf("trigger type %q is not recognized", workflow.TriggerType),
			ErrUnknownTriggerType)
	}

	if len(workflow.Actions) == 0 {
		return ErrActionsRequired
	}

	for i, action := range workflow.Actions {
		if action.DelayHours < 0 {
			return NewValidationError("validate", "negative_delay",
				fmt.Sprintf("action %d has negative delay", i), ErrNegativeDelay)
		}

		if w.registry != nil {
			if err := w.registry.ValidateParams(action.Type, action.Params); err != nil {
				return NewValidationError("validate", "invalid_action_params",
					err.Error(), ErrInvalidActionParams)
			}
		}
	}

	return nil
}
