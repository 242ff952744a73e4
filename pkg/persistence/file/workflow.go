package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
	"github.com/google/uuid"
)

// Workflows returns all workflows for the tenant, newest first.
func (p *Persistence) Workflows(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	all, err := p.loadWorkflows(ctx)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0)

	for _, workflow := range all {
		if workflow.TenantID == tenantID {
			workflows = append(workflows, workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// WorkflowByID returns the workflow or ErrWorkflowNotFound.
func (p *Persistence) WorkflowByID(_ context.Context, tenantID, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := p.readJSON(workflowsDir, id, &workflow)
	if err != nil {
		return nil, err
	}

	if !found || workflow.TenantID != tenantID {
		return nil, persistence.NewStoreError("WorkflowByID", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// ActiveWorkflowsByTrigger returns active workflows for the tenant listening
// on exactly the given trigger type.
func (p *Persistence) ActiveWorkflowsByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	all, err := p.loadWorkflows(ctx)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0)

	for _, workflow := range all {
		if workflow.TenantID == tenantID && workflow.Active && workflow.TriggerType == triggerType {
			workflows = append(workflows, workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// SaveWorkflow creates or replaces a workflow definition.
func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	return p.writeJSON(workflowsDir, workflow.ID, workflow)
}

// DeleteWorkflow removes the workflow definition.
func (p *Persistence) DeleteWorkflow(ctx context.Context, tenantID, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.workflowScoped(tenantID, id); err != nil {
		return err
	}

	return p.remove(workflowsDir, id)
}

// IncrementRuns bumps total_runs plus the outcome counter under the store
// lock, so concurrent executions cannot lose updates.
func (p *Persistence) IncrementRuns(_ context.Context, tenantID, workflowID string, outcome persistence.RunOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	workflow, err := p.workflowScoped(tenantID, workflowID)
	if err != nil {
		return err
	}

	workflow.TotalRuns++

	switch outcome {
	case persistence.RunOutcomeSuccess:
		workflow.SuccessfulRuns++
	case persistence.RunOutcomeFailure:
		workflow.FailedRuns++
	}

	workflow.UpdatedAt = time.Now().UTC()

	return p.writeJSON(workflowsDir, workflow.ID, workflow)
}

func (p *Persistence) loadWorkflows(_ context.Context) ([]*models.Workflow, error) {
	ids, err := p.listIDs(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		var workflow models.Workflow

		found, err := p.readJSON(workflowsDir, id, &workflow)
		if err != nil {
			return nil, err
		}

		if found {
			workflows = append(workflows, &workflow)
		}
	}

	return workflows, nil
}

// workflowScoped loads a workflow checking tenant ownership. Callers must
// hold the store lock when they intend to write the result back.
func (p *Persistence) workflowScoped(tenantID, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := p.readJSON(workflowsDir, id, &workflow)
	if err != nil {
		return nil, err
	}

	if !found || workflow.TenantID != tenantID {
		return nil, persistence.NewStoreError("WorkflowByID", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}
