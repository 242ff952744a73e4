package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , tenant_id
  , name
  , trigger_type
  , trigger_config
  , conditions
  , actions
  , active
  , max_runs_per_subject
  , total_runs
  , successful_runs
  , failed_runs
  , created_at
  , updated_at
`

// GetAll returns a tenant's workflows, newest first.
func (r *WorkflowRepository) GetAll(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.collectWorkflows(rows)
}

// GetByID returns a workflow or ErrWorkflowNotFound.
func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE tenant_id = $1 AND id = $2
	`

	row := r.db.QueryRowContext(ctx, query, tenantID, id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("WorkflowByID", tenantID, id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// GetActiveByTrigger returns a tenant's active workflows for a trigger
// type, oldest first so deterministic matching order is preserved.
func (r *WorkflowRepository) GetActiveByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE tenant_id = $1 AND trigger_type = $2 AND active = true
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, string(triggerType))
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by trigger: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.collectWorkflows(rows)
}

// Save upserts a workflow, assigning an ID and timestamps when missing.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
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

	triggerConfigJSON, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	conditionsJSON, err := json.Marshal(workflow.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	actionsJSON, err := json.Marshal(workflow.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO workflows (id, tenant_id, name, trigger_type, trigger_config,
			conditions, actions, active, max_runs_per_subject,
			total_runs, successful_runs, failed_runs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			active = EXCLUDED.active,
			max_runs_per_subject = EXCLUDED.max_runs_per_subject,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.TenantID,
		workflow.Name,
		string(workflow.TriggerType),
		triggerConfigJSON,
		conditionsJSON,
		actionsJSON,
		workflow.Active,
		workflow.MaxRunsPerSubject,
		workflow.TotalRuns,
		workflow.SuccessfulRuns,
		workflow.FailedRuns,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete removes a workflow. Executions cascade at the schema level.
func (r *WorkflowRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM workflows WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("DeleteWorkflow", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// IncrementRuns bumps the counters in a single UPDATE so concurrent
// executions never lose increments to read-modify-write races.
func (r *WorkflowRepository) IncrementRuns(ctx context.Context, tenantID, workflowID string, outcome persistence.RunOutcome) error {
	outcomeColumn := "successful_runs"
	if outcome == persistence.RunOutcomeFailure {
		outcomeColumn = "failed_runs"
	}

	query := fmt.Sprintf(`
		UPDATE workflows
		SET total_runs = total_runs + 1,
			%s = %s + 1,
			updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, outcomeColumn, outcomeColumn)

	result, err := r.db.ExecContext(ctx, query, tenantID, workflowID)
	if err != nil {
		return fmt.Errorf("failed to increment run counters: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("IncrementRuns", tenantID, workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) collectWorkflows(rows *sql.Rows) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) scanWorkflow(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var (
		workflow                                      models.Workflow
		triggerConfigJSON, conditionsJSON, actionsJSON []byte
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&workflow.TriggerType,
		&triggerConfigJSON,
		&conditionsJSON,
		&actionsJSON,
		&workflow.Active,
		&workflow.MaxRunsPerSubject,
		&workflow.TotalRuns,
		&workflow.SuccessfulRuns,
		&workflow.FailedRuns,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if triggerConfigJSON != nil {
		err := json.Unmarshal(triggerConfigJSON, &workflow.TriggerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}
	}

	if conditionsJSON != nil {
		err := json.Unmarshal(conditionsJSON, &workflow.Conditions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}

	if actionsJSON != nil {
		err := json.Unmarshal(actionsJSON, &workflow.Actions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
		}
	}

	return &workflow, nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
