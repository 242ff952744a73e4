package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , tenant_id
  , workflow_id
  , subject_id
  , related_id
  , trigger_type
  , trigger_data
  , status
  , total_steps
  , current_step
  , steps
  , error_message
  , started_at
  , completed_at
`

// CreateWithinLimit inserts the execution only while the subject's
// running/completed count for the workflow is below maxRuns. The workflow
// row is locked for the duration of the transaction so two concurrent
// triggers cannot both pass the count.
func (r *ExecutionRepository) CreateWithinLimit(ctx context.Context, execution *models.Execution, maxRuns int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if maxRuns > 0 {
		var lockedID string

		err = tx.QueryRowContext(ctx,
			"SELECT id FROM workflows WHERE tenant_id = $1 AND id = $2 FOR UPDATE",
			execution.TenantID, execution.WorkflowID).Scan(&lockedID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = persistence.NewStoreError("CreateExecutionWithinLimit",
					execution.TenantID, execution.WorkflowID, persistence.ErrWorkflowNotFound)
			}

			return err
		}

		var count int

		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM executions
			WHERE tenant_id = $1 AND workflow_id = $2 AND subject_id = $3
			  AND status IN ('running', 'completed')
		`, execution.TenantID, execution.WorkflowID, execution.SubjectID).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count executions: %w", err)
		}

		if count >= maxRuns {
			err = persistence.NewStoreError("CreateExecutionWithinLimit",
				execution.TenantID, execution.WorkflowID, persistence.ErrRunLimitReached)

			return err
		}
	}

	triggerDataJSON, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	stepsJSON, err := json.Marshal(execution.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal step results: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (id, tenant_id, workflow_id, subject_id, related_id,
			trigger_type, trigger_data, status, total_steps, current_step,
			steps, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		execution.ID,
		execution.TenantID,
		execution.WorkflowID,
		execution.SubjectID,
		nullString(execution.RelatedID),
		string(execution.TriggerType),
		triggerDataJSON,
		string(execution.Status),
		execution.TotalSteps,
		execution.CurrentStep,
		stepsJSON,
		nullString(execution.ErrorMessage),
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit execution: %w", err)
	}

	return nil
}

// Update persists execution progress after each step.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	stepsJSON, err := json.Marshal(execution.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal step results: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $3,
			current_step = $4,
			steps = $5,
			error_message = $6,
			completed_at = $7
		WHERE tenant_id = $1 AND id = $2
	`,
		execution.TenantID,
		execution.ID,
		string(execution.Status),
		execution.CurrentStep,
		stepsJSON,
		nullString(execution.ErrorMessage),
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("UpdateExecution", execution.TenantID, execution.ID,
			persistence.ErrExecutionNotFound)
	}

	return nil
}

// GetByID returns an execution or ErrExecutionNotFound.
func (r *ExecutionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE tenant_id = $1 AND id = $2
	`

	row := r.db.QueryRowContext(ctx, query, tenantID, id)

	execution, err := r.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ExecutionByID", tenantID, id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// GetByWorkflow lists a workflow's executions, newest first.
func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, tenantID, workflowID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE tenant_id = $1 AND workflow_id = $2
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// CountForSubject counts running/completed executions of the workflow for
// one subject. Failed runs do not count against the limit.
func (r *ExecutionRepository) CountForSubject(ctx context.Context, tenantID, workflowID, subjectID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM executions
		WHERE tenant_id = $1 AND workflow_id = $2 AND subject_id = $3
		  AND status IN ('running', 'completed')
	`, tenantID, workflowID, subjectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}

	return count, nil
}

func (r *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.Execution, error) {
	var (
		execution                  models.Execution
		triggerDataJSON, stepsJSON []byte
		relatedID, errorMessage    sql.NullString
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.TenantID,
		&execution.WorkflowID,
		&execution.SubjectID,
		&relatedID,
		&execution.TriggerType,
		&triggerDataJSON,
		&execution.Status,
		&execution.TotalSteps,
		&execution.CurrentStep,
		&stepsJSON,
		&errorMessage,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.RelatedID = relatedID.String
	execution.ErrorMessage = errorMessage.String

	if triggerDataJSON != nil {
		err := json.Unmarshal(triggerDataJSON, &execution.TriggerData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}
	}

	if stepsJSON != nil {
		err := json.Unmarshal(stepsJSON, &execution.Steps)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
		}
	}

	return &execution, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
