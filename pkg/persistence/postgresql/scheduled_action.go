package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// ScheduledActionRepository handles deferred action database operations.
type ScheduledActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduledActionRepository creates a new scheduled action repository.
func NewScheduledActionRepository(db *sql.DB, logger *slog.Logger) *ScheduledActionRepository {
	return &ScheduledActionRepository{db: db, logger: logger}
}

const scheduledActionColumns = `
	id
  , tenant_id
  , execution_id
  , subject_id
  , action_type
  , params
  , scheduled_for
  , status
  , error_message
  , created_at
  , updated_at
`

// Create persists a new deferred action row.
func (r *ScheduledActionRepository) Create(ctx context.Context, action *models.ScheduledAction) error {
	paramsJSON, err := json.Marshal(action.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal action params: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_actions (id, tenant_id, execution_id, subject_id,
			action_type, params, scheduled_for, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		action.ID,
		action.TenantID,
		action.ExecutionID,
		action.SubjectID,
		string(action.ActionType),
		paramsJSON,
		action.ScheduledFor,
		string(action.Status),
		nullString(action.ErrorMessage),
		action.CreatedAt,
		action.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scheduled action: %w", err)
	}

	return nil
}

// Due returns pending actions due before the given time, oldest first,
// capped at limit.
func (r *ScheduledActionRepository) Due(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledAction, error) {
	query := `SELECT ` + scheduledActionColumns + `
		FROM scheduled_actions
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due scheduled actions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.collectScheduledActions(rows)
}

// Claim transitions a pending action to processing. The conditional
// UPDATE guarantees exactly one claimer wins even with concurrent pollers.
func (r *ScheduledActionRepository) Claim(ctx context.Context, id string) (*models.ScheduledAction, error) {
	query := `
		UPDATE scheduled_actions
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + scheduledActionColumns

	row := r.db.QueryRowContext(ctx, query, id)

	action, err := r.scanScheduledAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.claimFailure(ctx, id)
		}

		return nil, fmt.Errorf("failed to claim scheduled action: %w", err)
	}

	return action, nil
}

// claimFailure distinguishes a missing action from one already claimed.
func (r *ScheduledActionRepository) claimFailure(ctx context.Context, id string) error {
	var tenantID string

	err := r.db.QueryRowContext(ctx,
		"SELECT tenant_id FROM scheduled_actions WHERE id = $1", id).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewStoreError("ClaimScheduledAction", "", id, persistence.ErrScheduledActionNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to inspect scheduled action: %w", err)
	}

	return persistence.NewStoreError("ClaimScheduledAction", tenantID, id,
		persistence.ErrScheduledActionNotClaimable)
}

// Update persists the action's state after the poller runs it.
func (r *ScheduledActionRepository) Update(ctx context.Context, action *models.ScheduledAction) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET status = $3, error_message = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`,
		action.TenantID,
		action.ID,
		string(action.Status),
		nullString(action.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to update scheduled action: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("UpdateScheduledAction", action.TenantID, action.ID,
			persistence.ErrScheduledActionNotFound)
	}

	return nil
}

// Cancel removes an action that has not started processing yet.
func (r *ScheduledActionRepository) Cancel(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM scheduled_actions WHERE tenant_id = $1 AND id = $2 AND status = 'pending'",
		tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled action: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var status string

		err := r.db.QueryRowContext(ctx,
			"SELECT status FROM scheduled_actions WHERE tenant_id = $1 AND id = $2",
			tenantID, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewStoreError("CancelScheduledAction", tenantID, id,
				persistence.ErrScheduledActionNotFound)
		}

		if err != nil {
			return fmt.Errorf("failed to inspect scheduled action: %w", err)
		}

		return persistence.NewStoreError("CancelScheduledAction", tenantID, id,
			persistence.ErrScheduledActionNotClaimable)
	}

	return nil
}

// GetByExecution lists an execution's deferred actions, oldest first.
func (r *ScheduledActionRepository) GetByExecution(ctx context.Context, tenantID, executionID string) ([]*models.ScheduledAction, error) {
	query := `SELECT ` + scheduledActionColumns + `
		FROM scheduled_actions
		WHERE tenant_id = $1 AND execution_id = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled actions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.collectScheduledActions(rows)
}

func (r *ScheduledActionRepository) collectScheduledActions(rows *sql.Rows) ([]*models.ScheduledAction, error) {
	actions := make([]*models.ScheduledAction, 0)

	for rows.Next() {
		action, err := r.scanScheduledAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled action: %w", err)
		}

		actions = append(actions, action)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating scheduled actions: %w", err)
	}

	return actions, nil
}

func (r *ScheduledActionRepository) scanScheduledAction(scanner interface {
	Scan(dest ...any) error
}) (*models.ScheduledAction, error) {
	var (
		action       models.ScheduledAction
		paramsJSON   []byte
		errorMessage sql.NullString
	)

	err := scanner.Scan(
		&action.ID,
		&action.TenantID,
		&action.ExecutionID,
		&action.SubjectID,
		&action.ActionType,
		&paramsJSON,
		&action.ScheduledFor,
		&action.Status,
		&errorMessage,
		&action.CreatedAt,
		&action.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	action.ErrorMessage = errorMessage.String

	if paramsJSON != nil {
		err := json.Unmarshal(paramsJSON, &action.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal action params: %w", err)
		}
	}

	return &action, nil
}

func (r *ScheduledActionRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
