package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// SweepScheduleRepository handles sweep schedule database operations.
type SweepScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSweepScheduleRepository creates a new sweep schedule repository.
func NewSweepScheduleRepository(db *sql.DB, logger *slog.Logger) *SweepScheduleRepository {
	return &SweepScheduleRepository{db: db, logger: logger}
}

// Save upserts a tenant's sweep schedule.
func (r *SweepScheduleRepository) Save(ctx context.Context, schedule *models.SweepSchedule) error {
	schedule.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sweep_schedules (tenant_id, cron_expression, next_due_at, active, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`,
		schedule.TenantID,
		schedule.CronExpression,
		schedule.NextDueAt,
		schedule.Active,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sweep schedule: %w", err)
	}

	return nil
}

// Due returns the active schedules whose next run time has passed.
func (r *SweepScheduleRepository) Due(ctx context.Context, before time.Time) ([]*models.SweepSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, cron_expression, next_due_at, active, updated_at
		FROM sweep_schedules
		WHERE active = true AND next_due_at <= $1
		ORDER BY next_due_at ASC
	`, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query due sweep schedules: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	schedules := make([]*models.SweepSchedule, 0)

	for rows.Next() {
		var schedule models.SweepSchedule

		err := rows.Scan(
			&schedule.TenantID,
			&schedule.CronExpression,
			&schedule.NextDueAt,
			&schedule.Active,
			&schedule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sweep schedule: %w", err)
		}

		schedules = append(schedules, &schedule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating sweep schedules: %w", err)
	}

	return schedules, nil
}

// GetByTenant returns the tenant's schedule or ErrSweepScheduleNotFound.
func (r *SweepScheduleRepository) GetByTenant(ctx context.Context, tenantID string) (*models.SweepSchedule, error) {
	var schedule models.SweepSchedule

	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, cron_expression, next_due_at, active, updated_at
		FROM sweep_schedules
		WHERE tenant_id = $1
	`, tenantID).Scan(
		&schedule.TenantID,
		&schedule.CronExpression,
		&schedule.NextDueAt,
		&schedule.Active,
		&schedule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("SweepScheduleByTenant", tenantID, tenantID,
				persistence.ErrSweepScheduleNotFound)
		}

		return nil, fmt.Errorf("failed to query sweep schedule: %w", err)
	}

	return &schedule, nil
}
