package services

import (
	"context"
	"fmt"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// Sweep manages the per-tenant time-trigger sweep cadence.
type Sweep struct {
	persistence persistence.Persistence
}

// NewSweep creates a new sweep schedule service.
func NewSweep(persistence persistence.Persistence) *Sweep {
	return &Sweep{persistence: persistence}
}

// Fetch returns the tenant's sweep schedule.
func (s *Sweep) Fetch(ctx context.Context, tenantID string) (*models.SweepSchedule, error) {
	return s.persistence.SweepScheduleByTenant(ctx, tenantID)
}

// Save validates and stores the tenant's sweep schedule, computing the
// first due time from the cron expression.
func (s *Sweep) Save(ctx context.Context, tenantID, cronExpression string, active bool) (*models.SweepSchedule, error) {
	schedule, err := models.NewSweepSchedule(tenantID, cronExpression)
	if err != nil {
		return nil, NewValidationError("SaveSweepSchedule", "invalid_cron",
			fmt.Sprintf("invalid cron expression %q: %v", cronExpression, err), ErrInvalidRequest)
	}

	schedule.Active = active

	if err := s.persistence.SaveSweepSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save sweep schedule: %w", err)
	}

	return schedule, nil
}
