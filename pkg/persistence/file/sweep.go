package file

import (
	"context"
	"time"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// SaveSweepSchedule stores a tenant's time-trigger sweep cadence, keyed by
// tenant so each tenant has exactly one schedule.
func (p *Persistence) SaveSweepSchedule(_ context.Context, schedule *models.SweepSchedule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	schedule.UpdatedAt = time.Now().UTC()

	return p.writeJSON(sweepSchedulesDir, schedule.TenantID, schedule)
}

// DueSweepSchedules returns the active schedules whose next run time has
// passed.
func (p *Persistence) DueSweepSchedules(_ context.Context, before time.Time) ([]*models.SweepSchedule, error) {
	ids, err := p.listIDs(sweepSchedulesDir)
	if err != nil {
		return nil, err
	}

	due := make([]*models.SweepSchedule, 0)

	for _, id := range ids {
		var schedule models.SweepSchedule

		found, err := p.readJSON(sweepSchedulesDir, id, &schedule)
		if err != nil {
			return nil, err
		}

		if found && schedule.Due(before) {
			due = append(due, &schedule)
		}
	}

	return due, nil
}

// SweepScheduleByTenant returns the tenant's schedule or
// ErrSweepScheduleNotFound.
func (p *Persistence) SweepScheduleByTenant(_ context.Context, tenantID string) (*models.SweepSchedule, error) {
	var schedule models.SweepSchedule

	found, err := p.readJSON(sweepSchedulesDir, tenantID, &schedule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewStoreError("SweepScheduleByTenant", tenantID, tenantID,
			persistence.ErrSweepScheduleNotFound)
	}

	return &schedule, nil
}
