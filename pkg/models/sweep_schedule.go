package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSweepSchedule is returned when sweep schedule validation fails.
var ErrInvalidSweepSchedule = errors.New("invalid sweep schedule configuration")

// SweepSchedule gates the poller's time-trigger sweep for one tenant. The
// cron expression and precomputed next due time let the poller query for due
// tenants without keeping per-tenant timers.
type SweepSchedule struct {
	TenantID string `json:"tenant_id" validate:"required"`

	// CronExpression uses standard 5-field cron format
	// (minute hour day month weekday).
	CronExpression string `json:"cron_expression" validate:"required"`

	NextDueAt time.Time `json:"next_due_at"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSweepSchedule creates a schedule with the first due time computed from now.
func NewSweepSchedule(tenantID, cronExpression string) (*SweepSchedule, error) {
	s := &SweepSchedule{
		TenantID:       tenantID,
		CronExpression: cronExpression,
		Active:         true,
	}

	if err := s.advance(time.Now().UTC()); err != nil {
		return nil, err
	}

	return s, nil
}

// Advance recomputes NextDueAt from the current time. Called by the poller
// after a sweep so the tenant is not re-swept within the same window.
func (s *SweepSchedule) Advance() error {
	return s.advance(time.Now().UTC())
}

func (s *SweepSchedule) advance(reference time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = schedule.Next(reference)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// Due reports whether the tenant's time-trigger sweep should run at now.
func (s *SweepSchedule) Due(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate checks the schedule fields and cron expression format.
func (s *SweepSchedule) Validate() error {
	if s.TenantID == "" || s.CronExpression == "" {
		return ErrInvalidSweepSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(s.CronExpression)

	return err
}
