package poller

import (
	"context"

	"github.com/google/uuid"

	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/models"
)

// sweepTimeTriggers emits days_since_visit and birthday trigger events
// for every tenant whose sweep schedule is due, then advances the
// schedule so the tenant is not re-swept within the same window.
func (p *Poller) sweepTimeTriggers(ctx context.Context) {
	schedules, err := p.persistence.DueSweepSchedules(ctx, p.now())
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to query due sweep schedules", "error", err)

		return
	}

	for _, schedule := range schedules {
		p.sweepTenant(ctx, schedule.TenantID)

		err := schedule.Advance()
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to advance sweep schedule",
				"tenant_id", schedule.TenantID, "error", err)

			continue
		}

		err = p.persistence.SaveSweepSchedule(ctx, schedule)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to save sweep schedule",
				"tenant_id", schedule.TenantID, "error", err)
		}
	}
}

func (p *Poller) sweepTenant(ctx context.Context, tenantID string) {
	p.sweepVisitRecalls(ctx, tenantID)
	p.sweepBirthdays(ctx, tenantID)
}

// sweepVisitRecalls emits one days_since_visit event per subject with a
// recorded last visit. Workflows filter on the elapsed days themselves.
func (p *Poller) sweepVisitRecalls(ctx context.Context, tenantID string) {
	visits, err := p.subjects.LastVisits(ctx, tenantID)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to load last visits",
			"tenant_id", tenantID, "error", err)

		return
	}

	now := p.now()

	for _, visit := range visits {
		days := int(now.Sub(visit.VisitedAt).Hours() / 24)
		if days <= 0 {
			continue
		}

		p.emitTriggerEvent(ctx, tenantID, models.TriggerDaysSinceVisit, map[string]any{
			events.KeySubjectID:      visit.SubjectID,
			events.KeyDaysSinceVisit: days,
		})
	}
}

func (p *Poller) sweepBirthdays(ctx context.Context, tenantID string) {
	now := p.now()

	subjectIDs, err := p.subjects.BirthdaysOn(ctx, tenantID, now.Month(), now.Day())
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to load birthdays",
			"tenant_id", tenantID, "error", err)

		return
	}

	for _, subjectID := range subjectIDs {
		p.emitTriggerEvent(ctx, tenantID, models.TriggerBirthday, map[string]any{
			events.KeySubjectID: subjectID,
		})
	}
}

func (p *Poller) emitTriggerEvent(ctx context.Context, tenantID string, triggerType models.TriggerType, payload map[string]any) {
	event := &events.TriggerEvent{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		TriggerType: triggerType,
		Payload:     payload,
		OccurredAt:  p.now(),
	}

	started, err := p.engine.HandleTriggerEvent(ctx, event)
	if err != nil {
		p.logger.ErrorContext(ctx, "time trigger event failed",
			"trigger_type", triggerType, "tenant_id", tenantID, "error", err)

		return
	}

	if started > 0 {
		p.logger.InfoContext(ctx, "time trigger started executions",
			"trigger_type", triggerType, "tenant_id", tenantID, "executions", started)
	}
}
