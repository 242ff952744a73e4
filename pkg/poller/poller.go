// Package poller runs the periodic sweeps: executing due scheduled
// actions and emitting time-based trigger events (visit recalls and
// birthdays) for tenants whose sweep schedule is due.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/careloop/careloop/pkg/actions"
	"github.com/careloop/careloop/pkg/engine"
	"github.com/careloop/careloop/pkg/eventbus"
	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
	"github.com/careloop/careloop/pkg/subjects"
)

const (
	DefaultInterval  = time.Minute
	DefaultBatchSize = 100
)

// Config carries the poller's dependencies. Interval and BatchSize fall
// back to the defaults when zero; Lifecycle is optional.
type Config struct {
	Persistence persistence.Persistence
	Subjects    subjects.Store
	Executor    *actions.Executor
	Engine      *engine.Engine
	Lifecycle   eventbus.EventPublisher
	Logger      *slog.Logger
	Interval    time.Duration
	BatchSize   int
	Now         func() time.Time
}

type Poller struct {
	persistence persistence.Persistence
	subjects    subjects.Store
	executor    *actions.Executor
	engine      *engine.Engine
	lifecycle   eventbus.EventPublisher
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	now         func() time.Time
}

func New(cfg Config) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Poller{
		persistence: cfg.Persistence,
		subjects:    cfg.Subjects,
		executor:    cfg.Executor,
		engine:      cfg.Engine,
		lifecycle:   cfg.Lifecycle,
		logger:      logger.With("module", "poller"),
		interval:    interval,
		batchSize:   batchSize,
		now:         now,
	}
}

// Start sweeps immediately and then on every tick until the context is
// cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller started",
		"interval", p.interval, "batch_size", p.batchSize)

	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "poller stopped")

			return nil
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep of both concerns. Errors are logged,
// never returned: the next tick retries whatever is still due.
func (p *Poller) RunOnce(ctx context.Context) {
	p.sweepScheduledActions(ctx)
	p.sweepTimeTriggers(ctx)
}

// sweepScheduledActions claims and executes due deferred actions. Each
// item is handled independently so one failure cannot poison the batch.
func (p *Poller) sweepScheduledActions(ctx context.Context) {
	due, err := p.persistence.DueScheduledActions(ctx, p.now(), p.batchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to query due scheduled actions", "error", err)

		return
	}

	for _, action := range due {
		p.runScheduledAction(ctx, action.ID)
	}
}

func (p *Poller) runScheduledAction(ctx context.Context, id string) {
	claimed, err := p.persistence.ClaimScheduledAction(ctx, id)
	if err != nil {
		// Another poller instance won the claim, or the action was
		// cancelled between the query and now.
		if persistence.IsScheduledActionNotClaimable(err) {
			return
		}

		p.logger.ErrorContext(ctx, "failed to claim scheduled action", "id", id, "error", err)

		return
	}

	subject, err := p.subjects.Get(ctx, claimed.TenantID, claimed.SubjectID)
	if err != nil {
		p.markFailed(ctx, claimed, fmt.Errorf("failed to load subject: %w", err))

		return
	}

	action := models.Action{Type: claimed.ActionType, Params: claimed.Params}

	_, err = p.executor.ExecuteNow(ctx, claimed.TenantID, action, subject,
		claimed.SubjectID, claimed.ExecutionID)
	if err != nil {
		p.markFailed(ctx, claimed, err)

		return
	}

	claimed.Status = models.ScheduledActionCompleted

	err = p.persistence.UpdateScheduledAction(ctx, claimed)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to mark scheduled action completed",
			"id", claimed.ID, "error", err)

		return
	}

	p.publish(ctx, claimed.TenantID, events.ScheduledActionCompleted{
		BaseEvent:         events.NewBaseEvent(events.ScheduledActionCompletedEvent, claimed.TenantID),
		ScheduledActionID: claimed.ID,
		ExecutionID:       claimed.ExecutionID,
		ActionType:        string(claimed.ActionType),
	})

	p.logger.InfoContext(ctx, "scheduled action completed",
		"id", claimed.ID, "action_type", claimed.ActionType, "tenant_id", claimed.TenantID)
}

// markFailed records the failure. There is no automatic retry: the
// failure is surfaced through the action's status and lifecycle event.
func (p *Poller) markFailed(ctx context.Context, action *models.ScheduledAction, cause error) {
	action.Status = models.ScheduledActionFailed
	action.ErrorMessage = cause.Error()

	err := p.persistence.UpdateScheduledAction(ctx, action)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to mark scheduled action failed",
			"id", action.ID, "error", err)

		return
	}

	p.publish(ctx, action.TenantID, events.ScheduledActionFailed{
		BaseEvent:         events.NewBaseEvent(events.ScheduledActionFailedEvent, action.TenantID),
		ScheduledActionID: action.ID,
		ExecutionID:       action.ExecutionID,
		ActionType:        string(action.ActionType),
		Error:             cause.Error(),
	})

	p.logger.WarnContext(ctx, "scheduled action failed",
		"id", action.ID, "action_type", action.ActionType, "error", cause)
}

func (p *Poller) publish(ctx context.Context, tenantID string, event eventbus.Event) {
	if p.lifecycle == nil {
		return
	}

	err := p.lifecycle.Publish(ctx, tenantID, event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}
