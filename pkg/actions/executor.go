// Package actions executes workflow actions, either immediately or by
// persisting a delayed scheduled action for the poller.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
	"github.com/careloop/careloop/pkg/protocol"
	"github.com/careloop/careloop/pkg/registry"
	"github.com/google/uuid"
)

// Outcome is what performing one workflow action produced: either the action
// ran to completion or it was parked as a scheduled action.
type Outcome struct {
	Status            models.StepStatus
	ScheduledActionID string
	Detail            string
}

// Executor performs or schedules one action against a subject.
type Executor struct {
	registry  *registry.Registry
	scheduled persistence.ScheduledActionRepository
	now       func() time.Time
	logger    *slog.Logger
}

// NewExecutor creates an action executor. The now func exists so tests can
// pin the clock; pass nil for wall time.
func NewExecutor(reg *registry.Registry, scheduled persistence.ScheduledActionRepository, now func() time.Time, logger *slog.Logger) *Executor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Executor{
		registry:  reg,
		scheduled: scheduled,
		now:       now,
		logger:    logger.With("module", "action_executor"),
	}
}

// Execute runs the action for the subject. A positive delay parks the action
// as a pending scheduled-action row instead of performing it; the poller
// picks it up once the delay elapses.
func (e *Executor) Execute(ctx context.Context, tenantID string, action models.Action, subject map[string]any, subjectID, executionID string) (Outcome, error) {
	if action.DelayHours > 0 {
		return e.schedule(ctx, tenantID, action, subjectID, executionID)
	}

	detail, err := e.ExecuteNow(ctx, tenantID, action, subject, subjectID, executionID)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Status: models.StepStatusCompleted, Detail: detail}, nil
}

// ExecuteNow performs the action synchronously, ignoring any delay. The
// poller calls this directly for due scheduled actions, whose delay has
// already elapsed.
func (e *Executor) ExecuteNow(ctx context.Context, tenantID string, action models.Action, subject map[string]any, subjectID, executionID string) (string, error) {
	impl, err := e.registry.CreateAction(action.Type)
	if err != nil {
		return "", err
	}

	detail, err := impl.Execute(ctx, protocol.Request{
		TenantID:    tenantID,
		SubjectID:   subjectID,
		ExecutionID: executionID,
		Subject:     subject,
		Params:      action.Params,
	})
	if err != nil {
		return "", protocol.NewActionExecutionError(action.Type, err)
	}

	return detail, nil
}

// Preview renders what the action would do without performing it or
// persisting anything. Used by workflow dry runs.
func (e *Executor) Preview(action models.Action, subject map[string]any) (string, error) {
	impl, err := e.registry.CreateAction(action.Type)
	if err != nil {
		return "", err
	}

	preview, err := impl.Preview(subject, action.Params)
	if err != nil {
		return "", protocol.NewActionExecutionError(action.Type, err)
	}

	if action.DelayHours > 0 {
		preview = fmt.Sprintf("%s (after %dh delay)", preview, action.DelayHours)
	}

	return preview, nil
}

func (e *Executor) schedule(ctx context.Context, tenantID string, action models.Action, subjectID, executionID string) (Outcome, error) {
	// Unknown types must fail here too, not hours later in the poller.
	if _, err := e.registry.CreateAction(action.Type); err != nil {
		return Outcome{}, err
	}

	now := e.now()
	scheduled := &models.ScheduledAction{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		ExecutionID:  executionID,
		SubjectID:    subjectID,
		ActionType:   action.Type,
		Params:       action.Params,
		ScheduledFor: now.Add(time.Duration(action.DelayHours) * time.Hour),
		Status:       models.ScheduledActionPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := e.scheduled.CreateScheduledAction(ctx, scheduled)
	if err != nil {
		// Losing the row would silently drop the step, so this is fatal to
		// the execution rather than recoverable.
		return Outcome{}, fmt.Errorf("failed to persist scheduled action: %w", err)
	}

	e.logger.Info("Action scheduled",
		"tenant_id", tenantID,
		"execution_id", executionID,
		"action_type", action.Type,
		"scheduled_for", scheduled.ScheduledFor)

	return Outcome{
		Status:            models.StepStatusScheduled,
		ScheduledActionID: scheduled.ID,
		Detail:            fmt.Sprintf("scheduled for %s", scheduled.ScheduledFor.Format(time.RFC3339)),
	}, nil
}
