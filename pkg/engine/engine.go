// Package engine orchestrates workflow executions: it matches incoming
// trigger events against workflows, evaluates their conditions and runs
// their action sequences with durable step tracking.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/careloop/careloop/pkg/actions"
	"github.com/careloop/careloop/pkg/conditions"
	"github.com/careloop/careloop/pkg/eventbus"
	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/otelhelper"
	"github.com/careloop/careloop/pkg/persistence"
	"github.com/careloop/careloop/pkg/subjects"
	"github.com/careloop/careloop/pkg/triggers"
)

// Config carries the engine's dependencies. Lifecycle and Tracer are
// optional; Now defaults to the wall clock.
type Config struct {
	Persistence persistence.Persistence
	Subjects    subjects.Store
	Executor    *actions.Executor
	Lifecycle   eventbus.EventPublisher
	Tracer      trace.Tracer
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine reacts to trigger events by running matching workflows.
type Engine struct {
	persistence persistence.Persistence
	subjects    subjects.Store
	executor    *actions.Executor
	matcher     *triggers.Matcher
	evaluator   *conditions.Evaluator
	lifecycle   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// New wires an engine from its dependencies.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		persistence: cfg.Persistence,
		subjects:    cfg.Subjects,
		executor:    cfg.Executor,
		matcher:     triggers.NewMatcher(logger),
		evaluator:   conditions.NewEvaluator(logger),
		lifecycle:   cfg.Lifecycle,
		tracer:      tracer,
		logger:      logger.With("module", "engine"),
		now:         now,
	}
}

// HandleTriggerEvent runs every active matching workflow for the event and
// returns how many executions were started. A workflow skipped by its run
// limit, or one whose execution fails partway, never prevents the
// remaining workflows from running.
func (e *Engine) HandleTriggerEvent(ctx context.Context, event *events.TriggerEvent) (int, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.handle_trigger_event",
		attribute.String(otelhelper.TenantIDKey, event.TenantID),
		attribute.String(otelhelper.TriggerTypeKey, string(event.TriggerType)),
		attribute.String(otelhelper.EventIDKey, event.ID),
	)
	defer span.End()

	if !event.TriggerType.IsKnown() {
		e.logger.WarnContext(ctx, "ignoring event with unknown trigger type",
			"trigger_type", event.TriggerType, "tenant_id", event.TenantID)

		return 0, nil
	}

	workflows, err := e.persistence.ActiveWorkflowsByTrigger(ctx, event.TenantID, event.TriggerType)
	if err != nil {
		otelhelper.SetError(span, err)

		return 0, fmt.Errorf("failed to load workflows for trigger: %w", err)
	}

	if len(workflows) == 0 {
		return 0, nil
	}

	subject, err := e.resolveSubject(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return 0, err
	}

	started := 0

	for _, workflow := range workflows {
		if !e.matcher.Matches(workflow, *event) {
			continue
		}

		if !e.evaluator.Evaluate(workflow.Conditions, subject) {
			e.logger.DebugContext(ctx, "workflow conditions not met",
				"workflow_id", workflow.ID, "tenant_id", workflow.TenantID)

			continue
		}

		ran, err := e.runWorkflow(ctx, workflow, event, subject)
		if ran {
			started++
		}

		if err != nil {
			// The execution's own record carries the failure; keep
			// going so one broken workflow cannot starve the rest.
			e.logger.ErrorContext(ctx, "workflow execution failed",
				"workflow_id", workflow.ID, "tenant_id", workflow.TenantID, "error", err)
		}
	}

	span.SetAttributes(attribute.Int("careloop.executions.started", started))

	return started, nil
}

// runWorkflow reports whether an execution was started, and any error the
// execution ended with.
func (e *Engine) runWorkflow(ctx context.Context, workflow *models.Workflow, event *events.TriggerEvent, subject map[string]any) (bool, error) {
	execution, err := e.createExecution(ctx, workflow, event)
	if err != nil {
		if persistence.IsRunLimitReached(err) {
			e.logger.InfoContext(ctx, "run limit reached, skipping workflow",
				"workflow_id", workflow.ID, "subject_id", execution.SubjectID,
				"max_runs", workflow.MaxRunsPerSubject)

			return false, nil
		}

		return false, err
	}

	err = e.ExecuteWorkflow(ctx, workflow, execution, subject)

	return true, err
}

func (e *Engine) createExecution(ctx context.Context, workflow *models.Workflow, event *events.TriggerEvent) (*models.Execution, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}

	subjectID, _ := event.SubjectID()

	execution := &models.Execution{
		ID:          id.String(),
		TenantID:    workflow.TenantID,
		WorkflowID:  workflow.ID,
		SubjectID:   subjectID,
		RelatedID:   event.RelatedID(),
		TriggerType: event.TriggerType,
		TriggerData: event.Payload,
		Status:      models.ExecutionStatusRunning,
		TotalSteps:  len(workflow.Actions),
		Steps:       make([]models.StepResult, 0, len(workflow.Actions)),
		StartedAt:   e.now(),
	}

	err = e.persistence.CreateExecutionWithinLimit(ctx, execution, workflow.MaxRunsPerSubject)
	if err != nil {
		return execution, err
	}

	return execution, nil
}

// ExecuteWorkflow runs the workflow's actions strictly in order against an
// already-created running execution. Progress is persisted after every
// step; the first failing action fails the whole execution and later
// actions never run.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflow *models.Workflow, execution *models.Execution, subject map[string]any) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute_workflow",
		attribute.String(otelhelper.TenantIDKey, workflow.TenantID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.SubjectIDKey, execution.SubjectID),
	)
	defer span.End()

	e.publishStarted(ctx, workflow, execution)

	for i, action := range workflow.Actions {
		outcome, err := e.executor.Execute(ctx, workflow.TenantID, action, subject,
			execution.SubjectID, execution.ID)
		if err != nil {
			failErr := e.failExecution(ctx, workflow, execution, i, err)
			if failErr != nil {
				e.logger.ErrorContext(ctx, "failed to record execution failure",
					"execution_id", execution.ID, "error", failErr)
			}

			otelhelper.SetError(span, err,
				attribute.String(otelhelper.ActionTypeKey, string(action.Type)))

			return err
		}

		execution.Steps = append(execution.Steps, models.StepResult{
			ActionType:        action.Type,
			Status:            outcome.Status,
			ScheduledActionID: outcome.ScheduledActionID,
			Detail:            outcome.Detail,
			CompletedAt:       e.now(),
		})
		execution.CurrentStep = i + 1

		err = e.persistence.UpdateExecution(ctx, execution)
		if err != nil {
			otelhelper.SetError(span, err)

			return fmt.Errorf("failed to persist step result: %w", err)
		}
	}

	return e.completeExecution(ctx, workflow, execution)
}

func (e *Engine) completeExecution(ctx context.Context, workflow *models.Workflow, execution *models.Execution) error {
	completedAt := e.now()
	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &completedAt

	err := e.persistence.UpdateExecution(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}

	err = e.persistence.IncrementRuns(ctx, workflow.TenantID, workflow.ID, persistence.RunOutcomeSuccess)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to increment run counters",
			"workflow_id", workflow.ID, "error", err)
	}

	e.publishCompleted(ctx, workflow, execution)

	e.logger.InfoContext(ctx, "execution completed",
		"execution_id", execution.ID, "workflow_id", workflow.ID,
		"steps", execution.CurrentStep)

	return nil
}

func (e *Engine) failExecution(ctx context.Context, workflow *models.Workflow, execution *models.Execution, failedStep int, cause error) error {
	completedAt := e.now()
	execution.Status = models.ExecutionStatusFailed
	execution.ErrorMessage = cause.Error()
	execution.CompletedAt = &completedAt

	err := e.persistence.UpdateExecution(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to record failed execution: %w", err)
	}

	err = e.persistence.IncrementRuns(ctx, workflow.TenantID, workflow.ID, persistence.RunOutcomeFailure)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to increment run counters",
			"workflow_id", workflow.ID, "error", err)
	}

	e.publishFailed(ctx, workflow, execution, failedStep, cause)

	return nil
}

// resolveSubject loads the subject record once per event. An absent
// subject yields a nil record; conditions then see every field as missing.
func (e *Engine) resolveSubject(ctx context.Context, event *events.TriggerEvent) (map[string]any, error) {
	subjectID, ok := event.SubjectID()
	if !ok {
		return nil, nil
	}

	subject, err := e.subjects.Get(ctx, event.TenantID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subject %s: %w", subjectID, err)
	}

	return subject, nil
}

func (e *Engine) publishStarted(ctx context.Context, workflow *models.Workflow, execution *models.Execution) {
	e.publish(ctx, execution.TenantID, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, execution.TenantID),
		ExecutionID: execution.ID,
		WorkflowID:  workflow.ID,
		SubjectID:   execution.SubjectID,
		TriggerType: string(execution.TriggerType),
		TotalSteps:  execution.TotalSteps,
	})
}

func (e *Engine) publishCompleted(ctx context.Context, workflow *models.Workflow, execution *models.Execution) {
	completed, scheduled := 0, 0

	for _, step := range execution.Steps {
		if step.Status == models.StepStatusScheduled {
			scheduled++
		} else {
			completed++
		}
	}

	e.publish(ctx, execution.TenantID, events.ExecutionCompleted{
		BaseEvent:      events.NewBaseEvent(events.ExecutionCompletedEvent, execution.TenantID),
		ExecutionID:    execution.ID,
		WorkflowID:     workflow.ID,
		SubjectID:      execution.SubjectID,
		StepsCompleted: completed,
		StepsScheduled: scheduled,
		DurationMs:     e.durationMs(execution),
	})
}

func (e *Engine) publishFailed(ctx context.Context, workflow *models.Workflow, execution *models.Execution, failedStep int, cause error) {
	e.publish(ctx, execution.TenantID, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.TenantID),
		ExecutionID: execution.ID,
		WorkflowID:  workflow.ID,
		SubjectID:   execution.SubjectID,
		FailedStep:  failedStep,
		Error:       cause.Error(),
		DurationMs:  e.durationMs(execution),
	})
}

func (e *Engine) publish(ctx context.Context, tenantID string, event eventbus.Event) {
	if e.lifecycle == nil {
		return
	}

	err := e.lifecycle.Publish(ctx, tenantID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}

func (e *Engine) durationMs(execution *models.Execution) int64 {
	if execution.CompletedAt == nil {
		return 0
	}

	return execution.CompletedAt.Sub(execution.StartedAt).Milliseconds()
}
