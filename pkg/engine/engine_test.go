package engine_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/careloop/pkg/actions"
	"github.com/careloop/careloop/pkg/actions/applytag"
	"github.com/careloop/careloop/pkg/actions/createtask"
	"github.com/careloop/careloop/pkg/actions/sendmessage"
	"github.com/careloop/careloop/pkg/engine"
	"github.com/careloop/careloop/pkg/eventbus"
	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence/file"
	"github.com/careloop/careloop/pkg/registry"
	"github.com/careloop/careloop/pkg/testutil"
)

var testTime = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturePublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

type testHarness struct {
	engine      *engine.Engine
	persistence *file.Persistence
	store       *testutil.FakeSubjectStore
	channel     *testutil.FakeChannel
	lifecycle   *capturePublisher
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	logger := slog.Default()
	store := testutil.NewFakeSubjectStore()
	channel := testutil.NewFakeChannel()
	lifecycle := &capturePublisher{}
	p := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(sendmessage.NewActionFactory(channel))
	reg.RegisterAction(applytag.NewActionFactory(store))
	reg.RegisterAction(createtask.NewActionFactory(store))

	now := func() time.Time { return testTime }
	executor := actions.NewExecutor(reg, p, now, logger)

	eng := engine.New(engine.Config{
		Persistence: p,
		Subjects:    store,
		Executor:    executor,
		Lifecycle:   lifecycle,
		Logger:      logger,
		Now:         now,
	})

	return &testHarness{
		engine:      eng,
		persistence: p,
		store:       store,
		channel:     channel,
		lifecycle:   lifecycle,
	}
}

func (h *testHarness) saveWorkflow(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()
	require.NoError(t, h.persistence.SaveWorkflow(context.Background(), workflow))

	return workflow
}

func (h *testHarness) addPatient(tenantID, id string, record map[string]any) {
	h.store.AddSubject(tenantID, id, record)
}

func triggerEvent(tenantID string, triggerType models.TriggerType, payload map[string]any) *events.TriggerEvent {
	return &events.TriggerEvent{
		ID:          "evt-1",
		TenantID:    tenantID,
		TriggerType: triggerType,
		Payload:     payload,
		OccurredAt:  testTime,
	}
}

func TestHandleTriggerEventStartsMatchingExecutions(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.addPatient("clinic-1", "patient-1", map[string]any{"name": "Ada", "phone": "+15550100"})

	for _, name := range []string{"first", "second"} {
		h.saveWorkflow(t, &models.Workflow{
			TenantID:    "clinic-1",
			Name:        name,
			TriggerType: models.TriggerSubjectCreated,
			Actions: []models.Action{
				{Type: models.ActionApplyTag, Params: map[string]any{"tag": name}},
			},
			Active: true,
		})
	}

	// Inactive workflows never run.
	inactive := h.saveWorkflow(t, &models.Workflow{
		TenantID:    "clinic-1",
		Name:        "dormant",
		TriggerType: models.TriggerSubjectCreated,
		Actions: []models.Action{
			{Type: models.ActionApplyTag, Params: map[string]any{"tag": "dormant"}},
		},
		Active: false,
	})

	started, err := h.engine.HandleTriggerEvent(ctx, triggerEvent("clinic-1",
		models.TriggerSubjectCreated, map[string]any{events.KeySubjectID: "patient-1"}))
	require.NoError(t, err)
	assert.Equal(t, 2, started)

	assert.Contains(t, h.store.Tags, "clinic-1/patient-1:first")
	assert.Contains(t, h.store.Tags, "clinic-1/patient-1:second")
	assert.NotContains(t, h.store.Tags, "clinic-1/patient-1:dormant")

	inactiveExecutions, err := h.persistence.ExecutionsByWorkflow(ctx, "clinic-1", inactive.ID)
	require.NoError(t, err)
	assert.Empty(t, inactiveExecutions)
}

func TestExecutionRecordsEveryStep(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.addPatient("clinic-1", "patient-1", map[string]any{"name": "Ada", "phone": "+15550100"})

	workflow := h.saveWorkflow(t, &models.Workflow{
		TenantID:    "clinic-1",
		Name:        "welcome",
		TriggerType: models.TriggerSubjectCreated,
		Actions: []models.Action{
			{Type: models.ActionApplyTag, Params: map[string]any{"tag": "new-patient"}},
			{Type: models.ActionSendMessage, Params: map[string]any{"message": "Welcome {{.subject.name}}!"}},
		},
		Active: true,
	})

	started, err := h.engine.HandleTriggerEvent(ctx, triggerEvent("clinic-1",
		models.TriggerSubjectCreated, map[string]any{events.KeySubjectID: "patient-1"}))
	require.NoError(t, err)
	require.Equal(t, 1, started)

	executions, err := h.persistence.ExecutionsByWorkflow(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)

	execution := executions[0]
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 2, execution.CurrentStep)
	require.Len(t, execution.Steps, 2)
	assert.Equal(t, models.ActionApplyTag, execution.Steps[0].ActionType)
	assert.Equal(t, models.StepStatusCompleted, execution.Steps[0].Status)
	assert.Equal(t, models.ActionSendMessage, execution.Steps[1].ActionType)

	require.Len(t, h.channel.Sent, 1)
	assert.Equal(t, "Welcome Ada!", h.channel.Sent[0].Body)

	loaded, err := h.persistence.WorkflowByID(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.TotalRuns)
	assert.Equal(t, int64(1), loaded.SuccessfulRuns)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionCompletedEvent,
	}, h.lifecycle.types())
}

func TestFailingActionStopsTheSequence(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.addPatient("clinic-1", "patient-1", map[string]any{"name": "Ada", "phone": "+15550100"})
	h.channel.FailSend = true

	workflow := h.saveWorkflow(t, &models.Workflow{
		TenantID:    "clinic-1",
		Name:        "reminder",
		TriggerType: models.TriggerAppointmentMissed,
		Actions: []models.Action{
			{Type: models.ActionApplyTag, Params: map[string]any{"tag": "missed"}},
			{Type: models.ActionSendMessage, Params: map[string]any{"message": "We missed you"}},
			{Type: models.ActionApplyTag, Params: map[string]any{"tag": "never-applied"}},
		},
		Active: true,
	})

	started, err := h.engine.HandleTriggerEvent(ctx, triggerEvent("clinic-1",
		models.TriggerAppointmentMissed, map[string]any{events.KeySubjectID: "patient-1"}))
	// The handler itself succeeds; the failure lives on the execution.
	require.NoError(t, err)
	assert.Equal(t, 1, started)

	executions, err := h.persistence.ExecutionsByWorkflow(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)

	execution := executions[0]
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.NotEmpty(t, execution.ErrorMessage)

	// Only the step before the failure is recorded; the action after the
	// failure never ran.
	require.Len(t, execution.Steps, 1)
	assert.Equal(t, models.ActionApplyTag, execution.Steps[0].ActionType)
	assert.NotContains(t, h.store.Tags, "clinic-1/patient-1:never-applied")

	loaded, err := h.persistence.WorkflowByID(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.TotalRuns)
	assert.Equal(t, int64(1), loaded.FailedRuns)
	assert.Equal(t, int64(0), loaded.SuccessfulRuns)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionFailedEvent,
	}, h.lifecycle.types())
}

func TestDelayedActionIsScheduledNotExecuted(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.addPatient("clinic-1", "patient-1", map[string]any{"name": "Ada", "phone": "+15550100"})

	workflow := h.saveWorkflow(t, &models.Workflow{
		TenantID:    "clinic-1",
		Name:        "follow-up",
		TriggerType: models.TriggerAppointmentCompleted,
		Actions: []models.Action{
			{Type: models.ActionSendMessage, DelayHours: 48,
				Params: map[string]any{"message": "How was your visit?"}},
		},
		Active: true,
	})

	started, err := h.engine.HandleTriggerEvent(ctx, triggerEvent("clinic-1",
		models.TriggerAppointmentCompleted, map[string]any{events.KeySubjectID: "patient-1"}))
	require.NoError(t, err)
	require.Equal(t, 1, started)

	// Nothing sent now.
	assert.Empty(t, h.channel.Sent)

	executions, err := h.persistence.ExecutionsByWorkflow(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)

	execution := executions[0]
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.Len(t, execution.Steps, 1)
	assert.Equal(t, models.StepStatusScheduled, execution.Steps[0].Status)
	require.NotEmpty(t, execution.Steps[0].ScheduledActionID)

	scheduled, err := h.persistence.ScheduledActionsByExecution(ctx, "clinic-1", execution.ID)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, models.ScheduledActionPending, scheduled[0].Status)
	assert.Equal(t, testTime.Add(48*time.Hour), scheduled[0].ScheduledFor)
}

func TestRunLimitSkipsRepeatTriggers(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.addPatient("clinic-1", "patient-1", map[string]any{"name": "Ada", "phone": "+15550100"})

	workflow := h.saveWorkflow(t, &models.Workflow{
		TenantID:          "clinic-1",
		Name:              "once-only",
		TriggerType:       models.TriggerSubjectCreated,
		MaxRunsPerSubject: 1,
		Actions: []models.Action{
			{Type: models.ActionApplyTag, Params: map[string]any{"tag": "welcomed"}},
		},
		Active: true,
	})

	event := triggerEvent("clinic-1", models.TriggerSubjectCreated,
		map[string]any{events.KeySubjectID: "patient-1"})

	started, err := h.engine.HandleTriggerEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 1, started)

	started, err = h.engine.HandleTriggerEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 0, started)

	executions, err := h.persistence.ExecutionsByWorkflow(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestConditionsGateExecution(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.addPatient("clinic-1", "patient-1", map[string]any{"name": "Ada", "status": "inactive"})

	workflow := h.saveWorkflow(t, &models.Workflow{
		TenantID:    "clinic-1",
		Name:        "active-only",
		TriggerType: models.TriggerSubjectCreated,
		Conditions: []models.Condition{
			{Field: "status", Operator: models.OpEquals, Value: "active"},
		},
		Actions: []models.Action{
			{Type: models.ActionApplyTag, Params: map[string]any{"tag": "active-patient"}},
		},
		Active: true,
	})

	started, err := h.engine.HandleTriggerEvent(ctx, triggerEvent("clinic-1",
		models.TriggerSubjectCreated, map[string]any{events.KeySubjectID: "patient-1"}))
	require.NoError(t, err)
	assert.Equal(t, 0, started)

	executions, err := h.persistence.ExecutionsByWorkflow(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestUnknownTriggerTypeIsIgnored(t *testing.T) {
	h := newTestHarness(t)

	started, err := h.engine.HandleTriggerEvent(context.Background(), triggerEvent("clinic-1",
		models.TriggerType("made_up_trigger"), map[string]any{events.KeySubjectID: "patient-1"}))
	require.NoError(t, err)
	assert.Equal(t, 0, started)
}

func TestHandleTriggerEventRejectsInvalidEvent(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.engine.HandleTriggerEvent(context.Background(), &events.TriggerEvent{})
	assert.ErrorIs(t, err, events.ErrInvalidEventData)
}

func TestTestWorkflowDryRun(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.addPatient("clinic-1", "patient-1", map[string]any{"name": "Ada", "phone": "+15550100", "status": "active"})

	workflow := h.saveWorkflow(t, &models.Workflow{
		TenantID:    "clinic-1",
		Name:        "welcome",
		TriggerType: models.TriggerSubjectCreated,
		Conditions: []models.Condition{
			{Field: "status", Operator: models.OpEquals, Value: "active"},
		},
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Params: map[string]any{"message": "Hi {{.subject.name}}"}},
			{Type: models.ActionApplyTag, DelayHours: 24, Params: map[string]any{"tag": "welcomed"}},
		},
		Active: true,
	})

	result, err := h.engine.TestWorkflow(ctx, "clinic-1", workflow.ID, "patient-1")
	require.NoError(t, err)

	assert.True(t, result.ConditionsMet)
	require.Len(t, result.Previews, 2)
	assert.Contains(t, result.Previews[0].Detail, "Hi Ada")
	assert.Contains(t, result.Previews[1].Detail, "after 24h delay")

	// Dry runs leave no trace.
	assert.Empty(t, h.channel.Sent)
	assert.Empty(t, h.store.Tags)

	executions, err := h.persistence.ExecutionsByWorkflow(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, executions)

	loaded, err := h.persistence.WorkflowByID(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), loaded.TotalRuns)
}

func TestMissedAppointmentEndToEnd(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.addPatient("clinic-1", "patient-7", map[string]any{
		"name":   "Grace",
		"phone":  "+15550107",
		"status": "active",
	})

	workflow := h.saveWorkflow(t, &models.Workflow{
		TenantID:    "clinic-1",
		Name:        "missed appointment recovery",
		TriggerType: models.TriggerAppointmentMissed,
		TriggerConfig: map[string]any{
			"appointment_type": "cleaning",
		},
		Conditions: []models.Condition{
			{Field: "status", Operator: models.OpEquals, Value: "active"},
		},
		Actions: []models.Action{
			{Type: models.ActionSendMessage,
				Params: map[string]any{"message": "Hi {{.subject.name}}, we missed you today."}},
			{Type: models.ActionCreateTask,
				Params: map[string]any{"title": "Call {{.subject.name}} to reschedule"}},
			{Type: models.ActionSendMessage, DelayHours: 72,
				Params: map[string]any{"message": "Ready to rebook your cleaning?"}},
		},
		Active: true,
	})

	// Wrong appointment type does not match.
	started, err := h.engine.HandleTriggerEvent(ctx, triggerEvent("clinic-1",
		models.TriggerAppointmentMissed, map[string]any{
			events.KeySubjectID:       "patient-7",
			events.KeyAppointmentType: "surgery",
		}))
	require.NoError(t, err)
	assert.Equal(t, 0, started)

	started, err = h.engine.HandleTriggerEvent(ctx, triggerEvent("clinic-1",
		models.TriggerAppointmentMissed, map[string]any{
			events.KeySubjectID:       "patient-7",
			events.KeyRelatedID:       "appt-42",
			events.KeyAppointmentType: "cleaning",
		}))
	require.NoError(t, err)
	require.Equal(t, 1, started)

	require.Len(t, h.channel.Sent, 1)
	assert.Equal(t, "Hi Grace, we missed you today.", h.channel.Sent[0].Body)

	require.Len(t, h.store.Tasks, 1)
	assert.Equal(t, "Call Grace to reschedule", h.store.Tasks[0].Title)

	executions, err := h.persistence.ExecutionsByWorkflow(ctx, "clinic-1", workflow.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)

	execution := executions[0]
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "appt-42", execution.RelatedID)
	require.Len(t, execution.Steps, 3)
	assert.Equal(t, models.StepStatusScheduled, execution.Steps[2].Status)

	scheduled, err := h.persistence.ScheduledActionsByExecution(ctx, "clinic-1", execution.ID)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, testTime.Add(72*time.Hour), scheduled[0].ScheduledFor)
}
