package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/careloop/pkg/actions"
	"github.com/careloop/careloop/pkg/actions/applytag"
	"github.com/careloop/careloop/pkg/actions/createtask"
	"github.com/careloop/careloop/pkg/actions/sendmessage"
	"github.com/careloop/careloop/pkg/engine"
	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence/file"
	"github.com/careloop/careloop/pkg/registry"
	"github.com/careloop/careloop/pkg/services"
	"github.com/careloop/careloop/pkg/testutil"
	"github.com/careloop/careloop/pkg/web"
)

type testEnv struct {
	app         *fiber.App
	persistence *file.Persistence
	store       *testutil.FakeSubjectStore
	channel     *testutil.FakeChannel
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.Default()
	persistence := file.NewPersistence(t.TempDir())
	store := testutil.NewFakeSubjectStore()
	channel := testutil.NewFakeChannel()

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(sendmessage.NewActionFactory(channel))
	reg.RegisterAction(applytag.NewActionFactory(store))
	reg.RegisterAction(createtask.NewActionFactory(store))

	executor := actions.NewExecutor(reg, persistence, time.Now, logger)
	eng := engine.New(engine.Config{
		Persistence: persistence,
		Subjects:    store,
		Executor:    executor,
		Logger:      logger,
	})

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(persistence, reg),
		services.NewExecution(persistence),
		services.NewSweep(persistence),
		eng,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/test", handlers.TestWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/scheduled-actions", handlers.GetExecutionScheduledActions)

	app.Delete("/scheduled-actions/:id", handlers.CancelScheduledAction)
	app.Get("/sweep-schedule", handlers.GetSweepSchedule)
	app.Put("/sweep-schedule", handlers.PutSweepSchedule)
	app.Get("/health", handlers.HealthCheck)

	return &testEnv{app: app, persistence: persistence, store: store, channel: channel}
}

func doJSON(t *testing.T, app *fiber.App, method, path, tenant string, payload any) *http.Response {
	t.Helper()

	var body io.Reader

	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")

	if tenant != "" {
		req.Header.Set(web.TenantHeader, tenant)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	validRequest := web.CreateWorkflowRequest{
		Name:        "Missed appointment recovery",
		TriggerType: string(models.TriggerAppointmentMissed),
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Params: map[string]any{"message": "We missed you!"}},
		},
		Active: true,
	}

	tests := []struct {
		name           string
		tenant         string
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			tenant:         "clinic-1",
			requestBody:    validRequest,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing tenant header",
			requestBody:    validRequest,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "validation error - name too short",
			tenant: "clinic-1",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Hi",
				TriggerType: string(models.TriggerAppointmentMissed),
				Actions:     validRequest.Actions,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "validation error - no actions",
			tenant: "clinic-1",
			requestBody: web.CreateWorkflowRequest{
				Name:        "No actions",
				TriggerType: string(models.TriggerAppointmentMissed),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "unknown trigger type",
			tenant: "clinic-1",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Bad trigger",
				TriggerType: "meteor_strike",
				Actions:     validRequest.Actions,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			tenant:         "clinic-1",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			var resp *http.Response

			if raw, ok := tt.requestBody.(string); ok {
				req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewBufferString(raw))
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set(web.TenantHeader, tt.tenant)

				var err error

				resp, err = env.app.Test(req)
				require.NoError(t, err)
			} else {
				resp = doJSON(t, env.app, http.MethodPost, "/workflows", tt.tenant, tt.requestBody)
			}

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				var created models.Workflow
				decodeBody(t, resp, &created)
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, "clinic-1", created.TenantID)
				assert.Equal(t, models.TriggerAppointmentMissed, created.TriggerType)
				assert.Zero(t, created.TotalRuns)
			}
		})
	}
}

func TestAPIHandlers_GetWorkflowsIsTenantScoped(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	for _, tenant := range []string{"clinic-1", "clinic-2"} {
		resp := doJSON(t, env.app, http.MethodPost, "/workflows", tenant, web.CreateWorkflowRequest{
			Name:        "Recall for " + tenant,
			TriggerType: string(models.TriggerDaysSinceVisit),
			Actions: []models.Action{
				{Type: models.ActionApplyTag, Params: map[string]any{"tag": "recall"}},
			},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp := doJSON(t, env.app, http.MethodGet, "/workflows", "clinic-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Workflows []models.Workflow `json:"workflows"`
	}

	decodeBody(t, resp, &listing)
	require.Len(t, listing.Workflows, 1)
	assert.Equal(t, "Recall for clinic-1", listing.Workflows[0].Name)
}

func TestAPIHandlers_UpdateWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/workflows", "clinic-1", web.CreateWorkflowRequest{
		Name:        "Original name",
		TriggerType: string(models.TriggerAppointmentMissed),
		Actions: []models.Action{
			{Type: models.ActionApplyTag, Params: map[string]any{"tag": "missed"}},
		},
		Active: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	decodeBody(t, resp, &created)

	newName := "Updated name"
	inactive := false

	resp = doJSON(t, env.app, http.MethodPatch, "/workflows/"+created.ID, "clinic-1", web.UpdateWorkflowRequest{
		Name:   &newName,
		Active: &inactive,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Workflow
	decodeBody(t, resp, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Updated name", updated.Name)
	assert.False(t, updated.Active)
	// Untouched fields survive a partial update.
	assert.Equal(t, models.TriggerAppointmentMissed, updated.TriggerType)
	assert.Len(t, updated.Actions, 1)
}

func TestAPIHandlers_UpdateUnknownWorkflowReturns404(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	name := "Does not matter"
	resp := doJSON(t, env.app, http.MethodPatch, "/workflows/missing-id", "clinic-1", web.UpdateWorkflowRequest{
		Name: &name,
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/workflows", "clinic-1", web.CreateWorkflowRequest{
		Name:        "Short lived",
		TriggerType: string(models.TriggerSubjectCreated),
		Actions: []models.Action{
			{Type: models.ActionApplyTag, Params: map[string]any{"tag": "new"}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	decodeBody(t, resp, &created)

	resp = doJSON(t, env.app, http.MethodDelete, "/workflows/"+created.ID, "clinic-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, env.app, http.MethodGet, "/workflows/"+created.ID, "clinic-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_TestWorkflowDryRun(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.store.AddSubject("clinic-1", "patient-1", map[string]any{
		"id":     "patient-1",
		"name":   "Ada",
		"phone":  "+15550100",
		"status": "active",
	})

	resp := doJSON(t, env.app, http.MethodPost, "/workflows", "clinic-1", web.CreateWorkflowRequest{
		Name:        "Welcome sequence",
		TriggerType: string(models.TriggerSubjectCreated),
		Conditions: []models.Condition{
			{Field: "status", Operator: models.OpEquals, Value: "active"},
		},
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Params: map[string]any{"message": "Hi {{.subject.name}}"}},
		},
		Active: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	decodeBody(t, resp, &created)

	resp = doJSON(t, env.app, http.MethodPost, "/workflows/"+created.ID+"/test", "clinic-1", web.TestWorkflowRequest{
		SubjectID: "patient-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.TestResult
	decodeBody(t, resp, &result)
	assert.True(t, result.ConditionsMet)
	require.Len(t, result.Previews, 1)
	assert.Contains(t, result.Previews[0].Detail, "Hi Ada")

	// Dry run leaves no trace.
	assert.Zero(t, env.channel.SentCount())

	executions, err := env.persistence.ExecutionsByWorkflow(t.Context(), "clinic-1", created.ID)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestAPIHandlers_CancelScheduledAction(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	scheduled := &models.ScheduledAction{
		ID:           "sa-1",
		TenantID:     "clinic-1",
		ExecutionID:  "exec-1",
		ActionType:   models.ActionSendMessage,
		Params:       map[string]any{"message": "reminder"},
		ScheduledFor: time.Now().Add(24 * time.Hour),
		Status:       models.ScheduledActionPending,
	}
	require.NoError(t, env.persistence.CreateScheduledAction(t.Context(), scheduled))

	resp := doJSON(t, env.app, http.MethodDelete, "/scheduled-actions/sa-1", "clinic-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	// A second cancel finds nothing.
	resp = doJSON(t, env.app, http.MethodDelete, "/scheduled-actions/sa-1", "clinic-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_CancelClaimedScheduledActionConflicts(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	scheduled := &models.ScheduledAction{
		ID:           "sa-2",
		TenantID:     "clinic-1",
		ExecutionID:  "exec-1",
		ActionType:   models.ActionApplyTag,
		ScheduledFor: time.Now().Add(-time.Minute),
		Status:       models.ScheduledActionPending,
	}
	require.NoError(t, env.persistence.CreateScheduledAction(t.Context(), scheduled))

	_, err := env.persistence.ClaimScheduledAction(t.Context(), "sa-2")
	require.NoError(t, err)

	resp := doJSON(t, env.app, http.MethodDelete, "/scheduled-actions/sa-2", "clinic-1", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_SweepSchedule(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/sweep-schedule", "clinic-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, env.app, http.MethodPut, "/sweep-schedule", "clinic-1", web.SweepScheduleRequest{
		CronExpression: "0 8 * * *",
		Active:         true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var schedule models.SweepSchedule
	decodeBody(t, resp, &schedule)
	assert.Equal(t, "clinic-1", schedule.TenantID)
	assert.Equal(t, "0 8 * * *", schedule.CronExpression)
	assert.False(t, schedule.NextDueAt.IsZero())

	resp = doJSON(t, env.app, http.MethodGet, "/sweep-schedule", "clinic-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_SweepScheduleRejectsBadCron(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPut, "/sweep-schedule", "clinic-1", web.SweepScheduleRequest{
		CronExpression: "every day at eight",
		Active:         true,
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}

	decodeBody(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)
}
