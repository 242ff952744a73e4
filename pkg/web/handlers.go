package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/careloop/careloop/pkg/engine"
	"github.com/careloop/careloop/pkg/services"
)

// TenantHeader scopes every API request to one clinic.
const TenantHeader = "X-Tenant-ID"

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	sweepService     *services.Sweep
	engine           *engine.Engine
	validator        *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	sweepService *services.Sweep,
	eng *engine.Engine,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		sweepService:     sweepService,
		engine:           eng,
		validator:        validate,
	}
}

func tenantID(c fiber.Ctx) (string, bool) {
	tenant := c.Get(TenantHeader)

	return tenant, tenant != ""
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	workflows, err := h.workflowService.List(c.Context(), tenant)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	workflow, err := h.workflowService.Fetch(c.Context(), tenant, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.toWorkflow(tenant))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.Fetch(c.Context(), tenant, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	req.applyTo(existing)

	updated, err := h.workflowService.Update(c.Context(), tenant, existing.ID, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	err := h.workflowService.Delete(c.Context(), tenant, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TestWorkflow dry-runs a workflow against a subject without executing
// anything.
func (h *APIHandlers) TestWorkflow(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	var req TestWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.engine.TestWorkflow(c.Context(), tenant, c.Params("id"), req.SubjectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	executions, err := h.executionService.ListByWorkflow(c.Context(), tenant, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	execution, err := h.executionService.Fetch(c.Context(), tenant, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionScheduledActions(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	actions, err := h.executionService.ScheduledActions(c.Context(), tenant, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"scheduled_actions": actions})
}

// CancelScheduledAction removes a pending deferred action before the
// poller picks it up.
func (h *APIHandlers) CancelScheduledAction(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	err := h.executionService.CancelScheduledAction(c.Context(), tenant, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetSweepSchedule(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	schedule, err := h.sweepService.Fetch(c.Context(), tenant)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) PutSweepSchedule(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return badRequest(c, TenantHeader+" header is required")
	}

	var req SweepScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := h.sweepService.Save(c.Context(), tenant, req.CronExpression, req.Active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
