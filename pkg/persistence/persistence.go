// Package persistence provides the storage abstraction for workflows,
// executions, scheduled actions, and sweep schedules.
package persistence

import (
	"context"
	"time"

	"github.com/careloop/careloop/pkg/models"
)

// RunOutcome selects which aggregate counters an execution increments on the
// owning workflow. Increments are applied atomically at the storage layer so
// concurrent executions never lose updates.
type RunOutcome string

const (
	RunOutcomeSuccess RunOutcome = "success"
	RunOutcomeFailure RunOutcome = "failure"
)

// Persistence is the full storage contract consumed by the engine, the
// poller, and the operator API. Every query is scoped by tenant id; tenant
// isolation beyond that scoping is the storage implementation's concern.
type Persistence interface {
	WorkflowRepository
	ExecutionRepository
	ScheduledActionRepository
	SweepScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. The engine only ever writes
// through IncrementRuns; definitions themselves are authored externally.
type WorkflowRepository interface {
	Workflows(ctx context.Context, tenantID string) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, tenantID, id string) (*models.Workflow, error)
	ActiveWorkflowsByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, tenantID, id string) error

	// IncrementRuns bumps total_runs plus the outcome counter in one atomic
	// storage-level update.
	IncrementRuns(ctx context.Context, tenantID, workflowID string, outcome RunOutcome) error
}

// ExecutionRepository stores workflow run records.
type ExecutionRepository interface {
	// CreateExecutionWithinLimit atomically counts prior running/completed
	// executions of the workflow for the subject and creates the execution
	// only if the count is below maxRuns. A maxRuns of zero means unlimited.
	// Returns ErrRunLimitReached when the limit is already met.
	CreateExecutionWithinLimit(ctx context.Context, execution *models.Execution, maxRuns int) error

	UpdateExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, tenantID, id string) (*models.Execution, error)
	ExecutionsByWorkflow(ctx context.Context, tenantID, workflowID string) ([]*models.Execution, error)
	CountExecutions(ctx context.Context, tenantID, workflowID, subjectID string) (int, error)
}

// ScheduledActionRepository stores delayed actions awaiting the poller.
type ScheduledActionRepository interface {
	CreateScheduledAction(ctx context.Context, action *models.ScheduledAction) error

	// DueScheduledActions returns pending actions with scheduled_for <= before,
	// oldest first, capped at limit to bound poller tick duration.
	DueScheduledActions(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledAction, error)

	// ClaimScheduledAction transitions the row pending -> processing only if it
	// is still pending. Returns ErrScheduledActionNotClaimable when another
	// sweep or a cancellation got there first.
	ClaimScheduledAction(ctx context.Context, id string) (*models.ScheduledAction, error)

	UpdateScheduledAction(ctx context.Context, action *models.ScheduledAction) error

	// CancelScheduledAction deletes the row only while it is still pending, so
	// a cancellation can never race a sweep that already claimed it.
	CancelScheduledAction(ctx context.Context, tenantID, id string) error

	ScheduledActionsByExecution(ctx context.Context, tenantID, executionID string) ([]*models.ScheduledAction, error)
}

// SweepScheduleRepository stores per-tenant time-trigger sweep gates.
type SweepScheduleRepository interface {
	SaveSweepSchedule(ctx context.Context, schedule *models.SweepSchedule) error
	DueSweepSchedules(ctx context.Context, before time.Time) ([]*models.SweepSchedule, error)
	SweepScheduleByTenant(ctx context.Context, tenantID string) (*models.SweepSchedule, error)
}
