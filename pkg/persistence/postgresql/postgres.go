// Package postgresql provides PostgreSQL persistence for workflows,
// executions, scheduled actions and sweep schedules.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
	"github.com/careloop/careloop/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db                  *sql.DB
	logger              *slog.Logger
	workflowRepo        *WorkflowRepository
	executionRepo       *ExecutionRepository
	scheduledActionRepo *ScheduledActionRepository
	sweepScheduleRepo   *SweepScheduleRepository
}

// NewPersistence opens the database, runs migrations and wires the
// repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:                  database,
		logger:              logger,
		workflowRepo:        NewWorkflowRepository(database, logger),
		executionRepo:       NewExecutionRepository(database, logger),
		scheduledActionRepo: NewScheduledActionRepository(database, logger),
		sweepScheduleRepo:   NewSweepScheduleRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Workflows returns a tenant's workflows, newest first.
func (p *Persistence) Workflows(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx, tenantID)
}

// WorkflowByID returns a workflow by its ID.
func (p *Persistence) WorkflowByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, tenantID, id)
}

// ActiveWorkflowsByTrigger returns a tenant's active workflows for a
// trigger type.
func (p *Persistence) ActiveWorkflowsByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return p.workflowRepo.GetActiveByTrigger(ctx, tenantID, triggerType)
}

// SaveWorkflow saves a workflow to the database.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

// DeleteWorkflow removes a workflow and its executions.
func (p *Persistence) DeleteWorkflow(ctx context.Context, tenantID, id string) error {
	return p.workflowRepo.Delete(ctx, tenantID, id)
}

// IncrementRuns atomically bumps the workflow's run counters.
func (p *Persistence) IncrementRuns(ctx context.Context, tenantID, workflowID string, outcome persistence.RunOutcome) error {
	return p.workflowRepo.IncrementRuns(ctx, tenantID, workflowID, outcome)
}

// CreateExecutionWithinLimit creates the execution only while the subject
// is below the workflow's run limit.
func (p *Persistence) CreateExecutionWithinLimit(ctx context.Context, execution *models.Execution, maxRuns int) error {
	return p.executionRepo.CreateWithinLimit(ctx, execution, maxRuns)
}

// UpdateExecution persists execution progress.
func (p *Persistence) UpdateExecution(ctx context.Context, execution *models.Execution) error {
	return p.executionRepo.Update(ctx, execution)
}

// ExecutionByID returns an execution by its ID.
func (p *Persistence) ExecutionByID(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	return p.executionRepo.GetByID(ctx, tenantID, id)
}

// ExecutionsByWorkflow lists a workflow's executions, newest first.
func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, tenantID, workflowID string) ([]*models.Execution, error) {
	return p.executionRepo.GetByWorkflow(ctx, tenantID, workflowID)
}

// CountExecutions counts running/completed executions for a subject.
func (p *Persistence) CountExecutions(ctx context.Context, tenantID, workflowID, subjectID string) (int, error) {
	return p.executionRepo.CountForSubject(ctx, tenantID, workflowID, subjectID)
}

// CreateScheduledAction persists a new deferred action.
func (p *Persistence) CreateScheduledAction(ctx context.Context, action *models.ScheduledAction) error {
	return p.scheduledActionRepo.Create(ctx, action)
}

// DueScheduledActions returns pending actions due before the given time.
func (p *Persistence) DueScheduledActions(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledAction, error) {
	return p.scheduledActionRepo.Due(ctx, before, limit)
}

// ClaimScheduledAction transitions a pending action to processing.
func (p *Persistence) ClaimScheduledAction(ctx context.Context, id string) (*models.ScheduledAction, error) {
	return p.scheduledActionRepo.Claim(ctx, id)
}

// UpdateScheduledAction persists a scheduled action's state.
func (p *Persistence) UpdateScheduledAction(ctx context.Context, action *models.ScheduledAction) error {
	return p.scheduledActionRepo.Update(ctx, action)
}

// CancelScheduledAction removes an action that is still pending.
func (p *Persistence) CancelScheduledAction(ctx context.Context, tenantID, id string) error {
	return p.scheduledActionRepo.Cancel(ctx, tenantID, id)
}

// ScheduledActionsByExecution lists an execution's deferred actions.
func (p *Persistence) ScheduledActionsByExecution(ctx context.Context, tenantID, executionID string) ([]*models.ScheduledAction, error) {
	return p.scheduledActionRepo.GetByExecution(ctx, tenantID, executionID)
}

// SaveSweepSchedule stores a tenant's time-trigger sweep cadence.
func (p *Persistence) SaveSweepSchedule(ctx context.Context, schedule *models.SweepSchedule) error {
	return p.sweepScheduleRepo.Save(ctx, schedule)
}

// DueSweepSchedules returns active schedules due before the given time.
func (p *Persistence) DueSweepSchedules(ctx context.Context, before time.Time) ([]*models.SweepSchedule, error) {
	return p.sweepScheduleRepo.Due(ctx, before)
}

// SweepScheduleByTenant returns the tenant's sweep schedule.
func (p *Persistence) SweepScheduleByTenant(ctx context.Context, tenantID string) (*models.SweepSchedule, error) {
	return p.sweepScheduleRepo.GetByTenant(ctx, tenantID)
}
