package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// Execution exposes read access to execution history and control over
// still-pending scheduled actions.
type Execution struct {
	persistence persistence.Persistence
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence) *Execution {
	return &Execution{persistence: persistence}
}

// ListByWorkflow returns a workflow's executions with their step logs.
func (e *Execution) ListByWorkflow(ctx context.Context, tenantID, workflowID string) ([]*models.Execution, error) {
	executions, err := e.persistence.ExecutionsByWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// Fetch returns one execution by ID.
func (e *Execution) Fetch(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	return e.persistence.ExecutionByID(ctx, tenantID, id)
}

// ScheduledActions returns the deferred actions an execution produced.
func (e *Execution) ScheduledActions(ctx context.Context, tenantID, executionID string) ([]*models.ScheduledAction, error) {
	actions, err := e.persistence.ScheduledActionsByExecution(ctx, tenantID, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled actions: %w", err)
	}

	return actions, nil
}

// CancelScheduledAction removes a pending deferred action. Once the
// poller has claimed it the cancellation is refused as a conflict.
func (e *Execution) CancelScheduledAction(ctx context.Context, tenantID, id string) error {
	err := e.persistence.CancelScheduledAction(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, persistence.ErrScheduledActionNotClaimable) {
			return NewValidationError("CancelScheduledAction", "not_cancellable",
				"scheduled action already started processing", ErrScheduledActionNotCancellable)
		}

		return err
	}

	return nil
}
