// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrScheduledActionNotFound indicates a scheduled action was not found.
	ErrScheduledActionNotFound = errors.New("scheduled action not found")

	// ErrScheduledActionNotClaimable indicates the pending -> processing
	// transition lost to a concurrent claim or cancellation.
	ErrScheduledActionNotClaimable = errors.New("scheduled action is not claimable")

	// ErrRunLimitReached indicates the subject already has the configured
	// maximum number of runs for the workflow.
	ErrRunLimitReached = errors.New("per-subject run limit reached")

	// ErrSweepScheduleNotFound indicates no sweep schedule exists for the tenant.
	ErrSweepScheduleNotFound = errors.New("sweep schedule not found")
)

// StoreError wraps storage errors with operation and entity context.
type StoreError struct {
	Op       string // Operation being performed (e.g., "SaveWorkflow", "ClaimScheduledAction")
	TenantID string // Tenant scope if applicable
	EntityID string // Entity identifier if applicable
	Err      error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("%s failed for %s (tenant %s): %v", e.Op, e.EntityID, e.TenantID, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.EntityID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, tenantID, entityID string, err error) *StoreError {
	return &StoreError{Op: op, TenantID: tenantID, EntityID: entityID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsRunLimitReached checks if an error indicates the per-subject run limit was hit.
func IsRunLimitReached(err error) bool {
	return errors.Is(err, ErrRunLimitReached)
}

// IsScheduledActionNotClaimable checks if a claim lost to a concurrent transition.
func IsScheduledActionNotClaimable(err error) bool {
	return errors.Is(err, ErrScheduledActionNotClaimable)
}

// IsScheduledActionNotFound checks if an error indicates a missing scheduled action.
func IsScheduledActionNotFound(err error) bool {
	return errors.Is(err, ErrScheduledActionNotFound)
}

// IsSweepScheduleNotFound checks if an error indicates a missing sweep schedule.
func IsSweepScheduleNotFound(err error) bool {
	return errors.Is(err, ErrSweepScheduleNotFound)
}
