// Package services implements the business operations behind the API:
// workflow management, execution inspection and sweep schedule upkeep.
package services

import (
	"errors"
	"fmt"
)

// Validation errors map to 400 responses; conflicts to 409.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrUnknownTriggerType   = errors.New("unknown trigger type")
	ErrActionsRequired      = errors.New("workflow must have at least one action")
	ErrNegativeDelay        = errors.New("action delay cannot be negative")
	ErrInvalidActionParams  = errors.New("invalid action parameters")

	ErrScheduledActionNotCancellable = errors.New("scheduled action is no longer cancellable")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should surface as HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrUnknownTriggerType) ||
		errors.Is(err, ErrActionsRequired) ||
		errors.Is(err, ErrNegativeDelay) ||
		errors.Is(err, ErrInvalidActionParams)
}

// IsConflictError checks if an error should surface as HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrScheduledActionNotCancellable)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
