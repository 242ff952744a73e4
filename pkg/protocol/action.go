// Package protocol defines the interfaces between the engine and its
// pluggable action implementations.
package protocol

import (
	"context"
	"fmt"

	"github.com/careloop/careloop/pkg/models"
)

// Request carries everything an action needs to run against one subject.
type Request struct {
	TenantID    string
	SubjectID   string
	ExecutionID string
	Subject     map[string]any
	Params      map[string]any
}

// Action is one runnable effect. Execute performs the side effect and returns
// a short human-readable detail for the execution log. Preview renders what
// Execute would do without performing it.
type Action interface {
	Execute(ctx context.Context, req Request) (string, error)
	Preview(subject map[string]any, params map[string]any) (string, error)
}

// ActionFactory constructs actions of one type and describes their parameters.
type ActionFactory interface {
	ID() models.ActionType
	Create() Action

	// Schema returns the JSON schema the action's params must satisfy.
	Schema() map[string]any
}

// ActionExecutionError marks a failure to perform an action: an unsupported
// type, invalid params, or a failed side-effecting call.
type ActionExecutionError struct {
	ActionType models.ActionType
	Err        error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.ActionType, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

// NewActionExecutionError wraps err with the failing action type.
func NewActionExecutionError(actionType models.ActionType, err error) *ActionExecutionError {
	return &ActionExecutionError{ActionType: actionType, Err: err}
}
