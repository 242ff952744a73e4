package models

import "time"

// ScheduledActionStatus is the lifecycle of a delayed action row. Transitions
// past pending are performed exclusively by the poller; a failed row is never
// retried automatically.
type ScheduledActionStatus string

const (
	ScheduledActionPending    ScheduledActionStatus = "pending"
	ScheduledActionProcessing ScheduledActionStatus = "processing"
	ScheduledActionCompleted  ScheduledActionStatus = "completed"
	ScheduledActionFailed     ScheduledActionStatus = "failed"
)

// ScheduledAction is a delayed action pulled out of an execution's action
// list, persisted until its delay elapses.
type ScheduledAction struct {
	ID           string                `json:"id"`
	TenantID     string                `json:"tenant_id"`
	ExecutionID  string                `json:"execution_id"`
	SubjectID    string                `json:"subject_id"`
	ActionType   ActionType            `json:"action_type"`
	Params       map[string]any        `json:"params,omitempty"`
	ScheduledFor time.Time             `json:"scheduled_for"`
	Status       ScheduledActionStatus `json:"status"`
	ErrorMessage string                `json:"error_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Due reports whether the action should be picked up by the poller at now.
func (sa *ScheduledAction) Due(now time.Time) bool {
	return sa.Status == ScheduledActionPending && !sa.ScheduledFor.After(now)
}
