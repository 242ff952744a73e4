package models

import "time"

// ExecutionStatus is the terminal state machine for one workflow run.
// Executions are created already running; there is no pending state.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// StepStatus records the outcome of one action within an execution.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusScheduled StepStatus = "scheduled"
)

// StepResult is one entry in an execution's completed-action log.
type StepResult struct {
	ActionType        ActionType `json:"action_type"`
	Status            StepStatus `json:"status"`
	ScheduledActionID string     `json:"scheduled_action_id,omitempty"`
	Detail            string     `json:"detail,omitempty"`
	CompletedAt       time.Time  `json:"completed_at"`
}

// Execution is the record of one workflow run against one subject.
// TotalSteps is fixed at creation time from the workflow's action list; a
// later edit to the workflow does not change in-flight executions.
type Execution struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	WorkflowID   string          `json:"workflow_id"`
	SubjectID    string          `json:"subject_id"`
	RelatedID    string          `json:"related_id,omitempty"`
	TriggerType  TriggerType     `json:"trigger_type"`
	TriggerData  map[string]any  `json:"trigger_data,omitempty"`
	Status       ExecutionStatus `json:"status"`
	TotalSteps   int             `json:"total_steps"`
	CurrentStep  int             `json:"current_step"`
	Steps        []StepResult    `json:"steps,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the execution has reached a final status.
func (e *Execution) Terminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusFailed
}
