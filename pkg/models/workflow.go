// Package models defines the core domain models for patient-lifecycle automation.
package models

import "time"

// TriggerType identifies the domain event category a workflow listens for.
type TriggerType string

const (
	TriggerSubjectCreated        TriggerType = "subject_created"
	TriggerAppointmentScheduled  TriggerType = "appointment_scheduled"
	TriggerAppointmentCompleted  TriggerType = "appointment_completed"
	TriggerAppointmentMissed     TriggerType = "appointment_missed"
	TriggerAppointmentCancelled  TriggerType = "appointment_cancelled"
	TriggerDaysSinceVisit        TriggerType = "days_since_visit"
	TriggerBirthday              TriggerType = "birthday"
	TriggerLifecycleChange       TriggerType = "lifecycle_change"
	TriggerCustom                TriggerType = "custom"
)

// KnownTriggerTypes lists every trigger type the engine understands.
// Trigger types outside this set never match.
var KnownTriggerTypes = []TriggerType{
	TriggerSubjectCreated,
	TriggerAppointmentScheduled,
	TriggerAppointmentCompleted,
	TriggerAppointmentMissed,
	TriggerAppointmentCancelled,
	TriggerDaysSinceVisit,
	TriggerBirthday,
	TriggerLifecycleChange,
	TriggerCustom,
}

// IsKnown reports whether t is one of the supported trigger types.
func (t TriggerType) IsKnown() bool {
	for _, known := range KnownTriggerTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Condition is one boolean clause over the subject record. All conditions in a
// workflow combine with AND semantics.
type Condition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// ActionType identifies one of the closed set of effects a workflow can perform.
type ActionType string

const (
	ActionSendMessage ActionType = "send_message"
	ActionApplyTag    ActionType = "apply_tag"
	ActionCreateTask  ActionType = "create_task"
)

// Action is one step in a workflow's ordered action list. DelayHours of zero
// means run immediately; a positive value schedules the action that many hours
// after it is reached in the sequence.
type Action struct {
	Type       ActionType     `json:"type"        validate:"required"`
	DelayHours int            `json:"delay_hours" validate:"min=0"`
	Params     map[string]any `json:"params,omitempty"`
}

// Workflow is a tenant-owned automation definition. The engine treats it as
// read-only except for the aggregate run counters, which are incremented at
// the persistence layer after each execution.
type Workflow struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"           validate:"required"`
	Name              string         `json:"name"                validate:"required,min=3"`
	TriggerType       TriggerType    `json:"trigger_type"        validate:"required"`
	TriggerConfig     map[string]any `json:"trigger_config,omitempty"`
	Conditions        []Condition    `json:"conditions,omitempty"`
	Actions           []Action       `json:"actions"             validate:"required,min=1,dive"`
	Active            bool           `json:"active"`
	MaxRunsPerSubject int            `json:"max_runs_per_subject" validate:"min=0"`
	TotalRuns         int64          `json:"total_runs"`
	SuccessfulRuns    int64          `json:"successful_runs"`
	FailedRuns        int64          `json:"failed_runs"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
