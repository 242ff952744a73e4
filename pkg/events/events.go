package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Bus topics.
const (
	// DomainTopic carries trigger events from producers into the engine.
	DomainTopic = "careloop.domain.events"

	// LifecycleTopic carries engine bookkeeping events out to observers.
	LifecycleTopic = "careloop.lifecycle.events"
)

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TriggerEventReceived EventType = "trigger.received"

	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"

	ScheduledActionCompletedEvent EventType = "scheduled_action.completed"
	ScheduledActionFailedEvent    EventType = "scheduled_action.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a fresh event envelope.
func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	SubjectID   string `json:"subject_id"`
	TriggerType string `json:"trigger_type"`
	TotalSteps  int    `json:"total_steps"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	WorkflowID     string `json:"workflow_id"`
	SubjectID      string `json:"subject_id"`
	StepsCompleted int    `json:"steps_completed"`
	StepsScheduled int    `json:"steps_scheduled"`
	DurationMs     int64  `json:"duration_ms"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	SubjectID   string `json:"subject_id"`
	FailedStep  int    `json:"failed_step"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ScheduledActionCompleted struct {
	BaseEvent

	ScheduledActionID string `json:"scheduled_action_id"`
	ExecutionID       string `json:"execution_id"`
	ActionType        string `json:"action_type"`
}

func (e ScheduledActionCompleted) GetType() EventType {
	return ScheduledActionCompletedEvent
}

type ScheduledActionFailed struct {
	BaseEvent

	ScheduledActionID string `json:"scheduled_action_id"`
	ExecutionID       string `json:"execution_id"`
	ActionType        string `json:"action_type"`
	Error             string `json:"error"`
}

func (e ScheduledActionFailed) GetType() EventType {
	return ScheduledActionFailedEvent
}
