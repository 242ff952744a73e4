// Package events defines the event types flowing into and out of the engine.
package events

import (
	"errors"
	"time"

	"github.com/careloop/careloop/pkg/models"
)

// ErrInvalidEventData indicates an event payload is missing required fields.
var ErrInvalidEventData = errors.New("invalid event data")

// Well-known payload keys. The payload is a free-form map whose shape is
// trigger-type specific; these are the keys the engine itself reads.
const (
	KeySubjectID       = "subject_id"
	KeyRelatedID       = "related_id"
	KeyAppointmentType = "appointment_type"
	KeyDaysSinceVisit  = "days_since_visit"
	KeyFromStage       = "from_stage"
	KeyToStage         = "to_stage"
	KeyEventName       = "event_name"
)

// TriggerEvent is one domain event delivered to the engine: a patient was
// created, an appointment completed, a birthday came up, and so on. Producers
// include the appointment and patient services and the poller itself.
type TriggerEvent struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenant_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	Payload     map[string]any     `json:"payload,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// GetType marks TriggerEvent as a bus event on the domain topic.
func (e TriggerEvent) GetType() EventType {
	return TriggerEventReceived
}

// SubjectID extracts the subject identifier from the payload, if present.
func (e TriggerEvent) SubjectID() (string, bool) {
	return e.payloadString(KeySubjectID)
}

// RelatedID extracts the optional secondary-entity identifier.
func (e TriggerEvent) RelatedID() string {
	id, _ := e.payloadString(KeyRelatedID)

	return id
}

func (e TriggerEvent) payloadString(key string) (string, bool) {
	if e.Payload == nil {
		return "", false
	}

	value, ok := e.Payload[key].(string)
	if !ok || value == "" {
		return "", false
	}

	return value, true
}

// Validate checks the minimum shape common to all trigger events.
func (e TriggerEvent) Validate() error {
	if e.TenantID == "" || e.TriggerType == "" {
		return ErrInvalidEventData
	}

	return nil
}
