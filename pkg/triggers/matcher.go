// Package triggers matches incoming domain events against workflow trigger
// definitions.
package triggers

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/models"
)

// Matcher decides whether a trigger event satisfies a workflow's trigger
// definition. Matching combines a required-field check per trigger type with
// optional filters from the workflow's trigger configuration. Unknown trigger
// types never match.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a trigger matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// Matches reports whether the event satisfies the workflow's trigger
// definition. The orchestrator has already filtered by exact trigger type;
// this applies the per-type payload requirements and config filters.
func (m *Matcher) Matches(workflow *models.Workflow, event events.TriggerEvent) bool {
	if workflow.TriggerType != event.TriggerType {
		return false
	}

	switch workflow.TriggerType {
	case models.TriggerSubjectCreated, models.TriggerBirthday:
		_, hasSubject := event.SubjectID()

		return hasSubject

	case models.TriggerAppointmentScheduled,
		models.TriggerAppointmentCompleted,
		models.TriggerAppointmentMissed,
		models.TriggerAppointmentCancelled:
		return m.matchAppointment(workflow, event)

	case models.TriggerDaysSinceVisit:
		return m.matchDaysSinceVisit(workflow, event)

	case models.TriggerLifecycleChange:
		return m.matchLifecycleChange(workflow, event)

	case models.TriggerCustom:
		return m.matchCustom(workflow, event)

	default:
		m.logger.Warn("Unknown trigger type never matches",
			"trigger_type", workflow.TriggerType,
			"workflow_id", workflow.ID)

		return false
	}
}

func (m *Matcher) matchAppointment(workflow *models.Workflow, event events.TriggerEvent) bool {
	if _, hasSubject := event.SubjectID(); !hasSubject {
		return false
	}

	// Optional: restrict to a specific appointment type.
	if configType, exists := workflow.TriggerConfig[events.KeyAppointmentType]; exists {
		eventType, hasType := event.Payload[events.KeyAppointmentType]
		if !hasType {
			return false
		}

		if fmt.Sprintf("%v", configType) != fmt.Sprintf("%v", eventType) {
			return false
		}
	}

	return true
}

// matchDaysSinceVisit matches when the event's computed elapsed-days value is
// at or above the configured threshold. The elapsed time itself is computed by
// the poller, never here.
func (m *Matcher) matchDaysSinceVisit(workflow *models.Workflow, event events.TriggerEvent) bool {
	if _, hasSubject := event.SubjectID(); !hasSubject {
		return false
	}

	elapsed, ok := payloadNumber(event.Payload, events.KeyDaysSinceVisit)
	if !ok {
		return false
	}

	threshold, ok := payloadNumber(workflow.TriggerConfig, "days")
	if !ok {
		return false
	}

	return elapsed >= threshold
}

func (m *Matcher) matchLifecycleChange(workflow *models.Workflow, event events.TriggerEvent) bool {
	if _, hasSubject := event.SubjectID(); !hasSubject {
		return false
	}

	// Optional from/to stage filters.
	for _, key := range []string{events.KeyFromStage, events.KeyToStage} {
		configStage, exists := workflow.TriggerConfig[key]
		if !exists {
			continue
		}

		eventStage, hasStage := event.Payload[key]
		if !hasStage {
			return false
		}

		if fmt.Sprintf("%v", configStage) != fmt.Sprintf("%v", eventStage) {
			return false
		}
	}

	return true
}

// matchCustom requires the configured event name to match exactly.
func (m *Matcher) matchCustom(workflow *models.Workflow, event events.TriggerEvent) bool {
	configName, exists := workflow.TriggerConfig[events.KeyEventName]
	if !exists {
		return false
	}

	eventName, hasName := event.Payload[events.KeyEventName]
	if !hasName {
		return false
	}

	return fmt.Sprintf("%v", configName) == fmt.Sprintf("%v", eventName)
}

func payloadNumber(payload map[string]any, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}

	value, exists := payload[key]
	if !exists {
		return 0, false
	}

	switch n := value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}
