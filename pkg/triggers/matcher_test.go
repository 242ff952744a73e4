package triggers_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/triggers"
	"github.com/stretchr/testify/assert"
)

func newMatcher() *triggers.Matcher {
	return triggers.NewMatcher(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func workflowWithTrigger(triggerType models.TriggerType, config map[string]any) *models.Workflow {
	return &models.Workflow{
		ID:            "wf-1",
		TenantID:      "tenant-1",
		TriggerType:   triggerType,
		TriggerConfig: config,
		Active:        true,
	}
}

func triggerEvent(triggerType models.TriggerType, payload map[string]any) events.TriggerEvent {
	return events.TriggerEvent{
		ID:          "evt-1",
		TenantID:    "tenant-1",
		TriggerType: triggerType,
		Payload:     payload,
	}
}

func TestMatchesSubjectCreated(t *testing.T) {
	matcher := newMatcher()
	workflow := workflowWithTrigger(models.TriggerSubjectCreated, nil)

	assert.True(t, matcher.Matches(workflow, triggerEvent(models.TriggerSubjectCreated,
		map[string]any{events.KeySubjectID: "pat-1"})))

	// Missing subject id fails the required-field check.
	assert.False(t, matcher.Matches(workflow, triggerEvent(models.TriggerSubjectCreated, map[string]any{})))

	// Different trigger type never matches.
	assert.False(t, matcher.Matches(workflow, triggerEvent(models.TriggerBirthday,
		map[string]any{events.KeySubjectID: "pat-1"})))
}

func TestMatchesAppointmentTypeFilter(t *testing.T) {
	matcher := newMatcher()

	tests := []struct {
		name    string
		config  map[string]any
		payload map[string]any
		want    bool
	}{
		{
			name:    "no filter matches any appointment",
			config:  nil,
			payload: map[string]any{events.KeySubjectID: "pat-1"},
			want:    true,
		},
		{
			name:    "filter satisfied",
			config:  map[string]any{events.KeyAppointmentType: "initial_exam"},
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyAppointmentType: "initial_exam"},
			want:    true,
		},
		{
			name:    "filter mismatch",
			config:  map[string]any{events.KeyAppointmentType: "initial_exam"},
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyAppointmentType: "adjustment"},
			want:    false,
		},
		{
			name:    "filter present but event lacks the field",
			config:  map[string]any{events.KeyAppointmentType: "initial_exam"},
			payload: map[string]any{events.KeySubjectID: "pat-1"},
			want:    false,
		},
		{
			name:    "missing subject id",
			config:  nil,
			payload: map[string]any{events.KeyAppointmentType: "initial_exam"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := workflowWithTrigger(models.TriggerAppointmentMissed, tt.config)
			event := triggerEvent(models.TriggerAppointmentMissed, tt.payload)
			assert.Equal(t, tt.want, matcher.Matches(workflow, event))
		})
	}
}

func TestMatchesDaysSinceVisit(t *testing.T) {
	matcher := newMatcher()

	tests := []struct {
		name    string
		config  map[string]any
		payload map[string]any
		want    bool
	}{
		{
			name:    "elapsed at threshold",
			config:  map[string]any{"days": 90},
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyDaysSinceVisit: 90},
			want:    true,
		},
		{
			name:    "elapsed above threshold",
			config:  map[string]any{"days": 90},
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyDaysSinceVisit: 120.0},
			want:    true,
		},
		{
			name:    "elapsed below threshold",
			config:  map[string]any{"days": 90},
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyDaysSinceVisit: 45},
			want:    false,
		},
		{
			name:    "event lacks computed value",
			config:  map[string]any{"days": 90},
			payload: map[string]any{events.KeySubjectID: "pat-1"},
			want:    false,
		},
		{
			name:    "workflow lacks threshold",
			config:  nil,
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyDaysSinceVisit: 120},
			want:    false,
		},
		{
			name:    "string-shaped numbers coerce",
			config:  map[string]any{"days": "30"},
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyDaysSinceVisit: "31"},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := workflowWithTrigger(models.TriggerDaysSinceVisit, tt.config)
			event := triggerEvent(models.TriggerDaysSinceVisit, tt.payload)
			assert.Equal(t, tt.want, matcher.Matches(workflow, event))
		})
	}
}

func TestMatchesLifecycleChange(t *testing.T) {
	matcher := newMatcher()

	tests := []struct {
		name    string
		config  map[string]any
		payload map[string]any
		want    bool
	}{
		{
			name:    "no stage filters",
			config:  nil,
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyFromStage: "lead", events.KeyToStage: "active"},
			want:    true,
		},
		{
			name:    "both filters satisfied",
			config:  map[string]any{events.KeyFromStage: "lead", events.KeyToStage: "active"},
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyFromStage: "lead", events.KeyToStage: "active"},
			want:    true,
		},
		{
			name:    "to-stage mismatch",
			config:  map[string]any{events.KeyToStage: "active"},
			payload: map[string]any{events.KeySubjectID: "pat-1", events.KeyFromStage: "lead", events.KeyToStage: "dormant"},
			want:    false,
		},
		{
			name:    "filter present but event lacks stage",
			config:  map[string]any{events.KeyFromStage: "lead"},
			payload: map[string]any{events.KeySubjectID: "pat-1"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := workflowWithTrigger(models.TriggerLifecycleChange, tt.config)
			event := triggerEvent(models.TriggerLifecycleChange, tt.payload)
			assert.Equal(t, tt.want, matcher.Matches(workflow, event))
		})
	}
}

func TestMatchesCustom(t *testing.T) {
	matcher := newMatcher()

	workflow := workflowWithTrigger(models.TriggerCustom, map[string]any{events.KeyEventName: "form_submitted"})

	assert.True(t, matcher.Matches(workflow, triggerEvent(models.TriggerCustom,
		map[string]any{events.KeyEventName: "form_submitted"})))
	assert.False(t, matcher.Matches(workflow, triggerEvent(models.TriggerCustom,
		map[string]any{events.KeyEventName: "form_opened"})))
	assert.False(t, matcher.Matches(workflow, triggerEvent(models.TriggerCustom, map[string]any{})))

	// A custom trigger without a configured event name matches nothing.
	unconfigured := workflowWithTrigger(models.TriggerCustom, nil)
	assert.False(t, matcher.Matches(unconfigured, triggerEvent(models.TriggerCustom,
		map[string]any{events.KeyEventName: "form_submitted"})))
}

func TestMatchesUnknownTriggerTypeFailsClosed(t *testing.T) {
	matcher := newMatcher()

	unknown := models.TriggerType("appointment_rescheduled")
	workflow := workflowWithTrigger(unknown, nil)

	assert.False(t, matcher.Matches(workflow, triggerEvent(unknown,
		map[string]any{events.KeySubjectID: "pat-1"})))
}
