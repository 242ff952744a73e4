// Package createtask implements the create_task action: it records a
// follow-up work item for clinic staff against the subject.
package createtask

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/protocol"
	"github.com/careloop/careloop/pkg/subjects"
	"github.com/careloop/careloop/pkg/template"
)

type ActionFactory struct {
	store subjects.Store
}

func NewActionFactory(store subjects.Store) *ActionFactory {
	return &ActionFactory{store: store}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionCreateTask
}

func (f *ActionFactory) Create() protocol.Action {
	return &Action{store: f.store}
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Task title. Supports templating against the subject record.",
				"examples":    []string{"Call {{.subject.first_name}} about missed appointment"},
			},
			"notes": map[string]any{
				"type":        "string",
				"description": "Free-form task notes",
			},
			"due_in_days": map[string]any{
				"type":        "number",
				"description": "Days from now until the task is due",
				"minimum":     0,
			},
		},
		"required": []string{"title"},
	}
}

type Action struct {
	store subjects.Store
}

func (a *Action) Execute(ctx context.Context, req protocol.Request) (string, error) {
	task, err := buildTask(req.SubjectID, req.Subject, req.Params)
	if err != nil {
		return "", err
	}

	err = a.store.CreateTask(ctx, req.TenantID, task)
	if err != nil {
		return "", fmt.Errorf("task creation failed: %w", err)
	}

	return fmt.Sprintf("created task %q", task.Title), nil
}

func (a *Action) Preview(subject map[string]any, params map[string]any) (string, error) {
	task, err := buildTask("", subject, params)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("would create task %q", task.Title), nil
}

func buildTask(subjectID string, subject map[string]any, params map[string]any) (subjects.Task, error) {
	titleTemplate, ok := params["title"].(string)
	if !ok || titleTemplate == "" {
		return subjects.Task{}, errors.New("create_task requires a title param")
	}

	title, err := template.Render(titleTemplate, subject, nil)
	if err != nil {
		return subjects.Task{}, err
	}

	task := subjects.Task{
		SubjectID: subjectID,
		Title:     title,
	}

	if notes, hasNotes := params["notes"].(string); hasNotes {
		task.Notes = notes
	}

	if days, hasDue := toFloat(params["due_in_days"]); hasDue {
		dueAt := time.Now().UTC().Add(time.Duration(days*24) * time.Hour)
		task.DueAt = &dueAt
	}

	return task, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

var _ protocol.ActionFactory = (*ActionFactory)(nil)
