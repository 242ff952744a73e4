// Package applytag implements the apply_tag action: it adds a tag to the
// subject record through the subject store's write API.
package applytag

import (
	"context"
	"errors"
	"fmt"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/protocol"
	"github.com/careloop/careloop/pkg/subjects"
)

type ActionFactory struct {
	store subjects.Store
}

func NewActionFactory(store subjects.Store) *ActionFactory {
	return &ActionFactory{store: store}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionApplyTag
}

func (f *ActionFactory) Create() protocol.Action {
	return &Action{store: f.store}
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tag": map[string]any{
				"type":        "string",
				"description": "Tag to add to the subject record",
				"minLength":   1,
			},
		},
		"required": []string{"tag"},
	}
}

type Action struct {
	store subjects.Store
}

func (a *Action) Execute(ctx context.Context, req protocol.Request) (string, error) {
	tag, err := tagParam(req.Params)
	if err != nil {
		return "", err
	}

	err = a.store.ApplyTag(ctx, req.TenantID, req.SubjectID, tag)
	if err != nil {
		return "", fmt.Errorf("tag write failed: %w", err)
	}

	return fmt.Sprintf("applied tag %q", tag), nil
}

func (a *Action) Preview(_ map[string]any, params map[string]any) (string, error) {
	tag, err := tagParam(params)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("would apply tag %q", tag), nil
}

func tagParam(params map[string]any) (string, error) {
	tag, ok := params["tag"].(string)
	if !ok || tag == "" {
		return "", errors.New("apply_tag requires a tag param")
	}

	return tag, nil
}

var _ protocol.ActionFactory = (*ActionFactory)(nil)
