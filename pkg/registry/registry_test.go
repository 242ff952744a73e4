package registry_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/careloop/pkg/actions/applytag"
	"github.com/careloop/careloop/pkg/actions/createtask"
	"github.com/careloop/careloop/pkg/actions/sendmessage"
	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/registry"
	"github.com/careloop/careloop/pkg/testutil"
)

func newTestRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterAction(sendmessage.NewActionFactory(testutil.NewFakeChannel()))
	reg.RegisterAction(applytag.NewActionFactory(testutil.NewFakeSubjectStore()))
	reg.RegisterAction(createtask.NewActionFactory(testutil.NewFakeSubjectStore()))

	return reg
}

func TestCreateAction(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	action, err := reg.CreateAction(models.ActionSendMessage)
	require.NoError(t, err)
	assert.NotNil(t, action)

	_, err = reg.CreateAction("launch_rocket")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestActionTypes(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	types := reg.ActionTypes()
	assert.ElementsMatch(t, []models.ActionType{
		models.ActionSendMessage,
		models.ActionApplyTag,
		models.ActionCreateTask,
	}, types)
}

func TestValidateParams(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	tests := []struct {
		name       string
		actionType models.ActionType
		params     map[string]any
		wantErr    bool
	}{
		{
			name:       "valid send_message params",
			actionType: models.ActionSendMessage,
			params:     map[string]any{"message": "Hi there", "channel": "sms"},
		},
		{
			name:       "send_message missing message",
			actionType: models.ActionSendMessage,
			params:     map[string]any{"channel": "sms"},
			wantErr:    true,
		},
		{
			name:       "send_message bad channel enum",
			actionType: models.ActionSendMessage,
			params:     map[string]any{"message": "Hi", "channel": "carrier-pigeon"},
			wantErr:    true,
		},
		{
			name:       "valid apply_tag params",
			actionType: models.ActionApplyTag,
			params:     map[string]any{"tag": "vip"},
		},
		{
			name:       "apply_tag empty tag",
			actionType: models.ActionApplyTag,
			params:     map[string]any{"tag": ""},
			wantErr:    true,
		},
		{
			name:       "valid create_task params",
			actionType: models.ActionCreateTask,
			params:     map[string]any{"title": "Call patient", "due_in_days": 2},
		},
		{
			name:       "create_task nil params",
			actionType: models.ActionCreateTask,
			params:     nil,
			wantErr:    true,
		},
		{
			name:       "unregistered action type",
			actionType: "launch_rocket",
			params:     map[string]any{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := reg.ValidateParams(tt.actionType, tt.params)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
