// Package sendmessage implements the send_message action: it renders a
// message template against the subject record and dispatches it through the
// notification channel.
package sendmessage

import (
	"context"
	"errors"
	"fmt"

	"github.com/careloop/careloop/pkg/conditions"
	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/notify"
	"github.com/careloop/careloop/pkg/protocol"
	"github.com/careloop/careloop/pkg/template"
)

const defaultContactField = "phone"

type ActionFactory struct {
	channel notify.Channel
}

func NewActionFactory(channel notify.Channel) *ActionFactory {
	return &ActionFactory{channel: channel}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionSendMessage
}

func (f *ActionFactory) Create() protocol.Action {
	return &Action{channel: f.channel}
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message body. Supports templating against the subject record.",
				"examples": []string{
					"Hi {{.subject.first_name}}, we missed you today. Reply to reschedule.",
					"Happy birthday {{.subject.first_name}}!",
				},
			},
			"channel": map[string]any{
				"type":        "string",
				"description": "Delivery channel handled by the gateway",
				"enum":        []string{"sms", "email"},
			},
			"contact_field": map[string]any{
				"type":        "string",
				"description": "Subject field holding the destination contact (default: phone)",
			},
		},
		"required": []string{"message"},
	}
}

type Action struct {
	channel notify.Channel
}

func (a *Action) Execute(ctx context.Context, req protocol.Request) (string, error) {
	body, contact, err := a.render(req.Subject, req.Params)
	if err != nil {
		return "", err
	}

	channelName, _ := req.Params["channel"].(string)

	message := notify.Message{
		TenantID:  req.TenantID,
		SubjectID: req.SubjectID,
		Contact:   contact,
		Channel:   channelName,
		Body:      body,
	}

	err = a.channel.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("message dispatch failed: %w", err)
	}

	return fmt.Sprintf("sent %q to %s", body, contact), nil
}

// Preview renders the message without dispatching it.
func (a *Action) Preview(subject map[string]any, params map[string]any) (string, error) {
	body, contact, err := a.render(subject, params)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("would send %q to %s", body, contact), nil
}

func (a *Action) render(subject map[string]any, params map[string]any) (body, contact string, err error) {
	messageTemplate, ok := params["message"].(string)
	if !ok || messageTemplate == "" {
		return "", "", errors.New("send_message requires a message param")
	}

	body, err = template.Render(messageTemplate, subject, nil)
	if err != nil {
		return "", "", err
	}

	contactField := defaultContactField
	if field, hasField := params["contact_field"].(string); hasField && field != "" {
		contactField = field
	}

	value, present := conditions.Resolve(subject, contactField)
	if !present {
		return "", "", fmt.Errorf("subject has no %s contact field", contactField)
	}

	contact = fmt.Sprintf("%v", value)
	if contact == "" {
		return "", "", fmt.Errorf("subject %s contact field is empty", contactField)
	}

	return body, contact, nil
}

var _ protocol.ActionFactory = (*ActionFactory)(nil)
