// Package notify defines the outbound message channel contract and an HTTP
// gateway implementation. How messages ultimately reach patients (SMS, email)
// is the gateway's concern, not the engine's.
package notify

import "context"

// Message is one rendered outbound message for a subject.
type Message struct {
	TenantID  string `json:"tenant_id"`
	SubjectID string `json:"subject_id"`
	Contact   string `json:"contact"`
	Channel   string `json:"channel,omitempty"` // sms, email; gateway default when empty
	Body      string `json:"body"`
}

// Channel dispatches rendered messages. Failures surface to the caller and
// terminate the owning execution as failed.
type Channel interface {
	Send(ctx context.Context, message Message) error
}
