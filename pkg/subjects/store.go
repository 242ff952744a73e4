// Package subjects defines the contract to the external subject store
// (patients, appointments) and a redis-backed read cache over it.
package subjects

import (
	"context"
	"time"
)

// Task is a follow-up work item created against a subject.
type Task struct {
	SubjectID string     `json:"subject_id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	DueAt     *time.Time `json:"due_at,omitempty"`
}

// LastVisit pairs a subject with their most recent completed visit, for the
// poller's elapsed-days computation.
type LastVisit struct {
	SubjectID string    `json:"subject_id"`
	VisitedAt time.Time `json:"visited_at"`
}

// Store is the engine's view of the subject store. Reads return nil without
// error when the subject does not exist. Writes go through the same store's
// write API; the engine never mutates subject records directly.
type Store interface {
	// Get returns the subject record as a free-form map, or nil if absent.
	Get(ctx context.Context, tenantID, id string) (map[string]any, error)

	// ApplyTag adds a tag to the subject's tag list. Idempotent.
	ApplyTag(ctx context.Context, tenantID, id, tag string) error

	// CreateTask records a follow-up task for the subject.
	CreateTask(ctx context.Context, tenantID string, task Task) error

	// LastVisits lists subjects with their most recent visit timestamp.
	LastVisits(ctx context.Context, tenantID string) ([]LastVisit, error)

	// BirthdaysOn lists subject ids whose birthday falls on the given
	// month and day.
	BirthdaysOn(ctx context.Context, tenantID string, month time.Month, day int) ([]string, error)
}
