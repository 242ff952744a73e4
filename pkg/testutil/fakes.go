// Package testutil provides in-memory fakes for the engine's external
// collaborators: the subject store and the notification channel.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/careloop/careloop/pkg/notify"
	"github.com/careloop/careloop/pkg/subjects"
)

// FakeSubjectStore is an in-memory subjects.Store recording tag and task
// writes for assertions.
type FakeSubjectStore struct {
	mu sync.Mutex

	Records    map[string]map[string]any // key: tenantID/subjectID
	Tags       []string                  // "tenantID/subjectID:tag"
	Tasks      []subjects.Task
	Visits     map[string][]subjects.LastVisit // key: tenantID
	Birthdays  map[string][]string             // key: tenantID/MM-DD
	FailWrites bool
}

func NewFakeSubjectStore() *FakeSubjectStore {
	return &FakeSubjectStore{
		Records:   make(map[string]map[string]any),
		Visits:    make(map[string][]subjects.LastVisit),
		Birthdays: make(map[string][]string),
	}
}

// AddSubject registers a subject record.
func (s *FakeSubjectStore) AddSubject(tenantID, id string, record map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Records[tenantID+"/"+id] = record
}

func (s *FakeSubjectStore) Get(_ context.Context, tenantID, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.Records[tenantID+"/"+id]
	if !ok {
		return nil, nil
	}

	return record, nil
}

func (s *FakeSubjectStore) ApplyTag(_ context.Context, tenantID, id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return errors.New("subject store write refused")
	}

	s.Tags = append(s.Tags, fmt.Sprintf("%s/%s:%s", tenantID, id, tag))

	return nil
}

func (s *FakeSubjectStore) CreateTask(_ context.Context, _ string, task subjects.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return errors.New("subject store write refused")
	}

	s.Tasks = append(s.Tasks, task)

	return nil
}

func (s *FakeSubjectStore) LastVisits(_ context.Context, tenantID string) ([]subjects.LastVisit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.Visits[tenantID], nil
}

func (s *FakeSubjectStore) BirthdaysOn(_ context.Context, tenantID string, month time.Month, day int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s/%02d-%02d", tenantID, month, day)

	return s.Birthdays[key], nil
}

// AddBirthday registers a subject birthday for BirthdaysOn lookups.
func (s *FakeSubjectStore) AddBirthday(tenantID string, month time.Month, day int, subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s/%02d-%02d", tenantID, month, day)
	s.Birthdays[key] = append(s.Birthdays[key], subjectID)
}

var _ subjects.Store = (*FakeSubjectStore)(nil)

// FakeChannel is an in-memory notify.Channel recording sent messages.
type FakeChannel struct {
	mu sync.Mutex

	Sent     []notify.Message
	FailSend bool
}

func NewFakeChannel() *FakeChannel {
	return &FakeChannel{}
}

func (c *FakeChannel) Send(_ context.Context, message notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailSend {
		return errors.New("gateway unavailable")
	}

	c.Sent = append(c.Sent, message)

	return nil
}

// SentCount returns the number of dispatched messages.
func (c *FakeChannel) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.Sent)
}

var _ notify.Channel = (*FakeChannel)(nil)
