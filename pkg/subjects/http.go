package subjects

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultRequestTimeout caps one subject-store call.
const DefaultRequestTimeout = 10 * time.Second

// HTTPStore talks to the clinic record system's REST API. Tenant scoping is
// carried in the URL path; authentication is a bearer token shared across
// tenants.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewHTTPStore creates a store rooted at baseURL (no trailing slash
// required). A non-positive timeout falls back to DefaultRequestTimeout.
func NewHTTPStore(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPStore {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &HTTPStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger.With("module", "subjects_http"),
	}
}

// Get returns the subject record, or nil when the store answers 404.
func (s *HTTPStore) Get(ctx context.Context, tenantID, id string) (map[string]any, error) {
	var record map[string]any

	found, err := s.doJSON(ctx, http.MethodGet,
		s.path(tenantID, "subjects", id), nil, &record)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return record, nil
}

// ApplyTag adds a tag to the subject's tag list.
func (s *HTTPStore) ApplyTag(ctx context.Context, tenantID, id, tag string) error {
	payload := map[string]string{"tag": tag}

	_, err := s.doJSON(ctx, http.MethodPost,
		s.path(tenantID, "subjects", id, "tags"), payload, nil)

	return err
}

// CreateTask records a follow-up task for the subject.
func (s *HTTPStore) CreateTask(ctx context.Context, tenantID string, task Task) error {
	_, err := s.doJSON(ctx, http.MethodPost,
		s.path(tenantID, "tasks"), task, nil)

	return err
}

// LastVisits lists subjects with their most recent completed visit.
func (s *HTTPStore) LastVisits(ctx context.Context, tenantID string) ([]LastVisit, error) {
	var response struct {
		Visits []LastVisit `json:"visits"`
	}

	_, err := s.doJSON(ctx, http.MethodGet,
		s.path(tenantID, "visits", "latest"), nil, &response)
	if err != nil {
		return nil, err
	}

	return response.Visits, nil
}

// BirthdaysOn lists subject ids whose birthday falls on the given month and
// day.
func (s *HTTPStore) BirthdaysOn(ctx context.Context, tenantID string, month time.Month, day int) ([]string, error) {
	var response struct {
		SubjectIDs []string `json:"subject_ids"`
	}

	endpoint := s.path(tenantID, "subjects", "birthdays") +
		fmt.Sprintf("?month=%d&day=%d", int(month), day)

	_, err := s.doJSON(ctx, http.MethodGet, endpoint, nil, &response)
	if err != nil {
		return nil, err
	}

	return response.SubjectIDs, nil
}

func (s *HTTPStore) path(tenantID string, segments ...string) string {
	endpoint := s.baseURL + "/tenants/" + url.PathEscape(tenantID)
	for _, segment := range segments {
		endpoint += "/" + url.PathEscape(segment)
	}

	return endpoint
}

// doJSON performs one request and decodes the response into out when
// non-nil. It reports found=false for a 404 instead of an error so callers
// can treat missing subjects as absence.
func (s *HTTPStore) doJSON(ctx context.Context, method, endpoint string, payload, out any) (bool, error) {
	var body io.Reader

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return false, fmt.Errorf("failed to marshal request: %w", err)
		}

		body = bytes.NewReader(raw)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, body)
	if err != nil {
		return false, fmt.Errorf("failed to create subject store request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("subject store request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("Failed to close subject store response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return false, fmt.Errorf("subject store returned status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode subject store response: %w", err)
		}
	}

	return true, nil
}

var _ Store = (*HTTPStore)(nil)
