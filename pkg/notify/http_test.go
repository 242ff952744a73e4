package notify_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/careloop/pkg/notify"
)

func TestHTTPChannelSend(t *testing.T) {
	t.Parallel()

	var got notify.Message

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	channel := notify.NewHTTPChannel(server.URL, "secret", time.Second, slog.Default())

	message := notify.Message{
		TenantID:  "clinic-1",
		SubjectID: "patient-1",
		Channel:   "sms",
		Body:      "See you tomorrow!",
	}
	require.NoError(t, channel.Send(t.Context(), message))
	assert.Equal(t, "See you tomorrow!", got.Body)
	assert.Equal(t, "patient-1", got.SubjectID)
}

func TestHTTPChannelSendGatewayError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	channel := notify.NewHTTPChannel(server.URL, "", time.Second, slog.Default())

	err := channel.Send(t.Context(), notify.Message{TenantID: "clinic-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestHTTPChannelSendNoAuthHeaderWithoutKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := notify.NewHTTPChannel(server.URL, "", time.Second, slog.Default())

	require.NoError(t, channel.Send(t.Context(), notify.Message{TenantID: "clinic-1"}))
}
