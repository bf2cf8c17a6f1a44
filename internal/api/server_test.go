package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"whisperq/internal/constants"
	"whisperq/internal/metrics"
	"whisperq/internal/models"
	"whisperq/internal/whisper"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	timers map[string]time.Time
	limit  *int
}

func (s *memStore) GetTimer(_ context.Context, name string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.timers[name]; ok {
		return &ts, nil
	}
	return nil, nil
}

func (s *memStore) SaveTimer(_ context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[name] = at
	return nil
}

func (s *memStore) GetMaxWhisperRecipients(_ context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit == nil {
		return 0, false, nil
	}
	return *s.limit, true, nil
}

func (s *memStore) SetMaxWhisperRecipients(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = &n
	return nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupServer(t *testing.T, health HealthChecker) (*Server, *whisper.Dispatcher, *memStore) {
	t.Helper()
	store := &memStore{timers: make(map[string]time.Time)}
	registry := metrics.NewRegistry()
	dispatcher, err := whisper.NewDispatcher(context.Background(), store, 3, 100,
		whisper.WithLogger(quietLogger()),
		whisper.WithMetrics(registry),
	)
	require.NoError(t, err)

	server := NewServer(models.ServerConfig{Port: constants.DefaultServerPort}, dispatcher, health, registry, quietLogger())
	return server, dispatcher, store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func TestServer_Health(t *testing.T) {
	server, _, _ := setupServer(t, pingFunc(func(context.Context) error { return nil }))
	rec := do(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	server, _, _ = setupServer(t, pingFunc(func(context.Context) error { return errors.New("disk I/O error") }))
	rec = do(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Enqueue(t *testing.T) {
	server, dispatcher, _ := setupServer(t, nil)

	rec := do(t, server, http.MethodPost, "/whispers", `{"display_name":"Alice","user_id":"42","text":"hello"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.False(t, resp.Frozen)
	assert.Equal(t, 1, resp.Backlog)

	pending := dispatcher.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, models.User{DisplayName: "Alice", ID: "42"}, pending[0].Recipient)
	assert.Equal(t, "hello", pending[0].Text)
}

func TestServer_EnqueueUnresolvedRecipient(t *testing.T) {
	server, dispatcher, _ := setupServer(t, nil)

	rec := do(t, server, http.MethodPost, "/whispers", `{"display_name":"Bob","text":"hi"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, dispatcher.Snapshot().UnresolvedBacklog)
}

func TestServer_EnqueueValidation(t *testing.T) {
	server, dispatcher, _ := setupServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"display_name":`},
		{"missing display name", `{"user_id":"1","text":"hi"}`},
		{"blank text", `{"display_name":"A","text":"   "}`},
		{"unknown field", `{"display_name":"A","text":"hi","priority":1}`},
		{"non-numeric user id", `{"display_name":"A","user_id":"abc","text":"hi"}`},
		{"text too long", `{"display_name":"A","text":"` + strings.Repeat("x", constants.MaxWhisperTextLength+1) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, server, http.MethodPost, "/whispers", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
	assert.Equal(t, 0, dispatcher.Backlog())
}

func TestServer_EnqueueTooLarge(t *testing.T) {
	server, _, _ := setupServer(t, nil)

	body := `{"display_name":"A","text":"` + strings.Repeat("x", constants.DefaultMaxWhisperRequestBytes) + `"}`
	rec := do(t, server, http.MethodPost, "/whispers", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_FreezeAndEnqueueWhileFrozen(t *testing.T) {
	server, dispatcher, store := setupServer(t, nil)
	dispatcher.Enqueue(models.User{DisplayName: "A", ID: "1"}, "before", time.Now())

	rec := do(t, server, http.MethodPost, "/whispers/freeze", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status whisper.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Frozen)
	assert.Equal(t, constants.FrozenMaxWhisperRecipients, status.MaxRecipients)
	assert.Equal(t, 1, status.Backlog)

	n, ok, err := store.GetMaxWhisperRecipients(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, constants.FrozenMaxWhisperRecipients, n)

	rec = do(t, server, http.MethodPost, "/whispers", `{"display_name":"B","user_id":"2","text":"after"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
	assert.True(t, resp.Frozen)
	assert.Equal(t, 1, resp.Backlog)
}

func TestServer_Status(t *testing.T) {
	server, dispatcher, _ := setupServer(t, nil)
	dispatcher.Enqueue(models.User{DisplayName: "A", ID: "1"}, "one", time.Now())

	rec := do(t, server, http.MethodGet, "/whispers/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status whisper.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Frozen)
	assert.Equal(t, 1, status.Backlog)
	assert.Equal(t, constants.DefaultMaxWhisperRecipients, status.MaxRecipients)
	assert.Equal(t, 3, status.AvailablePerSecond)
	assert.Equal(t, 100, status.AvailablePerMinute)
}

func TestServer_Metrics(t *testing.T) {
	server, _, _ := setupServer(t, nil)
	do(t, server, http.MethodPost, "/whispers", `{"display_name":"A","user_id":"1","text":"x"}`)

	rec := do(t, server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Contains(t, snap.Counters, metrics.WhispersEnqueued)
	assert.Equal(t, float64(1), snap.Gauges[metrics.WhisperBacklogSize].Value)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, _, _ := setupServer(t, nil)
	rec := do(t, server, http.MethodGet, "/whispers/freeze", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	server, _, _ := setupServer(t, nil)
	assert.NoError(t, server.Shutdown(context.Background()))
}
