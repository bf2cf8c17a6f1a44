package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"whisperq/internal/api"
	"whisperq/internal/database"
	"whisperq/internal/metrics"
	"whisperq/internal/models"
	"whisperq/internal/service"
	"whisperq/internal/whisper"
	"whisperq/pkg/twitch"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const botUserID = "1000"

// SentWhisper is a whisper received by the fake Helix server
type SentWhisper struct {
	ToUserID string
	Message  string
}

// FakeHelix records whisper requests and answers with a configurable status
type FakeHelix struct {
	mu     sync.Mutex
	sent   []SentWhisper
	status int
	server *httptest.Server
}

func newFakeHelix(t *testing.T) *FakeHelix {
	t.Helper()
	h := &FakeHelix{status: http.StatusNoContent}
	h.server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.server.Close)
	return h
}

func (h *FakeHelix) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/whispers") {
		http.NotFound(w, r)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == http.StatusNoContent {
		h.sent = append(h.sent, SentWhisper{ToUserID: r.URL.Query().Get("to_user_id"), Message: body.Message})
	}
	w.WriteHeader(h.status)
}

// SetStatus changes the status returned for subsequent whisper requests
func (h *FakeHelix) SetStatus(status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
}

// Sent returns a copy of the whispers accepted so far
func (h *FakeHelix) Sent() []SentWhisper {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]SentWhisper(nil), h.sent...)
}

// Clock is a manually advanced time source shared by the dispatcher
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestEnvironment wires the whole service against a temp SQLite file and a
// fake Helix server. Restart rebuilds everything but the database file.
type TestEnvironment struct {
	t        *testing.T
	DBPath   string
	Config   models.WhisperConfig
	Clock    *Clock
	Helix    *FakeHelix
	Registry *metrics.Registry

	DB         *database.Database
	Dispatcher *whisper.Dispatcher
	Pump       *service.WhisperPump
	API        *httptest.Server
}

// NewTestEnvironment starts an environment with the given limits
func NewTestEnvironment(t *testing.T, cfg models.WhisperConfig) *TestEnvironment {
	t.Helper()
	env := &TestEnvironment{
		t:      t,
		DBPath: filepath.Join(t.TempDir(), "whisperq.db"),
		Config: cfg,
		Clock:  &Clock{now: time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)},
		Helix:  newFakeHelix(t),
	}
	env.start()
	t.Cleanup(env.stop)
	return env
}

func (env *TestEnvironment) start() {
	t := env.t
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.New(env.DBPath)
	require.NoError(t, err)

	env.Registry = metrics.NewRegistry()
	dispatcher, err := whisper.NewDispatcher(context.Background(), db,
		env.Config.PerSecondLimit, env.Config.PerMinuteLimit,
		whisper.WithLogger(logger),
		whisper.WithClock(env.Clock.Now),
		whisper.WithMetrics(env.Registry),
		whisper.WithDefaultMaxRecipients(env.Config.DefaultMaxWhisperRecipients),
	)
	require.NoError(t, err)

	helix := twitch.NewHelixClient(env.Helix.server.URL+"/helix", "client", "token", botUserID, env.Helix.server.Client())

	env.DB = db
	env.Dispatcher = dispatcher
	env.Pump = service.NewWhisperPump(dispatcher, helix, env.Config, logger, env.Registry)
	env.API = httptest.NewServer(api.NewServer(models.ServerConfig{}, dispatcher, db, env.Registry, logger).Handler())
}

func (env *TestEnvironment) stop() {
	if env.API != nil {
		env.API.Close()
		env.API = nil
	}
	if env.DB != nil {
		_ = env.DB.Close()
		env.DB = nil
	}
}

// Restart simulates a process restart on the same database file
func (env *TestEnvironment) Restart() {
	env.stop()
	env.start()
}

// Tick runs one pump tick
func (env *TestEnvironment) Tick() int {
	return env.Pump.Tick(context.Background())
}

// Enqueue posts a whisper through the admin API and returns the status code
func (env *TestEnvironment) Enqueue(displayName, userID, text string) int {
	env.t.Helper()
	body, err := json.Marshal(map[string]string{
		"display_name": displayName,
		"user_id":      userID,
		"text":         text,
	})
	require.NoError(env.t, err)

	resp, err := http.Post(env.API.URL+"/whispers", "application/json", strings.NewReader(string(body)))
	require.NoError(env.t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

// Freeze posts to the freeze endpoint
func (env *TestEnvironment) Freeze() whisper.Status {
	env.t.Helper()
	resp, err := http.Post(env.API.URL+"/whispers/freeze", "application/json", nil)
	require.NoError(env.t, err)
	defer resp.Body.Close()
	require.Equal(env.t, http.StatusOK, resp.StatusCode)

	var status whisper.Status
	require.NoError(env.t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

// Status fetches the dispatcher snapshot through the admin API
func (env *TestEnvironment) Status() whisper.Status {
	env.t.Helper()
	resp, err := http.Get(env.API.URL + "/whispers/status")
	require.NoError(env.t, err)
	defer resp.Body.Close()
	require.Equal(env.t, http.StatusOK, resp.StatusCode)

	var status whisper.Status
	require.NoError(env.t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}
