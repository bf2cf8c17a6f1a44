package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"whisperq/internal/constants"
	apperrors "whisperq/internal/errors"
	"whisperq/internal/metrics"
	"whisperq/internal/middleware"
	"whisperq/internal/models"
	"whisperq/internal/privacy"
	"whisperq/internal/tracing"
	"whisperq/internal/validation"
	"whisperq/internal/whisper"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// WhisperQueue is the dispatcher surface exposed over HTTP
type WhisperQueue interface {
	Enqueue(recipient models.User, text string, at time.Time)
	FreezeQueue()
	Frozen() bool
	Backlog() int
	Snapshot() whisper.Status
}

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type enqueueRequest struct {
	DisplayName string `json:"display_name"`
	UserID      string `json:"user_id"`
	Text        string `json:"text"`
}

type enqueueResponse struct {
	Accepted bool `json:"accepted"`
	Frozen   bool `json:"frozen"`
	Backlog  int  `json:"backlog"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Server is the admin HTTP API in front of the whisper dispatcher
type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	queue    WhisperQueue
	health   HealthChecker
	registry *metrics.Registry
	cfg      models.ServerConfig
	now      func() time.Time
	server   *http.Server
}

// NewServer builds the router. health and registry may be nil.
func NewServer(cfg models.ServerConfig, queue WhisperQueue, health HealthChecker, registry *metrics.Registry, logger *logrus.Logger) *Server {
	if registry == nil {
		registry = metrics.GetRegistry()
	}

	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		queue:    queue,
		health:   health,
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger, s.registry))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	whispers := s.router.PathPrefix("/whispers").Subrouter()
	whispers.HandleFunc("", s.handleEnqueue()).Methods(http.MethodPost)
	whispers.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	whispers.HandleFunc("/freeze", s.handleFreeze()).Methods(http.MethodPost)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting admin server on port %d", s.cfg.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.health != nil {
			if err := s.health.Ping(r.Context()); err != nil {
				err = apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "database unavailable")
				apperrors.LogWarn(s.logger.WithField("request_id", tracing.RequestID(r.Context())), err, "Health check failed")
				s.writeAppError(w, r, err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, s.queue.Snapshot())
	}
}

func (s *Server) handleEnqueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, constants.DefaultMaxWhisperRequestBytes)

		var req enqueueRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			s.writeAppError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid request body"))
			return
		}

		req.DisplayName = strings.TrimSpace(req.DisplayName)
		req.UserID = strings.TrimSpace(req.UserID)
		for _, validate := range []func() error{
			func() error { return validation.ValidateDisplayName(req.DisplayName) },
			func() error { return validation.ValidateUserID(req.UserID) },
			func() error { return validation.ValidateWhisperText(req.Text) },
		} {
			if err := validate(); err != nil {
				s.writeAppError(w, r, err)
				return
			}
		}

		frozen := s.queue.Frozen()
		s.queue.Enqueue(models.User{DisplayName: req.DisplayName, ID: req.UserID}, req.Text, s.now())

		s.logger.WithFields(logrus.Fields{
			"request_id": tracing.RequestID(r.Context()),
			"recipient":  privacy.MaskDisplayName(req.DisplayName),
			"resolved":   req.UserID != "",
			"frozen":     frozen,
		}).Debug("Whisper enqueue requested")

		s.writeJSON(w, r, http.StatusAccepted, enqueueResponse{
			Accepted: !frozen,
			Frozen:   frozen,
			Backlog:  s.queue.Backlog(),
		})
	}
}

func (s *Server) handleFreeze() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.WithField("request_id", tracing.RequestID(r.Context())).Warn("Whisper queue freeze requested")
		s.queue.FreezeQueue()
		s.writeJSON(w, r, http.StatusOK, s.queue.Snapshot())
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		s.writeJSON(w, r, http.StatusOK, s.registry.GetAllMetrics())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"request_id": tracing.RequestID(r.Context()),
			"error":      err,
		}).Error("Failed to encode response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeJSON(w, r, apperrors.HTTPStatus(err), errorResponse{
		Error:     apperrors.PublicMessage(err),
		RequestID: tracing.RequestID(r.Context()),
	})
}
