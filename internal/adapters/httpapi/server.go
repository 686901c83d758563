// Package httpapi exposes the session orchestrator over a JSON REST API,
// plus the SSE event stream the clinic dashboard consumes.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/surreyclinic/intake/internal/logging"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/observability"
	"github.com/surreyclinic/intake/pkg/session"
)

// Server wires the orchestrator to HTTP.
type Server struct {
	orch        *session.Orchestrator
	broadcaster *observability.Broadcaster
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithBroadcaster enables the /v1/events SSE stream.
func WithBroadcaster(b *observability.Broadcaster) Option {
	return func(s *Server) { s.broadcaster = b }
}

// WithMetrics mounts the Prometheus endpoint at /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger configures request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the HTTP server.
func NewServer(orch *session.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:   orch,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.createSession)
		r.Get("/sessions", s.listSessions)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.endSession)
			r.Post("/utterances", s.postUtterance)
		})
		if s.broadcaster != nil {
			r.Get("/events", s.streamEvents)
		}
	})

	return r
}

// --- request/response bodies ---

type createSessionRequest struct {
	Specialty string `json:"specialty,omitempty"`
}

type utteranceRequest struct {
	Utterance string `json:"utterance"`
}

type endSessionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type turnResponse struct {
	SessionID string         `json:"session_id"`
	NodeID    string         `json:"node_id"`
	Status    domain.Status  `json:"status"`
	Prompt    string         `json:"prompt"`
	Events    []domain.Event `json:"events,omitempty"`

	// TransportURL is the websocket endpoint the telephony bridge attaches
	// to with this session_id. Only set on session creation.
	TransportURL string `json:"transport_url,omitempty"`
}

type listResponse struct {
	Sessions []string `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	turn, err := s.orch.Create(r.Context(), body.Specialty)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, turnResponse{
		SessionID:    turn.Session.ID,
		NodeID:       turn.Session.CurrentNodeID,
		Status:       turn.Session.Status,
		Prompt:       turn.Prompt,
		TransportURL: "/ws",
	})
}

func (s *Server) postUtterance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Utterance == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("utterance must not be empty"))
		return
	}

	turn, err := s.orch.HandleUtterance(r.Context(), sessionID, body.Utterance)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, turnResponse{
		SessionID: turn.Session.ID,
		NodeID:    turn.Session.CurrentNodeID,
		Status:    turn.Session.Status,
		Prompt:    turn.Prompt,
		Events:    turn.Events,
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.orch.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, listResponse{Sessions: ids})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body endSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "ended by operator"
	}

	if err := s.orch.End(r.Context(), sessionID, body.Reason); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamEvents serves the engine event feed as server-sent events.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	events, cancel := s.broadcaster.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to marshal event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("request failed", "status", status, "err", err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrSessionTerminal), errors.Is(err, session.ErrEnded):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrUnknownSpecialty):
		s.writeError(w, http.StatusBadRequest, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}
