// Package ws exposes the intake interview over a WebSocket connection, the
// transport the telephony bridge speaks: one connection per call, utterances
// in, prompts and events out.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/surreyclinic/intake/internal/logging"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/session"
)

const (
	// Client message types.
	msgStart     = "start"
	msgUtterance = "utterance"
	msgEnd       = "end"

	// Server message types.
	msgPrompt = "prompt"
	msgEvent  = "event"
	msgError  = "error"

	handshakeTimeout = 10 * time.Second
	maxMessageBytes  = 64 << 10
)

// clientMessage is what the bridge sends. A start message with a session_id
// attaches to a session created over HTTP; without one it creates a fresh
// session.
type clientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// serverMessage is what the bridge receives.
type serverMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	NodeID    string        `json:"node_id,omitempty"`
	Status    domain.Status `json:"status,omitempty"`
	Prompt    string        `json:"prompt,omitempty"`
	Event     *domain.Event `json:"event,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Handler upgrades connections and runs one interview per connection.
type Handler struct {
	orch   *session.Orchestrator
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates the WebSocket handler.
func NewHandler(orch *session.Orchestrator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		orch:   orch,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	ctx := r.Context()

	// First frame must be a start message.
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var hello clientMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != msgStart {
		h.writeError(conn, "expected a start message")
		return
	}
	conn.SetReadDeadline(time.Time{})

	var turn *session.Turn
	if hello.SessionID != "" {
		turn, err = h.orch.Resume(ctx, hello.SessionID)
	} else {
		turn, err = h.orch.Create(ctx, hello.Specialty)
	}
	if err != nil {
		h.writeError(conn, err.Error())
		return
	}
	sessionID := turn.Session.ID
	h.logger.Info("ws session started", "session_id", sessionID, "specialty", hello.Specialty, "attached", hello.SessionID != "")

	// A vanished connection mid-interview is an abandoned call.
	defer func() {
		if sess, err := h.orch.Get(ctx, sessionID); err == nil && !sess.Terminal() {
			if err := h.orch.End(ctx, sessionID, "connection closed"); err != nil {
				h.logger.Warn("failed to end session on disconnect", "session_id", sessionID, "err", err)
			}
		}
	}()

	h.writeTurn(conn, turn)

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case msgUtterance:
			turn, err := h.orch.HandleUtterance(ctx, sessionID, msg.Text)
			if err != nil {
				h.writeError(conn, err.Error())
				continue
			}
			h.writeTurn(conn, turn)
			if turn.Session.Terminal() {
				return
			}
		case msgEnd:
			reason := msg.Reason
			if reason == "" {
				reason = "ended by client"
			}
			if err := h.orch.End(ctx, sessionID, reason); err != nil {
				h.writeError(conn, err.Error())
			}
			return
		default:
			h.writeError(conn, "unknown message type: "+msg.Type)
		}
	}
}

func (h *Handler) writeTurn(conn *websocket.Conn, turn *session.Turn) {
	h.write(conn, serverMessage{
		Type:      msgPrompt,
		SessionID: turn.Session.ID,
		NodeID:    turn.Session.CurrentNodeID,
		Status:    turn.Session.Status,
		Prompt:    turn.Prompt,
	})
	for i := range turn.Events {
		h.write(conn, serverMessage{
			Type:      msgEvent,
			SessionID: turn.Session.ID,
			Event:     &turn.Events[i],
		})
	}
}

func (h *Handler) writeError(conn *websocket.Conn, msg string) {
	h.write(conn, serverMessage{Type: msgError, Error: msg})
}

func (h *Handler) write(conn *websocket.Conn, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal ws message", "err", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn("failed to write ws message", "err", err)
	}
}
