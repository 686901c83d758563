package ws_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surreyclinic/intake/internal/adapters/ws"
	"github.com/surreyclinic/intake/internal/flow"
	"github.com/surreyclinic/intake/pkg/adapters/keyword"
	"github.com/surreyclinic/intake/pkg/adapters/memory"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/script"
	"github.com/surreyclinic/intake/pkg/session"
)

type message struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	NodeID    string        `json:"node_id,omitempty"`
	Status    domain.Status `json:"status,omitempty"`
	Prompt    string        `json:"prompt,omitempty"`
	Specialty string        `json:"specialty,omitempty"`
	Text      string        `json:"text,omitempty"`
	Event     *domain.Event `json:"event,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func dial(t *testing.T) (*websocket.Conn, *session.Orchestrator) {
	t.Helper()

	s := script.Default()
	specialties := make(map[string][]string)
	for name, sp := range s.Specialties() {
		specialties[name] = sp.Triggers
	}
	orch := session.New(flow.New(s), memory.NewStore(), keyword.New(specialties))

	srv := httptest.NewServer(ws.NewHandler(orch, nil))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn, orch
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	var msg message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandler_Interview(t *testing.T) {
	conn, _ := dial(t)

	require.NoError(t, conn.WriteJSON(message{Type: "start"}))
	opening := read(t, conn)
	assert.Equal(t, "prompt", opening.Type)
	assert.Equal(t, "entry", opening.NodeID)
	assert.NotEmpty(t, opening.SessionID)

	require.NoError(t, conn.WriteJSON(message{Type: "utterance", Text: "yes, that's fine"}))
	next := read(t, conn)
	assert.Equal(t, "chief_complaint", next.NodeID)
	assert.Equal(t, domain.StatusActive, next.Status)
}

func TestHandler_EmergencyEmitsEventAndCloses(t *testing.T) {
	conn, _ := dial(t)

	require.NoError(t, conn.WriteJSON(message{Type: "start"}))
	read(t, conn)

	require.NoError(t, conn.WriteJSON(message{Type: "utterance", Text: "please call an ambulance"}))

	prompt := read(t, conn)
	assert.Equal(t, "prompt", prompt.Type)
	assert.Equal(t, domain.StatusEscalated, prompt.Status)

	ev := read(t, conn)
	assert.Equal(t, "event", ev.Type)
	require.NotNil(t, ev.Event)
	assert.Equal(t, domain.EventStaffAlert, ev.Event.Type)

	// The interview is over; the server closes the connection.
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandler_AttachToExistingSession(t *testing.T) {
	conn, orch := dial(t)

	created, err := orch.Create(t.Context(), "")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(message{Type: "start", SessionID: created.Session.ID}))
	opening := read(t, conn)
	assert.Equal(t, "prompt", opening.Type)
	assert.Equal(t, created.Session.ID, opening.SessionID)
	assert.Equal(t, "entry", opening.NodeID)
	assert.NotEmpty(t, opening.Prompt)

	require.NoError(t, conn.WriteJSON(message{Type: "utterance", Text: "yes, that's fine"}))
	next := read(t, conn)
	assert.Equal(t, "chief_complaint", next.NodeID)
}

func TestHandler_AttachUnknownSession(t *testing.T) {
	conn, _ := dial(t)

	require.NoError(t, conn.WriteJSON(message{Type: "start", SessionID: "no-such-session"}))
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
}

func TestHandler_BadHandshake(t *testing.T) {
	conn, _ := dial(t)

	require.NoError(t, conn.WriteJSON(message{Type: "utterance", Text: "hello"}))
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
}

func TestHandler_DisconnectAbandonsSession(t *testing.T) {
	conn, orch := dial(t)

	require.NoError(t, conn.WriteJSON(message{Type: "start"}))
	opening := read(t, conn)
	sessionID := opening.SessionID

	conn.Close()

	require.Eventually(t, func() bool {
		_, err := orch.Get(t.Context(), sessionID)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond, "disconnect should end and delete the session")
}
