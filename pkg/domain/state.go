package domain

import "time"

// Status defines the lifecycle state of a session.
type Status string

const (
	// StatusActive is the normal interview state.
	StatusActive Status = "active"
	// StatusEscalated means an emergency or stalled progress forced a human handoff.
	StatusEscalated Status = "escalated"
	// StatusCompleted means all required fields of a terminal node were collected.
	StatusCompleted Status = "completed"
	// StatusAbandoned means the caller disconnected (or declined) before completion.
	StatusAbandoned Status = "abandoned"
)

// Session represents the runtime snapshot of one call.
// It is owned exclusively by the session orchestrator; adapters only ever see
// copies loaded from the state store.
type Session struct {
	ID string `json:"id"`

	// Specialty is the hint the session was created with ("" for generic intake).
	Specialty string `json:"specialty,omitempty"`

	// CurrentNodeID is a back-reference into the immutable script,
	// never an owned Node value.
	CurrentNodeID string `json:"current_node_id"`

	Record *IntakeRecord `json:"record"`
	Status Status        `json:"status"`

	// Turns counts utterances processed for this session.
	Turns int `json:"turns"`

	// Repeats counts consecutive repeat/low-confidence turns on the current
	// node. Reset on any field merge or node transition; past the configured
	// limit the engine forces escalation.
	Repeats int `json:"repeats"`

	// EndReason records why a terminal status was reached
	// (emergency reason, "caller disconnected", ...).
	EndReason string `json:"end_reason,omitempty"`

	History []string `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a clean active session starting at the given entry node.
func NewSession(id, entryNodeID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            id,
		CurrentNodeID: entryNodeID,
		Record:        NewRecord(),
		Status:        StatusActive,
		History:       []string{entryNodeID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Terminal reports whether the session reached a final status.
// Terminal sessions accept no further turns.
func (s *Session) Terminal() bool {
	return s.Status != StatusActive
}

// MoveTo records a node transition.
func (s *Session) MoveTo(nodeID string) {
	s.CurrentNodeID = nodeID
	s.History = append(s.History, nodeID)
	s.Repeats = 0
}
