package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter        EventType = "node_enter"
	EventStaffAlert       EventType = "staff_alert"
	EventSessionCompleted EventType = "session_completed"
	EventSessionEnded     EventType = "session_ended"
)

// Event is a side-effecting notification emitted by the flow engine.
// StaffAlert and SessionCompleted events carry a snapshot of the IntakeRecord
// taken at emission time; later turns cannot mutate it.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"session_id"`
	NodeID    string        `json:"node_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Record    *IntakeRecord `json:"record,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ExtractionEvent describes one extraction adapter call, for observability.
type ExtractionEvent struct {
	SessionID string
	NodeID    string
	Duration  time.Duration
	TimedOut  bool
	Err       error
}

// LifecycleHooks defines callbacks for engine observability.
// All hooks are optional and must not block.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *Event)
	OnStaffAlert func(context.Context, *Event)
	OnCompleted  func(context.Context, *Event)
	OnExtraction func(context.Context, *ExtractionEvent)

	// Session accounting. The orchestrator fires these exactly once per
	// session regardless of transport: OnSessionStart on creation, OnTurn
	// per processed utterance, OnSessionEnd when the session reaches its
	// final status (completed, escalated or abandoned).
	OnSessionStart func(context.Context, *Session)
	OnTurn         func(context.Context, *Session)
	OnSessionEnd   func(context.Context, *Session)
}
