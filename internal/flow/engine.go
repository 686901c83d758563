// Package flow implements the conversation flow controller: the state machine
// that walks a session through the script one turn at a time.
package flow

import (
	"log/slog"

	"github.com/surreyclinic/intake/internal/logging"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/script"
)

// Defaults for the tunables; overridden via options from config.
const (
	DefaultConfidenceThreshold = 0.5
	DefaultMaxRepeats          = 3
)

// DefaultEmergencyKeywords is the global emergency phrase list, active on
// every node. Nodes extend it with their own EmergencyPhrases.
var DefaultEmergencyKeywords = []string{
	"can't breathe",
	"cannot breathe",
	"unable to breathe",
	"heart attack",
	"stroke",
	"unconscious",
	"severe bleeding",
	"overdose",
	"suicidal",
}

// Engine is the flow controller. It is stateless with respect to sessions:
// every method takes the session snapshot to operate on, so a single Engine
// serves all concurrent calls over one shared read-only script.
type Engine struct {
	script     *script.Script
	threshold  float64
	maxRepeats int
	keywords   []string
	policy     TransitionPolicy
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithConfidenceThreshold sets the confidence below which a turn is treated
// as a repeat request.
func WithConfidenceThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.threshold = threshold
	}
}

// WithMaxRepeats sets how many consecutive repeat turns a node tolerates
// before the engine forces escalation.
func WithMaxRepeats(n int) Option {
	return func(e *Engine) {
		e.maxRepeats = n
	}
}

// WithEmergencyKeywords replaces the global emergency keyword list.
func WithEmergencyKeywords(keywords []string) Option {
	return func(e *Engine) {
		e.keywords = keywords
	}
}

// WithTransitionPolicy overrides candidate selection (default: FirstMatch).
func WithTransitionPolicy(p TransitionPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a flow engine over a validated script.
func New(s *script.Script, opts ...Option) *Engine {
	e := &Engine{
		script:     s,
		threshold:  DefaultConfidenceThreshold,
		maxRepeats: DefaultMaxRepeats,
		keywords:   DefaultEmergencyKeywords,
		policy:     FirstMatch,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Script returns the engine's script.
func (e *Engine) Script() *script.Script { return e.script }
