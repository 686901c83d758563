package intake

import (
	"context"
	"log/slog"
	"time"

	"github.com/surreyclinic/intake/internal/flow"
	"github.com/surreyclinic/intake/pkg/adapters/keyword"
	"github.com/surreyclinic/intake/pkg/adapters/memory"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/ports"
	"github.com/surreyclinic/intake/pkg/script"
	"github.com/surreyclinic/intake/pkg/session"
)

// Assistant is the high-level entry point for the intake library. It bundles
// the interview script, the flow controller and the session orchestrator so
// hosts only have to wire adapters.
type Assistant struct {
	script *script.Script
	engine *flow.Engine
	orch   *session.Orchestrator
}

type settings struct {
	script      *script.Script
	store       ports.SessionStore
	extractor   ports.Extractor
	flowOpts    []flow.Option
	sessionOpts []session.Option
}

// Option defines a functional option for configuring the Assistant.
type Option func(*settings)

// WithScript replaces the embedded default interview script.
func WithScript(s *script.Script) Option {
	return func(cfg *settings) { cfg.script = s }
}

// WithStore injects a session store. Defaults to the in-memory store.
func WithStore(store ports.SessionStore) Option {
	return func(cfg *settings) { cfg.store = store }
}

// WithExtractor injects the extraction backend. Defaults to the offline
// keyword extractor, which is useful for tests and terminal sessions but not
// for real callers.
func WithExtractor(ex ports.Extractor) Option {
	return func(cfg *settings) { cfg.extractor = ex }
}

// WithLocker enables distributed per-session locking for multi-instance
// deployments.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(cfg *settings) {
		cfg.sessionOpts = append(cfg.sessionOpts, session.WithLocker(locker))
	}
}

// WithEventSinks registers sinks for session events (staff alerts, node
// transitions, completions).
func WithEventSinks(sinks ...ports.EventSink) Option {
	return func(cfg *settings) {
		cfg.sessionOpts = append(cfg.sessionOpts, session.WithEventSinks(sinks...))
	}
}

// WithLifecycleHooks registers observability hooks on both the flow
// controller and the orchestrator.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(cfg *settings) {
		cfg.flowOpts = append(cfg.flowOpts, flow.WithLifecycleHooks(hooks))
		cfg.sessionOpts = append(cfg.sessionOpts, session.WithLifecycleHooks(hooks))
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *settings) {
		cfg.flowOpts = append(cfg.flowOpts, flow.WithLogger(logger))
		cfg.sessionOpts = append(cfg.sessionOpts, session.WithLogger(logger))
	}
}

// WithExtractTimeout bounds each extraction call.
func WithExtractTimeout(d time.Duration) Option {
	return func(cfg *settings) {
		cfg.sessionOpts = append(cfg.sessionOpts, session.WithExtractTimeout(d))
	}
}

// WithConfidenceThreshold sets the minimum extraction confidence accepted
// before a turn counts as a repeat.
func WithConfidenceThreshold(threshold float64) Option {
	return func(cfg *settings) {
		cfg.flowOpts = append(cfg.flowOpts, flow.WithConfidenceThreshold(threshold))
	}
}

// WithMaxRepeats sets how many repeats of one question are tolerated before
// the interview escalates to staff.
func WithMaxRepeats(n int) Option {
	return func(cfg *settings) {
		cfg.flowOpts = append(cfg.flowOpts, flow.WithMaxRepeats(n))
	}
}

// WithEmergencyKeywords replaces the global emergency keyword list.
func WithEmergencyKeywords(keywords []string) Option {
	return func(cfg *settings) {
		cfg.flowOpts = append(cfg.flowOpts, flow.WithEmergencyKeywords(keywords))
	}
}

// New assembles an Assistant. Without options it runs the embedded default
// script on an in-memory store with the keyword extractor.
func New(opts ...Option) *Assistant {
	cfg := &settings{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.script == nil {
		cfg.script = script.Default()
	}
	if cfg.store == nil {
		cfg.store = memory.NewStore()
	}
	if cfg.extractor == nil {
		cfg.extractor = keyword.New(specialtyTriggers(cfg.script))
	}

	engine := flow.New(cfg.script, cfg.flowOpts...)
	return &Assistant{
		script: cfg.script,
		engine: engine,
		orch:   session.New(engine, cfg.store, cfg.extractor, cfg.sessionOpts...),
	}
}

// StartInterview creates a session and returns the opening prompt. An empty
// specialty starts at the script's default entry node.
func (a *Assistant) StartInterview(ctx context.Context, specialty string) (*session.Turn, error) {
	return a.orch.Create(ctx, specialty)
}

// Answer processes one caller utterance and returns the next prompt.
func (a *Assistant) Answer(ctx context.Context, sessionID, utterance string) (*session.Turn, error) {
	return a.orch.HandleUtterance(ctx, sessionID, utterance)
}

// Session returns a snapshot of a stored session.
func (a *Assistant) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return a.orch.Get(ctx, sessionID)
}

// Sessions lists the IDs of stored sessions.
func (a *Assistant) Sessions(ctx context.Context) ([]string, error) {
	return a.orch.List(ctx)
}

// End terminates a session before completion, aborting any in-flight turn.
func (a *Assistant) End(ctx context.Context, sessionID, reason string) error {
	return a.orch.End(ctx, sessionID, reason)
}

// Script returns the interview script the Assistant runs.
func (a *Assistant) Script() *script.Script {
	return a.script
}

// Orchestrator exposes the underlying orchestrator for transport adapters.
func (a *Assistant) Orchestrator() *session.Orchestrator {
	return a.orch
}

func specialtyTriggers(s *script.Script) map[string][]string {
	triggers := make(map[string][]string)
	for name, sp := range s.Specialties() {
		triggers[name] = sp.Triggers
	}
	return triggers
}
