package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/surreyclinic/intake/internal/flow"
	"github.com/surreyclinic/intake/internal/logging"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/ports"
)

// ErrEnded is returned when a turn was abandoned because the session was
// ended while its extraction call was still in flight.
var ErrEnded = errors.New("session ended during turn")

// Defaults for the orchestrator tunables.
const (
	DefaultExtractTimeout = 8 * time.Second
	DefaultLockTTL        = 30 * time.Second
)

// lockEntry holds the per-session mutex and its reference count.
type lockEntry struct {
	mu     sync.Mutex
	refs   int
	cancel context.CancelFunc // in-flight extraction, if any
	ended  bool               // End was requested while a turn was running
}

// Turn is what the orchestrator hands back to transports: the updated
// session snapshot, the prompt to speak, and the events that fired.
type Turn struct {
	Session *domain.Session
	Prompt  string
	Events  []domain.Event
}

// Orchestrator owns the session lifecycle. It serializes turns per session
// with reference-counted locks (plus an optional distributed locker for
// multi-replica deployments), bounds every extraction call with a timeout,
// and fans engine events out to the registered sinks.
type Orchestrator struct {
	engine    *flow.Engine
	store     ports.SessionStore
	extractor ports.Extractor

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker         ports.DistributedLocker
	sinks          []ports.EventSink
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
	extractTimeout time.Duration
	lockTTL        time.Duration
	newID          func() string
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(o *Orchestrator) { o.locker = locker }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithExtractTimeout bounds each extraction adapter call.
func WithExtractTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.extractTimeout = d }
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(d time.Duration) Option {
	return func(o *Orchestrator) { o.lockTTL = d }
}

// WithEventSinks registers sinks for engine events.
func WithEventSinks(sinks ...ports.EventSink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, sinks...) }
}

// WithLifecycleHooks registers extraction and session accounting hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// WithIDGenerator overrides session ID generation (tests).
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New creates an Orchestrator.
func New(engine *flow.Engine, store ports.SessionStore, extractor ports.Extractor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:         engine,
		store:          store,
		extractor:      extractor,
		locks:          make(map[string]*lockEntry),
		logger:         logging.NewNop(),
		extractTimeout: DefaultExtractTimeout,
		lockTTL:        DefaultLockTTL,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create starts a new session, optionally at a specialty branch entry.
func (o *Orchestrator) Create(ctx context.Context, specialty string) (*Turn, error) {
	entry, err := o.engine.Script().Entry(specialty)
	if err != nil {
		return nil, err
	}

	sess := domain.NewSession(o.newID(), entry)
	sess.Specialty = specialty

	var turn *Turn
	err = o.withLock(ctx, sess.ID, func(ctx context.Context, _ *lockEntry) error {
		out, err := o.engine.Start(ctx, sess)
		if err != nil {
			return err
		}
		if err := o.store.Save(ctx, sess); err != nil {
			return fmt.Errorf("failed to persist new session: %w", err)
		}
		o.publish(ctx, out.Events)
		turn = &Turn{Session: sess, Prompt: out.Prompt, Events: out.Events}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.hooks.OnSessionStart != nil {
		o.hooks.OnSessionStart(ctx, sess)
	}
	o.logger.Info("session created", "session_id", sess.ID, "specialty", specialty, "node", sess.CurrentNodeID)
	return turn, nil
}

// HandleUtterance runs one turn: extract, apply, persist, publish.
// Extraction failures and timeouts degrade to an empty zero-confidence
// result instead of failing the turn.
func (o *Orchestrator) HandleUtterance(ctx context.Context, sessionID, utterance string) (*Turn, error) {
	var turn *Turn
	err := o.withLock(ctx, sessionID, func(ctx context.Context, entry *lockEntry) error {
		sess, err := o.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Terminal() {
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionTerminal)
		}

		node, err := o.engine.Script().Lookup(sess.CurrentNodeID)
		if err != nil {
			return err
		}

		result, aborted := o.extract(ctx, entry, sess, node, utterance)
		if aborted {
			return ErrEnded
		}

		out, err := o.engine.ApplyTurn(ctx, sess, utterance, result)
		if err != nil {
			return err
		}
		if err := o.store.Save(ctx, sess); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}

		o.publish(ctx, out.Events)
		turn = &Turn{Session: sess, Prompt: out.Prompt, Events: out.Events}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.hooks.OnTurn != nil {
		o.hooks.OnTurn(ctx, turn.Session)
	}
	if turn.Session.Terminal() && o.hooks.OnSessionEnd != nil {
		o.hooks.OnSessionEnd(ctx, turn.Session)
	}
	return turn, nil
}

// Resume returns a Turn for a session already in progress, re-rendering the
// current question. Transports use it to attach to a session created over a
// different surface (HTTP create, then websocket attach).
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*Turn, error) {
	var turn *Turn
	err := o.withLock(ctx, sessionID, func(ctx context.Context, _ *lockEntry) error {
		sess, err := o.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Terminal() {
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionTerminal)
		}

		prompt, err := o.engine.Prompt(sess)
		if err != nil {
			return err
		}
		turn = &Turn{Session: sess, Prompt: prompt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// Get returns the current session snapshot.
func (o *Orchestrator) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return o.store.Load(ctx, sessionID)
}

// List returns the IDs of stored sessions.
func (o *Orchestrator) List(ctx context.Context) ([]string, error) {
	return o.store.List(ctx)
}

// End terminates a session (caller hung up, operator intervention). An
// extraction call still in flight for the session is canceled and its late
// result discarded.
func (o *Orchestrator) End(ctx context.Context, sessionID, reason string) error {
	o.abortInflight(sessionID)

	return o.withLock(ctx, sessionID, func(ctx context.Context, _ *lockEntry) error {
		sess, err := o.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}

		// Sessions already terminal were accounted for on the turn that
		// finished them; only an active session ends as abandoned here.
		if !sess.Terminal() {
			out := o.engine.Abandon(ctx, sess, reason)
			o.publish(ctx, out.Events)
			if o.hooks.OnSessionEnd != nil {
				o.hooks.OnSessionEnd(ctx, sess)
			}
		}

		if err := o.store.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		o.logger.Info("session ended", "session_id", sessionID, "reason", reason)
		return nil
	})
}

// extract runs the extraction adapter under the configured timeout.
// The returned aborted flag is set when End canceled the call mid-flight.
func (o *Orchestrator) extract(ctx context.Context, entry *lockEntry, sess *domain.Session, node domain.Node, utterance string) (domain.TurnResult, bool) {
	exctx, cancel := context.WithTimeout(ctx, o.extractTimeout)
	defer cancel()

	o.mu.Lock()
	entry.cancel = cancel
	o.mu.Unlock()

	start := time.Now()
	result, err := o.extractor.Extract(exctx, node, utterance, sess.Record)
	duration := time.Since(start)

	o.mu.Lock()
	entry.cancel = nil
	aborted := entry.ended
	o.mu.Unlock()

	timedOut := errors.Is(exctx.Err(), context.DeadlineExceeded)
	if o.hooks.OnExtraction != nil {
		o.hooks.OnExtraction(ctx, &domain.ExtractionEvent{
			SessionID: sess.ID,
			NodeID:    node.ID,
			Duration:  duration,
			TimedOut:  timedOut,
			Err:       err,
		})
	}

	if aborted {
		return domain.TurnResult{}, true
	}

	if err != nil {
		o.logger.Warn("extraction failed, degrading turn",
			"session_id", sess.ID, "node", node.ID, "timed_out", timedOut, "err", err)
		return domain.Degraded(), false
	}
	return result, false
}

// abortInflight cancels a running extraction for the session, if any, and
// marks the lock entry so the turn discards the late result.
func (o *Orchestrator) abortInflight(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.locks[sessionID]
	if !ok {
		return
	}
	entry.ended = true
	if entry.cancel != nil {
		entry.cancel()
	}
}

func (o *Orchestrator) publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		for _, sink := range o.sinks {
			sink.Publish(ctx, ev)
		}
	}
}

// acquire gets or creates a lock entry and increments its reference count.
func (o *Orchestrator) acquire(sessionID string) *lockEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, exists := o.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		o.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and garbage collects the entry.
func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, exists := o.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(o.locks, sessionID)
	}
}

// withLock executes fn while holding the per-session lock, plus the
// distributed lock when one is configured.
func (o *Orchestrator) withLock(ctx context.Context, sessionID string, fn func(context.Context, *lockEntry) error) error {
	entry := o.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		o.release(sessionID)
	}()

	if o.locker != nil {
		unlock, err := o.locker.Lock(ctx, sessionID, o.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				o.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID, "err", err)
			}
		}()
	}

	return fn(ctx, entry)
}
