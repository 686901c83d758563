package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/schema"
)

// Outcome is what one turn produces: the next prompt to synthesize and any
// side-effecting events for the host to dispatch. The caller always gets a
// prompt; the interview never leaves a turn unanswered.
type Outcome struct {
	Prompt string
	Events []domain.Event

	// Transitioned reports whether the session moved to a different node.
	Transitioned bool
}

// Start emits the opening prompt for a freshly created session.
func (e *Engine) Start(ctx context.Context, s *domain.Session) (Outcome, error) {
	node, err := e.script.Lookup(s.CurrentNodeID)
	if err != nil {
		return Outcome{}, err
	}
	e.enterNode(ctx, s, node)
	return Outcome{Prompt: e.renderPrompt(node, s)}, nil
}

// ApplyTurn advances the session state machine with one extraction result.
//
// Rule order (the emergency override always wins):
//  1. emergency intent or keyword match  -> escalate
//  2. merge extracted fields (last write wins)
//  3. required fields complete           -> advance via transition policy
//  4. repeat intent or low confidence    -> re-prompt, bounded by MaxRepeats
//  5. otherwise                          -> stay, ask for what is missing
func (e *Engine) ApplyTurn(ctx context.Context, s *domain.Session, utterance string, r domain.TurnResult) (Outcome, error) {
	if s.Terminal() {
		return Outcome{}, fmt.Errorf("session %s: %w", s.ID, domain.ErrSessionTerminal)
	}

	node, err := e.script.Lookup(s.CurrentNodeID)
	if err != nil {
		return Outcome{}, err
	}

	s.Turns++
	s.UpdatedAt = time.Now().UTC()

	// Fail closed: an invalid intent means the adapter payload was bad.
	if !r.Intent.Valid() {
		e.logger.Warn("malformed turn result, degrading", "session_id", s.ID, "intent", string(r.Intent))
		r = domain.Degraded()
	}

	// 1. Emergency override.
	if reason, emergency := e.detectEmergency(node, utterance, r); emergency {
		return e.escalate(ctx, s, reason), nil
	}

	// 2. Merge the delta. Fields failing the node's type constraints are
	// dropped individually; one bad value must not discard a good turn.
	merged := e.mergeFields(s, node, r.Fields)
	if merged > 0 {
		s.Repeats = 0
	}

	// Specialty switch: jump to the matched branch entry, keeping the record.
	if r.Intent == domain.IntentSwitchSpecialty {
		if out, ok := e.switchSpecialty(ctx, s, utterance, r); ok {
			return out, nil
		}
		// No branch matched; fall through as a normal continue.
	}

	// 3. Advance when the node is satisfied.
	if len(s.Record.Missing(node.RequiredFields)) == 0 {
		return e.advance(ctx, s, node)
	}

	// 4. Bounded repeat.
	if r.Intent == domain.IntentRepeat || r.Confidence < e.threshold {
		s.Repeats++
		if s.Repeats > e.maxRepeats {
			return e.escalate(ctx, s, fmt.Sprintf("no progress after %d attempts on %s", s.Repeats, node.ID)), nil
		}
		return Outcome{Prompt: e.renderPrompt(node, s)}, nil
	}

	// 5. Stay, asking for the remaining fields.
	return Outcome{Prompt: e.missingPrompt(node, s)}, nil
}

// Abandon marks a still-active session abandoned (caller hung up, consent
// withdrawn). Terminal sessions are left untouched.
func (e *Engine) Abandon(ctx context.Context, s *domain.Session, reason string) Outcome {
	if s.Terminal() {
		return Outcome{}
	}
	s.Status = domain.StatusAbandoned
	s.EndReason = reason
	s.UpdatedAt = time.Now().UTC()
	ev := e.event(domain.EventSessionEnded, s, reason, nil)
	return Outcome{Events: []domain.Event{ev}}
}

// advance resolves the next node and handles terminal arrival.
func (e *Engine) advance(ctx context.Context, s *domain.Session, node domain.Node) (Outcome, error) {
	if node.Terminal {
		// Reaching ApplyTurn on a terminal node cannot happen: terminal
		// status is set on arrival. Guarded for safety.
		return Outcome{Prompt: e.renderPrompt(node, s)}, nil
	}

	next, ok := e.policy(node, e.lookup(s))
	if !ok {
		// Validation guarantees a fallback; a miss here means the policy is
		// broken, which is a configuration bug.
		return Outcome{}, fmt.Errorf("node %s: no applicable transition", node.ID)
	}

	target, err := e.script.Lookup(next)
	if err != nil {
		return Outcome{}, err
	}

	s.MoveTo(target.ID)
	e.enterNode(ctx, s, target)

	out := Outcome{Prompt: e.renderPrompt(target, s), Transitioned: true}

	if target.Terminal && len(s.Record.Missing(target.RequiredFields)) == 0 {
		out.Events = append(out.Events, e.complete(ctx, s, target))
	}
	return out, nil
}

// complete finalizes a session on a terminal node. Terminal nodes annotated
// with outcome=abandoned (consent declined) end as ABANDONED instead.
func (e *Engine) complete(ctx context.Context, s *domain.Session, node domain.Node) domain.Event {
	s.UpdatedAt = time.Now().UTC()

	if node.Metadata["outcome"] == "abandoned" {
		s.Status = domain.StatusAbandoned
		s.EndReason = "caller declined"
		return e.event(domain.EventSessionEnded, s, s.EndReason, s.Record.Snapshot())
	}

	s.Status = domain.StatusCompleted
	ev := e.event(domain.EventSessionCompleted, s, "", s.Record.Snapshot())
	if e.hooks.OnCompleted != nil {
		e.hooks.OnCompleted(ctx, &ev)
	}
	return ev
}

// escalate moves the session to the emergency exit and emits a staff alert.
// The record snapshot is taken before any merge of the triggering turn.
func (e *Engine) escalate(ctx context.Context, s *domain.Session, reason string) Outcome {
	exit := e.script.EmergencyExit()

	// The alert names the node where the emergency surfaced, not the exit.
	alert := e.event(domain.EventStaffAlert, s, reason, s.Record.Snapshot())

	s.Status = domain.StatusEscalated
	s.EndReason = reason
	s.MoveTo(exit.ID)
	s.UpdatedAt = time.Now().UTC()

	e.logger.Warn("session escalated", "session_id", s.ID, "reason", reason, "node", alert.NodeID)
	e.enterNode(ctx, s, exit)
	if e.hooks.OnStaffAlert != nil {
		e.hooks.OnStaffAlert(ctx, &alert)
	}

	return Outcome{
		Prompt:       e.renderPrompt(exit, s),
		Events:       []domain.Event{alert},
		Transitioned: true,
	}
}

// switchSpecialty reroutes to a specialty branch entry. The extraction
// service may name the branch directly; otherwise the trigger-phrase
// registry matches the utterance.
func (e *Engine) switchSpecialty(ctx context.Context, s *domain.Session, utterance string, r domain.TurnResult) (Outcome, bool) {
	name := r.Specialty
	if name == "" {
		name, _ = e.script.MatchSpecialty(utterance)
	}
	if name == "" {
		return Outcome{}, false
	}

	entry, err := e.script.Entry(name)
	if err != nil {
		e.logger.Warn("specialty switch to unknown branch", "session_id", s.ID, "specialty", name)
		return Outcome{}, false
	}
	if entry == s.CurrentNodeID {
		return Outcome{}, false
	}

	target, err := e.script.Lookup(entry)
	if err != nil {
		return Outcome{}, false
	}

	s.Specialty = name
	s.MoveTo(target.ID)
	e.enterNode(ctx, s, target)
	e.logger.Info("specialty switch", "session_id", s.ID, "specialty", name, "node", target.ID)

	return Outcome{Prompt: e.renderPrompt(target, s), Transitioned: true}, true
}

// detectEmergency applies the override rule: explicit emergency intent, or an
// emergency phrase in the utterance or in any extracted value. Node-local
// phrases extend the global keyword list.
func (e *Engine) detectEmergency(node domain.Node, utterance string, r domain.TurnResult) (string, bool) {
	if r.Intent == domain.IntentEmergency {
		reason := r.EmergencyReason
		if reason == "" {
			reason = "emergency intent detected"
		}
		return reason, true
	}

	haystacks := []string{strings.ToLower(utterance)}
	for _, v := range r.Fields {
		if sv, ok := v.(string); ok {
			haystacks = append(haystacks, strings.ToLower(sv))
		}
	}

	keywords := make([]string, 0, len(e.keywords)+len(node.EmergencyPhrases))
	keywords = append(keywords, e.keywords...)
	keywords = append(keywords, node.EmergencyPhrases...)

	for _, hay := range haystacks {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(hay, strings.ToLower(kw)) {
				return fmt.Sprintf("emergency phrase detected: %q", kw), true
			}
		}
	}
	return "", false
}

// mergeFields merges a delta into the record, dropping values that fail the
// node's type constraints. Returns the number of fields written.
func (e *Engine) mergeFields(s *domain.Session, node domain.Node, delta map[string]any) int {
	if len(delta) == 0 {
		return 0
	}

	invalid := schema.Invalid(e.script.Schema(node.ID), delta)
	for f, reason := range invalid {
		e.logger.Warn("dropping extracted field with invalid type",
			"session_id", s.ID, "node", node.ID, "field", f, "reason", reason)
	}

	merged := 0
	for field, value := range delta {
		if _, bad := invalid[field]; bad {
			continue
		}
		s.Record.Set(field, value)
		merged++
	}
	return merged
}

// lookup backs condition evaluation with the record plus virtual fields.
func (e *Engine) lookup(s *domain.Session) FieldLookup {
	return func(name string) (any, bool) {
		if v, ok := s.Record.Get(name); ok {
			return v, true
		}
		if name == "specialty" && s.Specialty != "" {
			return s.Specialty, true
		}
		return nil, false
	}
}

func (e *Engine) enterNode(ctx context.Context, s *domain.Session, node domain.Node) {
	if e.hooks.OnNodeEnter != nil {
		ev := e.event(domain.EventNodeEnter, s, "", nil)
		ev.NodeID = node.ID
		e.hooks.OnNodeEnter(ctx, &ev)
	}
}

func (e *Engine) event(t domain.EventType, s *domain.Session, reason string, record *domain.IntakeRecord) domain.Event {
	return domain.Event{
		Type:      t,
		SessionID: s.ID,
		NodeID:    s.CurrentNodeID,
		Reason:    reason,
		Record:    record,
		Timestamp: time.Now().UTC(),
	}
}
