package flow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surreyclinic/intake/internal/flow"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/script"
)

func nodeWithCandidates(t *testing.T) domain.Node {
	t.Helper()
	node, err := script.Default().Lookup("medical_history")
	require.NoError(t, err)
	return node
}

func newEngine(t *testing.T, opts ...flow.Option) *flow.Engine {
	t.Helper()
	return flow.New(script.Default(), opts...)
}

func sessionAt(t *testing.T, nodeID string) *domain.Session {
	t.Helper()
	return domain.NewSession("test-session", nodeID)
}

func answer(fields map[string]any) domain.TurnResult {
	return domain.TurnResult{Fields: fields, Intent: domain.IntentContinue, Confidence: 0.9}
}

func TestStart_EmitsEntryPrompt(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "entry")

	out, err := e.Start(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, out.Prompt, "Is it okay if I collect")
	assert.False(t, out.Transitioned)
}

func TestApplyTurn_ConsentGrantedAdvances(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "entry")

	out, err := e.ApplyTurn(context.Background(), s, "yes that's fine", answer(map[string]any{"consent": true}))
	require.NoError(t, err)

	assert.True(t, out.Transitioned)
	assert.Equal(t, "chief_complaint", s.CurrentNodeID)
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Equal(t, 1, s.Turns)
}

func TestApplyTurn_ConsentDeclinedAbandons(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "entry")

	out, err := e.ApplyTurn(context.Background(), s, "no thank you", answer(map[string]any{"consent": false}))
	require.NoError(t, err)

	assert.Equal(t, "declined_end", s.CurrentNodeID)
	assert.Equal(t, domain.StatusAbandoned, s.Status)
	require.Len(t, out.Events, 1)
	assert.Equal(t, domain.EventSessionEnded, out.Events[0].Type)
}

func TestApplyTurn_EmergencyPhraseEscalates(t *testing.T) {
	var alert *domain.Event
	e := newEngine(t, flow.WithLifecycleHooks(domain.LifecycleHooks{
		OnStaffAlert: func(_ context.Context, ev *domain.Event) { alert = ev },
	}))
	s := sessionAt(t, "respiratory_assessment")
	s.Record.Set("chief_complaint", "coughing fits")

	out, err := e.ApplyTurn(context.Background(), s, "I can't breathe at all",
		answer(map[string]any{"breathing_difficulty": "constant"}))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusEscalated, s.Status)
	assert.Equal(t, "emergency", s.CurrentNodeID)
	assert.Contains(t, out.Prompt, "transfer you to our medical staff")

	require.Len(t, out.Events, 1)
	ev := out.Events[0]
	assert.Equal(t, domain.EventStaffAlert, ev.Type)
	assert.Equal(t, "respiratory_assessment", ev.NodeID)
	assert.Contains(t, ev.Reason, "can't breathe")

	// The triggering turn's fields are not merged; the alert snapshot shows
	// the record as it stood before the utterance.
	assert.False(t, s.Record.Has("breathing_difficulty"))
	require.NotNil(t, ev.Record)
	assert.True(t, ev.Record.Has("chief_complaint"))
	assert.False(t, ev.Record.Has("breathing_difficulty"))

	require.NotNil(t, alert)
	assert.Equal(t, ev.SessionID, alert.SessionID)
}

func TestApplyTurn_EmergencyIntentEscalates(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	r := domain.TurnResult{
		Intent:          domain.IntentEmergency,
		Confidence:      0.95,
		EmergencyReason: "caller reports loss of consciousness",
	}
	out, err := e.ApplyTurn(context.Background(), s, "my husband just collapsed", r)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusEscalated, s.Status)
	require.Len(t, out.Events, 1)
	assert.Equal(t, "caller reports loss of consciousness", out.Events[0].Reason)
	assert.Equal(t, "caller reports loss of consciousness", s.EndReason)
}

func TestApplyTurn_NodeLocalPhraseOnlyOnItsNode(t *testing.T) {
	e := newEngine(t)

	// "crushing" is a chest_pain_assessment phrase, not a global keyword.
	s := sessionAt(t, "chief_complaint")
	_, err := e.ApplyTurn(context.Background(), s, "a crushing workload lately", answer(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, s.Status)

	s = sessionAt(t, "chest_pain_assessment")
	_, err = e.ApplyTurn(context.Background(), s, "it feels crushing", answer(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEscalated, s.Status)
}

func TestApplyTurn_ConditionalBranchOnAge(t *testing.T) {
	tests := []struct {
		name string
		age  int
		next string
	}{
		{"senior", 72, "senior_review"},
		{"adult", 40, "wrap_up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			s := sessionAt(t, "medical_history")

			out, err := e.ApplyTurn(context.Background(), s, "diabetes, metformin, no allergies", answer(map[string]any{
				"conditions":  []any{"diabetes"},
				"medications": []any{"metformin"},
				"allergies":   []any{},
				"age":         tt.age,
			}))
			require.NoError(t, err)
			assert.True(t, out.Transitioned)
			assert.Equal(t, tt.next, s.CurrentNodeID)
		})
	}
}

func TestApplyTurn_PartialAnswerStays(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	out, err := e.ApplyTurn(context.Background(), s, "headaches", answer(map[string]any{"chief_complaint": "headaches"}))
	require.NoError(t, err)

	assert.False(t, out.Transitioned)
	assert.Equal(t, "chief_complaint", s.CurrentNodeID)
	assert.Contains(t, out.Prompt, "symptom duration")
	assert.Equal(t, 0, s.Repeats, "a merged field resets the repeat counter")
}

func TestApplyTurn_RepeatLimitForcesEscalation(t *testing.T) {
	e := newEngine(t, flow.WithMaxRepeats(3))
	s := sessionAt(t, "chief_complaint")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := e.ApplyTurn(ctx, s, "what?", domain.TurnResult{Intent: domain.IntentRepeat, Confidence: 0.9})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, s.Status)
		assert.Contains(t, out.Prompt, "main reason for your appointment")
	}
	assert.Equal(t, 3, s.Repeats)

	out, err := e.ApplyTurn(ctx, s, "what?", domain.TurnResult{Intent: domain.IntentRepeat, Confidence: 0.9})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEscalated, s.Status)
	require.Len(t, out.Events, 1)
	assert.Contains(t, out.Events[0].Reason, "no progress")
}

func TestApplyTurn_LowConfidenceCountsAsRepeat(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	_, err := e.ApplyTurn(context.Background(), s, "mumble",
		domain.TurnResult{Intent: domain.IntentContinue, Confidence: 0.2})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Repeats)
	assert.Equal(t, "chief_complaint", s.CurrentNodeID)
}

func TestApplyTurn_DegradedResultChangesNothing(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")
	s.Record.Set("chief_complaint", "migraine")

	out, err := e.ApplyTurn(context.Background(), s, "some answer", domain.Degraded())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Equal(t, "chief_complaint", s.CurrentNodeID)
	assert.Equal(t, 1, s.Record.Len())
	assert.NotEmpty(t, out.Prompt)
}

func TestApplyTurn_InvalidIntentDegrades(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	_, err := e.ApplyTurn(context.Background(), s, "hi",
		domain.TurnResult{Intent: "transfer_funds", Confidence: 0.99, Fields: map[string]any{"chief_complaint": "x"}})
	require.NoError(t, err)

	assert.Equal(t, "chief_complaint", s.CurrentNodeID)
	assert.False(t, s.Record.Has("chief_complaint"), "fields from a malformed result are discarded")
}

func TestApplyTurn_InvalidFieldTypeDropped(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "medical_history")

	_, err := e.ApplyTurn(context.Background(), s, "I'm seventy", answer(map[string]any{
		"age":        "seventy",
		"conditions": []any{"asthma"},
	}))
	require.NoError(t, err)

	assert.False(t, s.Record.Has("age"), "value failing the int constraint is dropped")
	assert.True(t, s.Record.Has("conditions"), "valid sibling field still merges")
}

func TestApplyTurn_LastWriteWins(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	_, err := e.ApplyTurn(context.Background(), s, "headaches", answer(map[string]any{"chief_complaint": "headaches"}))
	require.NoError(t, err)
	_, err = e.ApplyTurn(context.Background(), s, "actually migraines for two weeks", answer(map[string]any{
		"chief_complaint": "migraines",
		"symptom_duration": "two weeks",
	}))
	require.NoError(t, err)

	v, ok := s.Record.Get("chief_complaint")
	require.True(t, ok)
	assert.Equal(t, "migraines", v)
	assert.Equal(t, []string{"chief_complaint", "symptom_duration"}, s.Record.Fields())
}

func TestApplyTurn_SpecialtySwitch(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	r := domain.TurnResult{
		Fields:     map[string]any{"chief_complaint": "chest pressure", "symptom_duration": "an hour"},
		Intent:     domain.IntentSwitchSpecialty,
		Confidence: 0.9,
		Specialty:  "chest_pain",
	}
	out, err := e.ApplyTurn(context.Background(), s, "I've had chest pressure for an hour", r)
	require.NoError(t, err)

	assert.True(t, out.Transitioned)
	assert.Equal(t, "chest_pain_assessment", s.CurrentNodeID)
	assert.Equal(t, "chest_pain", s.Specialty)
	assert.True(t, s.Record.Has("chief_complaint"), "record survives the switch")
}

func TestApplyTurn_SpecialtySwitchByTrigger(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	r := domain.TurnResult{
		Fields:     map[string]any{"chief_complaint": "trouble with breathing", "symptom_duration": "a week"},
		Intent:     domain.IntentSwitchSpecialty,
		Confidence: 0.9,
	}
	_, err := e.ApplyTurn(context.Background(), s, "I've had difficulty breathing for a week", r)
	require.NoError(t, err)

	assert.Equal(t, "respiratory_assessment", s.CurrentNodeID)
	assert.Equal(t, "respiratory", s.Specialty)
}

func TestApplyTurn_UnknownSpecialtyFallsThrough(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	r := domain.TurnResult{
		Fields:     map[string]any{"chief_complaint": "rash", "symptom_duration": "a month"},
		Intent:     domain.IntentSwitchSpecialty,
		Confidence: 0.9,
		Specialty:  "dermatology",
	}
	out, err := e.ApplyTurn(context.Background(), s, "I have a rash", r)
	require.NoError(t, err)

	// No dermatology branch: the turn proceeds as a normal continue and the
	// completed node advances on the fallback.
	assert.True(t, out.Transitioned)
	assert.Equal(t, "medical_history", s.CurrentNodeID)
	assert.Empty(t, s.Specialty)
}

func TestApplyTurn_TerminalArrivalCompletes(t *testing.T) {
	var completed *domain.Event
	e := newEngine(t, flow.WithLifecycleHooks(domain.LifecycleHooks{
		OnCompleted: func(_ context.Context, ev *domain.Event) { completed = ev },
	}))
	s := sessionAt(t, "wrap_up")
	s.Record.Set("chief_complaint", "migraines")

	out, err := e.ApplyTurn(context.Background(), s, "no questions, thanks", answer(nil))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, s.Status)
	assert.Equal(t, "summary", s.CurrentNodeID)
	require.Len(t, out.Events, 1)
	assert.Equal(t, domain.EventSessionCompleted, out.Events[0].Type)
	require.NotNil(t, out.Events[0].Record)
	assert.True(t, out.Events[0].Record.Has("chief_complaint"))
	require.NotNil(t, completed)
}

func TestApplyTurn_TerminalSessionRejected(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "summary")
	s.Status = domain.StatusCompleted

	_, err := e.ApplyTurn(context.Background(), s, "hello?", answer(nil))
	assert.ErrorIs(t, err, domain.ErrSessionTerminal)
}

func TestApplyTurn_PromptInterpolation(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "senior_review")

	s.Record.Set("chief_complaint", "shortness of breath")
	out, err := e.ApplyTurn(context.Background(), s, "no falls, I manage fine", answer(map[string]any{
		"recent_falls":        "none",
		"mobility_assistance": "none",
	}))
	require.NoError(t, err)

	assert.Equal(t, "wrap_up", s.CurrentNodeID)
	assert.Contains(t, out.Prompt, "shortness of breath")
	assert.NotContains(t, out.Prompt, "{{")
}

func TestAbandon(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")

	out := e.Abandon(context.Background(), s, "caller disconnected")
	assert.Equal(t, domain.StatusAbandoned, s.Status)
	assert.Equal(t, "caller disconnected", s.EndReason)
	require.Len(t, out.Events, 1)
	assert.Equal(t, domain.EventSessionEnded, out.Events[0].Type)

	// Idempotent on terminal sessions.
	out = e.Abandon(context.Background(), s, "again")
	assert.Empty(t, out.Events)
	assert.Equal(t, "caller disconnected", s.EndReason)
}

func TestPrompt_RerendersCurrentNode(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "entry")

	prompt, err := e.Prompt(s)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Is it okay if I collect")
}

func TestPrompt_PartiallyAnsweredAsksForMissing(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "chief_complaint")
	s.Record.Set("chief_complaint", "wheezing")

	prompt, err := e.Prompt(s)
	require.NoError(t, err)
	assert.Contains(t, prompt, "symptom duration")
}

func TestPrompt_UnknownNode(t *testing.T) {
	e := newEngine(t)
	s := sessionAt(t, "nowhere")

	_, err := e.Prompt(s)
	assert.ErrorIs(t, err, domain.ErrUnknownNode)
}

func TestApplyTurn_NodeEnterEventCarriesTargetNode(t *testing.T) {
	var entered []string
	e := newEngine(t, flow.WithLifecycleHooks(domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, ev *domain.Event) { entered = append(entered, ev.NodeID) },
	}))
	s := sessionAt(t, "entry")

	_, err := e.ApplyTurn(context.Background(), s, "yes that's fine", answer(map[string]any{"consent": true}))
	require.NoError(t, err)

	assert.Equal(t, []string{"chief_complaint"}, entered)
}
