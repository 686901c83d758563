package keyword_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surreyclinic/intake/pkg/adapters/keyword"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/script"
)

func extractor() *keyword.Extractor {
	specialties := make(map[string][]string)
	for name, sp := range script.Default().Specialties() {
		specialties[name] = sp.Triggers
	}
	return keyword.New(specialties)
}

func node(t *testing.T, id string) domain.Node {
	t.Helper()
	n, err := script.Default().Lookup(id)
	require.NoError(t, err)
	return n
}

func TestExtract_ConsentYesNo(t *testing.T) {
	e := extractor()
	entry := node(t, "entry")
	ctx := context.Background()

	r, err := e.Extract(ctx, entry, "Yes, that's fine", domain.NewRecord())
	require.NoError(t, err)
	assert.Equal(t, domain.IntentContinue, r.Intent)
	assert.Equal(t, true, r.Fields["consent"])

	r, err = e.Extract(ctx, entry, "No, I'd rather not", domain.NewRecord())
	require.NoError(t, err)
	assert.Equal(t, false, r.Fields["consent"])
}

func TestExtract_PairSyntax(t *testing.T) {
	e := extractor()
	history := node(t, "medical_history")

	r, err := e.Extract(context.Background(), history,
		"conditions: asthma and diabetes, medications: none, allergies: penicillin, age: 58",
		domain.NewRecord())
	require.NoError(t, err)

	assert.Equal(t, domain.IntentContinue, r.Intent)
	assert.Equal(t, 58, r.Fields["age"])
	assert.Equal(t, []any{"asthma", "diabetes"}, r.Fields["conditions"])
	assert.Equal(t, []any{}, r.Fields["medications"], `"none" yields an empty list`)
	assert.Equal(t, []any{"penicillin"}, r.Fields["allergies"])
}

func TestExtract_RepeatPhrase(t *testing.T) {
	e := extractor()
	r, err := e.Extract(context.Background(), node(t, "chief_complaint"), "sorry, could you repeat that?", domain.NewRecord())
	require.NoError(t, err)
	assert.Equal(t, domain.IntentRepeat, r.Intent)
}

func TestExtract_EmergencyPhrase(t *testing.T) {
	e := extractor()
	r, err := e.Extract(context.Background(), node(t, "chief_complaint"), "please call an ambulance", domain.NewRecord())
	require.NoError(t, err)
	assert.Equal(t, domain.IntentEmergency, r.Intent)
	assert.NotEmpty(t, r.EmergencyReason)
}

func TestExtract_SpecialtyTrigger(t *testing.T) {
	e := extractor()
	r, err := e.Extract(context.Background(), node(t, "chief_complaint"), "I've been having chest pain since Monday", domain.NewRecord())
	require.NoError(t, err)
	assert.Equal(t, domain.IntentSwitchSpecialty, r.Intent)
	assert.Equal(t, "chest_pain", r.Specialty)
}

func TestExtract_NothingUnderstoodIsLowConfidence(t *testing.T) {
	e := extractor()
	r, err := e.Extract(context.Background(), node(t, "medical_history"), "hmm well you see", domain.NewRecord())
	require.NoError(t, err)
	assert.Empty(t, r.Fields)
	assert.Less(t, r.Confidence, 0.5)
}
