package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surreyclinic/intake/internal/flow"
)

func lookupFrom(fields map[string]any) flow.FieldLookup {
	return func(name string) (any, bool) {
		v, ok := fields[name]
		return v, ok
	}
}

func TestEval(t *testing.T) {
	fields := map[string]any{
		"age":       70,
		"consent":   true,
		"severity":  "8",
		"specialty": "respiratory",
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"age", true},
		{"weight", false},
		{"age > 65", true},
		{"age > 70", false},
		{"age >= 70", true},
		{"age < 65", false},
		{"age != 70", false},
		{"consent == true", true},
		{"consent == false", false},
		{"severity >= 7", true},
		{"specialty == 'respiratory'", true},
		{"specialty == 'Respiratory'", true},
		{"specialty != 'chest_pain'", true},
		{"weight > 100", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := flow.Eval(tt.expr, lookupFrom(fields))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	fields := map[string]any{"name": "alice"}

	_, err := flow.Eval("name >", lookupFrom(fields))
	assert.Error(t, err)

	_, err = flow.Eval("name > 'bob'", lookupFrom(fields))
	assert.Error(t, err, "ordering on non-numeric operands")

	_, err = flow.Eval("two words", lookupFrom(fields))
	assert.Error(t, err)
}

func TestFirstMatch(t *testing.T) {
	node := nodeWithCandidates(t)

	next, ok := flow.FirstMatch(node, lookupFrom(map[string]any{"age": 80}))
	require.True(t, ok)
	assert.Equal(t, "senior_review", next)

	next, ok = flow.FirstMatch(node, lookupFrom(map[string]any{"age": 30}))
	require.True(t, ok)
	assert.Equal(t, "wrap_up", next)

	// Missing field disqualifies the conditional candidate.
	next, ok = flow.FirstMatch(node, lookupFrom(nil))
	require.True(t, ok)
	assert.Equal(t, "wrap_up", next)
}
