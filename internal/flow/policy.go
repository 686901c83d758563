package flow

import "github.com/surreyclinic/intake/pkg/domain"

// TransitionPolicy selects the next node among a node's candidates once its
// required fields are complete. Returning ok=false means no candidate
// applies (only possible for scripts that lost their fallback, which
// validation prevents).
//
// The policy is pluggable: declared order is the default precedence, but
// scripts needing a different tie-break swap the policy, not the engine.
type TransitionPolicy func(node domain.Node, lookup FieldLookup) (next string, ok bool)

// FirstMatch walks the candidates in declared order and picks the first one
// whose prerequisite holds; the trailing unconditional candidate acts as the
// fallback. Evaluation errors disqualify the candidate rather than aborting
// the turn.
func FirstMatch(node domain.Node, lookup FieldLookup) (string, bool) {
	for _, c := range node.Candidates {
		if c.When == "" {
			return c.To, true
		}
		if ok, err := Eval(c.When, lookup); err == nil && ok {
			return c.To, true
		}
	}
	return "", false
}
