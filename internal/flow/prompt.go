package flow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/surreyclinic/intake/pkg/domain"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// renderPrompt interpolates {{field}} placeholders in a node prompt with
// values already in the record. Unresolved placeholders are left intact so
// the speech layer still produces something sayable.
func (e *Engine) renderPrompt(node domain.Node, s *domain.Session) string {
	return placeholderRe.ReplaceAllStringFunc(node.Prompt, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := e.lookup(s)(name); ok {
			return fmt.Sprint(v)
		}
		return match
	})
}

// Prompt re-renders the current question for a session, for transports that
// attach to an interview already in progress. Partially answered nodes get
// the missing-fields re-ask instead of the full question.
func (e *Engine) Prompt(s *domain.Session) (string, error) {
	node, err := e.script.Lookup(s.CurrentNodeID)
	if err != nil {
		return "", err
	}
	missing := s.Record.Missing(node.RequiredFields)
	if len(missing) > 0 && len(missing) < len(node.RequiredFields) {
		return e.missingPrompt(node, s), nil
	}
	return e.renderPrompt(node, s), nil
}

// missingPrompt re-asks for the fields still outstanding on the current node.
func (e *Engine) missingPrompt(node domain.Node, s *domain.Session) string {
	missing := s.Record.Missing(node.RequiredFields)
	if len(missing) == 0 {
		return e.renderPrompt(node, s)
	}

	spoken := make([]string, len(missing))
	for i, f := range missing {
		spoken[i] = strings.ReplaceAll(f, "_", " ")
	}

	if len(spoken) == 1 {
		return fmt.Sprintf("Thank you. Could you also tell me your %s?", spoken[0])
	}
	return fmt.Sprintf("Thank you. I still need your %s and %s.",
		strings.Join(spoken[:len(spoken)-1], ", "), spoken[len(spoken)-1])
}
