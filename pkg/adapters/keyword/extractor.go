// Package keyword implements a deterministic, offline extraction adapter.
// It exists for the simulate command and for tests: no network, no model,
// just phrase heuristics over the utterance. Real deployments use the
// openai adapter.
package keyword

import (
	"context"
	"strconv"
	"strings"

	"github.com/surreyclinic/intake/pkg/domain"
)

var (
	affirmative = []string{"yes", "sure", "okay", "ok", "that's fine", "go ahead", "of course"}
	negative    = []string{"no", "nope", "i'd rather not", "don't", "do not"}

	repeatPhrases = []string{
		"say that again",
		"repeat",
		"pardon",
		"what was that",
		"didn't catch",
		"sorry?",
	}

	emergencyPhrases = []string{
		"can't breathe",
		"cannot breathe",
		"heart attack",
		"unconscious",
		"severe bleeding",
		"call an ambulance",
	}
)

// Extractor implements ports.Extractor with phrase heuristics.
type Extractor struct {
	// Specialties maps trigger phrases to branch names, usually taken from
	// the script's specialty registry.
	Specialties map[string][]string
}

// New creates a keyword extractor with the given trigger-phrase registry.
func New(specialties map[string][]string) *Extractor {
	return &Extractor{Specialties: specialties}
}

// Extract implements ports.Extractor.
func (e *Extractor) Extract(ctx context.Context, node domain.Node, utterance string, record *domain.IntakeRecord) (domain.TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TurnResult{}, err
	}

	lower := strings.ToLower(strings.TrimSpace(utterance))

	for _, p := range emergencyPhrases {
		if strings.Contains(lower, p) {
			return domain.TurnResult{
				Intent:          domain.IntentEmergency,
				Confidence:      1,
				EmergencyReason: "caller said: " + p,
			}, nil
		}
	}

	for _, p := range repeatPhrases {
		if strings.Contains(lower, p) {
			return domain.TurnResult{Intent: domain.IntentRepeat, Confidence: 1}, nil
		}
	}

	for name, triggers := range e.Specialties {
		for _, trigger := range triggers {
			if strings.Contains(lower, strings.ToLower(trigger)) {
				return domain.TurnResult{
					Fields:     e.fields(node, lower, utterance),
					Intent:     domain.IntentSwitchSpecialty,
					Confidence: 1,
					Specialty:  name,
				}, nil
			}
		}
	}

	fields := e.fields(node, lower, utterance)
	confidence := 1.0
	if len(fields) == 0 && len(node.RequiredFields) > 0 {
		confidence = 0.3
	}
	return domain.TurnResult{Fields: fields, Intent: domain.IntentContinue, Confidence: confidence}, nil
}

// fields fills the node's expected fields from the utterance. Single-field
// nodes swallow the whole utterance; multi-field nodes accept explicit
// "field: value" or "field=value" pairs separated by commas or semicolons.
func (e *Extractor) fields(node domain.Node, lower, utterance string) map[string]any {
	out := make(map[string]any)

	for field, pair := range pairs(utterance) {
		if v, ok := coerce(node.FieldTypes[field], pair); ok {
			out[field] = v
		}
	}
	if len(out) > 0 {
		return out
	}

	if len(node.RequiredFields) == 1 {
		field := node.RequiredFields[0]
		if v, ok := coerceFree(node.FieldTypes[field], lower, utterance); ok {
			out[field] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// pairs parses "age: 58, conditions: asthma" style input.
func pairs(utterance string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.FieldsFunc(utterance, func(r rune) bool { return r == ',' || r == ';' }) {
		var k, v string
		var ok bool
		if k, v, ok = strings.Cut(part, ":"); !ok {
			k, v, ok = strings.Cut(part, "=")
		}
		if !ok {
			continue
		}
		k = strings.ReplaceAll(strings.TrimSpace(strings.ToLower(k)), " ", "_")
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func coerce(fieldType, raw string) (any, bool) {
	switch fieldType {
	case "int":
		n, err := strconv.Atoi(raw)
		return n, err == nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		return f, err == nil
	case "bool":
		return parseBool(strings.ToLower(raw))
	default:
		if strings.HasPrefix(fieldType, "[") {
			items := strings.Split(raw, " and ")
			list := make([]any, 0, len(items))
			for _, it := range items {
				if it = strings.TrimSpace(it); it != "" && !strings.EqualFold(it, "none") {
					list = append(list, it)
				}
			}
			return list, true
		}
		return raw, true
	}
}

// coerceFree coerces a free-form utterance for a single-field node.
func coerceFree(fieldType, lower, utterance string) (any, bool) {
	switch fieldType {
	case "bool":
		return parseBool(lower)
	case "int":
		for _, w := range strings.Fields(lower) {
			if n, err := strconv.Atoi(strings.Trim(w, ".,!?")); err == nil {
				return n, true
			}
		}
		return nil, false
	default:
		if strings.TrimSpace(utterance) == "" {
			return nil, false
		}
		return coerce(fieldType, strings.TrimSpace(utterance))
	}
}

func parseBool(lower string) (any, bool) {
	for _, p := range negative {
		if strings.Contains(lower, p) {
			return false, true
		}
	}
	for _, p := range affirmative {
		if strings.Contains(lower, p) {
			return true, true
		}
	}
	return nil, false
}
