package domain

// Node represents one step of the interview script.
// Nodes are immutable once loaded and shared read-only across all sessions.
type Node struct {
	ID string `json:"id" yaml:"id"`

	// Prompt is the text the caller hears when this node is active.
	// It may contain {{field}} placeholders resolved against the IntakeRecord.
	Prompt string `json:"prompt" yaml:"prompt"`

	// RequiredFields must all be present in the IntakeRecord before the
	// node is allowed to advance.
	RequiredFields []string `json:"required_fields,omitempty" yaml:"required_fields,omitempty"`

	// FieldTypes optionally constrains extracted values, keyed by field name.
	// Supported type names follow the schema package ("string", "int",
	// "float", "bool", "[string]", ...). Unlisted fields default to string.
	FieldTypes map[string]string `json:"field_types,omitempty" yaml:"field_types,omitempty"`

	// Candidates is the ordered list of possible next nodes. Order is
	// priority: the first candidate whose When condition holds wins. The
	// last candidate of a non-terminal node must be unconditional.
	Candidates []Candidate `json:"next,omitempty" yaml:"next,omitempty"`

	// EmergencyPhrases extends the globally configured emergency keywords
	// while this node is active (e.g. "crushing" on a chest pain node).
	EmergencyPhrases []string `json:"emergency_phrases,omitempty" yaml:"emergency_phrases,omitempty"`

	// Terminal marks a sink node: reaching it with no missing required
	// fields completes the session.
	Terminal bool `json:"terminal,omitempty" yaml:"terminal,omitempty"`

	// EmergencyExit marks the node every non-terminal node can jump to when
	// an emergency is detected. Exactly one node in a script carries it.
	EmergencyExit bool `json:"emergency_exit,omitempty" yaml:"emergency_exit,omitempty"`

	// Metadata allows for extensible key-value pairs (annotations for
	// tooling, EMR mappings, etc). Not interpreted by the engine.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Candidate defines a prioritized transition rule out of a node.
type Candidate struct {
	To string `json:"to" yaml:"to"`

	// When is a prerequisite expression evaluated against the IntakeRecord,
	// e.g. "age > 65" or "smoking_status == 'yes'". Empty means
	// unconditional (the fallback).
	When string `json:"when,omitempty" yaml:"when,omitempty"`
}

// Fallback returns the unconditional candidate, if any.
// Script validation guarantees non-terminal nodes have one, in last position.
func (n Node) Fallback() (Candidate, bool) {
	for i := len(n.Candidates) - 1; i >= 0; i-- {
		if n.Candidates[i].When == "" {
			return n.Candidates[i], true
		}
	}
	return Candidate{}, false
}
