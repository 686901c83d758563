package script

import (
	"fmt"
	"strings"

	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/schema"
)

// Specialty describes one specialty branch of the script.
type Specialty struct {
	// Entry is the node a session jumps to when this specialty is selected,
	// either as a creation hint or via a specialty switch mid-interview.
	Entry string `yaml:"entry"`

	// Triggers are the complaint phrases that select this specialty
	// (substring match, case-insensitive).
	Triggers []string `yaml:"triggers"`
}

// Script is the immutable node definition set plus the specialty registry.
// Safe for concurrent use; nothing mutates it after Parse.
type Script struct {
	name          string
	entry         string
	emergencyExit string
	order         []string
	nodes         map[string]domain.Node
	schemas       map[string]schema.Schema
	specialties   map[string]Specialty
}

// Name returns the script's declared name.
func (s *Script) Name() string { return s.name }

// Entry returns the entry node ID for a specialty hint. An empty hint selects
// the generic intake entry. Unknown specialties return domain.ErrUnknownSpecialty.
func (s *Script) Entry(specialty string) (string, error) {
	if specialty == "" {
		return s.entry, nil
	}
	sp, ok := s.specialties[strings.ToLower(specialty)]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownSpecialty, specialty)
	}
	return sp.Entry, nil
}

// EmergencyExit returns the node every non-terminal node escalates to.
func (s *Script) EmergencyExit() domain.Node {
	return s.nodes[s.emergencyExit]
}

// Lookup retrieves a node by ID. A miss is a configuration bug: validation
// guarantees all transition targets resolve, so callers treat the error as fatal.
func (s *Script) Lookup(id string) (domain.Node, error) {
	node, ok := s.nodes[id]
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: %s", domain.ErrUnknownNode, id)
	}
	return node, nil
}

// Schema returns the precompiled field type constraints for a node.
// Nodes without declared field types return a nil schema (no validation).
func (s *Script) Schema(nodeID string) schema.Schema {
	return s.schemas[nodeID]
}

// Nodes returns all nodes in declaration order.
func (s *Script) Nodes() []domain.Node {
	out := make([]domain.Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// Specialties returns a copy of the specialty registry.
func (s *Script) Specialties() map[string]Specialty {
	out := make(map[string]Specialty, len(s.specialties))
	for k, v := range s.specialties {
		out[k] = v
	}
	return out
}

// MatchSpecialty finds the specialty whose trigger phrases match the given
// complaint text (case-insensitive substring). Returns the specialty name.
func (s *Script) MatchSpecialty(text string) (string, bool) {
	lower := strings.ToLower(text)
	for name, sp := range s.specialties {
		for _, trigger := range sp.Triggers {
			if strings.Contains(lower, strings.ToLower(trigger)) {
				return name, true
			}
		}
	}
	return "", false
}
