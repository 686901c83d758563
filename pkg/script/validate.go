package script

import (
	"fmt"
	"strings"
)

// validate checks structural invariants of the graph. Any failure is a
// configuration bug and aborts startup.
func (s *Script) validate() error {
	var errs []string

	if s.entry == "" {
		errs = append(errs, "no entry node declared")
	} else if _, ok := s.nodes[s.entry]; !ok {
		errs = append(errs, fmt.Sprintf("entry node %q not defined", s.entry))
	}

	if s.emergencyExit == "" {
		errs = append(errs, "no emergency exit node declared")
	} else if exit := s.nodes[s.emergencyExit]; !exit.Terminal {
		errs = append(errs, fmt.Sprintf("emergency exit node %q must be terminal", s.emergencyExit))
	}

	for _, id := range s.order {
		node := s.nodes[id]

		if node.Terminal {
			if len(node.Candidates) > 0 {
				errs = append(errs, fmt.Sprintf("terminal node %q has outgoing transitions", id))
			}
			continue
		}

		if len(node.Candidates) == 0 {
			errs = append(errs, fmt.Sprintf("non-terminal node %q has no transitions", id))
			continue
		}

		for _, c := range node.Candidates {
			if _, ok := s.nodes[c.To]; !ok {
				errs = append(errs, fmt.Sprintf("node %q: transition target %q not defined", id, c.To))
			}
		}

		// The fallback must be last and unconditional: any candidate after an
		// unconditional one is unreachable.
		last := node.Candidates[len(node.Candidates)-1]
		if last.When != "" {
			errs = append(errs, fmt.Sprintf("node %q: last candidate %q must be unconditional", id, last.To))
		}
		for i, c := range node.Candidates[:len(node.Candidates)-1] {
			if c.When == "" {
				errs = append(errs, fmt.Sprintf("node %q: candidate %d (%q) is unconditional but not last", id, i, c.To))
			}
		}
	}

	for name, sp := range s.specialties {
		if _, ok := s.nodes[sp.Entry]; !ok {
			errs = append(errs, fmt.Sprintf("specialty %q: entry node %q not defined", name, sp.Entry))
		}
	}

	if unreachable := s.unreachable(); len(unreachable) > 0 {
		errs = append(errs, fmt.Sprintf("unreachable nodes: %s", strings.Join(unreachable, ", ")))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid script %s:\n- %s", s.name, strings.Join(errs, "\n- "))
	}
	return nil
}

// unreachable crawls the graph from every root (entry, specialty entries,
// emergency exit) and returns node IDs no root reaches, in declaration order.
func (s *Script) unreachable() []string {
	visited := make(map[string]bool)

	roots := []string{s.entry, s.emergencyExit}
	for _, sp := range s.specialties {
		roots = append(roots, sp.Entry)
	}

	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		if r != "" {
			queue = append(queue, r)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		node, ok := s.nodes[id]
		if !ok {
			continue // broken target, reported separately
		}
		for _, c := range node.Candidates {
			if !visited[c.To] {
				queue = append(queue, c.To)
			}
		}
	}

	var missing []string
	for _, id := range s.order {
		if !visited[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
