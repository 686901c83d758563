// Package graph renders interview scripts as Mermaid flowcharts for
// documentation and clinic review.
package graph

import (
	"fmt"
	"strings"

	"github.com/surreyclinic/intake/pkg/domain"
)

// Overlay contains dynamic session data to visualize on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart from a node list.
// Shapes carry the semantics:
//   - question node: [/Parallelogram/] (caller input)
//   - terminal node: ((Circle))
//   - emergency exit: {{Hexagon}}
func GenerateMermaid(nodes []domain.Node, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[/", "/]"
		switch {
		case node.EmergencyExit:
			opener, closer = "{{", "}}"
		case node.Terminal:
			opener, closer = "((", "))"
		}

		label := node.ID
		if len(node.RequiredFields) > 0 {
			label = fmt.Sprintf("%s <br/> %s", node.ID, strings.Join(node.RequiredFields, ", "))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		for _, c := range node.Candidates {
			safeTo := sanitizeMermaidID(c.To)
			arrow := "-->"
			if c.When != "" {
				safeCondition := strings.ReplaceAll(c.When, "\"", "'")
				arrow = fmt.Sprintf("-- \"%s\" -->", safeCondition)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}
	}

	// Every non-terminal node can escalate; draw a single dotted edge per
	// node that declares its own emergency phrases to keep the chart legible.
	exit := ""
	for _, node := range nodes {
		if node.EmergencyExit {
			exit = sanitizeMermaidID(node.ID)
		}
	}
	if exit != "" {
		for _, node := range nodes {
			if len(node.EmergencyPhrases) > 0 && !node.Terminal {
				sb.WriteString(fmt.Sprintf("    %s -. emergency .-> %s\n", sanitizeMermaidID(node.ID), exit))
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
