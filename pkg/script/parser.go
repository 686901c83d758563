package script

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/schema"
)

// file is the YAML document shape.
type file struct {
	Name        string               `yaml:"name"`
	Entry       string               `yaml:"entry"`
	Nodes       []domain.Node        `yaml:"nodes"`
	Specialties map[string]Specialty `yaml:"specialties"`
}

// Parse decodes and validates a script document.
func Parse(data []byte) (*Script, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	s := &Script{
		name:        doc.Name,
		entry:       doc.Entry,
		nodes:       make(map[string]domain.Node, len(doc.Nodes)),
		schemas:     make(map[string]schema.Schema),
		specialties: make(map[string]Specialty, len(doc.Specialties)),
	}

	for _, node := range doc.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("script %s: node missing ID", doc.Name)
		}
		if _, dup := s.nodes[node.ID]; dup {
			return nil, fmt.Errorf("script %s: duplicate node %q", doc.Name, node.ID)
		}
		s.nodes[node.ID] = node
		s.order = append(s.order, node.ID)

		if node.EmergencyExit {
			if s.emergencyExit != "" {
				return nil, fmt.Errorf("script %s: multiple emergency exit nodes (%q, %q)",
					doc.Name, s.emergencyExit, node.ID)
			}
			s.emergencyExit = node.ID
		}

		if len(node.FieldTypes) > 0 {
			compiled, err := schema.ParseTypeMap(node.FieldTypes)
			if err != nil {
				return nil, fmt.Errorf("script %s: node %q: %w", doc.Name, node.ID, err)
			}
			s.schemas[node.ID] = compiled
		}
	}

	for name, sp := range doc.Specialties {
		s.specialties[strings.ToLower(name)] = sp
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads and parses a script file from disk.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// MustParse parses a script and panics on error. Reserved for embedded
// scripts whose validity is covered by tests.
func MustParse(data []byte) *Script {
	s, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return s
}
