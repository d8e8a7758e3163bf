package dsl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/sluice/pkg/domain"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("invalid graph definition")

// Definition is a declarative graph.
type Definition struct {
	Name  string    `json:"name" yaml:"name"`
	Nodes []NodeDef `json:"nodes" yaml:"nodes"`
	Links []LinkDef `json:"links,omitempty" yaml:"links,omitempty"`
}

// NodeDef declares one node instance.
type NodeDef struct {
	Label  string         `json:"label" yaml:"label"`
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	// Mode is "sequential" (default) or "pipelining".
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Group places the node in a named custom thread group.
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
	// Private gives the node a context of its own.
	Private  bool `json:"private,omitempty" yaml:"private,omitempty"`
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// ExecutionMode parses Mode.
func (n NodeDef) ExecutionMode() (domain.ExecutionMode, error) {
	return domain.ParseExecutionMode(n.Mode)
}

// LinkDef connects two ports written as "label.port".
type LinkDef struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Endpoint is a parsed "label.port" reference.
type Endpoint struct {
	Label string
	Port  string
}

func (e Endpoint) String() string { return e.Label + "." + e.Port }

// ParseEndpoint splits "label.port" at the last dot.
func ParseEndpoint(s string) (Endpoint, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return Endpoint{}, fmt.Errorf("%w: endpoint %q is not label.port", ErrInvalidDefinition, s)
	}
	return Endpoint{Label: s[:i], Port: s[i+1:]}, nil
}

// Node returns the node declared under label.
func (d *Definition) Node(label string) (NodeDef, bool) {
	for _, n := range d.Nodes {
		if n.Label == label {
			return n, true
		}
	}
	return NodeDef{}, false
}

// Validate checks labels, modes and link endpoints. Port names are only known
// once processors exist, so they are checked at instantiation.
func (d *Definition) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		switch {
		case n.Label == "":
			errs = append(errs, fmt.Errorf("%w: node %d has no label", ErrInvalidDefinition, i))
		case strings.Contains(n.Label, "."):
			errs = append(errs, fmt.Errorf("%w: label %q contains a dot", ErrInvalidDefinition, n.Label))
		case seen[n.Label]:
			errs = append(errs, fmt.Errorf("%w: duplicate label %q", ErrInvalidDefinition, n.Label))
		}
		seen[n.Label] = true
		if n.Type == "" {
			errs = append(errs, fmt.Errorf("%w: node %q has no type", ErrInvalidDefinition, n.Label))
		}
		if _, err := n.ExecutionMode(); err != nil {
			errs = append(errs, fmt.Errorf("%w: node %q: %v", ErrInvalidDefinition, n.Label, err))
		}
		if n.Private && n.Group != "" {
			errs = append(errs, fmt.Errorf("%w: node %q is both private and in group %q", ErrInvalidDefinition, n.Label, n.Group))
		}
	}
	for _, l := range d.Links {
		for _, ref := range []string{l.From, l.To} {
			ep, err := ParseEndpoint(ref)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !seen[ep.Label] {
				errs = append(errs, fmt.Errorf("%w: link references unknown node %q", ErrInvalidDefinition, ep.Label))
			}
		}
	}
	return errors.Join(errs...)
}

// ParseYAML decodes and validates a YAML definition.
func ParseYAML(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse yaml definition: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadFile reads a definition, choosing the format by extension: .hcl for
// HCL, anything else for YAML.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	var d *Definition
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		d, err = ParseHCL(path, data)
	} else {
		d, err = ParseYAML(data)
	}
	if err != nil {
		return nil, err
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return d, nil
}
