package domain

import "github.com/google/uuid"

// Point is a node position on the editor canvas. The engine only stores it.
type Point struct {
	X float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y float64 `json:"y" yaml:"y" mapstructure:"y"`
}

// NodeState is the persisted state of one node instance.
// Engine-relevant fields (Enabled, ThreadID, ThreadName, ExecutionMode) must
// round-trip losslessly.
type NodeState struct {
	UUID          uuid.UUID      `json:"uuid" yaml:"uuid" mapstructure:"uuid"`
	Type          string         `json:"type" yaml:"type" mapstructure:"type"`
	Label         string         `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
	Pos           Point          `json:"pos" yaml:"pos" mapstructure:"pos"`
	Enabled       bool           `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Active        bool           `json:"active,omitempty" yaml:"active,omitempty" mapstructure:"active"`
	ThreadID      int            `json:"thread_id" yaml:"thread_id" mapstructure:"thread_id"`
	ThreadName    string         `json:"thread_name,omitempty" yaml:"thread_name,omitempty" mapstructure:"thread_name"`
	ExecutionMode ExecutionMode  `json:"execution_mode" yaml:"execution_mode" mapstructure:"execution_mode"`
	MaxFrequency  float64        `json:"max_frequency,omitempty" yaml:"max_frequency,omitempty" mapstructure:"max_frequency"`
	Dictionary    map[string]any `json:"dictionary,omitempty" yaml:"dictionary,omitempty" mapstructure:"dictionary"`
}

// NewNodeState returns the state of a freshly instantiated node.
func NewNodeState(nodeType string) *NodeState {
	return &NodeState{
		UUID:       uuid.New(),
		Type:       nodeType,
		Enabled:    true,
		ThreadID:   -1,
		Dictionary: make(map[string]any),
	}
}

// Clone returns a copy that shares nothing mutable with s.
func (s *NodeState) Clone() *NodeState {
	c := *s
	c.Dictionary = make(map[string]any, len(s.Dictionary))
	for k, v := range s.Dictionary {
		c.Dictionary[k] = v
	}
	return &c
}

// ConnectionSpec is a persisted edge.
type ConnectionSpec struct {
	From PortID `json:"from" yaml:"from"`
	To   PortID `json:"to" yaml:"to"`
}

// GroupSpec is a persisted custom thread group.
type GroupSpec struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// GroupAssignment binds a node to a custom group.
type GroupAssignment struct {
	UUID uuid.UUID `json:"uuid" yaml:"uuid"`
	ID   int       `json:"id" yaml:"id"`
}

// ThreadSettings is the persisted part of the scheduler.
type ThreadSettings struct {
	Groups      []GroupSpec       `json:"groups,omitempty" yaml:"groups,omitempty"`
	Assignments []GroupAssignment `json:"assignments,omitempty" yaml:"assignments,omitempty"`
	NextID      int               `json:"next_id" yaml:"next_id"`
}

// GraphSnapshot is everything needed to rebuild a graph.
type GraphSnapshot struct {
	Nodes       []NodeState      `json:"nodes" yaml:"nodes"`
	Connections []ConnectionSpec `json:"connections,omitempty" yaml:"connections,omitempty"`
	Threads     *ThreadSettings  `json:"threads,omitempty" yaml:"threads,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s *GraphSnapshot) Clone() *GraphSnapshot {
	c := &GraphSnapshot{
		Nodes:       make([]NodeState, len(s.Nodes)),
		Connections: append([]ConnectionSpec(nil), s.Connections...),
	}
	for i := range s.Nodes {
		c.Nodes[i] = *s.Nodes[i].Clone()
	}
	if s.Threads != nil {
		t := *s.Threads
		t.Groups = append([]GroupSpec(nil), s.Threads.Groups...)
		t.Assignments = append([]GroupAssignment(nil), s.Threads.Assignments...)
		c.Threads = &t
	}
	return c
}
