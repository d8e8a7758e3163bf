package domain

import "github.com/google/uuid"

func (s WorkerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// PortStatus describes one data port of a running node.
type PortStatus struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	Optional  bool   `json:"optional,omitempty"`
	Dynamic   bool   `json:"dynamic,omitempty"`
	Connected bool   `json:"connected"`
	// Sequence is the number of tokens committed so far (outputs only).
	Sequence int64 `json:"sequence,omitempty"`
}

// NodeStatus is a read-only view of a running node.
type NodeStatus struct {
	ID         uuid.UUID     `json:"id"`
	Label      string        `json:"label"`
	Type       string        `json:"type"`
	State      WorkerState   `json:"state"`
	Enabled    bool          `json:"enabled"`
	Processing bool          `json:"processing"`
	Halted     bool          `json:"halted,omitempty"`
	Killed     bool          `json:"killed,omitempty"`
	Mode       ExecutionMode `json:"mode"`
	ThreadID   int           `json:"thread_id"`
	ThreadName string        `json:"thread_name,omitempty"`
	Component  int           `json:"component"`
	Separator  bool          `json:"separator,omitempty"`
	Essential  bool          `json:"leads_to_essential,omitempty"`
	Inputs     []PortStatus  `json:"inputs,omitempty"`
	Outputs    []PortStatus  `json:"outputs,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ContextStatus is a read-only view of an execution context.
type ContextStatus struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Custom  bool     `json:"custom,omitempty"`
	Pending int      `json:"pending"`
	Nodes   []string `json:"nodes,omitempty"`
}
