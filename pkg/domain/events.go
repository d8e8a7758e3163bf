package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a node event.
type EventType string

const (
	EventEnabledChanged     EventType = "enabled_changed"
	EventStateChanged       EventType = "state_changed"
	EventProcessingStarted  EventType = "processing_started"
	EventProcessingFinished EventType = "processing_finished"
	EventErrorRaised        EventType = "error_raised"
	EventTokenCommitted     EventType = "token_committed"
	EventContextSwitched    EventType = "context_switched"
	EventFatal              EventType = "fatal"
)

// Event is published on a node's event stream. Observation only: no engine
// behaviour depends on whether anyone listens.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Node      uuid.UUID   `json:"node"`
	Label     string      `json:"label,omitempty"`
	State     WorkerState `json:"state"`
	Enabled   bool        `json:"enabled,omitempty"`
	// Port is set for token events.
	Port     string  `json:"port,omitempty"`
	Sequence int64   `json:"sequence,omitempty"`
	Message  string  `json:"message,omitempty"`
	Context  int     `json:"context,omitempty"`
	Duration float64 `json:"duration_seconds,omitempty"`
}
