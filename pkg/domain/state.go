package domain

import (
	"fmt"
	"strings"
)

// ConnectionState is the position of a connection in the firing protocol.
type ConnectionState int

const (
	// ConnectionNotInitialized: endpoints not yet both established.
	ConnectionNotInitialized ConnectionState = iota
	// ConnectionReadyToReceive: sink can accept a new token, nothing buffered.
	ConnectionReadyToReceive
	// ConnectionUnread: the source wrote a token the sink has not consumed.
	ConnectionUnread
	// ConnectionRead: the sink consumed the token into its current firing.
	ConnectionRead
	// ConnectionDone: the sink acknowledged; the source may recycle the connection.
	ConnectionDone
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNotInitialized:
		return "NOT_INITIALIZED"
	case ConnectionReadyToReceive:
		return "READY_TO_RECEIVE"
	case ConnectionUnread:
		return "UNREAD"
	case ConnectionRead:
		return "READ"
	case ConnectionDone:
		return "DONE"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// WorkerState is the observable state of a NodeWorker.
type WorkerState int

const (
	StateIdle WorkerState = iota
	// StateEnabled is derived: idle and every port is enabled.
	StateEnabled
	StateFired
	StateProcessing
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateEnabled:
		return "ENABLED"
	case StateFired:
		return "FIRED"
	case StateProcessing:
		return "PROCESSING"
	default:
		return fmt.Sprintf("WorkerState(%d)", int(s))
	}
}

// ExecutionMode controls when upstream connections are acknowledged.
type ExecutionMode int

const (
	// Sequential acknowledges inputs only after this node's outputs were
	// consumed downstream.
	Sequential ExecutionMode = iota
	// Pipelining acknowledges inputs as soon as this node consumed them.
	Pipelining
)

func (m ExecutionMode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Pipelining:
		return "pipelining"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseExecutionMode accepts the names produced by String, case-insensitively.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return Sequential, nil
	case "pipelining":
		return Pipelining, nil
	default:
		return Sequential, fmt.Errorf("unknown execution mode %q", s)
	}
}

func (m ExecutionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ExecutionMode) UnmarshalText(b []byte) error {
	parsed, err := ParseExecutionMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
