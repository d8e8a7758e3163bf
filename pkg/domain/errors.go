package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound is returned when a node UUID or label is unknown.
	ErrNodeNotFound = errors.New("node not found")
	// ErrPortNotFound is returned when a port name or index is unknown.
	ErrPortNotFound = errors.New("port not found")
	// ErrNodeBusy is returned when an operation requires an idle node.
	ErrNodeBusy = errors.New("node is busy")
	// ErrAlreadyConnected is returned when a static input already has a source.
	ErrAlreadyConnected = errors.New("input already connected")
	// ErrGroupNotFound is returned for unknown thread groups.
	ErrGroupNotFound = errors.New("thread group not found")
	// ErrGroupNotEmpty is returned when deleting a group that still has nodes.
	ErrGroupNotEmpty = errors.New("thread group not empty")
	// ErrSnapshotNotFound is returned when a store has no snapshot under a name.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrUnknownNodeType is returned by the registry.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrUnrecoverable marks a node failure that must halt the node.
	// Processors wrap it to escalate an error from recoverable to fatal.
	ErrUnrecoverable = errors.New("unrecoverable node failure")
	// ErrProtocolViolation is the sentinel matched by every ProtocolError.
	ErrProtocolViolation = errors.New("protocol violation")
)

// ProtocolError is an engine invariant breach.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in %s: %s", e.Op, e.Detail)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocolViolation }

// FatalError is an unrecoverable failure raised while firing a node.
type FatalError struct {
	Node  string
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal failure in node %s: %v", e.Node, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }

func (e *FatalError) Is(target error) bool { return target == ErrUnrecoverable }

// NodeError is a recoverable error recorded on a node.
type NodeError struct {
	Node  string
	Cause error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Cause)
}

func (e *NodeError) Unwrap() error { return e.Cause }
