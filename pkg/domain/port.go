package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Direction identifies the kind of a port.
type Direction int

const (
	DirInput Direction = iota
	DirOutput
	DirSlot
	DirEvent
)

func (d Direction) prefix() string {
	switch d {
	case DirInput:
		return "in"
	case DirOutput:
		return "out"
	case DirSlot:
		return "slot"
	case DirEvent:
		return "event"
	default:
		return "port"
	}
}

func (d Direction) String() string { return d.prefix() }

// PortID identifies a port: owning node, direction and index.
type PortID struct {
	Node      uuid.UUID
	Direction Direction
	Index     int
}

func (p PortID) String() string {
	return fmt.Sprintf("%s:%s_%d", p.Node, p.Direction.prefix(), p.Index)
}

// ParsePortID parses the form produced by PortID.String.
func ParsePortID(s string) (PortID, error) {
	nodePart, portPart, ok := strings.Cut(s, ":")
	if !ok {
		return PortID{}, fmt.Errorf("invalid port id %q", s)
	}
	id, err := uuid.Parse(nodePart)
	if err != nil {
		return PortID{}, fmt.Errorf("invalid port id %q: %w", s, err)
	}
	prefix, index, ok := strings.Cut(portPart, "_")
	if !ok {
		return PortID{}, fmt.Errorf("invalid port id %q", s)
	}
	n, err := strconv.Atoi(index)
	if err != nil {
		return PortID{}, fmt.Errorf("invalid port index in %q: %w", s, err)
	}
	var dir Direction
	switch prefix {
	case "in":
		dir = DirInput
	case "out":
		dir = DirOutput
	case "slot":
		dir = DirSlot
	case "event":
		dir = DirEvent
	default:
		return PortID{}, fmt.Errorf("invalid port direction in %q", s)
	}
	return PortID{Node: id, Direction: dir, Index: n}, nil
}

func (p PortID) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PortID) UnmarshalText(b []byte) error {
	parsed, err := ParsePortID(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PortSpec declares a port during node setup.
type PortSpec struct {
	Name string
	// Type is informational; the engine does not check payload types.
	Type string
	// Optional inputs may stay unconnected and still permit firing.
	Optional bool
	// Dynamic inputs reassemble multi-part fragments into one Composite.
	Dynamic bool
}
