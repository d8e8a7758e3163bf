package runtime

import "github.com/google/uuid"

// MarkerPolicy decides whether a node may silently absorb a NoMessage marker
// received on a mandatory input instead of forwarding it downstream.
// EndOfSequence markers are always forwarded.
type MarkerPolicy interface {
	CanDropNoMessage(node uuid.UUID) bool
}

// MarkerPolicyFunc adapts a function to MarkerPolicy.
type MarkerPolicyFunc func(node uuid.UUID) bool

func (f MarkerPolicyFunc) CanDropNoMessage(node uuid.UUID) bool { return f(node) }

// ForwardMarkers never drops a marker.
var ForwardMarkers MarkerPolicy = MarkerPolicyFunc(func(uuid.UUID) bool { return false })
