package runtime

import (
	"fmt"

	"github.com/aretw0/sluice/pkg/domain"
)

// OutputTransition is the write side of a node. It commits the buffered
// tokens of one cycle and tracks the connections they were written to until
// every sink acknowledged. All methods run on the owning worker's task.
type OutputTransition struct {
	outputs []*Output
	// inFlight holds the connections written by the last commit.
	inFlight map[*Connection]struct{}
}

func newOutputTransition(outputs []*Output) *OutputTransition {
	return &OutputTransition{outputs: outputs, inFlight: make(map[*Connection]struct{})}
}

// Connections returns the established outgoing connections.
func (t *OutputTransition) Connections() []*Connection {
	var out []*Connection
	for _, o := range t.outputs {
		for _, c := range o.Connections() {
			if c.IsEstablished() {
				out = append(out, c)
			}
		}
	}
	return out
}

func (t *OutputTransition) IsEnabled() bool {
	for _, o := range t.outputs {
		if !o.IsEnabled() {
			return false
		}
	}
	return true
}

// InFlight reports whether committed tokens still wait for acknowledgement.
func (t *OutputTransition) InFlight() bool { return len(t.inFlight) > 0 }

// CanStartSendingMessages reports whether a new commit may start: nothing in
// flight and every outgoing connection READY_TO_RECEIVE.
func (t *OutputTransition) CanStartSendingMessages() bool {
	if t.InFlight() {
		return false
	}
	for _, c := range t.Connections() {
		if c.State() != domain.ConnectionReadyToReceive {
			return false
		}
	}
	return true
}

// SendMessages commits every output: the buffered token, or NoMessage when
// nothing was written. Each committed token is stamped exactly once with the
// next sequence number of its output, then written to every connection.
// It returns the committed outputs and the number of connections written.
func (t *OutputTransition) SendMessages(active bool) ([]*Output, int) {
	if t.InFlight() {
		panic(&domain.ProtocolError{Op: "send", Detail: "previous messages are not acknowledged yet"})
	}
	written := 0
	committed := make([]*Output, 0, len(t.outputs))
	for _, o := range t.outputs {
		tok := o.buffer
		if tok == nil {
			tok = domain.NoMessage()
		}
		o.committed = tok.Stamp(o.seq.Add(1), o.flags, active)
		o.buffer = nil
		o.flags = 0
		committed = append(committed, o)

		for _, c := range o.Connections() {
			if !c.IsEstablished() {
				continue
			}
			t.inFlight[c] = struct{}{}
			c.write(o.committed)
			written++
		}
	}
	return committed, written
}

// checkIdle recycles the in-flight connections once all of them are DONE.
// It reports whether the outputs just became idle.
func (t *OutputTransition) checkIdle() bool {
	if len(t.inFlight) == 0 {
		return false
	}
	for c := range t.inFlight {
		if c.isTorn() {
			delete(t.inFlight, c)
			continue
		}
		if c.State() != domain.ConnectionDone {
			return false
		}
	}
	for c := range t.inFlight {
		c.recycle()
		delete(t.inFlight, c)
	}
	return true
}

// SetMultipart flags the next commit of output as a fragment.
func (t *OutputTransition) SetMultipart(o *Output, multipart, last bool) {
	var f domain.Flags
	if multipart {
		f |= domain.FlagMultiPart
		if last {
			f |= domain.FlagLastPart
		}
	}
	o.flags = f
}

// PublishMarker buffers marker on every output.
func (t *OutputTransition) PublishMarker(marker *domain.Token) {
	if !marker.IsMarker() {
		panic(&domain.ProtocolError{Op: "publish marker", Detail: fmt.Sprintf("%s is not a marker", marker)})
	}
	for _, o := range t.outputs {
		o.buffer = marker
	}
}

// ClearBuffer drops everything written in the current cycle.
func (t *OutputTransition) ClearBuffer() {
	for _, o := range t.outputs {
		o.buffer = nil
		o.flags = 0
	}
}

// Reset clears buffers. In-flight connections stay tracked; they belong to
// the sinks until acknowledged.
func (t *OutputTransition) Reset() {
	t.ClearBuffer()
}
