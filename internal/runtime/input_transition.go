package runtime

import (
	"fmt"

	"github.com/aretw0/sluice/pkg/domain"
)

// InputTransition aggregates the inputs of one node and decides when the
// node may fire. All methods run on the owning worker's task.
type InputTransition struct {
	inputs []*Input
}

func newInputTransition(inputs []*Input) *InputTransition {
	return &InputTransition{inputs: inputs}
}

// Connections returns the established inbound connections.
func (t *InputTransition) Connections() []*Connection {
	var out []*Connection
	for _, in := range t.inputs {
		if c := in.Connection(); c != nil && c.IsEstablished() {
			out = append(out, c)
		}
	}
	return out
}

// IsEnabled reports whether every input and inbound connection is enabled.
func (t *InputTransition) IsEnabled() bool {
	for _, in := range t.inputs {
		if !in.IsEnabled() {
			return false
		}
		if c := in.Connection(); c != nil && !c.IsEnabled() {
			return false
		}
	}
	return true
}

// CanReceive reports whether every mandatory input is connected.
func (t *InputTransition) CanReceive() bool {
	for _, in := range t.inputs {
		if !in.IsOptional() && !in.IsConnected() {
			return false
		}
	}
	return true
}

// isReady: no connection waits to be written, every one holds a token
// (UNREAD or READ) and at least one token is new.
func (t *InputTransition) isReady() bool {
	conns := t.Connections()
	if len(conns) == 0 {
		return false
	}
	allRead := true
	for _, c := range conns {
		switch c.State() {
		case domain.ConnectionUnread:
			allRead = false
		case domain.ConnectionRead:
		default:
			return false
		}
	}
	return !allRead
}

// FireIfPossible fires when the inputs are ready and the node is enabled.
// It reports whether the node must now process; a non-final multi-part
// fragment is consumed without firing.
func (t *InputTransition) FireIfPossible(enabled bool) bool {
	if !enabled || !t.isReady() {
		return false
	}
	return t.fire()
}

func (t *InputTransition) fire() bool {
	for _, in := range t.inputs {
		if !in.IsDynamic() {
			continue
		}
		c := in.Connection()
		if c == nil || !c.IsEstablished() || c.State() != domain.ConnectionUnread {
			continue
		}
		tok := c.Token()
		if tok == nil || !tok.IsMultiPart() {
			continue
		}
		if !in.isOpen() {
			t.assertNoneOpen()
		}
		in.fragments = append(in.fragments, tok)
		c.markRead()

		if !tok.IsLastPart() {
			c.markDone()
			return false
		}
		in.composed = compose(in.fragments)
		in.fragments = nil
	}

	for _, in := range t.inputs {
		c := in.Connection()
		switch {
		case c != nil && c.IsEstablished():
			if in.composed != nil {
				in.token = in.composed
			} else {
				in.token = c.Token()
			}
		case in.IsOptional():
			in.token = domain.NoMessage()
		default:
			panic(&domain.ProtocolError{Op: "fire", Detail: fmt.Sprintf("mandatory input %s is not connected", in.id)})
		}
	}

	for _, c := range t.Connections() {
		switch c.State() {
		case domain.ConnectionUnread:
			c.markRead()
		case domain.ConnectionRead, domain.ConnectionDone:
		default:
			panic(&domain.ProtocolError{Op: "fire", Detail: fmt.Sprintf("connection %s is %s", c, c.State())})
		}
	}
	return true
}

func (t *InputTransition) assertNoneOpen() {
	for _, in := range t.inputs {
		if in.isOpen() {
			panic(&domain.ProtocolError{
				Op:     "fire",
				Detail: fmt.Sprintf("dynamic input %s is still accumulating fragments", in.id),
			})
		}
	}
}

func compose(parts []*domain.Token) *domain.Token {
	last := parts[len(parts)-1]
	active := false
	for _, p := range parts {
		active = active || p.IsActive()
	}
	frags := make([]*domain.Token, len(parts))
	copy(frags, parts)
	return domain.NewToken(domain.Composite{Parts: frags}).Stamp(last.Sequence(), 0, active)
}

// NotifyMessageProcessed acknowledges the consumed tokens. While a
// multi-part stream is unfinished only the connections carrying fragments are
// acknowledged; the others stay READ and are reused by the next firing.
func (t *InputTransition) NotifyMessageProcessed() {
	unfinished := false
	for _, c := range t.Connections() {
		if c.State() != domain.ConnectionRead {
			continue
		}
		if tok := c.Token(); tok != nil && !tok.IsLastPart() {
			unfinished = true
		}
	}

	for _, in := range t.inputs {
		c := in.Connection()
		if c == nil || !c.IsEstablished() {
			if !unfinished {
				in.token = nil
			}
			continue
		}
		if c.State() != domain.ConnectionRead {
			continue
		}
		tok := c.Token()
		if unfinished && (tok == nil || !tok.IsMultiPart()) {
			continue
		}
		in.token = nil
		in.composed = nil
		c.markDone()
	}
}

// Tokens returns the snapshot of the current firing, by input index.
func (t *InputTransition) Tokens() []*domain.Token {
	out := make([]*domain.Token, len(t.inputs))
	for i, in := range t.inputs {
		out[i] = in.token
	}
	return out
}

// Reset drops every snapshot and reassembly buffer and acknowledges pending
// tokens so that upstream is not left waiting.
func (t *InputTransition) Reset() {
	for _, in := range t.inputs {
		in.clear()
		c := in.Connection()
		if c == nil || !c.IsEstablished() {
			continue
		}
		switch c.State() {
		case domain.ConnectionUnread:
			c.markRead()
			c.markDone()
		case domain.ConnectionRead:
			c.markDone()
		}
	}
}
