package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aretw0/sluice/pkg/domain"
)

type port struct {
	owner   *Worker
	id      domain.PortID
	spec    domain.PortSpec
	enabled atomic.Bool
	mu      sync.RWMutex
}

func (p *port) init(owner *Worker, dir domain.Direction, index int, spec domain.PortSpec) {
	p.owner = owner
	p.id = domain.PortID{Node: owner.id, Direction: dir, Index: index}
	p.spec = spec
	p.enabled.Store(true)
}

func (p *port) ID() domain.PortID       { return p.id }
func (p *port) Name() string            { return p.spec.Name }
func (p *port) Spec() domain.PortSpec   { return p.spec }
func (p *port) Owner() *Worker          { return p.owner }
func (p *port) IsEnabled() bool         { return p.enabled.Load() }
func (p *port) SetEnabled(enabled bool) { p.enabled.Store(enabled) }

// Input receives tokens from at most one connection.
type Input struct {
	port
	conn *Connection

	// Owned by the worker's task: snapshot and reassembly state.
	token     *domain.Token
	fragments []*domain.Token
	composed  *domain.Token
}

func (in *Input) IsOptional() bool { return in.spec.Optional }
func (in *Input) IsDynamic() bool  { return in.spec.Dynamic }

// Connection returns the inbound connection, or nil.
func (in *Input) Connection() *Connection {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.conn
}

// IsConnected reports whether an established connection feeds this input.
func (in *Input) IsConnected() bool {
	c := in.Connection()
	return c != nil && c.IsEstablished()
}

// isOpen reports whether the input is accumulating multi-part fragments.
func (in *Input) isOpen() bool { return len(in.fragments) > 0 }

func (in *Input) attach(c *Connection) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.conn != nil {
		return fmt.Errorf("%s: %w", in.id, domain.ErrAlreadyConnected)
	}
	in.conn = c
	return nil
}

func (in *Input) detach(c *Connection) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.conn == c {
		in.conn = nil
	}
}

func (in *Input) clear() {
	in.token = nil
	in.fragments = nil
	in.composed = nil
}

// Output buffers one token per cycle and fans it out on commit.
type Output struct {
	port
	conns []*Connection

	// Owned by the worker's task.
	buffer    *domain.Token
	committed *domain.Token
	seq       atomic.Int64
	flags     domain.Flags
}

// Connections returns a copy of the outgoing connections.
func (o *Output) Connections() []*Connection {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Connection, len(o.conns))
	copy(out, o.conns)
	return out
}

func (o *Output) IsConnected() bool {
	for _, c := range o.Connections() {
		if c.IsEstablished() {
			return true
		}
	}
	return false
}

// Committed returns the token sent by the last commit.
func (o *Output) Committed() *domain.Token { return o.committed }

// Sequence returns the sequence number of the last commit.
func (o *Output) Sequence() int64 { return o.seq.Load() }

func (o *Output) attach(c *Connection) {
	o.mu.Lock()
	o.conns = append(o.conns, c)
	o.mu.Unlock()
}

func (o *Output) detach(c *Connection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.conns {
		if existing == c {
			o.conns = append(o.conns[:i], o.conns[i+1:]...)
			return
		}
	}
}

// Slot receives activation signals from events. The handler runs on the
// owning worker's execution context.
type Slot struct {
	port
	handler func(payload any)
	sources []*Event
}

func (s *Slot) deliver(payload any) {
	if !s.IsEnabled() {
		return
	}
	s.owner.schedule(func() error {
		s.handler(payload)
		return nil
	})
}

// Event triggers every connected slot.
type Event struct {
	port
	slots []*Slot
}

func (e *Event) Slots() []*Slot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Slot, len(e.slots))
	copy(out, e.slots)
	return out
}

func (e *Event) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.slots) > 0
}

// Trigger delivers payload to every connected slot.
func (e *Event) Trigger(payload any) {
	if !e.IsEnabled() {
		return
	}
	for _, s := range e.Slots() {
		s.deliver(payload)
	}
}

// ConnectEvent links an event to a slot.
func ConnectEvent(e *Event, s *Slot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.slots {
		if existing == s {
			return fmt.Errorf("%s -> %s: %w", e.id, s.id, domain.ErrAlreadyConnected)
		}
	}
	e.slots = append(e.slots, s)

	s.mu.Lock()
	s.sources = append(s.sources, e)
	s.mu.Unlock()
	return nil
}

// DisconnectEvent removes the link between an event and a slot.
func DisconnectEvent(e *Event, s *Slot) {
	e.mu.Lock()
	for i, existing := range e.slots {
		if existing == s {
			e.slots = append(e.slots[:i], e.slots[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	s.mu.Lock()
	for i, existing := range s.sources {
		if existing == e {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

func (s *Slot) Sources() []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Event, len(s.sources))
	copy(out, s.sources)
	return out
}
