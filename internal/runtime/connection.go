package runtime

import (
	"fmt"
	"sync"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/observability"
)

// Connection is a directed edge from an Output to an Input. It buffers at most
// one token and enforces the firing protocol:
//
//	NOT_INITIALIZED → READY_TO_RECEIVE → UNREAD → READ → DONE → READY_TO_RECEIVE
//
// The source writes (READY_TO_RECEIVE → UNREAD) and recycles (DONE →
// READY_TO_RECEIVE); the sink reads (UNREAD → READ) and acknowledges
// (READ → DONE). Any other transition is a protocol violation and panics.
type Connection struct {
	mu    sync.Mutex
	from  *Output
	to    *Input
	state domain.ConnectionState
	token *domain.Token

	enabled           bool
	sourceEstablished bool
	sinkEstablished   bool
	torn              bool

	// NewMessage fires after the source wrote a token.
	NewMessage observability.Signal[*Connection]
	// Processed fires after the sink acknowledged a token.
	Processed observability.Signal[*Connection]

	subs observability.Subscriptions
}

func newConnection(from *Output, to *Input) *Connection {
	return &Connection{
		from:    from,
		to:      to,
		state:   domain.ConnectionNotInitialized,
		enabled: true,
	}
}

func (c *Connection) From() *Output { return c.from }
func (c *Connection) To() *Input    { return c.to }

func (c *Connection) String() string {
	return fmt.Sprintf("%s -> %s", c.from.ID(), c.to.ID())
}

// State returns the current protocol state.
func (c *Connection) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Token returns the buffered token, if any.
func (c *Connection) Token() *domain.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// IsEstablished reports whether both endpoints are established.
func (c *Connection) IsEstablished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.torn && c.sourceEstablished && c.sinkEstablished
}

func (c *Connection) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Connection) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

func (c *Connection) establishSource() { c.establish(func() { c.sourceEstablished = true }) }
func (c *Connection) establishSink()   { c.establish(func() { c.sinkEstablished = true }) }

func (c *Connection) establish(mark func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return
	}
	mark()
	if c.sourceEstablished && c.sinkEstablished && c.state == domain.ConnectionNotInitialized {
		c.state = domain.ConnectionReadyToReceive
	}
}

// write buffers a committed token. The connection must be READY_TO_RECEIVE.
func (c *Connection) write(t *domain.Token) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	if c.state != domain.ConnectionReadyToReceive {
		state := c.state
		c.mu.Unlock()
		panic(&domain.ProtocolError{
			Op:     "write",
			Detail: fmt.Sprintf("connection %s is %s, expected %s", c, state, domain.ConnectionReadyToReceive),
		})
	}
	c.token = t
	c.state = domain.ConnectionUnread
	c.mu.Unlock()

	c.NewMessage.Emit(c)
}

// markRead moves UNREAD → READ. READ is left as is.
func (c *Connection) markRead() {
	c.transition(domain.ConnectionRead, domain.ConnectionUnread, domain.ConnectionRead)
}

// markDone acknowledges the token (READ → DONE).
func (c *Connection) markDone() {
	if c.transition(domain.ConnectionDone, domain.ConnectionRead) {
		c.Processed.Emit(c)
	}
}

// recycle makes a DONE connection available to the source again.
func (c *Connection) recycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return
	}
	if c.state != domain.ConnectionDone {
		panic(&domain.ProtocolError{
			Op:     "recycle",
			Detail: fmt.Sprintf("connection %s is %s, expected %s", c, c.state, domain.ConnectionDone),
		})
	}
	c.token = nil
	c.state = domain.ConnectionReadyToReceive
}

// transition moves to next if the current state is one of from. It reports
// whether the state changed.
func (c *Connection) transition(next domain.ConnectionState, from ...domain.ConnectionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return false
	}
	for _, s := range from {
		if c.state == s {
			changed := c.state != next
			c.state = next
			return changed
		}
	}
	panic(&domain.ProtocolError{
		Op:     "transition",
		Detail: fmt.Sprintf("illegal transition %s -> %s on %s", c.state, next, c),
	})
}

// teardown discards the buffered token and releases every subscription.
func (c *Connection) teardown() {
	c.mu.Lock()
	c.torn = true
	c.token = nil
	c.state = domain.ConnectionNotInitialized
	c.sourceEstablished = false
	c.sinkEstablished = false
	c.mu.Unlock()

	c.subs.Close()
}

func (c *Connection) isTorn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.torn
}

// Connect links an output to an input and establishes the connection.
// Static and dynamic inputs accept a single inbound connection.
func Connect(from *Output, to *Input) (*Connection, error) {
	if from.owner == to.owner {
		return nil, fmt.Errorf("cannot connect %s to its own input %s", from.ID(), to.ID())
	}
	c := newConnection(from, to)
	if err := to.attach(c); err != nil {
		return nil, err
	}
	from.attach(c)

	source, sink := from.owner, to.owner
	c.subs.Add(
		c.NewMessage.Connect(func(*Connection) { sink.TriggerTryProcess() }),
		c.Processed.Connect(func(*Connection) { source.triggerOutputCheck() }),
	)

	c.establishSource()
	c.establishSink()

	source.TriggerTryProcess()
	sink.TriggerTryProcess()
	return c, nil
}

// Disconnect removes the connection from both ports and tears it down.
func Disconnect(c *Connection) {
	c.from.detach(c)
	c.to.detach(c)
	c.teardown()

	c.from.owner.triggerOutputCheck()
	c.to.owner.TriggerTryProcess()
}
