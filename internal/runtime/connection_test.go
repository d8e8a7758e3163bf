package runtime

import (
	"errors"
	"testing"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protocolPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a protocol violation")
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, domain.ErrProtocolViolation), "got %v", err)
	}()
	fn()
}

func TestConnection_Protocol(t *testing.T) {
	q := &queue{}
	a := newTestWorker(t, q, &relay{})
	b := newTestWorker(t, q, &relay{})

	c := link(t, a, "out", b, "in")
	assert.True(t, c.IsEstablished())
	assert.Equal(t, domain.ConnectionReadyToReceive, c.State())

	tok := domain.NewToken(1)
	c.write(tok)
	assert.Equal(t, domain.ConnectionUnread, c.State())
	assert.Same(t, tok, c.Token())

	c.markRead()
	assert.Equal(t, domain.ConnectionRead, c.State())
	c.markDone()
	assert.Equal(t, domain.ConnectionDone, c.State())
	c.recycle()
	assert.Equal(t, domain.ConnectionReadyToReceive, c.State())
	assert.Nil(t, c.Token())
}

func TestConnection_IllegalTransitionsPanic(t *testing.T) {
	q := &queue{}
	a := newTestWorker(t, q, &relay{})
	b := newTestWorker(t, q, &relay{})
	c := link(t, a, "out", b, "in")

	t.Run("done before read", func(t *testing.T) {
		protocolPanic(t, c.markDone)
	})
	t.Run("recycle before done", func(t *testing.T) {
		protocolPanic(t, c.recycle)
	})
	t.Run("write twice", func(t *testing.T) {
		c.write(domain.NewToken(1))
		protocolPanic(t, func() { c.write(domain.NewToken(2)) })
	})
}

func TestConnection_SignalsNotifyEndpoints(t *testing.T) {
	q := &queue{}
	a := newTestWorker(t, q, &relay{})
	b := newTestWorker(t, q, &relay{})
	c := link(t, a, "out", b, "in")

	var messages, processed int
	sub1 := c.NewMessage.Connect(func(*Connection) { messages++ })
	sub2 := c.Processed.Connect(func(*Connection) { processed++ })
	defer sub1.Close()
	defer sub2.Close()

	c.write(domain.NewToken(1))
	c.markRead()
	c.markDone()
	assert.Equal(t, 1, messages)
	assert.Equal(t, 1, processed)
}

func TestConnect_RejectsSecondSourceOnInput(t *testing.T) {
	q := &queue{}
	a := newTestWorker(t, q, &relay{})
	b := newTestWorker(t, q, &relay{})
	c := newTestWorker(t, q, &relay{})
	link(t, a, "out", c, "in")

	o, _ := b.Output("out")
	in, _ := c.Input("in")
	_, err := Connect(o, in)
	assert.ErrorIs(t, err, domain.ErrAlreadyConnected)
}

func TestDisconnect_TearsDownAndReleasesSubscriptions(t *testing.T) {
	q := &queue{}
	a := newTestWorker(t, q, &relay{})
	b := newTestWorker(t, q, &relay{})
	c := link(t, a, "out", b, "in")
	require.Equal(t, 1, c.NewMessage.Len())

	c.write(domain.NewToken(1))
	Disconnect(c)

	assert.False(t, c.IsEstablished())
	assert.Nil(t, c.Token())
	assert.Equal(t, domain.ConnectionNotInitialized, c.State())
	assert.Zero(t, c.NewMessage.Len())
	assert.Zero(t, c.Processed.Len())

	in, _ := b.Input("in")
	assert.Nil(t, in.Connection())
	o, _ := a.Output("out")
	assert.Empty(t, o.Connections())

	// a torn connection ignores late protocol calls
	c.markRead()
	c.markDone()
}
