package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_FiresOnlyWhenEveryInputHoldsAToken(t *testing.T) {
	q := &queue{}
	srcA, srcB := &manualSource{}, &manualSource{}
	a := newTestWorker(t, q, srcA)
	b := newTestWorker(t, q, srcB)
	p := &pair{}
	n := newTestWorker(t, q, p)
	ca := link(t, a, "out", n, "a")
	cb := link(t, b, "out", n, "b")
	q.drain(t)

	push(q, a, srcA, 1)
	q.drain(t)
	assert.Empty(t, p.seen, "must not fire while an input is READY_TO_RECEIVE")
	assert.Equal(t, domain.ConnectionUnread, ca.State())
	assert.Equal(t, domain.ConnectionReadyToReceive, cb.State())

	push(q, b, srcB, 2)
	q.drain(t)
	require.Len(t, p.seen, 1)
	assert.Equal(t, 1, p.seen[0][0].Payload())
	assert.Equal(t, 2, p.seen[0][1].Payload())

	// sink acknowledged, sources recycled their connections
	assert.Equal(t, domain.ConnectionReadyToReceive, ca.State())
	assert.Equal(t, domain.ConnectionReadyToReceive, cb.State())
}

func TestWorker_OptionalUnconnectedInputReadsNoMessage(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	p := &pair{optionalB: true}
	n := newTestWorker(t, q, p)
	link(t, a, "out", n, "a")

	push(q, a, src, "x")
	q.drain(t)

	require.Len(t, p.seen, 1)
	assert.Equal(t, "x", p.seen[0][0].Payload())
	assert.True(t, p.seen[0][1].IsNoMessage())
}

func TestWorker_MandatoryUnconnectedInputBlocks(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	p := &pair{}
	n := newTestWorker(t, q, p)
	link(t, a, "out", n, "a")

	push(q, a, src, "x")
	q.drain(t)
	assert.Empty(t, p.seen)
	assert.NotEqual(t, domain.StateEnabled, n.State())
}

func TestWorker_MultipartReassembly(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	rec := &recorder{dynamic: true}
	sink := newTestWorker(t, q, rec)
	c := link(t, a, "out", sink, "in")

	push(q, a, src, fragment{value: "f1"}, fragment{value: "f2"}, fragment{value: "f3", last: true})
	q.drain(t)

	require.Len(t, rec.tokens, 1, "intermediate fragments must not fire the node")
	composite, ok := rec.tokens[0].Payload().(domain.Composite)
	require.True(t, ok)
	assert.Equal(t, []any{"f1", "f2", "f3"}, composite.Payloads())
	assert.Equal(t, int64(3), rec.tokens[0].Sequence())
	assert.Equal(t, domain.ConnectionReadyToReceive, c.State())
}

func TestWorker_SeparatorAbsorbsNoMessage(t *testing.T) {
	tests := []struct {
		name       string
		policy     MarkerPolicy
		wantOutSeq int64
	}{
		{"separator drops", MarkerPolicyFunc(func(uuid.UUID) bool { return true }), 0},
		{"forwarded otherwise", ForwardMarkers, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &queue{}
			src := &manualSource{}
			a := newTestWorker(t, q, src)
			r := &relay{}
			b := newTestWorker(t, q, r, WithMarkerPolicy(tt.policy))
			rec := &recorder{}
			c := newTestWorker(t, q, rec)
			link(t, a, "out", b, "in")
			bc := link(t, b, "out", c, "in")

			push(q, a, src, nil)
			q.drain(t)

			assert.Zero(t, r.calls, "node logic is skipped for markers")
			assert.Empty(t, rec.tokens)
			o, _ := b.Output("out")
			assert.Equal(t, tt.wantOutSeq, o.Sequence())
			assert.Equal(t, domain.ConnectionReadyToReceive, bc.State())

			// the source is released in both cases
			push(q, a, src, 5)
			q.drain(t)
			assert.Equal(t, 1, r.calls)
			assert.Equal(t, []any{5}, rec.values())
		})
	}
}

func TestWorker_EndOfSequenceIsForwarded(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	r := &relay{}
	b := newTestWorker(t, q, r, WithMarkerPolicy(MarkerPolicyFunc(func(uuid.UUID) bool { return true })))
	rec := &recorder{}
	c := newTestWorker(t, q, rec)
	link(t, a, "out", b, "in")
	link(t, b, "out", c, "in")

	push(q, a, src, domain.EndOfSequence())
	q.drain(t)

	assert.Zero(t, r.calls)
	assert.Empty(t, rec.tokens)
	require.Len(t, rec.markers, 1)
	assert.True(t, rec.markers[0].IsEndOfSequence())
}

func TestWorker_SequenceNumbersIncrease(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	rec := &recorder{}
	sink := newTestWorker(t, q, rec)
	link(t, a, "out", sink, "in")

	push(q, a, src, "a", "b", "c", "d")
	q.drain(t)

	require.Len(t, rec.tokens, 4)
	for i := 1; i < len(rec.tokens); i++ {
		assert.Greater(t, rec.tokens[i].Sequence(), rec.tokens[i-1].Sequence())
	}
	assert.Equal(t, []any{"a", "b", "c", "d"}, rec.values())
}

func chain(t *testing.T, mode domain.ExecutionMode) (*queue, *manualSource, *Worker, *relay, *Worker, *asyncSink, *Worker, *Connection, *Connection) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	r := &relay{}
	b := newTestWorker(t, q, r)
	b.SetExecutionMode(mode)
	sink := &asyncSink{}
	c := newTestWorker(t, q, sink)
	ab := link(t, a, "out", b, "in")
	bc := link(t, b, "out", c, "in")
	return q, src, a, r, b, sink, c, ab, bc
}

func TestWorker_SequentialChainHoldsUpstream(t *testing.T) {
	q, src, a, r, _, sink, c, ab, bc := chain(t, domain.Sequential)

	push(q, a, src, 1, 2)
	q.drain(t)

	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, domain.StateProcessing, c.State())
	assert.Equal(t, domain.ConnectionRead, ab.State(), "A->B stays READ until C acknowledged")
	assert.Equal(t, domain.ConnectionRead, bc.State())
	out, _ := a.Output("out")
	assert.Equal(t, int64(1), out.Sequence(), "A cannot commit #2 yet")

	sink.complete(nil)
	q.drain(t)

	assert.Equal(t, 2, r.calls)
	assert.Equal(t, 2, sink.calls)
	assert.Equal(t, int64(2), out.Sequence())
}

func TestWorker_PipeliningReleasesUpstreamEarly(t *testing.T) {
	q, src, a, r, b, sink, _, ab, bc := chain(t, domain.Pipelining)

	push(q, a, src, 1, 2)
	q.drain(t)

	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 1, sink.calls)
	out, _ := a.Output("out")
	assert.Equal(t, int64(2), out.Sequence(), "A commits #2 while C still processes #1")
	assert.Equal(t, domain.ConnectionUnread, ab.State())
	assert.Equal(t, domain.ConnectionRead, bc.State())
	assert.NotEqual(t, domain.StateEnabled, b.State(), "B waits for its own output capacity")

	sink.complete(nil)
	q.drain(t)
	assert.Equal(t, 2, r.calls)
	assert.Equal(t, 2, sink.calls)
}

func TestWorker_RecoverableErrorForwardsNoMessage(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	r := &relay{err: errors.New("bad input")}
	b := newTestWorker(t, q, r)
	rec := &recorder{noMessages: true}
	c := newTestWorker(t, q, rec)
	link(t, a, "out", b, "in")
	link(t, b, "out", c, "in")

	push(q, a, src, 1, 2)
	q.drain(t)

	assert.Equal(t, 2, r.calls, "upstream is released after an error")
	assert.Empty(t, rec.tokens)
	require.Len(t, rec.markers, 2, "each failed cycle reaches the sink as a marker")
	for _, m := range rec.markers {
		assert.True(t, m.IsNoMessage())
	}
	assert.False(t, b.IsHalted())
	assert.False(t, b.IsProcessing())

	var nodeErr *domain.NodeError
	require.ErrorAs(t, b.Error(), &nodeErr)
	assert.EqualError(t, nodeErr.Cause, "bad input")

	r.err = nil
	push(q, a, src, 3)
	q.drain(t)
	assert.NoError(t, b.Error())
	assert.Equal(t, []any{3}, rec.values())
	assert.Len(t, rec.markers, 2)
}

func TestWorker_RecoverableErrorKeepsBranchesAligned(t *testing.T) {
	for _, mode := range []domain.ExecutionMode{domain.Sequential, domain.Pipelining} {
		t.Run(mode.String(), func(t *testing.T) {
			q := &queue{}
			src := &manualSource{}
			a := newTestWorker(t, q, src)
			flaky := &relay{failures: 1}
			b := newTestWorker(t, q, flaky)
			c := newTestWorker(t, q, &relay{})
			p := &pair{}
			d := newTestWorker(t, q, p)
			for _, w := range []*Worker{a, b, c, d} {
				w.SetExecutionMode(mode)
			}
			link(t, a, "out", b, "in")
			link(t, a, "out", c, "in")
			link(t, b, "out", d, "a")
			link(t, c, "out", d, "b")

			push(q, a, src, 1, 2, 3)
			q.drain(t)

			require.Len(t, p.seen, 2, "the failed cycle never reaches node logic")
			for i, want := range []int{2, 3} {
				assert.Equal(t, want, p.seen[i][0].Payload())
				assert.Equal(t, want, p.seen[i][1].Payload())
			}
			assert.False(t, d.IsProcessing())
			assert.NoError(t, b.Error(), "a successful cycle clears the error")
		})
	}
}

func TestWorker_FailedTickForwardsNoMessage(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	rec := &recorder{noMessages: true}
	c := newTestWorker(t, q, rec)
	link(t, a, "out", c, "in")

	push(q, a, src, errors.New("sensor offline"), 7)
	q.drain(t)

	require.Len(t, rec.markers, 1)
	assert.True(t, rec.markers[0].IsNoMessage())
	assert.Equal(t, []any{7}, rec.values(), "the next tick runs once the marker is acknowledged")
	assert.NoError(t, a.Error())
	assert.False(t, a.IsHalted())
}

func TestWorker_FatalFailureHalts(t *testing.T) {
	tests := []struct {
		name  string
		relay *relay
	}{
		{"unrecoverable error", &relay{err: fmt.Errorf("device lost: %w", domain.ErrUnrecoverable)}},
		{"panic in node logic", &relay{panicWith: "kaboom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &queue{}
			src := &manualSource{}
			a := newTestWorker(t, q, src)
			var fatal []*domain.FatalError
			b := newTestWorker(t, q, tt.relay, WithFatalHandler(func(_ *Worker, err *domain.FatalError) {
				fatal = append(fatal, err)
			}))
			link(t, a, "out", b, "in")

			push(q, a, src, 1)
			q.drain(t)

			require.Len(t, fatal, 1)
			assert.True(t, b.IsHalted())
			assert.ErrorIs(t, b.Error(), domain.ErrUnrecoverable)

			push(q, a, src, 2)
			q.drain(t)
			assert.Equal(t, 1, tt.relay.calls, "a halted node never fires again")
		})
	}
}

func TestWorker_ProcessingDisabledForwardsNoMessage(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	r := &relay{}
	b := newTestWorker(t, q, r)
	rec := &recorder{}
	c := newTestWorker(t, q, rec)
	link(t, a, "out", b, "in")
	link(t, b, "out", c, "in")

	var enabledEvents []bool
	sub := b.Stream.Connect(func(e domain.Event) {
		if e.Type == domain.EventEnabledChanged {
			enabledEvents = append(enabledEvents, e.Enabled)
		}
	})
	defer sub.Close()

	b.SetProcessingEnabled(false)
	push(q, a, src, 1)
	q.drain(t)

	assert.Zero(t, r.calls)
	out, _ := b.Output("out")
	assert.Equal(t, int64(1), out.Sequence())
	assert.True(t, out.Committed().IsNoMessage())
	assert.Empty(t, rec.tokens)
	assert.Equal(t, []bool{false}, enabledEvents)

	b.SetProcessingEnabled(true)
	push(q, a, src, 2)
	q.drain(t)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, []any{2}, rec.values())
}

func TestWorker_EnableSlotsAndProcessedEvent(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	r := &relay{}
	b := newTestWorker(t, q, r)
	link(t, a, "out", b, "in")

	processed, err := a.Event(EventProcessed)
	require.NoError(t, err)
	disable, err := b.Slot(SlotDisable)
	require.NoError(t, err)
	require.NoError(t, ConnectEvent(processed, disable))

	push(q, a, src, 1)
	q.drain(t)

	assert.False(t, b.IsProcessingEnabled(), "the processed event of A disabled B")
}

func TestWorker_KillAndReset(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	r := &relay{}
	b := newTestWorker(t, q, r)
	link(t, a, "out", b, "in")

	b.Kill()
	push(q, a, src, 1)
	q.drain(t)
	assert.Zero(t, r.calls)
	assert.True(t, b.IsKilled())

	require.NoError(t, b.Reset())
	q.drain(t)
	assert.False(t, b.IsKilled())

	push(q, a, src, 2)
	q.drain(t)
	assert.Equal(t, 1, r.calls)
}

func TestWorker_ResetRefusedWhileProcessing(t *testing.T) {
	q, src, a, _, _, sink, c, _, _ := chain(t, domain.Sequential)
	push(q, a, src, 1)
	q.drain(t)
	require.True(t, c.IsProcessing())

	assert.ErrorIs(t, c.Reset(), domain.ErrNodeBusy)

	c.Kill()
	assert.Error(t, sink.ctx.Err(), "kill cancels the in-flight context")

	sink.complete(context.Canceled)
	q.drain(t)
	assert.False(t, c.IsProcessing())
	require.NoError(t, c.Reset())
}

func TestWorker_SwitchContextWaitsForCycleEnd(t *testing.T) {
	q, src, a, _, _, sink, c, _, _ := chain(t, domain.Sequential)
	push(q, a, src, 1)
	q.drain(t)
	require.True(t, c.IsProcessing())

	q2 := &queue{}
	c.SwitchContext(q2)
	assert.True(t, c.Executor() == ports.Executor(q), "no switch while processing")

	sink.complete(nil)
	q.drain(t)
	assert.True(t, c.Executor() == ports.Executor(q2))
	q2.drain(t)
}

func TestWorker_StreamReportsLifecycle(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	rec := &recorder{}
	sink := newTestWorker(t, q, rec)
	link(t, a, "out", sink, "in")

	var types []domain.EventType
	sub := sink.Stream.Connect(func(e domain.Event) { types = append(types, e.Type) })
	defer sub.Close()

	push(q, a, src, 1)
	q.drain(t)

	assert.Contains(t, types, domain.EventStateChanged)
	assert.Contains(t, types, domain.EventProcessingStarted)
	assert.Contains(t, types, domain.EventProcessingFinished)
}

func TestWorker_TeardownReleasesEverything(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	b := newTestWorker(t, q, &relay{})
	c := newTestWorker(t, q, &recorder{})
	ab := link(t, a, "out", b, "in")
	bc := link(t, b, "out", c, "in")
	q.drain(t)

	b.Teardown()
	q.drain(t)

	assert.False(t, ab.IsEstablished())
	assert.False(t, bc.IsEstablished())
	assert.False(t, a.OutputTransition().InFlight())
	o, _ := a.Output("out")
	assert.Empty(t, o.Connections())
}

func TestWorker_TryTeardownRefusesWhileProcessing(t *testing.T) {
	q := &queue{}
	src := &manualSource{}
	a := newTestWorker(t, q, src)
	sink := &asyncSink{}
	b := newTestWorker(t, q, sink)
	ab := link(t, a, "out", b, "in")
	q.drain(t)

	push(q, a, src, 1)
	q.drain(t)
	require.True(t, b.IsProcessing())

	assert.ErrorIs(t, b.TryTeardown(), domain.ErrNodeBusy)
	assert.False(t, b.IsHalted())
	assert.True(t, ab.IsEstablished())

	sink.complete(nil)
	q.drain(t)
	require.False(t, b.IsProcessing())

	require.NoError(t, b.TryTeardown())
	q.drain(t)
	assert.True(t, b.IsHalted())
	assert.False(t, ab.IsEstablished())
}

func TestNewWorker_RejectsDuplicatePorts(t *testing.T) {
	_, err := NewWorker(domain.NewNodeState("dup"), &duplicatePorts{})
	assert.Error(t, err)
}

type duplicatePorts struct{}

func (duplicatePorts) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in"})
	b.AddInput(domain.PortSpec{Name: "in"})
	return nil
}

func (duplicatePorts) Process(context.Context, ports.IO) error { return nil }
