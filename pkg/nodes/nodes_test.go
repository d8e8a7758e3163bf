package nodes

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queue) Execute(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		task()
	}
}

func node(t *testing.T, q *queue, p ports.Processor, params map[string]any) *runtime.Worker {
	t.Helper()
	state := domain.NewNodeState("test")
	for k, v := range params {
		state.Dictionary[k] = v
	}
	w, err := runtime.NewWorker(state, p, runtime.WithExecutor(q))
	require.NoError(t, err)
	return w
}

func pipe(t *testing.T, from *runtime.Worker, output string, to *runtime.Worker, input string) {
	t.Helper()
	o, err := from.Output(output)
	require.NoError(t, err)
	in, err := to.Input(input)
	require.NoError(t, err)
	_, err = runtime.Connect(o, in)
	require.NoError(t, err)
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestCounterScaleCollector(t *testing.T) {
	q := &queue{}
	counter := node(t, q, &Counter{}, map[string]any{"from": 1, "to": 3})
	scale := node(t, q, &Scale{}, map[string]any{"factor": "2"})
	sink := &Collector{}
	collector := node(t, q, sink, nil)
	pipe(t, counter, "out", scale, "in")
	pipe(t, scale, "out", collector, "in")

	q.drain()

	assert.Equal(t, []any{2.0, 4.0, 6.0}, sink.Values())
	assert.True(t, closed(sink.Done()), "end of sequence reached the collector")
	assert.False(t, counter.Processor().(*Counter).CanTick())
}

func TestChunksJoin(t *testing.T) {
	q := &queue{}
	chunks := node(t, q, &Chunks{}, map[string]any{"text": "hello world", "size": 4})
	join := node(t, q, &Join{}, nil)
	sink := &Collector{}
	collector := node(t, q, sink, nil)
	pipe(t, chunks, "out", join, "in")
	pipe(t, join, "out", collector, "in")

	q.drain()

	assert.Equal(t, []any{"hello world"}, sink.Values(), "three fragments arrive as one message")
	assert.True(t, closed(sink.Done()))
}

func TestFilterProducesNoMessage(t *testing.T) {
	q := &queue{}
	counter := node(t, q, &Counter{}, map[string]any{"to": 6})
	filter := node(t, q, &Filter{}, map[string]any{"modulo": 3})
	sink := &Collector{}
	collector := node(t, q, sink, nil)
	pipe(t, counter, "out", filter, "in")
	pipe(t, filter, "out", collector, "in")

	q.drain()

	assert.Equal(t, []any{3, 6}, sink.Values())
	assert.True(t, closed(sink.Done()))
}

func TestSumWithOptionalInput(t *testing.T) {
	t.Run("b unconnected", func(t *testing.T) {
		q := &queue{}
		counter := node(t, q, &Counter{}, map[string]any{"to": 2})
		sum := node(t, q, Sum{}, nil)
		sink := &Collector{}
		collector := node(t, q, sink, nil)
		pipe(t, counter, "out", sum, "a")
		pipe(t, sum, "out", collector, "in")

		q.drain()
		assert.Equal(t, []any{1.0, 2.0}, sink.Values())
	})

	t.Run("b connected", func(t *testing.T) {
		q := &queue{}
		a := node(t, q, &Counter{}, map[string]any{"to": 2, "eos": false})
		b := node(t, q, &Counter{}, map[string]any{"from": 10, "to": 11, "eos": false})
		sum := node(t, q, Sum{}, nil)
		sink := &Collector{}
		collector := node(t, q, sink, nil)
		pipe(t, a, "out", sum, "a")
		pipe(t, b, "out", sum, "b")
		pipe(t, sum, "out", collector, "in")

		q.drain()
		assert.Equal(t, []any{11.0, 13.0}, sink.Values())
		assert.False(t, closed(sink.Done()))
	})
}

func TestDelayCompletesAsynchronously(t *testing.T) {
	q := &queue{}
	counter := node(t, q, &Counter{}, map[string]any{"to": 3})
	delay := node(t, q, &Delay{}, map[string]any{"duration": "1ms"})
	sink := &Collector{}
	collector := node(t, q, sink, nil)
	pipe(t, counter, "out", delay, "in")
	pipe(t, delay, "out", collector, "in")

	require.Eventually(t, func() bool {
		q.drain()
		return closed(sink.Done())
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, []any{1, 2, 3}, sink.Values())
}

func TestPrinter(t *testing.T) {
	q := &queue{}
	var buf bytes.Buffer
	counter := node(t, q, &Counter{}, map[string]any{"to": 2})
	printer := node(t, q, NewPrinter(&buf), map[string]any{"prefix": "> "})
	pipe(t, counter, "out", printer, "in")

	q.drain()
	assert.Equal(t, "> 1\n> 2\n", buf.String())
}

func TestCounterReset(t *testing.T) {
	q := &queue{}
	counter := node(t, q, &Counter{}, map[string]any{"to": 1})
	sink := &Collector{}
	collector := node(t, q, sink, nil)
	pipe(t, counter, "out", collector, "in")
	q.drain()
	require.Equal(t, []any{1}, sink.Values())

	require.NoError(t, counter.Reset())
	q.drain()
	assert.Equal(t, []any{1, 1}, sink.Values())
}

func TestConfigureRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		p      ports.Processor
		params map[string]any
	}{
		{"counter step", &Counter{}, map[string]any{"step": 0}},
		{"chunk size", &Chunks{}, map[string]any{"size": -1}},
		{"filter modulo", &Filter{}, map[string]any{"modulo": 0}},
		{"delay duration", &Delay{}, map[string]any{"duration": "soon"}},
		{"scale factor", &Scale{}, map[string]any{"factor": "twice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.NewNodeState("test")
			state.Dictionary = tt.params
			_, err := runtime.NewWorker(state, tt.p)
			assert.Error(t, err)
		})
	}
}

func TestBuiltins(t *testing.T) {
	r := Builtins()
	for _, name := range []string{TypeCounter, TypeChunks, TypeRelay, TypeScale, TypeSum, TypeFilter, TypeJoin, TypeDelay, TypeCollector, TypePrinter} {
		p, err := r.New(name)
		require.NoError(t, err, name)
		_, err = runtime.NewWorker(domain.NewNodeState(name), p)
		assert.NoError(t, err, name)
	}
}
