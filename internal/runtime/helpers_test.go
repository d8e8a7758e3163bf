package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/stretchr/testify/require"
)

// queue is a deterministic executor: tasks only run when the test drains it.
type queue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queue) Execute(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

func (q *queue) step() bool {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.mu.Unlock()
	task()
	return true
}

func (q *queue) drain(t *testing.T) {
	t.Helper()
	for i := 0; q.step(); i++ {
		if i > 100000 {
			t.Fatal("queue did not settle")
		}
	}
}

type fragment struct {
	value any
	last  bool
}

// manualSource ticks once per pending value. A nil value produces a commit
// without payload (NoMessage). An error value fails the tick.
type manualSource struct {
	pending []any
}

func (s *manualSource) Setup(b ports.PortBuilder) error {
	b.AddOutput(domain.PortSpec{Name: "out"})
	return nil
}

func (s *manualSource) Process(context.Context, ports.IO) error { return nil }

func (s *manualSource) CanTick() bool { return len(s.pending) > 0 }

func (s *manualSource) Tick(_ context.Context, io ports.IO) (bool, error) {
	v := s.pending[0]
	s.pending = s.pending[1:]
	switch x := v.(type) {
	case nil:
	case error:
		return false, x
	case *domain.Token:
		return true, io.WriteToken("out", x)
	case fragment:
		if err := io.Write("out", x.value); err != nil {
			return false, err
		}
		return true, io.SetMultipart("out", true, x.last)
	default:
		return true, io.Write("out", v)
	}
	return true, nil
}

// relay copies its input to its output. It fails while failures is
// positive, once per call.
type relay struct {
	calls     int
	err       error
	failures  int
	panicWith any
}

func (r *relay) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in"})
	b.AddOutput(domain.PortSpec{Name: "out"})
	return nil
}

func (r *relay) Process(_ context.Context, io ports.IO) error {
	r.calls++
	if r.panicWith != nil {
		panic(r.panicWith)
	}
	if r.err != nil {
		return r.err
	}
	if r.failures > 0 {
		r.failures--
		return errors.New("transient failure")
	}
	return io.Write("out", io.Value("in"))
}

// recorder is a sink that keeps every token and marker it sees. NoMessage
// markers are only kept when noMessages is set.
type recorder struct {
	dynamic    bool
	noMessages bool
	tokens     []*domain.Token
	markers    []*domain.Token
}

func (r *recorder) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in", Dynamic: r.dynamic})
	return nil
}

func (r *recorder) Process(_ context.Context, io ports.IO) error {
	tok, err := io.Read("in")
	if err != nil {
		return err
	}
	r.tokens = append(r.tokens, tok)
	return nil
}

func (r *recorder) ProcessMarker(t *domain.Token) { r.markers = append(r.markers, t) }
func (r *recorder) ProcessNoMessageMarkers() bool { return r.noMessages }

func (r *recorder) values() []any {
	out := make([]any, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t.Payload())
	}
	return out
}

// pair has a mandatory input a and an input b that may be optional.
type pair struct {
	optionalB bool
	seen      [][2]*domain.Token
}

func (p *pair) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "a"})
	b.AddInput(domain.PortSpec{Name: "b", Optional: p.optionalB})
	return nil
}

func (p *pair) Process(_ context.Context, io ports.IO) error {
	a, err := io.Read("a")
	if err != nil {
		return err
	}
	b, err := io.Read("b")
	if err != nil {
		return err
	}
	p.seen = append(p.seen, [2]*domain.Token{a, b})
	return nil
}

// asyncSink completes only when the test calls complete.
type asyncSink struct {
	calls int
	ctx   context.Context
	done  ports.Continuation
}

func (a *asyncSink) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in"})
	return nil
}

func (a *asyncSink) Process(context.Context, ports.IO) error {
	return errors.New("synchronous call on asynchronous node")
}

func (a *asyncSink) ProcessAsync(ctx context.Context, _ ports.IO, done ports.Continuation) error {
	a.calls++
	a.ctx = ctx
	a.done = done
	return nil
}

func (a *asyncSink) complete(err error) {
	a.done(func(ports.IO) error { return err })
}

func newTestWorker(t *testing.T, q *queue, p ports.Processor, opts ...Option) *Worker {
	t.Helper()
	w, err := NewWorker(domain.NewNodeState("test"), p, append([]Option{WithExecutor(q)}, opts...)...)
	require.NoError(t, err)
	return w
}

func link(t *testing.T, from *Worker, output string, to *Worker, input string) *Connection {
	t.Helper()
	o, err := from.Output(output)
	require.NoError(t, err)
	in, err := to.Input(input)
	require.NoError(t, err)
	c, err := Connect(o, in)
	require.NoError(t, err)
	return c
}

func push(q *queue, w *Worker, src *manualSource, values ...any) {
	src.pending = append(src.pending, values...)
	w.TriggerTryProcess()
}
