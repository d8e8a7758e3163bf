package scheduling

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/sluice/internal/graph"
	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pass struct{}

func (pass) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in"})
	b.AddOutput(domain.PortSpec{Name: "out"})
	return nil
}

func (pass) Process(_ context.Context, io ports.IO) error {
	return io.Write("out", io.Value("in"))
}

type counter struct {
	mu   sync.Mutex
	next int
	stop int
}

func (c *counter) Setup(b ports.PortBuilder) error {
	b.AddOutput(domain.PortSpec{Name: "out"})
	return nil
}

func (c *counter) Process(context.Context, ports.IO) error { return nil }

func (c *counter) CanTick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next < c.stop
}

func (c *counter) Tick(_ context.Context, io ports.IO) (bool, error) {
	c.mu.Lock()
	c.next++
	v := c.next
	c.mu.Unlock()
	return true, io.Write("out", v)
}

type collect struct {
	mu   sync.Mutex
	seen []any
}

func (c *collect) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in"})
	return nil
}

func (c *collect) Process(_ context.Context, io ports.IO) error {
	c.mu.Lock()
	c.seen = append(c.seen, io.Value("in"))
	c.mu.Unlock()
	return nil
}

func (c *collect) values() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.seen...)
}

func add(t *testing.T, g *graph.Graph, p ports.Processor) *runtime.Worker {
	t.Helper()
	w, err := runtime.NewWorker(domain.NewNodeState("test"), p, runtime.WithMarkerPolicy(g.Policy()))
	require.NoError(t, err)
	require.NoError(t, g.AddNode(w))
	return w
}

func wire(t *testing.T, g *graph.Graph, from, to *runtime.Worker) (domain.PortID, domain.PortID) {
	t.Helper()
	o, err := from.Output("out")
	require.NoError(t, err)
	in, err := to.Input("in")
	require.NoError(t, err)
	_, err = g.Connect(o.ID(), in.ID())
	require.NoError(t, err)
	return o.ID(), in.ID()
}

func newPool(t *testing.T, g *graph.Graph, opts ...Option) *Pool {
	t.Helper()
	p := NewPool(g, opts...)
	t.Cleanup(func() {
		g.Close()
		require.NoError(t, p.Close())
	})
	return p
}

func contextOf(t *testing.T, p *Pool, id uuid.UUID) *Context {
	t.Helper()
	c, ok := p.ContextOf(id)
	require.True(t, ok)
	return c
}

func TestPool_GroupsConnectedComponents(t *testing.T) {
	g := graph.New()
	p := newPool(t, g, WithThreading(true), WithGrouping(true))

	x := add(t, g, pass{})
	y := add(t, g, pass{})
	z := add(t, g, pass{})
	from, to := wire(t, g, x, y)

	cx, cy, cz := contextOf(t, p, x.ID()), contextOf(t, p, y.ID()), contextOf(t, p, z.ID())
	assert.Same(t, cx, cy, "x and y share their component context")
	assert.NotSame(t, cx, cz)
	assert.Less(t, cx.ID(), 0)
	assert.Less(t, cz.ID(), 0)
	assert.Equal(t, UndefinedThreadID, x.NodeState().ThreadID)
	assert.Equal(t, cx.Name(), x.NodeState().ThreadName)

	require.NoError(t, g.Disconnect(from, to))

	cx, cy, cz = contextOf(t, p, x.ID()), contextOf(t, p, y.ID()), contextOf(t, p, z.ID())
	assert.NotSame(t, cx, cy, "the split puts x and y apart")
	assert.NotSame(t, cy, cz)
	assert.NotSame(t, cx, cz)

	// one context per component plus the default one nodes start on
	assert.Len(t, p.Contexts(), 4)
}

func TestPool_ComponentContextsAreTornDown(t *testing.T) {
	g := graph.New()
	p := newPool(t, g, WithThreading(true), WithGrouping(true))

	x := add(t, g, pass{})
	y := add(t, g, pass{})
	cy := contextOf(t, p, y.ID())
	wire(t, g, x, y)

	require.NotSame(t, cy, contextOf(t, p, y.ID()))
	select {
	case <-cy.Done():
	case <-time.After(time.Second):
		t.Fatal("unused component context is still running")
	}
}

func TestPool_PrivateContextsWithoutGrouping(t *testing.T) {
	g := graph.New()
	p := newPool(t, g, WithThreading(true))

	x := add(t, g, pass{})
	y := add(t, g, pass{})
	wire(t, g, x, y)

	cx, cy := contextOf(t, p, x.ID()), contextOf(t, p, y.ID())
	assert.NotSame(t, cx, cy)
	assert.Equal(t, PrivateThreadID, cx.ID())
	assert.Equal(t, PrivateThreadID, x.NodeState().ThreadID)
}

func TestPool_DefaultContextWithoutThreading(t *testing.T) {
	g := graph.New()
	p := newPool(t, g, WithGrouping(true))

	x := add(t, g, pass{})
	y := add(t, g, pass{})
	assert.Same(t, contextOf(t, p, x.ID()), contextOf(t, p, y.ID()))
	assert.Equal(t, defaultContextName, contextOf(t, p, x.ID()).Name())
	assert.Len(t, p.Contexts(), 1)
}

func TestPool_CustomGroups(t *testing.T) {
	g := graph.New()
	p := newPool(t, g, WithThreading(true), WithGrouping(true))
	x := add(t, g, pass{})
	y := add(t, g, pass{})
	z := add(t, g, pass{})

	io, err := p.CreateNewGroupFor(x.ID(), "io")
	require.NoError(t, err)
	assert.Equal(t, MinimumThreadID, io)

	again, err := p.CreateNewGroupFor(y.ID(), "io")
	require.NoError(t, err)
	assert.Equal(t, io, again, "groups are reused by name")
	assert.Same(t, contextOf(t, p, x.ID()), contextOf(t, p, y.ID()))
	assert.Equal(t, io, y.NodeState().ThreadID)

	gpu, err := p.CreateNewGroupFor(z.ID(), "gpu")
	require.NoError(t, err)
	assert.Equal(t, io+1, gpu)
	assert.Equal(t, []domain.GroupSpec{{ID: io, Name: "io"}, {ID: gpu, Name: "gpu"}}, p.Groups())

	assert.ErrorIs(t, p.DeleteGroup(io), domain.ErrGroupNotEmpty)
	assert.ErrorIs(t, p.DeleteGroup(99), domain.ErrGroupNotFound)
	assert.ErrorIs(t, p.AddToGroup(x.ID(), 99), domain.ErrGroupNotFound)

	// structure changes leave custom assignments alone
	wire(t, g, x, z)
	assert.Equal(t, io, contextOf(t, p, x.ID()).ID())
	assert.Equal(t, gpu, contextOf(t, p, z.ID()).ID())

	require.NoError(t, p.UseDefaultContextFor(z.ID()))
	require.NoError(t, p.DeleteGroup(gpu))
	_, err = p.Group(gpu)
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)

	reused, err := p.CreateNewGroupFor(z.ID(), "render")
	require.NoError(t, err)
	assert.Equal(t, gpu, reused, "the last allocated id is recycled")

	require.NoError(t, p.AddToGroup(x.ID(), reused))
	require.NoError(t, p.AddToGroup(y.ID(), reused))
	require.NoError(t, p.DeleteGroup(io))
	next, err := p.CreateNewGroupFor(y.ID(), "late")
	require.NoError(t, err)
	assert.Equal(t, reused+1, next, "only the most recent id is reused")
}

func TestPool_GroupAssignmentReleasesPrivateContext(t *testing.T) {
	g := graph.New()
	p := newPool(t, g, WithThreading(true))
	x := add(t, g, pass{})

	private := contextOf(t, p, x.ID())
	require.Equal(t, PrivateThreadID, private.ID())

	id, err := p.CreateNewGroupFor(x.ID(), "io")
	require.NoError(t, err)
	assert.Equal(t, id, contextOf(t, p, x.ID()).ID())
	select {
	case <-private.Done():
	case <-time.After(time.Second):
		t.Fatal("private context is still running")
	}
}

func TestPool_SaveAndLoadSettings(t *testing.T) {
	g := graph.New()
	p := NewPool(g, WithThreading(true), WithGrouping(true))
	x := add(t, g, pass{})
	y := add(t, g, pass{})

	_, err := p.CreateNewGroupFor(x.ID(), "io")
	require.NoError(t, err)
	gpu, err := p.CreateNewGroupFor(y.ID(), "gpu")
	require.NoError(t, err)

	saved := p.SaveSettings()
	assert.Equal(t, gpu+1, saved.NextID)
	assert.Len(t, saved.Groups, 2)
	assert.ElementsMatch(t, []domain.GroupAssignment{{UUID: x.ID(), ID: MinimumThreadID}, {UUID: y.ID(), ID: gpu}}, saved.Assignments)
	require.NoError(t, p.Close())

	saved.Assignments = append(saved.Assignments, domain.GroupAssignment{UUID: uuid.New(), ID: gpu})
	restored := newPool(t, g, WithThreading(true), WithGrouping(true))
	require.NoError(t, restored.LoadSettings(saved))

	assert.Equal(t, saved.Groups, restored.Groups())
	assert.Equal(t, gpu, contextOf(t, restored, y.ID()).ID())
	assert.True(t, contextOf(t, restored, x.ID()).IsCustom())
	assert.Equal(t, saved.NextID, restored.SaveSettings().NextID)
}

func TestPool_SetGrouping(t *testing.T) {
	g := graph.New()
	p := newPool(t, g, WithThreading(true), WithGrouping(true))
	x := add(t, g, pass{})
	y := add(t, g, pass{})
	wire(t, g, x, y)
	require.Same(t, contextOf(t, p, x.ID()), contextOf(t, p, y.ID()))

	p.SetGrouping(false)
	assert.False(t, p.IsGrouping())
	assert.Equal(t, PrivateThreadID, contextOf(t, p, x.ID()).ID())
	assert.NotSame(t, contextOf(t, p, x.ID()), contextOf(t, p, y.ID()))

	p.SetGrouping(true)
	// private assignments are explicit and survive regrouping
	assert.Equal(t, PrivateThreadID, contextOf(t, p, x.ID()).ID())
}

func TestPool_RunsTheGraph(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"default context", nil},
		{"private contexts", []Option{WithThreading(true)}},
		{"component contexts", []Option{WithThreading(true), WithGrouping(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New()
			newPool(t, g, tt.opts...)

			src := &counter{}
			a := add(t, g, src)
			b := add(t, g, pass{})
			sink := &collect{}
			c := add(t, g, sink)
			wire(t, g, a, b)
			wire(t, g, b, c)

			src.mu.Lock()
			src.stop = 20
			src.mu.Unlock()
			a.TriggerTryProcess()
			require.Eventually(t, func() bool { return len(sink.values()) == 20 }, 5*time.Second, 5*time.Millisecond)

			got := sink.values()
			for i, v := range got {
				assert.Equal(t, i+1, v)
			}
		})
	}
}

func TestContext_RunsTasksInOrderAndDrainsOnStop(t *testing.T) {
	g := graph.New()
	p := newPool(t, g)
	c := p.startContext(MinimumThreadID, "test", true)

	var mu sync.Mutex
	var order []int
	for i := range 50 {
		c.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	c.Execute(func() { panic("ignored") })
	c.Stop()
	<-c.Done()

	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}

	late := make(chan struct{})
	c.Execute(func() { close(late) })
	select {
	case <-late:
	case <-time.After(time.Second):
		t.Fatal("task posted after stop was lost")
	}
}

func TestPool_CloseWaitsForTasksPostedToStoppedContexts(t *testing.T) {
	g := graph.New()
	defer g.Close()
	p := NewPool(g)
	c := p.startContext(MinimumThreadID, "test", true)
	c.Stop()
	<-c.Done()

	release := make(chan struct{})
	var finished atomic.Bool
	c.Execute(func() {
		<-release
		finished.Store(true)
	})

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, p.Close())
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a task was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	assert.True(t, finished.Load())

	var ran atomic.Bool
	c.Execute(func() { ran.Store(true) })
	assert.Never(t, ran.Load, 50*time.Millisecond, 5*time.Millisecond)
}
