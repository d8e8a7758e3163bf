// Package graph holds the node topology: workers, the connections between
// their ports and the structural analysis the scheduler and the marker policy
// depend on (connected components, separators, paths to essential nodes).
package graph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/observability"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/google/uuid"
)

// SeparatorPredicate decides whether a node may absorb NoMessage markers.
type SeparatorPredicate func(g *Graph, id uuid.UUID) bool

// DefaultSeparatorPredicate drops markers on articulation points that have no
// path to an essential node.
func DefaultSeparatorPredicate(g *Graph, id uuid.UUID) bool {
	return g.IsSeparator(id) && !g.LeadsToEssential(id)
}

// Option configures a Graph.
type Option func(*Graph)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// WithSeparatorPredicate replaces DefaultSeparatorPredicate.
func WithSeparatorPredicate(p SeparatorPredicate) Option {
	return func(g *Graph) {
		g.separator = p
	}
}

type link struct {
	event *runtime.Event
	slot  *runtime.Slot
}

// Graph owns the workers of one node graph.
type Graph struct {
	mu      sync.RWMutex
	workers map[uuid.UUID]*runtime.Worker
	order   []uuid.UUID
	edges   []*runtime.Connection
	links   []link
	cache   *analysis

	separator SeparatorPredicate
	logger    *slog.Logger

	NodeAdded        observability.Signal[*runtime.Worker]
	NodeRemoved      observability.Signal[*runtime.Worker]
	StructureChanged observability.Signal[*Graph]
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		workers:   make(map[uuid.UUID]*runtime.Worker),
		separator: DefaultSeparatorPredicate,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the marker policy workers of this graph should use.
func (g *Graph) Policy() runtime.MarkerPolicy {
	return runtime.MarkerPolicyFunc(func(id uuid.UUID) bool {
		return g.separator(g, id)
	})
}

// AddNode inserts a worker and announces it.
func (g *Graph) AddNode(w *runtime.Worker) error {
	g.mu.Lock()
	if _, exists := g.workers[w.ID()]; exists {
		g.mu.Unlock()
		return fmt.Errorf("node %s already in graph", w.ID())
	}
	g.workers[w.ID()] = w
	g.order = append(g.order, w.ID())
	g.cache = nil
	g.mu.Unlock()

	g.logger.Debug("node added", "node", w.DisplayName(), "type", w.Type())
	g.NodeAdded.Emit(w)
	g.StructureChanged.Emit(g)
	return nil
}

// RemoveNode disconnects and tears down a node. A node in the middle of a
// cycle is not removed; retry once it is idle again.
func (g *Graph) RemoveNode(id uuid.UUID) error {
	w, err := g.Worker(id)
	if err != nil {
		return err
	}
	if err := w.TryTeardown(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", w.DisplayName(), err)
	}

	g.mu.Lock()
	delete(g.workers, id)
	for i, existing := range g.order {
		if existing == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	edges := g.edges[:0]
	for _, c := range g.edges {
		if c.From().Owner() != w && c.To().Owner() != w {
			edges = append(edges, c)
		}
	}
	g.edges = edges
	links := g.links[:0]
	for _, l := range g.links {
		if l.event.Owner() != w && l.slot.Owner() != w {
			links = append(links, l)
		}
	}
	g.links = links
	g.cache = nil
	g.mu.Unlock()

	g.logger.Debug("node removed", "node", w.DisplayName())
	g.NodeRemoved.Emit(w)
	g.StructureChanged.Emit(g)
	return nil
}

// Worker looks a node up by id.
func (g *Graph) Worker(id uuid.UUID) (*runtime.Worker, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.workers[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrNodeNotFound)
	}
	return w, nil
}

// Workers returns the nodes in insertion order.
func (g *Graph) Workers() []*runtime.Worker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*runtime.Worker, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.workers[id])
	}
	return out
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Connect links two ports: an output to an input (returning the connection)
// or an event to a slot (returning nil).
func (g *Graph) Connect(from, to domain.PortID) (*runtime.Connection, error) {
	src, err := g.port(from)
	if err != nil {
		return nil, err
	}
	dst, err := g.port(to)
	if err != nil {
		return nil, err
	}

	var conn *runtime.Connection
	switch s := src.(type) {
	case *runtime.Output:
		in, ok := dst.(*runtime.Input)
		if !ok {
			return nil, fmt.Errorf("cannot connect %s to %s: outputs connect to inputs", from, to)
		}
		if conn, err = runtime.Connect(s, in); err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.edges = append(g.edges, conn)
		g.cache = nil
		g.mu.Unlock()
	case *runtime.Event:
		slot, ok := dst.(*runtime.Slot)
		if !ok {
			return nil, fmt.Errorf("cannot connect %s to %s: events connect to slots", from, to)
		}
		if err := runtime.ConnectEvent(s, slot); err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.links = append(g.links, link{event: s, slot: slot})
		g.cache = nil
		g.mu.Unlock()
	default:
		return nil, fmt.Errorf("cannot connect from %s: not an output or event", from)
	}

	g.StructureChanged.Emit(g)
	return conn, nil
}

// Disconnect removes the link between two ports.
func (g *Graph) Disconnect(from, to domain.PortID) error {
	g.mu.Lock()
	for i, c := range g.edges {
		if c.From().ID() == from && c.To().ID() == to {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			g.cache = nil
			g.mu.Unlock()
			runtime.Disconnect(c)
			g.StructureChanged.Emit(g)
			return nil
		}
	}
	for i, l := range g.links {
		if l.event.ID() == from && l.slot.ID() == to {
			g.links = append(g.links[:i], g.links[i+1:]...)
			g.cache = nil
			g.mu.Unlock()
			runtime.DisconnectEvent(l.event, l.slot)
			g.StructureChanged.Emit(g)
			return nil
		}
	}
	g.mu.Unlock()
	return fmt.Errorf("no connection %s -> %s: %w", from, to, domain.ErrPortNotFound)
}

// Connections lists every data connection and event link.
func (g *Graph) Connections() []domain.ConnectionSpec {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.ConnectionSpec, 0, len(g.edges)+len(g.links))
	for _, c := range g.edges {
		out = append(out, domain.ConnectionSpec{From: c.From().ID(), To: c.To().ID()})
	}
	for _, l := range g.links {
		out = append(out, domain.ConnectionSpec{From: l.event.ID(), To: l.slot.ID()})
	}
	return out
}

// DataConnections returns the live data connections.
func (g *Graph) DataConnections() []*runtime.Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*runtime.Connection, len(g.edges))
	copy(out, g.edges)
	return out
}

// Snapshot captures node states and connections. Thread settings belong to
// the scheduler and are filled in by the caller.
func (g *Graph) Snapshot() *domain.GraphSnapshot {
	snap := &domain.GraphSnapshot{Connections: g.Connections()}
	for _, w := range g.Workers() {
		snap.Nodes = append(snap.Nodes, *w.NodeState())
	}
	return snap
}

// Close tears every node down.
func (g *Graph) Close() {
	for _, w := range g.Workers() {
		w.Teardown()
	}
}

func (g *Graph) port(id domain.PortID) (any, error) {
	w, err := g.Worker(id.Node)
	if err != nil {
		return nil, err
	}
	return w.Port(id)
}

// Component returns the connected component of a node. Components are
// numbered from 0 in node insertion order.
func (g *Graph) Component(id uuid.UUID) (int, bool) {
	a := g.analysis()
	c, ok := a.component[id]
	return c, ok
}

// ComponentCount returns the number of connected components.
func (g *Graph) ComponentCount() int {
	return g.analysis().components
}

// IsSeparator reports whether removing the node disconnects the data graph.
func (g *Graph) IsSeparator(id uuid.UUID) bool {
	return g.analysis().separator[id]
}

// LeadsToEssential reports whether the node, or any node reachable from its
// outputs, must observe end-of-stream markers.
func (g *Graph) LeadsToEssential(id uuid.UUID) bool {
	return g.analysis().essential[id]
}

type analysis struct {
	component  map[uuid.UUID]int
	components int
	separator  map[uuid.UUID]bool
	essential  map[uuid.UUID]bool
}

func (g *Graph) analysis() *analysis {
	g.mu.RLock()
	if a := g.cache; a != nil {
		g.mu.RUnlock()
		return a
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cache == nil {
		g.cache = g.analyze()
	}
	return g.cache
}

// analyze must run with g.mu held.
func (g *Graph) analyze() *analysis {
	a := &analysis{
		component: make(map[uuid.UUID]int, len(g.order)),
		separator: make(map[uuid.UUID]bool),
		essential: make(map[uuid.UUID]bool),
	}

	undirected := make(map[uuid.UUID][]uuid.UUID)
	data := make(map[uuid.UUID][]uuid.UUID)
	downstream := make(map[uuid.UUID][]uuid.UUID)
	for _, c := range g.edges {
		from, to := c.From().Owner().ID(), c.To().Owner().ID()
		undirected[from] = append(undirected[from], to)
		undirected[to] = append(undirected[to], from)
		data[from] = append(data[from], to)
		data[to] = append(data[to], from)
		downstream[from] = append(downstream[from], to)
	}
	for _, l := range g.links {
		from, to := l.event.Owner().ID(), l.slot.Owner().ID()
		undirected[from] = append(undirected[from], to)
		undirected[to] = append(undirected[to], from)
	}

	for _, id := range g.order {
		if _, seen := a.component[id]; seen {
			continue
		}
		n := a.components
		a.components++
		a.component[id] = n
		queue := []uuid.UUID{id}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range undirected[cur] {
				if _, seen := a.component[next]; !seen {
					a.component[next] = n
					queue = append(queue, next)
				}
			}
		}
	}

	articulationPoints(g.order, data, a.separator)

	for _, id := range g.order {
		a.essential[id] = g.reachesEssential(id, downstream)
	}
	return a
}

func (g *Graph) reachesEssential(start uuid.UUID, downstream map[uuid.UUID][]uuid.UUID) bool {
	seen := map[uuid.UUID]bool{start: true}
	stack := []uuid.UUID{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e, ok := g.workers[cur].Processor().(ports.Essential); ok && e.IsEssential() {
			return true
		}
		for _, next := range downstream[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// articulationPoints marks the cut vertices of an undirected graph (Tarjan).
func articulationPoints(nodes []uuid.UUID, adj map[uuid.UUID][]uuid.UUID, out map[uuid.UUID]bool) {
	disc := make(map[uuid.UUID]int, len(nodes))
	low := make(map[uuid.UUID]int, len(nodes))
	timer := 0

	var visit func(u, parent uuid.UUID, root bool)
	visit = func(u, parent uuid.UUID, root bool) {
		timer++
		disc[u], low[u] = timer, timer
		children := 0
		skippedParent := false
		for _, v := range adj[u] {
			if !root && v == parent && !skippedParent {
				// one parallel edge back to the parent is the tree edge itself
				skippedParent = true
				continue
			}
			if _, seen := disc[v]; !seen {
				children++
				visit(v, u, false)
				low[u] = min(low[u], low[v])
				if !root && low[v] >= disc[u] {
					out[u] = true
				}
			} else {
				low[u] = min(low[u], disc[v])
			}
		}
		if root && children > 1 {
			out[u] = true
		}
	}

	for _, id := range nodes {
		if _, seen := disc[id]; !seen {
			visit(id, id, true)
		}
	}
}
