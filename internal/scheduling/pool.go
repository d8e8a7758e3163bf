// Package scheduling maps node workers to execution contexts and keeps that
// mapping coherent while the graph changes.
package scheduling

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/sluice/internal/graph"
	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Context identifiers reported to the workers.
const (
	UndefinedThreadID = -1
	PrivateThreadID   = 0
	MinimumThreadID   = 1
)

const defaultContextName = "default"

// Option configures a Pool.
type Option func(*Pool)

// WithThreading enables parallel execution. Without it every node shares the
// default context.
func WithThreading(enabled bool) Option {
	return func(p *Pool) {
		p.threading = enabled
	}
}

// WithGrouping enables automatic assignment of one context per connected
// component.
func WithGrouping(enabled bool) Option {
	return func(p *Pool) {
		p.grouping = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithMetrics reports the number of live contexts.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// Pool assigns every worker of a graph to exactly one context: private,
// default, a custom group or an automatic component group.
//
// Pool methods take the pool lock and may wait for a worker to finish a
// synchronous processing call; node logic must not call into the pool.
type Pool struct {
	mu    sync.Mutex
	graph *graph.Graph

	threading bool
	grouping  bool
	nextID    int

	defaultCtx *Context
	private    map[uuid.UUID]*Context
	groups     []domain.GroupSpec
	groupCtx   map[int]*Context
	assignment map[uuid.UUID]int
	components map[int]*Context
	current    map[uuid.UUID]*Context

	eg       errgroup.Group
	lateMu   sync.Mutex
	draining bool
	subs     observability.Subscriptions
	closed   bool
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewPool attaches a pool to g. Nodes already in the graph are assigned
// immediately.
func NewPool(g *graph.Graph, opts ...Option) *Pool {
	p := &Pool{
		graph:      g,
		nextID:     MinimumThreadID,
		private:    make(map[uuid.UUID]*Context),
		groupCtx:   make(map[int]*Context),
		assignment: make(map[uuid.UUID]int),
		components: make(map[int]*Context),
		current:    make(map[uuid.UUID]*Context),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.subs.Add(
		g.NodeAdded.Connect(p.nodeAdded),
		g.NodeRemoved.Connect(p.nodeRemoved),
		g.StructureChanged.Connect(func(*graph.Graph) { p.structureChanged() }),
	)
	for _, w := range g.Workers() {
		p.nodeAdded(w)
	}
	p.structureChanged()
	return p
}

func (p *Pool) IsThreading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threading
}

func (p *Pool) IsGrouping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grouping
}

func (p *Pool) nodeAdded(w *runtime.Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.threading && !p.grouping {
		p.usePrivate(w)
	} else {
		// with grouping the next structure change moves the node
		p.useDefault(w)
	}
	p.report()
}

func (p *Pool) nodeRemoved(w *runtime.Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletePrivate(w.ID())
	delete(p.assignment, w.ID())
	delete(p.current, w.ID())
	p.report()
}

// UsePrivateContextFor gives a node a dedicated context.
func (p *Pool) UsePrivateContextFor(id uuid.UUID) error {
	w, err := p.graph.Worker(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usePrivate(w)
	p.report()
	return nil
}

// UseDefaultContextFor moves a node back to the shared default context.
func (p *Pool) UseDefaultContextFor(id uuid.UUID) error {
	w, err := p.graph.Worker(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assignment, id)
	p.useDefault(w)
	p.report()
	return nil
}

func (p *Pool) usePrivate(w *runtime.Worker) {
	delete(p.assignment, w.ID())
	if _, ok := p.private[w.ID()]; ok {
		return
	}
	name := w.ID().String()[:8]
	c := p.startContext(PrivateThreadID, name, false)
	p.private[w.ID()] = c
	p.switchTo(w, c, PrivateThreadID)
}

func (p *Pool) useDefault(w *runtime.Worker) {
	if p.defaultCtx == nil {
		p.defaultCtx = p.startContext(UndefinedThreadID, defaultContextName, false)
	}
	p.switchTo(w, p.defaultCtx, UndefinedThreadID)
	p.deletePrivate(w.ID())
}

func (p *Pool) deletePrivate(id uuid.UUID) {
	if c, ok := p.private[id]; ok {
		c.Stop()
		delete(p.private, id)
	}
}

// AddToGroup moves a node into an existing custom group. Any private context
// of the node is released.
func (p *Pool) AddToGroup(id uuid.UUID, groupID int) error {
	w, err := p.graph.Worker(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.groupCtx[groupID]
	if !ok {
		return fmt.Errorf("group %d: %w", groupID, domain.ErrGroupNotFound)
	}
	p.assignment[id] = groupID
	p.switchTo(w, c, groupID)
	p.deletePrivate(id)
	p.report()
	return nil
}

// CreateNewGroupFor puts a node into the custom group called name, creating
// it when no group has that name. It returns the group id.
func (p *Pool) CreateNewGroupFor(id uuid.UUID, name string) (int, error) {
	w, err := p.graph.Worker(id)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, g := range p.groups {
		if g.Name == name {
			p.assignment[id] = g.ID
			p.switchTo(w, p.groupCtx[g.ID], g.ID)
			p.deletePrivate(id)
			p.report()
			return g.ID, nil
		}
	}

	group := domain.GroupSpec{ID: p.nextID, Name: name}
	p.nextID++
	p.addGroup(group)
	p.assignment[id] = group.ID
	p.switchTo(w, p.groupCtx[group.ID], group.ID)
	p.deletePrivate(id)
	p.logger.Info("thread group created", "group", group.ID, "name", name)
	p.report()
	return group.ID, nil
}

func (p *Pool) addGroup(group domain.GroupSpec) {
	if group.Name == "" {
		group.Name = fmt.Sprintf("Thread %d", group.ID)
	}
	p.groups = append(p.groups, group)
	p.groupCtx[group.ID] = p.startContext(group.ID, group.Name, true)
}

// DeleteGroup removes an empty custom group. When it was the most recently
// allocated one its id becomes available again.
func (p *Pool) DeleteGroup(groupID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.groupCtx[groupID]
	if !ok {
		return fmt.Errorf("group %d: %w", groupID, domain.ErrGroupNotFound)
	}
	for _, assigned := range p.assignment {
		if assigned == groupID {
			return fmt.Errorf("group %d: %w", groupID, domain.ErrGroupNotEmpty)
		}
	}

	c.Stop()
	delete(p.groupCtx, groupID)
	for i, g := range p.groups {
		if g.ID == groupID {
			p.groups = append(p.groups[:i], p.groups[i+1:]...)
			break
		}
	}
	if groupID == p.nextID-1 {
		p.nextID = groupID
	}
	p.logger.Info("thread group deleted", "group", groupID)
	p.report()
	return nil
}

// Groups returns the custom groups in creation order.
func (p *Pool) Groups() []domain.GroupSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.GroupSpec, len(p.groups))
	copy(out, p.groups)
	return out
}

// Group looks up a custom group.
func (p *Pool) Group(id int) (domain.GroupSpec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return domain.GroupSpec{}, fmt.Errorf("group %d: %w", id, domain.ErrGroupNotFound)
}

// ContextOf returns the context a node is assigned to.
func (p *Pool) ContextOf(id uuid.UUID) (*Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.current[id]
	return c, ok
}

// Contexts returns the live contexts ordered by name.
func (p *Pool) Contexts() []*Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live()
}

func (p *Pool) live() []*Context {
	var out []*Context
	if p.defaultCtx != nil {
		out = append(out, p.defaultCtx)
	}
	for _, c := range p.private {
		out = append(out, c)
	}
	for _, c := range p.groupCtx {
		out = append(out, c)
	}
	for _, c := range p.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SetGrouping toggles automatic component grouping at runtime.
func (p *Pool) SetGrouping(enabled bool) {
	p.mu.Lock()
	if p.grouping == enabled {
		p.mu.Unlock()
		return
	}
	p.grouping = enabled
	if !enabled {
		for _, w := range p.graph.Workers() {
			if _, custom := p.assignment[w.ID()]; custom {
				continue
			}
			if _, private := p.private[w.ID()]; private {
				continue
			}
			if p.threading {
				p.usePrivate(w)
			} else {
				p.useDefault(w)
			}
		}
		p.deleteComponentContexts(nil)
		p.report()
	}
	p.mu.Unlock()

	if enabled {
		p.structureChanged()
	}
}

func (p *Pool) structureChanged() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.threading || !p.grouping {
		return
	}
	used := p.assignComponentContexts()
	p.deleteComponentContexts(used)
	p.report()
}

func (p *Pool) assignComponentContexts() map[int]bool {
	used := make(map[int]bool)
	for _, w := range p.graph.Workers() {
		if _, custom := p.assignment[w.ID()]; custom {
			continue
		}
		if _, private := p.private[w.ID()]; private {
			continue
		}
		component, ok := p.graph.Component(w.ID())
		if !ok {
			continue
		}
		component++
		c, exists := p.components[component]
		if !exists {
			c = p.startContext(-component, fmt.Sprintf("Component %d", component), false)
			p.components[component] = c
		}
		used[component] = true
		p.switchTo(w, c, UndefinedThreadID)
	}
	return used
}

func (p *Pool) deleteComponentContexts(used map[int]bool) {
	for component, c := range p.components {
		if !used[component] {
			c.Stop()
			delete(p.components, component)
		}
	}
}

// SaveSettings exports the custom groups and their members.
func (p *Pool) SaveSettings() *domain.ThreadSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &domain.ThreadSettings{NextID: p.nextID}
	s.Groups = append(s.Groups, p.groups...)
	for _, w := range p.graph.Workers() {
		if id, ok := p.assignment[w.ID()]; ok {
			s.Assignments = append(s.Assignments, domain.GroupAssignment{UUID: w.ID(), ID: id})
		}
	}
	return s
}

// LoadSettings recreates the custom groups and assigns the nodes that exist
// in the graph. Assignments of unknown nodes are skipped.
func (p *Pool) LoadSettings(s *domain.ThreadSettings) error {
	if s == nil {
		return nil
	}
	p.mu.Lock()
	p.nextID = max(s.NextID, MinimumThreadID)
	for _, g := range s.Groups {
		if _, exists := p.groupCtx[g.ID]; exists {
			continue
		}
		if g.ID >= p.nextID {
			p.nextID = g.ID + 1
		}
		p.addGroup(g)
	}
	p.mu.Unlock()

	for _, a := range s.Assignments {
		if _, err := p.graph.Worker(a.UUID); err != nil {
			p.logger.Warn("skipping group assignment of unknown node", "node", a.UUID, "group", a.ID)
			continue
		}
		if err := p.AddToGroup(a.UUID, a.ID); err != nil {
			return fmt.Errorf("failed to restore thread settings: %w", err)
		}
	}
	return nil
}

// Close detaches the pool from the graph, stops every context and waits for
// the queued tasks to drain.
func (p *Pool) Close() error {
	p.subs.Close()
	p.mu.Lock()
	p.closed = true
	for _, c := range p.live() {
		c.Stop()
	}
	p.mu.Unlock()

	p.lateMu.Lock()
	p.draining = true
	p.lateMu.Unlock()
	return p.eg.Wait()
}

func (p *Pool) startContext(id int, name string, custom bool) *Context {
	c := newContext(id, name, custom, p.logger, p.runLate)
	p.eg.Go(c.run)
	return c
}

// runLate runs a task posted to a stopped context on the pool's group, so
// Close waits for it. Once Close is waiting, late tasks are dropped.
func (p *Pool) runLate(task func()) {
	p.lateMu.Lock()
	defer p.lateMu.Unlock()
	if p.draining {
		p.logger.Debug("task dropped, pool closed")
		return
	}
	p.eg.Go(func() error {
		task()
		return nil
	})
}

func (p *Pool) switchTo(w *runtime.Worker, c *Context, threadID int) {
	if p.current[w.ID()] == c {
		return
	}
	p.current[w.ID()] = c
	w.SwitchContext(c)
	w.SetThread(threadID, c.Name())
	p.logger.Debug("node assigned", "node", w.DisplayName(), "context", c.Name())
}

func (p *Pool) report() {
	if p.metrics != nil {
		p.metrics.SetContexts(len(p.live()))
	}
}
