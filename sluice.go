package sluice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/sluice/internal/graph"
	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/internal/scheduling"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/nodes"
	"github.com/aretw0/sluice/pkg/observability"
	"github.com/aretw0/sluice/pkg/persistence"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/aretw0/sluice/pkg/registry"
	"github.com/google/uuid"
)

// ErrNoStore is returned by persistence calls on an engine without a store.
var ErrNoStore = errors.New("no snapshot store configured")

// ErrClosed is returned once the engine has been closed.
var ErrClosed = errors.New("engine closed")

// Engine is the high-level entry point for the sluice library.
// It owns a graph of node workers and the pool that schedules them, and
// provides a simplified API for consumers.
type Engine struct {
	// Name identifies the graph, e.g. as the snapshot key.
	Name string

	registry *registry.Registry
	graph    *graph.Graph
	pool     *scheduling.Pool
	bus      *observability.Bus
	metrics  *observability.Metrics
	persist  *persistence.Manager
	logger   *slog.Logger

	threading bool
	grouping  bool
	storeOpts []persistence.Option
	store     ports.StateStore

	mu       sync.Mutex
	labels   map[string]uuid.UUID
	fatalErr error
	closed   bool
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithName sets the graph name.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRegistry replaces the built-in node types.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithThreading toggles parallel execution (default on).
func WithThreading(enabled bool) Option {
	return func(e *Engine) {
		e.threading = enabled
	}
}

// WithGrouping toggles one context per connected component (default on).
func WithGrouping(enabled bool) Option {
	return func(e *Engine) {
		e.grouping = enabled
	}
}

// WithMetrics records node events and context counts on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithBus publishes node events on b instead of a private bus.
func WithBus(b *observability.Bus) Option {
	return func(e *Engine) {
		e.bus = b
	}
}

// WithStore enables Save and LoadSnapshot.
func WithStore(store ports.StateStore, opts ...persistence.Option) Option {
	return func(e *Engine) {
		e.store = store
		e.storeOpts = opts
	}
}

// New initializes an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		Name:      "sluice",
		threading: true,
		grouping:  true,
		labels:    make(map[string]uuid.UUID),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.logger = e.logger.With("graph", e.Name)
	if e.registry == nil {
		e.registry = nodes.Builtins()
	}
	if e.bus == nil {
		e.bus = observability.NewBus(256)
	}
	if e.store != nil {
		e.persist = persistence.NewManager(e.store, append([]persistence.Option{persistence.WithLogger(e.logger)}, e.storeOpts...)...)
	}

	e.graph = graph.New(graph.WithLogger(e.logger))
	poolOpts := []scheduling.Option{
		scheduling.WithThreading(e.threading),
		scheduling.WithGrouping(e.grouping),
		scheduling.WithLogger(e.logger),
	}
	if e.metrics != nil {
		poolOpts = append(poolOpts, scheduling.WithMetrics(e.metrics))
	}
	e.pool = scheduling.NewPool(e.graph, poolOpts...)
	return e
}

// Registry returns the node type registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Metrics returns the metrics given with WithMetrics, or nil.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// Subscribe streams every node event until ctx is done.
func (e *Engine) Subscribe(ctx context.Context) <-chan domain.Event {
	return e.bus.Subscribe(ctx)
}

// Err returns the first fatal node failure, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatalErr
}

func (e *Engine) publish(ev domain.Event) {
	if e.metrics != nil {
		e.metrics.Observe(ev)
	}
	e.bus.Publish(ev)
}

// onFatal halts the connected component of the failed node: its downstream
// results cannot be trusted and its upstream would block on it forever.
// Components that share no link with it keep running.
func (e *Engine) onFatal(w *runtime.Worker, err *domain.FatalError) {
	e.mu.Lock()
	if e.fatalErr == nil {
		e.fatalErr = err
	}
	e.mu.Unlock()

	component, ok := e.graph.Component(w.ID())
	halted := 0
	for _, other := range e.graph.Workers() {
		if other == w {
			continue
		}
		if c, found := e.graph.Component(other.ID()); !ok || !found || c != component {
			continue
		}
		other.Halt(fmt.Errorf("halted after failure of %s: %w", w.DisplayName(), err))
		halted++
	}
	e.logger.Error("component halted after fatal node failure", "node", w.DisplayName(), "halted", halted, "err", err)
}

// Close kills every node, stops every context and tears the graph down.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	for _, w := range e.graph.Workers() {
		w.Kill()
	}
	err := e.pool.Close()
	e.graph.Close()
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
