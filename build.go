package sluice

import (
	"errors"
	"fmt"

	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/internal/scheduling"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/dsl"
	"github.com/google/uuid"
)

// Load instantiates every node and link of a definition. A source starts
// ticking as soon as it is connected; Run waits for the graph to settle.
func (e *Engine) Load(def *dsl.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	for _, n := range def.Nodes {
		mode, _ := n.ExecutionMode()
		state := domain.NewNodeState(n.Type)
		state.Label = n.Label
		state.Enabled = !n.Disabled
		state.ExecutionMode = mode
		for k, v := range n.Params {
			state.Dictionary[k] = v
		}
		id, err := e.AddNode(state)
		if err != nil {
			return err
		}
		switch {
		case n.Private:
			if err := e.pool.UsePrivateContextFor(id); err != nil {
				return err
			}
		case n.Group != "":
			if _, err := e.pool.CreateNewGroupFor(id, n.Group); err != nil {
				return err
			}
		}
	}
	for _, l := range def.Links {
		if err := e.Connect(l.From, l.To); err != nil {
			return err
		}
	}
	e.logger.Info("definition loaded", "nodes", len(def.Nodes), "links", len(def.Links))
	return nil
}

// AddNode instantiates a node from its persisted state and returns its id.
func (e *Engine) AddNode(state *domain.NodeState) (uuid.UUID, error) {
	if e.isClosed() {
		return uuid.Nil, ErrClosed
	}
	p, err := e.registry.New(state.Type)
	if err != nil {
		return uuid.Nil, err
	}
	if state.Label != "" {
		e.mu.Lock()
		_, taken := e.labels[state.Label]
		e.mu.Unlock()
		if taken {
			return uuid.Nil, fmt.Errorf("label %q already in use", state.Label)
		}
	}

	w, err := runtime.NewWorker(state, p,
		runtime.WithLogger(e.logger),
		runtime.WithMarkerPolicy(e.graph.Policy()),
		runtime.WithFatalHandler(e.onFatal),
	)
	if err != nil {
		return uuid.Nil, err
	}
	w.Own(w.Stream.Connect(e.publish))
	if err := e.graph.AddNode(w); err != nil {
		w.Teardown()
		return uuid.Nil, err
	}
	if state.Label != "" {
		e.mu.Lock()
		e.labels[state.Label] = w.ID()
		e.mu.Unlock()
	}
	return w.ID(), nil
}

// RemoveNode disconnects and destroys a node. A node in the middle of a
// cycle is refused with domain.ErrNodeBusy.
func (e *Engine) RemoveNode(ref string) error {
	w, err := e.resolve(ref)
	if err != nil {
		return err
	}
	if err := e.graph.RemoveNode(w.ID()); err != nil {
		return err
	}
	e.mu.Lock()
	for label, id := range e.labels {
		if id == w.ID() {
			delete(e.labels, label)
		}
	}
	e.mu.Unlock()
	return nil
}

// Connect links "node.port" endpoints: an output to an input, or an event to
// a slot. Nodes are referenced by label or id.
func (e *Engine) Connect(from, to string) error {
	src, dst, err := e.endpoints(from, to)
	if err != nil {
		return err
	}
	if _, err := e.graph.Connect(src, dst); err != nil {
		return fmt.Errorf("failed to connect %s -> %s: %w", from, to, err)
	}
	return nil
}

// Disconnect removes the link between two endpoints.
func (e *Engine) Disconnect(from, to string) error {
	src, dst, err := e.endpoints(from, to)
	if err != nil {
		return err
	}
	return e.graph.Disconnect(src, dst)
}

func (e *Engine) endpoints(from, to string) (domain.PortID, domain.PortID, error) {
	src, err := e.port(from, true)
	if err != nil {
		return domain.PortID{}, domain.PortID{}, err
	}
	dst, err := e.port(to, false)
	if err != nil {
		return domain.PortID{}, domain.PortID{}, err
	}
	return src, dst, nil
}

// port resolves an endpoint. Sources are outputs or events, sinks are inputs
// or slots.
func (e *Engine) port(ref string, source bool) (domain.PortID, error) {
	ep, err := dsl.ParseEndpoint(ref)
	if err != nil {
		return domain.PortID{}, err
	}
	w, err := e.resolve(ep.Label)
	if err != nil {
		return domain.PortID{}, err
	}
	if source {
		if o, err := w.Output(ep.Port); err == nil {
			return o.ID(), nil
		}
		ev, err := w.Event(ep.Port)
		if err != nil {
			return domain.PortID{}, err
		}
		return ev.ID(), nil
	}
	if in, err := w.Input(ep.Port); err == nil {
		return in.ID(), nil
	}
	s, err := w.Slot(ep.Port)
	if err != nil {
		return domain.PortID{}, err
	}
	return s.ID(), nil
}

// resolve accepts a label or a UUID.
func (e *Engine) resolve(ref string) (*runtime.Worker, error) {
	e.mu.Lock()
	id, ok := e.labels[ref]
	e.mu.Unlock()
	if !ok {
		parsed, err := uuid.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", ref, domain.ErrNodeNotFound)
		}
		id = parsed
	}
	return e.graph.Worker(id)
}

// NodeID returns the id of a labelled node.
func (e *Engine) NodeID(ref string) (uuid.UUID, error) {
	w, err := e.resolve(ref)
	if err != nil {
		return uuid.Nil, err
	}
	return w.ID(), nil
}

// Processor returns the node logic of a node, e.g. to read a collector.
func (e *Engine) Processor(ref string) (any, error) {
	w, err := e.resolve(ref)
	if err != nil {
		return nil, err
	}
	return w.Processor(), nil
}

// SetProcessingEnabled toggles a node's logic. Disabled nodes forward
// NoMessage markers.
func (e *Engine) SetProcessingEnabled(ref string, enabled bool) error {
	w, err := e.resolve(ref)
	if err != nil {
		return err
	}
	w.SetProcessingEnabled(enabled)
	return nil
}

// SetExecutionMode takes effect with the node's next cycle.
func (e *Engine) SetExecutionMode(ref string, mode domain.ExecutionMode) error {
	w, err := e.resolve(ref)
	if err != nil {
		return err
	}
	w.SetExecutionMode(mode)
	return nil
}

// Kill stops a node from firing again until it is reset.
func (e *Engine) Kill(ref string) error {
	w, err := e.resolve(ref)
	if err != nil {
		return err
	}
	w.Kill()
	return nil
}

// Reset discards a node's pending state. Busy nodes are refused with
// domain.ErrNodeBusy.
func (e *Engine) Reset(ref string) error {
	w, err := e.resolve(ref)
	if err != nil {
		return err
	}
	return w.Reset()
}

// ResetAll resets every node, collecting the failures.
func (e *Engine) ResetAll() error {
	var errs []error
	for _, w := range e.graph.Workers() {
		if err := w.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UsePrivateContext gives a node its own execution context.
func (e *Engine) UsePrivateContext(ref string) error {
	w, err := e.resolve(ref)
	if err != nil {
		return err
	}
	return e.pool.UsePrivateContextFor(w.ID())
}

// UseDefaultContext moves a node back to automatic scheduling.
func (e *Engine) UseDefaultContext(ref string) error {
	w, err := e.resolve(ref)
	if err != nil {
		return err
	}
	return e.pool.UseDefaultContextFor(w.ID())
}

// AddToGroup puts a node in the custom group called name, creating it when
// needed, and returns the group id.
func (e *Engine) AddToGroup(ref, name string) (int, error) {
	w, err := e.resolve(ref)
	if err != nil {
		return 0, err
	}
	return e.pool.CreateNewGroupFor(w.ID(), name)
}

// DeleteGroup removes an empty custom group.
func (e *Engine) DeleteGroup(id int) error {
	return e.pool.DeleteGroup(id)
}

// Groups lists the custom groups.
func (e *Engine) Groups() []domain.GroupSpec {
	return e.pool.Groups()
}

// SetGrouping toggles automatic component contexts.
func (e *Engine) SetGrouping(enabled bool) {
	e.pool.SetGrouping(enabled)
}

// Private reports whether a node runs on a private context.
func (e *Engine) Private(ref string) (bool, error) {
	w, err := e.resolve(ref)
	if err != nil {
		return false, err
	}
	return w.NodeState().ThreadID == scheduling.PrivateThreadID, nil
}
