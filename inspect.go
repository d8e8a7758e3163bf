package sluice

import (
	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/internal/scheduling"
	"github.com/aretw0/sluice/pkg/domain"
)

// Nodes returns the status of every node in insertion order.
func (e *Engine) Nodes() []domain.NodeStatus {
	workers := e.graph.Workers()
	out := make([]domain.NodeStatus, 0, len(workers))
	for _, w := range workers {
		out = append(out, e.status(w))
	}
	return out
}

// Node returns the status of one node, by label or id.
func (e *Engine) Node(ref string) (domain.NodeStatus, error) {
	w, err := e.resolve(ref)
	if err != nil {
		return domain.NodeStatus{}, err
	}
	return e.status(w), nil
}

func (e *Engine) status(w *runtime.Worker) domain.NodeStatus {
	state := w.NodeState()
	s := domain.NodeStatus{
		ID:         w.ID(),
		Label:      w.DisplayName(),
		Type:       w.Type(),
		State:      w.State(),
		Enabled:    state.Enabled,
		Processing: w.IsProcessing(),
		Halted:     w.IsHalted(),
		Killed:     w.IsKilled(),
		Mode:       state.ExecutionMode,
		ThreadID:   state.ThreadID,
		ThreadName: state.ThreadName,
		Component:  -1,
		Separator:  e.graph.IsSeparator(w.ID()),
		Essential:  e.graph.LeadsToEssential(w.ID()),
	}
	if c, ok := e.graph.Component(w.ID()); ok {
		s.Component = c
	}
	if err := w.Error(); err != nil {
		s.Error = err.Error()
	}
	for _, in := range w.Inputs() {
		spec := in.Spec()
		s.Inputs = append(s.Inputs, domain.PortStatus{
			Name:      spec.Name,
			Type:      spec.Type,
			Optional:  spec.Optional,
			Dynamic:   spec.Dynamic,
			Connected: in.IsConnected(),
		})
	}
	for _, o := range w.Outputs() {
		spec := o.Spec()
		s.Outputs = append(s.Outputs, domain.PortStatus{
			Name:      spec.Name,
			Type:      spec.Type,
			Connected: o.IsConnected(),
			Sequence:  o.Sequence(),
		})
	}
	return s
}

// Link is a connection between two named endpoints.
type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
	// State is empty for event links.
	State string `json:"state,omitempty"`
}

// Links lists data connections and event links as "label.port" pairs.
func (e *Engine) Links() []Link {
	var out []Link
	for _, c := range e.graph.DataConnections() {
		out = append(out, Link{
			From:  c.From().Owner().DisplayName() + "." + c.From().Name(),
			To:    c.To().Owner().DisplayName() + "." + c.To().Name(),
			State: c.State().String(),
		})
	}
	for _, w := range e.graph.Workers() {
		for _, ev := range w.Events() {
			for _, s := range ev.Slots() {
				out = append(out, Link{
					From: w.DisplayName() + "." + ev.Name(),
					To:   s.Owner().DisplayName() + "." + s.Name(),
				})
			}
		}
	}
	return out
}

// Contexts returns the live execution contexts ordered by name, with the
// nodes each one runs.
func (e *Engine) Contexts() []domain.ContextStatus {
	contexts := e.pool.Contexts()
	out := make([]domain.ContextStatus, 0, len(contexts))
	index := make(map[*scheduling.Context]int, len(contexts))
	for i, c := range contexts {
		index[c] = i
		out = append(out, domain.ContextStatus{
			ID:      c.ID(),
			Name:    c.Name(),
			Custom:  c.IsCustom(),
			Pending: c.Pending(),
		})
	}
	for _, w := range e.graph.Workers() {
		c, ok := e.pool.ContextOf(w.ID())
		if !ok {
			continue
		}
		if i, ok := index[c]; ok {
			out[i].Nodes = append(out[i].Nodes, w.DisplayName())
		}
	}
	return out
}
