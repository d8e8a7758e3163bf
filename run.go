package sluice

import (
	"context"
	"time"

	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

const (
	idlePollInterval = 5 * time.Millisecond
	// idleStreak is the number of consecutive idle polls Wait requires: a
	// notification may be in flight between two contexts during one poll.
	idleStreak = 3
)

// Start asks every node to check whether it can fire. Sources start ticking.
func (e *Engine) Start() error {
	if e.isClosed() {
		return ErrClosed
	}
	workers := e.graph.Workers()
	for _, w := range workers {
		w.TriggerTryProcess()
	}
	e.logger.Info("graph started", "nodes", len(workers))
	return nil
}

// Run starts the graph and waits until it settles.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	return e.Wait(ctx)
}

// Wait blocks until the graph settles: every context queue is empty and, outside
// halted nodes, nothing is processing, ticking or in flight. It returns the
// first fatal node failure, if any, or ctx's error when ctx is done first.
func (e *Engine) Wait(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	streak := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if e.idle() {
			streak++
		} else {
			streak = 0
		}
		if streak >= idleStreak {
			e.logger.Debug("graph settled")
			return e.Err()
		}
	}
}

func (e *Engine) idle() bool {
	for _, c := range e.pool.Contexts() {
		if c.Pending() > 0 {
			return false
		}
	}
	for _, w := range e.graph.Workers() {
		if w.IsHalted() {
			continue
		}
		if w.IsProcessing() || canTick(w) {
			return false
		}
	}
	for _, c := range e.graph.DataConnections() {
		if c.From().Owner().IsHalted() || c.To().Owner().IsHalted() {
			continue
		}
		switch c.State() {
		case domain.ConnectionUnread, domain.ConnectionRead, domain.ConnectionDone:
			return false
		}
	}
	return true
}

func canTick(w *runtime.Worker) bool {
	if !w.IsSource() || w.IsHalted() || w.IsKilled() || !w.IsProcessingEnabled() {
		return false
	}
	t, ok := w.Processor().(ports.Ticker)
	return ok && t.CanTick()
}
