package sluice

import (
	"context"
	"fmt"

	"github.com/aretw0/sluice/internal/scheduling"
	"github.com/aretw0/sluice/pkg/domain"
)

// Snapshot captures nodes, connections and custom thread groups.
func (e *Engine) Snapshot() *domain.GraphSnapshot {
	snap := e.graph.Snapshot()
	snap.Threads = e.pool.SaveSettings()
	return snap
}

// Restore rebuilds a snapshot into the engine, keeping node ids. Nodes that
// were private get their private context back; group assignments whose node
// is missing are skipped.
func (e *Engine) Restore(snap *domain.GraphSnapshot) error {
	if snap == nil {
		return nil
	}
	var private []string
	for i := range snap.Nodes {
		state := snap.Nodes[i].Clone()
		id, err := e.AddNode(state)
		if err != nil {
			return fmt.Errorf("failed to restore node %s: %w", state.UUID, err)
		}
		if state.ThreadID == scheduling.PrivateThreadID {
			private = append(private, id.String())
		}
	}
	for _, c := range snap.Connections {
		if _, err := e.graph.Connect(c.From, c.To); err != nil {
			return fmt.Errorf("failed to restore connection %s -> %s: %w", c.From, c.To, err)
		}
	}
	for _, ref := range private {
		if err := e.UsePrivateContext(ref); err != nil {
			return err
		}
	}
	if err := e.pool.LoadSettings(snap.Threads); err != nil {
		return err
	}
	e.logger.Info("snapshot restored", "nodes", len(snap.Nodes), "connections", len(snap.Connections))
	return nil
}

// Save persists a snapshot under the engine name.
func (e *Engine) Save(ctx context.Context) error {
	if e.persist == nil {
		return ErrNoStore
	}
	return e.persist.Save(ctx, e.Name, e.Snapshot())
}

// LoadSnapshot restores the snapshot stored under name.
func (e *Engine) LoadSnapshot(ctx context.Context, name string) error {
	if e.persist == nil {
		return ErrNoStore
	}
	snap, err := e.persist.Load(ctx, name)
	if err != nil {
		return err
	}
	return e.Restore(snap)
}
