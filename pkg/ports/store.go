package ports

import (
	"context"

	"github.com/aretw0/sluice/pkg/domain"
)

// StateStore defines the interface for persisting graph snapshots.
// This allows a graph to be stopped and resumed with its thread assignment,
// execution modes and enabled flags intact.
type StateStore interface {
	// Save persists the snapshot under the given name.
	Save(ctx context.Context, name string, snapshot *domain.GraphSnapshot) error

	// Load retrieves the snapshot stored under the given name.
	// Returns domain.ErrSnapshotNotFound if it does not exist.
	Load(ctx context.Context, name string) (*domain.GraphSnapshot, error)

	// Delete removes the snapshot stored under the given name.
	Delete(ctx context.Context, name string) error

	// List returns the names of all stored snapshots.
	List(ctx context.Context) ([]string, error)
}
