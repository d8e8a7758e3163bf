package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot() *domain.GraphSnapshot {
	src := domain.NewNodeState("counter")
	src.Label = "source"
	src.ThreadID = 3
	src.ThreadName = "io"
	src.Dictionary["limit"] = 5

	dst := domain.NewNodeState("collector")
	dst.Enabled = false
	dst.ExecutionMode = domain.Pipelining

	return &domain.GraphSnapshot{
		Nodes: []domain.NodeState{*src, *dst},
		Connections: []domain.ConnectionSpec{{
			From: domain.PortID{Node: src.UUID, Direction: domain.DirOutput, Index: 0},
			To:   domain.PortID{Node: dst.UUID, Direction: domain.DirInput, Index: 0},
		}},
		Threads: &domain.ThreadSettings{
			Groups:      []domain.GroupSpec{{ID: 3, Name: "io"}},
			Assignments: []domain.GroupAssignment{{UUID: src.UUID, ID: 3}},
			NextID:      4,
		},
	}
}

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	name := "contract-test-graph-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snapshot := contractSnapshot()

		err := store.Save(ctx, name, snapshot)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err, "Load should not return error")
		require.Len(t, loaded.Nodes, 2)

		// Engine-relevant fields must round-trip losslessly.
		for i, want := range snapshot.Nodes {
			got := loaded.Nodes[i]
			assert.Equal(t, want.UUID, got.UUID)
			assert.Equal(t, want.Type, got.Type)
			assert.Equal(t, want.Enabled, got.Enabled)
			assert.Equal(t, want.ThreadID, got.ThreadID)
			assert.Equal(t, want.ThreadName, got.ThreadName)
			assert.Equal(t, want.ExecutionMode, got.ExecutionMode)
		}
		// Serialisation may widen numeric types; only check presence.
		assert.NotNil(t, loaded.Nodes[0].Dictionary["limit"])

		require.Len(t, loaded.Connections, 1)
		assert.Equal(t, snapshot.Connections[0], loaded.Connections[0])

		require.NotNil(t, loaded.Threads)
		assert.Equal(t, *snapshot.Threads, *loaded.Threads)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, name, contractSnapshot())
		require.NoError(t, err)

		err = store.Delete(ctx, name)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, name)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := name + "-1"
		id2 := name + "-2"
		_ = store.Save(ctx, id1, contractSnapshot())
		_ = store.Save(ctx, id2, contractSnapshot())

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, id1)
		assert.Contains(t, names, id2)
	})
}
