package middleware_test

import (
	"context"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

// MockStore is a simple map-based store for testing middleware.
type MockStore struct {
	data map[string]*domain.GraphSnapshot
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]*domain.GraphSnapshot)}
}

func (s *MockStore) Save(_ context.Context, name string, snap *domain.GraphSnapshot) error {
	s.data[name] = snap
	return nil
}

func (s *MockStore) Load(_ context.Context, name string) (*domain.GraphSnapshot, error) {
	snap, ok := s.data[name]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *MockStore) Delete(_ context.Context, name string) error {
	delete(s.data, name)
	return nil
}

func (s *MockStore) List(context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ ports.StateStore = (*MockStore)(nil)

func snapshotWith(params map[string]any) *domain.GraphSnapshot {
	n := domain.NewNodeState("printer")
	n.Label = "out"
	for k, v := range params {
		n.Dictionary[k] = v
	}
	return &domain.GraphSnapshot{Nodes: []domain.NodeState{*n}}
}
