package memory

import (
	"context"
	"sync"

	"quiz-arena/internal/domain"
)

// SnapshotStore is an in-memory implementation of session.SnapshotStore,
// suitable for tests and single-instance deployments.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.AttemptSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]domain.AttemptSnapshot)}
}

func (s *SnapshotStore) Get(_ context.Context, key string) (domain.AttemptSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[key]
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *SnapshotStore) Set(_ context.Context, key string, snap domain.AttemptSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = snap
	return nil
}

func (s *SnapshotStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key)
	return nil
}
