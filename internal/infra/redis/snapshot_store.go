package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-arena/internal/domain"
)

// SnapshotStore persists attempt snapshots as JSON strings with a TTL.
// Each (user, quiz) key has a single writer by construction, so plain
// SET/GET/DEL is all the coordination needed.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) Get(ctx context.Context, key string) (domain.AttemptSnapshot, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return domain.AttemptSnapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.AttemptSnapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	var snap domain.AttemptSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// An unreadable snapshot is equivalent to no snapshot.
		return domain.AttemptSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (s *SnapshotStore) Set(ctx context.Context, key string, snap domain.AttemptSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
