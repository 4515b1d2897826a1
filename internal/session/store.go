package session

import (
	"context"

	"quiz-arena/internal/domain"
)

// SnapshotStore is the opaque persistence used for in-progress attempts.
// Implementations (in-memory, Redis) only need get/set/delete by key;
// lookup misses are reported as domain.ErrSnapshotNotFound.
type SnapshotStore interface {
	Get(ctx context.Context, key string) (domain.AttemptSnapshot, error)
	Set(ctx context.Context, key string, snap domain.AttemptSnapshot) error
	Delete(ctx context.Context, key string) error
}
