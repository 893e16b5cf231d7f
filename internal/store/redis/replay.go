package redis

import (
	"context"
	"fmt"
	"time"
)

const replayKeyPrefix = "replay:"

// ReplayStore implements domain.ReplayStore on redis. SET NX is the atomic
// insert-if-absent the replay check requires: of N concurrent presentations
// of one jti, exactly one SETNX succeeds, cluster-wide.
type ReplayStore struct {
	client    *Client
	retention time.Duration
}

// NewReplayStore creates a replay store. retention bounds how long consumed
// jtis are remembered; it must comfortably exceed the intent-token TTL so a
// record never expires while its token is still fresh.
func NewReplayStore(client *Client, retention time.Duration) *ReplayStore {
	return &ReplayStore{client: client, retention: retention}
}

// Consume marks jti consumed. Returns true exactly once per jti.
func (s *ReplayStore) Consume(ctx context.Context, jti string, at time.Time) (bool, error) {
	ok, err := s.client.client.SetNX(ctx, replayKeyPrefix+jti, at.UTC().Format(time.RFC3339Nano), s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis.ReplayStore.Consume: %w", err)
	}
	return ok, nil
}
