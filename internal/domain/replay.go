package domain

import (
	"context"
	"time"
)

// ReplayRecord marks a token identifier as consumed. Its existence is the
// replay check.
type ReplayRecord struct {
	JTI        string    `json:"jti"`
	ConsumedAt time.Time `json:"consumed_at"`
}

// ReplayStore is the system's only mandatory mutual-exclusion point.
// Consume must be an atomic insert-if-absent: it returns true exactly once
// per jti, and false for every later call, even under concurrent
// presentations of the same token. A read-then-write implementation is a
// TOCTOU bug, not a ReplayStore.
type ReplayStore interface {
	Consume(ctx context.Context, jti string, at time.Time) (bool, error)
}
