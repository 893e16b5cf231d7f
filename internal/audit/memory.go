package audit

import (
	"context"
	"sync"
	"time"

	"github.com/gosuda/warden/internal/domain"
)

// MemoryLedger is an in-process hash-chained ledger. Appends are serialized
// by a single mutex to preserve the chain invariant under concurrent
// appenders. Suitable for single-node runs and tests; the postgres store
// provides the durable implementation of the same contract.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	now     func() time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

// Append assigns the next sequence number, links the entry to its
// predecessor and stores it. The stored entry is immutable thereafter.
func (l *MemoryLedger) Append(_ context.Context, e domain.AuditEntry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e = Normalize(e, l.now())

	prev := GenesisHash
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}

	e.Seq = uint64(len(l.entries)) + 1
	e.PrevHash = prev

	hash, err := ChainHash(prev, e)
	if err != nil {
		return 0, err
	}
	e.Hash = hash

	l.entries = append(l.entries, e)
	return e.Seq, nil
}

// List returns entries matching the filter in append order.
func (l *MemoryLedger) List(_ context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.AuditEntry
	for _, e := range l.entries {
		if matches(f, e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// VerifyChain recomputes every hash from genesis. Any mutation, insertion
// or deletion since append time surfaces as an error.
func (l *MemoryLedger) VerifyChain(_ context.Context) error {
	l.mu.Lock()
	entries := make([]domain.AuditEntry, len(l.entries))
	copy(entries, l.entries)
	l.mu.Unlock()

	return VerifyEntries(entries)
}
