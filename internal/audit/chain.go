// Package audit implements the append-only, hash-chained audit ledger.
// Appends never fail silently: a failed append is surfaced so the governed
// action can be aborted, since an unaudited execution is itself a policy
// violation. There is no update or delete operation in this package.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/warden/internal/canonical"
	"github.com/gosuda/warden/internal/domain"
)

// GenesisHash is the prev-hash of the first entry in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ChainHash computes the hash of an entry given its predecessor's hash:
// sha256(prev_hash || canonical encoding of the entry with its own Hash
// cleared). Timestamps are truncated to microseconds in UTC before hashing
// so entries survive a round trip through postgres timestamptz columns.
func ChainHash(prevHash string, e domain.AuditEntry) (string, error) {
	e.Hash = ""
	e.PrevHash = prevHash

	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("audit.ChainHash: %w", err)
	}

	return canonical.HashBytes(append([]byte(prevHash), body...)), nil
}

// Normalize stamps and truncates an entry so hashing is reproducible.
func Normalize(e domain.AuditEntry, now time.Time) domain.AuditEntry {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	return e
}

// VerifyEntries recomputes the full chain over entries ordered by Seq.
func VerifyEntries(entries []domain.AuditEntry) error {
	prev := GenesisHash
	for i, e := range entries {
		if e.Seq != uint64(i)+1 {
			return fmt.Errorf("audit: chain broken at seq %d: expected seq %d", e.Seq, i+1)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("audit: chain broken at seq %d: prev hash mismatch", e.Seq)
		}
		want, err := ChainHash(prev, e)
		if err != nil {
			return err
		}
		if e.Hash != want {
			return fmt.Errorf("audit: chain broken at seq %d: hash mismatch", e.Seq)
		}
		prev = e.Hash
	}
	return nil
}

// matches applies an AuditFilter to an entry.
func matches(f domain.AuditFilter, e domain.AuditEntry) bool {
	if f.PlanID != uuid.Nil && e.PlanID != f.PlanID {
		return false
	}
	if f.JTI != "" && e.JTI != f.JTI {
		return false
	}
	if f.PrincipalID != "" && e.PrincipalID != f.PrincipalID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}
