package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies an audit entry.
type EventKind string

const (
	EventSubmit      EventKind = "SUBMIT"
	EventDecide      EventKind = "DECIDE"
	EventIssue       EventKind = "ISSUE"
	EventVerifyOK    EventKind = "VERIFY_OK"
	EventVerifyFail  EventKind = "VERIFY_FAIL"
	EventExecute     EventKind = "EXECUTE"
	EventExecuteFail EventKind = "EXECUTE_FAIL"
)

// AuditEntry is one immutable record in the append-only ledger. Entries are
// hash-chained: Hash covers the entry's canonical encoding plus PrevHash, so
// any mutation or deletion breaks chain verification from that point on.
// Seq and both hashes are assigned by the ledger on append.
type AuditEntry struct {
	Seq         uint64    `json:"seq"`
	PrevHash    string    `json:"prev_hash"`
	Hash        string    `json:"hash"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        EventKind `json:"kind"`
	PlanID      uuid.UUID `json:"plan_id"`
	JTI         string    `json:"jti,omitempty"`
	PrincipalID string    `json:"principal_id"`
	Detail      string    `json:"detail,omitempty"`
}

// AuditFilter narrows a ledger listing. Zero values match everything.
type AuditFilter struct {
	PlanID      uuid.UUID
	JTI         string
	PrincipalID string
	Kind        EventKind
}

// Ledger is the append-only audit sink. Append never fails silently: an
// error return means the governed action must not proceed. There is no
// update or delete operation by construction.
type Ledger interface {
	Append(ctx context.Context, e AuditEntry) (uint64, error)
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
	VerifyChain(ctx context.Context) error
}
