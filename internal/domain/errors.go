package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. The verification taxonomy is
// deliberately fine-grained: callers must be able to tell a replay from an
// ordinary expiry, and an audit write failure is fatal to the governed action.
var (
	ErrNotFound = errors.New("domain: not found")
	ErrConflict = errors.New("domain: conflict")

	// ErrPolicyViolation is a DENY decision. Expected, not exceptional.
	ErrPolicyViolation = errors.New("domain: policy violation")

	// ErrTokenInvalid covers every verification-step failure.
	ErrTokenInvalid = errors.New("domain: intent token invalid")

	// ErrReplayDetected is a security-significant subtype of ErrTokenInvalid:
	// a second presentation of an already-consumed token. errors.Is matches
	// it against ErrTokenInvalid as well.
	ErrReplayDetected = fmt.Errorf("domain: replay detected: %w", ErrTokenInvalid)

	// ErrAuditWriteFailure means the ledger could not record an event.
	// The action that triggered it must not proceed.
	ErrAuditWriteFailure = errors.New("domain: audit write failure")
)
