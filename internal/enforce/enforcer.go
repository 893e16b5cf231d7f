// Package enforce implements the Enforcement Point: the single choke point
// every mutating operation on the managed resource must pass through.
// Verification is an ordered sequence of checks, each short-circuiting with
// its own failure reason, so that a forged signature is never reported as a
// mere expiry and a replay is never collapsed into a generic "unauthorized".
package enforce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/warden/internal/canonical"
	"github.com/gosuda/warden/internal/domain"
)

// Verification failure reasons, one per check in order.
const (
	ReasonMalformed         = "malformed"
	ReasonSignatureInvalid  = "signature_invalid"
	ReasonExpired           = "expired"
	ReasonReplayDetected    = "replay_detected"
	ReasonActionMismatch    = "action_mismatch"
	ReasonParameterMismatch = "parameters_mismatch"
	ReasonPrincipalMismatch = "principal_mismatch"
)

// tokenClaims mirrors intent.Claims. Field types and JSON tags must stay
// compatible so tokens minted by the Token Service parse here.
type tokenClaims struct {
	jwt.RegisteredClaims
	PlanID           string `json:"pln"`
	Action           string `json:"act"`
	ParametersDigest string `json:"pdg"`
}

// SecurityNotifier receives security-significant events. Replays are worth
// waking someone up for; expired tokens are not.
type SecurityNotifier interface {
	NotifySecurityEvent(ctx context.Context, event, detail string)
}

// Verdict is the outcome of one token presentation.
type Verdict struct {
	OK     bool
	Reason string               // failure reason constant, empty on success
	Err    error                // sentinel-wrapped failure, nil on success
	Claims *domain.IntentToken  // decoded claims when the token parsed at all
}

// Enforcer verifies intent tokens immediately before a mutating effect.
// Safe under concurrent invocation: replay atomicity is delegated to the
// store's insert-if-absent, everything else is pure per-call compute.
type Enforcer struct {
	secret   []byte
	replays  domain.ReplayStore
	ledger   domain.Ledger
	notifier SecurityNotifier
	now      func() time.Time
}

// New creates an Enforcer verifying with the Token Service's key.
// notifier may be nil.
func New(secret string, replays domain.ReplayStore, ledger domain.Ledger, notifier SecurityNotifier) *Enforcer {
	return &Enforcer{
		secret:   []byte(secret),
		replays:  replays,
		ledger:   ledger,
		notifier: notifier,
		now:      time.Now,
	}
}

// Authorize verifies a presented token against the action, parameters and
// principal the caller intends to execute with. A non-nil error means the
// enforcement machinery itself failed (audit or replay store unavailable)
// and the caller must treat the action as denied.
//
// Check order: well-formedness, signature, freshness, replay, action
// binding, parameter binding, principal binding. The replay consume happens
// before the binding checks so that a token is burned the moment it passes
// the cryptographic and freshness gates; a binding mismatch after that point
// still leaves the token unusable, which is the conservative side of the
// at-most-once invariant.
func (e *Enforcer) Authorize(ctx context.Context, token, principalID, action string, params map[string]any) (*Verdict, error) {
	now := e.now()

	claims, reason := e.decode(token)
	if reason != "" {
		return e.fail(ctx, nil, principalID, reason)
	}

	decoded := &domain.IntentToken{
		JTI:              claims.ID,
		Sub:              claims.Subject,
		Action:           claims.Action,
		ParametersDigest: claims.ParametersDigest,
	}
	if claims.IssuedAt != nil {
		decoded.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		decoded.ExpiresAt = claims.ExpiresAt.Time
	}
	if planID, err := uuid.Parse(claims.PlanID); err == nil {
		decoded.PlanID = planID
	}

	// Freshness: no grace period.
	if claims.ExpiresAt == nil || now.After(claims.ExpiresAt.Time) {
		return e.fail(ctx, decoded, principalID, ReasonExpired)
	}

	// Replay: atomic insert-if-absent. Exactly one concurrent presentation
	// of a jti can observe fresh == true.
	fresh, err := e.replays.Consume(ctx, claims.ID, now)
	if err != nil {
		return nil, fmt.Errorf("enforce.Authorize: replay store: %w", err)
	}
	if !fresh {
		if e.notifier != nil {
			e.notifier.NotifySecurityEvent(ctx, "replay_detected",
				fmt.Sprintf("jti=%s principal=%s action=%s", claims.ID, principalID, action))
		}
		log.Warn().
			Str("jti", claims.ID).
			Str("principal", principalID).
			Str("action", action).
			Msg("replay detected")
		return e.fail(ctx, decoded, principalID, ReasonReplayDetected)
	}

	// Action binding: exact match.
	if action != claims.Action {
		return e.fail(ctx, decoded, principalID, ReasonActionMismatch)
	}

	// Parameter binding: digest of the presented parameters, canonicalized
	// identically to issuance, must match. Any drift is a mismatch.
	digest, err := canonical.Digest(params)
	if err != nil {
		return nil, fmt.Errorf("enforce.Authorize: digest: %w", err)
	}
	if digest != claims.ParametersDigest {
		return e.fail(ctx, decoded, principalID, ReasonParameterMismatch)
	}

	// Principal binding: the executing principal must be the token's subject.
	if principalID != claims.Subject {
		return e.fail(ctx, decoded, principalID, ReasonPrincipalMismatch)
	}

	if err := e.audit(ctx, domain.AuditEntry{
		Kind:        domain.EventVerifyOK,
		PlanID:      decoded.PlanID,
		JTI:         claims.ID,
		PrincipalID: principalID,
		Detail:      fmt.Sprintf("action=%s", action),
	}); err != nil {
		return nil, err
	}

	return &Verdict{OK: true, Claims: decoded}, nil
}

// decode performs the well-formedness and signature checks, distinguishing
// the two. Claims validation (exp and friends) is deliberately skipped here:
// freshness is its own ordered check with its own reason.
func (e *Enforcer) decode(token string) (*tokenClaims, string) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return e.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ReasonSignatureInvalid
		}
		return nil, ReasonMalformed
	}
	if !parsed.Valid {
		return nil, ReasonSignatureInvalid
	}
	if claims.ID == "" || claims.Subject == "" || claims.Action == "" || claims.ParametersDigest == "" {
		return nil, ReasonMalformed
	}
	return claims, ""
}

func (e *Enforcer) fail(ctx context.Context, claims *domain.IntentToken, principalID, reason string) (*Verdict, error) {
	entry := domain.AuditEntry{
		Kind:        domain.EventVerifyFail,
		PrincipalID: principalID,
		Detail:      fmt.Sprintf("reason=%s", reason),
	}
	if claims != nil {
		entry.PlanID = claims.PlanID
		entry.JTI = claims.JTI
	}
	if err := e.audit(ctx, entry); err != nil {
		return nil, err
	}

	verdictErr := domain.ErrTokenInvalid
	if reason == ReasonReplayDetected {
		verdictErr = domain.ErrReplayDetected
	}

	return &Verdict{
		OK:     false,
		Reason: reason,
		Err:    fmt.Errorf("%w: %s", verdictErr, reason),
		Claims: claims,
	}, nil
}

func (e *Enforcer) audit(ctx context.Context, entry domain.AuditEntry) error {
	if _, err := e.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("enforce.Authorize: %w: %w", domain.ErrAuditWriteFailure, err)
	}
	return nil
}
