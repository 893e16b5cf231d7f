// Package intent implements the Token Service: it captures plans, has them
// judged by the policy engine, and on allow mints the signed single-use
// intent token that the enforcement point will later verify.
package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/warden/internal/canonical"
	"github.com/gosuda/warden/internal/domain"
	"github.com/gosuda/warden/internal/policy"
)

// DefaultTTL is the intent-token lifetime when none is configured. Tokens
// are short-lived on purpose: minutes, not hours.
const DefaultTTL = 10 * time.Minute

// Claims is the intent-token payload. Field types and JSON tags must stay
// compatible with the enforcement point's tokenClaims so tokens minted here
// verify there.
type Claims struct {
	jwt.RegisteredClaims
	PlanID           string `json:"pln"`
	Action           string `json:"act"`
	ParametersDigest string `json:"pdg"`
}

// Service is the Token Service. Stateless per call apart from its audit and
// plan sinks; unrelated submissions may run fully in parallel.
type Service struct {
	engine *policy.Engine
	plans  domain.PlanRepository
	ledger domain.Ledger
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates a Token Service. ttl <= 0 selects DefaultTTL.
func New(engine *policy.Engine, plans domain.PlanRepository, ledger domain.Ledger, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		engine: engine,
		plans:  plans,
		ledger: ledger,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SubmitRequest is the plan submission boundary: the reasoning collaborator
// proposes one action with concrete parameters on behalf of a principal.
// Context is free text and is never consulted for authorization.
type SubmitRequest struct {
	Principal  domain.Principal
	Action     string
	Parameters map[string]any
	Context    string
}

// SubmitResult carries the decision and, on allow, the signed token.
type SubmitResult struct {
	Plan     *domain.Plan
	Decision domain.PolicyDecision
	Token    string              // compact JWS, empty on deny
	Claims   *domain.IntentToken // decoded claim set, nil on deny
}

// Submit captures the plan, evaluates it and mints a token on allow.
// Every step is audited; an audit write failure aborts the submission.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	now := s.now()

	plan := &domain.Plan{
		ID:          uuid.New(),
		PrincipalID: req.Principal.ID,
		Action:      req.Action,
		Parameters:  req.Parameters,
		Context:     req.Context,
		CapturedAt:  now,
	}

	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("intent.Submit: persist plan: %w", err)
	}

	if err := s.audit(ctx, domain.AuditEntry{
		Kind:        domain.EventSubmit,
		PlanID:      plan.ID,
		PrincipalID: plan.PrincipalID,
		Detail:      fmt.Sprintf("action=%s", plan.Action),
	}); err != nil {
		return nil, err
	}

	resource := policy.ResourceFromParams(plan.Parameters)
	decision := s.engine.Evaluate(plan.ID, req.Principal, plan.Action, resource, plan.Parameters)

	if err := s.audit(ctx, domain.AuditEntry{
		Kind:        domain.EventDecide,
		PlanID:      plan.ID,
		PrincipalID: plan.PrincipalID,
		Detail:      fmt.Sprintf("effect=%s rule=%s reason=%s", decision.Effect, decision.MatchedRuleID, decision.Reason),
	}); err != nil {
		return nil, err
	}

	result := &SubmitResult{Plan: plan, Decision: decision}
	if !decision.Allowed() {
		log.Info().
			Str("plan_id", plan.ID.String()).
			Str("principal", plan.PrincipalID).
			Str("action", plan.Action).
			Str("reason", decision.Reason).
			Msg("plan denied")
		return result, nil
	}

	token, claims, err := s.mint(plan, now)
	if err != nil {
		return nil, fmt.Errorf("intent.Submit: %w", err)
	}

	if err := s.audit(ctx, domain.AuditEntry{
		Kind:        domain.EventIssue,
		PlanID:      plan.ID,
		JTI:         claims.JTI,
		PrincipalID: plan.PrincipalID,
		Detail:      fmt.Sprintf("expires_at=%s", claims.ExpiresAt.UTC().Format(time.RFC3339)),
	}); err != nil {
		return nil, err
	}

	log.Info().
		Str("plan_id", plan.ID.String()).
		Str("jti", claims.JTI).
		Str("principal", plan.PrincipalID).
		Str("action", plan.Action).
		Msg("intent token issued")

	result.Token = token
	result.Claims = claims
	return result, nil
}

// mint signs an intent token bound to the plan's exact action and
// parameters. The jti is a v4 UUID: a 122-bit random space makes birthday
// collisions negligible over the system's lifetime.
func (s *Service) mint(plan *domain.Plan, now time.Time) (string, *domain.IntentToken, error) {
	digest, err := canonical.Digest(plan.Parameters)
	if err != nil {
		return "", nil, fmt.Errorf("mint: %w", err)
	}

	jti := uuid.NewString()
	expires := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   plan.PrincipalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    "warden",
		},
		PlanID:           plan.ID.String(),
		Action:           plan.Action,
		ParametersDigest: digest,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("mint: sign: %w", err)
	}

	return signed, &domain.IntentToken{
		JTI:              jti,
		Sub:              plan.PrincipalID,
		PlanID:           plan.ID,
		Action:           plan.Action,
		ParametersDigest: digest,
		IssuedAt:         now,
		ExpiresAt:        expires,
	}, nil
}

func (s *Service) audit(ctx context.Context, e domain.AuditEntry) error {
	if _, err := s.ledger.Append(ctx, e); err != nil {
		return fmt.Errorf("intent.Submit: %w: %w", domain.ErrAuditWriteFailure, err)
	}
	return nil
}
