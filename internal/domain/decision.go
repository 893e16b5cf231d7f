package domain

import "github.com/google/uuid"

// Effect is the outcome of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// PolicyDecision records the engine's verdict for a single Plan. Produced
// once per Plan and immutable; referenced by at most one intent token.
type PolicyDecision struct {
	PlanID        uuid.UUID `json:"plan_id"`
	Effect        Effect    `json:"effect"`
	MatchedRuleID string    `json:"matched_rule_id,omitempty"` // empty when no rule matched (default deny)
	Reason        string    `json:"reason"`
}

// Allowed reports whether the decision permits the plan.
func (d PolicyDecision) Allowed() bool {
	return d.Effect == EffectAllow
}
