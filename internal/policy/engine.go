// Package policy implements the rule engine that decides whether a captured
// plan may proceed. Evaluation is a pure function over (principal, action,
// resource, parameters); the only state is the rule set loaded at startup.
package policy

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gosuda/warden/internal/domain"
)

// Engine evaluates requests against a validated, priority-sorted rule set.
// Safe for concurrent use: the rule set is immutable after New.
type Engine struct {
	rules []Rule // sorted by priority, highest first
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads and validates a YAML rule file.
func Load(path string) (*Engine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy.Load: %w", err)
	}
	return Parse(raw)
}

// Parse validates a YAML rule document and builds an Engine. Ambiguities are
// configuration errors rejected here, never resolved at evaluation time.
func Parse(raw []byte) (*Engine, error) {
	var f ruleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("policy.Parse: %w", err)
	}
	return New(f.Rules)
}

// New validates a rule set and builds an Engine.
func New(rules []Rule) (*Engine, error) {
	seen := make(map[string]struct{}, len(rules))
	for i := range rules {
		r := &rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("policy.New: rule %d: missing id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("policy.New: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}

		if r.Effect != domain.EffectAllow && r.Effect != domain.EffectDeny {
			return nil, fmt.Errorf("policy.New: rule %q: unknown effect %q", r.ID, r.Effect)
		}
		for _, p := range r.Params {
			switch p.Op {
			case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
			default:
				return nil, fmt.Errorf("policy.New: rule %q: unknown predicate op %q", r.ID, p.Op)
			}
			if p.Key == "" {
				return nil, fmt.Errorf("policy.New: rule %q: predicate missing key", r.ID)
			}
		}
	}

	// Equal-priority rules whose patterns can both match one request would
	// make first-match-wins nondeterministic. Reject at load time.
	for i := range rules {
		for j := i + 1; j < len(rules); j++ {
			a, b := &rules[i], &rules[j]
			if a.Priority != b.Priority {
				continue
			}
			if patternsOverlap(a.Role, b.Role) &&
				patternsOverlap(a.Action, b.Action) &&
				patternsOverlap(a.Resource, b.Resource) {
				return nil, fmt.Errorf("policy.New: rules %q and %q share priority %d and can match the same request",
					a.ID, b.ID, a.Priority)
			}
		}
	}

	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Engine{rules: sorted}, nil
}

// Rules returns a copy of the engine's rule set in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate decides a single request. Highest-priority matching rule wins;
// absence of an explicit allow is a deny (fail-closed).
func (e *Engine) Evaluate(planID uuid.UUID, principal domain.Principal, action, resource string, params map[string]any) domain.PolicyDecision {
	for i := range e.rules {
		r := &e.rules[i]
		if !r.matches(principal, action, resource, params) {
			continue
		}

		d := domain.PolicyDecision{
			PlanID:        planID,
			Effect:        r.Effect,
			MatchedRuleID: r.ID,
		}
		if r.Effect == domain.EffectAllow {
			d.Reason = fmt.Sprintf("allowed by rule %q", r.ID)
		} else {
			d.Reason = fmt.Sprintf("denied by rule %q", r.ID)
		}
		return d
	}

	return domain.PolicyDecision{
		PlanID: planID,
		Effect: domain.EffectDeny,
		Reason: fmt.Sprintf("no rule matches action %q for roles %v (default deny)", action, principal.Roles),
	}
}

// ResourceFromParams derives the resource identifier a rule's resource
// pattern is matched against. Plan submissions carry only parameters, so the
// resource is taken from well-known keys, empty when none is present.
func ResourceFromParams(params map[string]any) string {
	for _, key := range []string{"service_id", "alert_id", "user_id"} {
		if v, ok := params[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
