package policy

import (
	"fmt"
	"strings"

	"github.com/gosuda/warden/internal/domain"
)

// Rule grants or denies an action to a role over a resource. Patterns
// support glob-style `*` wildcards; an empty pattern is equivalent to `*`.
type Rule struct {
	ID       string        `yaml:"id"`
	Role     string        `yaml:"role"`
	Action   string        `yaml:"action"`
	Resource string        `yaml:"resource"`
	Effect   domain.Effect `yaml:"effect"`
	Priority int           `yaml:"priority"`
	Params   []Predicate   `yaml:"params,omitempty"`
}

// Predicate is a structural constraint on a single parameter value that must
// hold for the rule to match, e.g. {Key: "replicas", Op: "lte", Value: 5}.
type Predicate struct {
	Key   string `yaml:"key"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

const (
	OpEq  = "eq"
	OpNe  = "ne"
	OpLt  = "lt"
	OpLte = "lte"
	OpGt  = "gt"
	OpGte = "gte"
)

// matches reports whether the rule applies to the given request. Roles match
// if any of the principal's roles matches the role pattern; parameter
// predicates must all hold.
func (r *Rule) matches(principal domain.Principal, action, resource string, params map[string]any) bool {
	roleOK := false
	for _, role := range principal.Roles {
		if matchPattern(r.Role, role) {
			roleOK = true
			break
		}
	}
	// A `*` role pattern also covers principals with no roles at all.
	if r.Role == "" || r.Role == "*" {
		roleOK = true
	}
	if !roleOK {
		return false
	}

	if !matchPattern(r.Action, action) {
		return false
	}
	if !matchPattern(r.Resource, resource) {
		return false
	}

	for _, p := range r.Params {
		if !p.holds(params) {
			return false
		}
	}
	return true
}

func (p *Predicate) holds(params map[string]any) bool {
	got, ok := params[p.Key]
	if !ok {
		return false
	}

	switch p.Op {
	case OpEq:
		return equalValues(got, p.Value)
	case OpNe:
		return !equalValues(got, p.Value)
	case OpLt, OpLte, OpGt, OpGte:
		a, aok := asFloat(got)
		b, bok := asFloat(p.Value)
		if !aok || !bok {
			return false
		}
		switch p.Op {
		case OpLt:
			return a < b
		case OpLte:
			return a <= b
		case OpGt:
			return a > b
		default:
			return a >= b
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}

// matchPattern matches a value against a glob pattern where `*` matches any
// (possibly empty) run of characters. Empty pattern means match-all.
func matchPattern(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}

	parts := strings.Split(pattern, "*")

	// Leading literal must anchor at the start.
	if parts[0] != "" {
		if !strings.HasPrefix(value, parts[0]) {
			return false
		}
		value = value[len(parts[0]):]
	}

	// Trailing literal must anchor at the end.
	last := parts[len(parts)-1]
	if last != "" {
		if !strings.HasSuffix(value, last) {
			return false
		}
		value = value[:len(value)-len(last)]
	}

	// Middle literals must appear in order.
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return true
}

// patternsOverlap conservatively reports whether two glob patterns can match
// a common value. Exact glob-glob intersection is not needed here: either
// pattern matching the other's literal form, or both being literal and
// equal, covers every rule file we accept. When both contain wildcards we
// assume overlap, which only makes load-time validation stricter.
func patternsOverlap(a, b string) bool {
	aGlob := a == "" || strings.Contains(a, "*")
	bGlob := b == "" || strings.Contains(b, "*")
	switch {
	case !aGlob && !bGlob:
		return a == b
	case aGlob && !bGlob:
		return matchPattern(a, b)
	case !aGlob && bGlob:
		return matchPattern(b, a)
	default:
		return true
	}
}
