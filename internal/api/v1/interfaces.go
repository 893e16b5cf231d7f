package v1

import (
	"context"

	"github.com/gosuda/warden/internal/enforce"
	"github.com/gosuda/warden/internal/intent"
)

// TokenService abstracts plan submission for handler testing.
// *intent.Service satisfies this interface.
type TokenService interface {
	Submit(ctx context.Context, req intent.SubmitRequest) (*intent.SubmitResult, error)
}

// Authorizer abstracts token verification for handler testing.
// *enforce.Enforcer satisfies this interface.
type Authorizer interface {
	Authorize(ctx context.Context, token, principalID, action string, params map[string]any) (*enforce.Verdict, error)
}

// Executor abstracts the managed resource for handler testing.
// *sim.Cluster satisfies this interface.
type Executor interface {
	Execute(principalID, action string, params map[string]any) (any, error)
}
