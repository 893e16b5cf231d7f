package middleware

import (
	"context"

	"github.com/gosuda/warden/internal/domain"
)

type contextKey string

// ContextKeyPrincipal carries the authenticated principal through a request.
const ContextKeyPrincipal contextKey = "principal"

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	v, ok := ctx.Value(ContextKeyPrincipal).(domain.Principal)
	return v, ok
}

// WithPrincipal returns a context carrying the given principal. Used by
// handler tests to simulate an authenticated request.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}
