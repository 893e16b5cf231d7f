package v1_test

import (
	"context"

	"github.com/gosuda/warden/internal/domain"
	"github.com/gosuda/warden/internal/enforce"
	"github.com/gosuda/warden/internal/intent"
	"github.com/gosuda/warden/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers — inject the authenticated principal for DoCtx
// ---------------------------------------------------------------------------

func principalCtx(id string, roles ...string) context.Context {
	return middleware.WithPrincipal(context.Background(), domain.Principal{ID: id, Roles: roles})
}

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockTokenService struct {
	submitFunc func(ctx context.Context, req intent.SubmitRequest) (*intent.SubmitResult, error)
}

func (m *mockTokenService) Submit(ctx context.Context, req intent.SubmitRequest) (*intent.SubmitResult, error) {
	return m.submitFunc(ctx, req)
}

type mockAuthorizer struct {
	authorizeFunc func(ctx context.Context, token, principalID, action string, params map[string]any) (*enforce.Verdict, error)
}

func (m *mockAuthorizer) Authorize(ctx context.Context, token, principalID, action string, params map[string]any) (*enforce.Verdict, error) {
	return m.authorizeFunc(ctx, token, principalID, action, params)
}

type mockExecutor struct {
	executeFunc func(principalID, action string, params map[string]any) (any, error)
	calls       int
}

func (m *mockExecutor) Execute(principalID, action string, params map[string]any) (any, error) {
	m.calls++
	if m.executeFunc != nil {
		return m.executeFunc(principalID, action, params)
	}
	return map[string]any{"ok": true}, nil
}
