package intent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/warden/internal/audit"
	"github.com/gosuda/warden/internal/canonical"
	"github.com/gosuda/warden/internal/domain"
	"github.com/gosuda/warden/internal/intent"
	"github.com/gosuda/warden/internal/policy"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type mockPlanRepo struct {
	createFunc func(ctx context.Context, p *domain.Plan) error
	created    []*domain.Plan
}

func (m *mockPlanRepo) Create(ctx context.Context, p *domain.Plan) error {
	m.created = append(m.created, p)
	if m.createFunc != nil {
		return m.createFunc(ctx, p)
	}
	return nil
}

func (m *mockPlanRepo) GetByID(context.Context, uuid.UUID) (*domain.Plan, error) {
	return nil, domain.ErrNotFound
}

// flakyLedger fails its Nth append (1-based) and delegates otherwise.
type flakyLedger struct {
	domain.Ledger
	failOn int
	calls  int
}

func (l *flakyLedger) Append(ctx context.Context, e domain.AuditEntry) (uint64, error) {
	l.calls++
	if l.calls == l.failOn {
		return 0, errors.New("disk full")
	}
	return l.Ledger.Append(ctx, e)
}

func testEngine(t *testing.T) *policy.Engine {
	t.Helper()
	engine, err := policy.New([]policy.Rule{
		{ID: "allow-restart", Role: "operator", Action: "infra.restart", Resource: "*", Effect: domain.EffectAllow, Priority: 10},
	})
	require.NoError(t, err)
	return engine
}

func kinds(entries []domain.AuditEntry) []domain.EventKind {
	out := make([]domain.EventKind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

// ---------------------------------------------------------------------------
// Submit
// ---------------------------------------------------------------------------

func TestSubmit_AllowMintsToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := audit.NewMemoryLedger()
	plans := &mockPlanRepo{}
	svc := intent.New(testEngine(t), plans, ledger, testSecret, 0)

	params := map[string]any{"service_id": "web-01"}
	res, err := svc.Submit(ctx, intent.SubmitRequest{
		Principal:  domain.Principal{ID: "alice", Roles: []string{"operator"}},
		Action:     "infra.restart",
		Parameters: params,
		Context:    "latency spike on web-01",
	})
	require.NoError(t, err)

	assert.True(t, res.Decision.Allowed())
	assert.Equal(t, "allow-restart", res.Decision.MatchedRuleID)
	require.NotEmpty(t, res.Token)
	require.NotNil(t, res.Claims)

	// The plan was persisted before evaluation.
	require.Len(t, plans.created, 1)
	assert.Equal(t, res.Plan.ID, plans.created[0].ID)

	// Decoded claim set binds the exact plan.
	assert.Equal(t, "alice", res.Claims.Sub)
	assert.Equal(t, res.Plan.ID, res.Claims.PlanID)
	assert.Equal(t, "infra.restart", res.Claims.Action)

	wantDigest, err := canonical.Digest(params)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, res.Claims.ParametersDigest)

	assert.Equal(t, intent.DefaultTTL, res.Claims.ExpiresAt.Sub(res.Claims.IssuedAt))
	_, err = uuid.Parse(res.Claims.JTI)
	assert.NoError(t, err, "jti is a v4 UUID")
}

func TestSubmit_SignedTokenVerifiesWithSharedSecret(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := intent.New(testEngine(t), &mockPlanRepo{}, audit.NewMemoryLedger(), testSecret, 5*time.Minute)

	res, err := svc.Submit(ctx, intent.SubmitRequest{
		Principal:  domain.Principal{ID: "alice", Roles: []string{"operator"}},
		Action:     "infra.restart",
		Parameters: map[string]any{"service_id": "web-01"},
	})
	require.NoError(t, err)

	var claims intent.Claims
	parsed, err := jwt.ParseWithClaims(res.Token, &claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, res.Claims.JTI, claims.ID)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "warden", claims.Issuer)
	assert.Equal(t, res.Plan.ID.String(), claims.PlanID)
	assert.Equal(t, "infra.restart", claims.Action)
	assert.Equal(t, res.Claims.ParametersDigest, claims.ParametersDigest)
}

func TestSubmit_DenyIssuesNoToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := audit.NewMemoryLedger()
	svc := intent.New(testEngine(t), &mockPlanRepo{}, ledger, testSecret, 0)

	res, err := svc.Submit(ctx, intent.SubmitRequest{
		Principal:  domain.Principal{ID: "bob", Roles: []string{"viewer"}},
		Action:     "infra.restart",
		Parameters: map[string]any{"service_id": "web-01"},
	})
	require.NoError(t, err, "a deny is an outcome, not an error")

	assert.False(t, res.Decision.Allowed())
	assert.Empty(t, res.Token)
	assert.Nil(t, res.Claims)

	// Denied submissions leave exactly SUBMIT and DECIDE, never ISSUE.
	entries, err := ledger.List(ctx, domain.AuditFilter{PlanID: res.Plan.ID})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventKind{domain.EventSubmit, domain.EventDecide}, kinds(entries))
}

func TestSubmit_AllowAuditsSubmitDecideIssue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := audit.NewMemoryLedger()
	svc := intent.New(testEngine(t), &mockPlanRepo{}, ledger, testSecret, 0)

	res, err := svc.Submit(ctx, intent.SubmitRequest{
		Principal:  domain.Principal{ID: "alice", Roles: []string{"operator"}},
		Action:     "infra.restart",
		Parameters: map[string]any{"service_id": "web-01"},
	})
	require.NoError(t, err)

	entries, err := ledger.List(ctx, domain.AuditFilter{PlanID: res.Plan.ID})
	require.NoError(t, err)
	require.Equal(t, []domain.EventKind{domain.EventSubmit, domain.EventDecide, domain.EventIssue}, kinds(entries))

	issue := entries[2]
	assert.Equal(t, res.Claims.JTI, issue.JTI)
	assert.Equal(t, "alice", issue.PrincipalID)
	assert.Contains(t, issue.Detail, "expires_at=")
}

func TestSubmit_AuditFailureAborts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		failOn int // 1=SUBMIT 2=DECIDE 3=ISSUE
	}{
		{"submit append fails", 1},
		{"decide append fails", 2},
		{"issue append fails", 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ledger := &flakyLedger{Ledger: audit.NewMemoryLedger(), failOn: tc.failOn}
			svc := intent.New(testEngine(t), &mockPlanRepo{}, ledger, testSecret, 0)

			res, err := svc.Submit(context.Background(), intent.SubmitRequest{
				Principal:  domain.Principal{ID: "alice", Roles: []string{"operator"}},
				Action:     "infra.restart",
				Parameters: map[string]any{"service_id": "web-01"},
			})
			require.ErrorIs(t, err, domain.ErrAuditWriteFailure)
			assert.Nil(t, res)
		})
	}
}

func TestSubmit_PlanPersistFailureAborts(t *testing.T) {
	t.Parallel()

	ledger := audit.NewMemoryLedger()
	plans := &mockPlanRepo{
		createFunc: func(context.Context, *domain.Plan) error {
			return errors.New("connection refused")
		},
	}
	svc := intent.New(testEngine(t), plans, ledger, testSecret, 0)

	_, err := svc.Submit(context.Background(), intent.SubmitRequest{
		Principal: domain.Principal{ID: "alice", Roles: []string{"operator"}},
		Action:    "infra.restart",
	})
	require.Error(t, err)

	// Nothing may be audited for a plan that was never captured.
	entries, listErr := ledger.List(context.Background(), domain.AuditFilter{})
	require.NoError(t, listErr)
	assert.Empty(t, entries)
}

func TestSubmit_CustomTTL(t *testing.T) {
	t.Parallel()

	svc := intent.New(testEngine(t), &mockPlanRepo{}, audit.NewMemoryLedger(), testSecret, 2*time.Minute)

	res, err := svc.Submit(context.Background(), intent.SubmitRequest{
		Principal:  domain.Principal{ID: "alice", Roles: []string{"operator"}},
		Action:     "infra.restart",
		Parameters: map[string]any{"service_id": "web-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, res.Claims.ExpiresAt.Sub(res.Claims.IssuedAt))
}
