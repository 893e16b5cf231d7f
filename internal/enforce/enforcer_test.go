package enforce_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/warden/internal/audit"
	"github.com/gosuda/warden/internal/canonical"
	"github.com/gosuda/warden/internal/domain"
	"github.com/gosuda/warden/internal/enforce"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	wrongSecret = "ffffffffffffffffffffffffffffffff"
)

type signedClaims struct {
	jwt.RegisteredClaims
	PlanID           string `json:"pln"`
	Action           string `json:"act"`
	ParametersDigest string `json:"pdg"`
}

type tokenOpts struct {
	secret    string
	jti       string
	sub       string
	planID    string
	action    string
	params    map[string]any
	expiresIn time.Duration
}

func defaultOpts() tokenOpts {
	return tokenOpts{
		secret:    testSecret,
		jti:       uuid.NewString(),
		sub:       "alice",
		planID:    uuid.NewString(),
		action:    "infra.restart",
		params:    map[string]any{"service_id": "web-01"},
		expiresIn: 5 * time.Minute,
	}
}

func mintToken(t *testing.T, o tokenOpts) string {
	t.Helper()

	digest, err := canonical.Digest(o.params)
	require.NoError(t, err)

	now := time.Now()
	claims := signedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        o.jti,
			Subject:   o.sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(o.expiresIn)),
			Issuer:    "warden",
		},
		PlanID:           o.planID,
		Action:           o.action,
		ParametersDigest: digest,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(o.secret))
	require.NoError(t, err)
	return signed
}

type mockNotifier struct {
	mu     sync.Mutex
	events []string
}

func (m *mockNotifier) NotifySecurityEvent(_ context.Context, event, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockReplayStore struct {
	consumeFunc func(ctx context.Context, jti string, at time.Time) (bool, error)
}

func (m *mockReplayStore) Consume(ctx context.Context, jti string, at time.Time) (bool, error) {
	return m.consumeFunc(ctx, jti, at)
}

type brokenLedger struct{}

func (brokenLedger) Append(context.Context, domain.AuditEntry) (uint64, error) {
	return 0, errors.New("ledger unavailable")
}

func (brokenLedger) List(context.Context, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return nil, errors.New("ledger unavailable")
}

func (brokenLedger) VerifyChain(context.Context) error {
	return errors.New("ledger unavailable")
}

func newEnforcer() (*enforce.Enforcer, *audit.MemoryLedger, *enforce.MemoryReplayStore, *mockNotifier) {
	ledger := audit.NewMemoryLedger()
	replays := enforce.NewMemoryReplayStore()
	notifier := &mockNotifier{}
	return enforce.New(testSecret, replays, ledger, notifier), ledger, replays, notifier
}

// ---------------------------------------------------------------------------
// Success path
// ---------------------------------------------------------------------------

func TestAuthorize_ValidToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, ledger, _, _ := newEnforcer()

	o := defaultOpts()
	token := mintToken(t, o)

	v, err := e.Authorize(ctx, token, o.sub, o.action, o.params)
	require.NoError(t, err)
	require.True(t, v.OK)
	assert.Empty(t, v.Reason)
	assert.NoError(t, v.Err)
	require.NotNil(t, v.Claims)
	assert.Equal(t, o.jti, v.Claims.JTI)
	assert.Equal(t, o.planID, v.Claims.PlanID.String())

	entries, err := ledger.List(ctx, domain.AuditFilter{JTI: o.jti})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventVerifyOK, entries[0].Kind)
	assert.Equal(t, o.sub, entries[0].PrincipalID)
}

// ---------------------------------------------------------------------------
// Failure reasons, one per ordered check
// ---------------------------------------------------------------------------

func TestAuthorize_FailureReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		token      func(t *testing.T) string
		principal  string
		action     string
		params     map[string]any
		wantReason string
	}{
		{
			name:       "garbage token",
			token:      func(*testing.T) string { return "not.a.token" },
			principal:  "alice",
			action:     "infra.restart",
			params:     map[string]any{"service_id": "web-01"},
			wantReason: enforce.ReasonMalformed,
		},
		{
			name: "missing jti claim",
			token: func(t *testing.T) string {
				o := defaultOpts()
				o.jti = ""
				return mintToken(t, o)
			},
			principal:  "alice",
			action:     "infra.restart",
			params:     map[string]any{"service_id": "web-01"},
			wantReason: enforce.ReasonMalformed,
		},
		{
			name: "wrong signing key",
			token: func(t *testing.T) string {
				o := defaultOpts()
				o.secret = wrongSecret
				return mintToken(t, o)
			},
			principal:  "alice",
			action:     "infra.restart",
			params:     map[string]any{"service_id": "web-01"},
			wantReason: enforce.ReasonSignatureInvalid,
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				o := defaultOpts()
				o.expiresIn = -time.Second
				return mintToken(t, o)
			},
			principal:  "alice",
			action:     "infra.restart",
			params:     map[string]any{"service_id": "web-01"},
			wantReason: enforce.ReasonExpired,
		},
		{
			name:       "different action than bound",
			token:      func(t *testing.T) string { return mintToken(t, defaultOpts()) },
			principal:  "alice",
			action:     "infra.shutdown",
			params:     map[string]any{"service_id": "web-01"},
			wantReason: enforce.ReasonActionMismatch,
		},
		{
			name:       "changed parameter value",
			token:      func(t *testing.T) string { return mintToken(t, defaultOpts()) },
			principal:  "alice",
			action:     "infra.restart",
			params:     map[string]any{"service_id": "web-02"},
			wantReason: enforce.ReasonParameterMismatch,
		},
		{
			name:       "extra parameter key",
			token:      func(t *testing.T) string { return mintToken(t, defaultOpts()) },
			principal:  "alice",
			action:     "infra.restart",
			params:     map[string]any{"service_id": "web-01", "force": true},
			wantReason: enforce.ReasonParameterMismatch,
		},
		{
			name:       "removed parameter key",
			token:      func(t *testing.T) string { return mintToken(t, defaultOpts()) },
			principal:  "alice",
			action:     "infra.restart",
			params:     nil,
			wantReason: enforce.ReasonParameterMismatch,
		},
		{
			name:       "different principal than subject",
			token:      func(t *testing.T) string { return mintToken(t, defaultOpts()) },
			principal:  "mallory",
			action:     "infra.restart",
			params:     map[string]any{"service_id": "web-01"},
			wantReason: enforce.ReasonPrincipalMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			e, ledger, _, _ := newEnforcer()

			v, err := e.Authorize(ctx, tc.token(t), tc.principal, tc.action, tc.params)
			require.NoError(t, err)
			require.False(t, v.OK)
			assert.Equal(t, tc.wantReason, v.Reason)
			require.ErrorIs(t, v.Err, domain.ErrTokenInvalid)

			fails, listErr := ledger.List(ctx, domain.AuditFilter{Kind: domain.EventVerifyFail})
			require.NoError(t, listErr)
			require.Len(t, fails, 1)
			assert.Equal(t, "reason="+tc.wantReason, fails[0].Detail)
		})
	}
}

// ---------------------------------------------------------------------------
// Replay handling
// ---------------------------------------------------------------------------

func TestAuthorize_SecondPresentationIsReplay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, ledger, _, notifier := newEnforcer()

	o := defaultOpts()
	token := mintToken(t, o)

	first, err := e.Authorize(ctx, token, o.sub, o.action, o.params)
	require.NoError(t, err)
	require.True(t, first.OK)

	second, err := e.Authorize(ctx, token, o.sub, o.action, o.params)
	require.NoError(t, err)
	require.False(t, second.OK)
	assert.Equal(t, enforce.ReasonReplayDetected, second.Reason)
	assert.ErrorIs(t, second.Err, domain.ErrReplayDetected)
	assert.ErrorIs(t, second.Err, domain.ErrTokenInvalid)

	assert.Equal(t, 1, notifier.count(), "replays page security")

	fails, err := ledger.List(ctx, domain.AuditFilter{Kind: domain.EventVerifyFail})
	require.NoError(t, err)
	require.Len(t, fails, 1)
	assert.Equal(t, o.jti, fails[0].JTI)
}

func TestAuthorize_ConcurrentPresentationsAtMostOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _, _, _ := newEnforcer()

	o := defaultOpts()
	token := mintToken(t, o)

	const n = 16
	verdicts := make([]*enforce.Verdict, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdicts[i], errs[i] = e.Authorize(ctx, token, o.sub, o.action, o.params)
		}(i)
	}
	wg.Wait()

	okCount, replayCount := 0, 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if verdicts[i].OK {
			okCount++
			continue
		}
		assert.Equal(t, enforce.ReasonReplayDetected, verdicts[i].Reason)
		replayCount++
	}

	assert.Equal(t, 1, okCount, "exactly one presentation wins")
	assert.Equal(t, n-1, replayCount)
}

func TestAuthorize_BindingMismatchStillBurnsToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _, replays, _ := newEnforcer()

	o := defaultOpts()
	token := mintToken(t, o)

	// First presentation fails the action binding, after the replay consume.
	v, err := e.Authorize(ctx, token, o.sub, "infra.shutdown", o.params)
	require.NoError(t, err)
	require.False(t, v.OK)
	assert.Equal(t, enforce.ReasonActionMismatch, v.Reason)

	_, consumed := replays.Record(o.jti)
	assert.True(t, consumed)

	// A correct retry of the same token is now a replay.
	v, err = e.Authorize(ctx, token, o.sub, o.action, o.params)
	require.NoError(t, err)
	require.False(t, v.OK)
	assert.Equal(t, enforce.ReasonReplayDetected, v.Reason)
}

func TestAuthorize_ExpiredTokenIsNotConsumed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _, replays, _ := newEnforcer()

	o := defaultOpts()
	o.expiresIn = -time.Second
	token := mintToken(t, o)

	v, err := e.Authorize(ctx, token, o.sub, o.action, o.params)
	require.NoError(t, err)
	assert.Equal(t, enforce.ReasonExpired, v.Reason)

	_, consumed := replays.Record(o.jti)
	assert.False(t, consumed, "expiry short-circuits before the replay consume")
}

// ---------------------------------------------------------------------------
// Fail-closed on infrastructure errors
// ---------------------------------------------------------------------------

func TestAuthorize_ReplayStoreErrorFailsClosed(t *testing.T) {
	t.Parallel()

	replays := &mockReplayStore{
		consumeFunc: func(context.Context, string, time.Time) (bool, error) {
			return false, errors.New("redis down")
		},
	}
	e := enforce.New(testSecret, replays, audit.NewMemoryLedger(), nil)

	o := defaultOpts()
	v, err := e.Authorize(context.Background(), mintToken(t, o), o.sub, o.action, o.params)
	require.Error(t, err)
	assert.Nil(t, v)
}

func TestAuthorize_AuditFailureFailsClosed(t *testing.T) {
	t.Parallel()

	e := enforce.New(testSecret, enforce.NewMemoryReplayStore(), brokenLedger{}, nil)

	o := defaultOpts()
	v, err := e.Authorize(context.Background(), mintToken(t, o), o.sub, o.action, o.params)
	require.ErrorIs(t, err, domain.ErrAuditWriteFailure)
	assert.Nil(t, v)
}

// ---------------------------------------------------------------------------
// Replay store
// ---------------------------------------------------------------------------

func TestMemoryReplayStore_ConsumeOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := enforce.NewMemoryReplayStore()
	at := time.Now()

	fresh, err := s.Consume(ctx, "jti-1", at)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.Consume(ctx, "jti-1", at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, fresh)

	r, ok := s.Record("jti-1")
	require.True(t, ok)
	assert.Equal(t, at, r.ConsumedAt, "first consumption time is kept")

	fresh, err = s.Consume(ctx, "jti-2", at)
	require.NoError(t, err)
	assert.True(t, fresh, "distinct jtis are independent")
}

func TestMemoryReplayStore_ConcurrentConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := enforce.NewMemoryReplayStore()

	const n = 32
	results := make([]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fresh, err := s.Consume(ctx, "shared-jti", time.Now())
			assert.NoError(t, err)
			results[i] = fresh
		}(i)
	}
	wg.Wait()

	freshCount := 0
	for _, fresh := range results {
		if fresh {
			freshCount++
		}
	}
	assert.Equal(t, 1, freshCount)
}
