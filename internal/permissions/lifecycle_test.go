package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/opexlabs/formscore/pkg/errors"
)

// testEngine wires an evaluator and manager over a shared memStore with a
// controllable clock.
type testEngine struct {
	store *memStore
	eval  *Evaluator
	mgr   *Manager
	clock time.Time
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	store := newMemStore()
	eval, err := NewEvaluator(store)
	require.NoError(t, err)
	mgr, err := NewManager(store, eval)
	require.NoError(t, err)

	e := &testEngine{
		store: store,
		eval:  eval,
		mgr:   mgr,
		clock: time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC),
	}
	eval.now = func() time.Time { return e.clock }
	mgr.now = func() time.Time { return e.clock }
	return e
}

func (e *testEngine) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

func TestGrantRequiresCoveringAdminScope(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Granter is admin for Acme only.
	_, err := e.mgr.Grant(ctx, SystemGranter, GrantInput{
		UserID: "granter", Level: "admin", Company: strptr("Acme Corp"),
	})
	require.NoError(t, err)

	cases := []struct {
		name     string
		company  *string
		category *string
		allowed  bool
	}{
		{"own company", strptr("Acme Corp"), nil, true},
		{"own company with category", strptr("Acme Corp"), strptr("SASE"), true},
		{"other company", strptr("Other Inc"), nil, false},
		{"other company with category", strptr("Other Inc"), strptr("SASE"), false},
		{"all companies", nil, nil, false},
		{"all companies one category", nil, strptr("SASE"), false},
	}

	for _, tc := range cases {
		_, err := e.mgr.Grant(ctx, "granter", GrantInput{
			UserID:   "target",
			Level:    "view",
			Company:  tc.company,
			Category: tc.category,
		})
		if tc.allowed {
			require.NoError(t, err, tc.name)
		} else {
			require.ErrorIs(t, err, ErrInsufficientAuthority, tc.name)
		}
	}
}

func TestGrantValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.mgr.Grant(ctx, SystemGranter, GrantInput{UserID: "u-1", Level: "owner"})
	require.ErrorIs(t, err, ErrInvalidLevel)

	past := e.clock.Add(-time.Hour)
	_, err = e.mgr.Grant(ctx, SystemGranter, GrantInput{UserID: "u-1", Level: "view", ExpiresAt: &past})
	require.ErrorIs(t, err, ErrExpiryInPast)

	_, err = e.mgr.Grant(ctx, SystemGranter, GrantInput{Level: "view"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestGrantAllowsDuplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	input := GrantInput{UserID: "u-1", Level: "edit", Company: strptr("Acme Corp")}

	first, err := e.mgr.Grant(ctx, SystemGranter, input)
	require.NoError(t, err)
	second, err := e.mgr.Grant(ctx, SystemGranter, input)
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID, "duplicate grants are independent records; dedup is caller policy")
}

func TestRevokeSymmetry(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.mgr.Grant(ctx, SystemGranter, GrantInput{UserID: "acme-admin", Level: "admin", Company: strptr("Acme Corp")})
	require.NoError(t, err)
	_, err = e.mgr.Grant(ctx, SystemGranter, GrantInput{UserID: "other-admin", Level: "admin", Company: strptr("Other Inc")})
	require.NoError(t, err)

	grant, err := e.mgr.Grant(ctx, "acme-admin", GrantInput{UserID: "u-1", Level: "view", Company: strptr("Acme Corp"), Category: strptr("SASE")})
	require.NoError(t, err)

	// Whoever could have granted the scope can revoke it; nobody else can.
	err = e.mgr.Revoke(ctx, "other-admin", grant.ID, nil)
	require.ErrorIs(t, err, ErrInsufficientAuthority)

	err = e.mgr.Revoke(ctx, "acme-admin", grant.ID, nil)
	require.NoError(t, err)
}

func TestRevokeStampsAuditFieldsOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	grant, err := e.mgr.Grant(ctx, SystemGranter, GrantInput{UserID: "u-1", Level: "edit", Company: strptr("Acme Corp")})
	require.NoError(t, err)

	notes := "user left company"
	require.NoError(t, e.mgr.Revoke(ctx, SystemGranter, grant.ID, &notes))

	stored, ok := e.store.snapshot(grant.ID)
	require.True(t, ok)
	require.False(t, stored.Active)
	require.Equal(t, SystemGranter, *stored.RevokedBy)
	require.Equal(t, e.clock, *stored.RevokedAt)
	require.Equal(t, notes, *stored.Notes)

	// Everything else is bit-identical to the original record.
	require.Equal(t, grant.ID, stored.ID)
	require.Equal(t, grant.UserID, stored.UserID)
	require.Equal(t, grant.Company, stored.Company)
	require.Equal(t, grant.Category, stored.Category)
	require.Equal(t, grant.Level, stored.Level)
	require.Equal(t, grant.GrantedBy, stored.GrantedBy)
	require.Equal(t, grant.GrantedAt, stored.GrantedAt)
	require.Equal(t, grant.ExpiresAt, stored.ExpiresAt)

	// A second revoke must fail loudly, not no-op.
	err = e.mgr.Revoke(ctx, SystemGranter, grant.ID, nil)
	require.ErrorIs(t, err, ErrGrantNotActive)
}

func TestRevokeUnknownGrant(t *testing.T) {
	e := newTestEngine(t)

	err := e.mgr.Revoke(context.Background(), SystemGranter, "nope", nil)
	require.ErrorIs(t, err, ErrGrantNotFound)
}

func TestMutationsFailClosedOnStoreOutage(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.store.failWith = apperrors.ErrStoreUnavailable

	_, err := e.mgr.Grant(ctx, "granter", GrantInput{UserID: "u-1", Level: "view"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.NotErrorIs(t, err, ErrInsufficientAuthority, "an outage must not masquerade as a denial")

	err = e.mgr.Revoke(ctx, "granter", "g-1", nil)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

// The bootstrap-to-revocation walkthrough exercised by the platform's
// onboarding runbook.
func TestGrantLifecycleEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// System seeds U1 as unrestricted admin.
	_, err := e.mgr.Grant(ctx, SystemGranter, GrantInput{UserID: "U1", Level: "admin"})
	require.NoError(t, err)

	admin, err := e.eval.IsUnrestrictedAdmin(ctx, "U1")
	require.NoError(t, err)
	require.True(t, admin)

	ok, err := e.eval.Check(ctx, "U1", LevelEdit, ScopeFor("Anything", "At All"))
	require.NoError(t, err)
	require.True(t, ok)

	// U1 makes U2 admin of Acme.
	u2Grant, err := e.mgr.Grant(ctx, "U1", GrantInput{UserID: "U2", Level: "admin", Company: strptr("Acme Corp")})
	require.NoError(t, err)

	ok, err = e.eval.Check(ctx, "U2", LevelEdit, ScopeFor("Acme Corp", "SASE"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.eval.Check(ctx, "U2", LevelEdit, Scope{Company: strptr("Other Inc")})
	require.NoError(t, err)
	require.False(t, ok)

	// U2 gives U3 a 90-day edit grant on Acme/SASE.
	expires := e.clock.Add(90 * 24 * time.Hour)
	_, err = e.mgr.Grant(ctx, "U2", GrantInput{
		UserID: "U3", Level: "edit",
		Company: strptr("Acme Corp"), Category: strptr("SASE"),
		ExpiresAt: &expires,
	})
	require.NoError(t, err)

	ok, err = e.eval.Check(ctx, "U3", LevelEdit, ScopeFor("Acme Corp", "SASE"))
	require.NoError(t, err)
	require.True(t, ok)

	e.advance(91 * 24 * time.Hour)

	ok, err = e.eval.Check(ctx, "U3", LevelEdit, ScopeFor("Acme Corp", "SASE"))
	require.NoError(t, err)
	require.False(t, ok, "grant expired after 90 days")

	e.advance(-91 * 24 * time.Hour)

	// U3 holds edit only; edit holders cannot grant anything.
	_, err = e.mgr.Grant(ctx, "U3", GrantInput{UserID: "U4", Level: "admin", Company: strptr("Acme Corp"), Category: strptr("SASE")})
	require.ErrorIs(t, err, ErrInsufficientAuthority)

	// U1 revokes U2's grant.
	require.NoError(t, e.mgr.Revoke(ctx, "U1", u2Grant.ID, nil))

	ok, err = e.eval.Check(ctx, "U2", LevelEdit, ScopeFor("Acme Corp", "SASE"))
	require.NoError(t, err)
	require.False(t, ok)

	stored, found := e.store.snapshot(u2Grant.ID)
	require.True(t, found)
	require.False(t, stored.Active)
	require.Equal(t, "U1", *stored.RevokedBy)

	// Revoking the same permission twice fails with a not-active error.
	err = e.mgr.Revoke(ctx, "U1", u2Grant.ID, nil)
	require.ErrorIs(t, err, ErrGrantNotActive)
}
