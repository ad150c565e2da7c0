package access

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/identity"
	"github.com/platinummonkey/controlplane/pkg/kvstore/kvtest"
	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/platinummonkey/controlplane/pkg/profile"
	"github.com/platinummonkey/controlplane/pkg/rbac"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	kv       *kvtest.Faulty
	gate     *Gate
	profiles *profile.Resolver
	roles    *rbac.Resolver
	metrics  *observability.Metrics
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	kv := kvtest.NewFaulty()
	verifier := identity.NewStaticVerifier(map[string]identity.Identity{
		"tok-u1": {ID: "u1", Email: "u1@example.com"},
		"tok-a1": {ID: "a1", Email: "a1@example.com"},
		"tok-s1": {ID: "s1", Email: "s1@example.com"},
	})
	profiles := profile.NewResolver(kv)
	roles := rbac.NewResolver(kv)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	return &gateFixture{
		kv:       kv,
		gate:     NewGate(verifier, profiles, roles, metrics),
		profiles: profiles,
		roles:    roles,
		metrics:  metrics,
	}
}

func request(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestRequireAuthenticatedContextRejectsBadCredentials(t *testing.T) {
	f := newGateFixture(t)

	for _, r := range []*http.Request{
		request(""),
		request("tok-unknown"),
		func() *http.Request {
			r := request("")
			r.Header.Set("Authorization", "Token tok-u1")
			return r
		}(),
	} {
		_, err := f.gate.RequireAuthenticatedContext(r)
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
	}
	assert.Empty(t, f.kv.Sets)
}

func TestFirstCallMaterializesExactlyOnce(t *testing.T) {
	f := newGateFixture(t)

	first, err := f.gate.RequireAuthenticatedContext(request("tok-u1"))
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleUser, first.Role)
	assert.False(t, first.IsAdmin)
	assert.False(t, first.Profile.CreatedAt.IsZero())
	assert.Equal(t, 1, f.kv.SetCount(profile.KeyPrefix))
	assert.Equal(t, 1, f.kv.SetCount(rbac.RoleKeyPrefix))

	second, err := f.gate.RequireAuthenticatedContext(request("tok-u1"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.kv.SetCount(profile.KeyPrefix))
	assert.Equal(t, 1, f.kv.SetCount(rbac.RoleKeyPrefix))
	assert.Equal(t, first.Profile, second.Profile)
	assert.Equal(t, first, second)

	stored, err := f.profiles.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Profile, stored)
}

func TestMaterializeKeepsBootstrapGrant(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.roles.Assign(context.Background(), "s1", rbac.RoleSuperAdmin))
	f.kv.Reset()

	got, err := f.gate.RequireAdminContext(request("tok-s1"))
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSuperAdmin, got.Role)
	assert.Equal(t, rbac.RoleSuperAdmin, got.Profile.Role)
	assert.Equal(t, 0, f.kv.SetCount(rbac.RoleKeyPrefix))
	assert.Equal(t, 1, f.kv.SetCount(profile.KeyPrefix))
}

func TestRequireAdminContext(t *testing.T) {
	tests := []struct {
		name    string
		record  rbac.Role
		allowed bool
	}{
		{"user", rbac.RoleUser, false},
		{"admin", rbac.RoleAdmin, true},
		{"super_admin", rbac.RoleSuperAdmin, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t)
			_, err := f.gate.RequireAuthenticatedContext(request("tok-a1"))
			require.NoError(t, err)
			require.NoError(t, f.roles.Assign(context.Background(), "a1", tt.record))

			authed, err := f.gate.RequireAuthenticatedContext(request("tok-a1"))
			require.NoError(t, err)

			got, err := f.gate.RequireAdminContext(request("tok-a1"))
			if !tt.allowed {
				assert.Nil(t, got)
				assert.True(t, errors.Is(err, apperr.ErrInsufficientPrivilege))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.record, got.Role)
			assert.True(t, got.IsAdmin)
			assert.Equal(t, authed, got)
		})
	}
}

func TestPromotionScenario(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	// u1 has a profile with role "user" and no role record
	p := profile.Default(identity.Identity{ID: "u1", Email: "u1@example.com"}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, f.profiles.Save(ctx, p))

	_, err := f.gate.RequireAdminContext(request("tok-u1"))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientPrivilege))

	require.NoError(t, f.roles.Assign(ctx, "u1", rbac.RoleAdmin))

	got, err := f.gate.RequireAdminContext(request("tok-u1"))
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, got.Role)
}

func TestStoreFailureIsClassified(t *testing.T) {
	f := newGateFixture(t)
	f.kv.FailGets(profile.KeyPrefix)

	_, err := f.gate.RequireAuthenticatedContext(request("tok-u1"))
	assert.True(t, errors.Is(err, apperr.ErrStoreFailure))

	f.kv.Heal()
	f.kv.FailSets(profile.KeyPrefix)
	_, err = f.gate.RequireAuthenticatedContext(request("tok-u1"))
	assert.True(t, errors.Is(err, apperr.ErrStoreFailure))
	assert.Equal(t, 0, f.kv.SetCount(rbac.RoleKeyPrefix))
}

func TestGateMetrics(t *testing.T) {
	f := newGateFixture(t)

	f.gate.RequireAuthenticatedContext(request("tok-u1"))
	f.gate.RequireAdminContext(request("tok-u1"))
	f.gate.RequireAdminContext(request(""))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.GateDecisionsTotal.WithLabelValues("authenticated", "authorized")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.GateDecisionsTotal.WithLabelValues("admin", "insufficient_privilege")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.GateDecisionsTotal.WithLabelValues("admin", "unauthenticated")))
}

func TestMiddleware(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.roles.Assign(context.Background(), "a1", rbac.RoleAdmin))

	var seen *Context
	handler := f.gate.Admin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, request(""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, request("tok-u1"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_privilege", body["kind"])

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, request("tok-a1"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "a1", seen.Identity.ID)
	assert.Equal(t, rbac.RoleAdmin, seen.Role)
}
