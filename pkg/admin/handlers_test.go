package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/httputil"
	"github.com/platinummonkey/controlplane/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(f *fixture) *mux.Router {
	router := mux.NewRouter()
	NewHandlers(f.service, f.gate).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/admin/users"},
		{"GET", "/api/admin/users/u2"},
		{"PUT", "/api/admin/users/u2/role"},
		{"PUT", "/api/admin/users/u2/account-type"},
		{"PUT", "/api/admin/users/u2/status"},
		{"DELETE", "/api/admin/users/u2"},
		{"GET", "/api/admin/logs"},
		{"GET", "/api/admin/stats"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := serve(router, rt.method, rt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			w = serve(router, rt.method, rt.path, "tok-u1", nil)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
	assert.Empty(t, f.kv.Sets)
	assert.Empty(t, f.kv.Deletes)
}

func TestProfileRoutes(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	w := serve(router, "GET", "/api/profile", "tok-a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "a1", me.ID)
	assert.Equal(t, "admin", string(me.Role))

	w = serve(router, "PUT", "/api/profile", "tok-u1", map[string]interface{}{"name": "Grace", "role": "super_admin"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Grace", updated.Name)
	assert.Equal(t, "user", string(updated.Role))

	w = serve(router, "GET", "/api/usage", "tok-u1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, "GET", "/api/analyses", "tok-u1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, "GET", "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateRoleRoute(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	w := serve(router, "PUT", "/api/admin/users/u1/role", "tok-a1", UpdateRoleRequest{Role: "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	var user User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "admin", string(user.Role))

	w = serve(router, "PUT", "/api/admin/users/u1/role", "tok-a1", UpdateRoleRequest{Role: "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, "PUT", "/api/admin/users/nobody/role", "tok-a1", UpdateRoleRequest{Role: "admin"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Kind)
}

func TestUpdateStatusRoute(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	w := serve(router, "PUT", "/api/admin/users/u1/status", "tok-a1", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, "PUT", "/api/admin/users/u1/status", "tok-a1", map[string]interface{}{"isActive": false})
	require.Equal(t, http.StatusOK, w.Code)
	var user User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.False(t, user.IsActive)

	w = serve(router, "PUT", "/api/admin/users/u1/account-type", "tok-a1", UpdateAccountTypeRequest{AccountType: "pro"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteUserRoute(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	w := serve(router, "DELETE", "/api/admin/users/a1", "tok-a1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(router, "DELETE", "/api/admin/users/s1", "tok-a1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(router, "DELETE", "/api/admin/users/u1", "tok-a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result DeleteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "u1", result.UserID)

	w = serve(router, "GET", "/api/admin/users/u1", "tok-a1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogsAndStatsRoutes(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	for _, id := range []string{"u1", "u2"} {
		w := serve(router, "PUT", "/api/admin/users/"+id+"/account-type", "tok-s1", UpdateAccountTypeRequest{AccountType: "pro"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := serve(router, "GET", "/api/admin/logs?limit=1", "tok-a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs AuditLogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Equal(t, 1, logs.Count)
	assert.Equal(t, "u2", logs.Entries[0].TargetID)
	assert.Equal(t, audit.ActionUpdateAccountType, logs.Entries[0].Action)

	for _, bad := range []string{"0", "1001", "ten"} {
		w = serve(router, "GET", "/api/admin/logs?limit="+bad, "tok-a1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	w = serve(router, "GET", "/api/admin/stats", "tok-a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 6, stats.TotalUsers)
	assert.Equal(t, 2, stats.AuditEntries)

	w = serve(router, "GET", "/api/admin/users", "tok-a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 6)
}

func TestMutationLimit(t *testing.T) {
	f := newFixture(t)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{RequestsPerWindow: 1, Window: time.Hour})
	router := mux.NewRouter()
	NewHandlers(f.service, f.gate, WithMutationLimit(ratelimit.Middleware(limiter, nil, nil))).RegisterRoutes(router)

	body := map[string]interface{}{"isActive": false}
	w := serve(router, "PUT", "/api/admin/users/u1/status", "tok-a1", body)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(router, "PUT", "/api/admin/users/u2/status", "tok-a1", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Charged per caller, and reads are not limited
	w = serve(router, "PUT", "/api/admin/users/u2/status", "tok-a2", body)
	assert.Equal(t, http.StatusOK, w.Code)
	w = serve(router, "GET", "/api/admin/users/u2", "tok-a1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Rejected callers never reach the limiter
	w = serve(router, "PUT", "/api/admin/users/u2/status", "tok-u1", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 2, limiter.Len())
}
