package admin

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/controlplane/pkg/access"
	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/httputil"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// Handlers exposes the profile and admin APIs over HTTP
type Handlers struct {
	service *Service
	gate    *access.Gate
	limit   func(http.Handler) http.Handler
}

// HandlerOption configures Handlers
type HandlerOption func(*Handlers)

// WithMutationLimit wraps every state-changing route in mw. It runs after the
// gate, so the resolved caller is on the request context.
func WithMutationLimit(mw func(http.Handler) http.Handler) HandlerOption {
	return func(h *Handlers) {
		h.limit = mw
	}
}

// NewHandlers creates HTTP handlers backed by service and guarded by gate
func NewHandlers(service *Service, gate *access.Gate, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		service: service,
		gate:    gate,
		limit:   func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the self-service and admin routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	authed := func(fn http.HandlerFunc) http.Handler { return h.gate.Authenticated(fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return h.gate.Admin(fn) }
	authedWrite := func(fn http.HandlerFunc) http.Handler { return h.gate.Authenticated(h.limit(fn)) }
	adminWrite := func(fn http.HandlerFunc) http.Handler { return h.gate.Admin(h.limit(fn)) }

	router.Handle("/api/profile", authed(h.GetProfile)).Methods("GET")
	router.Handle("/api/profile", authedWrite(h.UpdateProfile)).Methods("PUT")
	router.Handle("/api/usage", authed(h.GetUsage)).Methods("GET")
	router.Handle("/api/analyses", authed(h.ListAnalyses)).Methods("GET")

	// Admin
	router.Handle("/api/admin/users", admin(h.ListUsers)).Methods("GET")
	router.Handle("/api/admin/users/{id}", admin(h.GetUser)).Methods("GET")
	router.Handle("/api/admin/users/{id}", adminWrite(h.DeleteUser)).Methods("DELETE")
	router.Handle("/api/admin/users/{id}/role", adminWrite(h.UpdateRole)).Methods("PUT")
	router.Handle("/api/admin/users/{id}/account-type", adminWrite(h.UpdateAccountType)).Methods("PUT")
	router.Handle("/api/admin/users/{id}/status", adminWrite(h.UpdateStatus)).Methods("PUT")
	router.Handle("/api/admin/logs", admin(h.ListLogs)).Methods("GET")
	router.Handle("/api/admin/stats", admin(h.GetStats)).Methods("GET")
}

// GetProfile returns the caller's own profile
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller := access.FromContext(r.Context())
	httputil.WriteSuccess(w, h.service.Me(caller))
}

// UpdateProfile applies a self-service profile edit
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller := access.FromContext(r.Context())

	var req UpdateProfileRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	user, err := h.service.UpdateOwnProfile(r.Context(), caller, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// GetUsage returns the caller's usage for the current period
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Usage(r.Context(), access.FromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// ListAnalyses returns the caller's cached analyses
func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses, err := h.service.Analyses(r.Context(), access.FromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, analyses)
}

// ListUsers lists every user
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// GetUser returns one user with usage
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateRole changes a user's role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req UpdateRoleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	user, err := h.service.UpdateRole(r.Context(), access.FromContext(r.Context()), id, req.Role)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateAccountType changes a user's account type
func (h *Handlers) UpdateAccountType(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req UpdateAccountTypeRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	user, err := h.service.UpdateAccountType(r.Context(), access.FromContext(r.Context()), id, req.AccountType)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateStatus activates or deactivates a user
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req UpdateStatusRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if req.IsActive == nil {
		httputil.WriteAppError(w, r, apperr.Validation("isActive is required"))
		return
	}

	user, err := h.service.SetActive(r.Context(), access.FromContext(r.Context()), id, *req.IsActive)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// DeleteUser deletes a user and everything they own
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	result, err := h.service.DeleteUser(r.Context(), access.FromContext(r.Context()), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// ListLogs returns the newest audit entries. ?limit defaults to 100.
func (h *Handlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", defaultLogLimit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if limit < 1 || limit > maxLogLimit {
		httputil.WriteAppError(w, r, apperr.Validation("limit must be between 1 and %d", maxLogLimit))
		return
	}

	entries, err := h.service.AuditLog(r.Context(), limit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, AuditLogResponse{Entries: entries, Count: len(entries)})
}

// GetStats returns user base counters
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}
