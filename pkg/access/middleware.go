package access

import (
	"context"
	"net/http"

	"github.com/platinummonkey/controlplane/pkg/contextkeys"
	"github.com/platinummonkey/controlplane/pkg/httputil"
)

// WithContext stores the resolved caller on ctx
func WithContext(ctx context.Context, accessCtx *Context) context.Context {
	ctx = contextkeys.WithAccess(ctx, accessCtx)
	return contextkeys.WithUserID(ctx, accessCtx.Identity.ID)
}

// FromContext returns the caller stored by the gate middleware, or nil
func FromContext(ctx context.Context) *Context {
	accessCtx, ok := ctx.Value(contextkeys.AccessKey).(*Context)
	if !ok {
		return nil
	}
	return accessCtx
}

// Authenticated lets through any caller with a valid credential
func (g *Gate) Authenticated(next http.Handler) http.Handler {
	return g.middleware(next, g.RequireAuthenticatedContext)
}

// Admin lets through admin and super_admin callers only
func (g *Gate) Admin(next http.Handler) http.Handler {
	return g.middleware(next, g.RequireAdminContext)
}

func (g *Gate) middleware(next http.Handler, require func(*http.Request) (*Context, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessCtx, err := require(r)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), accessCtx)))
	})
}
