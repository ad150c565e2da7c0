package access

import (
	"context"
	"net/http"

	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/identity"
	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/platinummonkey/controlplane/pkg/profile"
	"github.com/platinummonkey/controlplane/pkg/rbac"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tier is the privilege level a gate pass requires
type Tier string

const (
	TierAuthenticated Tier = "authenticated"
	TierAdmin         Tier = "admin"
)

// Context is the resolved caller handed to handlers that passed the gate
type Context struct {
	Identity identity.Identity `json:"identity"`
	Profile  profile.Profile   `json:"profile"`
	Role     rbac.Role         `json:"role"`
	IsAdmin  bool              `json:"isAdmin"`
}

// Principal returns the caller as an rbac principal
func (c *Context) Principal() rbac.Principal {
	return rbac.Principal{ID: c.Identity.ID, Role: c.Role}
}

// Gate turns a raw request into an authorized Context or a classified error
type Gate struct {
	verifier identity.Verifier
	profiles *profile.Resolver
	roles    *rbac.Resolver
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewGate creates an access gate. metrics may be nil.
func NewGate(verifier identity.Verifier, profiles *profile.Resolver, roles *rbac.Resolver, metrics *observability.Metrics) *Gate {
	return &Gate{
		verifier: verifier,
		profiles: profiles,
		roles:    roles,
		metrics:  metrics,
		tracer:   otel.Tracer("github.com/platinummonkey/controlplane/pkg/access"),
	}
}

// RequireAuthenticatedContext resolves the caller behind r. The first call
// for an identity persists its default profile and role record.
func (g *Gate) RequireAuthenticatedContext(r *http.Request) (*Context, error) {
	return g.require(r, TierAuthenticated)
}

// RequireAdminContext resolves the caller behind r and fails with
// InsufficientPrivilege unless the resolved role is admin or super_admin
func (g *Gate) RequireAdminContext(r *http.Request) (*Context, error) {
	return g.require(r, TierAdmin)
}

func (g *Gate) require(r *http.Request, tier Tier) (*Context, error) {
	ctx, span := g.tracer.Start(r.Context(), "access.gate",
		trace.WithAttributes(attribute.String("access.tier", string(tier))))
	defer span.End()

	accessCtx, err := g.authenticate(ctx, r)
	if err == nil && tier == TierAdmin && !accessCtx.IsAdmin {
		err = apperr.InsufficientPrivilege("administrator role required")
	}

	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("access.outcome", outcome))
	if accessCtx != nil {
		span.SetAttributes(
			attribute.String("access.identity_id", accessCtx.Identity.ID),
			attribute.String("access.role", string(accessCtx.Role)),
		)
	}
	if err != nil && apperr.KindOf(err) == apperr.KindStoreFailure {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if g.metrics != nil {
		g.metrics.GateDecisionsTotal.WithLabelValues(string(tier), outcome).Inc()
	}

	if err != nil {
		return nil, err
	}
	return accessCtx, nil
}

// authenticate walks token → identity → profile → role
func (g *Gate) authenticate(ctx context.Context, r *http.Request) (*Context, error) {
	token, err := identity.BearerToken(r)
	if err != nil {
		return nil, err
	}

	ident, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnauthenticated {
			err = apperr.WrapUnauthenticated(err, "invalid or expired token")
		}
		return nil, err
	}

	p, stored, err := g.profiles.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}
	if !stored {
		if p, err = g.materialize(ctx, p); err != nil {
			return nil, err
		}
	}

	role, err := g.roles.ResolveRole(ctx, ident.ID, p.Role)
	if err != nil {
		return nil, err
	}

	return &Context{
		Identity: ident,
		Profile:  p,
		Role:     role,
		IsAdmin:  role.IsAdministrative(),
	}, nil
}

// materialize persists a first-time caller's default profile and a matching
// role record. A role record written before the first login (an operator
// bootstrap grant) is kept and mirrored onto the profile.
func (g *Gate) materialize(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	existing, ok, err := g.roles.Lookup(ctx, p.ID)
	if err != nil {
		return profile.Profile{}, err
	}
	if ok {
		p.Role = existing
	}

	p, err = g.profiles.Create(ctx, p)
	if err != nil {
		return profile.Profile{}, err
	}
	if !ok {
		if err := g.roles.Assign(ctx, p.ID, p.Role); err != nil {
			return profile.Profile{}, err
		}
	}

	observability.FromContext(ctx).WithField("user_id", p.ID).Info("Materialized profile for first-time caller")
	return p, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "authorized"
	}
	return string(apperr.KindOf(err))
}
