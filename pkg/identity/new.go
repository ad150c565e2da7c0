package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/controlplane/pkg/observability"
)

// Verifier modes accepted by New
const (
	ModeJWT    = "jwt"
	ModeOIDC   = "oidc"
	ModeStatic = "static"
)

// Config selects and configures the identity verifier
type Config struct {
	Mode string

	JWT  JWTConfig
	OIDC OIDCConfig

	// StaticTokens is used in ModeStatic
	StaticTokens map[string]Identity

	CacheSize int
	CacheTTL  time.Duration
}

// New builds the configured verifier. A positive CacheTTL wraps it in a
// CachingVerifier.
func New(ctx context.Context, cfg Config, metrics *observability.Metrics) (Verifier, error) {
	var (
		v   Verifier
		err error
	)

	switch cfg.Mode {
	case ModeJWT, "":
		v, err = NewJWTVerifier(cfg.JWT)
	case ModeOIDC:
		v, err = NewOIDCVerifier(ctx, cfg.OIDC)
	case ModeStatic:
		v = NewStaticVerifier(cfg.StaticTokens)
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheTTL > 0 {
		v = NewCachingVerifier(v, cfg.CacheSize, cfg.CacheTTL, metrics)
	}
	return v, nil
}
