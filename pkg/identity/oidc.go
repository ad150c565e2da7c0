package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/controlplane/pkg/apperr"
)

// OIDCConfig configures an OIDCVerifier
type OIDCConfig struct {
	IssuerURL       string
	ClientID        string
	SkipIssuerCheck bool
}

// OIDCVerifier validates ID tokens against a discovered OpenID Connect provider
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider and builds an ID token verifier
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return NewOIDCVerifierFromTokenVerifier(provider.Verifier(&oidc.Config{
		ClientID:          cfg.ClientID,
		SkipClientIDCheck: cfg.ClientID == "",
		SkipIssuerCheck:   cfg.SkipIssuerCheck,
	})), nil
}

// NewOIDCVerifierFromTokenVerifier wraps an existing go-oidc verifier
func NewOIDCVerifierFromTokenVerifier(v *oidc.IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{verifier: v}
}

func (v *OIDCVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return Identity{}, apperr.WrapUnauthenticated(err, "failed to verify ID token")
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, apperr.WrapUnauthenticated(err, "failed to parse claims")
	}

	ident := Identity{
		ID:       idToken.Subject,
		Email:    getStringValue(claims, "email"),
		Metadata: make(map[string]interface{}),
	}
	if ident.ID == "" {
		return Identity{}, apperr.Unauthenticated("token subject missing")
	}

	if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		for k, val := range meta {
			ident.Metadata[k] = val
		}
	}
	for _, key := range []string{"name", "full_name", "preferred_username"} {
		if s := getStringValue(claims, key); s != "" {
			if _, exists := ident.Metadata[key]; !exists {
				ident.Metadata[key] = s
			}
		}
	}

	return ident, nil
}

func getStringValue(claims map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if val, ok := claims[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
