package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/controlplane/pkg/apperr"
)

// Identity is an externally verified principal. It is read-only to the
// control plane.
type Identity struct {
	ID       string                 `json:"id"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MetadataString returns a string metadata value, or "" when absent or not a string
func (i Identity) MetadataString(key string) string {
	if i.Metadata == nil {
		return ""
	}
	s, _ := i.Metadata[key].(string)
	return s
}

// Verifier turns a bearer credential into an Identity. Every failure is an
// apperr Unauthenticated error.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperr.Unauthenticated("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.Unauthenticated("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", apperr.Unauthenticated("empty bearer token")
	}
	return token, nil
}

// StaticVerifier maps fixed tokens to identities. Used by tests and local
// development.
type StaticVerifier struct {
	identities map[string]Identity
}

// NewStaticVerifier creates a verifier over a token → identity table
func NewStaticVerifier(identities map[string]Identity) *StaticVerifier {
	copied := make(map[string]Identity, len(identities))
	for token, ident := range identities {
		copied[token] = ident
	}
	return &StaticVerifier{identities: copied}
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	ident, ok := v.identities[token]
	if !ok {
		return Identity{}, apperr.Unauthenticated("unknown token")
	}
	return ident, nil
}
