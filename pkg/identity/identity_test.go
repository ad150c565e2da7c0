package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-entropy"

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc.def", "abc.def", false},
		{"lowercase scheme", "bearer abc", "abc", false},
		{"missing", "", "", true},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", true},
		{"no token", "Bearer ", "", true},
		{"scheme only", "Bearer", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, err := BearerToken(r)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJWTVerifier(t *testing.T) {
	v, err := NewJWTVerifier(JWTConfig{Secret: testSecret, Issuer: "idp"})
	require.NoError(t, err)

	ident := Identity{
		ID:       "u1",
		Email:    "ada@example.com",
		Metadata: map[string]interface{}{"full_name": "Ada Lovelace"},
	}

	t.Run("valid token", func(t *testing.T) {
		token, err := SignToken(testSecret, ident, "idp", time.Hour)
		require.NoError(t, err)

		got, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.Equal(t, "Ada Lovelace", got.MetadataString("full_name"))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := SignToken(testSecret, ident, "idp", -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := SignToken("another-secret", ident, "idp", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := SignToken(testSecret, ident, "someone-else", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := SignToken(testSecret, Identity{Email: "x@example.com"}, "idp", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
	})

	t.Run("algorithm none rejected", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "not-a-jwt")
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
	})
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier(JWTConfig{})
	assert.Error(t, err)
}

func TestOIDCVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	v := NewOIDCVerifierFromTokenVerifier(oidc.NewVerifier("https://idp.example.com", keySet, &oidc.Config{ClientID: "controlplane"}))

	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	token := sign(jwt.MapClaims{
		"iss":   "https://idp.example.com",
		"aud":   "controlplane",
		"sub":   "u7",
		"email": "grace@example.com",
		"name":  "Grace Hopper",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u7", got.ID)
	assert.Equal(t, "grace@example.com", got.Email)
	assert.Equal(t, "Grace Hopper", got.MetadataString("name"))

	wrongAudience := sign(jwt.MapClaims{
		"iss": "https://idp.example.com",
		"aud": "another-client",
		"sub": "u7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = v.Verify(context.Background(), wrongAudience)
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
}

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]Identity{"tok": {ID: "u1"}})

	got, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = v.Verify(context.Background(), "other")
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
}

type countingVerifier struct {
	calls int32
	next  Verifier
}

func (c *countingVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.next.Verify(ctx, token)
}

func TestCachingVerifier(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	inner := &countingVerifier{next: NewStaticVerifier(map[string]Identity{"tok": {ID: "u1"}})}
	v := NewCachingVerifier(inner, 16, time.Minute, metrics)

	for i := 0; i < 3; i++ {
		got, err := v.Verify(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))

	// failures are not cached
	for i := 0; i < 2; i++ {
		_, err := v.Verify(context.Background(), "bad")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
	assert.Equal(t, 1, v.Len())

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.IdentityCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.IdentityCacheTotal.WithLabelValues("miss")))

	v.Purge()
	assert.Equal(t, 0, v.Len())
}

func TestNewFactory(t *testing.T) {
	v, err := New(context.Background(), Config{Mode: ModeJWT, JWT: JWTConfig{Secret: testSecret}, CacheTTL: time.Minute}, nil)
	require.NoError(t, err)
	_, ok := v.(*CachingVerifier)
	assert.True(t, ok)

	v, err = New(context.Background(), Config{Mode: ModeStatic}, nil)
	require.NoError(t, err)
	_, ok = v.(*StaticVerifier)
	assert.True(t, ok)

	_, err = New(context.Background(), Config{Mode: "saml"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Mode: ModeJWT}, nil)
	assert.Error(t, err)
}
