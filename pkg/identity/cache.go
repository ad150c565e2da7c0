package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/controlplane/pkg/observability"
)

// CachingVerifier memoizes successful verifications for a short TTL so
// repeated requests with the same token skip signature checks and OIDC
// round-trips. Failures are never cached.
type CachingVerifier struct {
	next    Verifier
	cache   *lru.LRU[string, Identity]
	metrics *observability.Metrics
}

// NewCachingVerifier wraps next. metrics may be nil.
func NewCachingVerifier(next Verifier, size int, ttl time.Duration, metrics *observability.Metrics) *CachingVerifier {
	if size < 1 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &CachingVerifier{
		next:    next,
		cache:   lru.NewLRU[string, Identity](size, nil, ttl),
		metrics: metrics,
	}
}

func (v *CachingVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	key := hashToken(token)

	if ident, ok := v.cache.Get(key); ok {
		v.record("hit")
		return ident, nil
	}
	v.record("miss")

	ident, err := v.next.Verify(ctx, token)
	if err != nil {
		return Identity{}, err
	}

	v.cache.Add(key, ident)
	return ident, nil
}

// Purge drops every cached identity
func (v *CachingVerifier) Purge() {
	v.cache.Purge()
}

// Len returns the number of cached identities
func (v *CachingVerifier) Len() int {
	return v.cache.Len()
}

func (v *CachingVerifier) record(result string) {
	if v.metrics != nil {
		v.metrics.IdentityCacheTotal.WithLabelValues(result).Inc()
	}
}

// hashToken keys the cache by digest so raw tokens are not held in memory
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
