package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/controlplane/pkg/access"
	"github.com/platinummonkey/controlplane/pkg/httputil"
	"github.com/platinummonkey/controlplane/pkg/observability"
)

// KeyFunc picks the bucket a request is charged to
type KeyFunc func(r *http.Request) string

// CallerKey charges authenticated callers by user id and everyone else by
// client IP
func CallerKey(r *http.Request) string {
	if accessCtx := access.FromContext(r.Context()); accessCtx != nil {
		return "user:" + accessCtx.Identity.ID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address without its port
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware rejects requests over the limit with 429. Limiter errors fail
// open. metrics may be nil.
func Middleware(limiter Limiter, key KeyFunc, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if key == nil {
		key = CallerKey
	}
	count := func(result string) {
		if metrics != nil {
			metrics.RateLimitDecisionsTotal.WithLabelValues(result).Inc()
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			d, err := limiter.Allow(r.Context(), k)
			if err != nil {
				count("error")
				observability.FromContext(r.Context()).WithError(err).WithField("key", k).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

			if !d.Allowed {
				count("limited")
				retryAfter := math.Ceil(time.Until(d.Reset).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
				httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			count("allowed")
			next.ServeHTTP(w, r)
		})
	}
}
