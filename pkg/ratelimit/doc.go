// Package ratelimit throttles requests per caller.
//
// MemoryLimiter is a token bucket local to one process. RedisLimiter is a
// fixed-window counter shared across instances through Redis. Middleware
// charges each request to a key (by default the authenticated user, else the
// client IP), sets X-RateLimit-* headers and answers 429 once the key is
// exhausted. A limiter backend error lets the request through.
package ratelimit
