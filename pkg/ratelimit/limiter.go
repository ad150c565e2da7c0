package ratelimit

import (
	"context"
	"time"
)

// Config defines rate limiting configuration
type Config struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows temporary bursts above the rate
	Burst int
}

// DefaultConfig returns the limits applied to admin mutations
func DefaultConfig() Config {
	return Config{
		RequestsPerWindow: 30,
		Window:            time.Minute,
		Burst:             10,
	}
}

func (c Config) capacity() int {
	return c.RequestsPerWindow + c.Burst
}

// refillInterval is the time it takes a token bucket to gain one token
func (c Config) refillInterval() time.Duration {
	if c.RequestsPerWindow <= 0 {
		return c.Window
	}
	return c.Window / time.Duration(c.RequestsPerWindow)
}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	// Allow consumes one request for key. On a backend error the decision
	// allows the request and the error is returned alongside it.
	Allow(ctx context.Context, key string) (Decision, error)
}
