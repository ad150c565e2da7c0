// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// packages storing and reading a value agree on the key without importing
// each other.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/controlplane/pkg/contextkeys"
//	ctx = contextkeys.WithAccess(ctx, accessCtx)
//	accessCtx, _ := ctx.Value(contextkeys.AccessKey).(*access.Context)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AccessKey contains *access.Context
	// Set by: access.Gate middleware (pkg/access/middleware.go)
	// Required by: profile and admin API handlers
	// Type: *access.Context
	AccessKey Key = "access_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated identity ID
	// Set by: access.Gate middleware once the caller is resolved
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *logrus.Entry
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *logrus.Entry
	LoggerKey Key = "logger"
)

// WithAccess adds the resolved access context
func WithAccess(ctx context.Context, accessCtx interface{}) context.Context {
	return context.WithValue(ctx, AccessKey, accessCtx)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
