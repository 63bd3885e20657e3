// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/itellico/mono-access/pkg/contextkeys"
//	ctx = contextkeys.WithCaller(ctx, principal)
//	principal := contextkeys.Caller(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// CallerKey contains the authenticated caller's user ID
	// Set by: middleware.CallerMiddleware (pkg/middleware/caller.go)
	// Required by: permission check endpoints, audit trail
	// Type: int64
	CallerKey Key = "caller_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// ClientIPKey contains the originating client IP
	// Set by: middleware.RequestIDMiddleware
	// Used by: audit trail
	// Type: string
	ClientIPKey Key = "client_ip"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	// Used by: handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithCaller adds the authenticated caller's user ID to the context
func WithCaller(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, CallerKey, userID)
}

// Caller retrieves the authenticated caller's user ID from the context.
// Returns 0 when no caller is set.
func Caller(ctx context.Context) int64 {
	if id, ok := ctx.Value(CallerKey).(int64); ok {
		return id
	}
	return 0
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithClientIP adds the client IP to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// ClientIP retrieves the client IP from the context
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}
