// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that the
// producer and consumer of each value agree on its key and type.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains *auth.Actor
	// Set by: auth.ActorMiddleware
	// Required by: auth.ContextIdentity (and so every permission check)
	ActorKey Key = "actor"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger
	RequestIDKey Key = "request_id"

	// LoggerKey contains *logrus.Entry
	// Set by: httputil.RequestIDMiddleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"
)

// WithActor adds the acting identity to the context
func WithActor(ctx context.Context, actor interface{}) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
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
