// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/contextkeys"
//	ctx = contextkeys.WithActor(ctx, actorCtx)
//	actorCtx := ctx.Value(contextkeys.ActorKey).(*middleware.ActorContext)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains *middleware.ActorContext
	// Set by: middleware.ActorMiddleware (pkg/middleware/actor.go)
	// Required by: All protected API endpoints, authz middleware
	ActorKey Key = "actor_context"

	// TenantKey contains the tenant ID (int64) a request is scoped to
	// Set by: middleware.Tenant from the X-Tenant-ID header
	// Required by: Tenant-scoped authorization checks
	TenantKey Key = "tenant_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit correlation
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: logging middleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"
)

// WithActor adds the acting principal's context to the context
func WithActor(ctx context.Context, actorCtx interface{}) context.Context {
	return context.WithValue(ctx, ActorKey, actorCtx)
}

// WithTenant adds the request tenant ID to the context
func WithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, TenantKey, tenantID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetTenant retrieves the request tenant ID from context; the second
// return value reports whether a tenant was set.
func GetTenant(ctx context.Context) (int64, bool) {
	tenantID, ok := ctx.Value(TenantKey).(int64)
	return tenantID, ok
}
