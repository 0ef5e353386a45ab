// Package middleware provides the HTTP middleware chain: actor-context
// extraction (authentication happens upstream; the forwarded identity
// is trusted), tenant scoping, request IDs, structured request logging,
// and per-IP rate limiting for credential endpoints.
package middleware
