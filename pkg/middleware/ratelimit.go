package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines per-client rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client
	RequestsPerMinute int
	// Burst allows short bursts above the sustained rate
	Burst int
	// IdleTTL is how long an idle client's limiter is retained
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns settings suitable for credential
// endpoints (magic-link issuance and validation).
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 30,
		Burst:             10,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerIPRateLimiter rate-limits by client IP using token buckets.
// This is an in-process limiter: each instance enforces its own quota.
type PerIPRateLimiter struct {
	config  *RateLimitConfig
	clients map[string]*clientLimiter
	mu      sync.Mutex
}

// NewPerIPRateLimiter creates a per-IP rate limiter
func NewPerIPRateLimiter(config *RateLimitConfig) *PerIPRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &PerIPRateLimiter{
		config:  config,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether a request from the client IP is within quota
func (l *PerIPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	client, ok := l.clients[ip]
	if !ok {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(l.config.RequestsPerMinute)/60.0), l.config.Burst),
		}
		l.clients[ip] = client
	}
	client.lastSeen = now

	// Opportunistic cleanup of idle entries
	if len(l.clients) > 1000 {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) > l.config.IdleTTL {
				delete(l.clients, key)
			}
		}
	}

	return client.limiter.Allow()
}

// Handler wraps an HTTP handler with per-IP rate limiting
func (l *PerIPRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client address, preferring the first
// X-Forwarded-For hop set by a trusted proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
