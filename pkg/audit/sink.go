// Package audit persists the append-only authorization audit log.
//
// Writes on the authorization hot path go through Recorder, which is
// best-effort: a failed write is reported to a diagnostic channel
// (structured log plus a Prometheus counter) and never surfaces to the
// caller, so audit-pipeline health alerts separately from authorization
// health.
package audit

import (
	"context"
)

// Sink persists audit entries
type Sink interface {
	// Write appends one entry. Implementations must not mutate e.
	Write(ctx context.Context, e *Entry) error

	// Query returns entries matching the filter, newest first
	Query(ctx context.Context, f Filter) ([]Entry, error)
}

// NopSink discards all entries; used in tests and when auditing is
// explicitly disabled.
type NopSink struct{}

func (NopSink) Write(ctx context.Context, e *Entry) error          { return nil }
func (NopSink) Query(ctx context.Context, f Filter) ([]Entry, error) { return nil, nil }
