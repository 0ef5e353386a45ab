package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// Recorder wraps a Sink with best-effort semantics for the
// authorization hot path: Record never returns an error and never
// panics. Failures go to the diagnostic logger and a counter.
type Recorder struct {
	sink     Sink
	logger   *observability.Logger
	failures prometheus.Counter
}

// NewRecorder creates a best-effort recorder. The failure counter may
// be nil (tests).
func NewRecorder(sink Sink, logger *observability.Logger, failures prometheus.Counter) *Recorder {
	return &Recorder{
		sink:     sink,
		logger:   logger.WithComponent("audit"),
		failures: failures,
	}
}

// Record attempts to persist the entry. A failed or panicking write is
// reported out-of-band and suppressed: the authorization outcome that
// triggered it must not change.
func (r *Recorder) Record(ctx context.Context, e *Entry) {
	defer observability.RecoverPanic(r.logger, "audit record")

	if err := r.sink.Write(ctx, e); err != nil {
		if r.failures != nil {
			r.failures.Inc()
		}
		r.logger.WithError(err).
			WithField("actor_id", e.ActorID).
			WithField("resource", e.Resource).
			WithField("action", e.Action).
			Warn("audit write failed; outcome unaffected")
	}
}
