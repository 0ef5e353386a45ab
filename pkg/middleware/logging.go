package middleware

import (
	"net/http"
	"time"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/contextkeys"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// RequestLogging logs one structured line per request and stores a
// request-scoped logger on the context.
func RequestLogging(logger *observability.Logger) func(http.Handler) http.Handler {
	httpLogger := logger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}

			requestLogger := httpLogger.
				WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("request_id", contextkeys.GetRequestID(r.Context()))

			ctx := contextkeys.WithLogger(r.Context(), requestLogger)
			next.ServeHTTP(lw, r.WithContext(ctx))

			requestLogger.
				WithField("status", lw.status).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("request completed")
		})
	}
}
