package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// RequestMetrics records request counts and latency per route. The
// path label is the mux route template, not the raw URL, so resource
// IDs do not blow up the label cardinality.
func RequestMetrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
		})
	}
}
