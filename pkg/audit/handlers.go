package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// Handlers provides read access to the audit log
type Handlers struct {
	sink   Sink
	logger *observability.Logger
}

// NewHandlers creates audit handlers
func NewHandlers(sink Sink, logger *observability.Logger) *Handlers {
	return &Handlers{
		sink:   sink,
		logger: logger.WithComponent("audit-handlers"),
	}
}

// RegisterRoutes registers the audit routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authz/audit", h.Query).Methods("GET")
}

// Query returns audit entries matching the query parameters, newest
// first. Timestamps are RFC 3339.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.sink.Query(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to query audit log")
		http.Error(w, "failed to query audit log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"entries": entries})
}

type badParamError struct {
	name string
}

func (e badParamError) Error() string { return "invalid " + e.name }

func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var f Filter

	f.Resource = q.Get("resource")

	for _, p := range []struct {
		name string
		dst  **int64
	}{
		{"actor_id", &f.ActorID},
		{"tenant_id", &f.TenantID},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Filter{}, badParamError{p.name}
		}
		*p.dst = &id
	}

	if raw := q.Get("allowed"); raw != "" {
		allowed, err := strconv.ParseBool(raw)
		if err != nil {
			return Filter{}, badParamError{"allowed"}
		}
		f.Allowed = &allowed
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"since", &f.Since},
		{"until", &f.Until},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filter{}, badParamError{p.name}
		}
		*p.dst = &ts
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return Filter{}, badParamError{"limit"}
		}
		f.Limit = limit
	}

	return f, nil
}
