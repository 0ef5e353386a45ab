package magiclink

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/middleware"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// genericRequestMessage is the one response body every issuance request
// gets, whatever happened internally.
const genericRequestMessage = "If an account exists for that email, a sign-in link has been sent."

// Handlers provides HTTP handlers for magic link operations
type Handlers struct {
	service *Service
	limiter *middleware.PerIPRateLimiter
	logger  *observability.Logger
}

// NewHandlers creates magic link handlers. The limiter guards the
// issuance endpoint per client IP and may be nil.
func NewHandlers(service *Service, limiter *middleware.PerIPRateLimiter, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		limiter: limiter,
		logger:  logger.WithComponent("magiclink-handlers"),
	}
}

// RegisterRoutes registers all magic link routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	request := http.Handler(http.HandlerFunc(h.Request))
	if h.limiter != nil {
		request = h.limiter.Handler(request)
	}
	router.Handle("/auth/magic-link", request).Methods("POST")
	router.HandleFunc("/auth/magic-link/validate", h.Validate).Methods("POST")
}

// Request issues a magic link. The response is identical for every
// non-infrastructure outcome so account existence cannot be probed.
func (h *Handlers) Request(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	_, err := h.service.Request(r.Context(), req.Email, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		h.logger.WithError(err).Error("magic link request failed")
		http.Error(w, "failed to process request", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": genericRequestMessage})
}

// Validate checks and consumes a magic link token
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.Validate(r.Context(), req.Token, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		h.logger.WithError(err).Error("magic link validation failed")
		http.Error(w, "failed to validate token", http.StatusInternalServerError)
		return
	}

	if result.Status != StatusOK {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"status": result.Status,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": result.Status,
		"actor":  result.Actor,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
