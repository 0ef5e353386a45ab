package impersonation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/middleware"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// Handlers provides HTTP handlers for impersonation operations
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates impersonation handlers
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  logger.WithComponent("impersonation-handlers"),
	}
}

// RegisterRoutes registers all impersonation routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/impersonation/sessions", h.Start).Methods("POST")
	router.HandleFunc("/impersonation/sessions", h.GetRecentSessions).Methods("GET")
	router.HandleFunc("/impersonation/sessions/active", h.GetActiveSession).Methods("GET")
	router.HandleFunc("/impersonation/sessions/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/impersonation/sessions/{id}", h.End).Methods("DELETE")
	router.HandleFunc("/impersonation/eligibility", h.CheckEligibility).Methods("POST")
}

// Start begins an impersonation session for the acting admin
func (h *Handlers) Start(w http.ResponseWriter, r *http.Request) {
	actorCtx := middleware.GetActorContext(r)
	if actorCtx == nil || actorCtx.Actor == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		TargetActorID int64  `json:"target_actor_id"`
		Reason        string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TargetActorID == 0 {
		http.Error(w, "target_actor_id is required", http.StatusBadRequest)
		return
	}

	session, err := h.service.Start(r.Context(),
		actorCtx.Actor.ID, req.TargetActorID, req.Reason,
		middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		h.writeStartError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *Handlers) writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReasonTooShort):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSelfImpersonation),
		errors.Is(err, ErrNotPlatformAdmin),
		errors.Is(err, ErrTargetNotFound),
		errors.Is(err, ErrTargetInactive),
		errors.Is(err, ErrTargetIsAdmin):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		h.logger.WithError(err).Error("failed to start impersonation session")
		http.Error(w, "failed to start session", http.StatusInternalServerError)
	}
}

// End terminates a session. The end reason defaults to manual_stop.
func (h *Handlers) End(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	reason := EndReasonManualStop
	if r.Body != nil {
		var req struct {
			EndReason EndReason `json:"end_reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.EndReason != "" {
			reason = req.EndReason
		}
	}

	err = h.service.End(r.Context(), sessionID, reason)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, ErrAlreadyEnded):
		http.Error(w, "Session already ended", http.StatusConflict)
	default:
		h.logger.WithError(err).WithField("session_id", sessionID).Error("failed to end session")
		http.Error(w, "failed to end session", http.StatusInternalServerError)
	}
}

// GetActiveSession returns the acting admin's active session
func (h *Handlers) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	actorCtx := middleware.GetActorContext(r)
	if actorCtx == nil || actorCtx.Actor == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	session, err := h.service.GetActiveSession(r.Context(), actorCtx.Actor.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to get active session")
		http.Error(w, "failed to get active session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GetSession returns one session by ID
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	session, err := h.service.GetSessionByID(r.Context(), sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Error("failed to get session")
		http.Error(w, "failed to get session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GetRecentSessions lists the acting admin's sessions, newest first
func (h *Handlers) GetRecentSessions(w http.ResponseWriter, r *http.Request) {
	actorCtx := middleware.GetActorContext(r)
	if actorCtx == nil || actorCtx.Actor == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	sessions, err := h.service.GetRecentSessions(r.Context(), actorCtx.Actor.ID, limit)
	if err != nil {
		h.logger.WithError(err).Error("failed to list sessions")
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// CheckEligibility reports whether the acting admin could impersonate
// the target, without starting a session.
func (h *Handlers) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	actorCtx := middleware.GetActorContext(r)
	if actorCtx == nil || actorCtx.Actor == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		TargetActorID int64 `json:"target_actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.CanImpersonate(r.Context(), actorCtx.Actor.ID, req.TargetActorID)
	if err != nil && startOutcome(err) == "error" {
		h.logger.WithError(err).Error("eligibility check failed")
		http.Error(w, "eligibility check failed", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{"allowed": err == nil}
	if err != nil {
		resp["reason"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
