package authz

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/contextkeys"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/middleware"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// Handlers provides HTTP handlers for authorization operations
type Handlers struct {
	store    *Store
	resolver *Resolver
	logger   *observability.Logger
}

// NewHandlers creates authorization handlers
func NewHandlers(store *Store, resolver *Resolver, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:    store,
		resolver: resolver,
		logger:   logger.WithComponent("authz-handlers"),
	}
}

// RegisterRoutes registers all authorization routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authz/check", h.Check).Methods("POST")
	router.HandleFunc("/authz/check-bulk", h.CheckBulk).Methods("POST")

	router.HandleFunc("/authz/grants", h.Grant).Methods("POST")
	router.HandleFunc("/authz/grants/{id}", h.Revoke).Methods("DELETE")
	router.HandleFunc("/authz/grants/revoke-resource", h.RevokeForResource).Methods("POST")
	router.HandleFunc("/authz/roles/{role}/grants", h.GrantRolePermission).Methods("POST")

	router.HandleFunc("/authz/actors/{id}/permissions", h.GetPermissions).Methods("GET")
	router.HandleFunc("/authz/actors/{id}/apply-template", h.ApplyRoleTemplate).Methods("POST")
	router.HandleFunc("/authz/templates", h.CreateTemplate).Methods("POST")
}

// Check resolves one authorization question
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActorID == 0 || !req.Resource.Valid() || !req.Action.Valid() {
		http.Error(w, "actor_id, resource and action are required", http.StatusBadRequest)
		return
	}

	req.RequestID = contextkeys.GetRequestID(r.Context())
	decision := h.resolver.Check(r.Context(), req)
	writeJSON(w, http.StatusOK, decision)
}

// CheckBulk resolves one question across many resource instances
func (h *Handlers) CheckBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID     int64    `json:"actor_id"`
		Resource    Resource `json:"resource"`
		Action      Action   `json:"action"`
		ResourceIDs []string `json:"resource_ids"`
		TenantID    *int64   `json:"tenant_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActorID == 0 || !req.Resource.Valid() || !req.Action.Valid() {
		http.Error(w, "actor_id, resource and action are required", http.StatusBadRequest)
		return
	}

	results := h.resolver.CheckBulk(r.Context(), CheckRequest{
		ActorID:   req.ActorID,
		Resource:  req.Resource,
		Action:    req.Action,
		TenantID:  req.TenantID,
		RequestID: contextkeys.GetRequestID(r.Context()),
	}, req.ResourceIDs)

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// Grant creates an actor-targeted permission
func (h *Handlers) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.GrantedBy = callerID(r)

	permission, err := h.resolver.Grant(r.Context(), req)
	if errors.Is(err, ErrInvalidGrant) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to create grant")
		http.Error(w, "failed to create grant", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, permission)
}

// GrantRolePermission creates a role-targeted permission
func (h *Handlers) GrantRolePermission(w http.ResponseWriter, r *http.Request) {
	role := identity.Role(mux.Vars(r)["role"])

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Role = &role
	req.ActorID = nil
	req.GrantedBy = callerID(r)

	permission, err := h.resolver.GrantRolePermission(r.Context(), req)
	if errors.Is(err, ErrInvalidGrant) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to create role grant")
		http.Error(w, "failed to create grant", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, permission)
}

// Revoke soft-revokes a grant
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid permission ID", http.StatusBadRequest)
		return
	}

	err = h.resolver.Revoke(r.Context(), id)
	if errors.Is(err, ErrPermissionNotFound) {
		http.Error(w, "Permission not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("permission_id", id).Error("failed to revoke grant")
		http.Error(w, "failed to revoke grant", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeForResource soft-revokes every grant an actor holds on a
// resource kind.
func (h *Handlers) RevokeForResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID  int64    `json:"actor_id"`
		Resource Resource `json:"resource"`
		TenantID *int64   `json:"tenant_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActorID == 0 {
		http.Error(w, "actor_id is required", http.StatusBadRequest)
		return
	}

	count, err := h.resolver.RevokeAllForResource(r.Context(), req.ActorID, req.Resource, req.TenantID)
	if errors.Is(err, ErrInvalidGrant) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to revoke resource grants")
		http.Error(w, "failed to revoke grants", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"revoked": count})
}

// GetPermissions lists an actor's active grants
func (h *Handlers) GetPermissions(w http.ResponseWriter, r *http.Request) {
	actorID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid actor ID", http.StatusBadRequest)
		return
	}

	var tenantID *int64
	if t := r.URL.Query().Get("tenant_id"); t != "" {
		parsed, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			http.Error(w, "Invalid tenant ID", http.StatusBadRequest)
			return
		}
		tenantID = &parsed
	}

	permissions, err := h.resolver.GetPermissions(r.Context(), actorID, tenantID)
	if err != nil {
		h.logger.WithError(err).WithField("actor_id", actorID).Error("failed to list permissions")
		http.Error(w, "failed to list permissions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": permissions})
}

// ApplyRoleTemplate materializes a role's templates for an actor
func (h *Handlers) ApplyRoleTemplate(w http.ResponseWriter, r *http.Request) {
	actorID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid actor ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Role     identity.Role `json:"role"`
		TenantID int64         `json:"tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == 0 {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	created, err := h.resolver.ApplyRoleTemplate(r.Context(), actorID, req.Role, req.TenantID, callerID(r))
	if errors.Is(err, ErrInvalidGrant) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("actor_id", actorID).Error("failed to apply role template")
		http.Error(w, "failed to apply role template", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"permissions": created})
}

// CreateTemplate creates a role-permission template
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t RoleTemplate
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !t.Role.Valid() || !t.Resource.Valid() || !t.Action.Valid() || !t.DefaultScope.Valid() {
		http.Error(w, "role, resource, action and default_scope are required", http.StatusBadRequest)
		return
	}

	if err := h.store.CreateTemplate(r.Context(), &t); err != nil {
		h.logger.WithError(err).Error("failed to create role template")
		http.Error(w, "failed to create role template", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// callerID returns the acting principal's ID, if the request carries one
func callerID(r *http.Request) *int64 {
	actorCtx := middleware.GetActorContext(r)
	if actorCtx == nil || actorCtx.Actor == nil {
		return nil
	}
	return &actorCtx.Actor.ID
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
