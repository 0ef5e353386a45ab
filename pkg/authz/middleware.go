package authz

import (
	"encoding/json"
	"net/http"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/contextkeys"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/middleware"
)

// RequirePermission gates a route on a permission check against the
// acting principal. The tenant scope, when present, comes from the
// request context (X-Tenant-ID middleware).
func RequirePermission(resolver *Resolver, resource Resource, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorCtx := middleware.GetActorContext(r)
			if actorCtx == nil || actorCtx.Actor == nil {
				writeDenial(w, http.StatusUnauthorized, "authentication required")
				return
			}

			req := CheckRequest{
				ActorID:   actorCtx.Actor.ID,
				Resource:  resource,
				Action:    action,
				RequestID: contextkeys.GetRequestID(r.Context()),
			}
			if tenantID, ok := contextkeys.GetTenant(r.Context()); ok {
				req.TenantID = &tenantID
			}

			decision := resolver.Check(r.Context(), req)
			if !decision.Allowed {
				writeDenial(w, http.StatusForbidden, decision.Reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeDenial(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
