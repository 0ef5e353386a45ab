package middleware

import (
	"net/http"
	"strconv"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/contextkeys"
)

// TenantHeader carries the tenant a request is scoped to
const TenantHeader = "X-Tenant-ID"

// Tenant attaches the forwarded tenant scope to the context. Requests
// without a tenant header pass through unscoped; authorization then
// applies global semantics (platform-admin or global-scope grants).
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(TenantHeader)
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tenantID, err := strconv.ParseInt(header, 10, 64)
		if err != nil || tenantID <= 0 {
			http.Error(w, "invalid tenant", http.StatusBadRequest)
			return
		}

		ctx := contextkeys.WithTenant(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
