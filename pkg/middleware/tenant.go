package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/edpsych-connect/connect/pkg/contextkeys"
	"github.com/edpsych-connect/connect/pkg/httputil"
)

// TenantVar is the route variable naming the tenant
const TenantVar = "tenantId"

// TenantContext copies the {tenantId} route variable into the request context
// so loggers and handlers downstream see it. Routes without the variable pass
// through untouched.
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mux.Vars(r)[TenantVar]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if tenantID == "" || len(tenantID) > 128 {
			httputil.WriteBadRequest(w, "invalid tenant id")
			return
		}

		ctx := contextkeys.WithTenantID(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
