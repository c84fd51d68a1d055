package middleware

import (
	"net/http"
	"slices"

	"github.com/mailtmpl/internal/model"
)

// RequireRole allows only users holding one of roles. Others get 403.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, RoleFromContext(r.Context())) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin allows only super_admin users.
func RequireSuperAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleSuperAdmin)
}
