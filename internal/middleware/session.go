package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mailtmpl/internal/model"
)

const SessionCookieName = "session"

type contextKey string

const contextKeyUser contextKey = "user"

// SessionReader retrieves the user ID for a session token.
type SessionReader interface {
	GetUserID(ctx context.Context, sessionID string) (string, error)
}

// userByIDer retrieves an admin user by ID.
type userByIDer interface {
	GetByID(ctx context.Context, id string) (*model.AdminUser, error)
}

// Session validates the session cookie and stores the active user in the
// request context. Anything else gets a 401 JSON response.
func Session(sessions SessionReader, users userByIDer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userID, err := sessions.GetUserID(r.Context(), cookie.Value)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil || user.Status != model.StatusActive {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *model.AdminUser) context.Context {
	return context.WithValue(ctx, contextKeyUser, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *model.AdminUser {
	u, _ := ctx.Value(contextKeyUser).(*model.AdminUser)
	return u
}

// UserIDFromContext returns the authenticated user's ID from the context.
func UserIDFromContext(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}

// RoleFromContext returns the authenticated user's role from the context.
func RoleFromContext(ctx context.Context) model.Role {
	if u := UserFromContext(ctx); u != nil {
		return u.Role
	}
	return ""
}

// IsSuperAdmin reports whether the authenticated user has the super_admin role.
func IsSuperAdmin(ctx context.Context) bool {
	return RoleFromContext(ctx) == model.RoleSuperAdmin
}

// ScopeFromContext returns the organization the caller is restricted to.
// ok is false for super admins. Unauthenticated contexts are scoped to
// nothing.
func ScopeFromContext(ctx context.Context) (organizationID string, ok bool) {
	u := UserFromContext(ctx)
	if u == nil {
		return "", true
	}
	return u.Scope()
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
