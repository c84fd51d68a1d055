package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mailtmpl/internal/auth"
	appmw "github.com/mailtmpl/internal/middleware"
	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/store"
)

type userGetterByEmail interface {
	GetByEmail(ctx context.Context, email string) (*model.AdminUser, string, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

type sessionCreatorDeleter interface {
	Create(ctx context.Context, userID string) (string, error)
	GetUserID(ctx context.Context, sessionID string) (string, error)
	DeleteAllByUserID(ctx context.Context, userID string) error
}

// AuthHandler handles admin authentication.
type AuthHandler struct {
	BaseHandler
	users         userGetterByEmail
	sessions      sessionCreatorDeleter
	secureCookies bool
	now           func() time.Time
}

func NewAuthHandler(logger *slog.Logger, users userGetterByEmail, sessions sessionCreatorDeleter, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		BaseHandler:   BaseHandler{Logger: logger},
		users:         users,
		sessions:      sessions,
		secureCookies: secureCookies,
		now:           time.Now,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an admin and issues a session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	user, hash, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil || !auth.Verify(hash, req.Password) {
		h.errorResponse(w, r, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if user.Status != model.StatusActive {
		h.errorResponse(w, r, http.StatusForbidden, "account is inactive")
		return
	}

	sessionID, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	if err := h.users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		h.logError(r, err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     appmw.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Expires:  h.now().Add(store.SessionTTL),
	})

	if err := h.writeJSON(w, http.StatusOK, envelope{"user": user}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := appmw.UserFromContext(r.Context())
	if user == nil {
		h.errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"user": user}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Logout invalidates every session of the cookie's user. It succeeds without
// a valid cookie too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var userID string
	if c, err := r.Cookie(appmw.SessionCookieName); err == nil && c.Value != "" {
		userID, _ = h.sessions.GetUserID(r.Context(), c.Value)
	}
	if userID != "" {
		if err := h.sessions.DeleteAllByUserID(r.Context(), userID); err != nil {
			h.logError(r, err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:    appmw.SessionCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}
