package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/mailtmpl/internal/auth"
	appmw "github.com/mailtmpl/internal/middleware"
	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/store"
)

type userManagementStore interface {
	ListAll(ctx context.Context) ([]model.AdminUser, error)
	GetByID(ctx context.Context, id string) (*model.AdminUser, error)
	Create(ctx context.Context, u *model.AdminUser, passwordHash string) error
	Update(ctx context.Context, u *model.AdminUser) error
	Delete(ctx context.Context, id string) error
}

type allSessionDeleter interface {
	DeleteAllByUserID(ctx context.Context, userID string) error
}

// UsersHandler handles super-admin user management.
type UsersHandler struct {
	BaseHandler
	users    userManagementStore
	sessions allSessionDeleter
}

func NewUsersHandler(logger *slog.Logger, users userManagementStore, sessions allSessionDeleter) *UsersHandler {
	return &UsersHandler{BaseHandler: BaseHandler{Logger: logger}, users: users, sessions: sessions}
}

// List returns all admin users as JSON.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAll(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"users": users}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

type createUserRequest struct {
	Email          string     `json:"email"`
	Password       string     `json:"password"`
	Role           model.Role `json:"role"`
	OrganizationID *string    `json:"organization_id"`
}

// Create adds an admin account. Organization admins must belong to an
// organization.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Role == "" {
		req.Role = model.RoleAdmin
	}

	errs := model.FieldErrors{}
	if !model.IsValidEmail(req.Email) {
		errs["email"] = "Please enter a valid email address"
	}
	if utf8.RuneCountInString(req.Password) < auth.MinPasswordLength {
		errs["password"] = "Password must be at least 12 characters"
	}
	validateRoleAndOrg(errs, req.Role, req.OrganizationID)
	if !errs.Valid() {
		h.failedValidationResponse(w, r, errs)
		return
	}

	hash, err := auth.Hash(req.Password)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	u := &model.AdminUser{
		ID:             auth.NewID(),
		Email:          req.Email,
		Role:           req.Role,
		Status:         model.StatusActive,
		OrganizationID: orgFor(req.Role, req.OrganizationID),
	}
	if err := h.users.Create(r.Context(), u, hash); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			h.failedValidationResponse(w, r, map[string]string{"email": "Email is already in use"})
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}

	if err := h.writeJSON(w, http.StatusCreated, envelope{"user": u}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

type updateUserRequest struct {
	Role           *model.Role   `json:"role"`
	Status         *model.Status `json:"status"`
	OrganizationID *string       `json:"organization_id"`
}

// Update changes a user's role, status or organization. Deactivated users
// lose their sessions.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateUserRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.notFoundResponse(w, r)
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}

	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.Status != nil {
		u.Status = *req.Status
	}
	if req.OrganizationID != nil {
		u.OrganizationID = req.OrganizationID
	}

	errs := model.FieldErrors{}
	if u.Status != model.StatusActive && u.Status != model.StatusInactive {
		errs["status"] = "Unknown status"
	}
	validateRoleAndOrg(errs, u.Role, u.OrganizationID)
	if !errs.Valid() {
		h.failedValidationResponse(w, r, errs)
		return
	}
	u.OrganizationID = orgFor(u.Role, u.OrganizationID)

	if err := h.users.Update(r.Context(), u); err != nil {
		h.userWriteError(w, r, err)
		return
	}
	if u.Status != model.StatusActive {
		if err := h.sessions.DeleteAllByUserID(r.Context(), u.ID); err != nil {
			h.logError(r, err)
		}
	}

	if err := h.writeJSON(w, http.StatusOK, envelope{"user": u}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Delete removes a user account.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	callerID := appmw.UserIDFromContext(r.Context())

	if id == callerID {
		h.badRequestResponse(w, r, errors.New("cannot delete your own account"))
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		h.userWriteError(w, r, err)
		return
	}
	if err := h.sessions.DeleteAllByUserID(r.Context(), id); err != nil {
		h.logError(r, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) userWriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.notFoundResponse(w, r)
	case errors.Is(err, store.ErrLastSuperAdmin):
		h.errorResponse(w, r, http.StatusConflict, "at least one active super admin must remain")
	default:
		h.serverErrorResponse(w, r, err)
	}
}

func validateRoleAndOrg(errs model.FieldErrors, role model.Role, org *string) {
	switch role {
	case model.RoleSuperAdmin:
	case model.RoleAdmin:
		if org == nil || strings.TrimSpace(*org) == "" {
			errs["organization_id"] = "Organization is required for admins"
		}
	default:
		errs["role"] = "Unknown role"
	}
}

// orgFor drops the organization of super admins, who are never scoped.
func orgFor(role model.Role, org *string) *string {
	if role == model.RoleSuperAdmin {
		return nil
	}
	return org
}
