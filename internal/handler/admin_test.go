package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtmpl/internal/auth"
	"github.com/mailtmpl/internal/mailer"
	appmw "github.com/mailtmpl/internal/middleware"
	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/store"
)

type userResponse struct {
	User model.AdminUser `json:"user"`
}

func TestLogin(t *testing.T) {
	users := newFakeUsers(acmeAdmin)
	hash, err := auth.Hash("correct horse battery")
	require.NoError(t, err)
	users.hashes[acmeAdmin.ID] = hash
	sessions := newFakeSessions()
	h := NewAuthHandler(testLogger(), users, sessions, true)

	t.Run("wrong password", func(t *testing.T) {
		rr := doJSON(t, http.HandlerFunc(h.Login), http.MethodPost, "/api/admin/login", map[string]string{
			"email": acmeAdmin.Email, "password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := doJSON(t, http.HandlerFunc(h.Login), http.MethodPost, "/api/admin/login", map[string]string{
			"email": "ghost@acme.test", "password": "correct horse battery",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("success", func(t *testing.T) {
		rr := doJSON(t, http.HandlerFunc(h.Login), http.MethodPost, "/api/admin/login", map[string]string{
			"email": " " + acmeAdmin.Email + " ", "password": "correct horse battery",
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, acmeAdmin.ID, decode[userResponse](t, rr).User.ID)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, appmw.SessionCookieName, cookies[0].Name)
		assert.Equal(t, "sess-"+acmeAdmin.ID, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, []string{acmeAdmin.ID}, users.loggedIn)
	})

	t.Run("inactive account", func(t *testing.T) {
		users.byID[acmeAdmin.ID].Status = model.StatusInactive
		t.Cleanup(func() { users.byID[acmeAdmin.ID].Status = model.StatusActive })

		rr := doJSON(t, http.HandlerFunc(h.Login), http.MethodPost, "/api/admin/login", map[string]string{
			"email": acmeAdmin.Email, "password": "correct horse battery",
		})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestLogout(t *testing.T) {
	sessions := newFakeSessions()
	sid, err := sessions.Create(testContext(t), acmeAdmin.ID)
	require.NoError(t, err)
	h := NewAuthHandler(testLogger(), newFakeUsers(acmeAdmin), sessions, false)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil)
	req.AddCookie(&http.Cookie{Name: appmw.SessionCookieName, Value: sid})
	rr := httptest.NewRecorder()
	h.Logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{acmeAdmin.ID}, sessions.deleted)
	_, err = sessions.GetUserID(testContext(t), sid)
	assert.ErrorIs(t, err, store.ErrNotFound)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestLogout_WithoutCookie(t *testing.T) {
	sessions := newFakeSessions()
	h := NewAuthHandler(testLogger(), newFakeUsers(), sessions, false)

	rr := httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, sessions.deleted)
}

func TestMe(t *testing.T) {
	h := NewAuthHandler(testLogger(), newFakeUsers(), newFakeSessions(), false)
	r := chi.NewRouter()
	r.With(asUser(acmeAdmin)).Get("/me", h.Me)
	r.Get("/anonymous", h.Me)

	rr := doJSON(t, r, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, acmeAdmin.Email, decode[userResponse](t, rr).User.Email)

	assert.Equal(t, http.StatusUnauthorized, doJSON(t, r, http.MethodGet, "/anonymous", nil).Code)
}

func usersRouter(users *fakeUsers, sessions *fakeSessions) http.Handler {
	h := NewUsersHandler(testLogger(), users, sessions)
	r := chi.NewRouter()
	r.Use(asUser(superAdmin))
	r.Get("/api/admin/users", h.List)
	r.Post("/api/admin/users", h.Create)
	r.Put("/api/admin/users/{id}", h.Update)
	r.Delete("/api/admin/users/{id}", h.Delete)
	return r
}

func TestUsers_ListAndCreate(t *testing.T) {
	users := newFakeUsers(superAdmin, acmeAdmin)
	r := usersRouter(users, newFakeSessions())

	rr := doJSON(t, r, http.MethodGet, "/api/admin/users", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[struct {
		Users []model.AdminUser `json:"users"`
	}](t, rr).Users, 2)

	rr = doJSON(t, r, http.MethodPost, "/api/admin/users", map[string]any{
		"email": "new@globex.test", "password": "a long enough secret", "organization_id": "globex",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[userResponse](t, rr).User
	assert.Equal(t, model.RoleAdmin, created.Role)
	assert.Equal(t, model.StatusActive, created.Status)
	require.NotNil(t, created.OrganizationID)
	assert.Equal(t, "globex", *created.OrganizationID)
	assert.True(t, auth.Verify(users.hashes[created.ID], "a long enough secret"))

	rr = doJSON(t, r, http.MethodPost, "/api/admin/users", map[string]any{
		"email": "new@globex.test", "password": "a long enough secret", "organization_id": "globex",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Email is already in use", decode[fieldErrorResponse](t, rr).Error["email"])
}

func TestUsers_CreateValidation(t *testing.T) {
	r := usersRouter(newFakeUsers(superAdmin), newFakeSessions())

	rr := doJSON(t, r, http.MethodPost, "/api/admin/users", map[string]any{
		"email": "bad", "password": "short", "role": "admin",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errs := decode[fieldErrorResponse](t, rr).Error
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
	assert.Equal(t, "Organization is required for admins", errs["organization_id"])

	rr = doJSON(t, r, http.MethodPost, "/api/admin/users", map[string]any{
		"email": "x@y.test", "password": "a long enough secret", "role": "owner",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Unknown role", decode[fieldErrorResponse](t, rr).Error["role"])
}

func TestUsers_PromoteDropsOrganization(t *testing.T) {
	users := newFakeUsers(superAdmin, acmeAdmin)
	r := usersRouter(users, newFakeSessions())

	rr := doJSON(t, r, http.MethodPut, "/api/admin/users/"+acmeAdmin.ID, map[string]any{"role": "super_admin"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Nil(t, decode[userResponse](t, rr).User.OrganizationID)
	assert.Nil(t, users.byID[acmeAdmin.ID].OrganizationID)
}

func TestUsers_DeactivateRevokesSessions(t *testing.T) {
	sessions := newFakeSessions()
	r := usersRouter(newFakeUsers(superAdmin, acmeAdmin), sessions)

	rr := doJSON(t, r, http.MethodPut, "/api/admin/users/"+acmeAdmin.ID, map[string]any{"status": "inactive"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{acmeAdmin.ID}, sessions.deleted)
}

func TestUsers_LastSuperAdmin(t *testing.T) {
	users := newFakeUsers(superAdmin, acmeAdmin)
	users.updateErr = store.ErrLastSuperAdmin
	users.deleteErr = store.ErrLastSuperAdmin
	r := usersRouter(users, newFakeSessions())

	rr := doJSON(t, r, http.MethodPut, "/api/admin/users/"+superAdmin.ID, map[string]any{"status": "inactive"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, r, http.MethodDelete, "/api/admin/users/"+acmeAdmin.ID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestUsers_Delete(t *testing.T) {
	users := newFakeUsers(superAdmin, acmeAdmin)
	sessions := newFakeSessions()
	r := usersRouter(users, sessions)

	rr := doJSON(t, r, http.MethodDelete, "/api/admin/users/"+superAdmin.ID, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "cannot delete your own account", decode[messageResponse](t, rr).Error)

	assert.Equal(t, http.StatusNoContent, doJSON(t, r, http.MethodDelete, "/api/admin/users/"+acmeAdmin.ID, nil).Code)
	assert.Equal(t, []string{acmeAdmin.ID}, sessions.deleted)
	assert.Equal(t, http.StatusNotFound, doJSON(t, r, http.MethodDelete, "/api/admin/users/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, r, http.MethodPut, "/api/admin/users/missing", map[string]any{}).Code)
}

type settingsResponse struct {
	Settings model.AppSettings `json:"settings"`
}

func TestSettings_GetRedactsPassword(t *testing.T) {
	settings := &fakeSettings{current: model.AppSettings{SMTPHost: "smtp.acme.test", SMTPPass: "hunter2"}}
	h := NewSettingsHandler(testLogger(), settings, &fakeMailer{})

	rr := doJSON(t, http.HandlerFunc(h.Get), http.MethodGet, "/api/admin/settings", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[settingsResponse](t, rr).Settings
	assert.Equal(t, "smtp.acme.test", got.SMTPHost)
	assert.Equal(t, "********", got.SMTPPass)
	assert.NotContains(t, rr.Body.String(), "hunter2")
}

func TestSettings_UpdateKeepsPasswordAndReconfigures(t *testing.T) {
	settings := &fakeSettings{current: model.AppSettings{SMTPPass: "hunter2"}}
	m := &fakeMailer{}
	h := NewSettingsHandler(testLogger(), settings, m)

	rr := doJSON(t, http.HandlerFunc(h.Update), http.MethodPut, "/api/admin/settings", map[string]any{
		"smtpHost": "smtp.acme.test",
		"smtpPort": 587,
		"smtpPass": "********",
		"senders": map[string]any{
			"transactional_email": map[string]string{"name": "Acme", "address": "noreply@acme.test"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "hunter2", settings.current.SMTPPass)
	assert.Equal(t, 1, settings.saved)
	require.Len(t, m.configs, 1)
	assert.Equal(t, mailer.Config{
		Host: "smtp.acme.test", Port: 587, Pass: "hunter2", FromName: "Acme", FromAddress: "noreply@acme.test",
	}, *m.configs[0])
}

func TestSettings_UpdateValidation(t *testing.T) {
	settings := &fakeSettings{}
	h := NewSettingsHandler(testLogger(), settings, &fakeMailer{})

	rr := doJSON(t, http.HandlerFunc(h.Update), http.MethodPut, "/api/admin/settings", map[string]any{
		"smtpPort": 70000,
		"senders": map[string]any{
			"marketing_email": map[string]string{"address": "nope"},
			"carrier_pigeon":  map[string]string{"address": "a@b.test"},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errs := decode[fieldErrorResponse](t, rr).Error
	assert.Equal(t, "Port must be between 0 and 65535", errs["smtpPort"])
	assert.Equal(t, "Please enter a valid email address", errs["senders.marketing_email"])
	assert.Equal(t, "Unknown sender address type", errs["senders.carrier_pigeon"])
	assert.Zero(t, settings.saved)
}

func TestSettings_TestEmail(t *testing.T) {
	settings := &fakeSettings{current: model.AppSettings{CompanyName: "Acme Inc"}}
	m := &fakeMailer{}
	h := NewSettingsHandler(testLogger(), settings, m)

	rr := doJSON(t, http.HandlerFunc(h.TestEmail), http.MethodPost, "/api/admin/settings/test-email", map[string]string{"to": "ops@acme.test"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, m.sent, 1)
	assert.Equal(t, []string{"ops@acme.test"}, m.sent[0].To)
	assert.True(t, strings.Contains(m.sent[0].Text, "Acme Inc"))
	assert.Len(t, m.configs, 1)

	m.err = mailer.ErrNotConfigured
	rr = doJSON(t, http.HandlerFunc(h.TestEmail), http.MethodPost, "/api/admin/settings/test-email", map[string]string{"to": "ops@acme.test"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr = doJSON(t, http.HandlerFunc(h.TestEmail), http.MethodPost, "/api/admin/settings/test-email", map[string]string{"to": "ops"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
