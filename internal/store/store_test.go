package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtmpl/internal/crypto"
	"github.com/mailtmpl/internal/db"
	"github.com/mailtmpl/internal/model"
)

// testPool connects to TEST_DATABASE_URL, migrates it and empties every table.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, db.Up(url))

	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE email_templates, sessions, app_settings, admin_users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

func strp(s string) *string { return &s }

func TestTemplateStoreCRUD(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewTemplateStore(pool)

	tmpl := &model.EmailTemplate{
		OrganizationID:  strp("org-1"),
		Type:            model.TypeWelcome,
		Subject:         "Welcome {{user_name}}",
		HTMLCode:        "<p>Hello {{user_name}}</p>",
		Name:            strp("Welcome"),
		FromAddressType: model.FromTransactional,
		IsActive:        true,
		Category:        model.CategoryTransactional,
	}
	require.NoError(t, s.Create(ctx, tmpl))
	assert.NotZero(t, tmpl.ID)
	assert.False(t, tmpl.UpdatedAt.IsZero())

	got, err := s.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Subject, got.Subject)
	assert.Equal(t, "Welcome", *got.Name)
	assert.Nil(t, got.Description)

	before := got.UpdatedAt
	time.Sleep(10 * time.Millisecond)
	got.Subject = "Hello again"
	require.NoError(t, s.Update(ctx, got))
	assert.True(t, got.UpdatedAt.After(before))

	toggled, err := s.SetActive(ctx, tmpl.ID, false)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)
	assert.Equal(t, "Hello again", toggled.Subject)

	require.NoError(t, s.Create(ctx, &model.EmailTemplate{
		Type: model.TypeNewsletter, Subject: "Global", HTMLCode: "<p>global body</p>",
		FromAddressType: model.FromMarketing, Category: model.CategoryMarketing,
	}))

	all, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := s.List(ctx, ListFilter{OrganizationID: strp("org-1")})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, tmpl.ID, scoped[0].ID)

	require.NoError(t, s.Delete(ctx, tmpl.ID))
	_, err = s.Get(ctx, tmpl.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, tmpl.ID), ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, tmpl), ErrNotFound)
}

func TestUserAndSessionStores(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserStore(pool)
	sessions := NewSessionStore(pool)

	super := &model.AdminUser{ID: "u1", Email: "root@example.com", Role: model.RoleSuperAdmin}
	require.NoError(t, users.Create(ctx, super, "hash"))
	admin := &model.AdminUser{ID: "u2", Email: "ann@example.com", Role: model.RoleAdmin, OrganizationID: strp("org-1")}
	require.NoError(t, users.Create(ctx, admin, "hash2"))

	dup := &model.AdminUser{ID: "u3", Email: "ann@example.com", Role: model.RoleAdmin, OrganizationID: strp("org-2")}
	assert.ErrorIs(t, users.Create(ctx, dup, "hash3"), ErrDuplicateEmail)

	n, err := users.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u, hash, err := users.GetByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash2", hash)
	assert.Equal(t, "org-1", *u.OrganizationID)

	assert.ErrorIs(t, users.Delete(ctx, "u1"), ErrLastSuperAdmin)
	super.Status = model.StatusInactive
	assert.ErrorIs(t, users.Update(ctx, super), ErrLastSuperAdmin)

	id, err := sessions.Create(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, id, 64)

	userID, err := sessions.GetUserID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u2", userID)

	_, err = pool.Exec(ctx, `UPDATE sessions SET expires_at = NOW() - INTERVAL '1 minute'`)
	require.NoError(t, err)
	_, err = sessions.GetUserID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := sessions.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	require.NoError(t, users.Delete(ctx, "u2"))
	_, err = users.GetByID(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentDemotionsKeepOneSuperAdmin(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserStore(pool)

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, users.Create(ctx, &model.AdminUser{ID: id, Email: id + "@example.com", Role: model.RoleSuperAdmin}, "hash"))
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"s1", "s2"} {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = users.Update(ctx, &model.AdminUser{ID: id, Role: model.RoleSuperAdmin, Status: model.StatusInactive})
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrLastSuperAdmin)
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	var active int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_users WHERE role = 'super_admin' AND status = 'active'`).Scan(&active))
	assert.Equal(t, 1, active)
}

func TestSettingsStoreSeedsAndEncrypts(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	c, err := crypto.FromSecret("settings-test-secret")
	require.NoError(t, err)

	defaults := model.AppSettings{SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPPass: "pw"}
	s := NewSettingsStore(pool, c, defaults)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", got.SMTPHost)

	var raw []byte
	require.NoError(t, pool.QueryRow(ctx, `SELECT data FROM app_settings`).Scan(&raw))
	assert.NotContains(t, string(raw), "smtp.example.com")

	got.SMTPHost = "mail.internal"
	require.NoError(t, s.Save(ctx, got))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mail.internal", again.SMTPHost)
}
