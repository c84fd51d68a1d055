package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtmpl/internal/model"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, Verify(hash, "correct horse battery"))
	assert.False(t, Verify(hash, "wrong"))
	assert.False(t, Verify("not-a-hash", "x"))
}

type fakeUsers struct {
	count   int
	created []*model.AdminUser
	hashes  []string
}

func (f *fakeUsers) CountAll(context.Context) (int, error) { return f.count, nil }

func (f *fakeUsers) Create(_ context.Context, u *model.AdminUser, hash string) error {
	f.created = append(f.created, u)
	f.hashes = append(f.hashes, hash)
	return nil
}

func TestSeedFirstAdmin(t *testing.T) {
	users := &fakeUsers{}
	require.NoError(t, SeedFirstAdmin(context.Background(), users, "root@example.com", "s3cret-password"))
	require.Len(t, users.created, 1)

	u := users.created[0]
	assert.Equal(t, model.RoleSuperAdmin, u.Role)
	assert.Equal(t, model.StatusActive, u.Status)
	assert.Nil(t, u.OrganizationID)
	assert.Len(t, u.ID, 36)
	assert.True(t, Verify(users.hashes[0], "s3cret-password"))
}

func TestSeedFirstAdminSkips(t *testing.T) {
	users := &fakeUsers{count: 1}
	require.NoError(t, SeedFirstAdmin(context.Background(), users, "root@example.com", "pw"))
	assert.Empty(t, users.created)

	empty := &fakeUsers{}
	require.NoError(t, SeedFirstAdmin(context.Background(), empty, "", "pw"))
	assert.Empty(t, empty.created)
}
