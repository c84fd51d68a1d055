// Package auth hashes admin passwords and seeds the first account.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mailtmpl/internal/model"
)

const bcryptCost = 12

// MinPasswordLength applies to every password set through the API.
const MinPasswordLength = 12

// Hash returns a bcrypt hash of the password.
func Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(b), err
}

// Verify reports whether password matches the stored bcrypt hash.
func Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewID returns a random user id.
func NewID() string {
	return uuid.NewString()
}

// UserCreator is the minimal interface needed for seeding the first admin.
type UserCreator interface {
	CountAll(ctx context.Context) (int, error)
	Create(ctx context.Context, u *model.AdminUser, passwordHash string) error
}

// SeedFirstAdmin creates a super_admin when the admin_users table is empty.
// It does nothing when email or password is blank.
func SeedFirstAdmin(ctx context.Context, users UserCreator, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	count, err := users.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("seed: count admin users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := Hash(password)
	if err != nil {
		return fmt.Errorf("seed: hash password: %w", err)
	}

	u := &model.AdminUser{
		ID:     NewID(),
		Email:  email,
		Role:   model.RoleSuperAdmin,
		Status: model.StatusActive,
	}
	if err := users.Create(ctx, u, hash); err != nil {
		return fmt.Errorf("seed: create admin user: %w", err)
	}
	slog.Info("seed: created first super_admin", "email", email)
	return nil
}
