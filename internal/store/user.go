package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailtmpl/internal/model"
)

const userColumns = `id, email, role, status, organization_id, created_at, last_login_at`

type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{db: pool}
}

func (s *UserStore) CountAll(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n)
	return n, err
}

func (s *UserStore) Create(ctx context.Context, u *model.AdminUser, passwordHash string) error {
	if u.Status == "" {
		u.Status = model.StatusActive
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO admin_users (id, email, password_hash, role, status, organization_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		u.ID, u.Email, passwordHash, string(u.Role), string(u.Status), ptrText(u.OrganizationID),
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create admin user: %w", err)
	}
	return nil
}

// GetByEmail returns the user and their password hash.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.AdminUser, string, error) {
	var hash string
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM admin_users WHERE lower(email) = lower($1)`, email)
	u, err := scanUser(row, &hash)
	if err != nil {
		return nil, "", notFound(err)
	}
	return u, hash, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.AdminUser, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM admin_users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *UserStore) ListAll(ctx context.Context) ([]model.AdminUser, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM admin_users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.AdminUser{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Update changes role, status and organization. Demoting or deactivating the
// last active super admin fails with ErrLastSuperAdmin.
func (s *UserStore) Update(ctx context.Context, u *model.AdminUser) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		staysSuper := u.Role == model.RoleSuperAdmin && u.Status == model.StatusActive
		if !staysSuper {
			if err := guardLastSuperAdmin(ctx, tx, u.ID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE admin_users SET role = $2, status = $3, organization_id = $4 WHERE id = $1`,
			u.ID, string(u.Role), string(u.Status), ptrText(u.OrganizationID))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `UPDATE admin_users SET last_login_at = NOW() WHERE id = $1`, id)
	return err
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := guardLastSuperAdmin(ctx, tx, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM admin_users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// guardLastSuperAdmin fails when id is the only active super admin left. It
// locks every active super admin row, in id order, so concurrent demotions
// are serialized and the later one counts what the earlier one left.
func guardLastSuperAdmin(ctx context.Context, tx pgx.Tx, id string) error {
	rows, err := tx.Query(ctx, `
		SELECT id FROM admin_users
		WHERE role = 'super_admin' AND status = 'active'
		ORDER BY id FOR UPDATE`)
	if err != nil {
		return err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	if !slices.Contains(ids, id) {
		return nil
	}
	if len(ids) <= 1 {
		return ErrLastSuperAdmin
	}
	return nil
}

func scanUser(row pgx.Row, extra ...any) (*model.AdminUser, error) {
	var (
		u            model.AdminUser
		role, status string
		org          pgtype.Text
		lastLogin    pgtype.Timestamptz
	)
	dest := append([]any{&u.ID, &u.Email, &role, &status, &org, &u.CreatedAt, &lastLogin}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.Status = model.Status(status)
	u.OrganizationID = textPtr(org)
	u.LastLoginAt = pgtimePtr(lastLogin)
	return &u, nil
}
