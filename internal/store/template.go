package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailtmpl/internal/model"
)

const templateColumns = `id, organization_id, type, subject, html_code, name, description,
	email_main_logo_image, from_email_address_type, is_active, is_default, category,
	created_by, updated_at`

type TemplateStore struct {
	db *pgxpool.Pool
}

func NewTemplateStore(pool *pgxpool.Pool) *TemplateStore {
	return &TemplateStore{db: pool}
}

// ListFilter restricts List. A nil OrganizationID lists every template.
type ListFilter struct {
	OrganizationID *string
}

func (s *TemplateStore) List(ctx context.Context, f ListFilter) ([]*model.EmailTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM email_templates`
	var args []any
	if f.OrganizationID != nil {
		query += ` WHERE organization_id = $1`
		args = append(args, *f.OrganizationID)
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []*model.EmailTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TemplateStore) Get(ctx context.Context, id int64) (*model.EmailTemplate, error) {
	row := s.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM email_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// Create inserts t and fills in its ID and UpdatedAt.
func (s *TemplateStore) Create(ctx context.Context, t *model.EmailTemplate) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO email_templates (organization_id, type, subject, html_code, name, description,
			email_main_logo_image, from_email_address_type, is_active, is_default, category, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, updated_at`,
		ptrText(t.OrganizationID), string(t.Type), t.Subject, t.HTMLCode,
		ptrText(t.Name), ptrText(t.Description), ptrText(t.LogoImage),
		string(t.FromAddressType), t.IsActive, t.IsDefault, string(t.Category), ptrText(t.CreatedBy),
	).Scan(&t.ID, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// Update overwrites the editable columns of t and bumps updated_at.
func (s *TemplateStore) Update(ctx context.Context, t *model.EmailTemplate) error {
	err := s.db.QueryRow(ctx, `
		UPDATE email_templates SET
			organization_id = $2, type = $3, subject = $4, html_code = $5, name = $6,
			description = $7, email_main_logo_image = $8, from_email_address_type = $9,
			is_active = $10, category = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, ptrText(t.OrganizationID), string(t.Type), t.Subject, t.HTMLCode,
		ptrText(t.Name), ptrText(t.Description), ptrText(t.LogoImage),
		string(t.FromAddressType), t.IsActive, string(t.Category),
	).Scan(&t.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

func (s *TemplateStore) SetActive(ctx context.Context, id int64, active bool) (*model.EmailTemplate, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE email_templates SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+templateColumns, id, active)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (s *TemplateStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM email_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (*model.EmailTemplate, error) {
	var (
		t                              model.EmailTemplate
		org, name, desc, logo, creator pgtype.Text
		typ, from, category            string
	)
	err := row.Scan(&t.ID, &org, &typ, &t.Subject, &t.HTMLCode, &name, &desc,
		&logo, &from, &t.IsActive, &t.IsDefault, &category, &creator, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.OrganizationID = textPtr(org)
	t.Name = textPtr(name)
	t.Description = textPtr(desc)
	t.LogoImage = textPtr(logo)
	t.CreatedBy = textPtr(creator)
	t.Type = model.TemplateType(typ)
	t.FromAddressType = model.FromAddressType(from)
	t.Category = model.Category(category)
	return &t, nil
}
