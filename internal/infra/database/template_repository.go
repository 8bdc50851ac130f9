package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/nourx/mailer/internal/adapters/db"
	"github.com/nourx/mailer/internal/domain"
)

const templatesTable = "email_templates"

type TemplateRepository struct {
	db *db.Client
}

func NewTemplateRepository(db *db.Client) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.EmailTemplate, error) {
	ds := goqu.From(templatesTable).Where(goqu.C("id").Eq(id))

	var tmpl domain.EmailTemplate
	if err := r.db.QueryRow(ctx, &tmpl, ds); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return domain.EmailTemplate{}, domain.ErrTemplateNotFound
		}
		return domain.EmailTemplate{}, fmt.Errorf("error getting template %s: %w", id, err)
	}
	return tmpl, nil
}

// GetActiveByName resolves the template used for enqueue-by-name. Inactive
// templates are invisible here on purpose.
func (r *TemplateRepository) GetActiveByName(ctx context.Context, name string) (domain.EmailTemplate, error) {
	ds := goqu.From(templatesTable).Where(goqu.Ex{
		"name":      name,
		"is_active": true,
	})

	var tmpl domain.EmailTemplate
	if err := r.db.QueryRow(ctx, &tmpl, ds); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return domain.EmailTemplate{}, domain.ErrTemplateNotFound
		}
		return domain.EmailTemplate{}, fmt.Errorf("error getting template %q: %w", name, err)
	}
	return tmpl, nil
}
