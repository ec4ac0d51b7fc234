package store

import (
	"context"
	"database/sql"

	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

type TemplateStore struct {
	DB    *sql.DB
	Clock clock.Clock
}

func NewTemplateStore(db *sql.DB, clk clock.Clock) *TemplateStore {
	if clk == nil {
		clk = clock.System()
	}
	return &TemplateStore{DB: db, Clock: clk}
}

func (s *TemplateStore) Insert(ctx context.Context, t *models.EmailTemplate) error {
	t.CreatedAt = s.Clock.Now()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO email_templates (id, name, subject, html_content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Subject, t.HTMLContent, t.CreatedAt,
	)
	if err != nil {
		return errs.NewStorageError("insert template", err)
	}
	return nil
}

func (s *TemplateStore) GetByID(ctx context.Context, id string) (*models.EmailTemplate, error) {
	var t models.EmailTemplate
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, subject, html_content, created_at FROM email_templates WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.HTMLContent, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NewTemplateNotFoundError(id)
	}
	if err != nil {
		return nil, errs.NewStorageError("get template", err)
	}
	return &t, nil
}
