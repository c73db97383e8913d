package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

type TemplateRepositoryInterface interface {
	GetActiveByStage(ctx context.Context, stage int) (*model.FollowUpTemplate, error)
	Upsert(ctx context.Context, t *model.FollowUpTemplate) error
	ListAll(ctx context.Context) ([]*model.FollowUpTemplate, error)
}

type TemplateRepository struct {
	DB     *sql.DB
	Driver string
}

// GetActiveByStage returns nil, nil when the stage has no active template.
func (r *TemplateRepository) GetActiveByStage(ctx context.Context, stage int) (*model.FollowUpTemplate, error) {
	query := `
        SELECT id, attempt_stage, template_text, is_active, updated_at
        FROM followup_templates
        WHERE attempt_stage=$1 AND is_active = TRUE
    `
	var (
		t         model.FollowUpTemplate
		updatedAt nullTime
	)
	err := r.DB.QueryRowContext(ctx, rebind(r.Driver, query), stage).Scan(
		&t.ID, &t.AttemptStage, &t.TemplateText, &t.IsActive, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template for stage %d: %w", stage, err)
	}
	t.UpdatedAt = updatedAt.Time
	return &t, nil
}

func (r *TemplateRepository) Upsert(ctx context.Context, t *model.FollowUpTemplate) error {
	t.UpdatedAt = time.Now().UTC()
	query := `
        INSERT INTO followup_templates (attempt_stage, template_text, is_active, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (attempt_stage) DO UPDATE SET
            template_text = excluded.template_text,
            is_active = excluded.is_active,
            updated_at = excluded.updated_at
        RETURNING id
    `
	if err := r.DB.QueryRowContext(ctx, rebind(r.Driver, query),
		t.AttemptStage, t.TemplateText, t.IsActive, t.UpdatedAt,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("upsert template for stage %d: %w", t.AttemptStage, err)
	}
	return nil
}

func (r *TemplateRepository) ListAll(ctx context.Context) ([]*model.FollowUpTemplate, error) {
	query := `SELECT id, attempt_stage, template_text, is_active, updated_at FROM followup_templates ORDER BY attempt_stage ASC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*model.FollowUpTemplate{}
	for rows.Next() {
		var (
			t         model.FollowUpTemplate
			updatedAt nullTime
		)
		if err := rows.Scan(&t.ID, &t.AttemptStage, &t.TemplateText, &t.IsActive, &updatedAt); err != nil {
			return nil, err
		}
		t.UpdatedAt = updatedAt.Time
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
