package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

type MessagingConfigRepositoryInterface interface {
	GetActive(ctx context.Context) (*model.MessagingConfig, error)
	Create(ctx context.Context, cfg *model.MessagingConfig) error
	Activate(ctx context.Context, id int64) error
}

type MessagingConfigRepository struct {
	DB     *sql.DB
	Driver string
}

// GetActive returns nil, nil when no gateway is configured.
func (r *MessagingConfigRepository) GetActive(ctx context.Context) (*model.MessagingConfig, error) {
	query := `
        SELECT id, provider, api_url, instance_name, api_key, phone_number, is_active, created_at
        FROM messaging_configs
        WHERE is_active = TRUE
        ORDER BY id DESC
        LIMIT 1
    `
	var (
		c         model.MessagingConfig
		createdAt nullTime
	)
	err := r.DB.QueryRowContext(ctx, query).Scan(
		&c.ID, &c.Provider, &c.APIURL, &c.InstanceName, &c.APIKey, &c.PhoneNumber, &c.IsActive, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active messaging config: %w", err)
	}
	c.CreatedAt = createdAt.Time
	return &c, nil
}

// Create stores an inactive config; use Activate to switch to it.
func (r *MessagingConfigRepository) Create(ctx context.Context, cfg *model.MessagingConfig) error {
	if cfg.Provider == "" {
		cfg.Provider = model.ProviderEvolution
	}
	cfg.IsActive = false
	cfg.CreatedAt = time.Now().UTC()
	query := `
        INSERT INTO messaging_configs (provider, api_url, instance_name, api_key, phone_number, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, rebind(r.Driver, query),
		cfg.Provider, cfg.APIURL, cfg.InstanceName, cfg.APIKey, cfg.PhoneNumber, cfg.IsActive, cfg.CreatedAt,
	).Scan(&cfg.ID)
}

// Activate makes id the only active config.
func (r *MessagingConfigRepository) Activate(ctx context.Context, id int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE messaging_configs SET is_active = FALSE WHERE is_active = TRUE`); err != nil {
		return fmt.Errorf("deactivate messaging configs: %w", err)
	}
	res, err := tx.ExecContext(ctx, rebind(r.Driver, `UPDATE messaging_configs SET is_active = TRUE WHERE id=$1`), id)
	if err != nil {
		return fmt.Errorf("activate messaging config %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("messaging config %d not found", id)
	}
	return tx.Commit()
}

var _ MessagingConfigRepositoryInterface = (*MessagingConfigRepository)(nil)
