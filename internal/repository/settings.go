package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LoadSettingsJSON returns the stored settings document, or nil when none was saved.
func (r *Repository) LoadSettingsJSON(ctx context.Context) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return data, nil
}

// SaveSettingsJSON replaces the stored settings document.
func (r *Repository) SaveSettingsJSON(ctx context.Context, data []byte) error {
	query := `
		INSERT INTO settings (id, data, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, data); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
