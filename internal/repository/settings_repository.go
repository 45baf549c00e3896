package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SettingsRepository stores school-wide key/value settings. The freeze gate
// lives here.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetBool reads a boolean setting, defaulting to false when no row exists.
func (r *SettingsRepository) GetBool(ctx context.Context, schoolID, key string) (bool, error) {
	const query = "SELECT value FROM school_settings WHERE school_id = $1 AND key = $2"
	var value string
	if err := r.db.GetContext(ctx, &value, query, schoolID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value == "true", nil
}

// SetBool upserts a boolean setting.
func (r *SettingsRepository) SetBool(ctx context.Context, schoolID, key string, value bool) error {
	raw := "false"
	if value {
		raw = "true"
	}
	const query = `INSERT INTO school_settings (id, school_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (school_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), schoolID, key, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
