package store

import (
	"context"
	"fmt"
	"time"
)

// AppSetting is a runtime-overridable configuration value persisted across
// restarts.
type AppSetting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
	UpdatedBy int64
}

// UpsertSetting writes a runtime setting, recording who changed it.
func (s *Store) UpsertSetting(ctx context.Context, key, value string, updatedBy int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at, updated_by)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`, key, value, time.Now().UTC(), updatedBy)
	if err != nil {
		return fmt.Errorf("store: upsert setting: %w", err)
	}
	return nil
}

// LoadSettings returns all persisted runtime settings as a key/value map.
func (s *Store) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("store: load settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("store: scan setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate settings: %w", err)
	}
	return settings, nil
}
