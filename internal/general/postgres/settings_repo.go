package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"dispatch/internal/domain/settings"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// SettingsRepo reads and writes well-known settings blobs stored as
// (key, jsonb) rows in the `settings` table.
type SettingsRepo struct{}

// NewSettingsRepo constructs a new SettingsRepo.
func NewSettingsRepo() ports.SettingsRepository {
	return &SettingsRepo{}
}

// GetWebhook returns the webhook config, zero-valued (disabled) when no row exists.
func (repo *SettingsRepo) GetWebhook(ctx context.Context) (settings.Webhook, error) {
	var out settings.Webhook
	err := repo.get(ctx, settings.KeyWebhook, &out)
	return out, err
}

// PutWebhook upserts the webhook config.
func (repo *SettingsRepo) PutWebhook(ctx context.Context, w settings.Webhook) error {
	return repo.put(ctx, settings.KeyWebhook, w)
}

// GetNotifications returns the ETA window config, falling back to defaults.
func (repo *SettingsRepo) GetNotifications(ctx context.Context) (settings.Notifications, error) {
	out := settings.DefaultNotifications()
	err := repo.get(ctx, settings.KeyNotifications, &out)
	return out, err
}

// GetDelivery returns the stop-creation defaults, falling back to defaults.
func (repo *SettingsRepo) GetDelivery(ctx context.Context) (settings.Delivery, error) {
	out := settings.DefaultDelivery()
	err := repo.get(ctx, settings.KeyDelivery, &out)
	return out, err
}

// get unmarshals the blob for key into dst. A missing row leaves dst untouched.
func (repo *SettingsRepo) get(ctx context.Context, key string, dst any) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (repo *SettingsRepo) put(ctx context.Context, key string, value any) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, raw)
	return err
}
