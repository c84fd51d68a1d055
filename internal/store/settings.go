package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailtmpl/internal/crypto"
	"github.com/mailtmpl/internal/model"
)

// SettingsStore keeps AppSettings as one encrypted JSON row.
type SettingsStore struct {
	db       *pgxpool.Pool
	crypter  *crypto.Crypter
	defaults model.AppSettings
}

// NewSettingsStore returns a store that seeds itself with defaults the first
// time Load finds no row.
func NewSettingsStore(pool *pgxpool.Pool, crypter *crypto.Crypter, defaults model.AppSettings) *SettingsStore {
	return &SettingsStore{db: pool, crypter: crypter, defaults: defaults}
}

func (s *SettingsStore) Load(ctx context.Context) (*model.AppSettings, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM app_settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		seeded := s.defaults
		if err := s.Save(ctx, &seeded); err != nil {
			return nil, fmt.Errorf("seed settings: %w", err)
		}
		slog.Info("settings: seeded from environment")
		return &seeded, nil
	} else if err != nil {
		return nil, err
	}

	plaintext, err := s.crypter.Decrypt(data)
	if err != nil {
		slog.Error("settings: decryption failed", "err", err)
		return nil, err
	}
	var settings model.AppSettings
	if err := json.Unmarshal(plaintext, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings *model.AppSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	ciphertext, err := s.crypter.Encrypt(raw)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO app_settings (id, data, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, ciphertext)
	return err
}
