// ABOUTME: Key-value secrets table, holding the per-install token signing secret
// ABOUTME: SigningSecret generates and persists a random secret on first use

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// signingSecretKey is the secrets row holding the device token HS256 secret.
const signingSecretKey = "device_token_secret"

// GetSecret returns the value stored under key, or ErrNotFound.
func (s *Store) GetSecret(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("secret %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying secret: %w", err)
	}
	return value, nil
}

// SetSecret stores value under key, replacing any existing value.
func (s *Store) SetSecret(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, value, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing secret: %w", err)
	}
	return nil
}

// SigningSecret returns the per-install device token signing secret,
// generating and persisting 32 random bytes on first call.
func (s *Store) SigningSecret(ctx context.Context) ([]byte, error) {
	value, err := s.GetSecret(ctx, signingSecretKey)
	if err == nil {
		raw, decErr := base64.StdEncoding.DecodeString(value)
		if decErr != nil {
			return nil, fmt.Errorf("stored signing secret is corrupt: %w", decErr)
		}
		return raw, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating signing secret: %w", err)
	}
	if err := s.SetSecret(ctx, signingSecretKey, base64.StdEncoding.EncodeToString(raw)); err != nil {
		return nil, err
	}
	s.logger.Info("generated new device token signing secret")
	return raw, nil
}
