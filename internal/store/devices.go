// ABOUTME: Paired device rows: identity, role, and scopes granted at pairing
// ABOUTME: Devices are upserted on pairing and touched on each connect

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Device is a paired client identity.
type Device struct {
	DeviceID   string
	PublicKey  string
	Role       string
	Scopes     []string
	CreatedAt  time.Time
	LastSeenAt *time.Time
}

// UpsertDevice inserts or replaces a device row, keeping the original
// created_at on replace.
func (s *Store) UpsertDevice(ctx context.Context, d *Device) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO devices (device_id, public_key, role, scopes, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			public_key = excluded.public_key,
			role = excluded.role,
			scopes = excluded.scopes,
			last_seen_at = excluded.last_seen_at
	`
	var lastSeen any
	if d.LastSeenAt != nil {
		lastSeen = d.LastSeenAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, query,
		d.DeviceID,
		d.PublicKey,
		d.Role,
		strings.Join(d.Scopes, ","),
		d.CreatedAt.UTC().Format(time.RFC3339),
		lastSeen,
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	s.logger.Debug("device upserted", "device_id", d.DeviceID, "role", d.Role)
	return nil
}

// GetDevice returns the device with the given id, or ErrNotFound.
func (s *Store) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	query := `
		SELECT device_id, public_key, role, scopes, created_at, last_seen_at
		FROM devices WHERE device_id = ?
	`
	row := s.db.QueryRowContext(ctx, query, deviceID)

	var d Device
	var scopes, createdAt string
	var lastSeen sql.NullString
	if err := row.Scan(&d.DeviceID, &d.PublicKey, &d.Role, &scopes, &createdAt, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	if scopes != "" {
		d.Scopes = strings.Split(scopes, ",")
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			d.LastSeenAt = &t
		}
	}
	return &d, nil
}

// TouchDevice updates last_seen_at to now.
func (s *Store) TouchDevice(ctx context.Context, deviceID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET last_seen_at = ? WHERE device_id = ?`,
		time.Now().UTC().Format(time.RFC3339), deviceID)
	if err != nil {
		return fmt.Errorf("touching device: %w", err)
	}
	return nil
}

// ListDevices returns all paired devices ordered by creation time.
func (s *Store) ListDevices(ctx context.Context) ([]*Device, error) {
	query := `
		SELECT device_id, public_key, role, scopes, created_at, last_seen_at
		FROM devices ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		var d Device
		var scopes, createdAt string
		var lastSeen sql.NullString
		if err := rows.Scan(&d.DeviceID, &d.PublicKey, &d.Role, &scopes, &createdAt, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		if scopes != "" {
			d.Scopes = strings.Split(scopes, ",")
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if lastSeen.Valid {
			if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
				d.LastSeenAt = &t
			}
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
