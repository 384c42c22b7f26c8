package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/store"
)

// DeviceStore implements store.DeviceStore using PostgreSQL.
type DeviceStore struct {
	db store.DBTX
}

// NewDeviceStore creates a DeviceStore backed by the given connection.
func NewDeviceStore(db store.DBTX) *DeviceStore {
	return &DeviceStore{db: db}
}

// ListDevices returns active devices, optionally filtered by type.
func (s *DeviceStore) ListDevices(ctx context.Context, deviceType string) ([]*domain.Device, error) {
	query := `
		SELECT id, device_type, name, uri, is_active, last_seen, created_at, updated_at
		FROM devices
		WHERE is_active = TRUE
	`
	args := []any{}
	if deviceType != "" {
		query += ` AND device_type = $1`
		args = append(args, deviceType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devices []*domain.Device
	for rows.Next() {
		var device domain.Device
		if err := rows.Scan(
			&device.ID,
			&device.Type,
			&device.Name,
			&device.URI,
			&device.Active,
			&device.LastSeen,
			&device.CreatedAt,
			&device.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		devices = append(devices, &device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device rows: %w", err)
	}
	return devices, nil
}

// UpdateLastSeen stamps the device's last_seen with the current time.
func (s *DeviceStore) UpdateLastSeen(ctx context.Context, deviceID string) error {
	query := `
		UPDATE devices
		SET last_seen = $1, updated_at = $1
		WHERE id = $2
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), deviceID)
	if err != nil {
		return fmt.Errorf("failed to update last_seen: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrDeviceNotFound
	}
	return nil
}
