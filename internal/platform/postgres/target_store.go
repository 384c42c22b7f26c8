package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/store"
)

// TargetStore implements store.TargetStore using PostgreSQL. The free-form
// protocol configuration lives in a JSONB column.
type TargetStore struct {
	db store.DBTX
}

// NewTargetStore creates a TargetStore backed by the given connection.
func NewTargetStore(db store.DBTX) *TargetStore {
	return &TargetStore{db: db}
}

// GetTarget retrieves a target by ID.
func (s *TargetStore) GetTarget(ctx context.Context, id string) (*domain.Target, error) {
	query := `
		SELECT id, name, type, config, enabled
		FROM targets
		WHERE id = $1
	`
	target, err := scanTarget(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTargetNotFound
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return target, nil
}

// ListTargets returns all configured targets.
func (s *TargetStore) ListTargets(ctx context.Context) ([]*domain.Target, error) {
	query := `
		SELECT id, name, type, config, enabled
		FROM targets
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []*domain.Target
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate target rows: %w", err)
	}
	return targets, nil
}

func scanTarget(row rowScanner) (*domain.Target, error) {
	var (
		target    domain.Target
		typ       string
		rawConfig []byte
	)
	if err := row.Scan(&target.ID, &target.Name, &typ, &rawConfig, &target.Enabled); err != nil {
		return nil, err
	}
	target.Type = domain.TargetType(typ)
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &target.Config); err != nil {
			return nil, fmt.Errorf("invalid target config JSON: %w", err)
		}
	}
	return &target, nil
}
