package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Service resolves effective permissions from the staff level stored on
// the user row.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// EffectivePermissions returns the permission names the user holds.
// Inactive users hold none.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	var level Level
	var active bool
	err := s.pool.QueryRow(ctx, `SELECT level, is_active FROM users WHERE id = $1`, userID).Scan(&level, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, nil
	}
	return PermissionsForLevel(level), nil
}
