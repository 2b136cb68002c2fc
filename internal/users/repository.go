package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gastromanager/gastromanager/internal/shared"
)

// ErrDuplicateUsername indicates the username is already taken.
var ErrDuplicateUsername = errors.New("users: username already taken")

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all staff accounts ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, username, full_name, level, is_active, created_at, updated_at
		FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Level, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser fetches one account.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, full_name, level, is_active, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.FullName, &u.Level, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

// CreateUser inserts a new account with the given password hash.
func (r *Repository) CreateUser(ctx context.Context, input CreateInput, passwordHash string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (username, full_name, level, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		RETURNING id, username, full_name, level, is_active, created_at, updated_at`,
		input.Username, input.FullName, input.Level, passwordHash).
		Scan(&u.ID, &u.Username, &u.FullName, &u.Level, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateUsername
		}
		return User{}, err
	}
	return u, nil
}

// UpdateUser updates editable fields. passwordHash is ignored when empty.
func (r *Repository) UpdateUser(ctx context.Context, id int64, input UpdateInput, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			full_name = $1,
			level = $2,
			is_active = $3,
			password_hash = COALESCE(NULLIF($4, ''), password_hash),
			updated_at = NOW()
		WHERE id = $5`,
		input.FullName, input.Level, input.IsActive, passwordHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
