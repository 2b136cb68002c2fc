package ingredients

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gastromanager/gastromanager/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Ingredient, int, error)
	Get(ctx context.Context, id int64) (Ingredient, error)
	Create(ctx context.Context, ingredient Ingredient) (Ingredient, error)
	Update(ctx context.Context, id int64, ingredient Ingredient) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Ingredient, int, error) {
	query := `SELECT id, name, unit, is_base, created_at, updated_at FROM ingredients WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		query += ` AND name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsBase != nil {
		argCount++
		query += ` AND is_base = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsBase)
	}

	countQuery := `SELECT COUNT(*) FROM ingredients WHERE 1=1`
	countArgs := make([]any, len(args))
	copy(countArgs, args)
	if filters.Search != "" {
		countQuery += ` AND name ILIKE $1`
	}
	if filters.IsBase != nil {
		countQuery += ` AND is_base = $` + strconv.Itoa(len(countArgs))
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		var i Ingredient
		if err := rows.Scan(&i.ID, &i.Name, &i.Unit, &i.IsBase, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, i)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Ingredient, error) {
	var i Ingredient
	err := r.pool.QueryRow(ctx, `SELECT id, name, unit, is_base, created_at, updated_at FROM ingredients WHERE id = $1`, id).
		Scan(&i.ID, &i.Name, &i.Unit, &i.IsBase, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ingredient{}, shared.ErrNotFound
	}
	return i, err
}

func (r *repository) Create(ctx context.Context, ingredient Ingredient) (Ingredient, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO ingredients (name, unit, is_base, created_at, updated_at) VALUES ($1, $2, $3, $4, $4) RETURNING id`,
		ingredient.Name, ingredient.Unit, ingredient.IsBase, now).Scan(&ingredient.ID)
	if err != nil {
		return Ingredient{}, mapPgError(err)
	}
	ingredient.CreatedAt = now
	ingredient.UpdatedAt = now
	return ingredient, nil
}

func (r *repository) Update(ctx context.Context, id int64, ingredient Ingredient) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE ingredients SET name = $1, unit = $2, updated_at = NOW() WHERE id = $3`,
		ingredient.Name, ingredient.Unit, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ingredients WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.ErrDuplicate
		case "23503":
			return shared.ErrInUse
		}
	}
	return err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "unit":
		return "unit " + dir
	case "created":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
