package recipes

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
	List(ctx context.Context, filters shared.ListFilters) ([]Recipe, int, error)
	Get(ctx context.Context, id int64) (Recipe, error)
	Create(ctx context.Context, recipe Recipe) (Recipe, error)
	Update(ctx context.Context, id int64, recipe Recipe) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Recipe, int, error) {
	query := `SELECT id, flavor, is_base, created_at, updated_at FROM recipes WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		query += ` AND flavor ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsBase != nil {
		argCount++
		query += ` AND is_base = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsBase)
	}

	countQuery := `SELECT COUNT(*) FROM recipes WHERE 1=1`
	countArgs := make([]any, len(args))
	copy(countArgs, args)
	if filters.Search != "" {
		countQuery += ` AND flavor ILIKE $1`
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

	var out []Recipe
	for rows.Next() {
		var rec Recipe
		if err := rows.Scan(&rec.ID, &rec.Flavor, &rec.IsBase, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Recipe, error) {
	var rec Recipe
	err := r.pool.QueryRow(ctx, `SELECT id, flavor, is_base, created_at, updated_at FROM recipes WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Flavor, &rec.IsBase, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipe{}, shared.ErrNotFound
	}
	if err != nil {
		return Recipe{}, err
	}
	rec.Lines, err = r.lines(ctx, id)
	return rec, err
}

func (r *repository) lines(ctx context.Context, recipeID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rl.id, rl.ingredient_id, i.name, rl.quantity
		FROM recipe_lines rl
		JOIN ingredients i ON i.id = rl.ingredient_id
		WHERE rl.recipe_id = $1
		ORDER BY i.name`, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.IngredientID, &line.IngredientName, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Create inserts the recipe and its lines in one transaction. A base
// recipe also gets its mirror ingredient registered so it is consumable
// by other recipes immediately.
func (r *repository) Create(ctx context.Context, recipe Recipe) (Recipe, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Recipe{}, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	err = tx.QueryRow(ctx,
		`INSERT INTO recipes (flavor, is_base, created_at, updated_at) VALUES ($1, $2, $3, $3) RETURNING id`,
		recipe.Flavor, recipe.IsBase, now).Scan(&recipe.ID)
	if err != nil {
		return Recipe{}, mapPgError(err)
	}
	if err := insertLines(ctx, tx, recipe.ID, recipe.Lines); err != nil {
		return Recipe{}, mapPgError(err)
	}
	if recipe.IsBase {
		if err := ensureMirror(ctx, tx, recipe.Flavor); err != nil {
			return Recipe{}, mapPgError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Recipe{}, err
	}
	recipe.CreatedAt = now
	recipe.UpdatedAt = now
	return recipe, nil
}

// Update replaces the recipe's lines wholesale.
func (r *repository) Update(ctx context.Context, id int64, recipe Recipe) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE recipes SET flavor = $1, is_base = $2, updated_at = NOW() WHERE id = $3`,
		recipe.Flavor, recipe.IsBase, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM recipe_lines WHERE recipe_id = $1`, id); err != nil {
		return err
	}
	if err := insertLines(ctx, tx, id, recipe.Lines); err != nil {
		return mapPgError(err)
	}
	if recipe.IsBase {
		if err := ensureMirror(ctx, tx, recipe.Flavor); err != nil {
			return mapPgError(err)
		}
	}
	return tx.Commit(ctx)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func insertLines(ctx context.Context, tx pgx.Tx, recipeID int64, lines []Line) error {
	for _, line := range lines {
		_, err := tx.Exec(ctx,
			`INSERT INTO recipe_lines (recipe_id, ingredient_id, quantity) VALUES ($1, $2, $3)`,
			recipeID, line.IngredientID, line.Quantity)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureMirror(ctx context.Context, tx pgx.Tx, flavor string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ingredients (name, unit, is_base, created_at, updated_at)
		VALUES ($1, 'grams', TRUE, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET is_base = TRUE, updated_at = NOW()`, flavor)
	return err
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
	case "created":
		return "created_at " + dir
	default:
		return "flavor " + dir
	}
}
