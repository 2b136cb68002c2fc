// Package catalog adapts master data for the inventory ledger: recipe
// definitions with their lines, and the select options the ledger forms
// need.
package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gastromanager/gastromanager/internal/ledger"
)

// Catalog reads master data for the ledger.
type Catalog struct {
	pool *pgxpool.Pool
}

// New returns a Catalog over the shared pool.
func New(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// GetRecipe loads a recipe and its bill of materials.
func (c *Catalog) GetRecipe(ctx context.Context, id int64) (ledger.Recipe, error) {
	var recipe ledger.Recipe
	err := c.pool.QueryRow(ctx, `SELECT id, flavor, is_base FROM recipes WHERE id = $1`, id).
		Scan(&recipe.ID, &recipe.Flavor, &recipe.IsBase)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Recipe{}, &ledger.UnknownEntityError{Kind: "recipe", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return ledger.Recipe{}, err
	}

	rows, err := c.pool.Query(ctx, `
		SELECT rl.ingredient_id, i.name, rl.quantity
		FROM recipe_lines rl
		JOIN ingredients i ON i.id = rl.ingredient_id
		WHERE rl.recipe_id = $1
		ORDER BY rl.ingredient_id`, id)
	if err != nil {
		return ledger.Recipe{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var line ledger.BOMLine
		if err := rows.Scan(&line.IngredientID, &line.IngredientName, &line.Quantity); err != nil {
			return ledger.Recipe{}, err
		}
		recipe.Lines = append(recipe.Lines, line)
	}
	return recipe, rows.Err()
}

// IngredientOptions lists ingredients for form selects.
func (c *Catalog) IngredientOptions(ctx context.Context) ([]ledger.CatalogOption, error) {
	return c.options(ctx, `SELECT id, name, is_base FROM ingredients ORDER BY name`)
}

// RecipeOptions lists recipes for form selects.
func (c *Catalog) RecipeOptions(ctx context.Context) ([]ledger.CatalogOption, error) {
	return c.options(ctx, `SELECT id, flavor, is_base FROM recipes ORDER BY flavor`)
}

func (c *Catalog) options(ctx context.Context, query string) ([]ledger.CatalogOption, error) {
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.CatalogOption
	for rows.Next() {
		var opt ledger.CatalogOption
		if err := rows.Scan(&opt.ID, &opt.Name, &opt.IsBase); err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, rows.Err()
}
