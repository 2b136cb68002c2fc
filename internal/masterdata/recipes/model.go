package recipes

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recipe defines a flavor and the ingredients one produced unit consumes.
// A base recipe's output is registered as an ingredient under the flavor
// name so that other recipes can list it in their lines.
type Recipe struct {
	ID        int64
	Flavor    string
	IsBase    bool
	Lines     []Line
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line is one bill-of-materials row.
type Line struct {
	ID             int64
	IngredientID   int64
	IngredientName string
	Quantity       decimal.Decimal
}
