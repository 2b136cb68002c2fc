package ingredients

import "time"

// Ingredient is a raw material tracked by the inventory ledger. Base
// ingredients are the stocked output of base recipes and are managed by
// production, not created by hand.
type Ingredient struct {
	ID        int64
	Name      string
	Unit      string
	IsBase    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	UnitGrams = "grams"
	UnitUnits = "units"
)
