package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Unit enumerates ingredient measurement units.
type Unit string

const (
	// UnitGrams is used for weighed ingredients.
	UnitGrams Unit = "grams"
	// UnitUnits is used for countable ingredients.
	UnitUnits Unit = "units"
)

// ContainerSize identifies the tub size a flavor is stocked in, in litres.
type ContainerSize string

const (
	ContainerHalfLitre  ContainerSize = "0.5"
	ContainerThreeLitre ContainerSize = "3"
	ContainerSixLitre   ContainerSize = "6"
)

// ValidContainer reports whether the size is one of the stocked tub sizes.
func ValidContainer(c ContainerSize) bool {
	switch c {
	case ContainerHalfLitre, ContainerThreeLitre, ContainerSixLitre:
		return true
	}
	return false
}

// QuantityScale is the fixed decimal scale used for every ledger quantity.
// All arithmetic rounds to this scale so repeated credits and debits never
// accumulate drift.
const QuantityScale = 2

// IngredientRef identifies an ingredient row the ledger operates on.
type IngredientRef struct {
	ID     int64
	Name   string
	Unit   Unit
	IsBase bool
}

// IngredientBalance is the on-hand quantity for one ingredient.
type IngredientBalance struct {
	IngredientID int64
	Name         string
	Unit         Unit
	Quantity     decimal.Decimal
	UpdatedAt    time.Time
}

// StockBalance is the on-hand finished-good quantity for one
// flavor and container size combination.
type StockBalance struct {
	ID        int64
	RecipeID  int64
	Flavor    string
	Container ContainerSize
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}

// IncomingShipment records one ingredient delivery. Rows are append-only;
// editing a shipment after the fact is not supported.
type IncomingShipment struct {
	ID             int64
	IngredientID   int64
	IngredientName string
	Quantity       decimal.Decimal
	Unit           Unit
	LotNumber      string
	ExpirationDate *time.Time
	Temperature    *int
	Notes          string
	ReceivedBy     int64
	ReceivedAt     time.Time
}

// ProductionRun records one production event for a recipe.
type ProductionRun struct {
	ID         int64
	RecipeID   int64
	Flavor     string
	IsBase     bool
	Quantity   decimal.Decimal
	Container  ContainerSize
	ProducedBy int64
	ProducedAt time.Time
}

// StockTakeout records finished goods leaving stock.
type StockTakeout struct {
	ID       int64
	StockID  int64
	Quantity decimal.Decimal
	MovedBy  int64
	MovedAt  time.Time
}

// BOMLine is one bill-of-materials entry: how much of an ingredient a
// single produced unit of the recipe consumes.
type BOMLine struct {
	IngredientID   int64
	IngredientName string
	Quantity       decimal.Decimal
}

// Recipe is the ledger's view of a recipe definition. A base recipe's
// output is stocked as an ingredient under the same name, so other recipes
// can consume it like any raw ingredient.
type Recipe struct {
	ID     int64
	Flavor string
	IsBase bool
	Lines  []BOMLine
}

// ErrInvalidQuantity is returned when a supplied quantity is not strictly
// positive.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrContainerRequired is returned when a non-base production run omits
// the container size.
var ErrContainerRequired = errors.New("ledger: container size required for finished goods")

// ErrConcurrencyConflict surfaces when the storage layer gave up retrying
// a conflicting balance update. Callers may retry the whole operation.
var ErrConcurrencyConflict = errors.New("ledger: concurrent update conflict")

// InsufficientIngredientError reports the first bill-of-materials line that
// cannot be satisfied from the current ingredient balance.
type InsufficientIngredientError struct {
	IngredientID int64
	Name         string
	Have         decimal.Decimal
	Need         decimal.Decimal
}

func (e *InsufficientIngredientError) Error() string {
	return fmt.Sprintf("ledger: insufficient ingredient %q (have %s, need %s)", e.Name, e.Have, e.Need)
}

// UserMessage implements shared.UserFacing.
func (e *InsufficientIngredientError) UserMessage() string {
	return fmt.Sprintf("Not enough %s in inventory: have %s, need %s.", e.Name, e.Have, e.Need)
}

// InsufficientStockError reports a takeout exceeding on-hand stock.
type InsufficientStockError struct {
	StockID int64
	Have    decimal.Decimal
	Need    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock %d (have %s, need %s)", e.StockID, e.Have, e.Need)
}

// UserMessage implements shared.UserFacing.
func (e *InsufficientStockError) UserMessage() string {
	return fmt.Sprintf("Not enough ice cream in stock: have %s, requested %s.", e.Have, e.Need)
}

// UnknownEntityError reports a reference to a row that does not exist.
type UnknownEntityError struct {
	Kind string
	ID   string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("ledger: unknown %s %s", e.Kind, e.ID)
}

// UserMessage implements shared.UserFacing.
func (e *UnknownEntityError) UserMessage() string {
	return fmt.Sprintf("The referenced %s does not exist.", e.Kind)
}

// round normalises a quantity to the ledger scale.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}
