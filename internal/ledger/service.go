package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gastromanager/gastromanager/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListIngredientBalances(ctx context.Context) ([]IngredientBalance, error)
	ListStockBalances(ctx context.Context) ([]StockBalance, error)
	ListShipments(ctx context.Context, limit int) ([]IncomingShipment, error)
	ListProductionRuns(ctx context.Context, limit int) ([]ProductionRun, error)
	ListTakeouts(ctx context.Context, limit int) ([]StockTakeout, error)
}

// RecipePort resolves recipe definitions including their bill of materials.
// Implementations return *UnknownEntityError for missing recipes.
type RecipePort interface {
	GetRecipe(ctx context.Context, id int64) (Recipe, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards keyed mutations against replayed submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service is the sole authority over ingredient and stock balances. Every
// credit and debit funnels through it; handlers never touch balance rows
// directly.
type Service struct {
	repo        RepositoryPort
	recipes     RecipePort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, recipes RecipePort, audit AuditPort, idempotency IdempotencyPort) *Service {
	return &Service{repo: repo, recipes: recipes, audit: audit, idempotency: idempotency}
}

const idempotencyModule = "ledger"

// claimKey reserves the idempotency key before any mutation. Key-less
// calls are deliberately unguarded: repeating an identical receive is a
// legitimate second delivery, and only a resubmitted form carries the
// same key twice.
func (s *Service) claimKey(ctx context.Context, key string) (bool, error) {
	if key == "" || s.idempotency == nil {
		return false, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return false, err
	}
	return true, nil
}

// releaseKey frees a claimed key after a failed mutation so the caller
// may retry with the same form.
func (s *Service) releaseKey(ctx context.Context, claimed bool, key string) {
	if claimed {
		_ = s.idempotency.Delete(ctx, key)
	}
}

// ReceiveInput describes an incoming ingredient shipment.
type ReceiveInput struct {
	IngredientID   int64
	Quantity       decimal.Decimal
	LotNumber      string
	ExpirationDate *time.Time
	Temperature    *int
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// ProduceInput describes a production request.
type ProduceInput struct {
	RecipeID       int64
	Quantity       decimal.Decimal
	Container      ContainerSize
	ActorID        int64
	IdempotencyKey string
}

// TakeOutInput describes a stock removal request.
type TakeOutInput struct {
	StockID        int64
	Quantity       decimal.Decimal
	ActorID        int64
	IdempotencyKey string
}

// Receive registers an incoming shipment and credits the ingredient
// balance exactly once, in the same transaction as the shipment record.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (IncomingShipment, error) {
	qty := round(input.Quantity)
	if !qty.IsPositive() {
		return IncomingShipment{}, ErrInvalidQuantity
	}
	claimed, err := s.claimKey(ctx, input.IdempotencyKey)
	if err != nil {
		return IncomingShipment{}, err
	}
	var created IncomingShipment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ingredient, err := tx.GetIngredient(ctx, input.IngredientID)
		if err != nil {
			return err
		}
		shipment := IncomingShipment{
			IngredientID:   ingredient.ID,
			IngredientName: ingredient.Name,
			Quantity:       qty,
			Unit:           ingredient.Unit,
			LotNumber:      input.LotNumber,
			ExpirationDate: input.ExpirationDate,
			Temperature:    input.Temperature,
			Notes:          input.Notes,
			ReceivedBy:     input.ActorID,
			ReceivedAt:     time.Now().UTC(),
		}
		id, err := tx.InsertShipment(ctx, shipment)
		if err != nil {
			return err
		}
		shipment.ID = id
		if err := creditIngredient(ctx, tx, ingredient.ID, qty); err != nil {
			return err
		}
		created = shipment
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, claimed, input.IdempotencyKey)
		return IncomingShipment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:receive", "shipment", created.ID, map[string]any{
		"ingredient_id": created.IngredientID,
		"quantity":      created.Quantity.String(),
		"lot_number":    created.LotNumber,
	})
	return created, nil
}

// CheckAvailability verifies that every bill-of-materials line of the
// recipe can be satisfied for the requested quantity. It reports the first
// insufficient line and checks nothing further. Produce runs the same
// check inside its own transaction, so calling this first is advisory
// only (the production calculator view uses it).
func (s *Service) CheckAvailability(ctx context.Context, recipeID int64, quantity decimal.Decimal) error {
	qty := round(quantity)
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	recipe, err := s.recipes.GetRecipe(ctx, recipeID)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := checkLines(ctx, tx, recipe, qty)
		return err
	})
}

// Produce validates availability and, in one atomic transaction, debits
// every bill-of-materials ingredient, records the production run, and
// credits the output: the mirror ingredient balance for a base recipe, or
// the flavor's stock balance otherwise. Any failure leaves all balances
// untouched.
func (s *Service) Produce(ctx context.Context, input ProduceInput) (ProductionRun, error) {
	qty := round(input.Quantity)
	if !qty.IsPositive() {
		return ProductionRun{}, ErrInvalidQuantity
	}
	recipe, err := s.recipes.GetRecipe(ctx, input.RecipeID)
	if err != nil {
		return ProductionRun{}, err
	}
	if !recipe.IsBase {
		if input.Container == "" {
			return ProductionRun{}, ErrContainerRequired
		}
		if !ValidContainer(input.Container) {
			return ProductionRun{}, &UnknownEntityError{Kind: "container", ID: string(input.Container)}
		}
	}

	run := ProductionRun{
		RecipeID:   recipe.ID,
		Flavor:     recipe.Flavor,
		IsBase:     recipe.IsBase,
		Quantity:   qty,
		ProducedBy: input.ActorID,
		ProducedAt: time.Now().UTC(),
	}
	if !recipe.IsBase {
		run.Container = input.Container
	}

	claimed, err := s.claimKey(ctx, input.IdempotencyKey)
	if err != nil {
		return ProductionRun{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balances, err := checkLines(ctx, tx, recipe, qty)
		if err != nil {
			return err
		}
		for _, line := range recipe.Lines {
			need := round(line.Quantity.Mul(qty))
			newQty := balances[line.IngredientID].Sub(need)
			if err := tx.UpsertIngredientBalance(ctx, line.IngredientID, newQty); err != nil {
				return err
			}
		}
		id, err := tx.InsertProductionRun(ctx, run)
		if err != nil {
			return err
		}
		run.ID = id
		if recipe.IsBase {
			// A produced base is stocked as an ingredient under the
			// recipe's flavor name so dependent recipes can consume it.
			mirrorID, err := tx.EnsureIngredient(ctx, recipe.Flavor, UnitGrams)
			if err != nil {
				return err
			}
			return creditIngredient(ctx, tx, mirrorID, qty)
		}
		stock, err := tx.GetStockBalanceForUpdate(ctx, recipe.ID, run.Container)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		return tx.UpsertStockBalance(ctx, recipe.ID, run.Container, round(stock.Quantity.Add(qty)))
	})
	if err != nil {
		s.releaseKey(ctx, claimed, input.IdempotencyKey)
		return ProductionRun{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:produce", "production_run", run.ID, map[string]any{
		"recipe_id": run.RecipeID,
		"flavor":    run.Flavor,
		"quantity":  run.Quantity.String(),
		"container": string(run.Container),
		"is_base":   run.IsBase,
	})
	return run, nil
}

// TakeOut moves finished goods out of stock. The availability check and
// the debit share one transaction and one row lock.
func (s *Service) TakeOut(ctx context.Context, input TakeOutInput) (StockTakeout, error) {
	qty := round(input.Quantity)
	if !qty.IsPositive() {
		return StockTakeout{}, ErrInvalidQuantity
	}
	claimed, err := s.claimKey(ctx, input.IdempotencyKey)
	if err != nil {
		return StockTakeout{}, err
	}
	takeout := StockTakeout{
		StockID:  input.StockID,
		Quantity: qty,
		MovedBy:  input.ActorID,
		MovedAt:  time.Now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockByIDForUpdate(ctx, input.StockID)
		if err != nil {
			return err
		}
		if stock.Quantity.LessThan(qty) {
			return &InsufficientStockError{StockID: stock.ID, Have: stock.Quantity, Need: qty}
		}
		if err := tx.UpdateStockQuantity(ctx, stock.ID, round(stock.Quantity.Sub(qty))); err != nil {
			return err
		}
		id, err := tx.InsertTakeout(ctx, takeout)
		if err != nil {
			return err
		}
		takeout.ID = id
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, claimed, input.IdempotencyKey)
		return StockTakeout{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:takeout", "stock_takeout", takeout.ID, map[string]any{
		"stock_id": takeout.StockID,
		"quantity": takeout.Quantity.String(),
	})
	return takeout, nil
}

// Balances lists on-hand ingredient quantities.
func (s *Service) Balances(ctx context.Context) ([]IngredientBalance, error) {
	return s.repo.ListIngredientBalances(ctx)
}

// StockLevels lists on-hand finished goods.
func (s *Service) StockLevels(ctx context.Context) ([]StockBalance, error) {
	return s.repo.ListStockBalances(ctx)
}

// Shipments lists recent incoming shipments.
func (s *Service) Shipments(ctx context.Context, limit int) ([]IncomingShipment, error) {
	return s.repo.ListShipments(ctx, limit)
}

// Runs lists recent production runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]ProductionRun, error) {
	return s.repo.ListProductionRuns(ctx, limit)
}

// Takeouts lists recent stock takeouts.
func (s *Service) Takeouts(ctx context.Context, limit int) ([]StockTakeout, error) {
	return s.repo.ListTakeouts(ctx, limit)
}

// checkLines locks each bill-of-materials balance and verifies it can
// cover the requested production quantity. Balances are locked in
// ingredient-id order so two concurrent runs over overlapping recipes
// cannot deadlock. Returns the locked balances keyed by ingredient id.
func checkLines(ctx context.Context, tx TxRepository, recipe Recipe, qty decimal.Decimal) (map[int64]decimal.Decimal, error) {
	lines := make([]BOMLine, len(recipe.Lines))
	copy(lines, recipe.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].IngredientID < lines[j].IngredientID })

	balances := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		bal, err := tx.GetIngredientBalanceForUpdate(ctx, line.IngredientID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return nil, err
		}
		need := round(line.Quantity.Mul(qty))
		if bal.Quantity.LessThan(need) {
			return nil, &InsufficientIngredientError{
				IngredientID: line.IngredientID,
				Name:         line.IngredientName,
				Have:         bal.Quantity,
				Need:         need,
			}
		}
		balances[line.IngredientID] = bal.Quantity
	}
	return balances, nil
}

func creditIngredient(ctx context.Context, tx TxRepository, ingredientID int64, qty decimal.Decimal) error {
	bal, err := tx.GetIngredientBalanceForUpdate(ctx, ingredientID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return err
	}
	return tx.UpsertIngredientBalance(ctx, ingredientID, round(bal.Quantity.Add(qty)))
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
