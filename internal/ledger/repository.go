package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service.
// Balance reads lock the row so the check-then-mutate sequence of one
// operation cannot interleave with another.
type TxRepository interface {
	GetIngredient(ctx context.Context, id int64) (IngredientRef, error)
	EnsureIngredient(ctx context.Context, name string, unit Unit) (int64, error)
	GetIngredientBalanceForUpdate(ctx context.Context, ingredientID int64) (IngredientBalance, error)
	UpsertIngredientBalance(ctx context.Context, ingredientID int64, qty decimal.Decimal) error
	InsertShipment(ctx context.Context, s IncomingShipment) (int64, error)
	InsertProductionRun(ctx context.Context, run ProductionRun) (int64, error)
	GetStockBalanceForUpdate(ctx context.Context, recipeID int64, container ContainerSize) (StockBalance, error)
	GetStockByIDForUpdate(ctx context.Context, stockID int64) (StockBalance, error)
	UpsertStockBalance(ctx context.Context, recipeID int64, container ContainerSize, qty decimal.Decimal) error
	UpdateStockQuantity(ctx context.Context, stockID int64, qty decimal.Decimal) error
	InsertTakeout(ctx context.Context, t StockTakeout) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// ErrBalanceNotFound indicates a missing balance row; callers treat it as
// a zero balance to be created on first credit.
var ErrBalanceNotFound = errors.New("ledger: balance not found")

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization failures map to ErrConcurrencyConflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return mapConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapConflict(err)
	}
	return nil
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return ErrConcurrencyConflict
		}
	}
	return err
}

func (r *txRepository) GetIngredient(ctx context.Context, id int64) (IngredientRef, error) {
	var ref IngredientRef
	var unit string
	err := r.tx.QueryRow(ctx, `SELECT id, name, unit, is_base FROM ingredients WHERE id=$1`, id).
		Scan(&ref.ID, &ref.Name, &unit, &ref.IsBase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IngredientRef{}, &UnknownEntityError{Kind: "ingredient", ID: strconv.FormatInt(id, 10)}
		}
		return IngredientRef{}, err
	}
	ref.Unit = Unit(unit)
	return ref, nil
}

func (r *txRepository) EnsureIngredient(ctx context.Context, name string, unit Unit) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ingredients (name, unit, is_base, created_at)
VALUES ($1, $2, TRUE, NOW())
ON CONFLICT (name) DO UPDATE SET is_base=TRUE
RETURNING id`, name, string(unit)).Scan(&id)
	return id, err
}

func (r *txRepository) GetIngredientBalanceForUpdate(ctx context.Context, ingredientID int64) (IngredientBalance, error) {
	var bal IngredientBalance
	err := r.tx.QueryRow(ctx, `SELECT ingredient_id, quantity, updated_at FROM ingredient_balances WHERE ingredient_id=$1 FOR UPDATE`, ingredientID).
		Scan(&bal.IngredientID, &bal.Quantity, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IngredientBalance{IngredientID: ingredientID, Quantity: decimal.Zero}, ErrBalanceNotFound
		}
		return IngredientBalance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertIngredientBalance(ctx context.Context, ingredientID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO ingredient_balances (ingredient_id, quantity, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (ingredient_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`, ingredientID, qty)
	return err
}

func (r *txRepository) InsertShipment(ctx context.Context, s IncomingShipment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO incoming_shipments (ingredient_id, quantity, unit, lot_number, expiration_date, temperature, notes, received_by, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		s.IngredientID, s.Quantity, string(s.Unit), s.LotNumber, s.ExpirationDate, s.Temperature, s.Notes, nullActor(s.ReceivedBy), s.ReceivedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertProductionRun(ctx context.Context, run ProductionRun) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_runs (recipe_id, quantity, container, produced_by, produced_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		run.RecipeID, run.Quantity, nullContainer(run.Container), nullActor(run.ProducedBy), run.ProducedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetStockBalanceForUpdate(ctx context.Context, recipeID int64, container ContainerSize) (StockBalance, error) {
	var s StockBalance
	var c string
	err := r.tx.QueryRow(ctx, `SELECT id, recipe_id, container, quantity, updated_at FROM stock_balances WHERE recipe_id=$1 AND container=$2 FOR UPDATE`, recipeID, string(container)).
		Scan(&s.ID, &s.RecipeID, &c, &s.Quantity, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBalance{RecipeID: recipeID, Container: container, Quantity: decimal.Zero}, ErrBalanceNotFound
		}
		return StockBalance{}, err
	}
	s.Container = ContainerSize(c)
	return s, nil
}

func (r *txRepository) GetStockByIDForUpdate(ctx context.Context, stockID int64) (StockBalance, error) {
	var s StockBalance
	var c string
	err := r.tx.QueryRow(ctx, `SELECT id, recipe_id, container, quantity, updated_at FROM stock_balances WHERE id=$1 FOR UPDATE`, stockID).
		Scan(&s.ID, &s.RecipeID, &c, &s.Quantity, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBalance{}, &UnknownEntityError{Kind: "stock", ID: strconv.FormatInt(stockID, 10)}
		}
		return StockBalance{}, err
	}
	s.Container = ContainerSize(c)
	return s, nil
}

func (r *txRepository) UpsertStockBalance(ctx context.Context, recipeID int64, container ContainerSize, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (recipe_id, container, quantity, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (recipe_id, container) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`, recipeID, string(container), qty)
	return err
}

func (r *txRepository) UpdateStockQuantity(ctx context.Context, stockID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_balances SET quantity=$2, updated_at=NOW() WHERE id=$1`, stockID, qty)
	return err
}

func (r *txRepository) InsertTakeout(ctx context.Context, t StockTakeout) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_takeouts (stock_id, quantity, moved_by, moved_at)
VALUES ($1,$2,$3,$4) RETURNING id`, t.StockID, t.Quantity, nullActor(t.MovedBy), t.MovedAt).Scan(&id)
	return id, err
}

// ListIngredientBalances returns all ingredient balances joined with the
// ingredient catalog, ordered by name.
func (r *Repository) ListIngredientBalances(ctx context.Context) ([]IngredientBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.name, i.unit, COALESCE(b.quantity, 0), COALESCE(b.updated_at, i.created_at)
FROM ingredients i
LEFT JOIN ingredient_balances b ON b.ingredient_id = i.id
ORDER BY i.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []IngredientBalance{}
	for rows.Next() {
		var bal IngredientBalance
		var unit string
		if err := rows.Scan(&bal.IngredientID, &bal.Name, &unit, &bal.Quantity, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		bal.Unit = Unit(unit)
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

// ListStockBalances returns finished-good stock joined with flavor names.
func (r *Repository) ListStockBalances(ctx context.Context) ([]StockBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.recipe_id, r.flavor, s.container, s.quantity, s.updated_at
FROM stock_balances s
JOIN recipes r ON r.id = s.recipe_id
ORDER BY r.flavor ASC, s.container ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stocks := []StockBalance{}
	for rows.Next() {
		var s StockBalance
		var c string
		if err := rows.Scan(&s.ID, &s.RecipeID, &s.Flavor, &c, &s.Quantity, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Container = ContainerSize(c)
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// ListShipments returns recent incoming shipments, newest first.
func (r *Repository) ListShipments(ctx context.Context, limit int) ([]IncomingShipment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.ingredient_id, i.name, s.quantity, s.unit, s.lot_number, s.expiration_date, s.temperature, s.notes, COALESCE(s.received_by, 0), s.received_at
FROM incoming_shipments s
JOIN ingredients i ON i.id = s.ingredient_id
ORDER BY s.received_at DESC, s.id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	shipments := []IncomingShipment{}
	for rows.Next() {
		var s IncomingShipment
		var unit string
		if err := rows.Scan(&s.ID, &s.IngredientID, &s.IngredientName, &s.Quantity, &unit, &s.LotNumber, &s.ExpirationDate, &s.Temperature, &s.Notes, &s.ReceivedBy, &s.ReceivedAt); err != nil {
			return nil, err
		}
		s.Unit = Unit(unit)
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}

// ListProductionRuns returns recent production runs, newest first.
func (r *Repository) ListProductionRuns(ctx context.Context, limit int) ([]ProductionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.recipe_id, r.flavor, r.is_base, p.quantity, COALESCE(p.container, ''), COALESCE(p.produced_by, 0), p.produced_at
FROM production_runs p
JOIN recipes r ON r.id = p.recipe_id
ORDER BY p.produced_at DESC, p.id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs := []ProductionRun{}
	for rows.Next() {
		var run ProductionRun
		var c string
		if err := rows.Scan(&run.ID, &run.RecipeID, &run.Flavor, &run.IsBase, &run.Quantity, &c, &run.ProducedBy, &run.ProducedAt); err != nil {
			return nil, err
		}
		run.Container = ContainerSize(c)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListTakeouts returns recent stock takeouts, newest first.
func (r *Repository) ListTakeouts(ctx context.Context, limit int) ([]StockTakeout, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, stock_id, quantity, COALESCE(moved_by, 0), moved_at
FROM stock_takeouts
ORDER BY moved_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	takeouts := []StockTakeout{}
	for rows.Next() {
		var t StockTakeout
		if err := rows.Scan(&t.ID, &t.StockID, &t.Quantity, &t.MovedBy, &t.MovedAt); err != nil {
			return nil, err
		}
		takeouts = append(takeouts, t)
	}
	return takeouts, rows.Err()
}

// ShipmentsExpiringBefore lists shipments whose lot expires before the
// cutoff. Used by the background expiry scan.
func (r *Repository) ShipmentsExpiringBefore(ctx context.Context, cutoff time.Time) ([]IncomingShipment, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.ingredient_id, i.name, s.quantity, s.unit, s.lot_number, s.expiration_date, s.temperature, s.notes, COALESCE(s.received_by, 0), s.received_at
FROM incoming_shipments s
JOIN ingredients i ON i.id = s.ingredient_id
WHERE s.expiration_date IS NOT NULL AND s.expiration_date <= $1
ORDER BY s.expiration_date ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	shipments := []IncomingShipment{}
	for rows.Next() {
		var s IncomingShipment
		var unit string
		if err := rows.Scan(&s.ID, &s.IngredientID, &s.IngredientName, &s.Quantity, &unit, &s.LotNumber, &s.ExpirationDate, &s.Temperature, &s.Notes, &s.ReceivedBy, &s.ReceivedAt); err != nil {
			return nil, err
		}
		s.Unit = Unit(unit)
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}

func nullActor(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullContainer(c ContainerSize) any {
	if c == "" {
		return nil
	}
	return string(c)
}
