package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gastromanager/gastromanager/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	ingredients map[int64]IngredientRef
	balances    map[int64]decimal.Decimal
	stocks      map[int64]StockBalance
	shipments   []IncomingShipment
	runs        []ProductionRun
	takeouts    []StockTakeout
	nextID      int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ingredients: make(map[int64]IngredientRef),
		balances:    make(map[int64]decimal.Decimal),
		stocks:      make(map[int64]StockBalance),
	}
}

func (r *memoryRepo) addIngredient(id int64, name string, unit Unit) {
	r.ingredients[id] = IngredientRef{ID: id, Name: name, Unit: unit}
	if id > r.nextID {
		r.nextID = id
	}
}

func (r *memoryRepo) setBalance(id int64, qty string) {
	r.balances[id] = decimal.RequireFromString(qty)
}

func (r *memoryRepo) addStock(id, recipeID int64, flavor string, container ContainerSize, qty string) {
	r.stocks[id] = StockBalance{ID: id, RecipeID: recipeID, Flavor: flavor, Container: container, Quantity: decimal.RequireFromString(qty)}
	if id > r.nextID {
		r.nextID = id
	}
}

// WithTx serialises callers and restores the pre-transaction snapshot when
// fn fails, mirroring a database rollback.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

type repoSnapshot struct {
	ingredients map[int64]IngredientRef
	balances    map[int64]decimal.Decimal
	stocks      map[int64]StockBalance
	shipments   int
	runs        int
	takeouts    int
	nextID      int64
}

func (r *memoryRepo) snapshot() repoSnapshot {
	snap := repoSnapshot{
		ingredients: make(map[int64]IngredientRef, len(r.ingredients)),
		balances:    make(map[int64]decimal.Decimal, len(r.balances)),
		stocks:      make(map[int64]StockBalance, len(r.stocks)),
		shipments:   len(r.shipments),
		runs:        len(r.runs),
		takeouts:    len(r.takeouts),
		nextID:      r.nextID,
	}
	for k, v := range r.ingredients {
		snap.ingredients[k] = v
	}
	for k, v := range r.balances {
		snap.balances[k] = v
	}
	for k, v := range r.stocks {
		snap.stocks[k] = v
	}
	return snap
}

func (r *memoryRepo) restore(snap repoSnapshot) {
	r.ingredients = snap.ingredients
	r.balances = snap.balances
	r.stocks = snap.stocks
	r.shipments = r.shipments[:snap.shipments]
	r.runs = r.runs[:snap.runs]
	r.takeouts = r.takeouts[:snap.takeouts]
	r.nextID = snap.nextID
}

func (r *memoryRepo) ListIngredientBalances(ctx context.Context) ([]IngredientBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]IngredientBalance, 0, len(r.balances))
	for id, qty := range r.balances {
		ing := r.ingredients[id]
		out = append(out, IngredientBalance{IngredientID: id, Name: ing.Name, Unit: ing.Unit, Quantity: qty})
	}
	return out, nil
}

func (r *memoryRepo) ListStockBalances(ctx context.Context) ([]StockBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StockBalance, 0, len(r.stocks))
	for _, s := range r.stocks {
		out = append(out, s)
	}
	return out, nil
}

func (r *memoryRepo) ListShipments(ctx context.Context, limit int) ([]IncomingShipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]IncomingShipment, len(r.shipments))
	copy(out, r.shipments)
	return out, nil
}

func (r *memoryRepo) ListProductionRuns(ctx context.Context, limit int) ([]ProductionRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProductionRun, len(r.runs))
	copy(out, r.runs)
	return out, nil
}

func (r *memoryRepo) ListTakeouts(ctx context.Context, limit int) ([]StockTakeout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StockTakeout, len(r.takeouts))
	copy(out, r.takeouts)
	return out, nil
}

func (tx *memoryTx) GetIngredient(ctx context.Context, id int64) (IngredientRef, error) {
	if ing, ok := tx.repo.ingredients[id]; ok {
		return ing, nil
	}
	return IngredientRef{}, &UnknownEntityError{Kind: "ingredient", ID: "unknown"}
}

func (tx *memoryTx) EnsureIngredient(ctx context.Context, name string, unit Unit) (int64, error) {
	for _, ing := range tx.repo.ingredients {
		if ing.Name == name {
			ing.IsBase = true
			tx.repo.ingredients[ing.ID] = ing
			return ing.ID, nil
		}
	}
	tx.repo.nextID++
	id := tx.repo.nextID
	tx.repo.ingredients[id] = IngredientRef{ID: id, Name: name, Unit: unit, IsBase: true}
	return id, nil
}

func (tx *memoryTx) GetIngredientBalanceForUpdate(ctx context.Context, ingredientID int64) (IngredientBalance, error) {
	if qty, ok := tx.repo.balances[ingredientID]; ok {
		ing := tx.repo.ingredients[ingredientID]
		return IngredientBalance{IngredientID: ingredientID, Name: ing.Name, Unit: ing.Unit, Quantity: qty}, nil
	}
	return IngredientBalance{IngredientID: ingredientID, Quantity: decimal.Zero}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertIngredientBalance(ctx context.Context, ingredientID int64, qty decimal.Decimal) error {
	tx.repo.balances[ingredientID] = qty
	return nil
}

func (tx *memoryTx) InsertShipment(ctx context.Context, s IncomingShipment) (int64, error) {
	tx.repo.nextID++
	s.ID = tx.repo.nextID
	tx.repo.shipments = append(tx.repo.shipments, s)
	return s.ID, nil
}

func (tx *memoryTx) InsertProductionRun(ctx context.Context, run ProductionRun) (int64, error) {
	tx.repo.nextID++
	run.ID = tx.repo.nextID
	tx.repo.runs = append(tx.repo.runs, run)
	return run.ID, nil
}

func (tx *memoryTx) GetStockBalanceForUpdate(ctx context.Context, recipeID int64, container ContainerSize) (StockBalance, error) {
	for _, s := range tx.repo.stocks {
		if s.RecipeID == recipeID && s.Container == container {
			return s, nil
		}
	}
	return StockBalance{RecipeID: recipeID, Container: container, Quantity: decimal.Zero}, ErrBalanceNotFound
}

func (tx *memoryTx) GetStockByIDForUpdate(ctx context.Context, stockID int64) (StockBalance, error) {
	if s, ok := tx.repo.stocks[stockID]; ok {
		return s, nil
	}
	return StockBalance{}, &UnknownEntityError{Kind: "stock", ID: "unknown"}
}

func (tx *memoryTx) UpsertStockBalance(ctx context.Context, recipeID int64, container ContainerSize, qty decimal.Decimal) error {
	for id, s := range tx.repo.stocks {
		if s.RecipeID == recipeID && s.Container == container {
			s.Quantity = qty
			tx.repo.stocks[id] = s
			return nil
		}
	}
	tx.repo.nextID++
	tx.repo.stocks[tx.repo.nextID] = StockBalance{ID: tx.repo.nextID, RecipeID: recipeID, Container: container, Quantity: qty}
	return nil
}

func (tx *memoryTx) UpdateStockQuantity(ctx context.Context, stockID int64, qty decimal.Decimal) error {
	s, ok := tx.repo.stocks[stockID]
	if !ok {
		return &UnknownEntityError{Kind: "stock", ID: "unknown"}
	}
	s.Quantity = qty
	tx.repo.stocks[stockID] = s
	return nil
}

func (tx *memoryTx) InsertTakeout(ctx context.Context, t StockTakeout) (int64, error) {
	tx.repo.nextID++
	t.ID = tx.repo.nextID
	tx.repo.takeouts = append(tx.repo.takeouts, t)
	return t.ID, nil
}

type stubRecipes struct {
	recipes map[int64]Recipe
}

func (s *stubRecipes) GetRecipe(ctx context.Context, id int64) (Recipe, error) {
	if r, ok := s.recipes[id]; ok {
		return r, nil
	}
	return Recipe{}, &UnknownEntityError{Kind: "recipe", ID: "unknown"}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture() (*memoryRepo, *stubRecipes, *Service) {
	repo := newMemoryRepo()
	recipes := &stubRecipes{recipes: make(map[int64]Recipe)}
	return repo, recipes, NewService(repo, recipes, nil, nil)
}

func TestReceiveCreditsBalanceOnce(t *testing.T) {
	repo, _, svc := newFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Milk", UnitGrams)

	shipment, err := svc.Receive(ctx, ReceiveInput{IngredientID: 1, Quantity: dec("500"), LotNumber: "L-001", ActorID: 7})
	require.NoError(t, err)
	require.NotZero(t, shipment.ID)
	require.Equal(t, "Milk", shipment.IngredientName)
	require.True(t, repo.balances[1].Equal(dec("500")))

	// A second identical delivery is a new shipment, not a duplicate.
	_, err = svc.Receive(ctx, ReceiveInput{IngredientID: 1, Quantity: dec("500"), LotNumber: "L-001", ActorID: 7})
	require.NoError(t, err)
	require.Len(t, repo.shipments, 2)
	require.True(t, repo.balances[1].Equal(dec("1000")))
}

func TestReceiveRejectsNonPositiveQuantity(t *testing.T) {
	repo, _, svc := newFixture()
	repo.addIngredient(1, "Milk", UnitGrams)

	for _, qty := range []string{"0", "-3"} {
		_, err := svc.Receive(context.Background(), ReceiveInput{IngredientID: 1, Quantity: dec(qty)})
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	require.Empty(t, repo.shipments)
}

func TestReceiveUnknownIngredient(t *testing.T) {
	_, _, svc := newFixture()
	_, err := svc.Receive(context.Background(), ReceiveInput{IngredientID: 99, Quantity: dec("10")})
	var unknown *UnknownEntityError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "ingredient", unknown.Kind)
}

func TestReceiveAccumulatesWithoutDrift(t *testing.T) {
	repo, _, svc := newFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Vanilla Extract", UnitGrams)

	for i := 0; i < 10; i++ {
		_, err := svc.Receive(ctx, ReceiveInput{IngredientID: 1, Quantity: dec("0.10")})
		require.NoError(t, err)
	}
	require.Equal(t, "1", repo.balances[1].String())
}

func TestProduceDebitsIngredientsAndCreditsStock(t *testing.T) {
	repo, recipes, svc := newFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Milk", UnitGrams)
	repo.setBalance(1, "1000")
	recipes.recipes[10] = Recipe{ID: 10, Flavor: "Vanilla", Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Milk", Quantity: dec("200")},
	}}

	run, err := svc.Produce(ctx, ProduceInput{RecipeID: 10, Quantity: dec("3"), Container: ContainerThreeLitre, ActorID: 4})
	require.NoError(t, err)
	require.NotZero(t, run.ID)
	require.Equal(t, "400", repo.balances[1].String())

	stocks, err := svc.StockLevels(ctx)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	require.Equal(t, int64(10), stocks[0].RecipeID)
	require.Equal(t, ContainerThreeLitre, stocks[0].Container)
	require.True(t, stocks[0].Quantity.Equal(dec("3")))
}

func TestProduceInsufficientIngredient(t *testing.T) {
	repo, recipes, svc := newFixture()
	repo.addIngredient(1, "Milk", UnitGrams)
	repo.setBalance(1, "100")
	recipes.recipes[10] = Recipe{ID: 10, Flavor: "Vanilla", Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Milk", Quantity: dec("200")},
	}}

	_, err := svc.Produce(context.Background(), ProduceInput{RecipeID: 10, Quantity: dec("1"), Container: ContainerHalfLitre})
	var insufficient *InsufficientIngredientError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "Milk", insufficient.Name)
	require.True(t, insufficient.Have.Equal(dec("100")))
	require.True(t, insufficient.Need.Equal(dec("200")))
	require.Equal(t, "100", repo.balances[1].String())
	require.Empty(t, repo.runs)
}

func TestProduceAllOrNothing(t *testing.T) {
	repo, recipes, svc := newFixture()
	repo.addIngredient(1, "Milk", UnitGrams)
	repo.addIngredient(2, "Sugar", UnitGrams)
	repo.addIngredient(3, "Eggs", UnitUnits)
	repo.setBalance(1, "1000")
	repo.setBalance(2, "500")
	repo.setBalance(3, "2")
	recipes.recipes[10] = Recipe{ID: 10, Flavor: "Custard", Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Milk", Quantity: dec("200")},
		{IngredientID: 2, IngredientName: "Sugar", Quantity: dec("50")},
		{IngredientID: 3, IngredientName: "Eggs", Quantity: dec("4")},
	}}

	_, err := svc.Produce(context.Background(), ProduceInput{RecipeID: 10, Quantity: dec("1"), Container: ContainerHalfLitre})
	var insufficient *InsufficientIngredientError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "Eggs", insufficient.Name)

	// The covered lines must not have been debited.
	require.Equal(t, "1000", repo.balances[1].String())
	require.Equal(t, "500", repo.balances[2].String())
	require.Equal(t, "2", repo.balances[3].String())
	require.Empty(t, repo.runs)
	require.Empty(t, repo.stocks)
}

func TestProduceRequiresContainerForFinishedGoods(t *testing.T) {
	repo, recipes, svc := newFixture()
	repo.addIngredient(1, "Milk", UnitGrams)
	repo.setBalance(1, "1000")
	recipes.recipes[10] = Recipe{ID: 10, Flavor: "Vanilla", Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Milk", Quantity: dec("200")},
	}}

	_, err := svc.Produce(context.Background(), ProduceInput{RecipeID: 10, Quantity: dec("1")})
	require.ErrorIs(t, err, ErrContainerRequired)

	_, err = svc.Produce(context.Background(), ProduceInput{RecipeID: 10, Quantity: dec("1"), Container: ContainerSize("9")})
	var unknown *UnknownEntityError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "container", unknown.Kind)
}

func TestProduceBaseCreditsMirrorIngredient(t *testing.T) {
	repo, recipes, svc := newFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Cocoa", UnitGrams)
	repo.addIngredient(2, "Milk", UnitGrams)
	repo.setBalance(1, "600")
	repo.setBalance(2, "2000")
	recipes.recipes[20] = Recipe{ID: 20, Flavor: "Chocolate Base", IsBase: true, Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Cocoa", Quantity: dec("150")},
		{IngredientID: 2, IngredientName: "Milk", Quantity: dec("400")},
	}}

	run, err := svc.Produce(ctx, ProduceInput{RecipeID: 20, Quantity: dec("2")})
	require.NoError(t, err)
	require.True(t, run.IsBase)
	require.Empty(t, run.Container)

	var mirror IngredientRef
	for _, ing := range repo.ingredients {
		if ing.Name == "Chocolate Base" {
			mirror = ing
		}
	}
	require.NotZero(t, mirror.ID, "base production must create a mirror ingredient")
	require.True(t, mirror.IsBase)
	require.Equal(t, UnitGrams, mirror.Unit)
	require.True(t, repo.balances[mirror.ID].Equal(dec("2")))
	require.Empty(t, repo.stocks, "base output never lands in finished-goods stock")

	// The mirror is consumable like any raw ingredient.
	recipes.recipes[21] = Recipe{ID: 21, Flavor: "Chocolate", Lines: []BOMLine{
		{IngredientID: mirror.ID, IngredientName: "Chocolate Base", Quantity: dec("1")},
	}}
	_, err = svc.Produce(ctx, ProduceInput{RecipeID: 21, Quantity: dec("2"), Container: ContainerHalfLitre})
	require.NoError(t, err)
	require.True(t, repo.balances[mirror.ID].IsZero())
}

func TestProduceBaseReusesExistingMirror(t *testing.T) {
	repo, recipes, svc := newFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Cocoa", UnitGrams)
	repo.addIngredient(2, "Chocolate Base", UnitGrams)
	repo.setBalance(1, "600")
	repo.setBalance(2, "5")
	recipes.recipes[20] = Recipe{ID: 20, Flavor: "Chocolate Base", IsBase: true, Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Cocoa", Quantity: dec("150")},
	}}

	_, err := svc.Produce(ctx, ProduceInput{RecipeID: 20, Quantity: dec("3")})
	require.NoError(t, err)
	require.True(t, repo.balances[2].Equal(dec("8")))
	require.Len(t, repo.ingredients, 2, "must reuse the existing mirror, not create another")
}

func TestConcurrentProduceOnlyOneSucceeds(t *testing.T) {
	repo, recipes, svc := newFixture()
	repo.addIngredient(1, "Milk", UnitGrams)
	repo.setBalance(1, "200")
	recipes.recipes[10] = Recipe{ID: 10, Flavor: "Vanilla", Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Milk", Quantity: dec("200")},
	}}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Produce(context.Background(), ProduceInput{RecipeID: 10, Quantity: dec("1"), Container: ContainerHalfLitre})
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var ie *InsufficientIngredientError
		if errors.As(err, &ie) {
			insufficient++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)
	require.True(t, repo.balances[1].IsZero())
}

func TestCheckAvailability(t *testing.T) {
	repo, recipes, svc := newFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Milk", UnitGrams)
	repo.addIngredient(2, "Sugar", UnitGrams)
	repo.setBalance(1, "1000")
	repo.setBalance(2, "100")
	recipes.recipes[10] = Recipe{ID: 10, Flavor: "Vanilla", Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Milk", Quantity: dec("200")},
		{IngredientID: 2, IngredientName: "Sugar", Quantity: dec("50")},
	}}

	require.NoError(t, svc.CheckAvailability(ctx, 10, dec("2")))

	err := svc.CheckAvailability(ctx, 10, dec("3"))
	var insufficient *InsufficientIngredientError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "Sugar", insufficient.Name)
	require.True(t, insufficient.Need.Equal(dec("150")))

	// The check never mutates anything.
	require.Equal(t, "1000", repo.balances[1].String())
	require.Equal(t, "100", repo.balances[2].String())

	require.ErrorIs(t, svc.CheckAvailability(ctx, 10, dec("0")), ErrInvalidQuantity)
}

func TestTakeOut(t *testing.T) {
	repo, _, svc := newFixture()
	ctx := context.Background()
	repo.addStock(5, 10, "Vanilla", ContainerThreeLitre, "3")

	_, err := svc.TakeOut(ctx, TakeOutInput{StockID: 5, Quantity: dec("5")})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Have.Equal(dec("3")))
	require.True(t, insufficient.Need.Equal(dec("5")))
	require.Equal(t, "3", repo.stocks[5].Quantity.String())
	require.Empty(t, repo.takeouts)

	out, err := svc.TakeOut(ctx, TakeOutInput{StockID: 5, Quantity: dec("2"), ActorID: 3})
	require.NoError(t, err)
	require.NotZero(t, out.ID)
	require.Equal(t, "1", repo.stocks[5].Quantity.String())
	require.Len(t, repo.takeouts, 1)
}

func TestTakeOutRejectsBadInput(t *testing.T) {
	repo, _, svc := newFixture()
	repo.addStock(5, 10, "Vanilla", ContainerThreeLitre, "3")

	_, err := svc.TakeOut(context.Background(), TakeOutInput{StockID: 5, Quantity: dec("-1")})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.TakeOut(context.Background(), TakeOutInput{StockID: 99, Quantity: dec("1")})
	var unknown *UnknownEntityError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "stock", unknown.Kind)
}

func TestQuantitiesRoundToLedgerScale(t *testing.T) {
	repo, recipes, svc := newFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Cream", UnitGrams)
	repo.setBalance(1, "10")
	recipes.recipes[10] = Recipe{ID: 10, Flavor: "Swirl", Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Cream", Quantity: dec("0.333")},
	}}

	_, err := svc.Produce(ctx, ProduceInput{RecipeID: 10, Quantity: dec("3"), Container: ContainerHalfLitre})
	require.NoError(t, err)
	// 0.333 rounds per unit only at the total: 0.999 -> 1.00 debit.
	require.Equal(t, "9", repo.balances[1].String())
}

type memoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{keys: make(map[string]string)}
}

func (s *memoryKeyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = module
	return nil
}

func (s *memoryKeyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func newKeyedFixture() (*memoryRepo, *stubRecipes, *memoryKeyStore, *Service) {
	repo := newMemoryRepo()
	recipes := &stubRecipes{recipes: make(map[int64]Recipe)}
	keys := newMemoryKeyStore()
	return repo, recipes, keys, NewService(repo, recipes, nil, keys)
}

func TestReceiveRejectsResubmittedKey(t *testing.T) {
	repo, _, _, svc := newKeyedFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Milk", UnitGrams)

	input := ReceiveInput{IngredientID: 1, Quantity: dec("500"), LotNumber: "L-001", IdempotencyKey: "recv-a1"}
	_, err := svc.Receive(ctx, input)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.shipments, 1)
	require.True(t, repo.balances[1].Equal(dec("500")))

	// Without a key, an identical delivery is a new shipment.
	_, err = svc.Receive(ctx, ReceiveInput{IngredientID: 1, Quantity: dec("500"), LotNumber: "L-001"})
	require.NoError(t, err)
	require.Len(t, repo.shipments, 2)
}

func TestFailedProduceReleasesKey(t *testing.T) {
	repo, recipes, keys, svc := newKeyedFixture()
	ctx := context.Background()
	repo.addIngredient(1, "Milk", UnitGrams)
	repo.setBalance(1, "100")
	recipes.recipes[10] = Recipe{ID: 10, Flavor: "Vanilla", Lines: []BOMLine{
		{IngredientID: 1, IngredientName: "Milk", Quantity: dec("200")},
	}}

	input := ProduceInput{RecipeID: 10, Quantity: dec("1"), Container: ContainerHalfLitre, IdempotencyKey: "prod-b2"}
	_, err := svc.Produce(ctx, input)
	var insufficient *InsufficientIngredientError
	require.ErrorAs(t, err, &insufficient)
	require.Empty(t, keys.keys, "a failed run must not burn its key")

	repo.setBalance(1, "300")
	run, err := svc.Produce(ctx, input)
	require.NoError(t, err)
	require.NotZero(t, run.ID)
	require.Len(t, repo.runs, 1)
}

func TestTakeOutRejectsResubmittedKey(t *testing.T) {
	repo, _, _, svc := newKeyedFixture()
	ctx := context.Background()
	repo.addStock(5, 10, "Vanilla", ContainerThreeLitre, "6")

	input := TakeOutInput{StockID: 5, Quantity: dec("2"), IdempotencyKey: "take-c3"}
	_, err := svc.TakeOut(ctx, input)
	require.NoError(t, err)

	_, err = svc.TakeOut(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, "4", repo.stocks[5].Quantity.String())
	require.Len(t, repo.takeouts, 1)
}
