package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
	"backend/internal/repository"
)

// fakeProductRepo mirrors the Mongo contract: the stock guard and the
// increment are applied under one lock, and a failed condition reports only
// that nothing matched.
type fakeProductRepo struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]*models.Product
}

func newFakeProductRepo(products ...*models.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: make(map[primitive.ObjectID]*models.Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (f *fakeProductRepo) GetProduct(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	cp.Variants = append([]models.Variant(nil), p.Variants...)
	return &cp, nil
}

func (f *fakeProductRepo) AdjustVariantStock(_ context.Context, id primitive.ObjectID, key models.VariantKey, delta, requireAtLeast int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted {
		return repository.ErrVariantConditionFailed
	}
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Size == key.Size && v.Color == key.Color && v.Stock >= requireAtLeast {
			v.Stock += delta
			return nil
		}
	}
	return repository.ErrVariantConditionFailed
}

func (f *fakeProductRepo) stock(id primitive.ObjectID, key models.VariantKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.products[id].Variants {
		if v.Size == key.Size && v.Color == key.Color {
			return v.Stock
		}
	}
	return -1
}

func testProduct(stock int) *models.Product {
	return &models.Product{
		ID:    primitive.NewObjectID(),
		Title: "Shirt",
		Price: 19.99,
		Variants: []models.Variant{
			{Size: "M", Color: "Black", Stock: stock},
		},
	}
}

var keyMBlack = models.VariantKey{Size: "M", Color: "Black"}

func TestReserveDecrementsStock(t *testing.T) {
	product := testProduct(10)
	repo := newFakeProductRepo(product)
	ledger := NewLedger(repo)

	if err := ledger.Reserve(context.Background(), product.ID, keyMBlack, 4); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got := repo.stock(product.ID, keyMBlack); got != 6 {
		t.Fatalf("expected stock 6 after reserve, got %d", got)
	}
}

func TestReserveInsufficientStockReportsAvailability(t *testing.T) {
	product := testProduct(3)
	repo := newFakeProductRepo(product)
	ledger := NewLedger(repo)

	err := ledger.Reserve(context.Background(), product.ID, keyMBlack, 5)

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Requested != 5 || stockErr.Available != 3 {
		t.Fatalf("expected requested=5 available=3, got %+v", stockErr)
	}
	if got := repo.stock(product.ID, keyMBlack); got != 3 {
		t.Fatalf("failed reserve must not change stock, got %d", got)
	}
}

func TestReserveMissingVariant(t *testing.T) {
	product := testProduct(10)
	repo := newFakeProductRepo(product)
	ledger := NewLedger(repo)

	err := ledger.Reserve(context.Background(), product.ID, models.VariantKey{Size: "XL", Color: "Red"}, 1)
	if !errors.Is(err, ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestReserveMissingProduct(t *testing.T) {
	repo := newFakeProductRepo()
	ledger := NewLedger(repo)

	err := ledger.Reserve(context.Background(), primitive.NewObjectID(), keyMBlack, 1)
	if !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	product := testProduct(10)
	ledger := NewLedger(newFakeProductRepo(product))

	for _, qty := range []int{0, -3} {
		if err := ledger.Reserve(context.Background(), product.ID, keyMBlack, qty); err == nil {
			t.Fatalf("expected error for qty=%d", qty)
		}
	}
}

func TestReleaseIncrementsStock(t *testing.T) {
	product := testProduct(2)
	repo := newFakeProductRepo(product)
	ledger := NewLedger(repo)

	if err := ledger.Release(context.Background(), product.ID, keyMBlack, 3); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if got := repo.stock(product.ID, keyMBlack); got != 5 {
		t.Fatalf("expected stock 5 after release, got %d", got)
	}
}

func TestReleaseMissingVariantIsNotSilent(t *testing.T) {
	product := testProduct(2)
	ledger := NewLedger(newFakeProductRepo(product))

	err := ledger.Release(context.Background(), product.ID, models.VariantKey{Size: "S", Color: "Red"}, 1)
	if !errors.Is(err, ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	const initialStock = 30
	const workers = 50

	product := testProduct(initialStock)
	repo := newFakeProductRepo(product)
	ledger := NewLedger(repo)

	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve(context.Background(), product.ID, keyMBlack, 1); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	won := 0
	for range successes {
		won++
	}
	if won != initialStock {
		t.Fatalf("expected exactly %d successful reservations, got %d", initialStock, won)
	}
	if got := repo.stock(product.ID, keyMBlack); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestTwoConcurrentLargeReservesOnlyOneWins(t *testing.T) {
	product := testProduct(15)
	repo := newFakeProductRepo(product)
	ledger := NewLedger(repo)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- ledger.Reserve(context.Background(), product.ID, keyMBlack, 10)
		}()
	}

	var failures, wins int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			var stockErr *InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Fatalf("expected InsufficientStockError, got %v", err)
			}
			failures++
		} else {
			wins++
		}
	}
	if wins != 1 || failures != 1 {
		t.Fatalf("expected one winner and one failure, got wins=%d failures=%d", wins, failures)
	}
	if got := repo.stock(product.ID, keyMBlack); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}
}
