package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/inventory"
	"backend/internal/models"
	"backend/internal/payments"
	"backend/internal/repository"
)

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

type fakeCartRepo struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.CartItem
}

func newFakeCartRepo(items ...*models.CartItem) *fakeCartRepo {
	repo := &fakeCartRepo{items: make(map[primitive.ObjectID]*models.CartItem)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (f *fakeCartRepo) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CartItem
	for _, item := range f.items {
		if item.UserID == userID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeCartRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, repository.ErrCartItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (f *fakeCartRepo) UpsertLine(_ context.Context, userID, productID primitive.ObjectID, key models.VariantKey, qty int, unitPrice float64) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := &models.CartItem{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		ProductID: productID,
		Variant:   key,
		Quantity:  qty,
		Price:     unitPrice,
		AddedAt:   time.Now(),
	}
	f.items[item.ID] = item
	cp := *item
	return &cp, nil
}

func (f *fakeCartRepo) SetQuantity(_ context.Context, id primitive.ObjectID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return repository.ErrCartItemNotFound
	}
	item.Quantity = qty
	return nil
}

func (f *fakeCartRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeCartRepo) DeleteByUser(_ context.Context, userID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, item := range f.items {
		if item.UserID == userID {
			delete(f.items, id)
		}
	}
	return nil
}

// fakeOrderRepo mirrors the Mongo contract: Transition checks the status and
// writes the new one under one lock, so only one racing caller can match.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[primitive.ObjectID]*models.Order
}

func newFakeOrderRepo(orders ...*models.Order) *fakeOrderRepo {
	repo := &fakeOrderRepo{orders: make(map[primitive.ObjectID]*models.Order)}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (f *fakeOrderRepo) Insert(_ context.Context, order *models.Order) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *order
	cp.ID = primitive.NewObjectID()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.orders[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderRepo) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) ListAll(_ context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		out = append(out, *order)
	}
	return out, nil
}

func (f *fakeOrderRepo) Transition(_ context.Context, id primitive.ObjectID, from []models.OrderStatus, to models.OrderStatus, paymentStatus *models.PaymentStatus) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrOrderConditionFailed
	}
	matched := false
	for _, s := range from {
		if order.OrderStatus == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, repository.ErrOrderConditionFailed
	}
	order.OrderStatus = to
	if paymentStatus != nil {
		order.PaymentStatus = *paymentStatus
	}
	order.UpdatedAt = time.Now()
	cp := *order
	return &cp, nil
}

func (f *fakeOrderRepo) SetPaymentStatus(_ context.Context, id primitive.ObjectID, status models.PaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.PaymentStatus = status
	order.UpdatedAt = time.Now()
	return nil
}

func (f *fakeOrderRepo) ListInconsistentDelivered(_ context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		if order.OrderStatus == models.OrderStatusDelivered && order.PaymentStatus != models.PaymentStatusCompleted {
			out = append(out, *order)
		}
	}
	return out, nil
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[primitive.ObjectID]*models.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[primitive.ObjectID]*models.Payment)}
}

func (f *fakePaymentRepo) Insert(_ context.Context, payment *models.Payment) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.TransactionID == payment.TransactionID {
			return nil, repository.ErrDuplicateTransaction
		}
	}
	for _, p := range f.payments {
		if p.OrderID == payment.OrderID {
			return nil, repository.ErrDuplicateOrderPayment
		}
	}
	cp := *payment
	cp.ID = primitive.NewObjectID()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.payments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakePaymentRepo) FindByOrder(_ context.Context, orderID primitive.ObjectID) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (f *fakePaymentRepo) FindByTransaction(_ context.Context, transactionID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (f *fakePaymentRepo) Update(_ context.Context, id primitive.ObjectID, status models.PaymentStatus, paidAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	p.Status = status
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakePaymentRepo) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var keyMBlack = models.VariantKey{Size: "M", Color: "Black"}

type testEnv struct {
	svc         *Service
	ledger      *inventory.Ledger
	productRepo *fakeProductRepo
	cartRepo    *fakeCartRepo
	orderRepo   *fakeOrderRepo
	paymentRepo *fakePaymentRepo
}

func newTestEnv(products ...*models.Product) *testEnv {
	productRepo := newFakeProductRepo(products...)
	cartRepo := newFakeCartRepo()
	orderRepo := newFakeOrderRepo()
	paymentRepo := newFakePaymentRepo()
	ledger := inventory.NewLedger(productRepo)
	reconciler := payments.NewReconciler(paymentRepo, orderRepo)
	svc := NewService(orderRepo, cartRepo, productRepo, ledger, reconciler, fakeTxRunner{})
	return &testEnv{
		svc:         svc,
		ledger:      ledger,
		productRepo: productRepo,
		cartRepo:    cartRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
	}
}

func newShirt(stock int) *models.Product {
	return &models.Product{
		ID:       primitive.NewObjectID(),
		Title:    "Shirt",
		Price:    19.99,
		Variants: []models.Variant{{Size: "M", Color: "Black", Stock: stock}},
	}
}

func testBilling() models.Address {
	return models.Address{Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"}
}

func seedCartLine(env *testEnv, userID primitive.ObjectID, product *models.Product, qty int, price float64) *models.CartItem {
	item, _ := env.cartRepo.UpsertLine(context.Background(), userID, product.ID, keyMBlack, qty, price)
	return item
}

func placeTestOrder(t *testing.T, env *testEnv, userID primitive.ObjectID, product *models.Product, qty int) *models.Order {
	t.Helper()
	seedCartLine(env, userID, product, qty, product.Price)
	order, err := env.svc.PlaceOrder(context.Background(), userID, testBilling(), "card")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	return order
}

func TestPlaceOrderSnapshotsCartAndClearsIt(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	seedCartLine(env, userID, product, 3, 19.99)

	order, err := env.svc.PlaceOrder(context.Background(), userID, testBilling(), "card")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if order.TotalAmount != 59.97 {
		t.Fatalf("expected total 59.97, got %v", order.TotalAmount)
	}
	if order.OrderStatus != models.OrderStatusProcessing {
		t.Fatalf("expected status processing, got %s", order.OrderStatus)
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("expected payment status pending, got %s", order.PaymentStatus)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(order.Items))
	}
	item := order.Items[0]
	if item.Title != "Shirt" || item.Quantity != 3 || item.Price != 19.99 || item.Variant != keyMBlack {
		t.Fatalf("unexpected item snapshot: %+v", item)
	}

	lines, _ := env.cartRepo.ListByUser(context.Background(), userID)
	if len(lines) != 0 {
		t.Fatalf("expected cart cleared after placement, got %d lines", len(lines))
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.PlaceOrder(context.Background(), primitive.NewObjectID(), testBilling(), "card")
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestPlacedOrderKeepsSnapshotAfterPriceChange(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	order := placeTestOrder(t, env, userID, product, 2)

	env.productRepo.mu.Lock()
	env.productRepo.products[product.ID].Price = 99.99
	env.productRepo.mu.Unlock()

	reread, err := env.svc.GetOrder(context.Background(), order.ID, userID, models.RoleCustomer)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if reread.Items[0].Price != 19.99 || reread.TotalAmount != order.TotalAmount {
		t.Fatalf("order snapshot changed after product update: %+v", reread)
	}
}

func TestCancelOrderReturnsStock(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()

	// Reserve through the ledger the way the cart would, then place.
	if err := env.ledger.Reserve(context.Background(), product.ID, keyMBlack, 4); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	seedCartLine(env, userID, product, 4, 19.99)
	order, err := env.svc.PlaceOrder(context.Background(), userID, testBilling(), "card")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	cancelled, err := env.svc.CancelOrder(context.Background(), order.ID, userID, models.RoleCustomer)
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if cancelled.OrderStatus != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.OrderStatus)
	}
	if got := env.productRepo.stock(product.ID, keyMBlack); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}
}

func TestCancelOrderBlockedAfterShip(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	order := placeTestOrder(t, env, userID, product, 1)

	if _, _, err := env.svc.ShipOrder(context.Background(), order.ID, models.RoleAdmin); err != nil {
		t.Fatalf("ShipOrder failed: %v", err)
	}

	_, err := env.svc.CancelOrder(context.Background(), order.ID, userID, models.RoleCustomer)
	var transErr *InvalidTransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if transErr.Current != models.OrderStatusShipped {
		t.Fatalf("expected blocking status shipped, got %s", transErr.Current)
	}
	if !strings.Contains(transErr.Error(), "cannot be cancelled") {
		t.Fatalf("unexpected error message: %s", transErr.Error())
	}
}

func TestCancelOrderRejectsNonOwnerBeforeStateCheck(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	owner := primitive.NewObjectID()
	order := placeTestOrder(t, env, owner, product, 1)

	if _, _, err := env.svc.ShipOrder(context.Background(), order.ID, models.RoleAdmin); err != nil {
		t.Fatalf("ShipOrder failed: %v", err)
	}
	if _, _, err := env.svc.DeliverOrder(context.Background(), order.ID, models.RoleAdmin); err != nil {
		t.Fatalf("DeliverOrder failed: %v", err)
	}

	// Even though the order is terminal, a stranger learns only "unauthorized".
	_, err := env.svc.CancelOrder(context.Background(), order.ID, primitive.NewObjectID(), models.RoleCustomer)
	if !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("expected ErrNotOrderOwner, got %v", err)
	}
}

func TestShipOrderMovesPaymentToProcessing(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	order := placeTestOrder(t, env, userID, product, 2)

	shipped, payment, err := env.svc.ShipOrder(context.Background(), order.ID, models.RoleAdmin)
	if err != nil {
		t.Fatalf("ShipOrder failed: %v", err)
	}
	if shipped.OrderStatus != models.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", shipped.OrderStatus)
	}
	if shipped.PaymentStatus != models.PaymentStatusProcessing {
		t.Fatalf("expected order payment status processing, got %s", shipped.PaymentStatus)
	}
	if payment.Status != models.PaymentStatusProcessing {
		t.Fatalf("expected payment processing, got %s", payment.Status)
	}
	if !strings.HasPrefix(payment.TransactionID, "ship_"+order.ID.Hex()) {
		t.Fatalf("unexpected synthetic transaction id %q", payment.TransactionID)
	}
	if payment.Amount != shipped.TotalAmount {
		t.Fatalf("payment amount %v does not match order total %v", payment.Amount, shipped.TotalAmount)
	}
}

func TestShipOrderRequiresAdmin(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	order := placeTestOrder(t, env, userID, product, 1)

	if _, _, err := env.svc.ShipOrder(context.Background(), order.ID, models.RoleCustomer); !errors.Is(err, ErrAdminOnly) {
		t.Fatalf("expected ErrAdminOnly, got %v", err)
	}
}

func TestConcurrentShipOnlyOneWins(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	order := placeTestOrder(t, env, userID, product, 1)

	const attempts = 8
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, _, err := env.svc.ShipOrder(context.Background(), order.ID, models.RoleAdmin)
			results <- err
		}()
	}

	var wins, losses int
	for i := 0; i < attempts; i++ {
		err := <-results
		if err == nil {
			wins++
			continue
		}
		var transErr *InvalidTransitionError
		if !errors.As(err, &transErr) {
			t.Fatalf("expected InvalidTransitionError for loser, got %v", err)
		}
		losses++
	}
	if wins != 1 || losses != attempts-1 {
		t.Fatalf("expected exactly one winner, got wins=%d losses=%d", wins, losses)
	}
}

func TestDeliverOrderCompletesPayment(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	order := placeTestOrder(t, env, userID, product, 2)

	if _, _, err := env.svc.ShipOrder(context.Background(), order.ID, models.RoleAdmin); err != nil {
		t.Fatalf("ShipOrder failed: %v", err)
	}
	delivered, payment, err := env.svc.DeliverOrder(context.Background(), order.ID, models.RoleAdmin)
	if err != nil {
		t.Fatalf("DeliverOrder failed: %v", err)
	}

	if delivered.OrderStatus != models.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", delivered.OrderStatus)
	}
	if delivered.PaymentStatus != models.PaymentStatusCompleted {
		t.Fatalf("expected order payment completed, got %s", delivered.PaymentStatus)
	}
	if payment.Status != models.PaymentStatusCompleted {
		t.Fatalf("expected payment completed, got %s", payment.Status)
	}
	if payment.PaidAt == nil {
		t.Fatal("expected paidAt to be set on delivery")
	}
}

func TestDeliverOrderFromProcessingIsRejected(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	order := placeTestOrder(t, env, userID, product, 1)

	_, _, err := env.svc.DeliverOrder(context.Background(), order.ID, models.RoleAdmin)
	var transErr *InvalidTransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if transErr.Current != models.OrderStatusProcessing {
		t.Fatalf("expected blocking status processing, got %s", transErr.Current)
	}
}

func TestDeliverOrderRepairsStaleDeliveredOrder(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	userID := primitive.NewObjectID()
	order := placeTestOrder(t, env, userID, product, 2)

	// Force the inconsistent shape: delivered order, payment still pending,
	// no payment record at all.
	env.orderRepo.mu.Lock()
	stored := env.orderRepo.orders[order.ID]
	stored.OrderStatus = models.OrderStatusDelivered
	stored.PaymentStatus = models.PaymentStatusPending
	env.orderRepo.mu.Unlock()

	repaired, payment, err := env.svc.DeliverOrder(context.Background(), order.ID, models.RoleAdmin)
	if err != nil {
		t.Fatalf("DeliverOrder repair failed: %v", err)
	}
	if repaired.OrderStatus != models.OrderStatusDelivered {
		t.Fatalf("repair must not change the lifecycle status, got %s", repaired.OrderStatus)
	}
	if payment.Status != models.PaymentStatusCompleted || payment.PaidAt == nil {
		t.Fatalf("expected completed payment with paidAt, got %+v", payment)
	}
	if !strings.HasPrefix(payment.TransactionID, "deliver_fix_"+order.ID.Hex()) {
		t.Fatalf("unexpected synthetic transaction id %q", payment.TransactionID)
	}

	reread, _ := env.orderRepo.FindByID(context.Background(), order.ID)
	if reread.PaymentStatus != models.PaymentStatusCompleted {
		t.Fatalf("expected order payment status completed after repair, got %s", reread.PaymentStatus)
	}
}

func TestListOrdersScopedByRole(t *testing.T) {
	product := newShirt(10)
	env := newTestEnv(product)
	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()
	placeTestOrder(t, env, alice, product, 1)
	placeTestOrder(t, env, bob, product, 1)

	mine, err := env.svc.ListOrders(context.Background(), alice, models.RoleCustomer)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(mine) != 1 || mine[0].UserID != alice {
		t.Fatalf("customer must only see own orders, got %+v", mine)
	}

	all, err := env.svc.ListOrders(context.Background(), alice, models.RoleAdmin)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin must see all orders, got %d", len(all))
	}
}
