package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shop-svc/models"
	"shop-svc/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

var (
	customer = models.Actor{ID: 7, Role: models.RoleUser}
	stranger = models.Actor{ID: 8, Role: models.RoleUser}
	staff    = models.Actor{ID: 100, Role: models.RoleStaff}
	admin    = models.Actor{ID: 1, Role: models.RoleAdmin}
)

// stepClock advances one second on every read.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

// racingLedger simulates stock sold elsewhere between validation and decrement.
type racingLedger struct {
	*repository.MemoryProductStore
	exhausted map[int64]bool
}

func (l *racingLedger) TryDecrement(ctx context.Context, id int64, quantity int) (models.StockChange, error) {
	if l.exhausted[id] {
		return models.StockChange{}, repository.ErrInsufficientStock
	}
	return l.MemoryProductStore.TryDecrement(ctx, id, quantity)
}

// conflictingStore reports a revision conflict for the first n updates.
type conflictingStore struct {
	*repository.MemoryOrderStore
	mu        sync.Mutex
	conflicts int
	updates   int
}

func (s *conflictingStore) Update(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	s.updates++
	fail := s.conflicts > 0
	if fail {
		s.conflicts--
	}
	s.mu.Unlock()

	if fail {
		return repository.ErrRevisionConflict
	}
	return s.MemoryOrderStore.Update(ctx, order)
}

type brokenOrderStore struct {
	*repository.MemoryOrderStore
}

func (brokenOrderStore) Create(ctx context.Context, order *models.Order) error {
	return errors.New("connection refused")
}

func seedProducts() *repository.MemoryProductStore {
	return repository.NewMemoryProductStore(
		models.Product{ID: 1, Name: "P1", Price: decimal.RequireFromString("10.00"), Stock: 5, Images: []string{"p1.jpg"}},
		models.Product{ID: 2, Name: "P2", Price: decimal.RequireFromString("4.50"), Stock: 1},
		models.Product{ID: 3, Name: "P3", Price: decimal.RequireFromString("99.99"), Stock: 10, Images: []string{"p3-a.jpg", "p3-b.jpg"}},
	)
}

func validAddress() *models.ShippingAddress {
	return &models.ShippingAddress{
		FullName:   "Ada Lovelace",
		Address:    "12 Analytical Row",
		City:       "London",
		PostalCode: "N1 9GU",
		Country:    "UK",
	}
}

func cart(items ...models.CartItem) *models.CheckoutRequest {
	return &models.CheckoutRequest{
		Items:           items,
		ShippingAddress: validAddress(),
		PaymentMethod:   models.PaymentMethodCreditCard,
	}
}

type checkoutFixture struct {
	products  *repository.MemoryProductStore
	orders    *repository.MemoryOrderStore
	events    *recordingPublisher
	checkout  *CheckoutService
	lifecycle *LifecycleService
	clock     *stepClock
}

func newCheckoutFixture(t *testing.T, opts ...Option) *checkoutFixture {
	t.Helper()

	f := &checkoutFixture{
		products: seedProducts(),
		orders:   repository.NewMemoryOrderStore(),
		events:   &recordingPublisher{},
		clock:    newStepClock(),
	}
	logger := zaptest.NewLogger(t)
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.checkout = NewCheckoutService(f.products, f.products, f.orders, f.events, logger, opts...)
	f.lifecycle = NewLifecycleService(f.orders, f.events, logger, opts...)
	return f
}

func (f *checkoutFixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.products.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to read product %d: %v", id, err)
	}
	return p.Stock
}

func (f *checkoutFixture) placeOrder(t *testing.T, actor models.Actor) *models.Order {
	t.Helper()
	result, err := f.checkout.Checkout(context.Background(), actor, cart(models.CartItem{ProductID: 3, Quantity: 1}))
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	return result.Order
}
