package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shop-svc/models"

	"github.com/google/uuid"
)

// MemoryProductStore is an in-process catalog and stock ledger. A single mutex
// makes every decrement linearizable.
type MemoryProductStore struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	now      func() time.Time
}

func NewMemoryProductStore(products ...models.Product) *MemoryProductStore {
	s := &MemoryProductStore{
		products: make(map[int64]*models.Product),
		now:      time.Now,
	}
	for _, p := range products {
		s.Put(p)
	}
	return s
}

// Put adds or replaces a catalog entry. Used for seeding.
func (s *MemoryProductStore) Put(product models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Images = append([]string{}, product.Images...)
	s.products[product.ID] = &product
}

func (s *MemoryProductStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	c := *product
	c.Images = append([]string{}, product.Images...)
	return &c, nil
}

func (s *MemoryProductStore) GetProductCached(ctx context.Context, id int64) (*models.Product, error) {
	return s.GetProduct(ctx, id)
}

func (s *MemoryProductStore) TryDecrement(ctx context.Context, id int64, quantity int) (models.StockChange, error) {
	if quantity <= 0 {
		return models.StockChange{}, ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return models.StockChange{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return models.StockChange{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if product.Stock < quantity {
		return models.StockChange{}, fmt.Errorf("product %d requested %d available %d: %w", id, quantity, product.Stock, ErrInsufficientStock)
	}

	change := models.StockChange{ProductID: id, PreviousStock: product.Stock, NewStock: product.Stock - quantity}
	product.Stock = change.NewStock
	product.UpdatedAt = s.now()
	return change, nil
}

func (s *MemoryProductStore) TryIncrement(ctx context.Context, id int64, quantity int) (models.StockChange, error) {
	if quantity <= 0 {
		return models.StockChange{}, ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return models.StockChange{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return models.StockChange{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}

	change := models.StockChange{ProductID: id, PreviousStock: product.Stock, NewStock: product.Stock + quantity}
	product.Stock = change.NewStock
	product.UpdatedAt = s.now()
	return change, nil
}

// MemoryOrderStore keeps orders in a map. Callers always receive clones.
type MemoryOrderStore struct {
	mu       sync.RWMutex
	orders   map[uuid.UUID]*models.Order
	byNumber map[string]uuid.UUID
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders:   make(map[uuid.UUID]*models.Order),
		byNumber: make(map[string]uuid.UUID),
	}
}

func (s *MemoryOrderStore) Create(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNumber[order.OrderNumber]; ok {
		return fmt.Errorf("order number %s: %w", order.OrderNumber, ErrDuplicateOrderNumber)
	}
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	s.orders[order.ID] = order.Clone()
	s.byNumber[order.OrderNumber] = order.ID
	return nil
}

func (s *MemoryOrderStore) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return order.Clone(), nil
}

func (s *MemoryOrderStore) Update(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", order.ID, ErrNotFound)
	}
	if stored.Revision != order.Revision {
		return fmt.Errorf("order %s at revision %d: %w", order.ID, order.Revision, ErrRevisionConflict)
	}

	next := stored.Clone()
	next.Status = order.Status
	next.IsPaid = order.IsPaid
	next.PaidAt = order.PaidAt
	next.PaymentResult = order.PaymentResult
	next.IsDelivered = order.IsDelivered
	next.DeliveredAt = order.DeliveredAt
	next.TrackingNumber = order.TrackingNumber
	next.EstimatedDelivery = order.EstimatedDelivery
	next.UpdatedAt = order.UpdatedAt
	next.Revision++
	s.orders[order.ID] = next.Clone()

	order.Revision = next.Revision
	return nil
}

func (s *MemoryOrderStore) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if limit < 1 || offset < 0 {
		return nil, 0, fmt.Errorf("invalid page window: limit %d, offset %d", limit, offset)
	}

	s.mu.RLock()
	var mine []*models.Order
	for _, order := range s.orders {
		if order.UserID == userID {
			mine = append(mine, order.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})

	total := len(mine)
	if offset >= total {
		return []*models.Order{}, total, nil
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	return mine[offset:end], total, nil
}
