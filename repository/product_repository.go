package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shop-svc/cache"
	"shop-svc/circuitbreaker"
	"shop-svc/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const selectProduct = "SELECT id, name, price, stock, images, created_at, updated_at FROM products WHERE id = $1"

// ProductRepository is the postgres catalog and stock ledger. Stock only changes
// through TryDecrement and TryIncrement, each a single conditional statement.
type ProductRepository struct {
	db      *sql.DB
	cache   *cache.ProductCache
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewProductRepository(db *sql.DB, productCache *cache.ProductCache, logger *zap.Logger) *ProductRepository {
	return &ProductRepository{
		db:    db,
		cache: productCache,
		breaker: circuitbreaker.NewCircuitBreaker("products-db", 5, 30*time.Second,
			circuitbreaker.WithExcluded(isBusinessOutcome),
			circuitbreaker.WithLogger(logger),
		),
		logger: logger,
	}
}

// GetProduct reads the product straight from the database.
func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.breaker.Execute(ctx, func() error {
		err := r.db.QueryRowContext(ctx, selectProduct, id).Scan(
			&product.ID, &product.Name, &product.Price, &product.Stock,
			pq.Array(&product.Images), &product.CreatedAt, &product.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	if product.Images == nil {
		product.Images = []string{}
	}
	return &product, nil
}

// GetProductCached serves catalog reads for display. Checkout never uses it.
func (r *ProductRepository) GetProductCached(ctx context.Context, id int64) (*models.Product, error) {
	if product, err := r.cache.Get(ctx, id); err == nil {
		return product, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
	}

	product, err := r.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, product); err != nil {
		r.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return product, nil
}

// TryDecrement subtracts quantity only when enough stock is available. The check and
// the write are one UPDATE, so concurrent decrements can never drive stock negative.
func (r *ProductRepository) TryDecrement(ctx context.Context, id int64, quantity int) (models.StockChange, error) {
	if quantity <= 0 {
		return models.StockChange{}, ErrInvalidQuantity
	}

	var newStock int
	err := r.breaker.Execute(ctx, func() error {
		err := r.db.QueryRowContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND stock >= $1 RETURNING stock",
			quantity, id,
		).Scan(&newStock)
		if errors.Is(err, sql.ErrNoRows) {
			return r.explainRejectedDecrement(ctx, id, quantity)
		}
		return err
	})
	if err != nil {
		return models.StockChange{}, err
	}

	r.invalidate(ctx, id)
	return models.StockChange{ProductID: id, PreviousStock: newStock + quantity, NewStock: newStock}, nil
}

// explainRejectedDecrement only produces the audit reason; it never changes stock.
func (r *ProductRepository) explainRejectedDecrement(ctx context.Context, id int64, quantity int) error {
	var available int
	err := r.db.QueryRowContext(ctx, "SELECT stock FROM products WHERE id = $1", id).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("product %d: %w", id, ErrInsufficientStock)
	}
	return fmt.Errorf("product %d requested %d available %d: %w", id, quantity, available, ErrInsufficientStock)
}

// TryIncrement is the unconditional inverse of TryDecrement, used for restocking.
func (r *ProductRepository) TryIncrement(ctx context.Context, id int64, quantity int) (models.StockChange, error) {
	if quantity <= 0 {
		return models.StockChange{}, ErrInvalidQuantity
	}

	var newStock int
	err := r.breaker.Execute(ctx, func() error {
		err := r.db.QueryRowContext(ctx,
			"UPDATE products SET stock = stock + $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 RETURNING stock",
			quantity, id,
		).Scan(&newStock)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return err
	})
	if err != nil {
		return models.StockChange{}, err
	}

	r.invalidate(ctx, id)
	return models.StockChange{ProductID: id, PreviousStock: newStock - quantity, NewStock: newStock}, nil
}

func (r *ProductRepository) invalidate(ctx context.Context, id int64) {
	if err := r.cache.Invalidate(ctx, id); err != nil {
		r.logger.Warn("Product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
}
