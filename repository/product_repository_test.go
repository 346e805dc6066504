package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"shop-svc/cache"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

func setupProductTest(t *testing.T) (*ProductRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewProductRepository(db, cache.NewProductCache(nil, 0), zaptest.NewLogger(t))
	return repo, mock
}

func TestGetProduct_Success(t *testing.T) {
	repo, mock := setupProductTest(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "price", "stock", "images", "created_at", "updated_at"}).
		AddRow(1, "Mug", "10.00", 5, "{mug.jpg,mug-side.jpg}", now, now)
	mock.ExpectQuery("SELECT id, name, price, stock, images").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	product, err := repo.GetProduct(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !product.Price.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Expected price 10.00, got %s", product.Price)
	}
	if product.Stock != 5 {
		t.Errorf("Expected stock 5, got %d", product.Stock)
	}
	if product.PrimaryImage() != "mug.jpg" {
		t.Errorf("Expected primary image mug.jpg, got %q", product.PrimaryImage())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	repo, mock := setupProductTest(t)

	mock.ExpectQuery("SELECT id, name, price, stock, images").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock", "images", "created_at", "updated_at"}))

	_, err := repo.GetProduct(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetProductCached_FallsThroughToDatabase(t *testing.T) {
	repo, mock := setupProductTest(t)

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, price, stock, images").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock", "images", "created_at", "updated_at"}).
			AddRow(3, "Lamp", "25.50", 2, "{}", now, now))

	product, err := repo.GetProductCached(context.Background(), 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if product.Name != "Lamp" {
		t.Errorf("Expected Lamp, got %s", product.Name)
	}
	if product.PrimaryImage() != "" {
		t.Errorf("Expected empty primary image, got %q", product.PrimaryImage())
	}
}

func TestTryDecrement_Success(t *testing.T) {
	repo, mock := setupProductTest(t)

	mock.ExpectQuery(`UPDATE products SET stock = stock - \$1, updated_at = CURRENT_TIMESTAMP WHERE id = \$2 AND stock >= \$1 RETURNING stock`).
		WithArgs(2, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(3))

	change, err := repo.TryDecrement(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if change.PreviousStock != 5 || change.NewStock != 3 {
		t.Errorf("Expected 5 -> 3, got %d -> %d", change.PreviousStock, change.NewStock)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestTryDecrement_InsufficientStock(t *testing.T) {
	repo, mock := setupProductTest(t)

	mock.ExpectQuery(`UPDATE products SET stock = stock - \$1`).
		WithArgs(3, int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}))
	mock.ExpectQuery(`SELECT stock FROM products WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(1))

	_, err := repo.TryDecrement(context.Background(), 2, 3)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestTryDecrement_MissingProduct(t *testing.T) {
	repo, mock := setupProductTest(t)

	mock.ExpectQuery(`UPDATE products SET stock = stock - \$1`).
		WithArgs(1, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}))
	mock.ExpectQuery(`SELECT stock FROM products WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}))

	_, err := repo.TryDecrement(context.Background(), 42, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTryDecrement_RejectsNonPositiveQuantity(t *testing.T) {
	repo, mock := setupProductTest(t)

	if _, err := repo.TryDecrement(context.Background(), 1, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected no database calls: %v", err)
	}
}

func TestTryDecrement_BusinessOutcomesDoNotTripBreaker(t *testing.T) {
	repo, mock := setupProductTest(t)

	for i := 0; i < 6; i++ {
		mock.ExpectQuery(`UPDATE products SET stock = stock - \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}))
		mock.ExpectQuery(`SELECT stock FROM products`).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(0))
	}

	for i := 0; i < 6; i++ {
		if _, err := repo.TryDecrement(context.Background(), 1, 1); !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("Attempt %d: expected ErrInsufficientStock, got %v", i, err)
		}
	}
}

func TestTryIncrement_Success(t *testing.T) {
	repo, mock := setupProductTest(t)

	mock.ExpectQuery(`UPDATE products SET stock = stock \+ \$1, updated_at = CURRENT_TIMESTAMP WHERE id = \$2 RETURNING stock`).
		WithArgs(4, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(7))

	change, err := repo.TryIncrement(context.Background(), 1, 4)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if change.PreviousStock != 3 || change.NewStock != 7 {
		t.Errorf("Expected 3 -> 7, got %d -> %d", change.PreviousStock, change.NewStock)
	}
}

func TestTryIncrement_NotFound(t *testing.T) {
	repo, mock := setupProductTest(t)

	mock.ExpectQuery(`UPDATE products SET stock = stock \+ \$1`).
		WithArgs(1, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}))

	if _, err := repo.TryIncrement(context.Background(), 5, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
