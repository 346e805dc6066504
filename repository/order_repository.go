package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"shop-svc/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = `id, order_number, user_id, items, shipping_address, payment_method,
	items_price, tax_price, shipping_price, total_price, status, is_paid, paid_at, payment_result,
	is_delivered, delivered_at, tracking_number, estimated_delivery, notes, revision, created_at, updated_at`

// OrderRepository persists orders in postgres. Line items and the shipping
// address are written once by Create; Update only touches lifecycle columns.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	receipt, err := encodePaymentResult(order.PaymentResult)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO orders ("+orderColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)",
		order.ID, order.OrderNumber, order.UserID, items, address, order.PaymentMethod,
		order.ItemsPrice, order.TaxPrice, order.ShippingPrice, order.TotalPrice,
		order.Status, order.IsPaid, order.PaidAt, receipt,
		order.IsDelivered, order.DeliveredAt, order.TrackingNumber, order.EstimatedDelivery,
		order.Notes, order.Revision, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "order_number") {
			return fmt.Errorf("order number %s: %w", order.OrderNumber, ErrDuplicateOrderNumber)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return order, nil
}

// Update writes the lifecycle fields only if the stored revision still equals
// order.Revision. On success order.Revision is advanced to the stored value.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	receipt, err := encodePaymentResult(order.PaymentResult)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $3, is_paid = $4, paid_at = $5, payment_result = $6, is_delivered = $7,
		delivered_at = $8, tracking_number = $9, estimated_delivery = $10, revision = revision + 1, updated_at = $11
		WHERE id = $1 AND revision = $2`,
		order.ID, order.Revision,
		order.Status, order.IsPaid, order.PaidAt, receipt, order.IsDelivered,
		order.DeliveredAt, order.TrackingNumber, order.EstimatedDelivery, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to update order %s: %w", order.ID, err)
		}
		if !exists {
			return fmt.Errorf("order %s: %w", order.ID, ErrNotFound)
		}
		return fmt.Errorf("order %s at revision %d: %w", order.ID, order.Revision, ErrRevisionConflict)
	}

	order.Revision++
	return nil
}

// ListByUser returns one page of the user's orders, newest first, and the total count.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders WHERE user_id = $1", userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*models.Order, error) {
	var (
		order                                  models.Order
		items, address, receipt                []byte
		paidAt, deliveredAt, estimatedDelivery sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &items, &address, &order.PaymentMethod,
		&order.ItemsPrice, &order.TaxPrice, &order.ShippingPrice, &order.TotalPrice,
		&order.Status, &order.IsPaid, &paidAt, &receipt,
		&order.IsDelivered, &deliveredAt, &order.TrackingNumber, &estimatedDelivery,
		&order.Notes, &order.Revision, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	if len(receipt) > 0 && string(receipt) != "null" {
		order.PaymentResult = &models.PaymentResult{}
		if err := json.Unmarshal(receipt, order.PaymentResult); err != nil {
			return nil, fmt.Errorf("failed to decode payment result: %w", err)
		}
	}
	order.PaidAt = nullTime(paidAt)
	order.DeliveredAt = nullTime(deliveredAt)
	order.EstimatedDelivery = nullTime(estimatedDelivery)
	return &order, nil
}

func encodePaymentResult(result *models.PaymentResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment result: %w", err)
	}
	return data, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
