package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPacking    OrderStatus = "packing"
	OrderStatusOnDelivery OrderStatus = "on_delivery"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPacking, OrderStatusOnDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "credit_card"
	PaymentMethodPayPal         PaymentMethod = "paypal"
	PaymentMethodStripe         PaymentMethod = "stripe"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodStripe, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// MissingFields lists every required field that is blank, in declaration order.
func (a *ShippingAddress) MissingFields() []string {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"address", a.Address},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}

	var missing []string
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// OrderItem is the purchase-time snapshot of one product; never modified after checkout.
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type PaymentResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
}

type Order struct {
	ID                uuid.UUID       `json:"id"`
	OrderNumber       string          `json:"order_number"`
	UserID            int64           `json:"user_id"`
	Items             []OrderItem     `json:"items"`
	ShippingAddress   ShippingAddress `json:"shipping_address"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	ItemsPrice        decimal.Decimal `json:"items_price"`
	TaxPrice          decimal.Decimal `json:"tax_price"`
	ShippingPrice     decimal.Decimal `json:"shipping_price"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Status            OrderStatus     `json:"status"`
	IsPaid            bool            `json:"is_paid"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	PaymentResult     *PaymentResult  `json:"payment_result,omitempty"`
	IsDelivered       bool            `json:"is_delivered"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Revision          int             `json:"revision"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.PaidAt = cloneTime(o.PaidAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.EstimatedDelivery = cloneTime(o.EstimatedDelivery)
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		c.PaymentResult = &pr
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Amount is a client-supplied money value. Numbers and numeric strings are accepted;
// anything else, including negatives, decodes to zero.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	a.Decimal = decimal.Zero

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	} else {
		raw = string(data)
	}

	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return nil
	}
	a.Decimal = d
	return nil
}

type CartItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     *Amount `json:"price,omitempty"` // ignored; prices are re-read from the catalog
}

type CheckoutRequest struct {
	Items           []CartItem       `json:"order_items"`
	ShippingAddress *ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	ItemsPrice      Amount           `json:"items_price"`
	TaxPrice        Amount           `json:"tax_price"`
	ShippingPrice   Amount           `json:"shipping_price"`
	TotalPrice      Amount           `json:"total_price"`
	Notes           string           `json:"notes"`
}

type StatusUpdate struct {
	Status            *OrderStatus `json:"status,omitempty"`
	TrackingNumber    *string      `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time   `json:"estimated_delivery,omitempty"`
	IsDelivered       *bool        `json:"is_delivered,omitempty"`
	IsPaid            *bool        `json:"is_paid,omitempty"`
	ExpectedRevision  *int         `json:"expected_revision,omitempty"`
}

func (u StatusUpdate) Empty() bool {
	return u.Status == nil && u.TrackingNumber == nil && u.EstimatedDelivery == nil &&
		u.IsDelivered == nil && u.IsPaid == nil
}

// StockUpdate is one line of the checkout audit trail.
type StockUpdate struct {
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	Success       bool   `json:"success"`
	PreviousStock *int   `json:"previous_stock,omitempty"`
	NewStock      *int   `json:"new_stock,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type StockUpdateReport struct {
	Successful []StockUpdate `json:"successful"`
	Failed     []StockUpdate `json:"failed"`
	Summary    string        `json:"summary"`
}

func NewStockUpdateReport(updates []StockUpdate) StockUpdateReport {
	report := StockUpdateReport{
		Successful: []StockUpdate{},
		Failed:     []StockUpdate{},
	}
	for _, u := range updates {
		if u.Success {
			report.Successful = append(report.Successful, u)
		} else {
			report.Failed = append(report.Failed, u)
		}
	}
	report.Summary = fmt.Sprintf("%d products updated, %d failed", len(report.Successful), len(report.Failed))
	return report
}

type CheckoutResult struct {
	Order        *Order            `json:"order"`
	StockUpdates StockUpdateReport `json:"stockUpdates"`
}

type OrderEvent struct {
	OrderID     uuid.UUID          `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	UserID      int64              `json:"user_id"`
	Status      OrderStatus        `json:"status"`
	IsPaid      bool               `json:"is_paid"`
	IsDelivered bool               `json:"is_delivered"`
	TotalPrice  decimal.Decimal    `json:"total_price"`
	EventType   string             `json:"event_type"` // order_created, stock_discrepancy, order_paid, order_status_updated
	Stock       *StockUpdateReport `json:"stock,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

type PaymentEvent struct {
	PaymentID     int64     `json:"payment_id"`
	OrderID       uuid.UUID `json:"order_id"`
	UserID        int64     `json:"user_id"`
	Status        string    `json:"status"`
	EventType     string    `json:"event_type"` // payment_success, payment_failed
	TransactionID string    `json:"transaction_id"`
}

// OrderPage is one page of a user's order history.
type OrderPage struct {
	Orders []*Order `json:"orders"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
	Total  int      `json:"total"`
	Pages  int      `json:"pages"`
}
