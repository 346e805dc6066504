package service

import (
	"context"
	"errors"
	"time"

	"shop-svc/models"
	"shop-svc/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "shop-service"

// StockLedger is the only way stock changes. TryDecrement must be a single atomic
// conditional write that fails without effect when stock is short.
type StockLedger interface {
	TryDecrement(ctx context.Context, productID int64, quantity int) (models.StockChange, error)
	TryIncrement(ctx context.Context, productID int64, quantity int) (models.StockChange, error)
}

type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, int, error)
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

type settings struct {
	now           func() time.Time
	orderNumber   func(time.Time) string
	updateRetries int
}

type Option func(*settings)

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func WithOrderNumbers(generate func(time.Time) string) Option {
	return func(s *settings) {
		s.orderNumber = generate
	}
}

// WithUpdateRetries bounds how often a lifecycle patch is re-applied after a
// concurrent write.
func WithUpdateRetries(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.updateRetries = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		now:           func() time.Time { return time.Now().UTC() },
		orderNumber:   NewOrderNumber,
		updateRetries: 3,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type CheckoutService struct {
	validator *CartValidator
	ledger    StockLedger
	orders    OrderStore
	events    EventPublisher
	logger    *zap.Logger
	settings
}

// NewCheckoutService wires the orchestrator. events may be nil.
func NewCheckoutService(catalog Catalog, ledger StockLedger, orders OrderStore, events EventPublisher, logger *zap.Logger, opts ...Option) *CheckoutService {
	return &CheckoutService{
		validator: NewCartValidator(catalog),
		ledger:    ledger,
		orders:    orders,
		events:    events,
		logger:    logger,
		settings:  newSettings(opts),
	}
}

// Checkout validates the cart, persists the order, then decrements stock item by item.
// Once the order exists it is always returned; decrement failures are reported in
// the result, never as an error.
func (s *CheckoutService) Checkout(ctx context.Context, actor models.Actor, req *models.CheckoutRequest) (*models.CheckoutResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Checkout")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", actor.ID))

	items, err := s.validator.Validate(ctx, req)
	if err != nil {
		span.RecordError(err)
		checkoutTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	order := s.newOrder(ctx, actor, req, items)
	if err := s.create(ctx, order); err != nil {
		span.RecordError(err)
		checkoutTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("order.number", order.OrderNumber))

	report := models.NewStockUpdateReport(s.decrementStock(ctx, order))

	s.publish(ctx, orderEvent(order, "order_created", &report, s.now()))
	if len(report.Failed) > 0 {
		s.logger.Warn("Checkout completed with stock discrepancies",
			zap.String("order_number", order.OrderNumber),
			zap.Int("failed", len(report.Failed)),
		)
		s.publish(ctx, orderEvent(order, "stock_discrepancy", &report, s.now()))
		checkoutTotal.WithLabelValues("partial").Inc()
	} else {
		checkoutTotal.WithLabelValues("completed").Inc()
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", order.UserID),
		zap.String("stock", report.Summary),
	)

	return &models.CheckoutResult{Order: order, StockUpdates: report}, nil
}

func (s *CheckoutService) newOrder(ctx context.Context, actor models.Actor, req *models.CheckoutRequest, items []models.OrderItem) *models.Order {
	computed := decimal.Zero
	for _, item := range items {
		computed = computed.Add(item.Subtotal())
	}
	if !computed.Equal(req.ItemsPrice.Decimal) {
		s.logger.Info("Client items price differs from line items",
			zap.Int64("user_id", actor.ID),
			zap.String("client_items_price", req.ItemsPrice.String()),
			zap.String("computed_items_price", computed.String()),
		)
	}

	now := s.now()
	return &models.Order{
		ID:              uuid.New(),
		UserID:          actor.ID,
		Items:           items,
		ShippingAddress: *req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      req.ItemsPrice.Decimal,
		TaxPrice:        req.TaxPrice.Decimal,
		ShippingPrice:   req.ShippingPrice.Decimal,
		TotalPrice:      req.TotalPrice.Decimal,
		Status:          models.OrderStatusPending,
		Notes:           req.Notes,
		Revision:        1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *CheckoutService) create(ctx context.Context, order *models.Order) error {
	var err error
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = s.orderNumber(order.CreatedAt)
		err = s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
			s.logger.Error("Failed to create order", zap.Error(err))
			return persistenceError("failed to create order", err)
		}
		s.logger.Warn("Order number collision", zap.String("order_number", order.OrderNumber))
	}
	return persistenceError("could not allocate a unique order number", err)
}

// decrementStock processes every line item; one failure never stops the rest.
func (s *CheckoutService) decrementStock(ctx context.Context, order *models.Order) []models.StockUpdate {
	updates := make([]models.StockUpdate, 0, len(order.Items))
	for _, item := range order.Items {
		update := models.StockUpdate{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
		}

		change, err := s.ledger.TryDecrement(ctx, item.ProductID, item.Quantity)
		if err != nil {
			update.Reason = decrementFailureReason(err)
			stockDecrementsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("Stock decrement failed",
				zap.String("order_number", order.OrderNumber),
				zap.Int64("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		} else {
			update.Success = true
			update.PreviousStock = &change.PreviousStock
			update.NewStock = &change.NewStock
			stockDecrementsTotal.WithLabelValues("success").Inc()
		}
		updates = append(updates, update)
	}
	return updates
}

func decrementFailureReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrInsufficientStock):
		return "insufficient stock"
	case errors.Is(err, repository.ErrNotFound):
		return "product not found"
	default:
		return err.Error()
	}
}

func (s *CheckoutService) publish(ctx context.Context, event models.OrderEvent) {
	publishEvent(ctx, s.events, s.logger, event)
}

// publishEvent logs publishing failures; they never fail the operation.
func publishEvent(ctx context.Context, events EventPublisher, logger *zap.Logger, event models.OrderEvent) {
	if events == nil {
		return
	}
	if err := events.PublishOrderEvent(ctx, event); err != nil {
		logger.Error("Failed to publish order event",
			zap.String("event_type", event.EventType),
			zap.String("order_number", event.OrderNumber),
			zap.Error(err),
		)
	}
}

func orderEvent(order *models.Order, eventType string, report *models.StockUpdateReport, at time.Time) models.OrderEvent {
	return models.OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		IsPaid:      order.IsPaid,
		IsDelivered: order.IsDelivered,
		TotalPrice:  order.TotalPrice,
		EventType:   eventType,
		Stock:       report,
		OccurredAt:  at,
	}
}
