package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"shop-svc/models"
	"shop-svc/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// LifecycleService drives existing orders through status, payment and delivery changes.
type LifecycleService struct {
	orders OrderStore
	events EventPublisher
	logger *zap.Logger
	settings
}

func NewLifecycleService(orders OrderStore, events EventPublisher, logger *zap.Logger, opts ...Option) *LifecycleService {
	return &LifecycleService{
		orders:   orders,
		events:   events,
		logger:   logger,
		settings: newSettings(opts),
	}
}

// access describes who may act on an order.
type access struct {
	owner bool
	roles []models.Role
}

var (
	ownerOrStaff = access{owner: true, roles: []models.Role{models.RoleStaff, models.RoleAdmin}}
	staffOnly    = access{roles: []models.Role{models.RoleStaff, models.RoleAdmin}}
	adminOnly    = access{roles: []models.Role{models.RoleAdmin}}
)

func (a access) check(actor models.Actor, order *models.Order) error {
	if actor.HasRole(a.roles...) {
		return nil
	}
	if a.owner && order != nil && actor.ID != 0 && actor.ID == order.UserID {
		return nil
	}
	return ErrForbidden
}

func (s *LifecycleService) GetOrder(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Order, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "GetOrder")
	defer span.End()

	order, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// Unknown ids fail with OrderNotFound before ownership is checked; non-owners
	// of an existing order get Forbidden.
	if err := ownerOrStaff.check(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListMine returns a page of the actor's orders, newest first.
func (s *LifecycleService) ListMine(ctx context.Context, actor models.Actor, page, limit int) (*models.OrderPage, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListMyOrders")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if maxPage := math.MaxInt/limit - 1; page > maxPage {
		page = maxPage
	}

	orders, total, err := s.orders.ListByUser(ctx, actor.ID, limit, (page-1)*limit)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Failed to list orders", zap.Int64("user_id", actor.ID), zap.Error(err))
		return nil, persistenceError("failed to list orders", err)
	}
	return &models.OrderPage{
		Orders: orders,
		Page:   page,
		Limit:  limit,
		Total:  total,
		Pages:  (total + limit - 1) / limit,
	}, nil
}

// MarkPaid is idempotent: the first paidAt is kept and a later receipt replaces
// the stored one.
func (s *LifecycleService) MarkPaid(ctx context.Context, actor models.Actor, id uuid.UUID, receipt *models.PaymentResult) (*models.Order, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MarkPaid")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id.String()))

	order, err := s.mutate(ctx, id, nil, func(order *models.Order) error {
		if err := ownerOrStaff.check(actor, order); err != nil {
			return err
		}
		if order.Status == models.OrderStatusCancelled {
			return withDetail(ErrInvalidTransition, "cannot pay a cancelled order")
		}
		s.setPaid(order, true)
		if receipt != nil {
			r := *receipt
			order.PaymentResult = &r
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	source := actor.Name
	if source == "" {
		source = string(actor.Role)
	}
	orderPaymentsTotal.WithLabelValues(source).Inc()

	s.logger.Info("Order marked paid",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("actor_id", actor.ID),
		zap.String("source", source),
	)
	s.publish(ctx, orderEvent(order, "order_paid", nil, s.now()))
	return order, nil
}

// UpdateStatus applies a staff patch of status, tracking and delivery or payment flags.
func (s *LifecycleService) UpdateStatus(ctx context.Context, actor models.Actor, id uuid.UUID, update models.StatusUpdate) (*models.Order, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "UpdateOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id.String()))

	if err := staffOnly.check(actor, nil); err != nil {
		return nil, err
	}
	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	var previous models.OrderStatus
	order, err := s.mutate(ctx, id, update.ExpectedRevision, func(order *models.Order) error {
		previous = order.Status
		return s.applyUpdate(actor, order, update)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if order.Status != previous {
		orderStatusTransitionsTotal.WithLabelValues(string(order.Status)).Inc()
	}
	s.logger.Info("Order updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
		zap.Int("revision", order.Revision),
	)
	s.publish(ctx, orderEvent(order, "order_status_updated", nil, s.now()))
	return order, nil
}

func validateUpdate(update models.StatusUpdate) error {
	if update.Empty() {
		return withDetail(ErrInvalidUpdate, "no fields to update")
	}
	if update.Status == nil {
		return nil
	}
	if !update.Status.Valid() {
		return withDetail(ErrInvalidStatus, fmt.Sprintf("invalid order status %q", *update.Status), "status")
	}
	if update.IsDelivered != nil {
		if *update.Status == models.OrderStatusDelivered && !*update.IsDelivered {
			return withDetail(ErrInvalidUpdate, "a delivered order must be marked delivered", "status", "is_delivered")
		}
		if !update.Status.Terminal() && *update.IsDelivered {
			return withDetail(ErrInvalidUpdate, fmt.Sprintf("an order in status %s cannot be marked delivered", *update.Status), "status", "is_delivered")
		}
	}
	return nil
}

func (s *LifecycleService) applyUpdate(actor models.Actor, order *models.Order, update models.StatusUpdate) error {
	if update.Status != nil {
		if *update.Status != order.Status {
			if err := checkTransition(actor, order.Status, *update.Status); err != nil {
				return err
			}
			order.Status = *update.Status
		}
		// Delivery flags follow the status even when it is re-set unchanged.
		switch {
		case order.Status == models.OrderStatusDelivered:
			s.setDelivered(order, true)
		case !order.Status.Terminal():
			s.setDelivered(order, false)
		}
	}

	if update.TrackingNumber != nil {
		order.TrackingNumber = *update.TrackingNumber
	}
	if update.EstimatedDelivery != nil {
		t := *update.EstimatedDelivery
		order.EstimatedDelivery = &t
	}
	if update.IsDelivered != nil {
		s.setDelivered(order, *update.IsDelivered)
	}
	if update.IsPaid != nil {
		if *update.IsPaid && !order.IsPaid && order.Status == models.OrderStatusCancelled {
			return withDetail(ErrInvalidTransition, "cannot pay a cancelled order")
		}
		s.setPaid(order, *update.IsPaid)
	}
	return nil
}

// checkTransition: non-terminal statuses move freely, delivered reopens only for
// admins, cancelled is final.
func checkTransition(actor models.Actor, from, to models.OrderStatus) error {
	switch from {
	case models.OrderStatusCancelled:
		return withDetail(ErrInvalidTransition, fmt.Sprintf("cannot move a cancelled order to %s", to))
	case models.OrderStatusDelivered:
		if to.Terminal() {
			return withDetail(ErrInvalidTransition, fmt.Sprintf("cannot move a delivered order to %s", to))
		}
		if err := adminOnly.check(actor, nil); err != nil {
			return withDetail(ErrForbidden, "only an admin can reopen a delivered order")
		}
	}
	return nil
}

func (s *LifecycleService) setDelivered(order *models.Order, delivered bool) {
	if !delivered {
		order.IsDelivered = false
		order.DeliveredAt = nil
		return
	}
	if !order.IsDelivered || order.DeliveredAt == nil {
		now := s.now()
		order.DeliveredAt = &now
	}
	order.IsDelivered = true
}

func (s *LifecycleService) setPaid(order *models.Order, paid bool) {
	if !paid {
		order.IsPaid = false
		order.PaidAt = nil
		return
	}
	if order.PaidAt == nil {
		now := s.now()
		order.PaidAt = &now
	}
	order.IsPaid = true
}

// mutate loads the order, applies fn and writes it back with a revision check.
// Without an expected revision a lost race is retried on a fresh read.
func (s *LifecycleService) mutate(ctx context.Context, id uuid.UUID, expectedRevision *int, fn func(*models.Order) error) (*models.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if expectedRevision != nil && order.Revision != *expectedRevision {
			return nil, withDetail(ErrRevisionConflict, fmt.Sprintf(
				"order is at revision %d, expected %d", order.Revision, *expectedRevision,
			))
		}
		if err := fn(order); err != nil {
			return nil, err
		}
		order.UpdatedAt = s.now()

		err = s.orders.Update(ctx, order)
		if err == nil {
			return order, nil
		}
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrOrderNotFound
		case errors.Is(err, repository.ErrRevisionConflict):
			if expectedRevision != nil || attempt >= s.updateRetries {
				return nil, ErrRevisionConflict
			}
			s.logger.Debug("Retrying order update after concurrent write", zap.String("order_id", id.String()), zap.Int("attempt", attempt+1))
		default:
			s.logger.Error("Failed to update order", zap.String("order_id", id.String()), zap.Error(err))
			return nil, persistenceError("failed to update order", err)
		}
	}
}

func (s *LifecycleService) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		s.logger.Error("Failed to load order", zap.String("order_id", id.String()), zap.Error(err))
		return nil, persistenceError("failed to load order", err)
	}
	return order, nil
}

func (s *LifecycleService) publish(ctx context.Context, event models.OrderEvent) {
	publishEvent(ctx, s.events, s.logger, event)
}
