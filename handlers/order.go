package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"shop-svc/middleware"
	"shop-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Checkouter interface {
	Checkout(ctx context.Context, actor models.Actor, req *models.CheckoutRequest) (*models.CheckoutResult, error)
}

type OrderLifecycle interface {
	GetOrder(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Order, error)
	ListMine(ctx context.Context, actor models.Actor, page, limit int) (*models.OrderPage, error)
	MarkPaid(ctx context.Context, actor models.Actor, id uuid.UUID, receipt *models.PaymentResult) (*models.Order, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id uuid.UUID, update models.StatusUpdate) (*models.Order, error)
}

type OrderHandler struct {
	checkout  Checkouter
	lifecycle OrderLifecycle
	logger    *zap.Logger
}

func NewOrderHandler(checkout Checkouter, lifecycle OrderLifecycle, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		checkout:  checkout,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	actor, _ := middleware.ActorFromContext(c)

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "InvalidRequest", err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int64("user_id", actor.ID),
		attribute.Int("items", len(req.Items)),
	)

	result, err := h.checkout.Checkout(ctx, actor, &req)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	span.SetAttributes(attribute.String("order.id", result.Order.ID.String()))
	c.JSON(http.StatusCreated, result)
}

func (h *OrderHandler) GetMyOrders(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetMyOrders")
	defer span.End()

	actor, _ := middleware.ActorFromContext(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := h.lifecycle.ListMine(ctx, actor, page, limit)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	span.SetAttributes(attribute.Int("orders.count", len(result.Orders)))
	c.JSON(http.StatusOK, result)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetOrder")
	defer span.End()

	id, ok := orderID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("order.id", id.String()))

	actor, _ := middleware.ActorFromContext(c)
	order, err := h.lifecycle.GetOrder(ctx, actor, id)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// PayOrder accepts an optional payment receipt body.
func (h *OrderHandler) PayOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "PayOrder")
	defer span.End()

	id, ok := orderID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("order.id", id.String()))

	var receipt *models.PaymentResult
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		var body models.PaymentResult
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "InvalidRequest", err.Error())
			return
		}
		if body != (models.PaymentResult{}) {
			receipt = &body
		}
	}

	actor, _ := middleware.ActorFromContext(c)
	order, err := h.lifecycle.MarkPaid(ctx, actor, id, receipt)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "UpdateOrderStatus")
	defer span.End()

	id, ok := orderID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("order.id", id.String()))

	var update models.StatusUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "InvalidRequest", err.Error())
		return
	}
	if update.Status != nil {
		span.SetAttributes(attribute.String("order.status", string(*update.Status)))
	}

	actor, _ := middleware.ActorFromContext(c)
	order, err := h.lifecycle.UpdateStatus(ctx, actor, id, update)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "InvalidOrderID", "Invalid order ID")
		return uuid.Nil, false
	}
	return id, true
}
