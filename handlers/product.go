package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/repository"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ProductStore interface {
	GetProductCached(ctx context.Context, id int64) (*models.Product, error)
	TryIncrement(ctx context.Context, id int64, quantity int) (models.StockChange, error)
}

type ProductHandler struct {
	products ProductStore
	logger   *zap.Logger
}

func NewProductHandler(products ProductStore, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id, ok := productID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("product.id", id))

	product, err := h.products.GetProductCached(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "code": "ProductNotFound"})
		return
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to get product", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, product)
}

// Restock is the only way to add stock back; it never sets an absolute value.
func (h *ProductHandler) Restock(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "RestockProduct")
	defer span.End()

	id, ok := productID(c)
	if !ok {
		return
	}

	var req models.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "InvalidQuantity", err.Error())
		return
	}
	span.SetAttributes(attribute.Int64("product.id", id), attribute.Int("quantity", req.Quantity))

	change, err := h.products.TryIncrement(ctx, id, req.Quantity)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "code": "ProductNotFound"})
		return
	case errors.Is(err, repository.ErrInvalidQuantity):
		badRequest(c, "InvalidQuantity", "quantity must be positive")
		return
	case err != nil:
		span.RecordError(err)
		h.logger.Error("Failed to restock product", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	actor, _ := middleware.ActorFromContext(c)
	h.logger.Info("Product restocked",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("product_id", id),
		zap.Int("previous_stock", change.PreviousStock),
		zap.Int("new_stock", change.NewStock),
		zap.Int64("actor_id", actor.ID),
	)
	c.JSON(http.StatusOK, change)
}

func productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "InvalidProductID", "Invalid product ID")
		return 0, false
	}
	return id, true
}
