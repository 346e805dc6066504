package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"shop-svc/models"
	"shop-svc/repository"
)

// Catalog resolves products by id. Implementations must return repository.ErrNotFound
// for unknown ids.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// CartValidator prices a cart against the catalog. It only reads.
type CartValidator struct {
	catalog Catalog
}

func NewCartValidator(catalog Catalog) *CartValidator {
	return &CartValidator{catalog: catalog}
}

// Validate returns one priced line item per cart item, in cart order. Repeated
// products are checked against stock using their summed quantity.
func (v *CartValidator) Validate(ctx context.Context, req *models.CheckoutRequest) ([]models.OrderItem, error) {
	if req == nil || len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	var missing []string
	if req.ShippingAddress == nil {
		missing = append(missing, (&models.ShippingAddress{}).MissingFields()...)
	} else {
		missing = append(missing, req.ShippingAddress.MissingFields()...)
	}
	if req.PaymentMethod == "" {
		missing = append(missing, "payment_method")
	}
	if len(missing) > 0 {
		return nil, withDetail(ErrMissingShippingInfo, "", missing...)
	}

	if !req.PaymentMethod.Valid() {
		return nil, withDetail(ErrInvalidPaymentMethod, fmt.Sprintf("unsupported payment method %q", req.PaymentMethod), "payment_method")
	}

	var badQuantities []string
	for i, item := range req.Items {
		if item.Quantity < 1 {
			badQuantities = append(badQuantities, fmt.Sprintf("order_items[%d].quantity", i))
		}
	}
	if len(badQuantities) > 0 {
		return nil, withDetail(ErrInvalidQuantity, "", badQuantities...)
	}

	products := make(map[int64]*models.Product, len(req.Items))
	requested := make(map[int64]int, len(req.Items))
	priced := make([]models.OrderItem, 0, len(req.Items))

	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			p, err := v.catalog.GetProduct(ctx, item.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				return nil, withDetail(ErrProductNotFound, fmt.Sprintf("product %d not found", item.ProductID))
			}
			if err != nil {
				return nil, persistenceError("failed to load product", err)
			}
			product = p
			products[item.ProductID] = p
		}

		// requested never exceeds stock, so the subtraction cannot overflow.
		already := requested[item.ProductID]
		if item.Quantity > product.Stock-already {
			total := already + item.Quantity
			if total < already {
				total = math.MaxInt
			}
			return nil, withDetail(ErrInsufficientStock, fmt.Sprintf(
				"insufficient stock for %s: requested %d, available %d",
				product.Name, total, product.Stock,
			))
		}
		requested[item.ProductID] = already + item.Quantity

		priced = append(priced, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.PrimaryImage(),
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
	}

	return priced, nil
}
