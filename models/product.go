package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Images    []string        `json:"images"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PrimaryImage returns the first image or an empty string.
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// StockChange is the before/after snapshot of one ledger write.
type StockChange struct {
	ProductID     int64 `json:"product_id"`
	PreviousStock int   `json:"previous_stock"`
	NewStock      int   `json:"new_stock"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}
