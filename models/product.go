package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Availability is derived from stock; it is never set directly by callers.
type Availability string

const (
	AvailabilityInStock    Availability = "in-stock"
	AvailabilityOutOfStock Availability = "out-of-stock"
	AvailabilityPreOrder   Availability = "pre-order"
)

type Product struct {
	ID              int64           `db:"id" json:"id"`
	SKU             string          `db:"sku" json:"sku"`
	Slug            string          `db:"slug" json:"slug"`
	Name            string          `db:"name" json:"name"`
	Description     string          `db:"description" json:"description"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Stock           int             `db:"stock" json:"stock"`
	Availability    Availability    `db:"availability" json:"availability"`
	Image           string          `db:"image" json:"image"`
	RatingsAverage  decimal.Decimal `db:"ratings_average" json:"ratings_average"`
	RatingsQuantity int             `db:"ratings_quantity" json:"ratings_quantity"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time      `db:"deleted_at" json:"-"`
}

func (p *Product) IsDeleted() bool { return p.DeletedAt != nil }

// AvailabilityForStock recomputes the derived availability field. Pre-order
// products are handled upstream; stock-bearing products only flip between
// in-stock and out-of-stock.
func AvailabilityForStock(stock int) Availability {
	if stock > 0 {
		return AvailabilityInStock
	}
	return AvailabilityOutOfStock
}

// StockLevel is the read-only answer of a batch inventory check.
type StockLevel struct {
	ProductID      int64 `json:"product_id"`
	Available      bool  `json:"available"`
	RemainingStock int   `json:"remaining_stock"`
}
