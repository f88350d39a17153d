package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusConverted CartStatus = "converted"
	CartStatusAbandoned CartStatus = "abandoned"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// DiscountEntry is one named adjustment. Entries apply in insertion order,
// each against the running total at that point.
type DiscountEntry struct {
	Code   string          `json:"code"`
	Type   DiscountType    `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// Discounts is stored as a JSON column so the insertion order survives
// round-trips through the database.
type Discounts []DiscountEntry

func (d Discounts) Value() (driver.Value, error) {
	if len(d) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Discounts) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into Discounts", src)
	}
}

type CartItem struct {
	ID        int64            `db:"id" json:"id"`
	CartID    int64            `db:"cart_id" json:"-"`
	ProductID int64            `db:"product_id" json:"product_id"`
	Quantity  int              `db:"quantity" json:"quantity"`
	Price     decimal.Decimal  `db:"price" json:"price"` // snapshot at addition
	Name      string           `db:"name" json:"name"`   // snapshot at addition
	Image     string           `db:"image" json:"image"` // snapshot at addition
	Discount  *decimal.Decimal `db:"discount" json:"discount,omitempty"`
	Position  int              `db:"position" json:"-"`
}

type Cart struct {
	ID            int64           `db:"id" json:"id"`
	UserID        *int64          `db:"user_id" json:"user_id,omitempty"`
	SessionID     *string         `db:"session_id" json:"session_id,omitempty"`
	Status        CartStatus      `db:"status" json:"status"`
	Items         []CartItem      `db:"-" json:"items"`
	Discounts     Discounts       `db:"discounts" json:"discounts"`
	SubTotal      decimal.Decimal `db:"sub_total" json:"sub_total"`
	TotalQuantity int             `db:"total_quantity" json:"total_quantity"`
	TotalPrice    decimal.Decimal `db:"total_price" json:"total_price"`
	Version       int             `db:"version" json:"version"`
	ActiveMarker  *int8           `db:"active_marker" json:"-"` // generated by the database while status is active
	RefreshedAt   time.Time       `db:"refreshed_at" json:"refreshed_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Item returns the line for productID, or nil.
func (c *Cart) Item(productID int64) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Cart validation issue codes. ValidateCart reports, it never blocks.
type IssueCode string

const (
	IssueOutOfStock        IssueCode = "OUT_OF_STOCK"
	IssueInsufficientStock IssueCode = "INSUFFICIENT_STOCK"
	IssuePriceChanged      IssueCode = "PRICE_CHANGED"
	IssueProductNotFound   IssueCode = "PRODUCT_NOT_FOUND"
	IssuePricesExpired     IssueCode = "PRICES_EXPIRED"
)

type CartIssue struct {
	Code      IssueCode `json:"code"`
	ProductID int64     `json:"product_id,omitempty"`
	Message   string    `json:"message"`
}
