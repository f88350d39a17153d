package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusReturned   OrderStatus = "returned"
	StatusRefunded   OrderStatus = "refunded"
	StatusCompleted  OrderStatus = "completed"
	StatusOnHold     OrderStatus = "on_hold"
	StatusFailed     OrderStatus = "failed"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// OrderItem is an immutable snapshot of the product at order time. ProductID
// is a lookup key only; historical totals are never recomputed from the live
// product record.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"-"`
	ProductID int64           `db:"product_id" json:"product_id"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Image     string          `db:"image" json:"image"`
	Quantity  int             `db:"quantity" json:"quantity"`
}

// StatusEvent is one row of the append-only status history.
type StatusEvent struct {
	ID          int64       `db:"id" json:"-"`
	OrderID     int64       `db:"order_id" json:"-"`
	Status      OrderStatus `db:"status" json:"status"`
	Description string      `db:"description" json:"description"`
	ActorID     *int64      `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

type ShippingAddress struct {
	FullName   string `db:"ship_full_name" json:"full_name"`
	Line1      string `db:"ship_line1" json:"line1"`
	Line2      string `db:"ship_line2" json:"line2,omitempty"`
	City       string `db:"ship_city" json:"city"`
	PostalCode string `db:"ship_postal_code" json:"postal_code"`
	Country    string `db:"ship_country" json:"country"`
}

// PaymentResult is the opaque shape handed back by the payment collaborator.
type PaymentResult struct {
	PaymentID      string          `json:"payment_id"`
	Status         string          `json:"status"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	Currency       string          `json:"currency"`
}

type FulfillmentDetails struct {
	TrackingNumber   string `json:"tracking_number"`
	ShippingProvider string `json:"shipping_provider"`
}

type Order struct {
	ID            int64           `db:"id" json:"id"`
	OrderNumber   string          `db:"order_number" json:"order_number"`
	UserID        int64           `db:"user_id" json:"user_id"`
	Status        OrderStatus     `db:"status" json:"status"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`
	Items         []OrderItem     `db:"-" json:"items"`
	ItemsPrice    decimal.Decimal `db:"items_price" json:"items_price"`
	TaxPrice      decimal.Decimal `db:"tax_price" json:"tax_price"`
	ShippingPrice decimal.Decimal `db:"shipping_price" json:"shipping_price"`
	DiscountPrice decimal.Decimal `db:"discount_price" json:"discount_price"`
	TotalPrice    decimal.Decimal `db:"total_price" json:"total_price"`
	RefundAmount  decimal.Decimal `db:"refund_amount" json:"refund_amount"`

	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`

	IsPaid           bool       `db:"is_paid" json:"is_paid"`
	PaidAt           *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	PaymentID        string     `db:"payment_id" json:"payment_id,omitempty"`
	PaymentCurrency  string     `db:"payment_currency" json:"payment_currency,omitempty"`
	TrackingNumber   string     `db:"tracking_number" json:"tracking_number,omitempty"`
	ShippingProvider string     `db:"shipping_provider" json:"shipping_provider,omitempty"`
	ShippedAt        *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	StockReleased    bool       `db:"stock_released" json:"-"`
	CancellationNote string     `db:"cancellation_note" json:"cancellation_note,omitempty"`

	StatusHistory []StatusEvent `db:"-" json:"status_history"`
	Version       int           `db:"version" json:"version"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// OrderEvent is the JSON body published to the order exchange.
type OrderEvent struct {
	EventID     string      `json:"event_id"`
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      int64       `json:"user_id"`
	Type        string      `json:"type"` // created, status_updated, cancelled, payment_check
	Status      OrderStatus `json:"status"`
	Total       string      `json:"total"`
	Occurred    time.Time   `json:"occurred"`
}
