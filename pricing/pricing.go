// Package pricing computes cart and order totals. Everything here is a pure
// function over decimal values: no I/O, no clock, no randomness, so totals
// can be recomputed at any time for audit and always come out identical.
package pricing

import (
	"github.com/shopspring/decimal"

	"shop-service/models"
)

// LineItem is the minimal shape the engine needs from a cart or order line.
type LineItem struct {
	Price    decimal.Decimal
	Quantity int
	Discount *decimal.Decimal // optional per-item discount, absolute
}

type Totals struct {
	ItemsPrice    decimal.Decimal `json:"items_price"`
	TaxPrice      decimal.Decimal `json:"tax_price"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

var hundred = decimal.NewFromInt(100)

// CalculateTotals computes order totals. Intermediate sums keep full
// precision; rounding to two decimals happens once, at the output edge.
// The fixed discount is capped at the items subtotal and the grand total is
// floored at zero, so pathological inputs can never produce a negative bill.
func CalculateTotals(items []LineItem, shippingPrice, taxRate, discountAmount decimal.Decimal, discountType models.DiscountType) Totals {
	itemsPrice := decimal.Zero
	for _, it := range items {
		itemsPrice = itemsPrice.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	itemsPrice = itemsPrice.Round(2)

	taxPrice := itemsPrice.Mul(taxRate).Round(2)

	var discountPrice decimal.Decimal
	switch discountType {
	case models.DiscountPercentage:
		discountPrice = itemsPrice.Mul(discountAmount).Div(hundred).Round(2)
	case models.DiscountFixed:
		discountPrice = decimal.Min(discountAmount, itemsPrice).Round(2)
	default:
		discountPrice = decimal.Zero.Round(2)
	}
	if discountPrice.IsNegative() {
		discountPrice = decimal.Zero.Round(2)
	}

	totalPrice := itemsPrice.Add(taxPrice).Add(shippingPrice).Sub(discountPrice).Round(2)
	if totalPrice.IsNegative() {
		totalPrice = decimal.Zero.Round(2)
	}

	return Totals{
		ItemsPrice:    itemsPrice,
		TaxPrice:      taxPrice,
		ShippingPrice: shippingPrice.Round(2),
		DiscountPrice: discountPrice,
		TotalPrice:    totalPrice,
	}
}

// CartTotals recomputes a cart's derived fields. Per-item discounts apply
// before summation; cart-level discount entries then apply in insertion
// order, each one a function of the running total at that point.
func CartTotals(items []LineItem, discounts []models.DiscountEntry) (subTotal decimal.Decimal, totalQuantity int, totalPrice decimal.Decimal) {
	running := decimal.Zero
	for _, it := range items {
		line := it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		if it.Discount != nil {
			line = line.Sub(*it.Discount)
			if line.IsNegative() {
				line = decimal.Zero
			}
		}
		running = running.Add(line)
		totalQuantity += it.Quantity
	}
	subTotal = running.Round(2)

	for _, d := range discounts {
		switch d.Type {
		case models.DiscountPercentage:
			running = running.Sub(running.Mul(d.Amount).Div(hundred))
		case models.DiscountFixed:
			running = running.Sub(d.Amount)
		}
		if running.IsNegative() {
			running = decimal.Zero
		}
	}
	totalPrice = running.Round(2)
	return subTotal, totalQuantity, totalPrice
}
