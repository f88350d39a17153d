package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func lines(prices []string, qtys []int) []LineItem {
	items := make([]LineItem, len(prices))
	for i := range prices {
		items[i] = LineItem{Price: dec(prices[i]), Quantity: qtys[i]}
	}
	return items
}

func TestCalculateTotals(t *testing.T) {
	tests := []struct {
		name          string
		items         []LineItem
		shipping      string
		taxRate       string
		discount      string
		discountType  models.DiscountType
		wantItems     string
		wantTax       string
		wantDiscount  string
		wantTotal     string
	}{
		{
			name:         "order scenario",
			items:        lines([]string{"10.00"}, []int{3}),
			shipping:     "5",
			taxRate:      "0.1",
			discount:     "0",
			discountType: models.DiscountFixed,
			wantItems:    "30.00",
			wantTax:      "3.00",
			wantDiscount: "0.00",
			wantTotal:    "38.00",
		},
		{
			name:         "percentage discount",
			items:        lines([]string{"19.99", "5.50"}, []int{2, 1}),
			shipping:     "4.99",
			taxRate:      "0.2",
			discount:     "10",
			discountType: models.DiscountPercentage,
			wantItems:    "45.48",
			wantTax:      "9.10",
			wantDiscount: "4.55",
			wantTotal:    "55.02",
		},
		{
			name:         "fixed discount capped at subtotal",
			items:        lines([]string{"8.00"}, []int{1}),
			shipping:     "0",
			taxRate:      "0",
			discount:     "50",
			discountType: models.DiscountFixed,
			wantItems:    "8.00",
			wantTax:      "0.00",
			wantDiscount: "8.00",
			wantTotal:    "0.00",
		},
		{
			name:         "empty items",
			items:        nil,
			shipping:     "5.00",
			taxRate:      "0.1",
			discount:     "0",
			discountType: models.DiscountFixed,
			wantItems:    "0.00",
			wantTax:      "0.00",
			wantDiscount: "0.00",
			wantTotal:    "5.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateTotals(tt.items, dec(tt.shipping), dec(tt.taxRate), dec(tt.discount), tt.discountType)
			assert.Equal(t, tt.wantItems, got.ItemsPrice.StringFixed(2))
			assert.Equal(t, tt.wantTax, got.TaxPrice.StringFixed(2))
			assert.Equal(t, tt.wantDiscount, got.DiscountPrice.StringFixed(2))
			assert.Equal(t, tt.wantTotal, got.TotalPrice.StringFixed(2))
		})
	}
}

func TestCalculateTotalsDeterministic(t *testing.T) {
	items := lines([]string{"3.33", "7.77", "0.01"}, []int{7, 3, 99})
	first := CalculateTotals(items, dec("4.99"), dec("0.19"), dec("12.5"), models.DiscountPercentage)
	for i := 0; i < 100; i++ {
		again := CalculateTotals(items, dec("4.99"), dec("0.19"), dec("12.5"), models.DiscountPercentage)
		require.True(t, first.TotalPrice.Equal(again.TotalPrice))
		require.True(t, first.ItemsPrice.Equal(again.ItemsPrice))
		require.True(t, first.TaxPrice.Equal(again.TaxPrice))
		require.True(t, first.DiscountPrice.Equal(again.DiscountPrice))
	}
}

func TestCalculateTotalsNeverNegative(t *testing.T) {
	// Pathological rates must floor the total at zero, not go below it.
	got := CalculateTotals(lines([]string{"1.00"}, []int{1}), dec("0"), dec("0"), dec("100"), models.DiscountPercentage)
	assert.False(t, got.TotalPrice.IsNegative())
	assert.True(t, got.DiscountPrice.LessThanOrEqual(got.ItemsPrice))

	got = CalculateTotals(lines([]string{"2.50"}, []int{2}), dec("0"), dec("0"), dec("-3"), models.DiscountFixed)
	assert.False(t, got.DiscountPrice.IsNegative())
	assert.Equal(t, "5.00", got.TotalPrice.StringFixed(2))
}

func TestCartTotals(t *testing.T) {
	perItem := dec("1.00")
	items := []LineItem{
		{Price: dec("10.00"), Quantity: 2, Discount: &perItem}, // 19.00
		{Price: dec("5.00"), Quantity: 1},                      // 5.00
	}

	sub, qty, total := CartTotals(items, nil)
	assert.Equal(t, "24.00", sub.StringFixed(2))
	assert.Equal(t, 3, qty)
	assert.Equal(t, "24.00", total.StringFixed(2))

	// Discount entries apply in insertion order against the running total:
	// 24.00 -> fixed 4 -> 20.00 -> 10% -> 18.00.
	discounts := []models.DiscountEntry{
		{Code: "WELCOME4", Type: models.DiscountFixed, Amount: dec("4")},
		{Code: "SPRING10", Type: models.DiscountPercentage, Amount: dec("10")},
	}
	sub, _, total = CartTotals(items, discounts)
	assert.Equal(t, "24.00", sub.StringFixed(2))
	assert.Equal(t, "18.00", total.StringFixed(2))

	// Reversed order gives a different (still non-negative) result.
	reversed := []models.DiscountEntry{discounts[1], discounts[0]}
	_, _, total = CartTotals(items, reversed)
	assert.Equal(t, "17.60", total.StringFixed(2))
}

func TestCartTotalsFloorZero(t *testing.T) {
	items := []LineItem{{Price: dec("3.00"), Quantity: 1}}
	discounts := []models.DiscountEntry{{Code: "BIG", Type: models.DiscountFixed, Amount: dec("100")}}
	_, _, total := CartTotals(items, discounts)
	assert.Equal(t, "0.00", total.StringFixed(2))
}
