// Package inventory is the only authorized path for mutating product stock.
// Availability is derived from stock inside the same store update, so the two
// can never disagree.
package inventory

import (
	"context"

	"github.com/rs/zerolog/log"

	"shop-service/apperr"
	"shop-service/models"
)

// StockStore is the persistence contract the ledger runs on. ReserveStock
// must be a single conditional update (decrement only while stock >= qty),
// never a read followed by a write.
type StockStore interface {
	ReserveStock(ctx context.Context, productID int64, qty int) error
	ReleaseStock(ctx context.Context, productID int64, qty int) error
	StockLevels(ctx context.Context, productIDs []int64) (map[int64]int, error)
}

// Item is one line of a batch availability check.
type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type Ledger struct {
	store StockStore
}

func NewLedger(store StockStore) *Ledger {
	return &Ledger{store: store}
}

// ReserveStock atomically decrements stock by qty if at least qty units are
// on hand. Insufficient stock is a business error the user can retry, not a
// system fault; under concurrent reservations at most one caller wins the
// last units.
func (l *Ledger) ReserveStock(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return apperr.Newf(apperr.KindInvalidQuantity, "reserve quantity must be positive, got %d", qty)
	}
	if err := l.store.ReserveStock(ctx, productID, qty); err != nil {
		return err
	}
	log.Debug().Int64("productID", productID).Int("qty", qty).Msg("stock reserved")
	return nil
}

// ReleaseStock credits qty units back. The ledger does not deduplicate
// release calls; callers track which reservations they have already released.
func (l *Ledger) ReleaseStock(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return apperr.Newf(apperr.KindInvalidQuantity, "release quantity must be positive, got %d", qty)
	}
	if err := l.store.ReleaseStock(ctx, productID, qty); err != nil {
		return err
	}
	log.Debug().Int64("productID", productID).Int("qty", qty).Msg("stock released")
	return nil
}

// CheckInventory is a read-only batch check. It never mutates and never
// fails on unavailable items; a missing product is reported as unavailable
// with zero remaining stock.
func (l *Ledger) CheckInventory(ctx context.Context, items []Item) ([]models.StockLevel, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	levels, err := l.store.StockLevels(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.StockLevel, 0, len(items))
	for _, it := range items {
		remaining, ok := levels[it.ProductID]
		out = append(out, models.StockLevel{
			ProductID:      it.ProductID,
			Available:      ok && remaining >= it.Quantity,
			RemainingStock: remaining,
		})
	}
	return out, nil
}
