package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"shop-service/apperr"
	"shop-service/cart"
	"shop-service/models"
)

type CartStore struct {
	db *DB
}

func NewCartStore(db *DB) *CartStore {
	return &CartStore{db: db}
}

// GetActive finds the owner's single active cart. A user match takes
// precedence over a session match when both identities are present.
func (s *CartStore) GetActive(ctx context.Context, owner cart.Owner) (*models.Cart, error) {
	var (
		c   models.Cart
		err error
	)
	switch {
	case owner.UserID != nil:
		err = s.db.SQL.GetContext(ctx, &c, `
			SELECT * FROM carts
			WHERE user_id = ? AND status = 'active'
			ORDER BY updated_at DESC LIMIT 1`, *owner.UserID)
	case owner.SessionID != nil:
		err = s.db.SQL.GetContext(ctx, &c, `
			SELECT * FROM carts
			WHERE session_id = ? AND user_id IS NULL AND status = 'active'
			ORDER BY updated_at DESC LIMIT 1`, *owner.SessionID)
	default:
		return nil, apperr.New(apperr.KindValidation, "cart owner must have a user or session identity")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "no active cart")
	}
	if err != nil {
		return nil, fmt.Errorf("get active cart: %w", err)
	}
	if err := s.loadItems(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CartStore) loadItems(ctx context.Context, c *models.Cart) error {
	err := s.db.SQL.SelectContext(ctx, &c.Items, `
		SELECT * FROM cart_items
		WHERE cart_id = ?
		ORDER BY position, id`, c.ID)
	if err != nil {
		return fmt.Errorf("load cart %d items: %w", c.ID, err)
	}
	return nil
}

func (s *CartStore) Create(ctx context.Context, c *models.Cart) error {
	if c.Status == "" {
		c.Status = models.CartStatusActive
	}
	return s.db.Transact(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO carts (user_id, session_id, status, discounts,
			                   sub_total, total_quantity, total_price, refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, NOW())`,
			c.UserID, c.SessionID, c.Status, c.Discounts,
			c.SubTotal, c.TotalQuantity, c.TotalPrice)
		if err != nil {
			// The active_marker unique keys admit one active cart per owner;
			// a second insert loses to the first.
			if isDuplicateKey(err) {
				return apperr.New(apperr.KindConflict, "owner already has an active cart")
			}
			return fmt.Errorf("insert cart: %w", err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		c.Version = 1
		return insertCartItems(ctx, tx, c)
	})
}

// Save writes the whole cart under an optimistic version check. The version
// bump and the check are one UPDATE, so concurrent saves of the same version
// leave exactly one winner; the loser gets a ConcurrencyConflict.
func (s *CartStore) Save(ctx context.Context, c *models.Cart) error {
	return s.db.Transact(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE carts
			SET user_id = ?, session_id = ?, status = ?, discounts = ?,
			    sub_total = ?, total_quantity = ?, total_price = ?,
			    refreshed_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			c.UserID, c.SessionID, c.Status, c.Discounts,
			c.SubTotal, c.TotalQuantity, c.TotalPrice,
			c.RefreshedAt, c.ID, c.Version)
		if err != nil {
			return fmt.Errorf("update cart %d: %w", c.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`SELECT EXISTS(SELECT 1 FROM carts WHERE id = ?)`, c.ID); err != nil {
				return fmt.Errorf("check cart %d: %w", c.ID, err)
			}
			if !exists {
				return apperr.Newf(apperr.KindNotFound, "cart %d not found", c.ID)
			}
			return apperr.New(apperr.KindConcurrencyConflict, "cart was modified concurrently")
		}
		c.Version++

		// Lines are replaced wholesale; the cart row's version guards the set.
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, c.ID); err != nil {
			return fmt.Errorf("clear cart %d items: %w", c.ID, err)
		}
		return insertCartItems(ctx, tx, c)
	})
}

func insertCartItems(ctx context.Context, tx *sqlx.Tx, c *models.Cart) error {
	for i := range c.Items {
		item := &c.Items[i]
		item.CartID = c.ID
		item.Position = i
		res, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, product_id, quantity, price, name, image, discount, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.CartID, item.ProductID, item.Quantity, item.Price,
			item.Name, item.Image, item.Discount, item.Position)
		if err != nil {
			if isDuplicateKey(err) {
				return apperr.Newf(apperr.KindConflict, "duplicate line for product %d", item.ProductID)
			}
			return fmt.Errorf("insert cart item: %w", err)
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, cartID int64) error {
	res, err := s.db.SQL.ExecContext(ctx, `DELETE FROM carts WHERE id = ?`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart %d: %w", cartID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Newf(apperr.KindNotFound, "cart %d not found", cartID)
	}
	return nil
}

// AbandonStale marks active carts untouched since the cutoff as abandoned.
// Run from a background sweep, not the request path.
func (s *CartStore) AbandonStale(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := s.db.SQL.ExecContext(ctx, `
		UPDATE carts SET status = 'abandoned'
		WHERE status = 'active' AND updated_at < NOW() - INTERVAL ? DAY`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("abandon stale carts: %w", err)
	}
	return res.RowsAffected()
}
