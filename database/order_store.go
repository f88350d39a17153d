package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"shop-service/apperr"
	"shop-service/models"
)

type OrderStore struct {
	db *DB
}

func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

// orderRow flattens the ship_* columns next to the order columns so sqlx can
// scan a full row; the nested address is reassembled afterwards.
type orderRow struct {
	models.Order
	models.ShippingAddress
}

func (r *orderRow) toOrder() *models.Order {
	o := r.Order
	o.ShippingAddress = r.ShippingAddress
	return &o
}

// Create inserts the order, its items and the initial history rows, reserving
// stock for every line in the same transaction. Any failed reservation rolls
// the whole order back.
func (s *OrderStore) Create(ctx context.Context, o *models.Order) error {
	return s.db.Transact(ctx, func(tx *sqlx.Tx) error {
		for _, item := range o.Items {
			if err := reserveStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO orders (order_number, user_id, status, payment_status,
			                    items_price, tax_price, shipping_price, discount_price, total_price,
			                    ship_full_name, ship_line1, ship_line2, ship_city, ship_postal_code, ship_country,
			                    payment_method)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.OrderNumber, o.UserID, o.Status, o.PaymentStatus,
			o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.DiscountPrice, o.TotalPrice,
			o.ShippingAddress.FullName, o.ShippingAddress.Line1, o.ShippingAddress.Line2,
			o.ShippingAddress.City, o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
			o.PaymentMethod)
		if err != nil {
			if isDuplicateKey(err) {
				return apperr.Newf(apperr.KindConflict, "order number %s already exists", o.OrderNumber)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		if o.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		o.Version = 1

		for i := range o.Items {
			item := &o.Items[i]
			item.OrderID = o.ID
			res, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, product_id, sku, name, price, image, quantity)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				item.OrderID, item.ProductID, item.SKU, item.Name, item.Price, item.Image, item.Quantity)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			if item.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}

		return insertStatusEvents(ctx, tx, o.ID, o.StatusHistory)
	})
}

func insertStatusEvents(ctx context.Context, tx *sqlx.Tx, orderID int64, events []models.StatusEvent) error {
	for _, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, status, description, actor_id)
			VALUES (?, ?, ?, ?)`,
			orderID, ev.Status, ev.Description, ev.ActorID)
		if err != nil {
			return fmt.Errorf("insert status event: %w", err)
		}
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	var row orderRow
	err := s.db.SQL.GetContext(ctx, &row, `SELECT * FROM orders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "order %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	o := row.toOrder()
	if err := s.loadDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderStore) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	var row orderRow
	err := s.db.SQL.GetContext(ctx, &row, `SELECT * FROM orders WHERE order_number = ?`, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "order %s not found", number)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", number, err)
	}
	o := row.toOrder()
	if err := s.loadDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderStore) loadDetails(ctx context.Context, o *models.Order) error {
	err := s.db.SQL.SelectContext(ctx, &o.Items,
		`SELECT * FROM order_items WHERE order_id = ? ORDER BY id`, o.ID)
	if err != nil {
		return fmt.Errorf("load order %d items: %w", o.ID, err)
	}
	err = s.db.SQL.SelectContext(ctx, &o.StatusHistory,
		`SELECT * FROM order_status_history WHERE order_id = ? ORDER BY id`, o.ID)
	if err != nil {
		return fmt.Errorf("load order %d history: %w", o.ID, err)
	}
	return nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	return s.list(ctx, `SELECT * FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, clampLimit(limit), offset)
}

func (s *OrderStore) ListByStatus(ctx context.Context, status models.OrderStatus, limit, offset int) ([]models.Order, error) {
	return s.list(ctx, `SELECT * FROM orders WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		status, clampLimit(limit), offset)
}

func (s *OrderStore) ListByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.Order, error) {
	return s.list(ctx, `SELECT * FROM orders WHERE created_at BETWEEN ? AND ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		from, to, clampLimit(limit), offset)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

// list returns order headers without items or history; detail loading is a
// per-order concern.
func (s *OrderStore) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	var rows []orderRow
	if err := s.db.SQL.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]models.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, *rows[i].toOrder())
	}
	return orders, nil
}

// Update writes the order's mutable fields under an optimistic version check,
// appends the given history events and, when release is set, credits every
// line's quantity back in the same transaction.
func (s *OrderStore) Update(ctx context.Context, o *models.Order, events []models.StatusEvent, release bool) error {
	return s.db.Transact(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = ?, payment_status = ?, refund_amount = ?,
			    is_paid = ?, paid_at = ?, payment_id = ?, payment_currency = ?,
			    tracking_number = ?, shipping_provider = ?, shipped_at = ?, delivered_at = ?,
			    stock_released = ?, cancellation_note = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			o.Status, o.PaymentStatus, o.RefundAmount,
			o.IsPaid, o.PaidAt, o.PaymentID, o.PaymentCurrency,
			o.TrackingNumber, o.ShippingProvider, o.ShippedAt, o.DeliveredAt,
			o.StockReleased, o.CancellationNote, o.ID, o.Version)
		if err != nil {
			return fmt.Errorf("update order %d: %w", o.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)`, o.ID); err != nil {
				return fmt.Errorf("check order %d: %w", o.ID, err)
			}
			if !exists {
				return apperr.Newf(apperr.KindNotFound, "order %d not found", o.ID)
			}
			return apperr.New(apperr.KindConcurrencyConflict, "order was modified concurrently")
		}
		o.Version++

		if err := insertStatusEvents(ctx, tx, o.ID, events); err != nil {
			return err
		}
		for _, ev := range events {
			ev.OrderID = o.ID
			o.StatusHistory = append(o.StatusHistory, ev)
		}

		if release {
			for _, item := range o.Items {
				if err := releaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
