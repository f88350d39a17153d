package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"shop-service/apperr"
	"shop-service/models"
)

type ProductStore struct {
	db *DB
}

func NewProductStore(db *DB) *ProductStore {
	return &ProductStore{db: db}
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (s *ProductStore) Create(ctx context.Context, p *models.Product) error {
	p.Availability = models.AvailabilityForStock(p.Stock)
	res, err := s.db.SQL.ExecContext(ctx, `
		INSERT INTO products (sku, slug, name, description, price, stock, availability, image)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SKU, p.Slug, p.Name, p.Description, p.Price, p.Stock, p.Availability, p.Image)
	if err != nil {
		if isDuplicateKey(err) {
			return apperr.Newf(apperr.KindConflict, "product with this sku or slug already exists")
		}
		return fmt.Errorf("insert product: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *ProductStore) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := s.db.SQL.GetContext(ctx, &p,
		`SELECT * FROM products WHERE id = ? AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "product %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

func (s *ProductStore) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var p models.Product
	err := s.db.SQL.GetContext(ctx, &p,
		`SELECT * FROM products WHERE slug = ? AND deleted_at IS NULL`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "product %q not found", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %q: %w", slug, err)
	}
	return &p, nil
}

func (s *ProductStore) List(ctx context.Context, limit, offset int) ([]models.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var products []models.Product
	err := s.db.SQL.SelectContext(ctx, &products, `
		SELECT * FROM products
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Update applies an admin edit. Stock set here still recomputes availability
// in the same statement; the derived field is never written independently.
func (s *ProductStore) Update(ctx context.Context, p *models.Product) error {
	res, err := s.db.SQL.ExecContext(ctx, `
		UPDATE products
		SET sku = ?, slug = ?, name = ?, description = ?, price = ?, image = ?,
		    stock = ?,
		    availability = IF(? > 0, 'in-stock', 'out-of-stock')
		WHERE id = ? AND deleted_at IS NULL`,
		p.SKU, p.Slug, p.Name, p.Description, p.Price, p.Image,
		p.Stock, p.Stock, p.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return apperr.Newf(apperr.KindConflict, "product with this sku or slug already exists")
		}
		return fmt.Errorf("update product %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Newf(apperr.KindNotFound, "product %d not found", p.ID)
	}
	return nil
}

func (s *ProductStore) SoftDelete(ctx context.Context, id int64) error {
	res, err := s.db.SQL.ExecContext(ctx,
		`UPDATE products SET deleted_at = NOW() WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Newf(apperr.KindNotFound, "product %d not found", id)
	}
	return nil
}

// reserveStock is the single conditional update behind every reservation: the
// precondition (stock >= qty) and the decrement are one indivisible
// statement, so two racing reservations can never both win the last units.
// MySQL applies SET clauses left to right, so the availability IF sees the
// already-decremented stock.
func reserveStock(ctx context.Context, ext sqlx.ExtContext, productID int64, qty int) error {
	res, err := ext.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?,
		    availability = IF(stock > 0, 'in-stock', 'out-of-stock')
		WHERE id = ? AND deleted_at IS NULL AND stock >= ?`,
		qty, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// The conditional update rejected us: find out which precondition.
		var exists bool
		if err := sqlx.GetContext(ctx, ext, &exists,
			`SELECT EXISTS(SELECT 1 FROM products WHERE id = ? AND deleted_at IS NULL)`, productID); err != nil {
			return fmt.Errorf("check product %d: %w", productID, err)
		}
		if !exists {
			return apperr.Newf(apperr.KindNotFound, "product %d not found", productID)
		}
		return apperr.Newf(apperr.KindInsufficientStock, "insufficient stock for product %d", productID)
	}
	return nil
}

// releaseStock credits qty units back. Soft-deleted products are restocked
// too: a cancel or refund must go through even when the catalog entry was
// retired after the order was placed. A missing row is a logged no-op.
func releaseStock(ctx context.Context, ext sqlx.ExtContext, productID int64, qty int) error {
	res, err := ext.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?,
		    availability = IF(stock > 0, 'in-stock', 'out-of-stock')
		WHERE id = ?`,
		qty, productID)
	if err != nil {
		return fmt.Errorf("release stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		log.Warn().Int64("productID", productID).Int("quantity", qty).
			Msg("stock release skipped, product row missing")
	}
	return nil
}

// ReserveStock implements inventory.StockStore.
func (s *ProductStore) ReserveStock(ctx context.Context, productID int64, qty int) error {
	return reserveStock(ctx, s.db.SQL, productID, qty)
}

// ReleaseStock implements inventory.StockStore.
func (s *ProductStore) ReleaseStock(ctx context.Context, productID int64, qty int) error {
	return releaseStock(ctx, s.db.SQL, productID, qty)
}

// StockLevels implements inventory.StockStore. Soft-deleted products are
// simply absent from the result.
func (s *ProductStore) StockLevels(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	levels := make(map[int64]int, len(productIDs))
	if len(productIDs) == 0 {
		return levels, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, stock FROM products WHERE id IN (?) AND deleted_at IS NULL`, productIDs)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.SQL.QueryxContext(ctx, s.db.SQL.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("stock levels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			return nil, err
		}
		levels[id] = stock
	}
	return levels, rows.Err()
}
