package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"shop-service/apperr"
	"shop-service/models"
)

type ReviewStore struct {
	db *DB
}

func NewReviewStore(db *DB) *ReviewStore {
	return &ReviewStore{db: db}
}

// selectReview computes the likes/dislikes counts inline; they are never
// stored, only derived from the reactions table.
const selectReview = `
	SELECT r.id, r.product_id, r.user_id, r.rating, r.title,
	       COALESCE(r.comment, '') AS comment,
	       (SELECT COUNT(*) FROM review_reactions x WHERE x.review_id = r.id AND x.kind = 'like') AS likes,
	       (SELECT COUNT(*) FROM review_reactions x WHERE x.review_id = r.id AND x.kind = 'dislike') AS dislikes,
	       r.created_at, r.updated_at, r.deleted_at
	FROM reviews r`

// Create inserts the review and recomputes the product's rating aggregate in
// the same transaction. One review per user per product.
func (s *ReviewStore) Create(ctx context.Context, r *models.Review) error {
	return s.db.Transact(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (product_id, user_id, rating, title, comment)
			VALUES (?, ?, ?, ?, ?)`,
			r.ProductID, r.UserID, r.Rating, r.Title, r.Comment)
		if err != nil {
			if isDuplicateKey(err) {
				return apperr.Newf(apperr.KindConflict, "user %d already reviewed product %d", r.UserID, r.ProductID)
			}
			return fmt.Errorf("insert review: %w", err)
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		return recomputeProductRating(ctx, tx, r.ProductID)
	})
}

func (s *ReviewStore) GetByID(ctx context.Context, id int64) (*models.Review, error) {
	var r models.Review
	err := s.db.SQL.GetContext(ctx, &r, selectReview+` WHERE r.id = ? AND r.deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "review %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review %d: %w", id, err)
	}
	return &r, nil
}

func (s *ReviewStore) ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.SQL.SelectContext(ctx, &reviews,
		selectReview+` WHERE r.product_id = ? AND r.deleted_at IS NULL
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ? OFFSET ?`,
		productID, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews for product %d: %w", productID, err)
	}
	return reviews, nil
}

// Update rewrites the review body and recomputes the product aggregate.
func (s *ReviewStore) Update(ctx context.Context, r *models.Review) error {
	return s.db.Transact(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE reviews SET rating = ?, title = ?, comment = ?
			WHERE id = ? AND deleted_at IS NULL`,
			r.Rating, r.Title, r.Comment, r.ID)
		if err != nil {
			return fmt.Errorf("update review %d: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Newf(apperr.KindNotFound, "review %d not found", r.ID)
		}
		return recomputeProductRating(ctx, tx, r.ProductID)
	})
}

// SoftDelete excludes the review from the aggregate without losing the row.
func (s *ReviewStore) SoftDelete(ctx context.Context, id int64) error {
	return s.db.Transact(ctx, func(tx *sqlx.Tx) error {
		var productID int64
		err := tx.GetContext(ctx, &productID,
			`SELECT product_id FROM reviews WHERE id = ? AND deleted_at IS NULL`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Newf(apperr.KindNotFound, "review %d not found", id)
		}
		if err != nil {
			return fmt.Errorf("get review %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE reviews SET deleted_at = NOW() WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete review %d: %w", id, err)
		}
		return recomputeProductRating(ctx, tx, productID)
	})
}

// SetReaction records a user's reaction. Reacting the same way twice removes
// the reaction; reacting the other way flips it. One reaction per user per
// review either way.
func (s *ReviewStore) SetReaction(ctx context.Context, reviewID, userID int64, kind models.ReactionKind) error {
	return s.db.Transact(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM reviews WHERE id = ? AND deleted_at IS NULL)`, reviewID); err != nil {
			return fmt.Errorf("check review %d: %w", reviewID, err)
		}
		if !exists {
			return apperr.Newf(apperr.KindNotFound, "review %d not found", reviewID)
		}

		var current models.ReactionKind
		err := tx.GetContext(ctx, &current, `
			SELECT kind FROM review_reactions
			WHERE review_id = ? AND user_id = ? FOR UPDATE`, reviewID, userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO review_reactions (review_id, user_id, kind)
				VALUES (?, ?, ?)`, reviewID, userID, kind)
		case err != nil:
			return fmt.Errorf("get reaction: %w", err)
		case current == kind:
			_, err = tx.ExecContext(ctx, `
				DELETE FROM review_reactions
				WHERE review_id = ? AND user_id = ?`, reviewID, userID)
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE review_reactions SET kind = ?
				WHERE review_id = ? AND user_id = ?`, kind, reviewID, userID)
		}
		if err != nil {
			return fmt.Errorf("set reaction on review %d: %w", reviewID, err)
		}
		return nil
	})
}

// recomputeProductRating rebuilds the aggregate from all live reviews rather
// than applying a delta; the full aggregation cannot drift. A product with no
// reviews shows the neutral 4.50 default and quantity 0.
func recomputeProductRating(ctx context.Context, tx *sqlx.Tx, productID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET ratings_average = COALESCE(
		        (SELECT ROUND(AVG(rating), 2) FROM reviews
		         WHERE product_id = ? AND deleted_at IS NULL), 4.50),
		    ratings_quantity = (SELECT COUNT(*) FROM reviews
		                        WHERE product_id = ? AND deleted_at IS NULL)
		WHERE id = ?`,
		productID, productID, productID)
	if err != nil {
		return fmt.Errorf("recompute rating for product %d: %w", productID, err)
	}
	return nil
}
