// Package reviews manages product reviews and their reactions. The product's
// rating aggregate is owned by the store and rebuilt by full aggregation on
// every mutation, so the displayed average can never drift from the reviews.
package reviews

import (
	"context"

	"github.com/rs/zerolog/log"

	"shop-service/apperr"
	"shop-service/models"
)

// Store persists reviews. Every mutation must recompute the reviewed
// product's ratings_average and ratings_quantity in the same transaction.
type Store interface {
	Create(ctx context.Context, r *models.Review) error
	GetByID(ctx context.Context, id int64) (*models.Review, error)
	ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]models.Review, error)
	Update(ctx context.Context, r *models.Review) error
	SoftDelete(ctx context.Context, id int64) error
	SetReaction(ctx context.Context, reviewID, userID int64, kind models.ReactionKind) error
}

type ProductReader interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

type Service struct {
	store    Store
	products ProductReader
}

func NewService(store Store, products ProductReader) *Service {
	return &Service{store: store, products: products}
}

type CreateInput struct {
	ProductID int64  `json:"product_id"`
	Rating    int    `json:"rating"`
	Title     string `json:"title"`
	Comment   string `json:"comment"`
}

type UpdateInput struct {
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
}

func validRating(rating int) error {
	if rating < 1 || rating > 5 {
		return apperr.Newf(apperr.KindValidation, "rating must be between 1 and 5, got %d", rating)
	}
	return nil
}

// Create adds a user's review of a product. One review per user per product;
// the store rejects a second with a conflict.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*models.Review, error) {
	if err := validRating(in.Rating); err != nil {
		return nil, err
	}
	if _, err := s.products.GetByID(ctx, in.ProductID); err != nil {
		return nil, err
	}

	r := &models.Review{
		ProductID: in.ProductID,
		UserID:    userID,
		Rating:    in.Rating,
		Title:     in.Title,
		Comment:   in.Comment,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	log.Info().Int64("productID", r.ProductID).Int64("userID", userID).
		Int("rating", r.Rating).Msg("review created")
	return r, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Review, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]models.Review, error) {
	return s.store.ListByProduct(ctx, productID, limit, offset)
}

// Update rewrites a review. Only the author may edit it; admins may edit any.
func (s *Service) Update(ctx context.Context, reviewID, userID int64, isAdmin bool, in UpdateInput) (*models.Review, error) {
	if err := validRating(in.Rating); err != nil {
		return nil, err
	}
	r, err := s.store.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID && !isAdmin {
		return nil, apperr.New(apperr.KindUnauthorized, "not the review author")
	}

	r.Rating = in.Rating
	r.Title = in.Title
	r.Comment = in.Comment
	if err := s.store.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete soft-deletes a review, removing it from the product aggregate. Same
// ownership rule as Update.
func (s *Service) Delete(ctx context.Context, reviewID, userID int64, isAdmin bool) error {
	r, err := s.store.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if r.UserID != userID && !isAdmin {
		return apperr.New(apperr.KindUnauthorized, "not the review author")
	}
	return s.store.SoftDelete(ctx, reviewID)
}

// ToggleLike likes the review, or removes the like if already present. A
// standing dislike flips to a like.
func (s *Service) ToggleLike(ctx context.Context, reviewID, userID int64) (*models.Review, error) {
	return s.toggle(ctx, reviewID, userID, models.ReactionLike)
}

// ToggleDislike mirrors ToggleLike for dislikes.
func (s *Service) ToggleDislike(ctx context.Context, reviewID, userID int64) (*models.Review, error) {
	return s.toggle(ctx, reviewID, userID, models.ReactionDislike)
}

func (s *Service) toggle(ctx context.Context, reviewID, userID int64, kind models.ReactionKind) (*models.Review, error) {
	if err := s.store.SetReaction(ctx, reviewID, userID, kind); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, reviewID)
}
