package reviews

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/apperr"
	"shop-service/models"
)

// memReviewStore mirrors the SQL store's contract: mutations recompute the
// product aggregate, reactions are one-per-user with toggle semantics.
type memReviewStore struct {
	mu        sync.Mutex
	nextID    int64
	reviews   map[int64]*models.Review
	reactions map[int64]map[int64]models.ReactionKind // reviewID -> userID -> kind
	products  map[int64]*models.Product
}

func newMemReviewStore(products map[int64]*models.Product) *memReviewStore {
	return &memReviewStore{
		nextID:    1,
		reviews:   make(map[int64]*models.Review),
		reactions: make(map[int64]map[int64]models.ReactionKind),
		products:  products,
	}
}

func (s *memReviewStore) Create(_ context.Context, r *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reviews {
		if !existing.IsDeleted() && existing.ProductID == r.ProductID && existing.UserID == r.UserID {
			return apperr.New(apperr.KindConflict, "already reviewed")
		}
	}
	r.ID = s.nextID
	s.nextID++
	cp := *r
	s.reviews[r.ID] = &cp
	s.recompute(r.ProductID)
	return nil
}

func (s *memReviewStore) GetByID(_ context.Context, id int64) (*models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok || r.IsDeleted() {
		return nil, apperr.Newf(apperr.KindNotFound, "review %d not found", id)
	}
	cp := *r
	cp.Likes, cp.Dislikes = s.counts(id)
	return &cp, nil
}

func (s *memReviewStore) ListByProduct(_ context.Context, productID int64, _, _ int) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Review
	for _, r := range s.reviews {
		if r.ProductID == productID && !r.IsDeleted() {
			cp := *r
			cp.Likes, cp.Dislikes = s.counts(r.ID)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *memReviewStore) Update(_ context.Context, r *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reviews[r.ID]
	if !ok || cur.IsDeleted() {
		return apperr.Newf(apperr.KindNotFound, "review %d not found", r.ID)
	}
	cur.Rating = r.Rating
	cur.Title = r.Title
	cur.Comment = r.Comment
	s.recompute(cur.ProductID)
	return nil
}

func (s *memReviewStore) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok || r.IsDeleted() {
		return apperr.Newf(apperr.KindNotFound, "review %d not found", id)
	}
	now := time.Now()
	r.DeletedAt = &now
	s.recompute(r.ProductID)
	return nil
}

func (s *memReviewStore) SetReaction(_ context.Context, reviewID, userID int64, kind models.ReactionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[reviewID]
	if !ok || r.IsDeleted() {
		return apperr.Newf(apperr.KindNotFound, "review %d not found", reviewID)
	}
	m := s.reactions[reviewID]
	if m == nil {
		m = make(map[int64]models.ReactionKind)
		s.reactions[reviewID] = m
	}
	if current, ok := m[userID]; ok && current == kind {
		delete(m, userID)
		return nil
	}
	m[userID] = kind
	return nil
}

func (s *memReviewStore) counts(reviewID int64) (likes, dislikes int) {
	for _, kind := range s.reactions[reviewID] {
		if kind == models.ReactionLike {
			likes++
		} else {
			dislikes++
		}
	}
	return likes, dislikes
}

// recompute rebuilds the aggregate by full aggregation, matching the SQL
// store: average over live reviews, 4.50 default when none remain.
func (s *memReviewStore) recompute(productID int64) {
	p, ok := s.products[productID]
	if !ok {
		return
	}
	sum, n := 0, 0
	for _, r := range s.reviews {
		if r.ProductID == productID && !r.IsDeleted() {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		p.RatingsAverage = decimal.RequireFromString("4.50")
		p.RatingsQuantity = 0
		return
	}
	avg := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(n))).Round(2)
	p.RatingsAverage = avg
	p.RatingsQuantity = n
}

type memProducts struct {
	products map[int64]*models.Product
}

func (m memProducts) GetByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok || p.IsDeleted() {
		return nil, apperr.Newf(apperr.KindNotFound, "product %d not found", id)
	}
	cp := *p
	return &cp, nil
}

func newFixture() (*Service, *memReviewStore, *models.Product) {
	p := &models.Product{
		ID:              1,
		SKU:             "SKU-1",
		Name:            "Widget",
		Price:           decimal.RequireFromString("10.00"),
		Stock:           5,
		RatingsAverage:  decimal.RequireFromString("4.50"),
		RatingsQuantity: 0,
	}
	products := map[int64]*models.Product{1: p}
	store := newMemReviewStore(products)
	return NewService(store, memProducts{products: products}), store, p
}

func TestCreateRecomputesAggregate(t *testing.T) {
	ctx := context.Background()
	svc, _, p := newFixture()

	ratings := []int{5, 3, 4}
	for i, rating := range ratings {
		_, err := svc.Create(ctx, int64(i+1), CreateInput{
			ProductID: 1, Rating: rating, Title: fmt.Sprintf("review %d", i+1),
		})
		require.NoError(t, err)
	}

	assert.Equal(t, "4.00", p.RatingsAverage.StringFixed(2))
	assert.Equal(t, 3, p.RatingsQuantity)
}

func TestDeleteRestoresDefaultWhenLastReviewGoes(t *testing.T) {
	ctx := context.Background()
	svc, _, p := newFixture()

	r, err := svc.Create(ctx, 1, CreateInput{ProductID: 1, Rating: 2})
	require.NoError(t, err)
	assert.Equal(t, "2.00", p.RatingsAverage.StringFixed(2))
	assert.Equal(t, 1, p.RatingsQuantity)

	require.NoError(t, svc.Delete(ctx, r.ID, 1, false))
	assert.Equal(t, "4.50", p.RatingsAverage.StringFixed(2))
	assert.Equal(t, 0, p.RatingsQuantity)
}

func TestDeleteOneOfSeveralRecomputes(t *testing.T) {
	ctx := context.Background()
	svc, _, p := newFixture()

	_, err := svc.Create(ctx, 1, CreateInput{ProductID: 1, Rating: 5})
	require.NoError(t, err)
	mid, err := svc.Create(ctx, 2, CreateInput{ProductID: 1, Rating: 3})
	require.NoError(t, err)
	_, err = svc.Create(ctx, 3, CreateInput{ProductID: 1, Rating: 4})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, mid.ID, 2, false))
	assert.Equal(t, "4.50", p.RatingsAverage.StringFixed(2))
	assert.Equal(t, 2, p.RatingsQuantity)
}

func TestUpdateRecomputesAggregate(t *testing.T) {
	ctx := context.Background()
	svc, _, p := newFixture()

	r, err := svc.Create(ctx, 1, CreateInput{ProductID: 1, Rating: 2})
	require.NoError(t, err)

	_, err = svc.Update(ctx, r.ID, 1, false, UpdateInput{Rating: 5, Title: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, "5.00", p.RatingsAverage.StringFixed(2))
}

func TestRatingValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	for _, rating := range []int{0, -1, 6} {
		_, err := svc.Create(ctx, 1, CreateInput{ProductID: 1, Rating: rating})
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), "rating %d", rating)
	}
}

func TestOneReviewPerUserPerProduct(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	_, err := svc.Create(ctx, 1, CreateInput{ProductID: 1, Rating: 4})
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, CreateInput{ProductID: 1, Rating: 5})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestOwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	r, err := svc.Create(ctx, 1, CreateInput{ProductID: 1, Rating: 4})
	require.NoError(t, err)

	_, err = svc.Update(ctx, r.ID, 2, false, UpdateInput{Rating: 1})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	err = svc.Delete(ctx, r.ID, 2, false)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	// Admins may moderate any review.
	_, err = svc.Update(ctx, r.ID, 2, true, UpdateInput{Rating: 3, Title: "moderated"})
	assert.NoError(t, err)
	assert.NoError(t, svc.Delete(ctx, r.ID, 2, true))
}

func TestReactionToggleAndExclusivity(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	r, err := svc.Create(ctx, 1, CreateInput{ProductID: 1, Rating: 4})
	require.NoError(t, err)

	liked, err := svc.ToggleLike(ctx, r.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, liked.Likes)
	assert.Equal(t, 0, liked.Dislikes)

	// Same reaction again removes it.
	unliked, err := svc.ToggleLike(ctx, r.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, unliked.Likes)

	// Like then dislike flips, never double-counts.
	_, err = svc.ToggleLike(ctx, r.ID, 42)
	require.NoError(t, err)
	flipped, err := svc.ToggleDislike(ctx, r.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, flipped.Likes)
	assert.Equal(t, 1, flipped.Dislikes)

	// A second user's reactions are independent.
	both, err := svc.ToggleLike(ctx, r.ID, 43)
	require.NoError(t, err)
	assert.Equal(t, 1, both.Likes)
	assert.Equal(t, 1, both.Dislikes)
}

func TestReviewForMissingProduct(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	_, err := svc.Create(ctx, 1, CreateInput{ProductID: 9, Rating: 4})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
