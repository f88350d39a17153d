// Package cart maintains one mutable active cart per user (or guest
// session), kept consistent with live inventory. Every mutating operation
// ends with an unconditional totals recompute through the pricing engine, so
// the derived fields can never silently drift from the items.
package cart

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"shop-service/apperr"
	"shop-service/models"
	"shop-service/pricing"
)

// PricesExpireAfter is how long snapshot prices are trusted before
// ValidateCart reports PRICES_EXPIRED.
const PricesExpireAfter = 24 * time.Hour

// Owner identifies whose active cart an operation targets: a user or an
// anonymous guest session, never both.
type Owner struct {
	UserID    *int64
	SessionID *string
}

func UserOwner(userID int64) Owner        { return Owner{UserID: &userID} }
func SessionOwner(sessionID string) Owner { return Owner{SessionID: &sessionID} }

// Store persists carts. Create must reject a second active cart for the same
// owner with a Conflict error, keeping first access race-safe. Save must
// verify the cart's version and reject stale writes with a
// ConcurrencyConflict error so overlapping requests from the same user cannot
// silently lose updates.
type Store interface {
	GetActive(ctx context.Context, owner Owner) (*models.Cart, error)
	Create(ctx context.Context, c *models.Cart) error
	Save(ctx context.Context, c *models.Cart) error
	Delete(ctx context.Context, cartID int64) error
}

// ProductReader is the read-only product lookup the cart needs for snapshots
// and stock validation.
type ProductReader interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

type Service struct {
	store    Store
	products ProductReader
	now      func() time.Time
}

func NewService(store Store, products ProductReader) *Service {
	return &Service{store: store, products: products, now: time.Now}
}

// Get returns the owner's active cart, creating an empty one lazily on first
// access.
func (s *Service) Get(ctx context.Context, owner Owner) (*models.Cart, error) {
	c, err := s.store.GetActive(ctx, owner)
	if err == nil {
		return c, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	c = &models.Cart{
		UserID:      owner.UserID,
		SessionID:   owner.SessionID,
		Status:      models.CartStatusActive,
		RefreshedAt: s.now(),
	}
	s.recompute(c)
	if err := s.store.Create(ctx, c); err != nil {
		// Another request created the active cart between our lookup and
		// the insert; the store keeps one active cart per owner, so adopt
		// the winner's.
		if apperr.IsKind(err, apperr.KindConflict) {
			return s.store.GetActive(ctx, owner)
		}
		return nil, err
	}
	return c, nil
}

// AddItem puts qty units of a product into the cart, snapshotting price,
// name and image at the moment of add. The granted quantity is clamped to
// available stock rather than hard-failing on partial availability; the
// caller sees the clamp in the returned cart.
func (s *Service) AddItem(ctx context.Context, owner Owner, productID int64, qty int) (*models.Cart, error) {
	if qty <= 0 {
		return nil, apperr.Newf(apperr.KindInvalidQuantity, "quantity must be positive, got %d", qty)
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Stock <= 0 {
		return nil, apperr.Newf(apperr.KindInsufficientStock, "product %q is out of stock", p.Name)
	}

	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	if line := c.Item(productID); line != nil {
		merged := line.Quantity + qty
		if merged > p.Stock {
			merged = p.Stock
		}
		line.Quantity = merged
	} else {
		granted := qty
		if granted > p.Stock {
			granted = p.Stock
		}
		c.Items = append(c.Items, models.CartItem{
			CartID:    c.ID,
			ProductID: productID,
			Quantity:  granted,
			Price:     p.Price,
			Name:      p.Name,
			Image:     p.Image,
			Position:  len(c.Items),
		})
	}

	return c, s.save(ctx, c)
}

// UpdateItemQuantity sets the exact quantity of a line. Unlike AddItem this
// is a strict instruction: exceeding live stock is rejected. qty <= 0 removes
// the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, owner Owner, productID int64, qty int) (*models.Cart, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	line := c.Item(productID)
	if line == nil {
		return nil, apperr.Newf(apperr.KindItemNotFound, "product %d is not in the cart", productID)
	}

	if qty <= 0 {
		removeLine(c, productID)
		return c, s.save(ctx, c)
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if qty > p.Stock {
		return nil, apperr.Newf(apperr.KindInsufficientStock,
			"only %d of %q in stock, requested %d", p.Stock, p.Name, qty)
	}
	line.Quantity = qty
	return c, s.save(ctx, c)
}

func (s *Service) RemoveItem(ctx context.Context, owner Owner, productID int64) (*models.Cart, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if c.Item(productID) == nil {
		return nil, apperr.Newf(apperr.KindItemNotFound, "product %d is not in the cart", productID)
	}
	removeLine(c, productID)
	return c, s.save(ctx, c)
}

func (s *Service) ClearCart(ctx context.Context, owner Owner) (*models.Cart, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.Items = nil
	return c, s.save(ctx, c)
}

// ValidateCart is a read-only consistency audit. It reports issues, it never
// blocks; whether an issue prevents checkout is the caller's decision.
func (s *Service) ValidateCart(ctx context.Context, owner Owner) ([]models.CartIssue, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	issues := []models.CartIssue{}
	for _, line := range c.Items {
		p, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				issues = append(issues, models.CartIssue{
					Code:      models.IssueProductNotFound,
					ProductID: line.ProductID,
					Message:   "product no longer exists",
				})
				continue
			}
			return nil, err
		}
		switch {
		case p.Stock <= 0:
			issues = append(issues, models.CartIssue{
				Code:      models.IssueOutOfStock,
				ProductID: line.ProductID,
				Message:   p.Name + " is out of stock",
			})
		case p.Stock < line.Quantity:
			issues = append(issues, models.CartIssue{
				Code:      models.IssueInsufficientStock,
				ProductID: line.ProductID,
				Message:   p.Name + " has insufficient stock",
			})
		}
		if !p.Price.Equal(line.Price) {
			issues = append(issues, models.CartIssue{
				Code:      models.IssuePriceChanged,
				ProductID: line.ProductID,
				Message:   p.Name + " price changed since it was added",
			})
		}
	}
	if len(c.Items) > 0 && s.now().Sub(c.RefreshedAt) > PricesExpireAfter {
		issues = append(issues, models.CartIssue{
			Code:    models.IssuePricesExpired,
			Message: "cart prices have not been refreshed in over 24 hours",
		})
	}
	return issues, nil
}

// RefreshCartPrices re-snapshots every line from the live product record and
// returns how many lines changed.
func (s *Service) RefreshCartPrices(ctx context.Context, owner Owner) (int, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range c.Items {
		line := &c.Items[i]
		p, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				continue // reported by ValidateCart, not silently dropped here
			}
			return 0, err
		}
		if !p.Price.Equal(line.Price) || p.Name != line.Name || p.Image != line.Image {
			line.Price = p.Price
			line.Name = p.Name
			line.Image = p.Image
			updated++
		}
	}
	c.RefreshedAt = s.now()
	if err := s.save(ctx, c); err != nil {
		return 0, err
	}
	return updated, nil
}

// MergeCarts folds a guest session cart into the user's cart on login. Lines
// present in both merge with quantity min(sum, live stock); guest-only lines
// append. The guest cart is deleted only after the merged cart is saved.
func (s *Service) MergeCarts(ctx context.Context, userID int64, sessionID string) (*models.Cart, error) {
	guest, err := s.store.GetActive(ctx, SessionOwner(sessionID))
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return s.Get(ctx, UserOwner(userID))
		}
		return nil, err
	}

	c, err := s.Get(ctx, UserOwner(userID))
	if err != nil {
		return nil, err
	}

	for _, g := range guest.Items {
		stock := 0
		if p, err := s.products.GetByID(ctx, g.ProductID); err == nil {
			stock = p.Stock
		} else if !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}

		if line := c.Item(g.ProductID); line != nil {
			merged := line.Quantity + g.Quantity
			if merged > stock {
				merged = stock
			}
			if merged < 1 {
				merged = line.Quantity
			}
			line.Quantity = merged
		} else if stock > 0 {
			granted := g.Quantity
			if granted > stock {
				granted = stock
			}
			g.CartID = c.ID
			g.Quantity = granted
			g.Position = len(c.Items)
			c.Items = append(c.Items, g)
		}
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, guest.ID); err != nil {
		return nil, err
	}
	log.Info().Int64("userID", userID).Str("sessionID", sessionID).Msg("guest cart merged")
	return c, nil
}

// ApplyDiscount records a named discount entry. Codes are not validated
// against a promotions system; the entry is purely recorded and applied to
// totals in insertion order.
func (s *Service) ApplyDiscount(ctx context.Context, owner Owner, code string, discountType models.DiscountType, amount decimal.Decimal) (*models.Cart, error) {
	if discountType != models.DiscountPercentage && discountType != models.DiscountFixed {
		return nil, apperr.Newf(apperr.KindValidation, "unknown discount type %q", discountType)
	}
	if amount.IsNegative() {
		return nil, apperr.New(apperr.KindValidation, "discount amount cannot be negative")
	}
	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.Discounts = append(c.Discounts, models.DiscountEntry{Code: code, Type: discountType, Amount: amount})
	return c, s.save(ctx, c)
}

// Convert marks the cart converted after a successful order placement. The
// row persists for analytics; a fresh cart is created lazily on next access.
func (s *Service) Convert(ctx context.Context, owner Owner) error {
	c, err := s.store.GetActive(ctx, owner)
	if err != nil {
		return err
	}
	c.Status = models.CartStatusConverted
	return s.save(ctx, c)
}

// Abandon marks an inactive cart abandoned. Terminal for matching purposes,
// like Convert.
func (s *Service) Abandon(ctx context.Context, owner Owner) error {
	c, err := s.store.GetActive(ctx, owner)
	if err != nil {
		return err
	}
	c.Status = models.CartStatusAbandoned
	return s.save(ctx, c)
}

func (s *Service) save(ctx context.Context, c *models.Cart) error {
	s.recompute(c)
	return s.store.Save(ctx, c)
}

// recompute refreshes the derived totals. It runs unconditionally on every
// save path.
func (s *Service) recompute(c *models.Cart) {
	items := make([]pricing.LineItem, len(c.Items))
	for i, line := range c.Items {
		items[i] = pricing.LineItem{Price: line.Price, Quantity: line.Quantity, Discount: line.Discount}
	}
	c.SubTotal, c.TotalQuantity, c.TotalPrice = pricing.CartTotals(items, c.Discounts)
}

func removeLine(c *models.Cart, productID int64) {
	items := c.Items[:0]
	for _, line := range c.Items {
		if line.ProductID != productID {
			items = append(items, line)
		}
	}
	c.Items = items
}
