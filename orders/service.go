// Package orders owns the order lifecycle: creation with all-or-nothing
// stock reservation, the status state machine, payment, fulfillment,
// cancellation and refunds. Orders are never hard-deleted; every lifecycle
// step is a status transition recorded in an append-only history.
package orders

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"shop-service/apperr"
	"shop-service/cart"
	"shop-service/models"
	"shop-service/pricing"
)

// RefundWindow is how long after delivery an order stays refundable.
const RefundWindow = 30 * 24 * time.Hour

const createRetries = 5

type Config struct {
	DefaultTaxRate        decimal.Decimal
	DefaultShippingPrice  decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	PaymentCheckDelay     time.Duration
}

// Store persists orders. Create must reserve stock for every line and insert
// the order, its items and the initial history row as one transaction: if any
// line fails availability the whole creation aborts with no partial stock
// decrements surviving. Update must check o.Version (optimistic concurrency),
// increment it on success, append the given history events and, when
// releaseStock is set, credit back each line's quantity in the same
// transaction.
type Store interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error)
	ListByStatus(ctx context.Context, status models.OrderStatus, limit, offset int) ([]models.Order, error)
	ListByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.Order, error)
	Update(ctx context.Context, o *models.Order, events []models.StatusEvent, releaseStock bool) error
}

type ProductReader interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// CartSource is the slice of the cart aggregate order creation drains.
type CartSource interface {
	Get(ctx context.Context, owner cart.Owner) (*models.Cart, error)
	Convert(ctx context.Context, owner cart.Owner) error
}

// Publisher emits order events. Both methods are best-effort from the
// service's point of view: a publish failure is logged, never surfaced.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent, priority uint8) error
	PublishDelayedOrderEvent(ctx context.Context, event models.OrderEvent, delay time.Duration) error
}

// Mailer delivers the order confirmation. Failure to notify never fails the
// order.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, o *models.Order, email string) error
}

type Service struct {
	store     Store
	products  ProductReader
	users     UserReader
	carts     CartSource
	publisher Publisher
	mailer    Mailer
	cfg       Config
	now       func() time.Time
}

func NewService(store Store, products ProductReader, users UserReader, carts CartSource, cfg Config) *Service {
	return &Service{
		store:    store,
		products: products,
		users:    users,
		carts:    carts,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) SetPublisher(p Publisher) { s.publisher = p }
func (s *Service) SetMailer(m Mailer)       { s.mailer = m }

type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CreateInput struct {
	Items           []ItemInput            `json:"items"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	ShippingPrice   *decimal.Decimal       `json:"shipping_price,omitempty"`
	TaxRate         *decimal.Decimal       `json:"tax_rate,omitempty"`
	DiscountAmount  decimal.Decimal        `json:"discount_amount"`
	DiscountType    models.DiscountType    `json:"discount_type"`
}

// CreateOrder validates every item, snapshots the product data, computes
// totals and persists the order in PENDING with stock reserved for every
// line — atomically as a unit. On success it fires the confirmation
// notification and order events, both best-effort.
func (s *Service) CreateOrder(ctx context.Context, userID int64, in CreateInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, apperr.New(apperr.KindValidation, "order must contain at least one item")
	}
	seen := make(map[int64]bool, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, apperr.Newf(apperr.KindInvalidQuantity, "quantity must be positive, got %d", it.Quantity)
		}
		if seen[it.ProductID] {
			return nil, apperr.Newf(apperr.KindValidation, "duplicate product %d in order items", it.ProductID)
		}
		seen[it.ProductID] = true
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	lines := make([]pricing.LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Stock < it.Quantity {
			return nil, apperr.Newf(apperr.KindInsufficientStock,
				"only %d of %q in stock, requested %d", p.Stock, p.Name, it.Quantity)
		}
		items = append(items, models.OrderItem{
			ProductID: p.ID,
			SKU:       p.SKU,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Quantity:  it.Quantity,
		})
		lines = append(lines, pricing.LineItem{Price: p.Price, Quantity: it.Quantity})
	}

	totals := pricing.CalculateTotals(lines, s.shippingPrice(in, lines), s.taxRate(in), in.DiscountAmount, in.DiscountType)

	o := &models.Order{
		UserID:          userID,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentPending,
		Items:           items,
		ItemsPrice:      totals.ItemsPrice,
		TaxPrice:        totals.TaxPrice,
		ShippingPrice:   totals.ShippingPrice,
		DiscountPrice:   totals.DiscountPrice,
		TotalPrice:      totals.TotalPrice,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
	}
	o.StatusHistory = []models.StatusEvent{{
		Status:      models.StatusPending,
		Description: "order created",
		ActorID:     &userID,
	}}

	// Retry only on an order-number collision; everything else aborts.
	var err error
	for attempt := 0; attempt < createRetries; attempt++ {
		o.OrderNumber = newOrderNumber(s.now())
		err = s.store.Create(ctx, o)
		if err == nil {
			break
		}
		if !apperr.IsKind(err, apperr.KindConflict) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("orderNumber", o.OrderNumber).Int64("userID", userID).
		Str("total", o.TotalPrice.StringFixed(2)).Msg("order created")

	s.notifyCreated(ctx, o)
	return o, nil
}

// CreateOrderFromCart drains the user's active cart into a new order. Item
// snapshots are taken from the live product records at order time, not from
// the cart's (possibly drifted) price snapshots. On success the cart is
// marked converted.
func (s *Service) CreateOrderFromCart(ctx context.Context, userID int64, in CreateInput) (*models.Order, error) {
	owner := cart.UserOwner(userID)
	c, err := s.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, apperr.New(apperr.KindValidation, "cart is empty")
	}

	in.Items = make([]ItemInput, 0, len(c.Items))
	for _, line := range c.Items {
		in.Items = append(in.Items, ItemInput{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	o, err := s.CreateOrder(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.carts.Convert(ctx, owner); err != nil {
		// The order exists; a stale cart is an annoyance, not a failure.
		log.Error().Err(err).Str("orderNumber", o.OrderNumber).Msg("failed to mark cart converted")
	}
	return o, nil
}

// UpdateOrderStatus moves an order to newStatus if the transition table
// allows it, appending a history event and bumping the version. A transition
// to CANCELLED releases all reserved stock for the order's lines.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, newStatus models.OrderStatus, reason string, actorID *int64) (*models.Order, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(o.Status, newStatus); err != nil {
		return nil, err
	}

	o.Status = newStatus
	now := s.now()
	switch newStatus {
	case models.StatusShipped:
		o.ShippedAt = &now
	case models.StatusDelivered:
		o.DeliveredAt = &now
	}

	release := false
	if newStatus == models.StatusCancelled && !o.StockReleased {
		o.StockReleased = true
		release = true
	}

	if reason == "" {
		reason = "status changed to " + string(newStatus)
	}
	events := []models.StatusEvent{{Status: newStatus, Description: reason, ActorID: actorID}}
	if err := s.store.Update(ctx, o, events, release); err != nil {
		return nil, err
	}

	s.publish(ctx, o, "status_updated", s.eventPriority(o))
	return o, nil
}

// ProcessPayment records the payment collaborator's result and advances the
// order toward PROCESSING.
func (s *Service) ProcessPayment(ctx context.Context, id int64, result models.PaymentResult) (*models.Order, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.IsPaid {
		return nil, apperr.Newf(apperr.KindAlreadyPaid, "order %s is already paid", o.OrderNumber)
	}
	// Terminal statuses have no outbound transitions; money must not land
	// on an order that can no longer move.
	if len(AllowedTargets(o.Status)) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidTransition,
			"cannot record payment for order %s in status %s", o.OrderNumber, o.Status)
	}

	now := s.now()
	o.IsPaid = true
	o.PaidAt = &now
	o.PaymentStatus = models.PaymentPaid
	o.PaymentID = result.PaymentID
	o.PaymentCurrency = result.Currency

	events := []models.StatusEvent{{
		Status:      o.Status,
		Description: fmt.Sprintf("payment received (%s %s)", result.AmountReceived.StringFixed(2), result.Currency),
	}}
	if CanTransition(o.Status, models.StatusProcessing) {
		o.Status = models.StatusProcessing
		events = append(events, models.StatusEvent{Status: models.StatusProcessing, Description: "payment confirmed"})
	}

	if err := s.store.Update(ctx, o, events, false); err != nil {
		return nil, err
	}
	s.publish(ctx, o, "status_updated", s.eventPriority(o))
	return o, nil
}

// CancelOrder cancels an order that has not progressed past PROCESSING,
// releasing its reserved stock exactly once. Paid orders are refunded: the
// full total by default, or the exact refundAmount when one below the total
// is supplied (PARTIALLY_REFUNDED).
func (s *Service) CancelOrder(ctx context.Context, id int64, reason string, actorID *int64, refundAmount *decimal.Decimal) (*models.Order, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !IsCancellable(o.Status) {
		return nil, apperr.Newf(apperr.KindNotCancellable,
			"order %s cannot be cancelled from status %s", o.OrderNumber, o.Status)
	}

	release := false
	if !o.StockReleased {
		o.StockReleased = true
		release = true
	}

	o.Status = models.StatusCancelled
	o.CancellationNote = reason
	if reason == "" {
		reason = "order cancelled"
	}
	events := []models.StatusEvent{{Status: models.StatusCancelled, Description: reason, ActorID: actorID}}

	if o.IsPaid {
		refund := o.TotalPrice
		if refundAmount != nil && refundAmount.LessThan(o.TotalPrice) {
			refund = *refundAmount
			o.PaymentStatus = models.PaymentPartiallyRefunded
		} else {
			o.PaymentStatus = models.PaymentRefunded
		}
		if refund.IsNegative() {
			return nil, apperr.New(apperr.KindValidation, "refund amount cannot be negative")
		}
		o.RefundAmount = refund
		events = append(events, models.StatusEvent{
			Status:      models.StatusRefunded,
			Description: fmt.Sprintf("refunded %s", refund.StringFixed(2)),
			ActorID:     actorID,
		})
	}

	if err := s.store.Update(ctx, o, events, release); err != nil {
		return nil, err
	}

	log.Info().Str("orderNumber", o.OrderNumber).Str("reason", o.CancellationNote).Msg("order cancelled")
	s.publish(ctx, o, "cancelled", 8)
	return o, nil
}

// FulfillOrder stores tracking details; supplying a tracking number ships
// the order.
func (s *Service) FulfillOrder(ctx context.Context, id int64, details models.FulfillmentDetails, actorID *int64) (*models.Order, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != models.StatusPending && o.Status != models.StatusProcessing {
		return nil, apperr.Newf(apperr.KindInvalidTransition,
			"order %s cannot be fulfilled from status %s", o.OrderNumber, o.Status)
	}

	o.TrackingNumber = details.TrackingNumber
	o.ShippingProvider = details.ShippingProvider

	var events []models.StatusEvent
	if details.TrackingNumber != "" {
		// A PENDING order ships via PROCESSING; every hop is one the
		// transition table contains.
		if o.Status == models.StatusPending {
			if err := checkTransition(o.Status, models.StatusProcessing); err != nil {
				return nil, err
			}
			o.Status = models.StatusProcessing
			events = append(events, models.StatusEvent{
				Status:      models.StatusProcessing,
				Description: "fulfillment started",
				ActorID:     actorID,
			})
		}
		if err := checkTransition(o.Status, models.StatusShipped); err != nil {
			return nil, err
		}
		now := s.now()
		o.Status = models.StatusShipped
		o.ShippedAt = &now
		events = append(events, models.StatusEvent{
			Status:      models.StatusShipped,
			Description: fmt.Sprintf("shipped via %s (%s)", details.ShippingProvider, details.TrackingNumber),
			ActorID:     actorID,
		})
	} else {
		events = append(events, models.StatusEvent{
			Status:      o.Status,
			Description: "fulfillment details updated",
			ActorID:     actorID,
		})
	}

	if err := s.store.Update(ctx, o, events, false); err != nil {
		return nil, err
	}
	s.publish(ctx, o, "status_updated", s.eventPriority(o))
	return o, nil
}

// RefundOrder finalizes a return: only valid from RETURNED per the
// transition table. Cancellation-time refunds take the CancelOrder path.
func (s *Service) RefundOrder(ctx context.Context, id int64, amount *decimal.Decimal, actorID *int64) (*models.Order, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsPaid {
		return nil, apperr.Newf(apperr.KindNotRefundable, "order %s was never paid", o.OrderNumber)
	}
	if err := checkTransition(o.Status, models.StatusRefunded); err != nil {
		return nil, err
	}

	refund := o.TotalPrice
	if amount != nil && amount.LessThan(o.TotalPrice) {
		refund = *amount
		o.PaymentStatus = models.PaymentPartiallyRefunded
	} else {
		o.PaymentStatus = models.PaymentRefunded
	}
	o.Status = models.StatusRefunded
	o.RefundAmount = refund

	release := false
	if !o.StockReleased {
		o.StockReleased = true
		release = true
	}

	events := []models.StatusEvent{{
		Status:      models.StatusRefunded,
		Description: fmt.Sprintf("refunded %s", refund.StringFixed(2)),
		ActorID:     actorID,
	}}
	if err := s.store.Update(ctx, o, events, release); err != nil {
		return nil, err
	}
	s.publish(ctx, o, "status_updated", 8)
	return o, nil
}

// CanBeRefunded: paid, delivered within the refund window, and not already
// cancelled or refunded.
func (s *Service) CanBeRefunded(o *models.Order) bool {
	if !o.IsPaid || o.DeliveredAt == nil {
		return false
	}
	if o.Status == models.StatusCancelled || o.Status == models.StatusRefunded {
		return false
	}
	return s.now().Sub(*o.DeliveredAt) <= RefundWindow
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return s.store.GetByNumber(ctx, number)
}

func (s *Service) ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	return s.store.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) ListOrdersByStatus(ctx context.Context, status models.OrderStatus, limit, offset int) ([]models.Order, error) {
	return s.store.ListByStatus(ctx, status, limit, offset)
}

func (s *Service) ListOrdersByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.Order, error) {
	return s.store.ListByDateRange(ctx, from, to, limit, offset)
}

func (s *Service) shippingPrice(in CreateInput, lines []pricing.LineItem) decimal.Decimal {
	if in.ShippingPrice != nil {
		return *in.ShippingPrice
	}
	itemsPrice := decimal.Zero
	for _, l := range lines {
		itemsPrice = itemsPrice.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	if itemsPrice.GreaterThanOrEqual(s.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.cfg.DefaultShippingPrice
}

func (s *Service) taxRate(in CreateInput) decimal.Decimal {
	if in.TaxRate != nil {
		return *in.TaxRate
	}
	return s.cfg.DefaultTaxRate
}

// eventPriority mirrors queue priority to business weight: large orders and
// cancellations jump the line.
func (s *Service) eventPriority(o *models.Order) uint8 {
	if o.Status == models.StatusCancelled {
		return 8
	}
	if o.TotalPrice.GreaterThan(decimal.NewFromInt(1000)) {
		return 9
	}
	return 5
}

func (s *Service) publish(ctx context.Context, o *models.Order, eventType string, priority uint8) {
	if s.publisher == nil {
		return
	}
	event := models.OrderEvent{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Type:        eventType,
		Status:      o.Status,
		Total:       o.TotalPrice.StringFixed(2),
		Occurred:    s.now(),
	}
	if err := s.publisher.PublishOrderEvent(ctx, event, priority); err != nil {
		log.Error().Err(err).Str("orderNumber", o.OrderNumber).Str("type", eventType).
			Msg("failed to publish order event")
	}
}

// notifyCreated fires the confirmation email and the created/payment-check
// events. All of it is best-effort: a notification failure never fails order
// creation.
func (s *Service) notifyCreated(ctx context.Context, o *models.Order) {
	s.publish(ctx, o, "created", s.eventPriority(o))

	if s.publisher != nil && s.cfg.PaymentCheckDelay > 0 {
		event := models.OrderEvent{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			UserID:      o.UserID,
			Type:        "payment_check",
			Status:      o.Status,
			Total:       o.TotalPrice.StringFixed(2),
			Occurred:    s.now(),
		}
		if err := s.publisher.PublishDelayedOrderEvent(ctx, event, s.cfg.PaymentCheckDelay); err != nil {
			log.Error().Err(err).Str("orderNumber", o.OrderNumber).Msg("failed to publish payment check event")
		}
	}

	if s.mailer == nil {
		return
	}
	u, err := s.users.GetByID(ctx, o.UserID)
	if err != nil {
		log.Error().Err(err).Int64("userID", o.UserID).Msg("failed to load user for confirmation email")
		return
	}
	if err := s.mailer.SendOrderConfirmation(ctx, o, u.Email); err != nil {
		log.Error().Err(err).Str("orderNumber", o.OrderNumber).Msg("failed to send order confirmation")
	}
}

// newOrderNumber produces a human-readable unique identity. Collisions are
// resolved by the caller retrying against the unique key.
func newOrderNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to the clock rather than abort order creation.
		n = big.NewInt(now.UnixNano() % 1_000_000)
	}
	return fmt.Sprintf("ORD-%d-%06d", now.Year(), n.Int64())
}
