package orders

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/apperr"
	"shop-service/cart"
	"shop-service/models"
)

// memOrderStore implements Store with the same atomicity contract as the SQL
// store: Create reserves stock for every line or rolls everything back, and
// Update is optimistic on the order version.
type memOrderStore struct {
	mu       sync.Mutex
	nextID   int64
	products map[int64]*models.Product
	orders   map[int64]*models.Order
	numbers  map[string]bool
}

func newMemOrderStore(products map[int64]*models.Product) *memOrderStore {
	return &memOrderStore{
		nextID:   1,
		products: products,
		orders:   make(map[int64]*models.Order),
		numbers:  make(map[string]bool),
	}
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]models.StatusEvent(nil), o.StatusHistory...)
	return &cp
}

func (s *memOrderStore) Create(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.numbers[o.OrderNumber] {
		return apperr.Newf(apperr.KindConflict, "order number %s already exists", o.OrderNumber)
	}

	// Reserve stock line by line; any failure undoes earlier reservations,
	// mirroring a transaction rollback.
	reserved := make([]models.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		p, ok := s.products[item.ProductID]
		if !ok || p.IsDeleted() {
			s.rollback(reserved)
			return apperr.Newf(apperr.KindNotFound, "product %d not found", item.ProductID)
		}
		if p.Stock < item.Quantity {
			s.rollback(reserved)
			return apperr.Newf(apperr.KindInsufficientStock, "insufficient stock for product %d", item.ProductID)
		}
		p.Stock -= item.Quantity
		p.Availability = models.AvailabilityForStock(p.Stock)
		reserved = append(reserved, item)
	}

	o.ID = s.nextID
	s.nextID++
	o.Version = 1
	o.CreatedAt = time.Now()
	for i := range o.StatusHistory {
		o.StatusHistory[i].OrderID = o.ID
		o.StatusHistory[i].CreatedAt = time.Now()
	}
	s.numbers[o.OrderNumber] = true
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *memOrderStore) rollback(reserved []models.OrderItem) {
	for _, item := range reserved {
		p := s.products[item.ProductID]
		p.Stock += item.Quantity
		p.Availability = models.AvailabilityForStock(p.Stock)
	}
}

func (s *memOrderStore) GetByID(_ context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "order %d not found", id)
	}
	return copyOrder(o), nil
}

func (s *memOrderStore) GetByNumber(_ context.Context, number string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.OrderNumber == number {
			return copyOrder(o), nil
		}
	}
	return nil, apperr.Newf(apperr.KindNotFound, "order %s not found", number)
}

func (s *memOrderStore) ListByUser(_ context.Context, userID int64, _, _ int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (s *memOrderStore) ListByStatus(_ context.Context, status models.OrderStatus, _, _ int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (s *memOrderStore) ListByDateRange(_ context.Context, from, to time.Time, _, _ int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if !o.CreatedAt.Before(from) && !o.CreatedAt.After(to) {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (s *memOrderStore) Update(_ context.Context, o *models.Order, events []models.StatusEvent, releaseStock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "order %d not found", o.ID)
	}
	if cur.Version != o.Version {
		return apperr.New(apperr.KindConcurrencyConflict, "order was modified concurrently")
	}

	if releaseStock {
		for _, item := range cur.Items {
			if p, ok := s.products[item.ProductID]; ok {
				p.Stock += item.Quantity
				p.Availability = models.AvailabilityForStock(p.Stock)
			}
		}
	}

	o.Version++
	for _, ev := range events {
		ev.OrderID = o.ID
		ev.CreatedAt = time.Now()
		o.StatusHistory = append(o.StatusHistory, ev)
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

type memProductReader struct {
	mu       *sync.Mutex
	products map[int64]*models.Product
}

func (r *memProductReader) GetByID(_ context.Context, id int64) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || p.IsDeleted() {
		return nil, apperr.Newf(apperr.KindNotFound, "product %d not found", id)
	}
	cp := *p
	return &cp, nil
}

type memUserReader struct{}

func (memUserReader) GetByID(_ context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id), Role: models.RoleCustomer}, nil
}

// fakeCart is the minimal CartSource order creation needs.
type fakeCart struct {
	cart      *models.Cart
	converted bool
}

func (f *fakeCart) Get(_ context.Context, _ cart.Owner) (*models.Cart, error) {
	if f.cart == nil {
		return nil, apperr.New(apperr.KindNotFound, "no active cart")
	}
	return f.cart, nil
}

func (f *fakeCart) Convert(_ context.Context, _ cart.Owner) error {
	f.converted = true
	return nil
}

type recordedEvent struct {
	event    models.OrderEvent
	priority uint8
	delay    time.Duration
}

type fakePublisher struct {
	events []recordedEvent
	fail   bool
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, event models.OrderEvent, priority uint8) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, recordedEvent{event: event, priority: priority})
	return nil
}

func (p *fakePublisher) PublishDelayedOrderEvent(_ context.Context, event models.OrderEvent, delay time.Duration) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, recordedEvent{event: event, delay: delay})
	return nil
}

type fakeMailer struct {
	sent []string
	fail bool
}

func (m *fakeMailer) SendOrderConfirmation(_ context.Context, o *models.Order, email string) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, o.OrderNumber+" -> "+email)
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testConfig() Config {
	return Config{
		DefaultTaxRate:        dec("0.1"),
		DefaultShippingPrice:  dec("5.00"),
		FreeShippingThreshold: dec("100.00"),
		PaymentCheckDelay:     15 * time.Minute,
	}
}

type fixture struct {
	svc       *Service
	store     *memOrderStore
	products  map[int64]*models.Product
	cart      *fakeCart
	publisher *fakePublisher
	mailer    *fakeMailer
}

func newFixture(products ...*models.Product) *fixture {
	pm := make(map[int64]*models.Product, len(products))
	for _, p := range products {
		pm[p.ID] = p
	}
	store := newMemOrderStore(pm)
	fc := &fakeCart{}
	svc := NewService(store, &memProductReader{mu: &store.mu, products: pm}, memUserReader{}, fc, testConfig())
	pub := &fakePublisher{}
	mail := &fakeMailer{}
	svc.SetPublisher(pub)
	svc.SetMailer(mail)
	return &fixture{svc: svc, store: store, products: pm, cart: fc, publisher: pub, mailer: mail}
}

func product(id int64, price string, stock int) *models.Product {
	return &models.Product{
		ID:           id,
		SKU:          fmt.Sprintf("SKU-%d", id),
		Name:         fmt.Sprintf("Product %d", id),
		Price:        dec(price),
		Stock:        stock,
		Availability: models.AvailabilityForStock(stock),
	}
}

func createInput(items ...ItemInput) CreateInput {
	shipping := dec("5")
	tax := dec("0.1")
	return CreateInput{
		Items:         items,
		PaymentMethod: "card",
		ShippingPrice: &shipping,
		TaxRate:       &tax,
		DiscountType:  models.DiscountFixed,
		ShippingAddress: models.ShippingAddress{
			FullName: "Ada Lovelace", Line1: "1 Analytical St", City: "London", Country: "GB",
		},
	}
}

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{4}-\d{6}$`)

func TestCreateOrderReservesStockAndComputesTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 3}))
	require.NoError(t, err)

	assert.Regexp(t, orderNumberPattern, o.OrderNumber)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Equal(t, "30.00", o.ItemsPrice.StringFixed(2))
	assert.Equal(t, "3.00", o.TaxPrice.StringFixed(2))
	assert.Equal(t, "38.00", o.TotalPrice.StringFixed(2))
	require.Len(t, o.Items, 1)
	assert.Equal(t, "SKU-1", o.Items[0].SKU)
	assert.Equal(t, "10.00", o.Items[0].Price.StringFixed(2))

	// Stock reserved atomically with creation.
	assert.Equal(t, 2, f.products[1].Stock)

	// Initial history entry written with the order.
	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.StatusHistory, 1)
	assert.Equal(t, models.StatusPending, stored.StatusHistory[0].Status)
}

func TestCreateOrderAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5), product(2, "4.00", 1))

	_, err := f.svc.CreateOrder(ctx, 7, createInput(
		ItemInput{ProductID: 1, Quantity: 2},
		ItemInput{ProductID: 2, Quantity: 3},
	))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientStock))

	// The failed creation left no partial reservation behind.
	assert.Equal(t, 5, f.products[1].Stock)
	assert.Equal(t, 1, f.products[2].Stock)
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	_, err := f.svc.CreateOrder(ctx, 7, createInput())
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 0}))
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidQuantity))

	_, err = f.svc.CreateOrder(ctx, 7, createInput(
		ItemInput{ProductID: 1, Quantity: 1},
		ItemInput{ProductID: 1, Quantity: 2},
	))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 9, Quantity: 1}))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCancelReleasesStockExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, 2, f.products[1].Stock)

	cancelled, err := f.svc.CancelOrder(ctx, o.ID, "changed my mind", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.products[1].Stock)

	// A second cancel is rejected and must not credit stock again.
	_, err = f.svc.CancelOrder(ctx, o.ID, "again", nil, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindNotCancellable))
	assert.Equal(t, 5, f.products[1].Stock)
}

func TestCancelAfterProductDeletedStillReleasesStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, 2, f.products[1].Stock)

	// The catalog retires the product while the order is still open; the
	// cancel must still go through and credit the reserved units back.
	now := time.Now()
	f.products[1].DeletedAt = &now

	cancelled, err := f.svc.CancelOrder(ctx, o.ID, "late cancel", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.products[1].Stock)
}

func TestUpdateStatusInvalidTransitionLeavesOrderUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, models.StatusDelivered, "", nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))

	reloaded, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reloaded.Status)
	assert.Equal(t, o.Version, reloaded.Version)
	assert.Len(t, reloaded.StatusHistory, 1)
}

func TestUpdateStatusCancelledReleasesStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 3}))
	require.NoError(t, err)

	updated, err := f.svc.UpdateOrderStatus(ctx, o.ID, models.StatusCancelled, "stock sweep", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)
	assert.Equal(t, 5, f.products[1].Stock)
	assert.Equal(t, o.Version+1, updated.Version)
}

func TestProcessPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	paid, err := f.svc.ProcessPayment(ctx, o.ID, models.PaymentResult{
		PaymentID: "pay_123", Status: "succeeded", AmountReceived: dec("16.00"), Currency: "USD",
	})
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.NotNil(t, paid.PaidAt)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, models.StatusProcessing, paid.Status)
	assert.Equal(t, "pay_123", paid.PaymentID)

	_, err = f.svc.ProcessPayment(ctx, o.ID, models.PaymentResult{PaymentID: "pay_456"})
	assert.True(t, apperr.IsKind(err, apperr.KindAlreadyPaid))
}

func TestProcessPaymentRejectedAfterCancellation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(ctx, o.ID, "no longer wanted", nil, nil)
	require.NoError(t, err)

	// A late payment callback must not mark a cancelled order paid.
	_, err = f.svc.ProcessPayment(ctx, o.ID, models.PaymentResult{PaymentID: "pay_late"})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))

	reloaded, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsPaid)
	assert.Equal(t, models.StatusCancelled, reloaded.Status)
	assert.Equal(t, models.PaymentPending, reloaded.PaymentStatus)
}

func TestCancelPaidOrderRefunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(ctx, o.ID, models.PaymentResult{PaymentID: "pay_1", AmountReceived: dec("27.00"), Currency: "USD"})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelOrder(ctx, o.ID, "defective", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)
	assert.True(t, cancelled.RefundAmount.Equal(cancelled.TotalPrice))

	// History carries both the CANCELLED and the REFUNDED events.
	var statuses []models.OrderStatus
	for _, ev := range cancelled.StatusHistory {
		statuses = append(statuses, ev.Status)
	}
	assert.Contains(t, statuses, models.StatusCancelled)
	assert.Contains(t, statuses, models.StatusRefunded)
}

func TestCancelPaidOrderPartialRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(ctx, o.ID, models.PaymentResult{PaymentID: "pay_1"})
	require.NoError(t, err)

	partial := dec("10.00")
	cancelled, err := f.svc.CancelOrder(ctx, o.ID, "partial return", nil, &partial)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartiallyRefunded, cancelled.PaymentStatus)
	assert.Equal(t, "10.00", cancelled.RefundAmount.StringFixed(2))
}

func TestFulfillOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	shipped, err := f.svc.FulfillOrder(ctx, o.ID, models.FulfillmentDetails{
		TrackingNumber: "TRK-42", ShippingProvider: "DHL",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, shipped.Status)
	assert.NotNil(t, shipped.ShippedAt)
	assert.Equal(t, "TRK-42", shipped.TrackingNumber)

	// Already shipped: fulfillment is no longer valid.
	_, err = f.svc.FulfillOrder(ctx, o.ID, models.FulfillmentDetails{TrackingNumber: "TRK-43"}, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
}

func TestFulfillFromPendingRoutesThroughProcessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	shipped, err := f.svc.FulfillOrder(ctx, o.ID, models.FulfillmentDetails{
		TrackingNumber: "TRK-7", ShippingProvider: "UPS",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, shipped.Status)

	// The history records each hop of the table walk, no pending->shipped
	// jump.
	var statuses []models.OrderStatus
	for _, ev := range shipped.StatusHistory {
		statuses = append(statuses, ev.Status)
	}
	assert.Equal(t, []models.OrderStatus{
		models.StatusPending, models.StatusProcessing, models.StatusShipped,
	}, statuses)
}

func TestFulfillWithoutTrackingKeepsStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	updated, err := f.svc.FulfillOrder(ctx, o.ID, models.FulfillmentDetails{ShippingProvider: "DHL"}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, updated.Status)
	assert.Nil(t, updated.ShippedAt)
	assert.Equal(t, "DHL", updated.ShippingProvider)
}

func TestCanBeRefunded(t *testing.T) {
	f := newFixture()
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	recent := now.Add(-10 * 24 * time.Hour)
	stale := now.Add(-40 * 24 * time.Hour)

	cases := []struct {
		name  string
		order models.Order
		want  bool
	}{
		{"paid and recently delivered", models.Order{IsPaid: true, DeliveredAt: &recent, Status: models.StatusDelivered}, true},
		{"not paid", models.Order{IsPaid: false, DeliveredAt: &recent, Status: models.StatusDelivered}, false},
		{"never delivered", models.Order{IsPaid: true, Status: models.StatusProcessing}, false},
		{"delivered too long ago", models.Order{IsPaid: true, DeliveredAt: &stale, Status: models.StatusDelivered}, false},
		{"already refunded", models.Order{IsPaid: true, DeliveredAt: &recent, Status: models.StatusRefunded}, false},
		{"cancelled", models.Order{IsPaid: true, DeliveredAt: &recent, Status: models.StatusCancelled}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.svc.CanBeRefunded(&tc.order))
		})
	}
}

func TestRefundOrderFromReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(ctx, o.ID, models.PaymentResult{PaymentID: "pay_1"})
	require.NoError(t, err)
	for _, status := range []models.OrderStatus{models.StatusShipped, models.StatusDelivered, models.StatusReturned} {
		_, err = f.svc.UpdateOrderStatus(ctx, o.ID, status, "", nil)
		require.NoError(t, err)
	}

	refunded, err := f.svc.RefundOrder(ctx, o.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, refunded.Status)
	assert.Equal(t, models.PaymentRefunded, refunded.PaymentStatus)
	// The returned goods credit stock back.
	assert.Equal(t, 5, f.products[1].Stock)

	// Refund is terminal.
	_, err = f.svc.RefundOrder(ctx, o.ID, nil, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
}

func TestNotificationFailureDoesNotFailCreation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))
	f.mailer.fail = true
	f.publisher.fail = true

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)
	assert.NotZero(t, o.ID)
}

func TestCreatePublishesEventsAndConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	o, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, "created", f.publisher.events[0].event.Type)
	assert.Equal(t, uint8(5), f.publisher.events[0].priority)
	assert.Equal(t, "payment_check", f.publisher.events[1].event.Type)
	assert.Equal(t, 15*time.Minute, f.publisher.events[1].delay)

	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0], o.OrderNumber)
	assert.Contains(t, f.mailer.sent[0], "user7@example.com")
}

func TestEndToEndCartToOrderToCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))

	// Cart holds 3 units at the snapshot price.
	f.cart.cart = &models.Cart{
		ID:     1,
		Status: models.CartStatusActive,
		Items: []models.CartItem{
			{ProductID: 1, Quantity: 3, Price: dec("10.00"), Name: "Product 1"},
		},
		SubTotal:   dec("30.00"),
		TotalPrice: dec("30.00"),
	}

	in := createInput() // shipping 5, tax 0.1, no discount
	o, err := f.svc.CreateOrderFromCart(ctx, 7, in)
	require.NoError(t, err)

	assert.Equal(t, "30.00", o.ItemsPrice.StringFixed(2))
	assert.Equal(t, "3.00", o.TaxPrice.StringFixed(2))
	assert.Equal(t, "38.00", o.TotalPrice.StringFixed(2))
	assert.Equal(t, 2, f.products[1].Stock)
	assert.True(t, f.cart.converted)

	cancelled, err := f.svc.CancelOrder(ctx, o.ID, "e2e", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.products[1].Stock)
}

func TestCreateFromEmptyCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "10.00", 5))
	f.cart.cart = &models.Cart{ID: 1, Status: models.CartStatusActive}

	_, err := f.svc.CreateOrderFromCart(ctx, 7, createInput())
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestHighValueOrderGetsPriority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(product(1, "600.00", 10))

	_, err := f.svc.CreateOrder(ctx, 7, createInput(ItemInput{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)
	require.NotEmpty(t, f.publisher.events)
	assert.Equal(t, uint8(9), f.publisher.events[0].priority)
}
