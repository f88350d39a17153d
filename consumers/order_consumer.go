package consumers

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"shop-service/apperr"
	"shop-service/config"
	"shop-service/models"
	"shop-service/notifications"
	"shop-service/orders"
)

// OrderConsumer drains the order queue and the dead letter queue. Payment
// check events drive the unpaid-order auto-cancel; status events fan out to
// customer emails.
type OrderConsumer struct {
	channel *amqp.Channel
	cfg     config.Config
	orders  *orders.Service
	users   orders.UserReader
	mailer  *notifications.Mailer
}

func NewOrderConsumer(ch *amqp.Channel, cfg config.Config, svc *orders.Service, users orders.UserReader, mailer *notifications.Mailer) *OrderConsumer {
	return &OrderConsumer{channel: ch, cfg: cfg, orders: svc, users: users, mailer: mailer}
}

func (c *OrderConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.cfg.OrderQueue,
		"shop-service", // consumer tag
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,
	)
	if err != nil {
		return err
	}
	go func() {
		for msg := range msgs {
			c.processOrderMessage(ctx, msg)
		}
	}()

	dlqMsgs, err := c.channel.Consume(
		c.cfg.DeadLetterQueue,
		"shop-service-dlq",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	go func() {
		for msg := range dlqMsgs {
			c.processDeadLetter(msg)
		}
	}()

	return nil
}

func (c *OrderConsumer) processOrderMessage(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic in order consumer")
			_ = msg.Nack(false, false)
		}
	}()

	var event models.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Error().Err(err).Str("body", string(msg.Body)).Msg("malformed order event")
		// No requeue: a malformed body stays malformed, let it dead-letter.
		_ = msg.Nack(false, false)
		return
	}

	log.Info().Str("eventID", event.EventID).Str("type", event.Type).
		Str("orderNumber", event.OrderNumber).Msg("processing order event")

	var err error
	switch event.Type {
	case "created":
		// The confirmation email is already enqueued at creation time.
	case "status_updated", "cancelled":
		c.notifyStatus(ctx, event)
	case "payment_check":
		err = c.handlePaymentCheck(ctx, event)
	default:
		log.Warn().Str("type", event.Type).Msg("unknown order event type")
	}
	if err != nil {
		log.Error().Err(err).Str("eventID", event.EventID).Msg("order event failed")
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

// handlePaymentCheck fires when the delayed payment window closes: an order
// still pending and unpaid gets cancelled, which also releases its stock.
func (c *OrderConsumer) handlePaymentCheck(ctx context.Context, event models.OrderEvent) error {
	o, err := c.orders.GetOrder(ctx, event.OrderID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	if o.IsPaid || o.Status != models.StatusPending {
		return nil
	}

	if _, err := c.orders.CancelOrder(ctx, o.ID, "payment not received in time", nil, nil); err != nil {
		// Someone paid or cancelled between the read and the cancel; the
		// check's purpose is already served.
		if apperr.IsKind(err, apperr.KindNotCancellable) || apperr.IsKind(err, apperr.KindConcurrencyConflict) {
			return nil
		}
		return err
	}
	log.Info().Str("orderNumber", o.OrderNumber).Msg("auto-cancelled unpaid order")
	return nil
}

// notifyStatus emails the customer about externally visible transitions.
// Best-effort: a mail failure never nacks the event.
func (c *OrderConsumer) notifyStatus(ctx context.Context, event models.OrderEvent) {
	switch event.Status {
	case models.StatusShipped, models.StatusDelivered, models.StatusCancelled, models.StatusRefunded:
	default:
		return
	}

	o, err := c.orders.GetOrder(ctx, event.OrderID)
	if err != nil {
		log.Error().Err(err).Int64("orderID", event.OrderID).Msg("failed to load order for status email")
		return
	}
	u, err := c.users.GetByID(ctx, o.UserID)
	if err != nil {
		log.Error().Err(err).Int64("userID", o.UserID).Msg("failed to load user for status email")
		return
	}
	if err := c.mailer.SendStatusUpdate(ctx, o, u.Email); err != nil {
		log.Error().Err(err).Str("orderNumber", o.OrderNumber).Msg("failed to enqueue status email")
	}
}

func (c *OrderConsumer) processDeadLetter(msg amqp.Delivery) {
	log.Warn().Str("body", string(msg.Body)).Msg("dead letter received")
	_ = msg.Ack(false)
}
