// Package rabbitmq owns the broker topology: the order exchange and its
// priority queue, the notification queue, a dead-letter pair for poisoned
// messages and a delayed exchange for the payment check.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"shop-service/config"
	"shop-service/models"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Cfg     config.Config
}

func NewRabbitMQ(cfg config.Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &RabbitMQ{Conn: conn, Channel: ch, Cfg: cfg}, nil
}

// SetupQueues declares the full topology. Declarations are idempotent, so
// every instance runs this at boot.
func (r *RabbitMQ) SetupQueues() error {
	dlx := r.Cfg.DeadLetterQueue + "_exchange"
	if err := r.Channel.ExchangeDeclare(
		dlx,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare dead letter exchange: %w", err)
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-queue-type": "classic"},
	); err != nil {
		return fmt.Errorf("declare dead letter queue: %w", err)
	}

	if err := r.Channel.QueueBind(r.Cfg.DeadLetterQueue, "", dlx, false, nil); err != nil {
		return fmt.Errorf("bind dead letter queue: %w", err)
	}

	if err := r.Channel.ExchangeDeclare(
		r.Cfg.OrderExchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare order exchange: %w", err)
	}

	// Requires the rabbitmq_delayed_message_exchange plugin; without it the
	// payment check degrades to never firing, which only delays auto-cancel.
	if err := r.Channel.ExchangeDeclare(
		r.Cfg.DelayExchange,
		"x-delayed-message",
		true,
		false,
		false,
		false,
		amqp.Table{"x-delayed-type": "direct"},
	); err != nil {
		log.Warn().Err(err).Msg("delayed exchange not supported, payment checks disabled")
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.OrderQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-max-priority":            r.Cfg.MaxPriority,
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": r.Cfg.DeadLetterQueue,
		},
	); err != nil {
		return fmt.Errorf("declare order queue: %w", err)
	}

	if err := r.Channel.QueueBind(r.Cfg.OrderQueue, "", r.Cfg.OrderExchange, false, nil); err != nil {
		return fmt.Errorf("bind order queue: %w", err)
	}
	if err := r.Channel.QueueBind(r.Cfg.OrderQueue, r.Cfg.OrderQueue, r.Cfg.DelayExchange, false, nil); err != nil {
		log.Warn().Err(err).Msg("could not bind order queue to delay exchange")
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.NotificationQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": r.Cfg.DeadLetterQueue,
		},
	); err != nil {
		return fmt.Errorf("declare notification queue: %w", err)
	}

	return nil
}

// PublishOrderEvent fans the event out to the order exchange. The EventID is
// stamped here so every published copy of an event carries a unique identity.
func (r *RabbitMQ) PublishOrderEvent(ctx context.Context, event models.OrderEvent, priority uint8) error {
	event.EventID = uuid.NewString()
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	err = r.Channel.PublishWithContext(ctx,
		r.Cfg.OrderExchange,
		"",
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Body:         body,
			Priority:     priority,
		})
	if err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	log.Debug().Str("eventID", event.EventID).Str("type", event.Type).
		Str("orderNumber", event.OrderNumber).Msg("order event published")
	return nil
}

// PublishDelayedOrderEvent routes through the delayed exchange; the broker
// holds the message for the given delay before it reaches the order queue.
func (r *RabbitMQ) PublishDelayedOrderEvent(ctx context.Context, event models.OrderEvent, delay time.Duration) error {
	event.EventID = uuid.NewString()
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	err = r.Channel.PublishWithContext(ctx,
		r.Cfg.DelayExchange,
		r.Cfg.OrderQueue,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Body:         body,
			Headers:      amqp.Table{"x-delay": delay.Milliseconds()},
		})
	if err != nil {
		return fmt.Errorf("publish delayed order event: %w", err)
	}
	log.Debug().Str("eventID", event.EventID).Str("type", event.Type).
		Dur("delay", delay).Msg("delayed order event published")
	return nil
}

// PublishNotification enqueues an email payload for the notification worker.
func (r *RabbitMQ) PublishNotification(ctx context.Context, body []byte) error {
	err := r.Channel.PublishWithContext(ctx,
		"",
		r.Cfg.NotificationQueue,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close rabbitmq channel")
		}
	}
	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close rabbitmq connection")
		}
	}
}
