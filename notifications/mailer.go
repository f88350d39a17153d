// Package notifications turns order lifecycle moments into email messages.
// Delivery is asynchronous: the mailer only enqueues; a downstream worker
// owns the actual SMTP conversation.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"shop-service/models"
)

// QueuePublisher hands a serialized message to the notification queue.
type QueuePublisher interface {
	PublishNotification(ctx context.Context, body []byte) error
}

// EmailMessage is the queue payload the email worker consumes.
type EmailMessage struct {
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	HTMLBody       string `json:"html_body"`
	TextBody       string `json:"text_body"`
}

type Mailer struct {
	queue QueuePublisher
}

func NewMailer(queue QueuePublisher) *Mailer {
	return &Mailer{queue: queue}
}

// SendOrderConfirmation enqueues the confirmation email for a freshly created
// order.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, o *models.Order, email string) error {
	msg := EmailMessage{
		RecipientEmail: email,
		Subject:        fmt.Sprintf("Order %s confirmed", o.OrderNumber),
		HTMLBody:       confirmationHTML(o),
		TextBody:       confirmationText(o),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email message: %w", err)
	}
	if err := m.queue.PublishNotification(ctx, body); err != nil {
		return fmt.Errorf("enqueue confirmation for order %s: %w", o.OrderNumber, err)
	}
	log.Debug().Str("orderNumber", o.OrderNumber).Str("recipient", email).
		Msg("order confirmation enqueued")
	return nil
}

// SendStatusUpdate enqueues a status change email, used for the externally
// visible transitions (shipped, delivered, cancelled, refunded).
func (m *Mailer) SendStatusUpdate(ctx context.Context, o *models.Order, email string) error {
	msg := EmailMessage{
		RecipientEmail: email,
		Subject:        fmt.Sprintf("Order %s is now %s", o.OrderNumber, o.Status),
		HTMLBody: fmt.Sprintf("<p>Your order <strong>%s</strong> is now <strong>%s</strong>.</p>",
			o.OrderNumber, o.Status),
		TextBody: fmt.Sprintf("Your order %s is now %s.", o.OrderNumber, o.Status),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email message: %w", err)
	}
	if err := m.queue.PublishNotification(ctx, body); err != nil {
		return fmt.Errorf("enqueue status update for order %s: %w", o.OrderNumber, err)
	}
	return nil
}

func confirmationHTML(o *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Thanks for your order!</h1>")
	fmt.Fprintf(&b, "<p>Order <strong>%s</strong> has been received.</p><ul>", o.OrderNumber)
	for _, item := range o.Items {
		fmt.Fprintf(&b, "<li>%d &times; %s &mdash; %s</li>", item.Quantity, item.Name, item.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "</ul><p>Total: <strong>%s</strong></p>", o.TotalPrice.StringFixed(2))
	return b.String()
}

func confirmationText(o *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thanks for your order!\n\nOrder %s has been received.\n\n", o.OrderNumber)
	for _, item := range o.Items {
		fmt.Fprintf(&b, "  %d x %s - %s\n", item.Quantity, item.Name, item.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", o.TotalPrice.StringFixed(2))
	return b.String()
}
