package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Message types placed in the envelope's type field and the AMQP Type property
const (
	MessageTypePaymentReceived = "payment_received"
	MessageTypeInvoicePaid     = "invoice_paid"
	MessageTypePaymentReminder = "payment_reminder"
)

// Publisher is the subset of *amqp.Channel the notifier uses
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Envelope is the JSON body consumed by the mail service
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	TenantID   string    `json:"tenant_id"`
	Payload    any       `json:"payload"`
}

// AMQPNotifier publishes notifications as persistent JSON messages
type AMQPNotifier struct {
	publisher  Publisher
	exchange   string
	routingKey string
	timeout    time.Duration
	logger     *zap.Logger

	conn *amqp.Connection
	chn  *amqp.Channel
}

// NewAMQPNotifier wraps an existing publisher. routingKey is the queue name
// when exchange is empty (default exchange).
func NewAMQPNotifier(publisher Publisher, exchange, routingKey string, logger *zap.Logger) *AMQPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPNotifier{
		publisher:  publisher,
		exchange:   exchange,
		routingKey: routingKey,
		timeout:    5 * time.Second,
		logger:     logger.Named("amqp_notifier"),
	}
}

// DialAMQP connects to the broker, declares the durable queue and returns a
// notifier that owns the connection.
func DialAMQP(url, exchange, queue string, logger *zap.Logger) (*AMQPNotifier, error) {
	if queue == "" {
		return nil, errors.New("amqp notifier: queue is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp notifier: dial: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp notifier: open channel: %w", err)
	}
	if _, err := chn.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = chn.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp notifier: declare queue %s: %w", queue, err)
	}
	if exchange != "" {
		if err := chn.QueueBind(queue, queue, exchange, false, nil); err != nil {
			_ = chn.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("amqp notifier: bind queue %s: %w", queue, err)
		}
	}

	n := NewAMQPNotifier(chn, exchange, queue, logger)
	n.conn, n.chn = conn, chn
	return n, nil
}

// NotifyPaymentReceived implements invoicing.Notifier
func (n *AMQPNotifier) NotifyPaymentReceived(ctx context.Context, notice invoicing.PaymentReceivedNotice) error {
	return n.publish(ctx, MessageTypePaymentReceived, notice.TenantID, notice)
}

// NotifyInvoicePaid implements invoicing.Notifier
func (n *AMQPNotifier) NotifyInvoicePaid(ctx context.Context, notice invoicing.InvoicePaidNotice) error {
	return n.publish(ctx, MessageTypeInvoicePaid, notice.TenantID, notice)
}

// SendPaymentReminderEmail implements invoicing.Notifier
func (n *AMQPNotifier) SendPaymentReminderEmail(ctx context.Context, reminder invoicing.PaymentReminder) error {
	return n.publish(ctx, MessageTypePaymentReminder, reminder.TenantID, reminder)
}

func (n *AMQPNotifier) publish(ctx context.Context, msgType string, tenantID uuid.UUID, payload any) error {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       msgType,
		OccurredAt: time.Now().UTC(),
		TenantID:   tenantID.String(),
		Payload:    payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("amqp notifier: encode %s: %w", msgType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	err = n.publisher.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Type:         msgType,
		Timestamp:    env.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp notifier: publish %s: %w", msgType, err)
	}
	n.logger.Debug("Notification published",
		zap.String("type", msgType),
		zap.String("message_id", env.ID),
		zap.String("routing_key", n.routingKey))
	return nil
}

// Close closes the channel and connection opened by DialAMQP
func (n *AMQPNotifier) Close() error {
	var errs []error
	if n.chn != nil {
		errs = append(errs, n.chn.Close())
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
	}
	return errors.Join(errs...)
}

var _ invoicing.Notifier = (*AMQPNotifier)(nil)
