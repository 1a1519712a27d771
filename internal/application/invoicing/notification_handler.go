package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// NotificationHandler turns financial events into customer messages. Each
// message is sent at most once per key through the idempotency store, which
// also covers two overlapping sweeps selecting the same invoice.
type NotificationHandler struct {
	notifier invoicing.Notifier
	store    shared.IdempotencyStore
	config   shared.IdempotencyConfig
	logger   *zap.Logger
}

// NewNotificationHandler creates a NotificationHandler. A nil store disables dedupe.
func NewNotificationHandler(notifier invoicing.Notifier, store shared.IdempotencyStore, config shared.IdempotencyConfig, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{notifier: notifier, store: store, config: config, logger: logger}
}

// EventTypes returns the events that produce notifications
func (h *NotificationHandler) EventTypes() []string {
	return []string{
		invoicing.EventTypePaymentRecorded,
		invoicing.EventTypeInvoicePaid,
		invoicing.EventTypeInvoiceOverdue,
	}
}

// Handle dispatches one event. Failures come back as *NotificationError for the
// bus to log; they never reach the financial operation that raised the event.
func (h *NotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *invoicing.PaymentRecordedEvent:
		return h.once(ctx, "payment-received:"+e.AggregateID().String(), "payment_received", func() error {
			return h.notifier.NotifyPaymentReceived(ctx, invoicing.PaymentReceivedNotice{
				TenantID:      e.TenantID(),
				PaymentID:     e.AggregateID(),
				InvoiceID:     e.InvoiceID,
				InvoiceNumber: e.InvoiceNumber,
				AmountMinor:   e.AmountMinor,
				BalanceDue:    e.BalanceDue,
				Currency:      e.Currency,
				Payer:         e.Payer,
				PaymentDate:   e.PaymentDate,
			})
		})
	case *invoicing.InvoicePaidEvent:
		return h.once(ctx, "invoice-paid:"+e.AggregateID().String(), "invoice_paid", func() error {
			return h.notifier.NotifyInvoicePaid(ctx, invoicing.InvoicePaidNotice{
				TenantID:      e.TenantID(),
				InvoiceID:     e.AggregateID(),
				InvoiceNumber: e.InvoiceNumber,
				TotalMinor:    e.TotalMinor,
				Currency:      e.Currency,
				Customer:      e.Customer,
				PaidAt:        e.PaidAt,
			})
		})
	case *invoicing.InvoiceOverdueEvent:
		key := ReminderKey(e.AggregateID().String(), e.SweepDay)
		return h.once(ctx, key, "payment_reminder", func() error {
			return h.notifier.SendPaymentReminderEmail(ctx, invoicing.PaymentReminder{
				TenantID:      e.TenantID(),
				InvoiceID:     e.AggregateID(),
				InvoiceNumber: e.InvoiceNumber,
				PublicID:      e.PublicID,
				BalanceDue:    e.BalanceDue,
				Currency:      e.Currency,
				DueDate:       e.DueDate,
				Customer:      e.Customer,
			})
		})
	default:
		return nil
	}
}

// ReminderKey is the dedupe key of one reminder per invoice per day
func ReminderKey(invoiceID string, day time.Time) string {
	return fmt.Sprintf("reminder:%s:%s", invoiceID, day.Format(time.DateOnly))
}

func (h *NotificationHandler) once(ctx context.Context, key, channel string, send func() error) error {
	if h.store != nil && h.config.Enabled {
		isNew, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
		if err != nil {
			// Store unavailable: send without dedupe.
			h.logger.Warn("Notification dedupe store failed, sending anyway",
				zap.String("key", key),
				zap.Error(err))
		} else if !isNew {
			h.logger.Debug("Notification already sent", zap.String("key", key))
			return nil
		}
	}

	if err := send(); err != nil {
		if h.store != nil && h.config.Enabled {
			if relErr := h.store.Release(ctx, key); relErr != nil {
				h.logger.Warn("Failed to release notification key", zap.String("key", key), zap.Error(relErr))
			}
		}
		return &invoicing.NotificationError{Channel: channel, Cause: err}
	}
	h.logger.Info("Notification sent", zap.String("channel", channel), zap.String("key", key))
	return nil
}

var _ shared.EventHandler = (*NotificationHandler)(nil)
