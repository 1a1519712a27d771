// Package notification delivers customer-facing messages.
package notification

import (
	"context"

	"github.com/invoicing/backend/internal/domain/invoicing"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. It is the development driver
// and the fallback when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notifier")}
}

// NotifyPaymentReceived implements invoicing.Notifier
func (n *LogNotifier) NotifyPaymentReceived(_ context.Context, notice invoicing.PaymentReceivedNotice) error {
	n.logger.Info("Payment received notification",
		zap.String("tenant_id", notice.TenantID.String()),
		zap.String("payment_id", notice.PaymentID.String()),
		zap.String("invoice_number", notice.InvoiceNumber),
		zap.Int64("amount_minor", notice.AmountMinor),
		zap.Int64("balance_due_minor", notice.BalanceDue),
		zap.String("currency", notice.Currency),
		zap.String("payer_email", invoicing.MaskEmail(notice.Payer.Email)))
	return nil
}

// NotifyInvoicePaid implements invoicing.Notifier
func (n *LogNotifier) NotifyInvoicePaid(_ context.Context, notice invoicing.InvoicePaidNotice) error {
	n.logger.Info("Invoice paid notification",
		zap.String("tenant_id", notice.TenantID.String()),
		zap.String("invoice_id", notice.InvoiceID.String()),
		zap.String("invoice_number", notice.InvoiceNumber),
		zap.Int64("total_minor", notice.TotalMinor),
		zap.String("currency", notice.Currency))
	return nil
}

// SendPaymentReminderEmail implements invoicing.Notifier
func (n *LogNotifier) SendPaymentReminderEmail(_ context.Context, reminder invoicing.PaymentReminder) error {
	n.logger.Info("Payment reminder",
		zap.String("tenant_id", reminder.TenantID.String()),
		zap.String("invoice_id", reminder.InvoiceID.String()),
		zap.String("invoice_number", reminder.InvoiceNumber),
		zap.Int64("balance_due_minor", reminder.BalanceDue),
		zap.Time("due_date", reminder.DueDate),
		zap.String("customer_email", invoicing.MaskEmail(reminder.Customer.Email)))
	return nil
}

var _ invoicing.Notifier = (*LogNotifier)(nil)
