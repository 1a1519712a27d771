package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentReceivedNotice tells the payer their payment was recorded
type PaymentReceivedNotice struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	AmountMinor   int64     `json:"amount_minor"`
	BalanceDue    int64     `json:"balance_due_minor"`
	Currency      string    `json:"currency"`
	Payer         PayerInfo `json:"payer"`
	PaymentDate   time.Time `json:"payment_date"`
}

// InvoicePaidNotice tells the customer the invoice is settled
type InvoicePaidNotice struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	TotalMinor    int64     `json:"total_minor"`
	Currency      string    `json:"currency"`
	Customer      Customer  `json:"customer"`
	PaidAt        time.Time `json:"paid_at"`
}

// PaymentReminder asks the customer to pay an overdue invoice
type PaymentReminder struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	PublicID      string    `json:"public_id"`
	BalanceDue    int64     `json:"balance_due_minor"`
	Currency      string    `json:"currency"`
	DueDate       time.Time `json:"due_date"`
	Customer      Customer  `json:"customer"`
}

// Notifier delivers customer-facing messages. Calls are fire-and-forget from
// the financial path's point of view.
type Notifier interface {
	NotifyPaymentReceived(ctx context.Context, notice PaymentReceivedNotice) error
	NotifyInvoicePaid(ctx context.Context, notice InvoicePaidNotice) error
	SendPaymentReminderEmail(ctx context.Context, reminder PaymentReminder) error
}
