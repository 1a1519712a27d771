package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
)

// Aggregate type names
const (
	AggregateTypeInvoice = "Invoice"
	AggregateTypePayment = "Payment"
)

// Event type names
const (
	EventTypeInvoiceSent          = "InvoiceSent"
	EventTypeInvoicePartiallyPaid = "InvoicePartiallyPaid"
	EventTypeInvoicePaid          = "InvoicePaid"
	EventTypeInvoiceOverdue       = "InvoiceOverdue"
	EventTypeInvoiceCancelled     = "InvoiceCancelled"
	EventTypePaymentRecorded      = "PaymentRecorded"
	EventTypePaymentUnallocated   = "PaymentUnallocated"
)

// InvoiceSentEvent is raised when a draft is sent to the customer
type InvoiceSentEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string    `json:"invoice_number"`
	Customer      Customer  `json:"customer"`
	TotalMinor    int64     `json:"total_minor"`
	Currency      string    `json:"currency"`
	DueDate       time.Time `json:"due_date"`
}

func NewInvoiceSentEvent(inv *Invoice) *InvoiceSentEvent {
	return &InvoiceSentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceSent, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceNumber:   inv.InvoiceNumber,
		Customer:        inv.Customer,
		TotalMinor:      inv.TotalMinor,
		Currency:        inv.Currency.String(),
		DueDate:         inv.DueDate,
	}
}

// InvoicePartiallyPaidEvent is raised when an allocation leaves a balance
type InvoicePartiallyPaidEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber  string        `json:"invoice_number"`
	PaymentID      uuid.UUID     `json:"payment_id"`
	AmountMinor    int64         `json:"amount_minor"`
	BalanceDue     int64         `json:"balance_due_minor"`
	Currency       string        `json:"currency"`
	PreviousStatus InvoiceStatus `json:"previous_status"`
}

func NewInvoicePartiallyPaidEvent(inv *Invoice, paymentID uuid.UUID, amount int64, previous InvoiceStatus) *InvoicePartiallyPaidEvent {
	return &InvoicePartiallyPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePartiallyPaid, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceNumber:   inv.InvoiceNumber,
		PaymentID:       paymentID,
		AmountMinor:     amount,
		BalanceDue:      inv.BalanceDue,
		Currency:        inv.Currency.String(),
		PreviousStatus:  previous,
	}
}

// InvoicePaidEvent is raised when the balance reaches zero
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string    `json:"invoice_number"`
	PaymentID     uuid.UUID `json:"payment_id"`
	TotalMinor    int64     `json:"total_minor"`
	Currency      string    `json:"currency"`
	Customer      Customer  `json:"customer"`
	PaidAt        time.Time `json:"paid_at"`
}

func NewInvoicePaidEvent(inv *Invoice, paymentID uuid.UUID) *InvoicePaidEvent {
	paidAt := time.Now().UTC()
	if inv.PaidAt != nil {
		paidAt = *inv.PaidAt
	}
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceNumber:   inv.InvoiceNumber,
		PaymentID:       paymentID,
		TotalMinor:      inv.TotalMinor,
		Currency:        inv.Currency.String(),
		Customer:        inv.Customer,
		PaidAt:          paidAt,
	}
}

// InvoiceOverdueEvent is raised by the sweep. SweepDay keys reminder dedupe.
type InvoiceOverdueEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string    `json:"invoice_number"`
	PublicID      string    `json:"public_id"`
	BalanceDue    int64     `json:"balance_due_minor"`
	Currency      string    `json:"currency"`
	DueDate       time.Time `json:"due_date"`
	SweepDay      time.Time `json:"sweep_day"`
	Customer      Customer  `json:"customer"`
}

func NewInvoiceOverdueEvent(inv *Invoice, today time.Time) *InvoiceOverdueEvent {
	return &InvoiceOverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceOverdue, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceNumber:   inv.InvoiceNumber,
		PublicID:        inv.PublicID,
		BalanceDue:      inv.BalanceDue,
		Currency:        inv.Currency.String(),
		DueDate:         inv.DueDate,
		SweepDay:        CalendarDay(today),
		Customer:        inv.Customer,
	}
}

// InvoiceCancelledEvent is raised on explicit cancellation
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
	Reason        string `json:"reason"`
	BalanceDue    int64  `json:"balance_due_minor"`
}

func NewInvoiceCancelledEvent(inv *Invoice) *InvoiceCancelledEvent {
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCancelled, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceNumber:   inv.InvoiceNumber,
		Reason:          inv.CancelReason,
		BalanceDue:      inv.BalanceDue,
	}
}

// PaymentRecordedEvent is raised after a payment is allocated
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	InvoiceID         uuid.UUID     `json:"invoice_id"`
	InvoiceNumber     string        `json:"invoice_number"`
	AmountMinor       int64         `json:"amount_minor"`
	Currency          string        `json:"currency"`
	Method            PaymentMethod `json:"method"`
	ExternalReference string        `json:"external_reference,omitempty"`
	BalanceDue        int64         `json:"balance_due_minor"`
	Payer             PayerInfo     `json:"payer"`
	PaymentDate       time.Time     `json:"payment_date"`
}

func NewPaymentRecordedEvent(p *Payment, inv *Invoice) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePaymentRecorded, AggregateTypePayment, p.ID, p.TenantID),
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		AmountMinor:       p.AmountMinor,
		Currency:          p.Currency.String(),
		Method:            p.Method,
		ExternalReference: p.Reference(),
		BalanceDue:        inv.BalanceDue,
		Payer:             p.Payer,
		PaymentDate:       p.PaymentDate,
	}
}

// PaymentUnallocatedEvent flags a durable payment that reconciliation must pick up
type PaymentUnallocatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID         uuid.UUID `json:"invoice_id"`
	AmountMinor       int64     `json:"amount_minor"`
	Currency          string    `json:"currency"`
	ExternalReference string    `json:"external_reference,omitempty"`
	Reason            string    `json:"reason"`
}

func NewPaymentUnallocatedEvent(p *Payment, reason string) *PaymentUnallocatedEvent {
	return &PaymentUnallocatedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePaymentUnallocated, AggregateTypePayment, p.ID, p.TenantID),
		InvoiceID:         p.InvoiceID,
		AmountMinor:       p.AmountMinor,
		Currency:          p.Currency.String(),
		ExternalReference: p.Reference(),
		Reason:            reason,
	}
}
