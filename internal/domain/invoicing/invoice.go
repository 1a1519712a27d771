package invoicing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
)

// Customer is the billed party as it appears on the invoice
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LineItem is one billed line. Position fixes its order on the invoice and receipt.
type LineItem struct {
	Position       int    `json:"position"`
	Description    string `json:"description"`
	Quantity       int64  `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

// NewLineItem computes the line total from quantity and unit price
func NewLineItem(description string, quantity, unitPriceMinor int64) (LineItem, error) {
	if strings.TrimSpace(description) == "" {
		return LineItem{}, NewValidationError("line_items.description", "cannot be empty")
	}
	if quantity <= 0 {
		return LineItem{}, NewValidationError("line_items.quantity", "must be positive")
	}
	if unitPriceMinor < 0 {
		return LineItem{}, NewValidationError("line_items.unit_price_minor", "cannot be negative")
	}
	return LineItem{
		Description:    strings.TrimSpace(description),
		Quantity:       quantity,
		UnitPriceMinor: unitPriceMinor,
		LineTotalMinor: quantity * unitPriceMinor,
	}, nil
}

// Invoice is the ledger aggregate. Only the allocation path changes BalanceDue;
// only allocation and the overdue sweep change Status outside explicit actions.
type Invoice struct {
	shared.TenantAggregateRoot
	InvoiceNumber string
	PublicID      string
	Status        InvoiceStatus
	Currency      valueobject.Currency
	SubtotalMinor int64
	DiscountMinor int64
	TaxMinor      int64
	TotalMinor    int64
	BalanceDue    int64
	IssueDate     time.Time
	DueDate       time.Time
	Customer      Customer
	LineItems     []LineItem
	SentAt        *time.Time
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CancelReason  string
}

// NewInvoiceParams carries everything needed to draft an invoice
type NewInvoiceParams struct {
	TenantID      uuid.UUID
	InvoiceNumber string
	Currency      valueobject.Currency
	LineItems     []LineItem
	DiscountMinor int64
	TaxMinor      int64
	IssueDate     time.Time
	DueDate       time.Time
	Customer      Customer
}

// NewInvoice drafts an invoice. Totals are computed from the line items so
// stored totals always agree with them.
func NewInvoice(p NewInvoiceParams) (*Invoice, error) {
	if p.TenantID == uuid.Nil {
		return nil, NewValidationError("tenant_id", "cannot be empty")
	}
	if strings.TrimSpace(p.InvoiceNumber) == "" {
		return nil, NewValidationError("invoice_number", "cannot be empty")
	}
	if p.Currency == "" {
		return nil, NewValidationError("currency", "cannot be empty")
	}
	if len(p.LineItems) == 0 {
		return nil, NewValidationError("line_items", "at least one line item is required")
	}
	if p.DiscountMinor < 0 || p.TaxMinor < 0 {
		return nil, NewValidationError("totals", "discount and tax cannot be negative")
	}
	if p.IssueDate.IsZero() || p.DueDate.IsZero() {
		return nil, NewValidationError("dates", "issue and due dates are required")
	}
	if CalendarDay(p.DueDate).Before(CalendarDay(p.IssueDate)) {
		return nil, NewValidationError("due_date", "cannot be before issue date")
	}
	if strings.TrimSpace(p.Customer.Name) == "" {
		return nil, NewValidationError("customer.name", "cannot be empty")
	}

	items := make([]LineItem, len(p.LineItems))
	var subtotal int64
	for i, item := range p.LineItems {
		item.Position = i + 1
		items[i] = item
		subtotal += item.LineTotalMinor
	}
	total := subtotal - p.DiscountMinor + p.TaxMinor
	if total <= 0 {
		return nil, NewValidationError("total", "must be positive")
	}

	publicID, err := newPublicID()
	if err != nil {
		return nil, err
	}

	return &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(p.TenantID),
		InvoiceNumber:       strings.TrimSpace(p.InvoiceNumber),
		PublicID:            publicID,
		Status:              InvoiceStatusDraft,
		Currency:            p.Currency,
		SubtotalMinor:       subtotal,
		DiscountMinor:       p.DiscountMinor,
		TaxMinor:            p.TaxMinor,
		TotalMinor:          total,
		BalanceDue:          total,
		IssueDate:           CalendarDay(p.IssueDate),
		DueDate:             CalendarDay(p.DueDate),
		Customer:            p.Customer,
		LineItems:           items,
	}, nil
}

func newPublicID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate public id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AmountPaid is total minus balance due
func (inv *Invoice) AmountPaid() int64 {
	return inv.TotalMinor - inv.BalanceDue
}

// IsPastDue is the derived overdue flag. It stays true for a partially paid
// invoice past its due date even though the status reads partially_paid.
func (inv *Invoice) IsPastDue(today time.Time) bool {
	return inv.BalanceDue > 0 && !inv.Status.IsTerminal() && IsPastDue(inv.DueDate, today)
}

// CheckAllocation verifies that amount can be allocated right now. A paid
// invoice has a zero balance, so any further amount is reported as exceeding
// it; the caller gets balance_due=0 back. Cancelled invoices keep a balance and
// are rejected as terminal.
func (inv *Invoice) CheckAllocation(amount valueobject.Money) error {
	if inv.Status == InvoiceStatusCancelled {
		return &TerminalStateError{InvoiceID: inv.ID, Status: inv.Status}
	}
	if !amount.IsPositive() {
		return NewValidationError("amount", "must be positive")
	}
	if amount.Currency() != inv.Currency {
		return NewValidationError("currency", fmt.Sprintf("payment currency %s does not match invoice currency %s", amount.Currency(), inv.Currency))
	}
	if amount.Minor() > inv.BalanceDue {
		return &ExceedsBalanceError{
			InvoiceID:  inv.ID,
			Requested:  amount.Minor(),
			BalanceDue: inv.BalanceDue,
			Currency:   inv.Currency.String(),
		}
	}
	if inv.Status.IsTerminal() {
		return &TerminalStateError{InvoiceID: inv.ID, Status: inv.Status}
	}
	return nil
}

// ApplyAllocation applies payment to the invoice and returns the allocation
// row to persist alongside the new balance.
func (inv *Invoice) ApplyAllocation(payment *Payment, today time.Time) (*PaymentAllocation, error) {
	if err := inv.CheckAllocation(payment.Amount()); err != nil {
		return nil, err
	}

	allocation := NewPaymentAllocation(inv.TenantID, payment.ID, inv.ID, payment.AmountMinor)

	inv.BalanceDue -= payment.AmountMinor
	previous := inv.Status
	inv.Status = NextStatus(inv.Status, inv.BalanceDue, inv.TotalMinor, inv.DueDate, today, TriggerAllocation)
	inv.Touch()
	inv.IncrementVersion()

	if inv.Status == InvoiceStatusPaid {
		paidAt := inv.UpdatedAt
		inv.PaidAt = &paidAt
		inv.AddDomainEvent(NewInvoicePaidEvent(inv, payment.ID))
	} else {
		inv.AddDomainEvent(NewInvoicePartiallyPaidEvent(inv, payment.ID, payment.AmountMinor, previous))
	}
	return allocation, nil
}

// MarkOverdue applies the sweep transition and reports whether it changed anything
func (inv *Invoice) MarkOverdue(today time.Time) bool {
	next := NextStatus(inv.Status, inv.BalanceDue, inv.TotalMinor, inv.DueDate, today, TriggerSweep)
	if next != InvoiceStatusOverdue || inv.Status == InvoiceStatusOverdue {
		return false
	}
	inv.Status = next
	inv.Touch()
	inv.IncrementVersion()
	inv.AddDomainEvent(NewInvoiceOverdueEvent(inv, today))
	return true
}

// Send moves a draft to sent
func (inv *Invoice) Send() error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot send invoice in %s status", inv.Status))
	}
	now := time.Now().UTC()
	inv.Status = InvoiceStatusSent
	inv.SentAt = &now
	inv.Touch()
	inv.IncrementVersion()
	inv.AddDomainEvent(NewInvoiceSentEvent(inv))
	return nil
}

// MarkViewed records that the customer opened a sent invoice. Other statuses
// are left alone so a late view never regresses a paid or overdue invoice.
func (inv *Invoice) MarkViewed() bool {
	if inv.Status != InvoiceStatusSent {
		return false
	}
	inv.Status = InvoiceStatusViewed
	inv.Touch()
	inv.IncrementVersion()
	return true
}

// Cancel is terminal and blocks further allocation
func (inv *Invoice) Cancel(reason string) error {
	if !inv.Status.CanBeCancelled() {
		return &TerminalStateError{InvoiceID: inv.ID, Status: inv.Status}
	}
	if strings.TrimSpace(reason) == "" {
		return NewValidationError("reason", "cancel reason is required")
	}
	now := time.Now().UTC()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = strings.TrimSpace(reason)
	inv.Touch()
	inv.IncrementVersion()
	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv))
	return nil
}
