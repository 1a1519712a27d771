package dto

import (
	"time"

	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
)

// LineItemRequest is one requested invoice line
type LineItemRequest struct {
	Description    string `json:"description" binding:"required,max=500"`
	Quantity       int64  `json:"quantity" binding:"required,gt=0"`
	UnitPriceMinor int64  `json:"unit_price_minor" binding:"gte=0"`
}

// CustomerRequest identifies the billed party
type CustomerRequest struct {
	Name  string `json:"name" binding:"required,max=200"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"omitempty,max=32"`
}

// CreateInvoiceRequest drafts an invoice
type CreateInvoiceRequest struct {
	InvoiceNumber string            `json:"invoice_number" binding:"required,max=64"`
	Currency      string            `json:"currency" binding:"required,len=3"`
	LineItems     []LineItemRequest `json:"line_items" binding:"required,min=1,dive"`
	DiscountMinor int64             `json:"discount_minor" binding:"gte=0"`
	TaxMinor      int64             `json:"tax_minor" binding:"gte=0"`
	IssueDate     *time.Time        `json:"issue_date"`
	DueDate       time.Time         `json:"due_date" binding:"required"`
	Customer      CustomerRequest   `json:"customer" binding:"required"`
}

// CancelInvoiceRequest carries the cancellation reason
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// InvoiceResponse is the API view of an invoice
type InvoiceResponse struct {
	ID              string               `json:"id"`
	InvoiceNumber   string               `json:"invoice_number"`
	PublicID        string               `json:"public_id"`
	Status          string               `json:"status"`
	IsPastDue       bool                 `json:"is_past_due"`
	Currency        string               `json:"currency"`
	SubtotalMinor   int64                `json:"subtotal_minor"`
	DiscountMinor   int64                `json:"discount_minor"`
	TaxMinor        int64                `json:"tax_minor"`
	TotalMinor      int64                `json:"total_minor"`
	AmountPaidMinor int64                `json:"amount_paid_minor"`
	BalanceDueMinor int64                `json:"balance_due_minor"`
	BalanceDue      string               `json:"balance_due"`
	IssueDate       string               `json:"issue_date"`
	DueDate         string               `json:"due_date"`
	Customer        invoicing.Customer   `json:"customer"`
	LineItems       []invoicing.LineItem `json:"line_items"`
	SentAt          *time.Time           `json:"sent_at,omitempty"`
	PaidAt          *time.Time           `json:"paid_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	CancelReason    string               `json:"cancel_reason,omitempty"`
	Version         int                  `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// ToInvoiceResponse maps an invoice; today decides is_past_due
func ToInvoiceResponse(inv *invoicing.Invoice, today time.Time) InvoiceResponse {
	return InvoiceResponse{
		ID:              inv.ID.String(),
		InvoiceNumber:   inv.InvoiceNumber,
		PublicID:        inv.PublicID,
		Status:          inv.Status.String(),
		IsPastDue:       inv.IsPastDue(today),
		Currency:        inv.Currency.String(),
		SubtotalMinor:   inv.SubtotalMinor,
		DiscountMinor:   inv.DiscountMinor,
		TaxMinor:        inv.TaxMinor,
		TotalMinor:      inv.TotalMinor,
		AmountPaidMinor: inv.AmountPaid(),
		BalanceDueMinor: inv.BalanceDue,
		BalanceDue:      FormatMajor(inv.BalanceDue, inv.Currency),
		IssueDate:       inv.IssueDate.Format(time.DateOnly),
		DueDate:         inv.DueDate.Format(time.DateOnly),
		Customer:        inv.Customer,
		LineItems:       inv.LineItems,
		SentAt:          inv.SentAt,
		PaidAt:          inv.PaidAt,
		CancelledAt:     inv.CancelledAt,
		CancelReason:    inv.CancelReason,
		Version:         inv.Version,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
}

// FormatMajor renders minor units as a fixed-scale decimal string
func FormatMajor(minor int64, currency valueobject.Currency) string {
	return valueobject.MustMoney(minor, currency).Major().StringFixed(int32(currency.Scale()))
}

// PayerRequest identifies who paid
type PayerRequest struct {
	Name  string `json:"name" binding:"max=200"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"max=32"`
}

// AllocatePaymentRequest records a manual payment. Exactly one of
// amount_minor and amount (major units, e.g. "500.00") is expected.
type AllocatePaymentRequest struct {
	AmountMinor   int64          `json:"amount_minor" binding:"gte=0"`
	Amount        string         `json:"amount" binding:"omitempty,numeric"`
	Currency      string         `json:"currency" binding:"required,len=3"`
	Method        string         `json:"method" binding:"required,oneof=mobile_money bank_transfer card cash crypto other"`
	TransactionID string         `json:"transaction_id" binding:"max=128"`
	PaymentDate   *time.Time     `json:"payment_date"`
	Payer         PayerRequest   `json:"payer"`
	Metadata      map[string]any `json:"metadata"`
}

// VerifyPaymentRequest is the polling path: the client reports a gateway
// transaction id or reference after checkout.
type VerifyPaymentRequest struct {
	Provider      string `json:"provider" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required_without=Reference"`
	Reference     string `json:"reference" binding:"required_without=TransactionID"`
}

// PaymentResponse is the API view of a payment
type PaymentResponse struct {
	ID                string              `json:"id"`
	InvoiceID         string              `json:"invoice_id"`
	AmountMinor       int64               `json:"amount_minor"`
	Amount            string              `json:"amount"`
	Currency          string              `json:"currency"`
	Method            string              `json:"method"`
	ExternalReference string              `json:"external_reference,omitempty"`
	TransactionID     string              `json:"transaction_id,omitempty"`
	Provider          string              `json:"provider,omitempty"`
	PaymentDate       time.Time           `json:"payment_date"`
	Payer             invoicing.PayerInfo `json:"payer"`
	CreatedAt         time.Time           `json:"created_at"`
}

// ToPaymentResponse maps a payment
func ToPaymentResponse(p *invoicing.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                p.ID.String(),
		InvoiceID:         p.InvoiceID.String(),
		AmountMinor:       p.AmountMinor,
		Amount:            FormatMajor(p.AmountMinor, p.Currency),
		Currency:          p.Currency.String(),
		Method:            p.Method.String(),
		ExternalReference: p.Reference(),
		TransactionID:     p.TransactionID,
		Provider:          p.Provider,
		PaymentDate:       p.PaymentDate,
		Payer:             p.Payer,
		CreatedAt:         p.CreatedAt,
	}
}

// ToPaymentResponses maps a slice of payments
func ToPaymentResponses(payments []invoicing.Payment) []PaymentResponse {
	out := make([]PaymentResponse, len(payments))
	for i := range payments {
		out[i] = ToPaymentResponse(&payments[i])
	}
	return out
}

// AllocationResponse is returned by the allocation endpoints. Degraded means
// the payment is recorded but not yet applied to the invoice.
type AllocationResponse struct {
	Payment      PaymentResponse  `json:"payment"`
	AllocationID string           `json:"allocation_id,omitempty"`
	Invoice      *InvoiceResponse `json:"invoice,omitempty"`
	ReceiptID    string           `json:"receipt_id,omitempty"`
	HashTail     string           `json:"hash_tail,omitempty"`
	Degraded     bool             `json:"degraded"`
}

// GatewayPaymentResponse is returned on the gateway paths
type GatewayPaymentResponse struct {
	Success          bool                `json:"success"`
	AlreadyProcessed bool                `json:"already_processed"`
	Ignored          bool                `json:"ignored,omitempty"`
	Degraded         bool                `json:"degraded,omitempty"`
	PaymentID        string              `json:"payment_id,omitempty"`
	Status           string              `json:"status,omitempty"`
	Allocation       *AllocationResponse `json:"allocation,omitempty"`
}
