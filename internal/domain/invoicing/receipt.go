package invoicing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReceiptSchemaVersion is bumped whenever ReceiptHashData changes shape
const ReceiptSchemaVersion = 1

// ReceiptParty identifies the issuer, the billed customer or a payer
type ReceiptParty struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// ReceiptInvoice is the invoice identity section of a receipt
type ReceiptInvoice struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	PublicID  string `json:"public_id"`
	Currency  string `json:"currency"`
	IssueDate string `json:"issue_date"`
	DueDate   string `json:"due_date"`
}

// ReceiptLineItem mirrors an invoice line in its original order
type ReceiptLineItem struct {
	Position       int    `json:"position"`
	Description    string `json:"description"`
	Quantity       int64  `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

// ReceiptTotals are all in minor units
type ReceiptTotals struct {
	SubtotalMinor   int64 `json:"subtotal_minor"`
	DiscountMinor   int64 `json:"discount_minor"`
	TaxMinor        int64 `json:"tax_minor"`
	TotalMinor      int64 `json:"total_minor"`
	AmountPaidMinor int64 `json:"amount_paid_minor"`
	BalanceDueMinor int64 `json:"balance_due_minor"`
}

// ReceiptPayment is one payment applied to the invoice
type ReceiptPayment struct {
	PaymentID         string       `json:"payment_id"`
	AmountMinor       int64        `json:"amount_minor"`
	Method            string       `json:"method"`
	ExternalReference string       `json:"external_reference,omitempty"`
	PaymentDate       string       `json:"payment_date"`
	Payer             ReceiptParty `json:"payer"`
}

// ReceiptHashData is the hashed content of a receipt. Timestamps are RFC 3339
// strings in UTC so the canonical text does not depend on the host zone.
type ReceiptHashData struct {
	SchemaVersion int               `json:"schema_version"`
	CreatedAt     string            `json:"created_at"`
	ReceiptNumber string            `json:"receipt_number"`
	Invoice       ReceiptInvoice    `json:"invoice"`
	LineItems     []ReceiptLineItem `json:"line_items"`
	Totals        ReceiptTotals     `json:"totals"`
	Payments      []ReceiptPayment  `json:"payments"`
	Issuer        ReceiptParty      `json:"issuer"`
	Customer      ReceiptParty      `json:"customer"`
}

// ReceiptSnapshot is the persisted, write-once receipt
type ReceiptSnapshot struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	PaymentID         uuid.UUID
	InvoiceID         uuid.UUID
	ReceiptNumber     string
	CanonicalSnapshot string
	SHA256Hash        string
	HashTail          string
	SchemaVersion     int
	CreatedAt         time.Time
}

// Data parses the stored canonical text back into ReceiptHashData
func (r *ReceiptSnapshot) Data() (*ReceiptHashData, error) {
	var data ReceiptHashData
	if err := json.Unmarshal([]byte(r.CanonicalSnapshot), &data); err != nil {
		return nil, fmt.Errorf("decode receipt %s: %w", r.ID, err)
	}
	return &data, nil
}

// ReceiptNumberFor derives a stable receipt number from the payment, so a
// regenerated receipt gets the same number.
func ReceiptNumberFor(p *Payment) string {
	id := strings.ReplaceAll(p.ID.String(), "-", "")
	return fmt.Sprintf("RCT-%s-%s", p.PaymentDate.UTC().Format("20060102"), strings.ToUpper(id[:8]))
}

// AllocatedPayment pairs a payment with the allocation applying it
type AllocatedPayment struct {
	Payment    *Payment
	Allocation *PaymentAllocation
}

// BuildReceiptHashData assembles the receipt content for the payment at index
// upTo in applied. Only payments up to and including that one are listed, so
// regenerating later yields the same totals.
func BuildReceiptHashData(inv *Invoice, applied []AllocatedPayment, upTo int, issuer ReceiptParty, createdAt time.Time) ReceiptHashData {
	items := make([]ReceiptLineItem, len(inv.LineItems))
	for i, li := range inv.LineItems {
		items[i] = ReceiptLineItem{
			Position:       li.Position,
			Description:    li.Description,
			Quantity:       li.Quantity,
			UnitPriceMinor: li.UnitPriceMinor,
			LineTotalMinor: li.LineTotalMinor,
		}
	}

	payments := make([]ReceiptPayment, 0, upTo+1)
	var paid int64
	for _, ap := range applied[:upTo+1] {
		paid += ap.Allocation.AmountMinor
		payments = append(payments, ReceiptPayment{
			PaymentID:         ap.Payment.ID.String(),
			AmountMinor:       ap.Allocation.AmountMinor,
			Method:            ap.Payment.Method.String(),
			ExternalReference: ap.Payment.Reference(),
			PaymentDate:       ap.Payment.PaymentDate.UTC().Format(time.RFC3339),
			Payer: ReceiptParty{
				Name:  ap.Payment.Payer.Name,
				Email: ap.Payment.Payer.Email,
				Phone: ap.Payment.Payer.Phone,
			},
		})
	}

	return ReceiptHashData{
		SchemaVersion: ReceiptSchemaVersion,
		CreatedAt:     createdAt.UTC().Format(time.RFC3339),
		ReceiptNumber: ReceiptNumberFor(applied[upTo].Payment),
		Invoice: ReceiptInvoice{
			ID:        inv.ID.String(),
			Number:    inv.InvoiceNumber,
			PublicID:  inv.PublicID,
			Currency:  inv.Currency.String(),
			IssueDate: inv.IssueDate.Format(time.DateOnly),
			DueDate:   inv.DueDate.Format(time.DateOnly),
		},
		LineItems: items,
		Totals: ReceiptTotals{
			SubtotalMinor:   inv.SubtotalMinor,
			DiscountMinor:   inv.DiscountMinor,
			TaxMinor:        inv.TaxMinor,
			TotalMinor:      inv.TotalMinor,
			AmountPaidMinor: paid,
			BalanceDueMinor: inv.TotalMinor - paid,
		},
		Payments: payments,
		Issuer:   issuer,
		Customer: ReceiptParty{
			Name:  inv.Customer.Name,
			Email: inv.Customer.Email,
			Phone: inv.Customer.Phone,
		},
	}
}

// NewReceiptSnapshot hashes data and builds the snapshot to persist
func NewReceiptSnapshot(tenantID, paymentID, invoiceID uuid.UUID, data ReceiptHashData, tailLength int) (*ReceiptSnapshot, error) {
	canonical, hash, err := ComputeHash(data)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339, data.CreatedAt)
	if err != nil {
		return nil, NewValidationError("created_at", "must be RFC 3339")
	}
	return &ReceiptSnapshot{
		ID:                uuid.New(),
		TenantID:          tenantID,
		PaymentID:         paymentID,
		InvoiceID:         invoiceID,
		ReceiptNumber:     data.ReceiptNumber,
		CanonicalSnapshot: string(canonical),
		SHA256Hash:        hash,
		HashTail:          HashTail(hash, tailLength),
		SchemaVersion:     data.SchemaVersion,
		CreatedAt:         createdAt,
	}, nil
}

// Audit recomputes the hash of the stored canonical text
func (r *ReceiptSnapshot) Audit() error {
	computed := HashCanonical([]byte(r.CanonicalSnapshot))
	if !hashesEqual(computed, r.SHA256Hash) {
		return &IntegrityError{ReceiptID: r.ID, StoredHash: r.SHA256Hash, ComputedHash: computed}
	}
	return nil
}
