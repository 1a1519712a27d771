package invoicing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
)

// PaymentMethod is the canonical payment type
type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCrypto       PaymentMethod = "crypto"
	PaymentMethodOther        PaymentMethod = "other"
)

// IsValid checks if the method is one of the canonical values
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodMobileMoney, PaymentMethodBankTransfer, PaymentMethodCard,
		PaymentMethodCash, PaymentMethodCrypto, PaymentMethodOther:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// MaxExternalReferenceLength bounds gateway references
const MaxExternalReferenceLength = 128

// PayerInfo identifies who paid. All fields are optional.
type PayerInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Metadata keeps the raw gateway payload for audit. Business logic never reads it.
type Metadata map[string]any

// Value implements driver.Valuer for JSON storage
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON storage
func (m *Metadata) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to scan Metadata: unsupported type")
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Payment is an immutable record of money received. InvoiceID is the intended
// target; whether it was applied is recorded by PaymentAllocation.
type Payment struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	InvoiceID         uuid.UUID
	AmountMinor       int64
	Currency          valueobject.Currency
	Method            PaymentMethod
	ExternalReference *string
	TransactionID     string
	Provider          string
	PaymentDate       time.Time
	Payer             PayerInfo
	Metadata          Metadata
	CreatedAt         time.Time
}

// NewPaymentParams are the inputs of a payment record
type NewPaymentParams struct {
	TenantID          uuid.UUID
	InvoiceID         uuid.UUID
	Amount            valueobject.Money
	Method            PaymentMethod
	ExternalReference *string
	TransactionID     string
	Provider          string
	PaymentDate       time.Time
	Payer             PayerInfo
	Metadata          Metadata
}

// NewPayment validates and builds a payment
func NewPayment(p NewPaymentParams) (*Payment, error) {
	if p.TenantID == uuid.Nil {
		return nil, NewValidationError("tenant_id", "cannot be empty")
	}
	if p.InvoiceID == uuid.Nil {
		return nil, NewValidationError("invoice_id", "cannot be empty")
	}
	if !p.Amount.IsPositive() {
		return nil, NewValidationError("amount", "must be positive")
	}
	if p.Amount.Currency() == "" {
		return nil, NewValidationError("currency", "cannot be empty")
	}
	if p.Method == "" {
		return nil, NewValidationError("method", "is required")
	}
	if !p.Method.IsValid() {
		return nil, NewValidationError("method", "unsupported payment method "+string(p.Method))
	}
	if p.PaymentDate.IsZero() {
		return nil, NewValidationError("payment_date", "is required")
	}
	ref, err := NormalizeReference(p.ExternalReference)
	if err != nil {
		return nil, err
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}

	return &Payment{
		ID:                uuid.New(),
		TenantID:          p.TenantID,
		InvoiceID:         p.InvoiceID,
		AmountMinor:       p.Amount.Minor(),
		Currency:          p.Amount.Currency(),
		Method:            p.Method,
		ExternalReference: ref,
		TransactionID:     strings.TrimSpace(p.TransactionID),
		Provider:          strings.ToLower(strings.TrimSpace(p.Provider)),
		PaymentDate:       p.PaymentDate.UTC(),
		Payer:             p.Payer,
		Metadata:          metadata,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// NormalizeReference trims the reference and maps blank to nil
func NormalizeReference(ref *string) (*string, error) {
	if ref == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > MaxExternalReferenceLength {
		return nil, NewValidationError("external_reference", "exceeds 128 characters")
	}
	return &trimmed, nil
}

// Amount returns the payment amount as Money
func (p *Payment) Amount() valueobject.Money {
	return valueobject.MustMoney(p.AmountMinor, p.Currency)
}

// Reference returns the external reference or ""
func (p *Payment) Reference() string {
	if p.ExternalReference == nil {
		return ""
	}
	return *p.ExternalReference
}

// PaymentAllocation assigns an amount of one payment to one invoice. Never
// mutated or deleted.
type PaymentAllocation struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	PaymentID   uuid.UUID
	InvoiceID   uuid.UUID
	AmountMinor int64
	CreatedAt   time.Time
}

// NewPaymentAllocation creates an allocation row
func NewPaymentAllocation(tenantID, paymentID, invoiceID uuid.UUID, amount int64) *PaymentAllocation {
	return &PaymentAllocation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PaymentID:   paymentID,
		InvoiceID:   invoiceID,
		AmountMinor: amount,
		CreatedAt:   time.Now().UTC(),
	}
}

// ManualReference namespaces a client-supplied idempotency key for manual
// payments so it cannot collide with gateway references or other tenants.
func ManualReference(tenantID uuid.UUID, key string) (*string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	ref := fmt.Sprintf("manual:%s:%s", tenantID, key)
	if len(ref) > MaxExternalReferenceLength {
		return nil, NewValidationError("idempotency_key", "is too long")
	}
	return &ref, nil
}
