package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
)

// PayerColumns is the payer snapshot embedded in the payment row
type PayerColumns struct {
	Name  string `gorm:"type:varchar(200)"`
	Email string `gorm:"type:varchar(254)"`
	Phone string `gorm:"type:varchar(32)"`
}

// PaymentModel is the persistence model for Payment. Rows are insert-only.
// The unique index on external_reference is the duplicate-delivery guard.
type PaymentModel struct {
	ID                uuid.UUID               `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID               `gorm:"type:uuid;not null;index"`
	InvoiceID         uuid.UUID               `gorm:"type:uuid;not null;index"`
	AmountMinor       int64                   `gorm:"not null"`
	Currency          valueobject.Currency    `gorm:"type:varchar(3);not null"`
	Method            invoicing.PaymentMethod `gorm:"type:varchar(20);not null"`
	ExternalReference *string                 `gorm:"type:varchar(128);uniqueIndex:idx_payments_external_reference"`
	TransactionID     string                  `gorm:"type:varchar(128)"`
	Provider          string                  `gorm:"type:varchar(32)"`
	PaymentDate       time.Time               `gorm:"not null"`
	Payer             PayerColumns            `gorm:"embedded;embeddedPrefix:payer_"`
	Metadata          invoicing.Metadata      `gorm:"type:jsonb"`
	CreatedAt         time.Time               `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *invoicing.Payment {
	return &invoicing.Payment{
		ID:                m.ID,
		TenantID:          m.TenantID,
		InvoiceID:         m.InvoiceID,
		AmountMinor:       m.AmountMinor,
		Currency:          m.Currency,
		Method:            m.Method,
		ExternalReference: m.ExternalReference,
		TransactionID:     m.TransactionID,
		Provider:          m.Provider,
		PaymentDate:       m.PaymentDate.UTC(),
		Payer: invoicing.PayerInfo{
			Name:  m.Payer.Name,
			Email: m.Payer.Email,
			Phone: m.Payer.Phone,
		},
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// PaymentModelFromDomain creates a PaymentModel from a domain Payment
func PaymentModelFromDomain(p *invoicing.Payment) *PaymentModel {
	return &PaymentModel{
		ID:                p.ID,
		TenantID:          p.TenantID,
		InvoiceID:         p.InvoiceID,
		AmountMinor:       p.AmountMinor,
		Currency:          p.Currency,
		Method:            p.Method,
		ExternalReference: p.ExternalReference,
		TransactionID:     p.TransactionID,
		Provider:          p.Provider,
		PaymentDate:       p.PaymentDate,
		Payer: PayerColumns{
			Name:  p.Payer.Name,
			Email: p.Payer.Email,
			Phone: p.Payer.Phone,
		},
		Metadata:  p.Metadata,
		CreatedAt: p.CreatedAt,
	}
}

// PaymentAllocationModel is the persistence model for PaymentAllocation.
// One allocation per payment is enforced by the unique index on payment_id.
type PaymentAllocationModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index"`
	PaymentID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_allocations_payment"`
	InvoiceID   uuid.UUID `gorm:"type:uuid;not null;index:idx_allocations_invoice_created,priority:1"`
	AmountMinor int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index:idx_allocations_invoice_created,priority:2"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain PaymentAllocation
func (m *PaymentAllocationModel) ToDomain() *invoicing.PaymentAllocation {
	return &invoicing.PaymentAllocation{
		ID:          m.ID,
		TenantID:    m.TenantID,
		PaymentID:   m.PaymentID,
		InvoiceID:   m.InvoiceID,
		AmountMinor: m.AmountMinor,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

// PaymentAllocationModelFromDomain creates a PaymentAllocationModel from a domain PaymentAllocation
func PaymentAllocationModelFromDomain(a *invoicing.PaymentAllocation) *PaymentAllocationModel {
	return &PaymentAllocationModel{
		ID:          a.ID,
		TenantID:    a.TenantID,
		PaymentID:   a.PaymentID,
		InvoiceID:   a.InvoiceID,
		AmountMinor: a.AmountMinor,
		CreatedAt:   a.CreatedAt,
	}
}
