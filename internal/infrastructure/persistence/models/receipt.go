package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
)

// ReceiptSnapshotModel is the persistence model for ReceiptSnapshot. The
// canonical text is stored verbatim; nothing updates a row after insert.
type ReceiptSnapshotModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID `gorm:"type:uuid;not null;index"`
	PaymentID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_receipts_payment"`
	InvoiceID         uuid.UUID `gorm:"type:uuid;not null;index"`
	ReceiptNumber     string    `gorm:"type:varchar(40);not null;index"`
	CanonicalSnapshot string    `gorm:"type:text;not null"`
	SHA256Hash        string    `gorm:"column:sha256_hash;type:char(64);not null"`
	HashTail          string    `gorm:"type:varchar(64);not null"`
	SchemaVersion     int       `gorm:"not null;default:1"`
	CreatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceiptSnapshotModel) TableName() string {
	return "receipt_snapshots"
}

// ToDomain converts the persistence model to a domain ReceiptSnapshot
func (m *ReceiptSnapshotModel) ToDomain() *invoicing.ReceiptSnapshot {
	return &invoicing.ReceiptSnapshot{
		ID:                m.ID,
		TenantID:          m.TenantID,
		PaymentID:         m.PaymentID,
		InvoiceID:         m.InvoiceID,
		ReceiptNumber:     m.ReceiptNumber,
		CanonicalSnapshot: m.CanonicalSnapshot,
		SHA256Hash:        m.SHA256Hash,
		HashTail:          m.HashTail,
		SchemaVersion:     m.SchemaVersion,
		CreatedAt:         m.CreatedAt.UTC(),
	}
}

// ReceiptSnapshotModelFromDomain creates a ReceiptSnapshotModel from a domain ReceiptSnapshot
func ReceiptSnapshotModelFromDomain(r *invoicing.ReceiptSnapshot) *ReceiptSnapshotModel {
	return &ReceiptSnapshotModel{
		ID:                r.ID,
		TenantID:          r.TenantID,
		PaymentID:         r.PaymentID,
		InvoiceID:         r.InvoiceID,
		ReceiptNumber:     r.ReceiptNumber,
		CanonicalSnapshot: r.CanonicalSnapshot,
		SHA256Hash:        r.SHA256Hash,
		HashTail:          r.HashTail,
		SchemaVersion:     r.SchemaVersion,
		CreatedAt:         r.CreatedAt,
	}
}

// AllModels lists every model for AutoMigrate in tests and sqlite dev mode
func AllModels() []any {
	return []any{
		&InvoiceModel{},
		&InvoiceLineItemModel{},
		&PaymentModel{},
		&PaymentAllocationModel{},
		&ReceiptSnapshotModel{},
	}
}
