package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
)

// InvoiceRepository persists invoices. Missing rows return shared.ErrNotFound.
type InvoiceRepository interface {
	// FindByID is used where the tenant comes from a trusted source, e.g. gateway metadata
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// Create inserts a new invoice with its line items
	Create(ctx context.Context, invoice *Invoice) error

	// SaveWithLock updates status, balance and timestamps if the stored
	// version is invoice.Version-1; otherwise it returns shared.ErrConcurrencyConflict.
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// FindOverdueCandidates lists invoices matching the sweep filter
	FindOverdueCandidates(ctx context.Context, today time.Time, limit int) ([]Invoice, error)

	// MarkOverdue moves the given invoices to overdue in one statement,
	// re-applying the sweep filter, and returns the ids actually changed.
	MarkOverdue(ctx context.Context, ids []uuid.UUID, today time.Time) ([]uuid.UUID, error)

	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, status *InvoiceStatus, page shared.Page) ([]Invoice, int64, error)
}

// PaymentCursor is a keyset position in payment order
type PaymentCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorAfter returns the position following p
func CursorAfter(p Payment) *PaymentCursor {
	return &PaymentCursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// PaymentRepository persists immutable payments
type PaymentRepository interface {
	// Create inserts p. A duplicate external reference returns *ConflictError.
	Create(ctx context.Context, p *Payment) error

	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)
	FindByExternalReference(ctx context.Context, reference string) (*Payment, error)

	// FindUnallocated lists payments without an allocation row created before
	// olderThan, oldest first. A non-nil after resumes behind that position.
	FindUnallocated(ctx context.Context, olderThan time.Time, after *PaymentCursor, limit int) ([]Payment, error)

	// FindAllocatedWithoutReceipt lists allocated payments that have no receipt yet
	FindAllocatedWithoutReceipt(ctx context.Context, olderThan time.Time, limit int) ([]Payment, error)

	ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Payment, error)
}

// AllocationRepository persists immutable allocations
type AllocationRepository interface {
	// Create inserts a. A second allocation for the same payment returns
	// *ConflictError.
	Create(ctx context.Context, a *PaymentAllocation) error

	FindByPayment(ctx context.Context, paymentID uuid.UUID) (*PaymentAllocation, error)

	// ListByInvoice returns allocations oldest first
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]PaymentAllocation, error)

	SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error)
}

// ReceiptRepository persists write-once receipt snapshots
type ReceiptRepository interface {
	// Create inserts r. A receipt for the same payment already existing
	// returns *ConflictError.
	Create(ctx context.Context, r *ReceiptSnapshot) error

	FindByID(ctx context.Context, id uuid.UUID) (*ReceiptSnapshot, error)
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ReceiptSnapshot, error)
	FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*ReceiptSnapshot, error)
}

// TransactionalRepositories exposes repositories bound to one transaction
type TransactionalRepositories interface {
	Invoices() InvoiceRepository
	Payments() PaymentRepository
	Allocations() AllocationRepository
}

// TransactionScope runs fn atomically; an error from fn rolls back
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}
