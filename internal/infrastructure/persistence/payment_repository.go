package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements PaymentRepository using GORM. Payments are
// insert-only; there is no update path.
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Create inserts the payment. The unique index on external_reference turns a
// second delivery of the same reference into a *ConflictError.
func (r *GormPaymentRepository) Create(ctx context.Context, p *invoicing.Payment) error {
	if err := r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(p)).Error; err != nil {
		if isUniqueViolation(err) {
			return &invoicing.ConflictError{ExternalReference: p.Reference(), Cause: err}
		}
		return err
	}
	return nil
}

func (r *GormPaymentRepository) first(ctx context.Context, query string, args ...any) (*invoicing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByIDForTenant finds a payment by ID for a specific tenant
func (r *GormPaymentRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Payment, error) {
	return r.first(ctx, "id = ? AND tenant_id = ?", id, tenantID)
}

// FindByExternalReference finds the payment recorded for a gateway reference
func (r *GormPaymentRepository) FindByExternalReference(ctx context.Context, reference string) (*invoicing.Payment, error) {
	return r.first(ctx, "external_reference = ?", reference)
}

// FindUnallocated lists payments with no allocation row, oldest first, paging
// by (created_at, id)
func (r *GormPaymentRepository) FindUnallocated(ctx context.Context, olderThan time.Time, after *invoicing.PaymentCursor, limit int) ([]invoicing.Payment, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("payments.created_at < ?", olderThan).
		Where("NOT EXISTS (SELECT 1 FROM payment_allocations a WHERE a.payment_id = payments.id)")
	if after != nil {
		query = query.Where("(payments.created_at > ? OR (payments.created_at = ? AND payments.id > ?))",
			after.CreatedAt, after.CreatedAt, after.ID)
	}
	return r.find(query, limit)
}

// FindAllocatedWithoutReceipt lists allocated payments missing a receipt snapshot
func (r *GormPaymentRepository) FindAllocatedWithoutReceipt(ctx context.Context, olderThan time.Time, limit int) ([]invoicing.Payment, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("payments.created_at < ?", olderThan).
		Where("EXISTS (SELECT 1 FROM payment_allocations a WHERE a.payment_id = payments.id)").
		Where("NOT EXISTS (SELECT 1 FROM receipt_snapshots s WHERE s.payment_id = payments.id)")
	return r.find(query, limit)
}

// ListByInvoice lists the payments recorded against an invoice in payment order
func (r *GormPaymentRepository) ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.Payment, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID)
	return r.find(query, 0)
}

func (r *GormPaymentRepository) find(query *gorm.DB, limit int) ([]invoicing.Payment, error) {
	query = query.Order("payments.created_at ASC, payments.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var paymentModels []models.PaymentModel
	if err := query.Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	payments := make([]invoicing.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = *paymentModels[i].ToDomain()
	}
	return payments, nil
}

var _ invoicing.PaymentRepository = (*GormPaymentRepository)(nil)
