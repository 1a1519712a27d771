package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReceiptRepository implements ReceiptRepository using GORM. Snapshots
// are write-once.
type GormReceiptRepository struct {
	db *gorm.DB
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

// Create inserts the snapshot
func (r *GormReceiptRepository) Create(ctx context.Context, s *invoicing.ReceiptSnapshot) error {
	if err := r.db.WithContext(ctx).Create(models.ReceiptSnapshotModelFromDomain(s)).Error; err != nil {
		if isUniqueViolation(err) {
			return &invoicing.ConflictError{Resource: "receipt", PaymentID: s.PaymentID, Cause: err}
		}
		return err
	}
	return nil
}

func (r *GormReceiptRepository) first(ctx context.Context, query string, args ...any) (*invoicing.ReceiptSnapshot, error) {
	var model models.ReceiptSnapshotModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds a snapshot by ID
func (r *GormReceiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.ReceiptSnapshot, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByIDForTenant finds a snapshot by ID for a specific tenant
func (r *GormReceiptRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.ReceiptSnapshot, error) {
	return r.first(ctx, "id = ? AND tenant_id = ?", id, tenantID)
}

// FindByPaymentID finds the snapshot issued for a payment
func (r *GormReceiptRepository) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*invoicing.ReceiptSnapshot, error) {
	return r.first(ctx, "payment_id = ?", paymentID)
}

var _ invoicing.ReceiptRepository = (*GormReceiptRepository)(nil)
