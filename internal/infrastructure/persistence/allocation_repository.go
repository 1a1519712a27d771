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

// GormAllocationRepository implements AllocationRepository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// Create inserts the allocation
func (r *GormAllocationRepository) Create(ctx context.Context, a *invoicing.PaymentAllocation) error {
	if err := r.db.WithContext(ctx).Create(models.PaymentAllocationModelFromDomain(a)).Error; err != nil {
		if isUniqueViolation(err) {
			return &invoicing.ConflictError{Resource: "allocation", PaymentID: a.PaymentID, Cause: err}
		}
		return err
	}
	return nil
}

// FindByPayment returns the allocation of a payment
func (r *GormAllocationRepository) FindByPayment(ctx context.Context, paymentID uuid.UUID) (*invoicing.PaymentAllocation, error) {
	var model models.PaymentAllocationModel
	if err := r.db.WithContext(ctx).First(&model, "payment_id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByInvoice returns the allocations of an invoice oldest first
func (r *GormAllocationRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]invoicing.PaymentAllocation, error) {
	var allocationModels []models.PaymentAllocationModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC, id ASC").
		Find(&allocationModels).Error; err != nil {
		return nil, err
	}
	allocations := make([]invoicing.PaymentAllocation, len(allocationModels))
	for i := range allocationModels {
		allocations[i] = *allocationModels[i].ToDomain()
	}
	return allocations, nil
}

// SumByInvoice totals the allocated minor units of an invoice
func (r *GormAllocationRepository) SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var sum int64
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentAllocationModel{}).
		Where("invoice_id = ?", invoiceID).
		Select("COALESCE(SUM(amount_minor), 0)").
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	return sum, nil
}

var _ invoicing.AllocationRepository = (*GormAllocationRepository)(nil)
