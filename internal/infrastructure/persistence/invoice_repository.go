package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

func orderedLineItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID finds an invoice by ID regardless of tenant
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("LineItems", orderedLineItems).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds an invoice by ID for a specific tenant
func (r *GormInvoiceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("LineItems", orderedLineItems).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts the invoice and its line items
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *invoicing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return invoicing.NewValidationError("invoice_number", "already exists for this tenant")
		}
		return err
	}
	return nil
}

// SaveWithLock writes the mutable columns guarded by the version check
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *invoicing.Invoice) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
		Updates(map[string]any{
			"status":            invoice.Status,
			"balance_due_minor": invoice.BalanceDue,
			"version":           invoice.Version,
			"updated_at":        invoice.UpdatedAt,
			"sent_at":           invoice.SentAt,
			"paid_at":           invoice.PaidAt,
			"cancelled_at":      invoice.CancelledAt,
			"cancel_reason":     invoice.CancelReason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func (r *GormInvoiceRepository) overdueFilter(db *gorm.DB, today time.Time) *gorm.DB {
	return db.Where("status IN ? AND balance_due_minor > 0 AND due_date < ?",
		invoicing.OverdueEligibleStatuses(), startOfDay(today))
}

// FindOverdueCandidates lists invoices the sweep would move to overdue, oldest due first.
// On postgres the rows are locked with SKIP LOCKED, so overlapping sweeps
// running in a transaction take disjoint batches.
func (r *GormInvoiceRepository) FindOverdueCandidates(ctx context.Context, today time.Time, limit int) ([]invoicing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	query := r.overdueFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), today).
		Order("due_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	invoices := make([]invoicing.Invoice, len(invoiceModels))
	for i := range invoiceModels {
		invoices[i] = *invoiceModels[i].ToDomain()
	}
	return invoices, nil
}

// MarkOverdue runs one UPDATE over ids that still match the sweep filter.
// Rows changed by this call are stamped with a unique updated_at value and
// read back by it, so ids already moved by a concurrent sweep are excluded.
func (r *GormInvoiceRepository) MarkOverdue(ctx context.Context, ids []uuid.UUID, today time.Time) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	stamp := time.Now().UTC().Truncate(time.Microsecond)

	var changed []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := r.overdueFilter(tx.Model(&models.InvoiceModel{}).Where("id IN ?", ids), today).
			Updates(map[string]any{
				"status":     invoicing.InvoiceStatusOverdue,
				"version":    gorm.Expr("version + 1"),
				"updated_at": stamp,
			})
		if result.Error != nil {
			return fmt.Errorf("mark overdue: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&models.InvoiceModel{}).
			Where("id IN ? AND status = ? AND updated_at = ?", ids, invoicing.InvoiceStatusOverdue, stamp).
			Pluck("id", &changed).Error
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// FindAllForTenant lists a tenant's invoices newest first
func (r *GormInvoiceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, status *invoicing.InvoiceStatus, page shared.Page) ([]invoicing.Invoice, int64, error) {
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Where("tenant_id = ?", tenantID)
		if status != nil {
			query = query.Where("status = ?", *status)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoiceModels []models.InvoiceModel
	if err := scoped().
		Preload("LineItems", orderedLineItems).
		Order("created_at DESC, id ASC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&invoiceModels).Error; err != nil {
		return nil, 0, err
	}
	invoices := make([]invoicing.Invoice, len(invoiceModels))
	for i := range invoiceModels {
		invoices[i] = *invoiceModels[i].ToDomain()
	}
	return invoices, total, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ invoicing.InvoiceRepository = (*GormInvoiceRepository)(nil)
