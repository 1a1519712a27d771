package persistence

import (
	"context"

	"github.com/invoicing/backend/internal/domain/invoicing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction. An error from fn rolls the
// transaction back; otherwise it commits.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos invoicing.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories hands out repositories bound to one transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) Invoices() invoicing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

func (r *gormTransactionalRepositories) Payments() invoicing.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

func (r *gormTransactionalRepositories) Allocations() invoicing.AllocationRepository {
	return NewGormAllocationRepository(r.tx)
}

var (
	_ invoicing.TransactionScope          = (*GormTransactionScope)(nil)
	_ invoicing.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
