package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDueDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestInvoice(t *testing.T, tenantID uuid.UUID, number string) *invoicing.Invoice {
	t.Helper()

	design, err := invoicing.NewLineItem("Design work", 3, 25000)
	require.NoError(t, err)
	hosting, err := invoicing.NewLineItem("Hosting", 1, 37500)
	require.NoError(t, err)

	inv, err := invoicing.NewInvoice(invoicing.NewInvoiceParams{
		TenantID:      tenantID,
		InvoiceNumber: number,
		Currency:      valueobject.NGN,
		LineItems:     []invoicing.LineItem{design, hosting},
		IssueDate:     testDueDate.AddDate(0, 0, -14),
		DueDate:       testDueDate,
		Customer:      invoicing.Customer{Name: "Ada Obi", Email: "ada@example.com"},
	})
	require.NoError(t, err)
	return inv
}

func newTestPayment(t *testing.T, inv *invoicing.Invoice, amount int64, ref string) *invoicing.Payment {
	t.Helper()

	var reference *string
	if ref != "" {
		reference = &ref
	}
	p, err := invoicing.NewPayment(invoicing.NewPaymentParams{
		TenantID:          inv.TenantID,
		InvoiceID:         inv.ID,
		Amount:            valueobject.MustMoney(amount, inv.Currency),
		Method:            invoicing.PaymentMethodCard,
		ExternalReference: reference,
		Provider:          "flutterwave",
		PaymentDate:       testDueDate,
		Payer:             invoicing.PayerInfo{Name: "Ada Obi", Email: "ada@example.com"},
		Metadata:          invoicing.Metadata{"channel": "card"},
	})
	require.NoError(t, err)
	return p
}

func TestGormInvoiceRepository_CreateAndFind(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	inv := newTestInvoice(t, tenantID, "INV-001")
	require.NoError(t, repo.Create(ctx, inv))

	found, err := repo.FindByIDForTenant(ctx, tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", found.InvoiceNumber)
	assert.Equal(t, int64(112500), found.TotalMinor)
	assert.Equal(t, int64(112500), found.BalanceDue)
	assert.Equal(t, invoicing.InvoiceStatusDraft, found.Status)
	assert.Equal(t, testDueDate, found.DueDate)
	require.Len(t, found.LineItems, 2)
	assert.Equal(t, 1, found.LineItems[0].Position)
	assert.Equal(t, "Design work", found.LineItems[0].Description)
	assert.Equal(t, int64(75000), found.LineItems[0].LineTotalMinor)
	assert.Equal(t, 2, found.LineItems[1].Position)

	_, err = repo.FindByIDForTenant(ctx, uuid.New(), inv.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormInvoiceRepository_SaveWithLock(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	inv := newTestInvoice(t, uuid.New(), "INV-002")
	require.NoError(t, repo.Create(ctx, inv))

	require.NoError(t, inv.Send())
	require.NoError(t, repo.SaveWithLock(ctx, inv))

	stored, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.InvoiceStatusSent, stored.Status)
	assert.Equal(t, inv.Version, stored.Version)
	assert.NotNil(t, stored.SentAt)

	t.Run("stale version is rejected", func(t *testing.T) {
		stale := *stored
		stale.Version = stored.Version
		err := repo.SaveWithLock(ctx, &stale)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}

func TestGormInvoiceRepository_OverdueSweep(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	today := testDueDate.AddDate(0, 0, 1)

	sent := newTestInvoice(t, tenantID, "INV-SENT")
	sent.Status = invoicing.InvoiceStatusSent
	draft := newTestInvoice(t, tenantID, "INV-DRAFT")
	paid := newTestInvoice(t, tenantID, "INV-PAID")
	paid.Status = invoicing.InvoiceStatusPaid
	paid.BalanceDue = 0
	for _, inv := range []*invoicing.Invoice{sent, draft, paid} {
		require.NoError(t, repo.Create(ctx, inv))
	}

	t.Run("not yet due on the due date", func(t *testing.T) {
		candidates, err := repo.FindOverdueCandidates(ctx, testDueDate, 10)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	candidates, err := repo.FindOverdueCandidates(ctx, today, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, sent.ID, candidates[0].ID)

	ids := []uuid.UUID{sent.ID, draft.ID, paid.ID}
	changed, err := repo.MarkOverdue(ctx, ids, today)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sent.ID}, changed)

	stored, err := repo.FindByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.InvoiceStatusOverdue, stored.Status)
	assert.Equal(t, sent.Version+1, stored.Version)

	changed, err = repo.MarkOverdue(ctx, ids, today)
	require.NoError(t, err)
	assert.Empty(t, changed)

	untouched, err := repo.FindByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.InvoiceStatusDraft, untouched.Status)
}

func TestGormInvoiceRepository_FindAllForTenant(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	for _, number := range []string{"INV-A", "INV-B", "INV-C"} {
		require.NoError(t, repo.Create(ctx, newTestInvoice(t, tenantID, number)))
	}
	require.NoError(t, repo.Create(ctx, newTestInvoice(t, uuid.New(), "INV-OTHER")))

	invoices, total, err := repo.FindAllForTenant(ctx, tenantID, nil, shared.Page{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, invoices, 2)

	status := invoicing.InvoiceStatusPaid
	invoices, total, err = repo.FindAllForTenant(ctx, tenantID, &status, shared.DefaultPage())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, invoices)
}

func TestGormPaymentRepository_DuplicateReference(t *testing.T) {
	db := newTestDB(t)
	invoices := NewGormInvoiceRepository(db)
	payments := NewGormPaymentRepository(db)
	ctx := context.Background()

	inv := newTestInvoice(t, uuid.New(), "INV-003")
	require.NoError(t, invoices.Create(ctx, inv))

	first := newTestPayment(t, inv, 50000, "FLW-999")
	require.NoError(t, payments.Create(ctx, first))

	err := payments.Create(ctx, newTestPayment(t, inv, 50000, "FLW-999"))
	var conflict *invoicing.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "FLW-999", conflict.ExternalReference)

	found, err := payments.FindByExternalReference(ctx, "FLW-999")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "card", found.Metadata["channel"])

	t.Run("payments without reference never collide", func(t *testing.T) {
		require.NoError(t, payments.Create(ctx, newTestPayment(t, inv, 100, "")))
		require.NoError(t, payments.Create(ctx, newTestPayment(t, inv, 100, "")))

		listed, err := payments.ListByInvoice(ctx, inv.TenantID, inv.ID)
		require.NoError(t, err)
		assert.Len(t, listed, 3)
	})
}

func TestGormRepositories_ReconciliationQueries(t *testing.T) {
	db := newTestDB(t)
	invoices := NewGormInvoiceRepository(db)
	payments := NewGormPaymentRepository(db)
	allocations := NewGormAllocationRepository(db)
	receipts := NewGormReceiptRepository(db)
	ctx := context.Background()

	inv := newTestInvoice(t, uuid.New(), "INV-004")
	require.NoError(t, invoices.Create(ctx, inv))

	unallocated := newTestPayment(t, inv, 1000, "REF-1")
	allocated := newTestPayment(t, inv, 2000, "REF-2")
	withReceipt := newTestPayment(t, inv, 3000, "REF-3")
	for _, p := range []*invoicing.Payment{unallocated, allocated, withReceipt} {
		require.NoError(t, payments.Create(ctx, p))
	}
	for _, p := range []*invoicing.Payment{allocated, withReceipt} {
		require.NoError(t, allocations.Create(ctx, invoicing.NewPaymentAllocation(p.TenantID, p.ID, inv.ID, p.AmountMinor)))
	}
	require.NoError(t, receipts.Create(ctx, &invoicing.ReceiptSnapshot{
		ID:                uuid.New(),
		TenantID:          inv.TenantID,
		PaymentID:         withReceipt.ID,
		InvoiceID:         inv.ID,
		ReceiptNumber:     "RCT-1",
		CanonicalSnapshot: `{"a":1}`,
		SHA256Hash:        "015abd7f5cc57a2dd94b7590f04ad8084273905ee33ec5cebeae62276a97f862",
		HashTail:          "6a97f862",
		SchemaVersion:     1,
		CreatedAt:         time.Now().UTC(),
	}))

	later := time.Now().Add(time.Minute)

	found, err := payments.FindUnallocated(ctx, later, nil, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, unallocated.ID, found[0].ID)

	found, err = payments.FindUnallocated(ctx, time.Now().Add(-time.Hour), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = payments.FindAllocatedWithoutReceipt(ctx, later, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, allocated.ID, found[0].ID)

	sum, err := allocations.SumByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), sum)

	listed, err := allocations.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = allocations.FindByPayment(ctx, unallocated.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	t.Run("second allocation for a payment conflicts", func(t *testing.T) {
		err := allocations.Create(ctx, invoicing.NewPaymentAllocation(allocated.TenantID, allocated.ID, inv.ID, 1))
		var conflict *invoicing.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "allocation", conflict.Resource)
		assert.Equal(t, allocated.ID, conflict.PaymentID)
	})

	t.Run("second receipt for a payment conflicts", func(t *testing.T) {
		existing, err := receipts.FindByPaymentID(ctx, withReceipt.ID)
		require.NoError(t, err)
		assert.Equal(t, "RCT-1", existing.ReceiptNumber)

		dup := *existing
		dup.ID = uuid.New()
		err = receipts.Create(ctx, &dup)
		var conflict *invoicing.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "receipt", conflict.Resource)
	})
}

func TestGormTransactionScope_RollsBack(t *testing.T) {
	db := newTestDB(t)
	scope := NewGormTransactionScope(db)
	invoices := NewGormInvoiceRepository(db)
	ctx := context.Background()

	inv := newTestInvoice(t, uuid.New(), "INV-005")
	require.NoError(t, invoices.Create(ctx, inv))
	payment := newTestPayment(t, inv, 50000, "TX-1")

	boom := errors.New("boom")
	err := scope.Execute(ctx, func(repos invoicing.TransactionalRepositories) error {
		if err := repos.Payments().Create(ctx, payment); err != nil {
			return err
		}
		alloc, err := inv.ApplyAllocation(payment, testDueDate)
		if err != nil {
			return err
		}
		if err := repos.Allocations().Create(ctx, alloc); err != nil {
			return err
		}
		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = NewGormPaymentRepository(db).FindByID(ctx, payment.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	stored, err := invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(112500), stored.BalanceDue)
	assert.Equal(t, invoicing.InvoiceStatusDraft, stored.Status)
}
