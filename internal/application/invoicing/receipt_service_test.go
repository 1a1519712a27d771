package invoicing

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recordingArchive keeps archived snapshots in memory
type recordingArchive struct {
	mu     sync.Mutex
	stored []*invoicing.ReceiptSnapshot
	err    error
}

func (a *recordingArchive) Store(_ context.Context, snapshot *invoicing.ReceiptSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.stored = append(a.stored, snapshot)
	return nil
}

func TestReceiptService_GenerateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.createInvoice(t, uuid.New(), 112500, testNow.AddDate(0, 0, 14))

	res, err := env.allocator.Allocate(ctx, allocateCmd(inv, 50000))
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)

	again, err := env.receipts.GenerateReceiptSnapshot(ctx, inv.TenantID, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Receipt.ID, again.ID)
	assert.Equal(t, res.Receipt.SHA256Hash, again.SHA256Hash)
	assert.Len(t, again.SHA256Hash, 64)
	assert.Equal(t, again.SHA256Hash[len(again.SHA256Hash)-8:], again.HashTail)
	assert.Equal(t, again.SHA256Hash, invoicing.HashCanonical([]byte(again.CanonicalSnapshot)))

	_, err = env.receipts.GenerateReceiptSnapshot(ctx, uuid.New(), res.Payment.ID)
	var notFound *invoicing.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestReceiptService_SnapshotContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.createInvoice(t, uuid.New(), 112500, testNow.AddDate(0, 0, 14))

	first, err := env.allocator.Allocate(ctx, allocateCmd(inv, 50000))
	require.NoError(t, err)
	second, err := env.allocator.Allocate(ctx, allocateCmd(inv, 62500))
	require.NoError(t, err)

	data, err := first.Receipt.Data()
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, data.Invoice.Number)
	assert.Equal(t, "NGN", data.Invoice.Currency)
	require.Len(t, data.LineItems, 1)
	assert.Equal(t, int64(112500), data.LineItems[0].LineTotalMinor)
	require.Len(t, data.Payments, 1)
	assert.Equal(t, int64(50000), data.Totals.AmountPaidMinor)
	assert.Equal(t, int64(62500), data.Totals.BalanceDueMinor)
	assert.Equal(t, "Kora Studio Ltd", data.Issuer.Name)
	assert.Equal(t, "Chidi Nwosu", data.Customer.Name)

	data, err = second.Receipt.Data()
	require.NoError(t, err)
	assert.Len(t, data.Payments, 2)
	assert.Equal(t, int64(112500), data.Totals.AmountPaidMinor)
	assert.Zero(t, data.Totals.BalanceDueMinor)
	assert.NotEqual(t, first.Receipt.ReceiptNumber, second.Receipt.ReceiptNumber)
}

func TestReceiptService_Verify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.createInvoice(t, uuid.New(), 112500, testNow.AddDate(0, 0, 14))

	res, err := env.allocator.Allocate(ctx, allocateCmd(inv, 112500))
	require.NoError(t, err)
	data, err := res.Receipt.Data()
	require.NoError(t, err)

	ok, err := env.receipts.Verify(ctx, *data, res.Receipt.SHA256Hash)
	require.NoError(t, err)
	assert.True(t, ok.Valid)
	assert.Equal(t, res.Receipt.SHA256Hash, ok.ComputedHash)

	data.LineItems[0].LineTotalMinor = 100000
	tampered, err := env.receipts.Verify(ctx, *data, res.Receipt.SHA256Hash)
	require.NoError(t, err)
	assert.False(t, tampered.Valid)
	assert.NotEqual(t, res.Receipt.SHA256Hash, tampered.ComputedHash)

	public, err := env.receipts.VerifyPublic(ctx, res.Receipt.ID, strings.ToUpper(res.Receipt.SHA256Hash))
	require.NoError(t, err)
	assert.True(t, public.Valid)

	public, err = env.receipts.VerifyPublic(ctx, res.Receipt.ID, strings.Repeat("0", 64))
	require.NoError(t, err)
	assert.False(t, public.Valid)
}

func TestReceiptService_AuditDetectsTampering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.createInvoice(t, uuid.New(), 112500, testNow.AddDate(0, 0, 14))

	res, err := env.allocator.Allocate(ctx, allocateCmd(inv, 112500))
	require.NoError(t, err)
	receipt := res.Receipt

	audit, err := env.receipts.AuditReceipt(ctx, inv.TenantID, receipt.ID)
	require.NoError(t, err)
	assert.True(t, audit.Valid)
	assert.Equal(t, audit.StoredHash, audit.ComputedHash)

	t.Run("content changed", func(t *testing.T) {
		altered := strings.Replace(receipt.CanonicalSnapshot, `"line_total_minor":112500`, `"line_total_minor":100000`, 1)
		require.NotEqual(t, receipt.CanonicalSnapshot, altered)
		require.NoError(t, env.db.Exec("UPDATE receipt_snapshots SET canonical_snapshot = ? WHERE id = ?", altered, receipt.ID).Error)

		audit, err := env.receipts.AuditReceipt(ctx, inv.TenantID, receipt.ID)
		var integrity *invoicing.IntegrityError
		require.ErrorAs(t, err, &integrity)
		assert.Equal(t, receipt.ID, integrity.ReceiptID)
		require.NotNil(t, audit)
		assert.False(t, audit.Valid)
		assert.NotEqual(t, audit.StoredHash, audit.ComputedHash)
	})

	t.Run("rewritten and re-hashed", func(t *testing.T) {
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(receipt.CanonicalSnapshot), &doc))
		pretty, err := json.MarshalIndent(doc, "", "  ")
		require.NoError(t, err)
		hash := invoicing.HashCanonical(pretty)
		require.NoError(t, env.db.Exec("UPDATE receipt_snapshots SET canonical_snapshot = ?, sha256_hash = ? WHERE id = ?",
			string(pretty), hash, receipt.ID).Error)

		audit, err := env.receipts.AuditReceipt(ctx, inv.TenantID, receipt.ID)
		var integrity *invoicing.IntegrityError
		require.ErrorAs(t, err, &integrity)
		assert.False(t, audit.Valid)
	})

	t.Run("other tenant", func(t *testing.T) {
		_, err := env.receipts.AuditReceipt(ctx, uuid.New(), receipt.ID)
		var notFound *invoicing.NotFoundError
		require.ErrorAs(t, err, &notFound)
	})
}

func TestReceiptService_PublicViewMasksParties(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.createInvoice(t, uuid.New(), 112500, testNow.AddDate(0, 0, 14))

	res, err := env.allocator.Allocate(ctx, allocateCmd(inv, 112500))
	require.NoError(t, err)

	view, err := env.receipts.PublicView(ctx, res.Receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Receipt.HashTail, view.HashTail)
	assert.Equal(t, "Kora Studio Ltd", view.Issuer)
	require.Len(t, view.Payments, 1)
	assert.Equal(t, "C**** N****", view.Payments[0].Payer.Name)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Chidi")
	assert.NotContains(t, string(raw), "chidi@example.com")
	assert.NotContains(t, string(raw), res.Receipt.SHA256Hash)

	_, err = env.receipts.PublicView(ctx, uuid.New())
	var notFound *invoicing.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestReceiptService_UnallocatedPaymentHasNoReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.createInvoice(t, uuid.New(), 10000, testNow.AddDate(0, 0, 14))

	res, err := env.allocator.RecordUnallocated(ctx, allocateCmd(inv, 20000), assert.AnError)
	require.Error(t, err)

	_, err = env.receipts.GenerateReceiptSnapshot(ctx, inv.TenantID, res.Payment.ID)
	var validation *invoicing.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestReceiptService_Archive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.createInvoice(t, uuid.New(), 112500, testNow.AddDate(0, 0, 14))

	archive := &recordingArchive{}
	receipts := NewReceiptService(ReceiptServiceConfig{
		Invoices:    env.invoices,
		Payments:    env.payments,
		Allocations: env.allocations,
		Receipts:    env.receiptRepo,
		Archive:     archive,
		Clock:       testClock,
		Logger:      zaptest.NewLogger(t),
	})

	res, err := env.allocator.Allocate(ctx, allocateCmd(inv, 40000))
	require.NoError(t, err)
	// the env allocator already generated it, so the archive sees nothing new
	_, err = receipts.GenerateReceiptSnapshot(ctx, inv.TenantID, res.Payment.ID)
	require.NoError(t, err)
	assert.Empty(t, archive.stored)

	allocator := NewAllocationService(AllocationServiceConfig{
		Invoices: env.invoices,
		Payments: env.payments,
		Scope:    env.scope,
		Receipts: receipts,
		Clock:    testClock,
		Logger:   zaptest.NewLogger(t),
	})
	res, err = allocator.Allocate(ctx, allocateCmd(inv, 40000))
	require.NoError(t, err)
	require.Len(t, archive.stored, 1)
	assert.Equal(t, res.Receipt.ID, archive.stored[0].ID)

	archive.err = assert.AnError
	res, err = allocator.Allocate(ctx, allocateCmd(inv, 10000))
	require.NoError(t, err, "an archive failure does not fail the receipt")
	require.NotNil(t, res.Receipt)
}
