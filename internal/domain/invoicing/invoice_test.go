package invoicing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestInvoice(t *testing.T, total int64, due time.Time) *Invoice {
	t.Helper()
	item, err := NewLineItem("Consulting", 1, total)
	require.NoError(t, err)
	inv, err := NewInvoice(NewInvoiceParams{
		TenantID:      uuid.New(),
		InvoiceNumber: "INV-0001",
		Currency:      valueobject.NGN,
		LineItems:     []LineItem{item},
		IssueDate:     due.AddDate(0, 0, -30),
		DueDate:       due,
		Customer:      Customer{Name: "Ada Obi", Email: "ada@example.com"},
	})
	require.NoError(t, err)
	return inv
}

func newTestPayment(t *testing.T, inv *Invoice, amount int64) *Payment {
	t.Helper()
	p, err := NewPayment(NewPaymentParams{
		TenantID:    inv.TenantID,
		InvoiceID:   inv.ID,
		Amount:      valueobject.MustMoney(amount, inv.Currency),
		Method:      PaymentMethodBankTransfer,
		PaymentDate: testToday,
	})
	require.NoError(t, err)
	return p
}

func TestNewInvoice(t *testing.T) {
	t.Run("computes totals from line items", func(t *testing.T) {
		a, _ := NewLineItem("Design", 2, 40000)
		b, _ := NewLineItem("Hosting", 1, 25000)
		inv, err := NewInvoice(NewInvoiceParams{
			TenantID:      uuid.New(),
			InvoiceNumber: "INV-7",
			Currency:      valueobject.NGN,
			LineItems:     []LineItem{a, b},
			DiscountMinor: 5000,
			TaxMinor:      7500,
			IssueDate:     testToday,
			DueDate:       testToday.AddDate(0, 0, 14),
			Customer:      Customer{Name: "Acme"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(105000), inv.SubtotalMinor)
		assert.Equal(t, int64(107500), inv.TotalMinor)
		assert.Equal(t, inv.TotalMinor, inv.BalanceDue)
		assert.Equal(t, InvoiceStatusDraft, inv.Status)
		assert.Equal(t, 1, inv.LineItems[0].Position)
		assert.Equal(t, 2, inv.LineItems[1].Position)
		assert.Len(t, inv.PublicID, 24)
	})

	t.Run("rejects due date before issue date", func(t *testing.T) {
		item, _ := NewLineItem("x", 1, 100)
		_, err := NewInvoice(NewInvoiceParams{
			TenantID:      uuid.New(),
			InvoiceNumber: "INV-8",
			Currency:      valueobject.NGN,
			LineItems:     []LineItem{item},
			IssueDate:     testToday,
			DueDate:       testToday.AddDate(0, 0, -1),
			Customer:      Customer{Name: "Acme"},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects missing line items", func(t *testing.T) {
		_, err := NewInvoice(NewInvoiceParams{
			TenantID:      uuid.New(),
			InvoiceNumber: "INV-9",
			Currency:      valueobject.NGN,
			IssueDate:     testToday,
			DueDate:       testToday,
			Customer:      Customer{Name: "Acme"},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

// 112500 total, pay 50000 then 62500, then any further amount is rejected.
func TestInvoice_ApplyAllocation_PartialThenFull(t *testing.T) {
	inv := newTestInvoice(t, 112500, testToday.AddDate(0, 0, 10))
	require.NoError(t, inv.Send())
	inv.ClearDomainEvents()

	first := newTestPayment(t, inv, 50000)
	alloc, err := inv.ApplyAllocation(first, testToday)
	require.NoError(t, err)
	assert.Equal(t, int64(62500), inv.BalanceDue)
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	assert.Equal(t, first.ID, alloc.PaymentID)
	assert.Equal(t, int64(50000), alloc.AmountMinor)
	assert.Equal(t, inv.TotalMinor, inv.BalanceDue+alloc.AmountMinor)

	second := newTestPayment(t, inv, 62500)
	_, err = inv.ApplyAllocation(second, testToday)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inv.BalanceDue)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.NotNil(t, inv.PaidAt)

	events := inv.GetDomainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeInvoicePartiallyPaid, events[0].EventType())
	assert.Equal(t, EventTypeInvoicePaid, events[1].EventType())

	third := newTestPayment(t, inv, 1)
	_, err = inv.ApplyAllocation(third, testToday)
	var eb *ExceedsBalanceError
	require.ErrorAs(t, err, &eb)
	assert.Equal(t, int64(0), eb.BalanceDue)
}

func TestInvoice_ApplyAllocation_ExceedsBalance(t *testing.T) {
	inv := newTestInvoice(t, 112500, testToday.AddDate(0, 0, 10))
	_, err := inv.ApplyAllocation(newTestPayment(t, inv, 50000), testToday)
	require.NoError(t, err)

	_, err = inv.ApplyAllocation(newTestPayment(t, inv, 62501), testToday)
	var eb *ExceedsBalanceError
	require.ErrorAs(t, err, &eb)
	assert.Equal(t, int64(62500), eb.BalanceDue)
	assert.Equal(t, int64(62500), inv.BalanceDue, "balance untouched on rejection")
}

func TestInvoice_ApplyAllocation_CurrencyMismatch(t *testing.T) {
	inv := newTestInvoice(t, 1000, testToday)
	p := newTestPayment(t, inv, 500)
	p.Currency = valueobject.USD

	_, err := inv.ApplyAllocation(p, testToday)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInvoice_OverdueThenPayment(t *testing.T) {
	inv := newTestInvoice(t, 10000, testToday.AddDate(0, 0, -1))
	require.NoError(t, inv.Send())

	assert.True(t, inv.MarkOverdue(testToday))
	assert.Equal(t, InvoiceStatusOverdue, inv.Status)
	assert.False(t, inv.MarkOverdue(testToday), "second sweep is a no-op")

	_, err := inv.ApplyAllocation(newTestPayment(t, inv, 4000), testToday)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	assert.True(t, inv.IsPastDue(testToday), "derived flag survives the status change")
}

func TestInvoice_MarkOverdue_SkipsDraft(t *testing.T) {
	inv := newTestInvoice(t, 10000, testToday.AddDate(0, 0, -5))
	assert.False(t, inv.MarkOverdue(testToday))
	assert.Equal(t, InvoiceStatusDraft, inv.Status)
}

func TestInvoice_Lifecycle(t *testing.T) {
	inv := newTestInvoice(t, 10000, testToday)
	assert.False(t, inv.MarkViewed())

	require.NoError(t, inv.Send())
	assert.ErrorIs(t, inv.Send(), shared.ErrInvalidState)
	assert.True(t, inv.MarkViewed())
	assert.Equal(t, InvoiceStatusViewed, inv.Status)

	assert.ErrorIs(t, inv.Cancel(" "), ErrValidation)
	require.NoError(t, inv.Cancel("customer disputed"))
	assert.Equal(t, InvoiceStatusCancelled, inv.Status)
	assert.ErrorIs(t, inv.Cancel("again"), ErrTerminalState)

	_, err := inv.ApplyAllocation(newTestPayment(t, inv, 100), testToday)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestInvoice_VersionAdvancesOnEveryWrite(t *testing.T) {
	inv := newTestInvoice(t, 10000, testToday.AddDate(0, 0, 3))
	assert.Equal(t, 1, inv.GetVersion())
	require.NoError(t, inv.Send())
	_, err := inv.ApplyAllocation(newTestPayment(t, inv, 100), testToday)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.GetVersion())
}
