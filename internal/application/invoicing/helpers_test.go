package invoicing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"github.com/invoicing/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	testNow   = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	testClock = func() time.Time { return testNow }
)

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// countingMetrics records outcome counters
type countingMetrics struct {
	nopMetrics
	mu         sync.Mutex
	outcomes   map[string]int
	duplicates map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: map[string]int{}, duplicates: map[string]int{}}
}

func (m *countingMetrics) RecordAllocation(_ context.Context, outcome string, _ int64, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *countingMetrics) RecordDuplicate(_ context.Context, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicates[source]++
}

func (m *countingMetrics) outcome(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[name]
}

func (m *countingMetrics) totalDuplicates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.duplicates {
		n += v
	}
	return n
}

// MockGateway is a testify mock of invoicing.PaymentGateway
type MockGateway struct {
	mock.Mock
	provider string
}

func (m *MockGateway) Provider() string { return m.provider }

func (m *MockGateway) VerifyPayment(ctx context.Context, transactionID string) (*invoicing.GatewayPayment, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.GatewayPayment), args.Error(1)
}

func (m *MockGateway) GetPaymentByReference(ctx context.Context, reference string) (*invoicing.GatewayPayment, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.GatewayPayment), args.Error(1)
}

func (m *MockGateway) ParseWebhook(ctx context.Context, payload []byte, headers map[string]string) (*invoicing.WebhookEvent, error) {
	args := m.Called(ctx, payload, headers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.WebhookEvent), args.Error(1)
}

// MockNotifier is a testify mock of invoicing.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyPaymentReceived(ctx context.Context, notice invoicing.PaymentReceivedNotice) error {
	return m.Called(ctx, notice).Error(0)
}

func (m *MockNotifier) NotifyInvoicePaid(ctx context.Context, notice invoicing.InvoicePaidNotice) error {
	return m.Called(ctx, notice).Error(0)
}

func (m *MockNotifier) SendPaymentReminderEmail(ctx context.Context, reminder invoicing.PaymentReminder) error {
	return m.Called(ctx, reminder).Error(0)
}

// testEnv wires the services over one in-memory sqlite database
type testEnv struct {
	db          *gorm.DB
	invoices    invoicing.InvoiceRepository
	payments    invoicing.PaymentRepository
	allocations invoicing.AllocationRepository
	receiptRepo invoicing.ReceiptRepository
	scope       invoicing.TransactionScope
	events      *recordingPublisher
	metrics     *countingMetrics

	receipts  *ReceiptService
	allocator *AllocationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := persistence.NewDatabaseWithCustomLogger(&config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: ":memory:",
	}, gormlogger.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	env := &testEnv{
		db:          database.DB,
		invoices:    persistence.NewGormInvoiceRepository(database.DB),
		payments:    persistence.NewGormPaymentRepository(database.DB),
		allocations: persistence.NewGormAllocationRepository(database.DB),
		receiptRepo: persistence.NewGormReceiptRepository(database.DB),
		scope:       persistence.NewGormTransactionScope(database.DB),
		events:      &recordingPublisher{},
		metrics:     newCountingMetrics(),
	}
	env.receipts = NewReceiptService(ReceiptServiceConfig{
		Invoices:    env.invoices,
		Payments:    env.payments,
		Allocations: env.allocations,
		Receipts:    env.receiptRepo,
		Issuer:      StaticIssuer{Name: "Kora Studio Ltd", Email: "billing@kora.example"},
		Clock:       testClock,
		Logger:      zaptest.NewLogger(t),
	})
	env.allocator = NewAllocationService(AllocationServiceConfig{
		Invoices:       env.invoices,
		Payments:       env.payments,
		Scope:          env.scope,
		Receipts:       env.receipts,
		EventPublisher: env.events,
		Metrics:        env.metrics,
		Clock:          testClock,
		Logger:         zaptest.NewLogger(t),
	})
	return env
}

// createInvoice stores a sent NGN invoice with a single line of total minor units
func (env *testEnv) createInvoice(t *testing.T, tenantID uuid.UUID, total int64, due time.Time) *invoicing.Invoice {
	t.Helper()
	item, err := invoicing.NewLineItem("Brand identity package", 1, total)
	require.NoError(t, err)
	inv, err := invoicing.NewInvoice(invoicing.NewInvoiceParams{
		TenantID:      tenantID,
		InvoiceNumber: "INV-" + uuid.NewString()[:8],
		Currency:      valueobject.NGN,
		LineItems:     []invoicing.LineItem{item},
		IssueDate:     due.AddDate(0, 0, -30),
		DueDate:       due,
		Customer:      invoicing.Customer{Name: "Chidi Nwosu", Email: "chidi@example.com", Phone: "+2348031234567"},
	})
	require.NoError(t, err)
	require.NoError(t, inv.Send())
	inv.ClearDomainEvents()
	require.NoError(t, env.invoices.Create(context.Background(), inv))
	return inv
}

func (env *testEnv) reload(t *testing.T, inv *invoicing.Invoice) *invoicing.Invoice {
	t.Helper()
	got, err := env.invoices.FindByID(context.Background(), inv.ID)
	require.NoError(t, err)
	return got
}

func allocateCmd(inv *invoicing.Invoice, amount int64) AllocateCommand {
	return AllocateCommand{
		TenantID:    inv.TenantID,
		InvoiceID:   inv.ID,
		AmountMinor: amount,
		Currency:    inv.Currency.String(),
		Method:      invoicing.PaymentMethodBankTransfer,
		PaymentDate: testNow,
		Payer:       invoicing.PayerInfo{Name: "Chidi Nwosu"},
	}
}

// failingScope fails every transaction with err
type failingScope struct{ err error }

func (s failingScope) Execute(context.Context, func(invoicing.TransactionalRepositories) error) error {
	return s.err
}
