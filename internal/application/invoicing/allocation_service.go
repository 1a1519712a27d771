package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxLockRetries bounds optimistic-lock retries of the allocation step
const maxLockRetries = 3

// ErrPaymentAlreadyAllocated is returned by AllocateExisting when another
// worker allocated the payment first.
var ErrPaymentAlreadyAllocated = errors.New("payment already allocated")

// AllocateCommand asks to record a payment against one invoice
type AllocateCommand struct {
	TenantID          uuid.UUID
	InvoiceID         uuid.UUID
	AmountMinor       int64
	Currency          string
	Method            invoicing.PaymentMethod
	ExternalReference *string
	TransactionID     string
	Provider          string
	PaymentDate       time.Time
	Payer             invoicing.PayerInfo
	Metadata          invoicing.Metadata
}

// AllocationResult describes what was written. Degraded means the payment is
// durable but no allocation exists for it yet.
type AllocationResult struct {
	Payment    *invoicing.Payment
	Allocation *invoicing.PaymentAllocation
	Invoice    *invoicing.Invoice
	Receipt    *invoicing.ReceiptSnapshot
	Degraded   bool
}

// ReceiptGenerator produces the receipt snapshot for an allocated payment
type ReceiptGenerator interface {
	GenerateReceiptSnapshot(ctx context.Context, tenantID, paymentID uuid.UUID) (*invoicing.ReceiptSnapshot, error)
}

// AllocationService applies payments to invoices. The payment row is committed
// on its own before the allocation transaction so a failure in between leaves
// an unallocated payment instead of a lost one.
type AllocationService struct {
	invoices  invoicing.InvoiceRepository
	payments  invoicing.PaymentRepository
	scope     invoicing.TransactionScope
	receipts  ReceiptGenerator
	publisher shared.EventPublisher
	metrics   Metrics
	clock     Clock
	logger    *zap.Logger
}

// AllocationServiceConfig holds the collaborators of AllocationService
type AllocationServiceConfig struct {
	Invoices       invoicing.InvoiceRepository
	Payments       invoicing.PaymentRepository
	Scope          invoicing.TransactionScope
	Receipts       ReceiptGenerator
	EventPublisher shared.EventPublisher
	Metrics        Metrics
	Clock          Clock
	Logger         *zap.Logger
}

// NewAllocationService creates an AllocationService
func NewAllocationService(cfg AllocationServiceConfig) *AllocationService {
	s := &AllocationService{
		invoices:  cfg.Invoices,
		payments:  cfg.Payments,
		scope:     cfg.Scope,
		receipts:  cfg.Receipts,
		publisher: cfg.EventPublisher,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.clock == nil {
		s.clock = systemClock
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Allocate validates the request against the invoice, records the payment and
// applies it. Synchronous rejections (validation, not found, terminal,
// exceeds balance, conflict) write nothing. Once the payment is recorded a
// failure of the allocation step returns the payment with Degraded set and a
// *PartialFailureError.
func (s *AllocationService) Allocate(ctx context.Context, cmd AllocateCommand) (result *AllocationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "allocate",
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, cmd.InvoiceID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrAmountMinor, cmd.AmountMinor),
		telemetry.WithAttribute(telemetry.SpanAttrProvider, cmd.Provider))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	payment, err := s.buildPayment(cmd)
	if err != nil {
		s.metrics.RecordAllocation(ctx, OutcomeRejected, cmd.AmountMinor, cmd.Currency)
		return nil, err
	}

	// A retry of a recorded reference answers with the conflict, whatever
	// the invoice balance is now.
	conflict, err := s.recordedReference(ctx, payment)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		s.metrics.RecordAllocation(ctx, OutcomeDuplicate, payment.AmountMinor, payment.Currency.String())
		return nil, conflict
	}

	invoice, err := s.invoices.FindByIDForTenant(ctx, cmd.TenantID, cmd.InvoiceID)
	if err != nil {
		return nil, notFound(err, "invoice", cmd.InvoiceID)
	}
	if err := invoice.CheckAllocation(payment.Amount()); err != nil {
		s.metrics.RecordAllocation(ctx, OutcomeRejected, payment.AmountMinor, payment.Currency.String())
		return nil, err
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		var conflict *invoicing.ConflictError
		if errors.As(err, &conflict) {
			s.metrics.RecordAllocation(ctx, OutcomeDuplicate, payment.AmountMinor, payment.Currency.String())
			return nil, err
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}

	s.logger.Info("Payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.Int64("amount_minor", payment.AmountMinor),
		zap.String("external_reference", payment.Reference()))

	return s.allocateRecorded(ctx, payment, false)
}

// AllocateExisting retries the allocation step for a payment that is already
// recorded. Reconciliation uses it for unallocated payments. A failed retry
// returns a *PartialFailureError but publishes no second PaymentUnallocated
// event and records no second degraded outcome.
func (s *AllocationService) AllocateExisting(ctx context.Context, payment *invoicing.Payment) (*AllocationResult, error) {
	return s.allocateRecorded(ctx, payment, true)
}

// RecordUnallocated stores a payment that cannot be applied (the invoice is
// settled, cancelled, or the amount is too large) so received money is never
// dropped. The result is always degraded.
func (s *AllocationService) RecordUnallocated(ctx context.Context, cmd AllocateCommand, reason error) (*AllocationResult, error) {
	payment, err := s.buildPayment(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	s.logger.Warn("Payment recorded without allocation",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.Error(reason))
	return s.degrade(ctx, payment, "allocation", reason)
}

// recordedReference returns a *ConflictError when the payment's external
// reference is already stored. PaymentID is only set for the same tenant.
func (s *AllocationService) recordedReference(ctx context.Context, payment *invoicing.Payment) (*invoicing.ConflictError, error) {
	if payment.ExternalReference == nil {
		return nil, nil
	}
	existing, err := s.payments.FindByExternalReference(ctx, *payment.ExternalReference)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up reference: %w", err)
	}
	conflict := &invoicing.ConflictError{ExternalReference: *payment.ExternalReference}
	if existing.TenantID == payment.TenantID {
		conflict.PaymentID = existing.ID
	}
	return conflict, nil
}

func (s *AllocationService) buildPayment(cmd AllocateCommand) (*invoicing.Payment, error) {
	currency, err := valueobject.ParseCurrency(cmd.Currency)
	if err != nil {
		return nil, invoicing.NewValidationError("currency", err.Error())
	}
	amount, err := valueobject.NewMoney(cmd.AmountMinor, currency)
	if err != nil {
		return nil, invoicing.NewValidationError("amount", err.Error())
	}
	return invoicing.NewPayment(invoicing.NewPaymentParams{
		TenantID:          cmd.TenantID,
		InvoiceID:         cmd.InvoiceID,
		Amount:            amount,
		Method:            cmd.Method,
		ExternalReference: cmd.ExternalReference,
		TransactionID:     cmd.TransactionID,
		Provider:          cmd.Provider,
		PaymentDate:       cmd.PaymentDate,
		Payer:             cmd.Payer,
		Metadata:          cmd.Metadata,
	})
}

func (s *AllocationService) allocateRecorded(ctx context.Context, payment *invoicing.Payment, retry bool) (*AllocationResult, error) {
	var (
		invoice    *invoicing.Invoice
		allocation *invoicing.PaymentAllocation
		err        error
	)
	for attempt := 1; attempt <= maxLockRetries; attempt++ {
		invoice, allocation, err = s.applyInTransaction(ctx, payment)
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			break
		}
		s.logger.Debug("Invoice modified concurrently, retrying allocation",
			zap.String("invoice_id", payment.InvoiceID.String()),
			zap.Int("attempt", attempt))
	}
	if errors.Is(err, ErrPaymentAlreadyAllocated) {
		return nil, err
	}
	if err != nil && retry {
		return &AllocationResult{Payment: payment, Degraded: true}, &invoicing.PartialFailureError{
			PaymentID: payment.ID,
			InvoiceID: payment.InvoiceID,
			Stage:     "allocation",
			Cause:     err,
		}
	}
	if err != nil {
		return s.degrade(ctx, payment, "allocation", err)
	}

	events := collectEvents(invoice)
	events = append(events, invoicing.NewPaymentRecordedEvent(payment, invoice))
	s.publish(ctx, events)
	s.metrics.RecordAllocation(ctx, OutcomeAllocated, payment.AmountMinor, payment.Currency.String())

	s.logger.Info("Payment allocated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int64("balance_due_minor", invoice.BalanceDue),
		zap.String("status", invoice.Status.String()))

	result := &AllocationResult{Payment: payment, Allocation: allocation, Invoice: invoice}
	if s.receipts != nil {
		receipt, err := s.receipts.GenerateReceiptSnapshot(ctx, payment.TenantID, payment.ID)
		if err != nil {
			// Reconciliation backfills missing receipts.
			s.logger.Error("Receipt generation failed",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(err))
		} else {
			result.Receipt = receipt
		}
	}
	return result, nil
}

func (s *AllocationService) applyInTransaction(ctx context.Context, payment *invoicing.Payment) (*invoicing.Invoice, *invoicing.PaymentAllocation, error) {
	var (
		invoice    *invoicing.Invoice
		allocation *invoicing.PaymentAllocation
	)
	err := s.scope.Execute(ctx, func(repos invoicing.TransactionalRepositories) error {
		existing, err := repos.Allocations().FindByPayment(ctx, payment.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("check allocation: %w", err)
		}
		if existing != nil {
			return ErrPaymentAlreadyAllocated
		}

		inv, err := repos.Invoices().FindByIDForTenant(ctx, payment.TenantID, payment.InvoiceID)
		if err != nil {
			return notFound(err, "invoice", payment.InvoiceID)
		}
		alloc, err := inv.ApplyAllocation(payment, s.clock())
		if err != nil {
			return err
		}
		if err := repos.Allocations().Create(ctx, alloc); err != nil {
			var conflict *invoicing.ConflictError
			if errors.As(err, &conflict) {
				return ErrPaymentAlreadyAllocated
			}
			return fmt.Errorf("insert allocation: %w", err)
		}
		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}
		invoice, allocation = inv, alloc
		return nil
	})
	return invoice, allocation, err
}

func (s *AllocationService) degrade(ctx context.Context, payment *invoicing.Payment, stage string, cause error) (*AllocationResult, error) {
	s.logger.Error("Payment left unallocated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.String("stage", stage),
		zap.Error(cause))
	s.metrics.RecordAllocation(ctx, OutcomeDegraded, payment.AmountMinor, payment.Currency.String())
	s.metrics.RecordUnallocated(ctx, shared.ErrorCode(cause))
	s.publish(ctx, []shared.DomainEvent{invoicing.NewPaymentUnallocatedEvent(payment, cause.Error())})

	return &AllocationResult{Payment: payment, Degraded: true}, &invoicing.PartialFailureError{
		PaymentID: payment.ID,
		InvoiceID: payment.InvoiceID,
		Stage:     stage,
		Cause:     cause,
	}
}

func (s *AllocationService) publish(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Int("count", len(events)), zap.Error(err))
	}
}
