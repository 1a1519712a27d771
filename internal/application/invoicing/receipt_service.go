package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// IssuerProvider returns the issuing business shown on receipts
type IssuerProvider interface {
	Issuer(ctx context.Context, tenantID uuid.UUID) (invoicing.ReceiptParty, error)
}

// StaticIssuer is an IssuerProvider that returns the same party for every tenant
type StaticIssuer invoicing.ReceiptParty

// Issuer implements IssuerProvider
func (s StaticIssuer) Issuer(context.Context, uuid.UUID) (invoicing.ReceiptParty, error) {
	return invoicing.ReceiptParty(s), nil
}

// ReceiptArchive keeps an external copy of the canonical receipt text
type ReceiptArchive interface {
	Store(ctx context.Context, snapshot *invoicing.ReceiptSnapshot) error
}

// AuditResult is the outcome of re-checking a stored receipt
type AuditResult struct {
	ReceiptID    uuid.UUID
	Valid        bool
	StoredHash   string
	ComputedHash string
}

// ReceiptService generates, stores and verifies receipt snapshots
type ReceiptService struct {
	invoices    invoicing.InvoiceRepository
	payments    invoicing.PaymentRepository
	allocations invoicing.AllocationRepository
	receipts    invoicing.ReceiptRepository
	issuer      IssuerProvider
	archive     ReceiptArchive
	tailLength  int
	metrics     Metrics
	clock       Clock
	logger      *zap.Logger
}

// ReceiptServiceConfig holds the collaborators of ReceiptService
type ReceiptServiceConfig struct {
	Invoices       invoicing.InvoiceRepository
	Payments       invoicing.PaymentRepository
	Allocations    invoicing.AllocationRepository
	Receipts       invoicing.ReceiptRepository
	Issuer         IssuerProvider
	Archive        ReceiptArchive
	HashTailLength int
	Metrics        Metrics
	Clock          Clock
	Logger         *zap.Logger
}

// NewReceiptService creates a ReceiptService
func NewReceiptService(cfg ReceiptServiceConfig) *ReceiptService {
	s := &ReceiptService{
		invoices:    cfg.Invoices,
		payments:    cfg.Payments,
		allocations: cfg.Allocations,
		receipts:    cfg.Receipts,
		issuer:      cfg.Issuer,
		archive:     cfg.Archive,
		tailLength:  cfg.HashTailLength,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if s.issuer == nil {
		s.issuer = StaticIssuer{}
	}
	if s.tailLength == 0 {
		s.tailLength = invoicing.DefaultHashTailLength
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

// GenerateReceiptSnapshot creates the receipt for an allocated payment. It is
// safe to call repeatedly: an existing snapshot is returned unchanged.
func (s *ReceiptService) GenerateReceiptSnapshot(ctx context.Context, tenantID, paymentID uuid.UUID) (snapshot *invoicing.ReceiptSnapshot, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receipt", "generate",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentID, paymentID.String()))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	existing, err := s.receipts.FindByPaymentID(ctx, paymentID)
	if err == nil {
		if existing.TenantID != tenantID {
			return nil, invoicing.NewNotFoundError("payment", paymentID)
		}
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("lookup receipt: %w", err)
	}

	payment, err := s.payments.FindByIDForTenant(ctx, tenantID, paymentID)
	if err != nil {
		return nil, notFound(err, "payment", paymentID)
	}
	invoice, err := s.invoices.FindByIDForTenant(ctx, tenantID, payment.InvoiceID)
	if err != nil {
		return nil, notFound(err, "invoice", payment.InvoiceID)
	}
	applied, idx, err := s.appliedPayments(ctx, invoice.ID, paymentID)
	if err != nil {
		return nil, err
	}
	issuer, err := s.issuer.Issuer(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load issuer: %w", err)
	}

	data := invoicing.BuildReceiptHashData(invoice, applied, idx, issuer, s.clock())
	snapshot, err = invoicing.NewReceiptSnapshot(tenantID, paymentID, invoice.ID, data, s.tailLength)
	if err != nil {
		s.metrics.RecordReceipt(ctx, "failed")
		return nil, err
	}

	if err := s.receipts.Create(ctx, snapshot); err != nil {
		var conflict *invoicing.ConflictError
		if errors.As(err, &conflict) {
			// Lost a race with a concurrent generator; theirs is the receipt.
			return s.receipts.FindByPaymentID(ctx, paymentID)
		}
		s.metrics.RecordReceipt(ctx, "failed")
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	s.metrics.RecordReceipt(ctx, "created")

	s.logger.Info("Receipt snapshot created",
		zap.String("receipt_id", snapshot.ID.String()),
		zap.String("receipt_number", snapshot.ReceiptNumber),
		zap.String("payment_id", paymentID.String()),
		zap.String("hash_tail", snapshot.HashTail))

	if s.archive != nil {
		if err := s.archive.Store(ctx, snapshot); err != nil {
			s.logger.Warn("Receipt archive failed",
				zap.String("receipt_id", snapshot.ID.String()),
				zap.Error(err))
		}
	}
	return snapshot, nil
}

// appliedPayments returns the invoice's allocated payments oldest first and
// the index of paymentID among them.
func (s *ReceiptService) appliedPayments(ctx context.Context, invoiceID, paymentID uuid.UUID) ([]invoicing.AllocatedPayment, int, error) {
	allocations, err := s.allocations.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, 0, fmt.Errorf("list allocations: %w", err)
	}
	applied := make([]invoicing.AllocatedPayment, 0, len(allocations))
	idx := -1
	for i := range allocations {
		alloc := &allocations[i]
		p, err := s.payments.FindByID(ctx, alloc.PaymentID)
		if err != nil {
			return nil, 0, notFound(err, "payment", alloc.PaymentID)
		}
		if alloc.PaymentID == paymentID {
			idx = len(applied)
		}
		applied = append(applied, invoicing.AllocatedPayment{Payment: p, Allocation: alloc})
	}
	if idx < 0 {
		return nil, 0, invoicing.NewValidationError("payment_id", "payment is not allocated; no receipt can be issued yet")
	}
	return applied, idx, nil
}

// Verify recomputes the hash of data and compares it with expectedHash
func (s *ReceiptService) Verify(ctx context.Context, data invoicing.ReceiptHashData, expectedHash string) (invoicing.VerificationResult, error) {
	res, err := invoicing.Verify(data, expectedHash)
	if err != nil {
		return res, err
	}
	s.metrics.RecordVerification(ctx, res.Valid)
	return res, nil
}

// GetReceipt returns a tenant's receipt snapshot
func (s *ReceiptService) GetReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (*invoicing.ReceiptSnapshot, error) {
	snapshot, err := s.receipts.FindByIDForTenant(ctx, tenantID, receiptID)
	if err != nil {
		return nil, notFound(err, "receipt", receiptID)
	}
	return snapshot, nil
}

// AuditReceipt re-hashes the stored canonical text. A mismatch is returned as
// *IntegrityError alongside the result; nothing is modified.
func (s *ReceiptService) AuditReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (*AuditResult, error) {
	snapshot, err := s.GetReceipt(ctx, tenantID, receiptID)
	if err != nil {
		return nil, err
	}
	result := &AuditResult{
		ReceiptID:    snapshot.ID,
		StoredHash:   snapshot.SHA256Hash,
		ComputedHash: invoicing.HashCanonical([]byte(snapshot.CanonicalSnapshot)),
	}
	auditErr := snapshot.Audit()
	if auditErr == nil {
		// The stored text must also still be canonical, otherwise it was
		// rewritten and re-hashed outside the generator.
		recanonical, err := invoicing.CanonicalizeJSON([]byte(snapshot.CanonicalSnapshot))
		if err != nil || string(recanonical) != snapshot.CanonicalSnapshot {
			auditErr = &invoicing.IntegrityError{
				ReceiptID:    snapshot.ID,
				StoredHash:   snapshot.SHA256Hash,
				ComputedHash: invoicing.HashCanonical(recanonical),
			}
		}
	}
	result.Valid = auditErr == nil
	s.metrics.RecordVerification(ctx, result.Valid)
	if auditErr != nil {
		s.logger.Error("Receipt integrity check failed",
			zap.String("receipt_id", snapshot.ID.String()),
			zap.Error(auditErr))
		return result, auditErr
	}
	return result, nil
}

// VerifyPublic checks a hash presented by a third party against a receipt
func (s *ReceiptService) VerifyPublic(ctx context.Context, receiptID uuid.UUID, hash string) (invoicing.VerificationResult, error) {
	snapshot, err := s.receipts.FindByID(ctx, receiptID)
	if err != nil {
		return invoicing.VerificationResult{}, notFound(err, "receipt", receiptID)
	}
	data, err := snapshot.Data()
	if err != nil {
		return invoicing.VerificationResult{}, err
	}
	return s.Verify(ctx, *data, hash)
}

// PublicView returns the masked public representation of a receipt
func (s *ReceiptService) PublicView(ctx context.Context, receiptID uuid.UUID) (*invoicing.PublicReceiptView, error) {
	snapshot, err := s.receipts.FindByID(ctx, receiptID)
	if err != nil {
		return nil, notFound(err, "receipt", receiptID)
	}
	data, err := snapshot.Data()
	if err != nil {
		return nil, err
	}
	view := invoicing.NewPublicReceiptView(snapshot, data)
	return &view, nil
}

var _ ReceiptGenerator = (*ReceiptService)(nil)
