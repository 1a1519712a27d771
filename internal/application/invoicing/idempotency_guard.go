package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Admission is the guard's verdict on an external reference
type Admission struct {
	Proceed           bool
	AlreadyProcessed  bool
	ExistingPaymentID uuid.UUID
}

// IdempotencyGuard short-circuits external events whose reference is already
// recorded. The lookup is a fast path; the unique index on
// payments.external_reference is what actually prevents a second payment,
// and Resolve turns the resulting ConflictError into the same answer.
type IdempotencyGuard struct {
	payments invoicing.PaymentRepository
	metrics  Metrics
	logger   *zap.Logger
}

// NewIdempotencyGuard creates an IdempotencyGuard
func NewIdempotencyGuard(payments invoicing.PaymentRepository, metrics Metrics, logger *zap.Logger) *IdempotencyGuard {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdempotencyGuard{payments: payments, metrics: metrics, logger: logger}
}

// Admit checks whether reference was already recorded
func (g *IdempotencyGuard) Admit(ctx context.Context, reference string) (Admission, error) {
	if reference == "" {
		return Admission{}, invoicing.NewValidationError("external_reference", "is required for gateway payments")
	}
	existing, err := g.payments.FindByExternalReference(ctx, reference)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Admission{Proceed: true}, nil
		}
		return Admission{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	g.logger.Info("External reference already processed",
		zap.String("external_reference", reference),
		zap.String("payment_id", existing.ID.String()))
	g.metrics.RecordDuplicate(ctx, "fast_path")
	return Admission{AlreadyProcessed: true, ExistingPaymentID: existing.ID}, nil
}

// Resolve converts a ConflictError raised by the payment insert into an
// already-processed admission. ok is false when err is not a conflict.
func (g *IdempotencyGuard) Resolve(ctx context.Context, reference string, err error) (Admission, bool) {
	var conflict *invoicing.ConflictError
	if !errors.As(err, &conflict) {
		return Admission{}, false
	}

	g.metrics.RecordDuplicate(ctx, "unique_constraint")
	admission := Admission{AlreadyProcessed: true}
	winner, lookupErr := g.payments.FindByExternalReference(ctx, reference)
	if lookupErr != nil {
		g.logger.Warn("Conflicting payment not readable after unique violation",
			zap.String("external_reference", reference),
			zap.Error(lookupErr))
		return admission, true
	}
	admission.ExistingPaymentID = winner.ID
	g.logger.Info("Concurrent duplicate resolved by unique constraint",
		zap.String("external_reference", reference),
		zap.String("payment_id", winner.ID.String()))
	return admission, true
}
