package invoicing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reconciliation defaults
const (
	DefaultReconcileBatchSize   = 200
	DefaultReconcileConcurrency = 4
	DefaultReconcileGracePeriod = 5 * time.Minute
)

// ReconcileReport summarises one reconciliation run
type ReconcileReport struct {
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
	Examined           int           `json:"examined"`
	Allocated          int           `json:"allocated"`
	AlreadyAllocated   int           `json:"already_allocated"`
	StillUnallocated   int           `json:"still_unallocated"`
	NeedsReview        int           `json:"needs_review"`
	ReceiptsBackfilled int           `json:"receipts_backfilled"`
	ReceiptFailures    int           `json:"receipt_failures"`
	Unresolved         []uuid.UUID   `json:"unresolved,omitempty"`
}

// ReconciliationService retries the steps that run after a payment is durable:
// the allocation itself and receipt generation.
type ReconciliationService struct {
	payments    invoicing.PaymentRepository
	allocator   *AllocationService
	receipts    ReceiptGenerator
	batchSize   int
	concurrency int
	grace       time.Duration
	clock       Clock
	logger      *zap.Logger
}

// ReconciliationServiceConfig holds the collaborators of ReconciliationService
type ReconciliationServiceConfig struct {
	Payments    invoicing.PaymentRepository
	Allocator   *AllocationService
	Receipts    ReceiptGenerator
	BatchSize   int
	Concurrency int
	// GracePeriod skips payments younger than this so in-flight requests are
	// not raced.
	GracePeriod time.Duration
	Clock       Clock
	Logger      *zap.Logger
}

// NewReconciliationService creates a ReconciliationService
func NewReconciliationService(cfg ReconciliationServiceConfig) *ReconciliationService {
	s := &ReconciliationService{
		payments:    cfg.Payments,
		allocator:   cfg.Allocator,
		receipts:    cfg.Receipts,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		grace:       cfg.GracePeriod,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultReconcileBatchSize
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultReconcileConcurrency
	}
	if s.grace < 0 {
		s.grace = 0
	}
	if s.clock == nil {
		s.clock = systemClock
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Run reconciles unallocated payments and then backfills missing receipts
func (s *ReconciliationService) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{StartedAt: s.clock()}
	if err := s.ReconcileUnallocated(ctx, report); err != nil {
		return report, err
	}
	if err := s.BackfillReceipts(ctx, report); err != nil {
		return report, err
	}
	report.Duration = s.clock().Sub(report.StartedAt)
	s.logger.Info("Reconciliation completed",
		zap.Int("examined", report.Examined),
		zap.Int("allocated", report.Allocated),
		zap.Int("still_unallocated", report.StillUnallocated),
		zap.Int("needs_review", report.NeedsReview),
		zap.Int("receipts_backfilled", report.ReceiptsBackfilled))
	return report, nil
}

// ReconcileUnallocated retries the allocation of payments that have none.
// The whole queue is walked page by page, so payments that can never be
// applied do not hide newer ones. Those stay unallocated, are counted in
// NeedsReview and listed in the report for manual review.
func (s *ReconciliationService) ReconcileUnallocated(ctx context.Context, report *ReconcileReport) error {
	cutoff := s.clock().Add(-s.grace)
	var after *invoicing.PaymentCursor
	for {
		page, err := s.payments.FindUnallocated(ctx, cutoff, after, s.batchSize)
		if err != nil {
			return err
		}
		if err := s.retryAllocations(ctx, page, report); err != nil {
			return err
		}
		if len(page) < s.batchSize {
			return nil
		}
		after = invoicing.CursorAfter(page[len(page)-1])
	}
}

func (s *ReconciliationService) retryAllocations(ctx context.Context, payments []invoicing.Payment, report *ReconcileReport) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range payments {
		payment := &payments[i]
		g.Go(func() error {
			_, err := s.allocator.AllocateExisting(gctx, payment)
			mu.Lock()
			defer mu.Unlock()
			report.Examined++
			switch {
			case err == nil:
				report.Allocated++
			case errors.Is(err, ErrPaymentAlreadyAllocated):
				report.AlreadyAllocated++
			default:
				report.StillUnallocated++
				if needsReview(err) {
					report.NeedsReview++
				}
				report.Unresolved = append(report.Unresolved, payment.ID)
				s.logger.Warn("Payment still unallocated",
					zap.String("payment_id", payment.ID.String()),
					zap.String("invoice_id", payment.InvoiceID.String()),
					zap.Bool("needs_review", needsReview(err)),
					zap.Error(err))
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}

// needsReview reports whether a retry can never succeed on its own: the
// invoice is settled or cancelled, or the amount no longer fits.
func needsReview(err error) bool {
	return errors.Is(err, invoicing.ErrExceedsBalance) ||
		errors.Is(err, invoicing.ErrTerminalState) ||
		errors.Is(err, invoicing.ErrValidation) ||
		errors.Is(err, invoicing.ErrNotFound)
}

// BackfillReceipts generates receipts for allocated payments that have none
func (s *ReconciliationService) BackfillReceipts(ctx context.Context, report *ReconcileReport) error {
	if s.receipts == nil {
		return nil
	}
	payments, err := s.payments.FindAllocatedWithoutReceipt(ctx, s.clock().Add(-s.grace), s.batchSize)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range payments {
		payment := &payments[i]
		g.Go(func() error {
			_, err := s.receipts.GenerateReceiptSnapshot(gctx, payment.TenantID, payment.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.ReceiptFailures++
				s.logger.Error("Receipt backfill failed",
					zap.String("payment_id", payment.ID.String()),
					zap.Error(err))
			} else {
				report.ReceiptsBackfilled++
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}
