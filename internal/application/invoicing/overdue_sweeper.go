package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultSweepBatchSize bounds how many invoices one sweep transaction touches
const DefaultSweepBatchSize = 500

// SweepResult lists the invoices moved to overdue by one Sweep call
type SweepResult struct {
	Today    time.Time
	SweptIDs []uuid.UUID
	Duration time.Duration
}

// OverdueSweeper moves past-due invoices to overdue. Each batch is one
// transaction with one UPDATE; reminders go out afterwards through the event
// bus, so a failed reminder never undoes the status change.
type OverdueSweeper struct {
	scope     invoicing.TransactionScope
	publisher shared.EventPublisher
	metrics   Metrics
	batchSize int
	logger    *zap.Logger
}

// OverdueSweeperConfig holds the collaborators of OverdueSweeper
type OverdueSweeperConfig struct {
	Scope          invoicing.TransactionScope
	EventPublisher shared.EventPublisher
	Metrics        Metrics
	BatchSize      int
	Logger         *zap.Logger
}

// NewOverdueSweeper creates an OverdueSweeper
func NewOverdueSweeper(cfg OverdueSweeperConfig) *OverdueSweeper {
	s := &OverdueSweeper{
		scope:     cfg.Scope,
		publisher: cfg.EventPublisher,
		metrics:   cfg.Metrics,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultSweepBatchSize
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Sweep marks every eligible invoice overdue as of today. Invoices already
// overdue do not match the filter, so a second run on the same day is a no-op.
func (s *OverdueSweeper) Sweep(ctx context.Context, today time.Time) (*SweepResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "overdue", "sweep")
	defer span.End()

	start := time.Now()
	day := invoicing.CalendarDay(today)
	result := &SweepResult{Today: day}

	for {
		swept, events, more, err := s.sweepBatch(ctx, day)
		if err != nil {
			telemetry.RecordError(span, err)
			return result, fmt.Errorf("overdue sweep: %w", err)
		}
		result.SweptIDs = append(result.SweptIDs, swept...)
		s.publish(ctx, events)
		if !more {
			break
		}
	}

	result.Duration = time.Since(start)
	s.metrics.RecordSweep(ctx, len(result.SweptIDs))
	telemetry.SetAttributes(span, "swept", len(result.SweptIDs))
	s.logger.Info("Overdue sweep completed",
		zap.Time("today", day),
		zap.Int("swept", len(result.SweptIDs)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// sweepBatch moves one batch. more is false once the candidate query comes
// back short; rows taken by a concurrent sweep do not end the loop early.
func (s *OverdueSweeper) sweepBatch(ctx context.Context, today time.Time) ([]uuid.UUID, []shared.DomainEvent, bool, error) {
	var (
		swept  []uuid.UUID
		events []shared.DomainEvent
		more   bool
	)
	err := s.scope.Execute(ctx, func(repos invoicing.TransactionalRepositories) error {
		candidates, err := repos.Invoices().FindOverdueCandidates(ctx, today, s.batchSize)
		if err != nil {
			return err
		}

		byID := make(map[uuid.UUID]*invoicing.Invoice, len(candidates))
		ids := make([]uuid.UUID, 0, len(candidates))
		for i := range candidates {
			inv := &candidates[i]
			if inv.MarkOverdue(today) {
				byID[inv.ID] = inv
				ids = append(ids, inv.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		more = len(candidates) == s.batchSize

		updated, err := repos.Invoices().MarkOverdue(ctx, ids, today)
		if err != nil {
			return err
		}
		for _, id := range updated {
			events = append(events, collectEvents(byID[id])...)
		}
		swept = updated
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return swept, events, more, nil
}

func (s *OverdueSweeper) publish(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish overdue events", zap.Int("count", len(events)), zap.Error(err))
	}
}
