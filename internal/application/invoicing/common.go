package invoicing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// Metrics receives business counters from the services. The telemetry
// package provides the OpenTelemetry implementation.
type Metrics interface {
	RecordAllocation(ctx context.Context, outcome string, amountMinor int64, currency string)
	RecordDuplicate(ctx context.Context, source string)
	RecordUnallocated(ctx context.Context, reason string)
	RecordSweep(ctx context.Context, swept int)
	RecordReceipt(ctx context.Context, outcome string)
	RecordVerification(ctx context.Context, valid bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordAllocation(context.Context, string, int64, string) {}
func (nopMetrics) RecordDuplicate(context.Context, string)                 {}
func (nopMetrics) RecordUnallocated(context.Context, string)               {}
func (nopMetrics) RecordSweep(context.Context, int)                        {}
func (nopMetrics) RecordReceipt(context.Context, string)                   {}
func (nopMetrics) RecordVerification(context.Context, bool)                {}

// Allocation outcomes reported to Metrics
const (
	OutcomeAllocated = "allocated"
	OutcomeDegraded  = "degraded"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
)

// notFound converts a repository miss into a typed NotFoundError
func notFound(err error, resource string, id uuid.UUID) error {
	if errors.Is(err, shared.ErrNotFound) {
		return invoicing.NewNotFoundError(resource, id)
	}
	return err
}

// collectEvents drains pending events from an aggregate
func collectEvents(agg shared.AggregateRoot) []shared.DomainEvent {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	return events
}
