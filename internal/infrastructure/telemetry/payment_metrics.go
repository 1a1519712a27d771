package telemetry

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/metric"
)

// PaymentMetrics records the reconciliation counters reported by the
// invoicing services.
type PaymentMetrics struct {
	allocations     *Counter
	allocatedAmount *Counter
	duplicates      *Counter
	unallocated     *Counter
	sweptInvoices   *Counter
	sweepRuns       *Counter
	receipts        *Counter
	verifications   *Counter
	sweepBatch      *Histogram
}

// NewPaymentMetrics creates the instruments on meter.
func NewPaymentMetrics(meter metric.Meter) (*PaymentMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	pm := &PaymentMetrics{}
	counters := []struct {
		dst        **Counter
		name, desc string
		unit       string
	}{
		{&pm.allocations, "invoicing_allocations_total", "Allocation attempts by outcome", "{allocations}"},
		{&pm.allocatedAmount, "invoicing_allocated_amount_minor_total", "Allocated money in minor units", "{minor_units}"},
		{&pm.duplicates, "invoicing_duplicate_payments_total", "Payments rejected as already processed", "{payments}"},
		{&pm.unallocated, "invoicing_unallocated_payments_total", "Payments recorded without an allocation", "{payments}"},
		{&pm.sweptInvoices, "invoicing_overdue_swept_total", "Invoices moved to overdue by the sweep", "{invoices}"},
		{&pm.sweepRuns, "invoicing_overdue_sweep_runs_total", "Overdue sweep executions", "{runs}"},
		{&pm.receipts, "invoicing_receipts_total", "Receipt snapshot generations by outcome", "{receipts}"},
		{&pm.verifications, "invoicing_receipt_verifications_total", "Receipt verifications by result", "{verifications}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	h, err := NewHistogram(meter, HistogramOpts{
		Name:        "invoicing_overdue_sweep_batch",
		Description: "Invoices changed per sweep run",
		Unit:        "{invoices}",
		Boundaries:  []float64{0, 1, 10, 50, 100, 500, 1000},
	})
	if err != nil {
		return nil, err
	}
	pm.sweepBatch = h
	return pm, nil
}

// RecordAllocation counts one allocation attempt. Amounts are only summed
// for allocations that were applied.
func (m *PaymentMetrics) RecordAllocation(ctx context.Context, outcome string, amountMinor int64, currency string) {
	m.allocations.Inc(ctx, AttrOutcome.String(outcome), AttrCurrency.String(currency))
	if outcome == "allocated" && amountMinor > 0 {
		m.allocatedAmount.Add(ctx, amountMinor, AttrCurrency.String(currency))
	}
}

// RecordDuplicate counts a delivery rejected by the idempotency guard
func (m *PaymentMetrics) RecordDuplicate(ctx context.Context, source string) {
	m.duplicates.Inc(ctx, AttrSource.String(source))
}

// RecordUnallocated counts a payment left without allocation
func (m *PaymentMetrics) RecordUnallocated(ctx context.Context, reason string) {
	m.unallocated.Inc(ctx, AttrReason.String(reason))
}

// RecordSweep records one sweep run and how many invoices it changed
func (m *PaymentMetrics) RecordSweep(ctx context.Context, swept int) {
	m.sweepRuns.Inc(ctx)
	m.sweptInvoices.Add(ctx, int64(swept))
	m.sweepBatch.Record(ctx, float64(swept))
}

// RecordReceipt counts a receipt generation outcome
func (m *PaymentMetrics) RecordReceipt(ctx context.Context, outcome string) {
	m.receipts.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordVerification counts a receipt verification result
func (m *PaymentMetrics) RecordVerification(ctx context.Context, valid bool) {
	m.verifications.Inc(ctx, AttrValid.String(strconv.FormatBool(valid)))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPaymentMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
