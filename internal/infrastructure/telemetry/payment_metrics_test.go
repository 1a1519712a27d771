package telemetry_test

import (
	"context"
	"testing"

	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var _ appinvoicing.Metrics = (*telemetry.PaymentMetrics)(nil)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	want := attribute.NewSet(attrs...)
	var total int64
	for _, dp := range sum.DataPoints {
		if len(attrs) == 0 || dp.Attributes.Equals(&want) {
			total += dp.Value
		}
	}
	return total
}

func TestNewPaymentMetrics_NilMeter(t *testing.T) {
	pm, err := telemetry.NewPaymentMetrics(nil)
	require.Error(t, err)
	assert.Nil(t, pm)
	assert.Equal(t, "NewPaymentMetrics: meter cannot be nil", err.Error())
}

func TestPaymentMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	pm, err := telemetry.NewPaymentMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	pm.RecordAllocation(ctx, appinvoicing.OutcomeAllocated, 50000, "NGN")
	pm.RecordAllocation(ctx, appinvoicing.OutcomeAllocated, 62500, "NGN")
	pm.RecordAllocation(ctx, appinvoicing.OutcomeRejected, 1, "NGN")
	pm.RecordDuplicate(ctx, "webhook")
	pm.RecordUnallocated(ctx, "CONCURRENCY_CONFLICT")
	pm.RecordSweep(ctx, 3)
	pm.RecordSweep(ctx, 0)
	pm.RecordReceipt(ctx, "created")
	pm.RecordVerification(ctx, false)

	metrics := collect(t, reader)

	allocatedSet := attribute.NewSet(
		telemetry.AttrOutcome.String(appinvoicing.OutcomeAllocated),
		telemetry.AttrCurrency.String("NGN"),
	)
	allocated := allocatedSet.ToSlice()
	assert.Equal(t, int64(2), sumFor(t, metrics["invoicing_allocations_total"], allocated...))
	assert.Equal(t, int64(3), sumFor(t, metrics["invoicing_allocations_total"]))
	assert.Equal(t, int64(112500), sumFor(t, metrics["invoicing_allocated_amount_minor_total"]))
	assert.Equal(t, int64(1), sumFor(t, metrics["invoicing_duplicate_payments_total"], telemetry.AttrSource.String("webhook")))
	assert.Equal(t, int64(1), sumFor(t, metrics["invoicing_unallocated_payments_total"]))
	assert.Equal(t, int64(3), sumFor(t, metrics["invoicing_overdue_swept_total"]))
	assert.Equal(t, int64(2), sumFor(t, metrics["invoicing_overdue_sweep_runs_total"]))
	assert.Equal(t, int64(1), sumFor(t, metrics["invoicing_receipts_total"]))
	assert.Equal(t, int64(1), sumFor(t, metrics["invoicing_receipt_verifications_total"], telemetry.AttrValid.String("false")))
}
