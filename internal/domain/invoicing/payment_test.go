package invoicing

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPaymentParams() NewPaymentParams {
	ref := "  FLW-999 "
	return NewPaymentParams{
		TenantID:          uuid.New(),
		InvoiceID:         uuid.New(),
		Amount:            valueobject.MustMoney(10000, valueobject.NGN),
		Method:            PaymentMethodMobileMoney,
		ExternalReference: &ref,
		PaymentDate:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("WAT", 3600)),
		Metadata:          Metadata{"event": "charge.completed"},
	}
}

func TestNewPayment(t *testing.T) {
	t.Run("normalizes reference and date", func(t *testing.T) {
		p, err := NewPayment(validPaymentParams())
		require.NoError(t, err)
		assert.Equal(t, "FLW-999", p.Reference())
		assert.Equal(t, time.UTC, p.PaymentDate.Location())
		assert.Equal(t, "charge.completed", p.Metadata["event"])
	})

	t.Run("blank reference becomes nil", func(t *testing.T) {
		params := validPaymentParams()
		blank := "   "
		params.ExternalReference = &blank
		p, err := NewPayment(params)
		require.NoError(t, err)
		assert.Nil(t, p.ExternalReference)
		assert.Equal(t, "", p.Reference())
	})

	tests := []struct {
		name   string
		mutate func(*NewPaymentParams)
		field  string
	}{
		{"zero amount", func(p *NewPaymentParams) { p.Amount = valueobject.MustMoney(0, valueobject.NGN) }, "amount"},
		{"negative amount", func(p *NewPaymentParams) { p.Amount = valueobject.MustMoney(-5, valueobject.NGN) }, "amount"},
		{"missing method", func(p *NewPaymentParams) { p.Method = "" }, "method"},
		{"unknown method", func(p *NewPaymentParams) { p.Method = "barter" }, "method"},
		{"missing date", func(p *NewPaymentParams) { p.PaymentDate = time.Time{} }, "payment_date"},
		{"missing invoice", func(p *NewPaymentParams) { p.InvoiceID = uuid.Nil }, "invoice_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validPaymentParams()
			tt.mutate(&params)
			_, err := NewPayment(params)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestMetadata_ValueScan(t *testing.T) {
	m := Metadata{"flw_ref": "FLW-1", "amount": 100.5}
	v, err := m.Value()
	require.NoError(t, err)

	var out Metadata
	require.NoError(t, out.Scan(v))
	assert.Equal(t, "FLW-1", out["flw_ref"])

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)
}

func TestManualReference(t *testing.T) {
	tenant := uuid.MustParse("a9f1d3c2-7e44-4b8c-8f8e-2d6b0c1e9a22")

	ref, err := ManualReference(tenant, " key-1 ")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "manual:a9f1d3c2-7e44-4b8c-8f8e-2d6b0c1e9a22:key-1", *ref)

	ref, err = ManualReference(tenant, "  ")
	require.NoError(t, err)
	assert.Nil(t, ref)

	_, err = ManualReference(tenant, strings.Repeat("k", MaxExternalReferenceLength))
	assert.ErrorIs(t, err, ErrValidation)
}
