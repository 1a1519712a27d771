package invoicing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapGatewayStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected GatewayStatus
	}{
		{"successful", GatewayStatusSuccess},
		{"SUCCESS", GatewayStatusSuccess},
		{"completed", GatewayStatusSuccess},
		{"failed", GatewayStatusFailed},
		{"cancelled", GatewayStatusFailed},
		{" Reversed ", GatewayStatusFailed},
		{"pending", GatewayStatusPending},
		{"processing", GatewayStatusPending},
		{"", GatewayStatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGatewayStatus(tt.raw))
		})
	}
}

func TestMapPaymentType(t *testing.T) {
	tests := []struct {
		raw      string
		expected PaymentMethod
	}{
		{"mobilemoneyghana", PaymentMethodMobileMoney},
		{"mobile_money_uganda", PaymentMethodMobileMoney},
		{"mpesa", PaymentMethodMobileMoney},
		{"card", PaymentMethodCard},
		{"Debit Card", PaymentMethodCard},
		{"bank_transfer", PaymentMethodBankTransfer},
		{"account", PaymentMethodBankTransfer},
		{"cash", PaymentMethodCash},
		{"crypto", PaymentMethodCrypto},
		{"barter", PaymentMethodOther},
		{"", PaymentMethodOther},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := MapPaymentType(tt.raw)
			assert.Equal(t, tt.expected, got)
			assert.True(t, got.IsValid())
		})
	}
}

func TestGatewayPayment_MetadataFromRaw(t *testing.T) {
	g := &GatewayPayment{
		Provider:  "flutterwave",
		RawStatus: "successful",
		Raw:       json.RawMessage(`{"id":42,"flw_ref":"FLW-999"}`),
	}
	md := g.MetadataFromRaw()
	assert.Equal(t, "flutterwave", md["provider"])
	payload, ok := md["payload"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "FLW-999", payload["flw_ref"])
}
