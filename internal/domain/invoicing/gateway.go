package invoicing

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
)

// GatewayStatus is the canonical outcome of a gateway transaction
type GatewayStatus string

const (
	GatewayStatusPending GatewayStatus = "pending"
	GatewayStatusSuccess GatewayStatus = "success"
	GatewayStatusFailed  GatewayStatus = "failed"
)

// MapGatewayStatus maps a provider status string to the canonical status.
// Anything not clearly settled either way stays pending.
func MapGatewayStatus(raw string) GatewayStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "successful", "success", "succeeded", "completed", "paid":
		return GatewayStatusSuccess
	case "failed", "failure", "cancelled", "canceled", "error", "reversed", "declined":
		return GatewayStatusFailed
	default:
		return GatewayStatusPending
	}
}

// MapPaymentType maps a provider payment type to the canonical method.
// Unrecognized types map to other.
func MapPaymentType(raw string) PaymentMethod {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.NewReplacer("-", "_", " ", "_").Replace(t)
	switch {
	case t == "":
		return PaymentMethodOther
	case strings.HasPrefix(t, "mobilemoney"), strings.HasPrefix(t, "mobile_money"),
		t == "mpesa", t == "momo", t == "ussd":
		return PaymentMethodMobileMoney
	case t == "card", t == "credit_card", t == "debit_card", t == "applepay", t == "googlepay":
		return PaymentMethodCard
	case t == "bank_transfer", t == "banktransfer", t == "account", t == "ach", t == "bank":
		return PaymentMethodBankTransfer
	case t == "cash":
		return PaymentMethodCash
	case t == "crypto", t == "cryptocurrency", t == "bitcoin", t == "usdt":
		return PaymentMethodCrypto
	default:
		return PaymentMethodOther
	}
}

// GatewayPayment is a provider transaction normalized to the core's vocabulary
type GatewayPayment struct {
	Provider          string
	Status            GatewayStatus
	RawStatus         string
	Amount            valueobject.Money
	Method            PaymentMethod
	ExternalReference string
	TransactionID     string
	InvoiceID         uuid.UUID
	TenantID          uuid.UUID
	PaidAt            time.Time
	Payer             PayerInfo
	Raw               json.RawMessage
}

// MetadataFromRaw wraps the provider payload for storage on the payment
func (g *GatewayPayment) MetadataFromRaw() Metadata {
	md := Metadata{"provider": g.Provider, "raw_status": g.RawStatus}
	if len(g.Raw) > 0 {
		var payload any
		if err := json.Unmarshal(g.Raw, &payload); err == nil {
			md["payload"] = payload
		}
	}
	return md
}

// WebhookEvent is an inbound {event, data} delivery. Payment is nil for
// events that do not describe a charge.
type WebhookEvent struct {
	Event   string
	Data    json.RawMessage
	Payment *GatewayPayment
}

// PaymentGateway is a payment provider the core can verify against
type PaymentGateway interface {
	// Provider returns the provider key used in routes and stored payments
	Provider() string

	// VerifyPayment fetches a transaction by the provider's transaction id
	VerifyPayment(ctx context.Context, transactionID string) (*GatewayPayment, error)

	// GetPaymentByReference fetches a transaction by its reference
	GetPaymentByReference(ctx context.Context, reference string) (*GatewayPayment, error)

	// ParseWebhook authenticates and decodes a webhook delivery. Header keys
	// are lower case.
	ParseWebhook(ctx context.Context, payload []byte, headers map[string]string) (*WebhookEvent, error)
}
