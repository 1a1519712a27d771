package payment

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// flutterwaveEnvelope is the {status, message, data} wrapper of API responses
type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// flutterwaveWebhook is the {event, data} body of a webhook delivery
type flutterwaveWebhook struct {
	Event     string          `json:"event"`
	EventType string          `json:"event.type"`
	Data      json.RawMessage `json:"data"`
}

type flutterwaveCustomer struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// flutterwaveTransaction is the transaction object shared by verify
// responses and charge webhooks
type flutterwaveTransaction struct {
	ID            int64               `json:"id"`
	TxRef         string              `json:"tx_ref"`
	FlwRef        string              `json:"flw_ref"`
	Amount        decimal.Decimal     `json:"amount"`
	ChargedAmount decimal.Decimal     `json:"charged_amount"`
	Currency      string              `json:"currency"`
	Status        string              `json:"status"`
	PaymentType   string              `json:"payment_type"`
	CreatedAt     string              `json:"created_at"`
	Customer      flutterwaveCustomer `json:"customer"`
	Meta          map[string]any      `json:"meta"`
	MetaData      map[string]any      `json:"meta_data"`
}

// metaValue reads a key from meta, falling back to the meta_data spelling
// used by some webhook versions
func (t *flutterwaveTransaction) metaValue(key string) string {
	for _, m := range []map[string]any{t.Meta, t.MetaData} {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
