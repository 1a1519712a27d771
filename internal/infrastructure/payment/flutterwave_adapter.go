// Package payment contains payment gateway adapters.
package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
)

// ProviderFlutterwave is the provider key of the Flutterwave adapter
const ProviderFlutterwave = "flutterwave"

const (
	flutterwaveVerifyPath      = "/v3/transactions/%s/verify"
	flutterwaveVerifyByRefPath = "/v3/transactions/verify_by_reference"
	flutterwaveSignatureHeader = "verif-hash"
	maxResponseBytes           = 1 << 20
)

// Gateway errors
var (
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrGatewayRequestFailed  = errors.New("payment gateway request failed")
	ErrTransactionNotFound   = errors.New("payment gateway: transaction not found")
	ErrInvalidSignature      = errors.New("payment gateway: invalid webhook signature")
	ErrMalformedNotification = errors.New("payment gateway: malformed payload")
)

// FlutterwaveAdapter implements invoicing.PaymentGateway for Flutterwave v3
type FlutterwaveAdapter struct {
	config     *FlutterwaveConfig
	httpClient *http.Client
}

// NewFlutterwaveAdapter creates a Flutterwave adapter
func NewFlutterwaveAdapter(config *FlutterwaveConfig) (*FlutterwaveAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &FlutterwaveAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// WithHTTPClient replaces the HTTP client, e.g. to add otel transport
func (a *FlutterwaveAdapter) WithHTTPClient(client *http.Client) *FlutterwaveAdapter {
	a.httpClient = client
	return a
}

// Provider implements invoicing.PaymentGateway
func (a *FlutterwaveAdapter) Provider() string {
	return ProviderFlutterwave
}

// VerifyPayment fetches a transaction by its numeric Flutterwave id
func (a *FlutterwaveAdapter) VerifyPayment(ctx context.Context, transactionID string) (*invoicing.GatewayPayment, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, invoicing.NewValidationError("transaction_id", "is required")
	}
	path := fmt.Sprintf(flutterwaveVerifyPath, url.PathEscape(transactionID))
	return a.fetchTransaction(ctx, path)
}

// GetPaymentByReference fetches a transaction by the merchant tx_ref
func (a *FlutterwaveAdapter) GetPaymentByReference(ctx context.Context, reference string) (*invoicing.GatewayPayment, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, invoicing.NewValidationError("reference", "is required")
	}
	path := flutterwaveVerifyByRefPath + "?tx_ref=" + url.QueryEscape(reference)
	return a.fetchTransaction(ctx, path)
}

// ParseWebhook checks the verif-hash header and decodes the delivery.
// Only charge events carry a payment.
func (a *FlutterwaveAdapter) ParseWebhook(_ context.Context, payload []byte, headers map[string]string) (*invoicing.WebhookEvent, error) {
	signature := headers[flutterwaveSignatureHeader]
	if signature == "" || subtle.ConstantTimeCompare([]byte(signature), []byte(a.config.WebhookHash)) != 1 {
		return nil, ErrInvalidSignature
	}

	var hook flutterwaveWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	event := hook.Event
	if event == "" {
		event = hook.EventType
	}
	out := &invoicing.WebhookEvent{Event: event, Data: hook.Data}
	if !strings.HasPrefix(strings.ToLower(event), "charge.") || len(hook.Data) == 0 {
		return out, nil
	}

	var tx flutterwaveTransaction
	if err := json.Unmarshal(hook.Data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	p, err := a.toGatewayPayment(&tx, hook.Data)
	if err != nil {
		return nil, err
	}
	out.Payment = p
	return out, nil
}

func (a *FlutterwaveAdapter) fetchTransaction(ctx context.Context, path string) (*invoicing.GatewayPayment, error) {
	body, err := a.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	var env flutterwaveEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if env.Status != "success" || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: %s", ErrGatewayRequestFailed, env.Message)
	}
	var tx flutterwaveTransaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	return a.toGatewayPayment(&tx, env.Data)
}

func (a *FlutterwaveAdapter) toGatewayPayment(tx *flutterwaveTransaction, raw json.RawMessage) (*invoicing.GatewayPayment, error) {
	currency, err := valueobject.ParseCurrency(tx.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: currency %q", ErrMalformedNotification, tx.Currency)
	}
	amount, err := valueobject.FromMajor(tx.Amount, currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	p := &invoicing.GatewayPayment{
		Provider:          ProviderFlutterwave,
		Status:            invoicing.MapGatewayStatus(tx.Status),
		RawStatus:         tx.Status,
		Amount:            amount,
		Method:            invoicing.MapPaymentType(tx.PaymentType),
		ExternalReference: tx.FlwRef,
		Payer: invoicing.PayerInfo{
			Name:  tx.Customer.Name,
			Email: tx.Customer.Email,
			Phone: normalizePhone(tx.Customer.PhoneNumber),
		},
		Raw: raw,
	}
	if tx.ID != 0 {
		p.TransactionID = strconv.FormatInt(tx.ID, 10)
	}
	if id, err := uuid.Parse(tx.metaValue("invoice_id")); err == nil {
		p.InvoiceID = id
	}
	if id, err := uuid.Parse(tx.metaValue("tenant_id")); err == nil {
		p.TenantID = id
	}
	if ts, err := time.Parse(time.RFC3339, tx.CreatedAt); err == nil {
		p.PaidAt = ts.UTC()
	}
	return p, nil
}

// normalizePhone drops the "N/A" placeholder Flutterwave uses for unknown numbers
func normalizePhone(phone string) string {
	if strings.EqualFold(strings.TrimSpace(phone), "n/a") {
		return ""
	}
	return strings.TrimSpace(phone)
}

func (a *FlutterwaveAdapter) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("flutterwave: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.SecretKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("flutterwave: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrTransactionNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var env flutterwaveEnvelope
		if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrGatewayRequestFailed, env.Message)
		}
		return nil, fmt.Errorf("%w: HTTP %d", ErrGatewayRequestFailed, resp.StatusCode)
	}
	return body, nil
}

var _ invoicing.PaymentGateway = (*FlutterwaveAdapter)(nil)
