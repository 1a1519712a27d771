package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"go.uber.org/zap"
)

var (
	// ErrGatewayNotRegistered is returned when no gateway is registered for the provider
	ErrGatewayNotRegistered = errors.New("payment gateway: provider not registered")
	// ErrWebhookRejected is returned when a webhook fails authentication or decoding
	ErrWebhookRejected = errors.New("payment gateway: webhook rejected")
)

// GatewayResult is returned to the gateway path. A duplicate delivery gets the
// same Success as the original, with AlreadyProcessed set.
type GatewayResult struct {
	Success          bool
	AlreadyProcessed bool
	Ignored          bool
	Degraded         bool
	PaymentID        uuid.UUID
	Status           invoicing.GatewayStatus
	Allocation       *AllocationResult
}

// GatewayPaymentService turns verified gateway transactions into allocations
type GatewayPaymentService struct {
	gateways  map[string]invoicing.PaymentGateway
	invoices  invoicing.InvoiceRepository
	guard     *IdempotencyGuard
	allocator *AllocationService
	logger    *zap.Logger
}

// GatewayPaymentServiceConfig holds the collaborators of GatewayPaymentService
type GatewayPaymentServiceConfig struct {
	Gateways  []invoicing.PaymentGateway
	Invoices  invoicing.InvoiceRepository
	Guard     *IdempotencyGuard
	Allocator *AllocationService
	Logger    *zap.Logger
}

// NewGatewayPaymentService creates a GatewayPaymentService
func NewGatewayPaymentService(cfg GatewayPaymentServiceConfig) *GatewayPaymentService {
	gateways := make(map[string]invoicing.PaymentGateway, len(cfg.Gateways))
	for _, gw := range cfg.Gateways {
		gateways[gw.Provider()] = gw
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayPaymentService{
		gateways:  gateways,
		invoices:  cfg.Invoices,
		guard:     cfg.Guard,
		allocator: cfg.Allocator,
		logger:    logger,
	}
}

// Gateway returns the gateway registered for provider
func (s *GatewayPaymentService) Gateway(provider string) (invoicing.PaymentGateway, error) {
	gw, ok := s.gateways[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotRegistered, provider)
	}
	return gw, nil
}

// HandleWebhook authenticates a delivery and applies the payment it describes.
// The webhook payload is not trusted for amounts: the transaction is re-read
// from the gateway before anything is recorded.
func (s *GatewayPaymentService) HandleWebhook(ctx context.Context, provider string, payload []byte, headers map[string]string) (*GatewayResult, error) {
	gw, err := s.Gateway(provider)
	if err != nil {
		return nil, err
	}

	event, err := gw.ParseWebhook(ctx, payload, headers)
	if err != nil {
		s.logger.Warn("Webhook rejected",
			zap.String("provider", provider),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrWebhookRejected, err)
	}
	if event.Payment == nil {
		s.logger.Info("Ignoring non-payment webhook event",
			zap.String("provider", provider),
			zap.String("event", event.Event))
		return &GatewayResult{Success: true, Ignored: true}, nil
	}

	s.logger.Info("Payment webhook received",
		zap.String("provider", provider),
		zap.String("event", event.Event),
		zap.String("external_reference", event.Payment.ExternalReference),
		zap.String("status", string(event.Payment.Status)))

	// Fast path before the round trip to the gateway.
	if event.Payment.ExternalReference != "" {
		admission, err := s.guard.Admit(ctx, event.Payment.ExternalReference)
		if err != nil {
			return nil, err
		}
		if admission.AlreadyProcessed {
			return &GatewayResult{Success: true, AlreadyProcessed: true, PaymentID: admission.ExistingPaymentID, Status: event.Payment.Status}, nil
		}
	}

	verified := event.Payment
	if event.Payment.TransactionID != "" {
		verified, err = gw.VerifyPayment(ctx, event.Payment.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("verify transaction %s: %w", event.Payment.TransactionID, err)
		}
	}
	return s.apply(ctx, verified)
}

// VerifyAndApply is the polling path: the client reports a transaction id and
// the service fetches its state from the gateway.
func (s *GatewayPaymentService) VerifyAndApply(ctx context.Context, tenantID uuid.UUID, provider, transactionID string) (*GatewayResult, error) {
	gw, err := s.Gateway(provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(transactionID) == "" {
		return nil, invoicing.NewValidationError("transaction_id", "is required")
	}
	gp, err := gw.VerifyPayment(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("verify transaction %s: %w", transactionID, err)
	}
	if gp.TenantID != uuid.Nil && gp.TenantID != tenantID {
		return nil, &invoicing.NotFoundError{Resource: "transaction", ID: transactionID}
	}
	gp.TenantID = tenantID
	return s.apply(ctx, gp)
}

// VerifyByReference is the polling path keyed by the gateway reference
func (s *GatewayPaymentService) VerifyByReference(ctx context.Context, tenantID uuid.UUID, provider, reference string) (*GatewayResult, error) {
	gw, err := s.Gateway(provider)
	if err != nil {
		return nil, err
	}
	gp, err := gw.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("lookup reference %s: %w", reference, err)
	}
	if gp.TenantID != uuid.Nil && gp.TenantID != tenantID {
		return nil, &invoicing.NotFoundError{Resource: "transaction", ID: reference}
	}
	gp.TenantID = tenantID
	return s.apply(ctx, gp)
}

func (s *GatewayPaymentService) apply(ctx context.Context, gp *invoicing.GatewayPayment) (*GatewayResult, error) {
	if gp.Status != invoicing.GatewayStatusSuccess {
		s.logger.Info("Skipping non-successful gateway payment",
			zap.String("external_reference", gp.ExternalReference),
			zap.String("status", string(gp.Status)))
		return &GatewayResult{Success: true, Ignored: true, Status: gp.Status}, nil
	}
	if gp.ExternalReference == "" {
		return nil, invoicing.NewValidationError("external_reference", "gateway payment has no reference")
	}
	if gp.InvoiceID == uuid.Nil {
		return nil, invoicing.NewValidationError("invoice_id", "gateway payment is not linked to an invoice")
	}

	admission, err := s.guard.Admit(ctx, gp.ExternalReference)
	if err != nil {
		return nil, err
	}
	if admission.AlreadyProcessed {
		return &GatewayResult{Success: true, AlreadyProcessed: true, PaymentID: admission.ExistingPaymentID, Status: gp.Status}, nil
	}

	tenantID, err := s.resolveTenant(ctx, gp)
	if err != nil {
		return nil, err
	}

	ref := gp.ExternalReference
	cmd := AllocateCommand{
		TenantID:          tenantID,
		InvoiceID:         gp.InvoiceID,
		AmountMinor:       gp.Amount.Minor(),
		Currency:          gp.Amount.Currency().String(),
		Method:            gp.Method,
		ExternalReference: &ref,
		TransactionID:     gp.TransactionID,
		Provider:          gp.Provider,
		PaymentDate:       gp.PaidAt,
		Payer:             gp.Payer,
		Metadata:          gp.MetadataFromRaw(),
	}

	res, err := s.allocator.Allocate(ctx, cmd)
	switch {
	case err == nil:
		return &GatewayResult{Success: true, PaymentID: res.Payment.ID, Status: gp.Status, Allocation: res}, nil
	case errors.Is(err, invoicing.ErrExceedsBalance), errors.Is(err, invoicing.ErrTerminalState):
		// The money arrived regardless; keep it on record for reconciliation.
		res, err = s.allocator.RecordUnallocated(ctx, cmd, err)
	}

	if resolved, ok := s.guard.Resolve(ctx, ref, err); ok {
		return &GatewayResult{Success: true, AlreadyProcessed: true, PaymentID: resolved.ExistingPaymentID, Status: gp.Status}, nil
	}
	var partial *invoicing.PartialFailureError
	if errors.As(err, &partial) && res != nil {
		return &GatewayResult{Success: true, Degraded: true, PaymentID: res.Payment.ID, Status: gp.Status, Allocation: res}, err
	}
	return nil, err
}

func (s *GatewayPaymentService) resolveTenant(ctx context.Context, gp *invoicing.GatewayPayment) (uuid.UUID, error) {
	inv, err := s.invoices.FindByID(ctx, gp.InvoiceID)
	if err != nil {
		return uuid.Nil, notFound(err, "invoice", gp.InvoiceID)
	}
	if gp.TenantID != uuid.Nil && gp.TenantID != inv.TenantID {
		return uuid.Nil, invoicing.NewNotFoundError("invoice", gp.InvoiceID)
	}
	return inv.TenantID, nil
}
