package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// LineItemInput is one requested invoice line
type LineItemInput struct {
	Description    string
	Quantity       int64
	UnitPriceMinor int64
}

// CreateInvoiceCommand drafts a new invoice
type CreateInvoiceCommand struct {
	TenantID      uuid.UUID
	InvoiceNumber string
	Currency      string
	LineItems     []LineItemInput
	DiscountMinor int64
	TaxMinor      int64
	IssueDate     time.Time
	DueDate       time.Time
	Customer      invoicing.Customer
}

// InvoiceService manages the invoice lifecycle outside of payments
type InvoiceService struct {
	invoices  invoicing.InvoiceRepository
	payments  invoicing.PaymentRepository
	publisher shared.EventPublisher
	clock     Clock
	logger    *zap.Logger
}

// InvoiceServiceConfig holds the collaborators of InvoiceService
type InvoiceServiceConfig struct {
	Invoices       invoicing.InvoiceRepository
	Payments       invoicing.PaymentRepository
	EventPublisher shared.EventPublisher
	Clock          Clock
	Logger         *zap.Logger
}

// NewInvoiceService creates an InvoiceService
func NewInvoiceService(cfg InvoiceServiceConfig) *InvoiceService {
	s := &InvoiceService{
		invoices:  cfg.Invoices,
		payments:  cfg.Payments,
		publisher: cfg.EventPublisher,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if s.clock == nil {
		s.clock = systemClock
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Create drafts and stores an invoice
func (s *InvoiceService) Create(ctx context.Context, cmd CreateInvoiceCommand) (*invoicing.Invoice, error) {
	currency, err := valueobject.ParseCurrency(cmd.Currency)
	if err != nil {
		return nil, invoicing.NewValidationError("currency", err.Error())
	}
	items := make([]invoicing.LineItem, 0, len(cmd.LineItems))
	for i, in := range cmd.LineItems {
		item, err := invoicing.NewLineItem(in.Description, in.Quantity, in.UnitPriceMinor)
		if err != nil {
			return nil, fmt.Errorf("line item %d: %w", i+1, err)
		}
		items = append(items, item)
	}
	issue := cmd.IssueDate
	if issue.IsZero() {
		issue = s.clock()
	}

	inv, err := invoicing.NewInvoice(invoicing.NewInvoiceParams{
		TenantID:      cmd.TenantID,
		InvoiceNumber: cmd.InvoiceNumber,
		Currency:      currency,
		LineItems:     items,
		DiscountMinor: cmd.DiscountMinor,
		TaxMinor:      cmd.TaxMinor,
		IssueDate:     issue,
		DueDate:       cmd.DueDate,
		Customer:      cmd.Customer,
	})
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("Invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Int64("total_minor", inv.TotalMinor))
	return inv, nil
}

// Get returns a tenant's invoice
func (s *InvoiceService) Get(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	inv, err := s.invoices.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return inv, nil
}

// List returns a page of a tenant's invoices, optionally filtered by status
func (s *InvoiceService) List(ctx context.Context, tenantID uuid.UUID, status *invoicing.InvoiceStatus, page shared.Page) (shared.Paginated[invoicing.Invoice], error) {
	if status != nil && !status.IsValid() {
		return shared.Paginated[invoicing.Invoice]{}, invoicing.NewValidationError("status", fmt.Sprintf("unknown status %q", *status))
	}
	items, total, err := s.invoices.FindAllForTenant(ctx, tenantID, status, page)
	if err != nil {
		return shared.Paginated[invoicing.Invoice]{}, err
	}
	return shared.NewPaginated(items, total, page), nil
}

// ListPayments returns the payments recorded against an invoice
func (s *InvoiceService) ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.Payment, error) {
	if _, err := s.Get(ctx, tenantID, invoiceID); err != nil {
		return nil, err
	}
	return s.payments.ListByInvoice(ctx, tenantID, invoiceID)
}

// Send moves a draft to sent
func (s *InvoiceService) Send(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	return s.transition(ctx, tenantID, id, func(inv *invoicing.Invoice) (bool, error) {
		return true, inv.Send()
	})
}

// MarkViewed records that the customer opened the invoice
func (s *InvoiceService) MarkViewed(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	return s.transition(ctx, tenantID, id, func(inv *invoicing.Invoice) (bool, error) {
		return inv.MarkViewed(), nil
	})
}

// Cancel cancels an unpaid invoice
func (s *InvoiceService) Cancel(ctx context.Context, tenantID, id uuid.UUID, reason string) (*invoicing.Invoice, error) {
	return s.transition(ctx, tenantID, id, func(inv *invoicing.Invoice) (bool, error) {
		return true, inv.Cancel(reason)
	})
}

func (s *InvoiceService) transition(ctx context.Context, tenantID, id uuid.UUID, apply func(*invoicing.Invoice) (bool, error)) (*invoicing.Invoice, error) {
	inv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	previous := inv.Status
	changed, err := apply(inv)
	if err != nil {
		return nil, err
	}
	if !changed {
		return inv, nil
	}
	if err := s.invoices.SaveWithLock(ctx, inv); err != nil {
		return nil, err
	}

	events := collectEvents(inv)
	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("Failed to publish invoice events", zap.Error(err))
		}
	}
	s.logger.Info("Invoice status changed",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("from", previous.String()),
		zap.String("to", inv.Status.String()))
	return inv, nil
}
