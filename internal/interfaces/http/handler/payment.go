package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/invoicing/backend/internal/interfaces/http/dto"
)

// IdempotencyKeyHeader lets a client retry a manual payment safely
const IdempotencyKeyHeader = "Idempotency-Key"

// PaymentAllocator records a payment and applies it to an invoice
type PaymentAllocator interface {
	Allocate(ctx context.Context, cmd appinvoicing.AllocateCommand) (*appinvoicing.AllocationResult, error)
}

// GatewayPayments applies payments confirmed by a payment gateway
type GatewayPayments interface {
	HandleWebhook(ctx context.Context, provider string, payload []byte, headers map[string]string) (*appinvoicing.GatewayResult, error)
	VerifyAndApply(ctx context.Context, tenantID uuid.UUID, provider, transactionID string) (*appinvoicing.GatewayResult, error)
	VerifyByReference(ctx context.Context, tenantID uuid.UUID, provider, reference string) (*appinvoicing.GatewayResult, error)
}

// PaymentHandler handles payment endpoints for authenticated tenants
type PaymentHandler struct {
	BaseHandler
	allocator PaymentAllocator
	gateway   GatewayPayments
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(allocator PaymentAllocator, gateway GatewayPayments) *PaymentHandler {
	return &PaymentHandler{allocator: allocator, gateway: gateway}
}

// Allocate godoc
// @Summary      Record a manual payment against an invoice
// @Description  Retrying with the same Idempotency-Key never records the payment twice
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID"
// @Param        Idempotency-Key header string false "Client retry key"
// @Param        request body dto.AllocatePaymentRequest true "Payment"
// @Success      201 {object} dto.Response{data=dto.AllocationResponse}
// @Success      202 {object} dto.Response{data=dto.AllocationResponse}
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /invoices/{id}/payments [post]
func (h *PaymentHandler) Allocate(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AllocatePaymentRequest
	if !h.bind(c, &req) {
		return
	}

	amountMinor, err := requestAmount(req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	reference, err := invoicing.ManualReference(tenantID, strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	cmd := appinvoicing.AllocateCommand{
		TenantID:          tenantID,
		InvoiceID:         invoiceID,
		AmountMinor:       amountMinor,
		Currency:          req.Currency,
		Method:            invoicing.PaymentMethod(req.Method),
		ExternalReference: reference,
		TransactionID:     req.TransactionID,
		Payer: invoicing.PayerInfo{
			Name:  req.Payer.Name,
			Email: req.Payer.Email,
			Phone: req.Payer.Phone,
		},
		Metadata: req.Metadata,
	}
	if req.PaymentDate != nil {
		cmd.PaymentDate = *req.PaymentDate
	}

	result, err := h.allocator.Allocate(c.Request.Context(), cmd)
	if err != nil {
		var partial *invoicing.PartialFailureError
		if errors.As(err, &partial) && result != nil {
			h.Degraded(c, h.allocationResponse(result), err)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Created(c, h.allocationResponse(result))
}

// Verify godoc
// @Summary      Confirm a gateway payment reported by the client
// @Description  The transaction is fetched from the gateway; the client is not trusted for the amount
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body dto.VerifyPaymentRequest true "Transaction"
// @Success      200 {object} dto.Response{data=dto.GatewayPaymentResponse}
// @Success      202 {object} dto.Response{data=dto.GatewayPaymentResponse}
// @Router       /payments/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req dto.VerifyPaymentRequest
	if !h.bind(c, &req) {
		return
	}

	var (
		result *appinvoicing.GatewayResult
		err    error
	)
	if req.TransactionID != "" {
		result, err = h.gateway.VerifyAndApply(c.Request.Context(), tenantID, req.Provider, req.TransactionID)
	} else {
		result, err = h.gateway.VerifyByReference(c.Request.Context(), tenantID, req.Provider, req.Reference)
	}
	respondGateway(&h.BaseHandler, c, result, err)
}

// requestAmount resolves the amount from amount_minor or the major-unit string
func requestAmount(req dto.AllocatePaymentRequest) (int64, error) {
	switch {
	case req.Amount != "" && req.AmountMinor != 0:
		return 0, invoicing.NewValidationError("amount", "provide either amount or amount_minor, not both")
	case req.Amount != "":
		currency, err := valueobject.ParseCurrency(req.Currency)
		if err != nil {
			return 0, invoicing.NewValidationError("currency", err.Error())
		}
		money, err := valueobject.FromMajorString(req.Amount, currency)
		if err != nil {
			return 0, invoicing.NewValidationError("amount", err.Error())
		}
		return money.Minor(), nil
	case req.AmountMinor > 0:
		return req.AmountMinor, nil
	default:
		return 0, invoicing.NewValidationError("amount", "must be greater than zero")
	}
}

func (h *BaseHandler) allocationResponse(result *appinvoicing.AllocationResult) dto.AllocationResponse {
	resp := dto.AllocationResponse{Degraded: result.Degraded}
	if result.Payment != nil {
		resp.Payment = dto.ToPaymentResponse(result.Payment)
	}
	if result.Allocation != nil {
		resp.AllocationID = result.Allocation.ID.String()
	}
	if result.Invoice != nil {
		inv := dto.ToInvoiceResponse(result.Invoice, h.today())
		resp.Invoice = &inv
	}
	if result.Receipt != nil {
		resp.ReceiptID = result.Receipt.ID.String()
		resp.HashTail = result.Receipt.HashTail
	}
	return resp
}

func gatewayResponse(h *BaseHandler, result *appinvoicing.GatewayResult) dto.GatewayPaymentResponse {
	resp := dto.GatewayPaymentResponse{
		Success:          result.Success,
		AlreadyProcessed: result.AlreadyProcessed,
		Ignored:          result.Ignored,
		Degraded:         result.Degraded,
		Status:           string(result.Status),
	}
	if result.PaymentID != uuid.Nil {
		resp.PaymentID = result.PaymentID.String()
	}
	if result.Allocation != nil {
		alloc := h.allocationResponse(result.Allocation)
		resp.Allocation = &alloc
	}
	return resp
}

// respondGateway writes the outcome of a gateway path. A degraded result is
// answered 202 so the gateway does not redeliver a payment that is durable.
func respondGateway(h *BaseHandler, c *gin.Context, result *appinvoicing.GatewayResult, err error) {
	if err != nil {
		var partial *invoicing.PartialFailureError
		if errors.As(err, &partial) && result != nil {
			h.Degraded(c, gatewayResponse(h, result), err)
			return
		}
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gatewayResponse(h, result)))
}
