package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/interfaces/http/dto"
)

// InvoiceService is the invoice ledger as seen by the HTTP layer
type InvoiceService interface {
	Create(ctx context.Context, cmd appinvoicing.CreateInvoiceCommand) (*invoicing.Invoice, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error)
	List(ctx context.Context, tenantID uuid.UUID, status *invoicing.InvoiceStatus, page shared.Page) (shared.Paginated[invoicing.Invoice], error)
	ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.Payment, error)
	Send(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error)
	MarkViewed(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error)
	Cancel(ctx context.Context, tenantID, id uuid.UUID, reason string) (*invoicing.Invoice, error)
}

// InvoiceHandler handles invoice endpoints
type InvoiceHandler struct {
	BaseHandler
	invoices InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler. now supplies the date used
// for is_past_due; nil means the system clock.
func NewInvoiceHandler(invoices InvoiceService, now func() time.Time) *InvoiceHandler {
	return &InvoiceHandler{BaseHandler: BaseHandler{now: now}, invoices: invoices}
}

// Create godoc
// @Summary      Draft an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        request body dto.CreateInvoiceRequest true "Invoice"
// @Success      201 {object} dto.Response{data=dto.InvoiceResponse}
// @Failure      400 {object} dto.Response
// @Router       /invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req dto.CreateInvoiceRequest
	if !h.bind(c, &req) {
		return
	}

	items := make([]appinvoicing.LineItemInput, len(req.LineItems))
	for i, li := range req.LineItems {
		items[i] = appinvoicing.LineItemInput{
			Description:    li.Description,
			Quantity:       li.Quantity,
			UnitPriceMinor: li.UnitPriceMinor,
		}
	}
	issueDate := h.today()
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}

	inv, err := h.invoices.Create(c.Request.Context(), appinvoicing.CreateInvoiceCommand{
		TenantID:      tenantID,
		InvoiceNumber: req.InvoiceNumber,
		Currency:      req.Currency,
		LineItems:     items,
		DiscountMinor: req.DiscountMinor,
		TaxMinor:      req.TaxMinor,
		IssueDate:     issueDate,
		DueDate:       req.DueDate,
		Customer: invoicing.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToInvoiceResponse(inv, h.today()))
}

// List godoc
// @Summary      List invoices
// @Tags         invoices
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        status query string false "Status filter"
// @Param        page query int false "Page"
// @Param        page_size query int false "Page size"
// @Success      200 {object} dto.Response{data=[]dto.InvoiceResponse}
// @Router       /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	var status *invoicing.InvoiceStatus
	if req.Status != "" {
		s := invoicing.InvoiceStatus(req.Status)
		status = &s
	}
	page := shared.Page{Page: req.Page, PageSize: req.PageSize}
	if page.Page == 0 && page.PageSize == 0 {
		page = shared.DefaultPage()
	}

	result, err := h.invoices.List(c.Request.Context(), tenantID, status, page)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	today := h.today()
	items := make([]dto.InvoiceResponse, len(result.Items))
	for i := range result.Items {
		items[i] = dto.ToInvoiceResponse(&result.Items[i], today)
	}
	h.SuccessWithMeta(c, items, result.Total, result.Page, result.PageSize)
}

// Get godoc
// @Summary      Get an invoice
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID"
// @Success      200 {object} dto.Response{data=dto.InvoiceResponse}
// @Failure      404 {object} dto.Response
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	h.withInvoice(c, h.invoices.Get)
}

// ListPayments godoc
// @Summary      List the payments recorded against an invoice
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID"
// @Success      200 {object} dto.Response{data=[]dto.PaymentResponse}
// @Router       /invoices/{id}/payments [get]
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	payments, err := h.invoices.ListPayments(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToPaymentResponses(payments))
}

// Send godoc
// @Summary      Send a draft invoice
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID"
// @Success      200 {object} dto.Response{data=dto.InvoiceResponse}
// @Failure      422 {object} dto.Response
// @Router       /invoices/{id}/send [post]
func (h *InvoiceHandler) Send(c *gin.Context) {
	h.withInvoice(c, h.invoices.Send)
}

// MarkViewed godoc
// @Summary      Record that the customer opened the invoice
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID"
// @Success      200 {object} dto.Response{data=dto.InvoiceResponse}
// @Router       /invoices/{id}/viewed [post]
func (h *InvoiceHandler) MarkViewed(c *gin.Context) {
	h.withInvoice(c, h.invoices.MarkViewed)
}

// Cancel godoc
// @Summary      Cancel an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID"
// @Param        request body dto.CancelInvoiceRequest true "Reason"
// @Success      200 {object} dto.Response{data=dto.InvoiceResponse}
// @Failure      422 {object} dto.Response
// @Router       /invoices/{id}/cancel [post]
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CancelInvoiceRequest
	if !h.bind(c, &req) {
		return
	}
	inv, err := h.invoices.Cancel(c.Request.Context(), tenantID, id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToInvoiceResponse(inv, h.today()))
}

func (h *InvoiceHandler) withInvoice(c *gin.Context, op func(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error)) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	inv, err := op(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToInvoiceResponse(inv, h.today()))
}
