// Package handler implements the HTTP endpoints of the invoicing API.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"github.com/invoicing/backend/internal/interfaces/http/dto"
	"github.com/invoicing/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	now func() time.Time
}

func (h *BaseHandler) today() time.Time {
	if h.now == nil {
		return time.Now().UTC()
	}
	return h.now().UTC()
}

func getRequestID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}

// tenantID reads the tenant set by the tenant middleware. A missing tenant
// is answered with 400 and false is returned.
func (h *BaseHandler) tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.GetTenantID(c)
	if !ok {
		h.BadRequest(c, "Tenant context is required")
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a UUID path parameter. An invalid value is answered with 400.
func (h *BaseHandler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes the JSON body into req and answers 400 on failure
func (h *BaseHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.BindError(c, err)
		return false
	}
	return true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithDetails sends an error response carrying machine-readable details
func (h *BaseHandler) ErrorWithDetails(c *gin.Context, statusCode int, code, message string, details map[string]any) {
	resp := dto.NewErrorResponseWithRequestID(code, message, getRequestID(c))
	resp.Error.Details = details
	c.JSON(statusCode, resp)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		details,
	))
}

// BindError answers a request body that failed to decode or validate
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	if details := middleware.ValidationDetails(err); len(details) > 0 {
		h.ValidationError(c, details)
		return
	}
	h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body")
}

// Degraded answers a payment that was recorded but not allocated: 202 with
// the payment in data and the partial failure in error.
func (h *BaseHandler) Degraded(c *gin.Context, data any, err error) {
	resp := dto.NewErrorResponseWithRequestID(dto.ErrCodePartialFailure,
		"Payment recorded but not yet applied to the invoice", getRequestID(c))
	resp.Data = data
	var pf *invoicing.PartialFailureError
	if errors.As(err, &pf) {
		resp.Error.Details = map[string]any{
			"payment_id": pf.PaymentID.String(),
			"invoice_id": pf.InvoiceID.String(),
			"stage":      pf.Stage,
		}
	}
	c.JSON(http.StatusAccepted, resp)
}

// HandleError converts typed domain errors into HTTP responses. Errors that
// carry data the caller needs to recover (the balance due, the clashing
// reference) put it in error.details.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	// Checked first: a partial failure wraps the cause that stopped allocation.
	var partial *invoicing.PartialFailureError
	if errors.As(err, &partial) {
		h.Degraded(c, nil, err)
		return
	}

	var (
		validation *invoicing.ValidationError
		notFound   *invoicing.NotFoundError
		terminal   *invoicing.TerminalStateError
		exceeds    *invoicing.ExceedsBalanceError
		conflict   *invoicing.ConflictError
		integrity  *invoicing.IntegrityError
	)
	switch {
	case errors.As(err, &validation):
		h.ValidationError(c, []dto.ValidationDetail{{Field: validation.Field, Message: validation.Reason}})
	case errors.As(err, &notFound):
		h.NotFound(c, notFound.Error())
	case errors.As(err, &terminal):
		h.ErrorWithDetails(c, http.StatusUnprocessableEntity, dto.ErrCodeTerminalState, terminal.Error(),
			map[string]any{"status": terminal.Status.String()})
	case errors.As(err, &exceeds):
		h.ErrorWithDetails(c, http.StatusUnprocessableEntity, dto.ErrCodeExceedsBalance, exceeds.Error(),
			exceedsDetails(exceeds))
	case errors.As(err, &conflict):
		details := map[string]any{}
		if conflict.ExternalReference != "" {
			details["external_reference"] = conflict.ExternalReference
		}
		h.ErrorWithDetails(c, http.StatusConflict, dto.ErrCodeConflict, conflict.Error(), details)
	case errors.As(err, &integrity):
		h.ErrorWithDetails(c, http.StatusConflict, dto.ErrCodeIntegrity, integrity.Error(), map[string]any{
			"receipt_id":    integrity.ReceiptID.String(),
			"stored_hash":   integrity.StoredHash,
			"computed_hash": integrity.ComputedHash,
		})
	case errors.Is(err, appinvoicing.ErrWebhookRejected):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Webhook rejected")
	case errors.Is(err, appinvoicing.ErrGatewayNotRegistered):
		h.NotFound(c, "Payment provider not supported")
	case errors.Is(err, appinvoicing.ErrPaymentAlreadyAllocated):
		h.Error(c, http.StatusConflict, dto.ErrCodeConflict, "Payment already allocated")
	default:
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			code := dto.NormalizeErrorCode(domainErr.Code)
			h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
			return
		}
		logger.GetGinLogger(c).Error("Unhandled request error", zap.Error(err))
		h.InternalError(c, "An unexpected error occurred")
	}
}

func exceedsDetails(e *invoicing.ExceedsBalanceError) map[string]any {
	details := map[string]any{
		"balance_due_minor": e.BalanceDue,
		"requested_minor":   e.Requested,
		"currency":          e.Currency,
	}
	if currency, err := valueobject.ParseCurrency(e.Currency); err == nil {
		details["balance_due"] = dto.FormatMajor(e.BalanceDue, currency)
	}
	return details
}
