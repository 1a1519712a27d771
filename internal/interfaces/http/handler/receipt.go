package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/interfaces/http/dto"
)

// ReceiptService reads and verifies receipt snapshots
type ReceiptService interface {
	GetReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (*invoicing.ReceiptSnapshot, error)
	AuditReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (*appinvoicing.AuditResult, error)
	Verify(ctx context.Context, data invoicing.ReceiptHashData, expectedHash string) (invoicing.VerificationResult, error)
	VerifyPublic(ctx context.Context, receiptID uuid.UUID, hash string) (invoicing.VerificationResult, error)
	PublicView(ctx context.Context, receiptID uuid.UUID) (*invoicing.PublicReceiptView, error)
}

// ReceiptHandler handles receipt endpoints
type ReceiptHandler struct {
	BaseHandler
	receipts ReceiptService
}

// NewReceiptHandler creates a new ReceiptHandler
func NewReceiptHandler(receipts ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// Get godoc
// @Summary      Get a receipt snapshot
// @Tags         receipts
// @Produce      json
// @Param        id path string true "Receipt ID"
// @Success      200 {object} dto.Response{data=dto.ReceiptResponse}
// @Failure      404 {object} dto.Response
// @Router       /receipts/{id} [get]
func (h *ReceiptHandler) Get(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	receipt, err := h.receipts.GetReceipt(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToReceiptResponse(receipt))
}

// Audit godoc
// @Summary      Re-hash a stored receipt
// @Description  A mismatch answers 409 with both hashes; nothing is modified
// @Tags         receipts
// @Produce      json
// @Param        id path string true "Receipt ID"
// @Success      200 {object} dto.Response{data=dto.AuditResponse}
// @Failure      409 {object} dto.Response{data=dto.AuditResponse}
// @Router       /receipts/{id}/audit [post]
func (h *ReceiptHandler) Audit(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.receipts.AuditReceipt(c.Request.Context(), tenantID, id)
	var integrity *invoicing.IntegrityError
	if err != nil && !(errors.As(err, &integrity) && result != nil) {
		h.HandleError(c, err)
		return
	}

	body := dto.AuditResponse{
		ReceiptID:    result.ReceiptID.String(),
		Valid:        result.Valid,
		StoredHash:   result.StoredHash,
		ComputedHash: result.ComputedHash,
	}
	if err != nil {
		resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeIntegrity, integrity.Error(), getRequestID(c))
		resp.Data = body
		c.JSON(http.StatusConflict, resp)
		return
	}
	h.Success(c, body)
}

// Verify godoc
// @Summary      Check receipt data against a hash
// @Tags         receipts
// @Accept       json
// @Produce      json
// @Param        request body dto.VerifyReceiptRequest true "Receipt data and hash"
// @Success      200 {object} dto.Response{data=dto.VerificationResponse}
// @Router       /receipts/verify [post]
func (h *ReceiptHandler) Verify(c *gin.Context) {
	var req dto.VerifyReceiptRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.receipts.Verify(c.Request.Context(), req.Data, req.Hash)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.VerificationResponse{Valid: result.Valid, ComputedHash: result.ComputedHash})
}

// PublicView godoc
// @Summary      Public masked view of a receipt
// @Tags         public
// @Produce      json
// @Param        id path string true "Receipt ID"
// @Success      200 {object} dto.Response{data=invoicing.PublicReceiptView}
// @Failure      404 {object} dto.Response
// @Router       /public/receipts/{id} [get]
func (h *ReceiptHandler) PublicView(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.receipts.PublicView(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// PublicVerify godoc
// @Summary      Check a presented hash against a receipt
// @Tags         public
// @Produce      json
// @Param        id path string true "Receipt ID"
// @Param        hash query string true "SHA-256 hex digest"
// @Success      200 {object} dto.Response{data=dto.VerificationResponse}
// @Router       /public/receipts/{id}/verify [get]
func (h *ReceiptHandler) PublicVerify(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.PublicVerifyRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.receipts.VerifyPublic(c.Request.Context(), id, req.Hash)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	// computed_hash is not disclosed on the public path
	h.Success(c, dto.VerificationResponse{Valid: result.Valid})
}
