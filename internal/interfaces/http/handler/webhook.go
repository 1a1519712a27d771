package handler

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// WebhookHandler receives payment notifications from gateways. These routes
// carry no tenant header; the gateway signature authenticates them.
type WebhookHandler struct {
	BaseHandler
	gateway GatewayPayments
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(gateway GatewayPayments) *WebhookHandler {
	return &WebhookHandler{gateway: gateway}
}

// HandlePayment godoc
// @Summary      Receive a payment webhook
// @Description  Duplicate deliveries answer 200 with already_processed
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        provider path string true "Gateway name"
// @Success      200 {object} dto.Response{data=dto.GatewayPaymentResponse}
// @Success      202 {object} dto.Response{data=dto.GatewayPaymentResponse}
// @Failure      401 {object} dto.Response
// @Router       /webhooks/payments/{provider} [post]
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	provider := c.Param("provider")
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	result, err := h.gateway.HandleWebhook(c.Request.Context(), provider, payload, webhookHeaders(c))
	if err != nil {
		logger.GetGinLogger(c).Warn("Payment webhook not applied",
			zap.String("provider", provider),
			zap.Error(err))
	}
	respondGateway(&h.BaseHandler, c, result, err)
}

// webhookHeaders flattens request headers with lowercased names
func webhookHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string, len(c.Request.Header))
	for name, values := range c.Request.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	return headers
}
