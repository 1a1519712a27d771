package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
)

func TestTenantMiddleware(t *testing.T) {
	const tenant = "a9f1d3c2-7e44-4b8c-8f8e-2d6b0c1e9a22"

	router := gin.New()
	router.Use(RequestID(), TenantMiddlewareWithConfig(DefaultTenantConfig()))
	handler := func(c *gin.Context) {
		id, ok := GetTenantID(c)
		if !ok {
			c.String(http.StatusOK, "none")
			return
		}
		c.String(http.StatusOK, id.String()+"|"+logger.GetTenantID(c.Request.Context()))
	}
	router.GET("/api/v1/invoices", handler)
	router.GET("/health", handler)
	router.POST("/api/v1/webhooks/payments/flutterwave", handler)

	tests := []struct {
		name     string
		method   string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{"valid header", http.MethodGet, "/api/v1/invoices", tenant, http.StatusOK, tenant + "|" + tenant},
		{"missing header", http.MethodGet, "/api/v1/invoices", "", http.StatusBadRequest, "Tenant context is required"},
		{"malformed header", http.MethodGet, "/api/v1/invoices", "tenant-1", http.StatusBadRequest, "Invalid tenant ID format"},
		{"nil uuid", http.MethodGet, "/api/v1/invoices", "00000000-0000-0000-0000-000000000000", http.StatusBadRequest, "Invalid tenant ID format"},
		{"health skipped", http.MethodGet, "/health", "", http.StatusOK, "none"},
		{"webhook skipped", http.MethodPost, "/api/v1/webhooks/payments/flutterwave", "", http.StatusOK, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(TenantHeaderKey, tt.header)
			}
			w := serve(router, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
