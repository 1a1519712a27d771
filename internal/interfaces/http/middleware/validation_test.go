package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/invoicing/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationDetails(t *testing.T) {
	SetupValidator()

	var details []dto.ValidationDetail
	router := gin.New()
	router.POST("/invoices", func(c *gin.Context) {
		var req dto.CreateInvoiceRequest
		err := c.ShouldBindJSON(&req)
		details = ValidationDetails(err)
		c.Status(http.StatusBadRequest)
	})

	body := `{"invoice_number":"INV-1","currency":"NG","due_date":"2026-03-15T00:00:00Z",
		"customer":{"name":"Ada"},"line_items":[{"description":"x","quantity":0,"unit_price_minor":100}]}`
	serve(router, httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(body)))

	require.NotEmpty(t, details)
	fields := map[string]string{}
	for _, d := range details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "Must be exactly 3 characters", fields["currency"])
	assert.Equal(t, "This field is required", fields["line_items[0].quantity"])

	assert.Nil(t, ValidationDetails(errors.New("not a validation error")))
}
