package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	invoiceID := uuid.MustParse("0b5c3a7e-91d2-4f6b-8e0a-7c3d2b1a9f80")
	paymentID := uuid.MustParse("5d2e8f1a-3b4c-4d6e-9f0a-1b2c3d4e5f60")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		check      func(t *testing.T, resp apiResponse)
	}{
		{
			name:       "validation error lists the field",
			err:        invoicing.NewValidationError("amount", "must be positive"),
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeValidation,
			check: func(t *testing.T, resp apiResponse) {
				require.Len(t, resp.Error.Fields, 1)
				assert.Equal(t, "amount", resp.Error.Fields[0].Field)
			},
		},
		{
			name:       "not found",
			err:        invoicing.NewNotFoundError("invoice", invoiceID),
			wantStatus: http.StatusNotFound,
			wantCode:   dto.ErrCodeNotFound,
		},
		{
			name:       "terminal state carries status",
			err:        &invoicing.TerminalStateError{InvoiceID: invoiceID, Status: invoicing.InvoiceStatusPaid},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   dto.ErrCodeTerminalState,
			check: func(t *testing.T, resp apiResponse) {
				assert.Equal(t, "paid", resp.Error.Details["status"])
			},
		},
		{
			name: "exceeds balance carries the balance due",
			err: &invoicing.ExceedsBalanceError{
				InvoiceID: invoiceID, Requested: 200000, BalanceDue: 112500, Currency: "NGN",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   dto.ErrCodeExceedsBalance,
			check: func(t *testing.T, resp apiResponse) {
				assert.EqualValues(t, 112500, resp.Error.Details["balance_due_minor"])
				assert.EqualValues(t, 200000, resp.Error.Details["requested_minor"])
				assert.Equal(t, "1125.00", resp.Error.Details["balance_due"])
				assert.Equal(t, "NGN", resp.Error.Details["currency"])
			},
		},
		{
			name:       "conflict carries the reference",
			err:        &invoicing.ConflictError{ExternalReference: "flw-tx-1"},
			wantStatus: http.StatusConflict,
			wantCode:   dto.ErrCodeConflict,
			check: func(t *testing.T, resp apiResponse) {
				assert.Equal(t, "flw-tx-1", resp.Error.Details["external_reference"])
			},
		},
		{
			name:       "integrity violation",
			err:        &invoicing.IntegrityError{ReceiptID: paymentID, StoredHash: "aa", ComputedHash: "bb"},
			wantStatus: http.StatusConflict,
			wantCode:   dto.ErrCodeIntegrity,
			check: func(t *testing.T, resp apiResponse) {
				assert.Equal(t, "bb", resp.Error.Details["computed_hash"])
			},
		},
		{
			name: "partial failure is accepted, not failed",
			err: &invoicing.PartialFailureError{
				PaymentID: paymentID, InvoiceID: invoiceID, Stage: "allocation",
				Cause: &invoicing.ExceedsBalanceError{InvoiceID: invoiceID, Requested: 1, BalanceDue: 0, Currency: "NGN"},
			},
			wantStatus: http.StatusAccepted,
			wantCode:   dto.ErrCodePartialFailure,
			check: func(t *testing.T, resp apiResponse) {
				assert.Equal(t, paymentID.String(), resp.Error.Details["payment_id"])
				assert.Equal(t, "allocation", resp.Error.Details["stage"])
			},
		},
		{
			name:       "rejected webhook",
			err:        fmt.Errorf("%w: bad signature", appinvoicing.ErrWebhookRejected),
			wantStatus: http.StatusUnauthorized,
			wantCode:   dto.ErrCodeUnauthorized,
		},
		{
			name:       "unknown provider",
			err:        fmt.Errorf("%w: paystack", appinvoicing.ErrGatewayNotRegistered),
			wantStatus: http.StatusNotFound,
			wantCode:   dto.ErrCodeNotFound,
		},
		{
			name:       "plain domain error is mapped by code",
			err:        fmt.Errorf("save: %w", shared.ErrConcurrencyConflict),
			wantStatus: http.StatusConflict,
			wantCode:   dto.ErrCodeConcurrencyConflict,
		},
		{
			name:       "invalid state",
			err:        shared.NewDomainError("INVALID_STATE", "only draft invoices can be sent"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   dto.ErrCodeInvalidState,
		},
		{
			name:       "unknown error hides the cause",
			err:        errors.New("connection reset by peer"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   dto.ErrCodeInternal,
			check: func(t *testing.T, resp apiResponse) {
				assert.NotContains(t, resp.Error.Message, "connection reset")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestEngine()
			h := &BaseHandler{}
			r.GET("/err", func(c *gin.Context) { h.HandleError(c, tt.err) })

			w := doRequest(t, r, http.MethodGet, "/err", nil, nil)
			assert.Equal(t, tt.wantStatus, w.Code)

			resp := decode(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestHandleError_Nil(t *testing.T) {
	r := newTestEngine()
	h := &BaseHandler{}
	r.GET("/ok", func(c *gin.Context) {
		h.HandleError(c, nil)
		if !c.Writer.Written() {
			c.Status(http.StatusNoContent)
		}
	})
	w := doRequest(t, r, http.MethodGet, "/ok", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBaseHandler_TenantRequired(t *testing.T) {
	r := gin.New()
	h := &BaseHandler{}
	r.GET("/t", func(c *gin.Context) {
		if _, ok := h.tenantID(c); ok {
			c.Status(http.StatusOK)
		}
	})
	w := doRequest(t, r, http.MethodGet, "/t", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBaseHandler_BindError(t *testing.T) {
	r := newTestEngine()
	h := &BaseHandler{}
	r.POST("/bind", func(c *gin.Context) {
		var req dto.CancelInvoiceRequest
		if h.bind(c, &req) {
			c.Status(http.StatusOK)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		w := doRequest(t, r, http.MethodPost, "/bind", "{not json", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decode(t, w).Error.Code)
	})

	t.Run("failed validation lists fields", func(t *testing.T) {
		w := doRequest(t, r, http.MethodPost, "/bind", map[string]any{}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Fields, 1)
		assert.Equal(t, "reason", resp.Error.Fields[0].Field)
	})
}
