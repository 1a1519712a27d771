package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

var (
	testTenantID = uuid.MustParse("a9f1c6d2-4e3b-4c8a-9b7d-2f6e1a0c5d34")
	testToday    = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
)

func fixedNow() time.Time { return testToday.Add(9 * time.Hour) }

// newTestEngine mirrors the request-scoped middleware of the real router
func newTestEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.TenantMiddlewareWithConfig(middleware.DefaultTenantConfig()))
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if _, ok := headers[middleware.TenantHeaderKey]; !ok {
		req.Header.Set(middleware.TenantHeaderKey, testTenantID.String())
	}
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		RequestID string         `json:"request_id"`
		Details   map[string]any `json:"details"`
		Fields    []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"fields"`
	} `json:"error"`
	Meta *struct {
		Total    int64 `json:"total"`
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
	} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeData(t *testing.T, resp apiResponse, out any) {
	t.Helper()
	require.NotEmpty(t, resp.Data)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

// MockInvoiceService is a mock implementation of InvoiceService
type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) Create(ctx context.Context, cmd appinvoicing.CreateInvoiceCommand) (*invoicing.Invoice, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Get(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

func (m *MockInvoiceService) List(ctx context.Context, tenantID uuid.UUID, status *invoicing.InvoiceStatus, page shared.Page) (shared.Paginated[invoicing.Invoice], error) {
	args := m.Called(ctx, tenantID, status, page)
	return args.Get(0).(shared.Paginated[invoicing.Invoice]), args.Error(1)
}

func (m *MockInvoiceService) ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.Payment, error) {
	args := m.Called(ctx, tenantID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]invoicing.Payment), args.Error(1)
}

func (m *MockInvoiceService) Send(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

func (m *MockInvoiceService) MarkViewed(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Cancel(ctx context.Context, tenantID, id uuid.UUID, reason string) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

// MockPaymentAllocator is a mock implementation of PaymentAllocator
type MockPaymentAllocator struct {
	mock.Mock
}

func (m *MockPaymentAllocator) Allocate(ctx context.Context, cmd appinvoicing.AllocateCommand) (*appinvoicing.AllocationResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appinvoicing.AllocationResult), args.Error(1)
}

// MockGatewayPayments is a mock implementation of GatewayPayments
type MockGatewayPayments struct {
	mock.Mock
}

func (m *MockGatewayPayments) HandleWebhook(ctx context.Context, provider string, payload []byte, headers map[string]string) (*appinvoicing.GatewayResult, error) {
	args := m.Called(ctx, provider, payload, headers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appinvoicing.GatewayResult), args.Error(1)
}

func (m *MockGatewayPayments) VerifyAndApply(ctx context.Context, tenantID uuid.UUID, provider, transactionID string) (*appinvoicing.GatewayResult, error) {
	args := m.Called(ctx, tenantID, provider, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appinvoicing.GatewayResult), args.Error(1)
}

func (m *MockGatewayPayments) VerifyByReference(ctx context.Context, tenantID uuid.UUID, provider, reference string) (*appinvoicing.GatewayResult, error) {
	args := m.Called(ctx, tenantID, provider, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appinvoicing.GatewayResult), args.Error(1)
}

// MockReceiptService is a mock implementation of ReceiptService
type MockReceiptService struct {
	mock.Mock
}

func (m *MockReceiptService) GetReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (*invoicing.ReceiptSnapshot, error) {
	args := m.Called(ctx, tenantID, receiptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.ReceiptSnapshot), args.Error(1)
}

func (m *MockReceiptService) AuditReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (*appinvoicing.AuditResult, error) {
	args := m.Called(ctx, tenantID, receiptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appinvoicing.AuditResult), args.Error(1)
}

func (m *MockReceiptService) Verify(ctx context.Context, data invoicing.ReceiptHashData, expectedHash string) (invoicing.VerificationResult, error) {
	args := m.Called(ctx, data, expectedHash)
	return args.Get(0).(invoicing.VerificationResult), args.Error(1)
}

func (m *MockReceiptService) VerifyPublic(ctx context.Context, receiptID uuid.UUID, hash string) (invoicing.VerificationResult, error) {
	args := m.Called(ctx, receiptID, hash)
	return args.Get(0).(invoicing.VerificationResult), args.Error(1)
}

func (m *MockReceiptService) PublicView(ctx context.Context, receiptID uuid.UUID) (*invoicing.PublicReceiptView, error) {
	args := m.Called(ctx, receiptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.PublicReceiptView), args.Error(1)
}

// MockOverdueSweeper is a mock implementation of OverdueSweeper
type MockOverdueSweeper struct {
	mock.Mock
}

func (m *MockOverdueSweeper) Sweep(ctx context.Context, today time.Time) (*appinvoicing.SweepResult, error) {
	args := m.Called(ctx, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appinvoicing.SweepResult), args.Error(1)
}

// MockReconciler is a mock implementation of Reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Run(ctx context.Context) (*appinvoicing.ReconcileReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appinvoicing.ReconcileReport), args.Error(1)
}
