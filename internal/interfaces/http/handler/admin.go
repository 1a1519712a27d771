package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
)

// OverdueSweeper moves past-due invoices to overdue
type OverdueSweeper interface {
	Sweep(ctx context.Context, today time.Time) (*appinvoicing.SweepResult, error)
}

// Reconciler retries allocations and receipts left behind by partial failures
type Reconciler interface {
	Run(ctx context.Context) (*appinvoicing.ReconcileReport, error)
}

// SweepResponse is the outcome of a manual overdue sweep
type SweepResponse struct {
	Today      string   `json:"today"`
	Swept      int      `json:"swept"`
	InvoiceIDs []string `json:"invoice_ids"`
	DurationMs int64    `json:"duration_ms"`
}

// AdminHandler triggers the background jobs on demand
type AdminHandler struct {
	BaseHandler
	sweeper    OverdueSweeper
	reconciler Reconciler
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sweeper OverdueSweeper, reconciler Reconciler, now func() time.Time) *AdminHandler {
	return &AdminHandler{BaseHandler: BaseHandler{now: now}, sweeper: sweeper, reconciler: reconciler}
}

// SweepOverdue godoc
// @Summary      Run the overdue sweep now
// @Description  Safe to repeat: a second run on the same day moves nothing
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=SweepResponse}
// @Router       /admin/overdue-sweep [post]
func (h *AdminHandler) SweepOverdue(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context(), h.today())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	ids := make([]string, len(result.SweptIDs))
	for i, id := range result.SweptIDs {
		ids[i] = id.String()
	}
	h.Success(c, SweepResponse{
		Today:      result.Today.Format(time.DateOnly),
		Swept:      len(ids),
		InvoiceIDs: ids,
		DurationMs: result.Duration.Milliseconds(),
	})
}

// Reconcile godoc
// @Summary      Run payment reconciliation now
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=appinvoicing.ReconcileReport}
// @Router       /admin/reconcile [post]
func (h *AdminHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
