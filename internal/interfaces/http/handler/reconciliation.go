package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/spa/backend/internal/application/billing"
)

// ReconciliationHandler handles ledger verification API endpoints
type ReconciliationHandler struct {
	BaseHandler
	reconciliationService *billingapp.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciliationService *billingapp.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
	}
}

// ReconciliationReportResponse represents an invoice drift report
// @Description Comparison of an invoice's stored state against the state
// derived from its ledgers
type ReconciliationReportResponse struct {
	InvoiceID      string  `json:"invoice_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	InvoiceNumber  string  `json:"invoice_number" example:"INV-20260831-00001"`
	Consistent     bool    `json:"consistent" example:"true"`
	Repaired       bool    `json:"repaired" example:"false"`
	StoredTotal    float64 `json:"stored_total" example:"188.32"`
	DerivedTotal   float64 `json:"derived_total" example:"188.32"`
	StoredPaid     float64 `json:"stored_paid" example:"100.00"`
	DerivedPaid    float64 `json:"derived_paid" example:"100.00"`
	StoredBalance  float64 `json:"stored_balance" example:"88.32"`
	DerivedBalance float64 `json:"derived_balance" example:"88.32"`
	StoredStatus   string  `json:"stored_status" example:"PARTIAL"`
	DerivedStatus  string  `json:"derived_status" example:"PARTIAL"`
}

// ReconciliationSweepResponse summarizes a club-wide verification sweep
type ReconciliationSweepResponse struct {
	Drifted []ReconciliationReportResponse `json:"drifted"`
	Count   int                            `json:"count" example:"0"`
}

// VerifyInvoice godoc
// @Summary      Verify an invoice against its ledgers
// @Description  Recompute the invoice from its line items and ledgers and
// @Description  report any drift. With repair=true a drifting invoice is
// @Description  rewritten with the derived figures.
// @Tags         reconciliation
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        repair query bool false "Repair drifting state" default(false)
// @Success      200 {object} dto.Response{data=ReconciliationReportResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/reconcile [post]
func (h *ReconciliationHandler) VerifyInvoice(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	repair := c.Query("repair") == "true"

	report, err := h.reconciliationService.VerifyInvoice(c.Request.Context(), clubID, invoiceID, repair)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toReconciliationReportResponse(report))
}

// VerifyAll godoc
// @Summary      Verify every invoice in the club
// @Description  Sweep the club's invoices and return only the ones whose
// @Description  stored state drifts from the ledger-derived state.
// @Tags         reconciliation
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        repair query bool false "Repair drifting state" default(false)
// @Success      200 {object} dto.Response{data=ReconciliationSweepResponse}
// @Router       /reconciliation/run [post]
func (h *ReconciliationHandler) VerifyAll(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	repair := c.Query("repair") == "true"

	drifted, err := h.reconciliationService.VerifyAll(c.Request.Context(), clubID, repair)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	reports := make([]ReconciliationReportResponse, len(drifted))
	for i := range drifted {
		reports[i] = toReconciliationReportResponse(&drifted[i])
	}

	h.Success(c, ReconciliationSweepResponse{Drifted: reports, Count: len(reports)})
}

func toReconciliationReportResponse(r *billingapp.ReconciliationReport) ReconciliationReportResponse {
	return ReconciliationReportResponse{
		InvoiceID:      r.InvoiceID.String(),
		InvoiceNumber:  r.InvoiceNumber,
		Consistent:     r.Consistent,
		Repaired:       r.Repaired,
		StoredTotal:    r.StoredTotal.InexactFloat64(),
		DerivedTotal:   r.DerivedTotal.InexactFloat64(),
		StoredPaid:     r.StoredPaid.InexactFloat64(),
		DerivedPaid:    r.DerivedPaid.InexactFloat64(),
		StoredBalance:  r.StoredBalance.InexactFloat64(),
		DerivedBalance: r.DerivedBalance.InexactFloat64(),
		StoredStatus:   r.StoredStatus,
		DerivedStatus:  r.DerivedStatus,
	}
}
