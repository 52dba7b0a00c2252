package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/spa/backend/internal/application/billing"
	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
)

// RefundHandler handles refund workflow API endpoints
type RefundHandler struct {
	BaseHandler
	refundService *billingapp.RefundService
}

// NewRefundHandler creates a new RefundHandler
func NewRefundHandler(refundService *billingapp.RefundService) *RefundHandler {
	return &RefundHandler{
		refundService: refundService,
	}
}

// ===================== Request/Response DTOs =====================

// RefundResponse represents a refund in API responses
// @Description Refund response
type RefundResponse struct {
	ID           string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ClubID       string     `json:"club_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	RefundNumber string     `json:"refund_number" example:"REF-20260831-00001"`
	InvoiceID    string     `json:"invoice_id" example:"550e8400-e29b-41d4-a716-446655440002"`
	PaymentID    *string    `json:"payment_id,omitempty"`
	GuestID      string     `json:"guest_id" example:"550e8400-e29b-41d4-a716-446655440003"`
	Amount       float64    `json:"amount" example:"50.00"`
	Method       string     `json:"method" example:"ORIGINAL"`
	Reason       string     `json:"reason" example:"Treatment cut short"`
	Status       string     `json:"status" example:"PENDING"`
	RequestedBy  string     `json:"requested_by"`
	RequestedAt  time.Time  `json:"requested_at"`
	ReviewedBy   *string    `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	ReviewNote   string     `json:"review_note,omitempty"`
	ProcessedBy  *string    `json:"processed_by,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	Reference    string     `json:"reference,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Version      int        `json:"version" example:"1"`
}

// RequestRefundRequest represents a request to open a refund
// @Description Request body for requesting a refund
type RequestRefundRequest struct {
	PaymentID *string `json:"payment_id" binding:"omitempty,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Amount    float64 `json:"amount" binding:"required,gt=0" example:"50.00"`
	Method    string  `json:"method" binding:"required,oneof=ORIGINAL CASH BANK_TRANSFER MEMBER_WALLET" example:"ORIGINAL"`
	Reason    string  `json:"reason" binding:"required,min=1,max=500" example:"Treatment cut short"`
}

// ReviewRefundRequest represents an approve/reject/cancel decision
// @Description Request body for reviewing a refund
type ReviewRefundRequest struct {
	Note string `json:"note" binding:"max=500" example:"Verified with therapist"`
}

// ProcessRefundRequest represents a request to pay out an approved refund
// @Description Request body for processing a refund
type ProcessRefundRequest struct {
	Reference string `json:"reference" binding:"max=200" example:"card-reversal-9920"`
}

// ProcessRefundResponse represents the outcome of processing a refund
// @Description Refund processing result: the refund plus the recalculated
// invoice snapshot
type ProcessRefundResponse struct {
	Refund  RefundResponse  `json:"refund"`
	Invoice InvoiceResponse `json:"invoice"`
}

// RefundListFilter represents list query parameters for refunds
type RefundListFilter struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=PENDING APPROVED PROCESSED REJECTED CANCELLED"`
}

// ===================== Refund Handlers =====================

// RequestRefund godoc
// @Summary      Request a refund
// @Description  Open a pending refund against an invoice's collected payments
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string true "Requesting operator ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body RequestRefundRequest true "Refund request"
// @Success      201 {object} dto.Response{data=RefundResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/refunds [post]
func (h *RefundHandler) RequestRefund(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}
	requestedBy, err := requireOperatorID(c)
	if err != nil {
		h.BadRequest(c, "A valid X-Operator-ID header is required")
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req RequestRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var paymentID *uuid.UUID
	if req.PaymentID != nil && *req.PaymentID != "" {
		id, err := uuid.Parse(*req.PaymentID)
		if err != nil {
			h.BadRequest(c, "Invalid payment ID format")
			return
		}
		paymentID = &id
	}

	refund, err := h.refundService.RequestRefund(c.Request.Context(), billingapp.RequestRefundRequest{
		ClubID:      clubID,
		InvoiceID:   invoiceID,
		PaymentID:   paymentID,
		Amount:      toDecimal(req.Amount),
		Method:      billing.RefundMethod(req.Method),
		Reason:      req.Reason,
		RequestedBy: requestedBy,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toRefundResponse(refund))
}

// GetRefund godoc
// @Summary      Get refund by ID
// @Tags         refunds
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Refund ID" format(uuid)
// @Success      200 {object} dto.Response{data=RefundResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /refunds/{id} [get]
func (h *RefundHandler) GetRefund(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid refund ID format")
		return
	}

	refund, err := h.refundService.GetRefund(c.Request.Context(), clubID, refundID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRefundResponse(refund))
}

// ListRefunds godoc
// @Summary      List refunds by status
// @Description  Retrieve refunds in a given workflow state, typically the
// @Description  pending approval queue
// @Tags         refunds
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        status query string false "Status" Enums(PENDING, APPROVED, PROCESSED, REJECTED, CANCELLED) default(PENDING)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} dto.Response{data=[]RefundResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /refunds [get]
func (h *RefundHandler) ListRefunds(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	var query RefundListFilter
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	status := billing.RefundStatusPending
	if query.Status != "" {
		status = billing.RefundStatus(query.Status)
	}

	filter := shared.DefaultFilter()
	if query.Page > 0 {
		filter.Page = query.Page
	}
	if query.PageSize > 0 {
		filter.PageSize = query.PageSize
	}

	refunds, err := h.refundService.ListRefundsByStatus(c.Request.Context(), clubID, status, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRefundResponses(refunds))
}

// ListInvoiceRefunds godoc
// @Summary      List refunds for an invoice
// @Tags         refunds
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]RefundResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/refunds [get]
func (h *RefundHandler) ListInvoiceRefunds(c *gin.Context) {
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

	refunds, err := h.refundService.ListRefundsByInvoice(c.Request.Context(), clubID, invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRefundResponses(refunds))
}

// ApproveRefund godoc
// @Summary      Approve a pending refund
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string true "Reviewing operator ID"
// @Param        id path string true "Refund ID" format(uuid)
// @Param        request body ReviewRefundRequest false "Review note"
// @Success      200 {object} dto.Response{data=RefundResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /refunds/{id}/approve [post]
func (h *RefundHandler) ApproveRefund(c *gin.Context) {
	h.review(c, h.refundService.ApproveRefund)
}

// RejectRefund godoc
// @Summary      Reject a pending refund
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string true "Reviewing operator ID"
// @Param        id path string true "Refund ID" format(uuid)
// @Param        request body ReviewRefundRequest false "Review note"
// @Success      200 {object} dto.Response{data=RefundResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /refunds/{id}/reject [post]
func (h *RefundHandler) RejectRefund(c *gin.Context) {
	h.review(c, h.refundService.RejectRefund)
}

// CancelRefund godoc
// @Summary      Cancel a refund before processing
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string true "Operator ID"
// @Param        id path string true "Refund ID" format(uuid)
// @Param        request body ReviewRefundRequest false "Cancellation note"
// @Success      200 {object} dto.Response{data=RefundResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /refunds/{id}/cancel [post]
func (h *RefundHandler) CancelRefund(c *gin.Context) {
	h.review(c, h.refundService.CancelRefund)
}

// review factors the shared request plumbing of the three decision endpoints
func (h *RefundHandler) review(c *gin.Context, decide func(ctx context.Context, clubID, refundID, operatorID uuid.UUID, note string) (*billing.Refund, error)) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}
	operatorID, err := requireOperatorID(c)
	if err != nil {
		h.BadRequest(c, "A valid X-Operator-ID header is required")
		return
	}

	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid refund ID format")
		return
	}

	var req ReviewRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		h.BadRequest(c, err.Error())
		return
	}

	refund, err := decide(c.Request.Context(), clubID, refundID, operatorID, req.Note)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRefundResponse(refund))
}

// ProcessRefund godoc
// @Summary      Process an approved refund
// @Description  Pay out an approved refund and recalculate the invoice. The
// @Description  amount is re-validated against what is still refundable under
// @Description  the invoice lock.
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string true "Processing operator ID"
// @Param        id path string true "Refund ID" format(uuid)
// @Param        request body ProcessRefundRequest false "Processing reference"
// @Success      200 {object} dto.Response{data=ProcessRefundResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /refunds/{id}/process [post]
func (h *RefundHandler) ProcessRefund(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}
	operatorID, err := requireOperatorID(c)
	if err != nil {
		h.BadRequest(c, "A valid X-Operator-ID header is required")
		return
	}

	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid refund ID format")
		return
	}

	var req ProcessRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.refundService.ProcessRefund(c.Request.Context(), clubID, refundID, operatorID, req.Reference)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, ProcessRefundResponse{
		Refund:  toRefundResponse(result.Refund),
		Invoice: toInvoiceResponse(result.Invoice),
	})
}

// ===================== Mappers =====================

func toRefundResponse(r *billing.Refund) RefundResponse {
	uuidStr := func(id *uuid.UUID) *string {
		if id == nil {
			return nil
		}
		s := id.String()
		return &s
	}

	return RefundResponse{
		ID:           r.ID.String(),
		ClubID:       r.ClubID.String(),
		RefundNumber: r.RefundNumber,
		InvoiceID:    r.InvoiceID.String(),
		PaymentID:    uuidStr(r.PaymentID),
		GuestID:      r.GuestID.String(),
		Amount:       r.Amount.InexactFloat64(),
		Method:       string(r.Method),
		Reason:       r.Reason,
		Status:       r.Status.String(),
		RequestedBy:  r.RequestedBy.String(),
		RequestedAt:  r.RequestedAt,
		ReviewedBy:   uuidStr(r.ReviewedBy),
		ReviewedAt:   r.ReviewedAt,
		ReviewNote:   r.ReviewNote,
		ProcessedBy:  uuidStr(r.ProcessedBy),
		ProcessedAt:  r.ProcessedAt,
		Reference:    r.Reference,
		CreatedAt:    r.CreatedAt,
		Version:      r.Version,
	}
}

func toRefundResponses(refunds []billing.Refund) []RefundResponse {
	responses := make([]RefundResponse, len(refunds))
	for i := range refunds {
		responses[i] = toRefundResponse(&refunds[i])
	}
	return responses
}
