package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/spa/backend/internal/application/billing"
	"github.com/spa/backend/internal/domain/billing"
)

// PaymentHandler handles payment ledger API endpoints
type PaymentHandler struct {
	BaseHandler
	paymentService *billingapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *billingapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// ===================== Request/Response DTOs =====================

// PaymentResponse represents a payment ledger entry in API responses
// @Description Payment response
type PaymentResponse struct {
	ID             string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ClubID         string    `json:"club_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	PaymentNumber  string    `json:"payment_number" example:"PAY-20260831-00001"`
	InvoiceID      string    `json:"invoice_id" example:"550e8400-e29b-41d4-a716-446655440002"`
	GuestID        string    `json:"guest_id" example:"550e8400-e29b-41d4-a716-446655440003"`
	Amount         float64   `json:"amount" example:"266.76"`
	Method         string    `json:"method" example:"CARD"`
	Type           string    `json:"type" example:"REGULAR"`
	Reference      string    `json:"reference,omitempty" example:"terminal-0142"`
	DepositID      *string   `json:"deposit_id,omitempty"`
	RefundedAmount float64   `json:"refunded_amount" example:"0.00"`
	ReceivedAt     time.Time `json:"received_at"`
	OperatorID     *string   `json:"operator_id,omitempty"`
	Remark         string    `json:"remark,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RecordPaymentRequest represents a request to record a payment. The
// idempotency key is optional; submissions without one are never deduplicated.
// @Description Request body for recording a payment against an invoice
type RecordPaymentRequest struct {
	Amount         float64 `json:"amount" binding:"required,gt=0" example:"266.76"`
	Method         string  `json:"method" binding:"required,oneof=CASH CARD BANK_TRANSFER VOUCHER MEMBER_WALLET" example:"CARD"`
	Type           string  `json:"type" binding:"omitempty,oneof=REGULAR MANUAL" example:"REGULAR"`
	Reference      string  `json:"reference" binding:"max=200" example:"terminal-0142"`
	IdempotencyKey string  `json:"idempotency_key" binding:"omitempty,max=100" example:"front-desk-7f3a"`
	Remark         string  `json:"remark" binding:"max=500"`
}

// RecordPaymentResponse represents the outcome of a payment submission
// @Description Payment submission result: the ledger entry plus the
// recalculated invoice snapshot
type RecordPaymentResponse struct {
	Payment   PaymentResponse `json:"payment"`
	Invoice   InvoiceResponse `json:"invoice"`
	Duplicate bool            `json:"duplicate" example:"false"`
}

// ===================== Payment Handlers =====================

// RecordPayment godoc
// @Summary      Record a payment
// @Description  Append a payment to the invoice's ledger and recalculate the
// @Description  balance. Resubmitting the same idempotency key returns the
// @Description  original payment instead of collecting twice.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string false "Operator ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body RecordPaymentRequest true "Payment request"
// @Success      201 {object} dto.Response{data=RecordPaymentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/payments [post]
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}
	operatorID, err := getOperatorID(c)
	if err != nil {
		h.BadRequest(c, "Invalid operator ID")
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.paymentService.RecordPayment(c.Request.Context(), billingapp.RecordPaymentRequest{
		ClubID:         clubID,
		InvoiceID:      invoiceID,
		Amount:         toDecimal(req.Amount),
		Method:         billing.PaymentMethod(req.Method),
		Type:           billing.PaymentType(req.Type),
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		Remark:         req.Remark,
		OperatorID:     operatorID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	response := RecordPaymentResponse{
		Payment:   toPaymentResponse(result.Payment),
		Invoice:   toInvoiceResponse(result.Invoice),
		Duplicate: result.Duplicate,
	}

	// A replayed submission is a success, not a new resource
	if result.Duplicate {
		h.Success(c, response)
		return
	}
	h.Created(c, response)
}

// ListPayments godoc
// @Summary      List payments for an invoice
// @Description  Retrieve the invoice's payment ledger, oldest first
// @Tags         payments
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]PaymentResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
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

	payments, err := h.paymentService.ListPayments(c.Request.Context(), clubID, invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toPaymentResponses(payments))
}

// ===================== Mappers =====================

func toPaymentResponse(p *billing.Payment) PaymentResponse {
	var operatorID *string
	if p.OperatorID != nil {
		s := p.OperatorID.String()
		operatorID = &s
	}
	var depositID *string
	if p.DepositID != nil {
		s := p.DepositID.String()
		depositID = &s
	}
	return PaymentResponse{
		ID:             p.ID.String(),
		ClubID:         p.ClubID.String(),
		PaymentNumber:  p.PaymentNumber,
		InvoiceID:      p.InvoiceID.String(),
		GuestID:        p.GuestID.String(),
		Amount:         p.Amount.InexactFloat64(),
		Method:         p.Method.String(),
		Type:           p.Type.String(),
		Reference:      p.Reference,
		DepositID:      depositID,
		RefundedAmount: p.RefundedAmount.InexactFloat64(),
		ReceivedAt:     p.ReceivedAt,
		OperatorID:     operatorID,
		Remark:         p.Remark,
		CreatedAt:      p.CreatedAt,
	}
}

func toPaymentResponses(payments []billing.Payment) []PaymentResponse {
	responses := make([]PaymentResponse, len(payments))
	for i := range payments {
		responses[i] = toPaymentResponse(&payments[i])
	}
	return responses
}
