package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/spa/backend/internal/application/billing"
	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
)

// DepositHandler handles deposit lifecycle API endpoints
type DepositHandler struct {
	BaseHandler
	depositService *billingapp.DepositService
}

// NewDepositHandler creates a new DepositHandler
func NewDepositHandler(depositService *billingapp.DepositService) *DepositHandler {
	return &DepositHandler{
		depositService: depositService,
	}
}

// ===================== Request/Response DTOs =====================

// DepositResponse represents a deposit in API responses
// @Description Deposit response
type DepositResponse struct {
	ID              string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ClubID          string     `json:"club_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	DepositNumber   string     `json:"deposit_number" example:"DEP-20260831-00001"`
	GuestID         string     `json:"guest_id" example:"550e8400-e29b-41d4-a716-446655440002"`
	GuestName       string     `json:"guest_name" example:"Mrs. Tan"`
	BookingID       *string    `json:"booking_id,omitempty"`
	Amount          float64    `json:"amount" example:"200.00"`
	AppliedAmount   float64    `json:"applied_amount" example:"80.00"`
	RemainingAmount float64    `json:"remaining_amount" example:"120.00"`
	Method          string     `json:"method" example:"CARD"`
	Reference       string     `json:"reference,omitempty"`
	Status          string     `json:"status" example:"COLLECTED"`
	CollectedAt     *time.Time `json:"collected_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	Remark          string     `json:"remark,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Version         int        `json:"version" example:"1"`
}

// CreateDepositRequest represents a request to collect a deposit
// @Description Request body for collecting a deposit
type CreateDepositRequest struct {
	GuestID   string     `json:"guest_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	GuestName string     `json:"guest_name" binding:"required,min=1,max=200" example:"Mrs. Tan"`
	BookingID *string    `json:"booking_id" binding:"omitempty,uuid"`
	Amount    float64    `json:"amount" binding:"required,gt=0" example:"200.00"`
	Method    string     `json:"method" binding:"required,oneof=CASH CARD BANK_TRANSFER VOUCHER MEMBER_WALLET" example:"CARD"`
	Reference string     `json:"reference" binding:"max=200" example:"card-auth-5531"`
	ExpiresAt *time.Time `json:"expires_at"`
	Remark    string     `json:"remark" binding:"max=500"`
}

// ApplyDepositBody represents a request to apply a deposit to an invoice.
// When amount is omitted the whole remaining deposit is applied, capped at
// the invoice's outstanding balance.
// @Description Request body for applying deposit money to an invoice
type ApplyDepositBody struct {
	DepositID      string  `json:"deposit_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Amount         float64 `json:"amount" binding:"omitempty,gte=0" example:"80.00"`
	IdempotencyKey string  `json:"idempotency_key" binding:"omitempty,max=100" example:"apply-dep-7f3a"`
}

// ApplyDepositResponse represents the outcome of a deposit application
// @Description Deposit application result: the updated deposit, the ledger
// payment it produced, and the recalculated invoice
type ApplyDepositResponse struct {
	Deposit DepositResponse `json:"deposit"`
	Payment PaymentResponse `json:"payment"`
	Invoice InvoiceResponse `json:"invoice"`
}

// RefundDepositRequest represents a request to return the unapplied remainder
// @Description Request body for refunding a deposit
type RefundDepositRequest struct {
	Reference string `json:"reference" binding:"max=200" example:"card-reversal-5531"`
}

// ExpireDepositsResponse reports how many deposits an expiry sweep closed
type ExpireDepositsResponse struct {
	Expired int `json:"expired" example:"3"`
}

// DepositListFilter represents list query parameters for deposits
type DepositListFilter struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ===================== Deposit Handlers =====================

// CreateDeposit godoc
// @Summary      Collect a deposit
// @Description  Record a deposit collected from a guest, optionally tied to a
// @Description  booking. Collecting again for the same booking returns the
// @Description  existing deposit instead of creating a second one.
// @Tags         deposits
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string false "Operator ID"
// @Param        request body CreateDepositRequest true "Deposit details"
// @Success      201 {object} dto.Response{data=DepositResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /deposits [post]
func (h *DepositHandler) CreateDeposit(c *gin.Context) {
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

	var req CreateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	guestID, err := uuid.Parse(req.GuestID)
	if err != nil {
		h.BadRequest(c, "Invalid guest ID format")
		return
	}

	var bookingID *uuid.UUID
	if req.BookingID != nil && *req.BookingID != "" {
		id, err := uuid.Parse(*req.BookingID)
		if err != nil {
			h.BadRequest(c, "Invalid booking ID format")
			return
		}
		bookingID = &id
	}

	deposit, err := h.depositService.CreateDeposit(c.Request.Context(), billingapp.CreateDepositRequest{
		ClubID:     clubID,
		GuestID:    guestID,
		GuestName:  req.GuestName,
		BookingID:  bookingID,
		Amount:     toDecimal(req.Amount),
		Method:     billing.PaymentMethod(req.Method),
		Reference:  req.Reference,
		ExpiresAt:  req.ExpiresAt,
		Remark:     req.Remark,
		OperatorID: operatorID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toDepositResponse(deposit))
}

// GetDeposit godoc
// @Summary      Get deposit by ID
// @Tags         deposits
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Deposit ID" format(uuid)
// @Success      200 {object} dto.Response{data=DepositResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /deposits/{id} [get]
func (h *DepositHandler) GetDeposit(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	depositID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid deposit ID format")
		return
	}

	deposit, err := h.depositService.GetDeposit(c.Request.Context(), clubID, depositID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toDepositResponse(deposit))
}

// ListGuestDeposits godoc
// @Summary      List a guest's deposits
// @Tags         deposits
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Guest ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} dto.Response{data=[]DepositResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /guests/{id}/deposits [get]
func (h *DepositHandler) ListGuestDeposits(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	guestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid guest ID format")
		return
	}

	var query DepositListFilter
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := shared.DefaultFilter()
	if query.Page > 0 {
		filter.Page = query.Page
	}
	if query.PageSize > 0 {
		filter.PageSize = query.PageSize
	}

	deposits, err := h.depositService.ListGuestDeposits(c.Request.Context(), clubID, guestID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toDepositResponses(deposits))
}

// ApplyDeposit godoc
// @Summary      Apply a deposit to an invoice
// @Description  Consume deposit money against an invoice. The slice lands on
// @Description  the payment ledger as a DEPOSIT-method entry and the invoice
// @Description  is recalculated. Replays with the same idempotency key return
// @Description  the original result.
// @Tags         deposits
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string false "Operator ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body ApplyDepositBody true "Application details"
// @Success      200 {object} dto.Response{data=ApplyDepositResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/deposits/apply [post]
func (h *DepositHandler) ApplyDeposit(c *gin.Context) {
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

	var req ApplyDepositBody
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	depositID, err := uuid.Parse(req.DepositID)
	if err != nil {
		h.BadRequest(c, "Invalid deposit ID format")
		return
	}

	result, err := h.depositService.ApplyDeposit(c.Request.Context(), billingapp.ApplyDepositRequest{
		ClubID:         clubID,
		DepositID:      depositID,
		InvoiceID:      invoiceID,
		Amount:         toDecimal(req.Amount),
		IdempotencyKey: req.IdempotencyKey,
		OperatorID:     operatorID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, ApplyDepositResponse{
		Deposit: toDepositResponse(result.Deposit),
		Payment: toPaymentResponse(result.Payment),
		Invoice: toInvoiceResponse(result.Invoice),
	})
}

// RefundDeposit godoc
// @Summary      Refund a deposit's unapplied remainder
// @Tags         deposits
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Deposit ID" format(uuid)
// @Param        request body RefundDepositRequest false "Refund reference"
// @Success      200 {object} dto.Response{data=DepositResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /deposits/{id}/refund [post]
func (h *DepositHandler) RefundDeposit(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	depositID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid deposit ID format")
		return
	}

	var req RefundDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		h.BadRequest(c, err.Error())
		return
	}

	deposit, err := h.depositService.RefundDeposit(c.Request.Context(), clubID, depositID, req.Reference)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toDepositResponse(deposit))
}

// ExpireDeposits godoc
// @Summary      Expire overdue deposits
// @Description  Sweep the club's deposits and close every one whose expiry
// @Description  date has passed. Intended for a scheduled caller.
// @Tags         deposits
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Success      200 {object} dto.Response{data=ExpireDepositsResponse}
// @Router       /deposits/expire [post]
func (h *DepositHandler) ExpireDeposits(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	expired, err := h.depositService.ExpireDeposits(c.Request.Context(), clubID, time.Now())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, ExpireDepositsResponse{Expired: expired})
}

// ===================== Mappers =====================

func toDepositResponse(d *billing.Deposit) DepositResponse {
	var bookingID *string
	if d.BookingID != nil {
		s := d.BookingID.String()
		bookingID = &s
	}

	return DepositResponse{
		ID:              d.ID.String(),
		ClubID:          d.ClubID.String(),
		DepositNumber:   d.DepositNumber,
		GuestID:         d.GuestID.String(),
		GuestName:       d.GuestName,
		BookingID:       bookingID,
		Amount:          d.Amount.InexactFloat64(),
		AppliedAmount:   d.AppliedAmount.InexactFloat64(),
		RemainingAmount: d.RemainingAmount().Amount().InexactFloat64(),
		Method:          string(d.Method),
		Reference:       d.Reference,
		Status:          d.Status.String(),
		CollectedAt:     d.CollectedAt,
		ExpiresAt:       d.ExpiresAt,
		ClosedAt:        d.ClosedAt,
		Remark:          d.Remark,
		CreatedAt:       d.CreatedAt,
		Version:         d.Version,
	}
}

func toDepositResponses(deposits []billing.Deposit) []DepositResponse {
	responses := make([]DepositResponse, len(deposits))
	for i := range deposits {
		responses[i] = toDepositResponse(&deposits[i])
	}
	return responses
}
