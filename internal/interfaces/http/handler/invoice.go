package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/spa/backend/internal/application/billing"
	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
)

// InvoiceHandler handles invoice-related API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *billingapp.InvoiceService
	paymentService *billingapp.PaymentService
	refundService  *billingapp.RefundService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *billingapp.InvoiceService, paymentService *billingapp.PaymentService, refundService *billingapp.RefundService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		paymentService: paymentService,
		refundService:  refundService,
	}
}

// ===================== Request/Response DTOs =====================

// InvoiceResponse represents an invoice in API responses
// @Description Invoice response
type InvoiceResponse struct {
	ID            string             `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ClubID        string             `json:"club_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	InvoiceNumber string             `json:"invoice_number" example:"INV-20260831-00001"`
	GuestID       string             `json:"guest_id" example:"550e8400-e29b-41d4-a716-446655440002"`
	GuestName     string             `json:"guest_name" example:"Ada Chen"`
	SourceType    string             `json:"source_type" example:"BOOKING"`
	SourceID      string             `json:"source_id" example:"550e8400-e29b-41d4-a716-446655440003"`
	SourceNumber  string             `json:"source_number" example:"BK-2026-0042"`
	LineItems     []LineItemResponse `json:"line_items,omitempty"`
	Subtotal      float64            `json:"subtotal" example:"228.00"`
	ServiceCharge float64            `json:"service_charge" example:"22.80"`
	Tax           float64            `json:"tax" example:"15.96"`
	Discount      float64            `json:"discount" example:"0.00"`
	Total         float64            `json:"total" example:"266.76"`
	AmountPaid    float64            `json:"amount_paid" example:"0.00"`
	BalanceDue    float64            `json:"balance_due" example:"266.76"`
	Status        string             `json:"status" example:"ISSUED"`
	DueDate       *time.Time         `json:"due_date,omitempty"`
	IssuedAt      *time.Time         `json:"issued_at,omitempty"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason  string             `json:"cancel_reason,omitempty"`
	Remark        string             `json:"remark,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Version       int                `json:"version" example:"1"`
}

// InvoiceDetailResponse is an invoice together with its payment and refund
// ledgers, returned by the single-invoice endpoint
// @Description Invoice detail response with embedded ledgers
type InvoiceDetailResponse struct {
	InvoiceResponse
	Payments []PaymentResponse `json:"payments"`
	Refunds  []RefundResponse  `json:"refunds"`
}

// LineItemResponse represents an invoice line item in API responses
// @Description Invoice line item response
type LineItemResponse struct {
	ID            string  `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	CatalogItemID *string `json:"catalog_item_id,omitempty"`
	Kind          string  `json:"kind" example:"SERVICE"`
	Description   string  `json:"description" example:"Swedish massage 90min"`
	Quantity      int64   `json:"quantity" example:"1"`
	UnitPrice     float64 `json:"unit_price" example:"180.00"`
	TaxRate       float64 `json:"tax_rate" example:"0.07"`
	Subtotal      float64 `json:"subtotal" example:"180.00"`
}

// CreateInvoiceLineRequest represents one billable line on a new invoice
// @Description Line item for invoice creation
type CreateInvoiceLineRequest struct {
	CatalogItemID *string `json:"catalog_item_id" binding:"omitempty,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Kind          string  `json:"kind" binding:"required,oneof=SERVICE PRODUCT" example:"SERVICE"`
	Description   string  `json:"description" binding:"required,min=1,max=500" example:"Swedish massage 90min"`
	Quantity      int64   `json:"quantity" binding:"required,min=1" example:"1"`
	UnitPrice     float64 `json:"unit_price" binding:"required,gt=0" example:"180.00"`
	TaxRate       float64 `json:"tax_rate" binding:"gte=0,lte=1" example:"0.07"`
}

// CreateInvoiceRequest represents a request to create an invoice
// @Description Request body for creating an invoice
type CreateInvoiceRequest struct {
	GuestID      string                     `json:"guest_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	GuestName    string                     `json:"guest_name" binding:"required,min=1,max=200" example:"Ada Chen"`
	SourceType   string                     `json:"source_type" binding:"required,oneof=BOOKING MANUAL" example:"BOOKING"`
	SourceID     string                     `json:"source_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440003"`
	SourceNumber string                     `json:"source_number" binding:"max=50" example:"BK-2026-0042"`
	DueDate      *time.Time                 `json:"due_date"`
	Discount     float64                    `json:"discount" binding:"gte=0" example:"0.00"`
	Remark       string                     `json:"remark" binding:"max=500"`
	Lines        []CreateInvoiceLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// AddLineItemRequest represents a request to add a line to an invoice
// @Description Request body for adding a line item
type AddLineItemRequest struct {
	CreateInvoiceLineRequest
	ExpectedVersion int `json:"expected_version" binding:"gte=0" example:"1"`
}

// ApplyDiscountRequest represents a request to set the invoice discount
// @Description Request body for applying a discount
type ApplyDiscountRequest struct {
	Amount          float64 `json:"amount" binding:"gte=0" example:"20.00"`
	ExpectedVersion int     `json:"expected_version" binding:"gte=0" example:"1"`
}

// CancelInvoiceRequest represents a request to cancel an invoice
// @Description Request body for cancelling an invoice
type CancelInvoiceRequest struct {
	Reason          string `json:"reason" binding:"required,min=1,max=500" example:"Guest no-show"`
	ExpectedVersion int    `json:"expected_version" binding:"gte=0" example:"1"`
}

// InvoiceListFilter represents list query parameters for invoices
type InvoiceListFilter struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	Status   string `form:"status" binding:"omitempty,oneof=DRAFT ISSUED PARTIAL PAID OVERDUE CANCELLED REFUNDED"`
	GuestID  string `form:"guest_id" binding:"omitempty,uuid"`
}

// ===================== Invoice Handlers =====================

// CreateInvoice godoc
// @Summary      Create an invoice
// @Description  Create and issue an invoice for a closed booking or manual charge
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        X-Operator-ID header string false "Operator ID"
// @Param        request body CreateInvoiceRequest true "Invoice creation request"
// @Success      201 {object} dto.Response{data=InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
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

	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	guestID, err := uuid.Parse(req.GuestID)
	if err != nil {
		h.BadRequest(c, "Invalid guest ID format")
		return
	}
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		h.BadRequest(c, "Invalid source ID format")
		return
	}

	lines := make([]billingapp.CreateInvoiceLineRequest, 0, len(req.Lines))
	for _, line := range req.Lines {
		appLine, err := toAppLineRequest(line)
		if err != nil {
			h.BadRequest(c, "Invalid catalog item ID format")
			return
		}
		lines = append(lines, appLine)
	}

	inv, err := h.invoiceService.CreateInvoice(c.Request.Context(), billingapp.CreateInvoiceRequest{
		ClubID:       clubID,
		GuestID:      guestID,
		GuestName:    req.GuestName,
		SourceType:   billing.InvoiceSourceType(req.SourceType),
		SourceID:     sourceID,
		SourceNumber: req.SourceNumber,
		DueDate:      req.DueDate,
		Discount:     toDecimal(req.Discount),
		Remark:       req.Remark,
		Lines:        lines,
		OperatorID:   operatorID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toInvoiceResponse(inv))
}

// GetInvoice godoc
// @Summary      Get invoice by ID
// @Description  Retrieve an invoice with its line items, payment ledger and refund ledger
// @Tags         invoices
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=InvoiceDetailResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
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

	ctx := c.Request.Context()
	inv, err := h.invoiceService.GetInvoice(ctx, clubID, invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	payments, err := h.paymentService.ListPayments(ctx, clubID, invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	refunds, err := h.refundService.ListRefundsByInvoice(ctx, clubID, invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, InvoiceDetailResponse{
		InvoiceResponse: toInvoiceResponse(inv),
		Payments:        toPaymentResponses(payments),
		Refunds:         toRefundResponses(refunds),
	})
}

// ListInvoices godoc
// @Summary      List invoices
// @Description  Retrieve a paginated list of the club's invoices
// @Tags         invoices
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        status query string false "Status" Enums(DRAFT, ISSUED, PARTIAL, PAID, OVERDUE, CANCELLED, REFUNDED)
// @Param        guest_id query string false "Guest ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} dto.Response{data=[]InvoiceResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	clubID, err := getClubID(c)
	if err != nil {
		h.BadRequest(c, "Invalid club ID")
		return
	}

	var query InvoiceListFilter
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
	if query.OrderBy != "" {
		filter.OrderBy = query.OrderBy
	}
	if query.OrderDir != "" {
		filter.OrderDir = query.OrderDir
	}
	if query.Status != "" {
		filter.Filters["status"] = query.Status
	}
	if query.GuestID != "" {
		filter.Filters["guest_id"] = query.GuestID
	}

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), clubID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toInvoiceResponses(invoices), total, filter.Page, filter.PageSize)
}

// AddLineItem godoc
// @Summary      Add a line item
// @Description  Append a billable line to an issued invoice and recalculate it
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body AddLineItemRequest true "Line item request"
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/items [post]
func (h *InvoiceHandler) AddLineItem(c *gin.Context) {
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

	var req AddLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	line, err := toAppLineRequest(req.CreateInvoiceLineRequest)
	if err != nil {
		h.BadRequest(c, "Invalid catalog item ID format")
		return
	}

	inv, err := h.invoiceService.AddLineItem(c.Request.Context(), billingapp.AddInvoiceLineRequest{
		ClubID:          clubID,
		InvoiceID:       invoiceID,
		ExpectedVersion: req.ExpectedVersion,
		Line:            line,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(inv))
}

// ApplyDiscount godoc
// @Summary      Apply a discount
// @Description  Replace the invoice-level discount and recalculate the invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body ApplyDiscountRequest true "Discount request"
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/discount [post]
func (h *InvoiceHandler) ApplyDiscount(c *gin.Context) {
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

	var req ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	inv, err := h.invoiceService.ApplyDiscount(c.Request.Context(), clubID, invoiceID,
		toDecimal(req.Amount), req.ExpectedVersion)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(inv))
}

// CancelInvoice godoc
// @Summary      Cancel an invoice
// @Description  Cancel an invoice that has no collected payments
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Club-ID header string false "Club ID"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body CancelInvoiceRequest true "Cancel request"
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/cancel [post]
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
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

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	inv, err := h.invoiceService.CancelInvoice(c.Request.Context(), clubID, invoiceID,
		req.Reason, req.ExpectedVersion)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(inv))
}

// ===================== Mappers =====================

func toAppLineRequest(line CreateInvoiceLineRequest) (billingapp.CreateInvoiceLineRequest, error) {
	var catalogItemID *uuid.UUID
	if line.CatalogItemID != nil && *line.CatalogItemID != "" {
		id, err := uuid.Parse(*line.CatalogItemID)
		if err != nil {
			return billingapp.CreateInvoiceLineRequest{}, err
		}
		catalogItemID = &id
	}
	return billingapp.CreateInvoiceLineRequest{
		CatalogItemID: catalogItemID,
		Kind:          billing.LineItemKind(line.Kind),
		Description:   line.Description,
		Quantity:      line.Quantity,
		UnitPrice:     toDecimal(line.UnitPrice),
		TaxRate:       toDecimal(line.TaxRate),
	}, nil
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	lineItems := make([]LineItemResponse, len(inv.LineItems))
	for i := range inv.LineItems {
		item := &inv.LineItems[i]
		var catalogItemID *string
		if item.CatalogItemID != nil {
			s := item.CatalogItemID.String()
			catalogItemID = &s
		}
		lineItems[i] = LineItemResponse{
			ID:            item.ID.String(),
			CatalogItemID: catalogItemID,
			Kind:          item.Kind.String(),
			Description:   item.Description,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice.InexactFloat64(),
			TaxRate:       item.TaxRate.InexactFloat64(),
			Subtotal:      item.Subtotal().Amount().InexactFloat64(),
		}
	}

	return InvoiceResponse{
		ID:            inv.ID.String(),
		ClubID:        inv.ClubID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		GuestID:       inv.GuestID.String(),
		GuestName:     inv.GuestName,
		SourceType:    string(inv.SourceType),
		SourceID:      inv.SourceID.String(),
		SourceNumber:  inv.SourceNumber,
		LineItems:     lineItems,
		Subtotal:      inv.Subtotal.InexactFloat64(),
		ServiceCharge: inv.ServiceCharge.InexactFloat64(),
		Tax:           inv.Tax.InexactFloat64(),
		Discount:      inv.Discount.InexactFloat64(),
		Total:         inv.Total.InexactFloat64(),
		AmountPaid:    inv.AmountPaid.InexactFloat64(),
		BalanceDue:    inv.BalanceDue.InexactFloat64(),
		Status:        inv.Status.String(),
		DueDate:       inv.DueDate,
		IssuedAt:      inv.IssuedAt,
		PaidAt:        inv.PaidAt,
		CancelledAt:   inv.CancelledAt,
		CancelReason:  inv.CancelReason,
		Remark:        inv.Remark,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		Version:       inv.Version,
	}
}

func toInvoiceResponses(invoices []billing.Invoice) []InvoiceResponse {
	responses := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		responses[i] = toInvoiceResponse(&invoices[i])
	}
	return responses
}
