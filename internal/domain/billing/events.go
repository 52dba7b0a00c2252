package billing

import (
	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/shared"
)

// Event types for the billing domain
const (
	EventTypeInvoiceCreated   = "billing.invoice.created"
	EventTypeInvoiceIssued    = "billing.invoice.issued"
	EventTypeInvoiceCancelled = "billing.invoice.cancelled"
	EventTypeInvoiceRefunded  = "billing.invoice.refunded"
	EventTypePaymentRecorded  = "billing.payment.recorded"
	EventTypeRefundRequested  = "billing.refund.requested"
	EventTypeRefundApproved   = "billing.refund.approved"
	EventTypeRefundRejected   = "billing.refund.rejected"
	EventTypeRefundProcessed  = "billing.refund.processed"
	EventTypeRefundCancelled  = "billing.refund.cancelled"
	EventTypeDepositCreated   = "billing.deposit.created"
	EventTypeDepositCollected = "billing.deposit.collected"
	EventTypeDepositApplied   = "billing.deposit.applied"
	EventTypeDepositExpired   = "billing.deposit.expired"
	EventTypeDepositRefunded  = "billing.deposit.refunded"
)

// InvoiceEvent carries the invoice fields that downstream consumers
// (booking status sync, guest notifications) care about.
type InvoiceEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	GuestID       string          `json:"guest_id"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
}

func newInvoiceEvent(eventType string, inv *Invoice) *InvoiceEvent {
	return &InvoiceEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Invoice", inv.ID, inv.ClubID),
		InvoiceNumber:   inv.InvoiceNumber,
		GuestID:         inv.GuestID.String(),
		Status:          inv.Status.String(),
		Total:           inv.Total,
		BalanceDue:      inv.BalanceDue,
	}
}

// NewInvoiceCreatedEvent creates an event for invoice creation
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceEvent {
	return newInvoiceEvent(EventTypeInvoiceCreated, inv)
}

// NewInvoiceIssuedEvent creates an event for invoice issue
func NewInvoiceIssuedEvent(inv *Invoice) *InvoiceEvent {
	return newInvoiceEvent(EventTypeInvoiceIssued, inv)
}

// NewInvoiceCancelledEvent creates an event for invoice cancellation
func NewInvoiceCancelledEvent(inv *Invoice) *InvoiceEvent {
	return newInvoiceEvent(EventTypeInvoiceCancelled, inv)
}

// NewInvoiceRefundedEvent creates an event for a fully refunded invoice
func NewInvoiceRefundedEvent(inv *Invoice) *InvoiceEvent {
	return newInvoiceEvent(EventTypeInvoiceRefunded, inv)
}

// PaymentRecordedEvent is published when a payment lands on the ledger
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentNumber string          `json:"payment_number"`
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
}

// NewPaymentRecordedEvent creates an event for a recorded payment
func NewPaymentRecordedEvent(p *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, "Payment", p.ID, p.ClubID),
		PaymentNumber:   p.PaymentNumber,
		InvoiceID:       p.InvoiceID.String(),
		Amount:          p.Amount,
		Method:          p.Method.String(),
	}
}

// RefundEvent covers all refund workflow transitions
type RefundEvent struct {
	shared.BaseDomainEvent
	RefundNumber string          `json:"refund_number"`
	InvoiceID    string          `json:"invoice_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
}

func newRefundEvent(eventType string, r *Refund) *RefundEvent {
	return &RefundEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Refund", r.ID, r.ClubID),
		RefundNumber:    r.RefundNumber,
		InvoiceID:       r.InvoiceID.String(),
		Amount:          r.Amount,
		Status:          r.Status.String(),
	}
}

// NewRefundRequestedEvent creates an event for a refund request
func NewRefundRequestedEvent(r *Refund) *RefundEvent {
	return newRefundEvent(EventTypeRefundRequested, r)
}

// NewRefundApprovedEvent creates an event for refund approval
func NewRefundApprovedEvent(r *Refund) *RefundEvent {
	return newRefundEvent(EventTypeRefundApproved, r)
}

// NewRefundRejectedEvent creates an event for refund rejection
func NewRefundRejectedEvent(r *Refund) *RefundEvent {
	return newRefundEvent(EventTypeRefundRejected, r)
}

// NewRefundProcessedEvent creates an event for a processed refund
func NewRefundProcessedEvent(r *Refund) *RefundEvent {
	return newRefundEvent(EventTypeRefundProcessed, r)
}

// NewRefundCancelledEvent creates an event for a cancelled refund
func NewRefundCancelledEvent(r *Refund) *RefundEvent {
	return newRefundEvent(EventTypeRefundCancelled, r)
}

// DepositEvent covers deposit lifecycle transitions
type DepositEvent struct {
	shared.BaseDomainEvent
	DepositNumber string          `json:"deposit_number"`
	GuestID       string          `json:"guest_id"`
	Amount        decimal.Decimal `json:"amount"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	Status        string          `json:"status"`
}

func newDepositEvent(eventType string, d *Deposit) *DepositEvent {
	return &DepositEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Deposit", d.ID, d.ClubID),
		DepositNumber:   d.DepositNumber,
		GuestID:         d.GuestID.String(),
		Amount:          d.Amount,
		AppliedAmount:   d.AppliedAmount,
		Status:          d.Status.String(),
	}
}

// NewDepositCreatedEvent creates an event for deposit creation
func NewDepositCreatedEvent(d *Deposit) *DepositEvent {
	return newDepositEvent(EventTypeDepositCreated, d)
}

// NewDepositCollectedEvent creates an event for deposit collection
func NewDepositCollectedEvent(d *Deposit) *DepositEvent {
	return newDepositEvent(EventTypeDepositCollected, d)
}

// NewDepositAppliedEvent creates an event for a deposit application slice
func NewDepositAppliedEvent(d *Deposit, applied decimal.Decimal) *DepositEvent {
	e := newDepositEvent(EventTypeDepositApplied, d)
	e.AppliedAmount = applied
	return e
}

// NewDepositExpiredEvent creates an event for deposit expiry
func NewDepositExpiredEvent(d *Deposit) *DepositEvent {
	return newDepositEvent(EventTypeDepositExpired, d)
}

// NewDepositRefundedEvent creates an event for a refunded deposit
func NewDepositRefundedEvent(d *Deposit) *DepositEvent {
	return newDepositEvent(EventTypeDepositRefunded, d)
}
