package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"     // Created but not yet issued to the guest
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"    // Outstanding, no payment received
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"   // Partially paid, 0 < balance < total
	InvoiceStatusPaid      InvoiceStatus = "PAID"      // Fully paid, balance = 0
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"   // Unpaid and past due date
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED" // Cancelled before any payment
	InvoiceStatusRefunded  InvoiceStatus = "REFUNDED"  // Everything collected was returned
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusPartial, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled, InvoiceStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice is in a terminal state
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled || s == InvoiceStatusRefunded
}

// CanAcceptPayment returns true if payments can be recorded in this status
func (s InvoiceStatus) CanAcceptPayment() bool {
	return s == InvoiceStatusIssued || s == InvoiceStatusPartial || s == InvoiceStatusOverdue
}

// isSticky reports whether the recalculation engine must never overwrite
// this status. Draft stays draft until explicitly issued; cancelled and
// refunded are operator decisions, not arithmetic outcomes.
func (s InvoiceStatus) isSticky() bool {
	return s == InvoiceStatusDraft || s == InvoiceStatusCancelled || s == InvoiceStatusRefunded
}

// InvoiceSourceType identifies the upstream document that produced the invoice
type InvoiceSourceType string

const (
	InvoiceSourceTypeBooking InvoiceSourceType = "BOOKING"
	InvoiceSourceTypeManual  InvoiceSourceType = "MANUAL"
)

// IsValid checks if the source type is valid
func (t InvoiceSourceType) IsValid() bool {
	return t == InvoiceSourceTypeBooking || t == InvoiceSourceTypeManual
}

// Invoice is the billing aggregate root. It owns its line items and derives
// subtotal, service charge, tax, discount, total, amount paid and balance due
// from its items and from the payment/refund ledgers. Derived fields are only
// ever written by the recalculation engine; no other code path computes totals.
type Invoice struct {
	shared.ClubAggregateRoot
	InvoiceNumber string            `json:"invoice_number"`
	GuestID       uuid.UUID         `json:"guest_id"`
	GuestName     string            `json:"guest_name"`
	SourceType    InvoiceSourceType `json:"source_type"`
	SourceID      uuid.UUID         `json:"source_id"`
	SourceNumber  string            `json:"source_number"`

	LineItems []LineItem `json:"line_items"`

	Subtotal      decimal.Decimal `json:"subtotal"`
	ServiceCharge decimal.Decimal `json:"service_charge"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	BalanceDue    decimal.Decimal `json:"balance_due"`

	Status       InvoiceStatus `json:"status"`
	DueDate      *time.Time    `json:"due_date"`
	IssuedAt     *time.Time    `json:"issued_at"`
	PaidAt       *time.Time    `json:"paid_at"`
	CancelledAt  *time.Time    `json:"cancelled_at"`
	CancelReason string        `json:"cancel_reason"`
	Remark       string        `json:"remark"`
}

// NewInvoice creates a new invoice in draft state with no line items.
// CreateInvoice at the application layer appends the billable lines and
// issues the invoice in one step.
func NewInvoice(
	clubID uuid.UUID,
	invoiceNumber string,
	guestID uuid.UUID,
	guestName string,
	sourceType InvoiceSourceType,
	sourceID uuid.UUID,
	sourceNumber string,
	dueDate *time.Time,
) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice number cannot exceed 50 characters")
	}
	if guestID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Guest ID cannot be empty")
	}
	if guestName == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Guest name cannot be empty")
	}
	if !sourceType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice source type is not valid")
	}
	if sourceID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Source ID cannot be empty")
	}

	inv := &Invoice{
		ClubAggregateRoot: shared.NewClubAggregateRoot(clubID),
		InvoiceNumber:     invoiceNumber,
		GuestID:           guestID,
		GuestName:         guestName,
		SourceType:        sourceType,
		SourceID:          sourceID,
		SourceNumber:      sourceNumber,
		LineItems:         []LineItem{},
		Subtotal:          decimal.Zero,
		ServiceCharge:     decimal.Zero,
		Tax:               decimal.Zero,
		Discount:          decimal.Zero,
		Total:             decimal.Zero,
		AmountPaid:        decimal.Zero,
		BalanceDue:        decimal.Zero,
		Status:            InvoiceStatusDraft,
		DueDate:           dueDate,
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// AddLineItem appends a billable line. The caller must run the recalculation
// engine before persisting; this method does not touch derived fields.
func (inv *Invoice) AddLineItem(
	catalogItemID *uuid.UUID,
	kind LineItemKind,
	description string,
	quantity int64,
	unitPrice valueobject.Money,
	taxRate decimal.Decimal,
) (*LineItem, error) {
	if inv.Status.IsTerminal() || inv.Status == InvoiceStatusCancelled {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot add line items to invoice in %s status", inv.Status))
	}

	item, err := NewLineItem(inv.ID, catalogItemID, kind, description, quantity, unitPrice, taxRate)
	if err != nil {
		return nil, err
	}

	inv.LineItems = append(inv.LineItems, *item)
	inv.UpdatedAt = time.Now()

	return item, nil
}

// RemoveLineItem removes a line item by ID. Only allowed before any payment
// has been recorded; the ledger must not change shape under collected money.
func (inv *Invoice) RemoveLineItem(itemID uuid.UUID) error {
	if inv.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot remove line items from invoice in %s status", inv.Status))
	}
	if inv.AmountPaid.GreaterThan(decimal.Zero) {
		return shared.NewDomainError("INVALID_STATE", "Cannot remove line items from an invoice with recorded payments")
	}

	for i := range inv.LineItems {
		if inv.LineItems[i].ID == itemID {
			inv.LineItems = append(inv.LineItems[:i], inv.LineItems[i+1:]...)
			inv.UpdatedAt = time.Now()
			return nil
		}
	}
	return shared.ErrNotFound
}

// Issue moves a draft invoice into circulation. Idempotent for already
// issued invoices.
func (inv *Invoice) Issue() error {
	if inv.Status != InvoiceStatusDraft {
		if inv.Status == InvoiceStatusIssued {
			return nil
		}
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot issue invoice in %s status", inv.Status))
	}
	if len(inv.LineItems) == 0 {
		return shared.NewDomainError("INVALID_STATE", "Cannot issue an invoice without line items")
	}

	now := time.Now()
	inv.Status = InvoiceStatusIssued
	inv.IssuedAt = &now
	inv.UpdatedAt = now

	inv.AddDomainEvent(NewInvoiceIssuedEvent(inv))

	return nil
}

// SetDiscount replaces the invoice-level discount. The caller runs the
// recalculation engine afterwards.
func (inv *Invoice) SetDiscount(discount valueobject.Money) error {
	if inv.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify discount on invoice in %s status", inv.Status))
	}
	if discount.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Discount cannot be negative")
	}

	inv.Discount = discount.Amount()
	inv.UpdatedAt = time.Now()

	return nil
}

// Cancel cancels the invoice. Only allowed when nothing has been collected;
// an invoice with payments must go through the refund workflow instead.
func (inv *Invoice) Cancel(reason string) error {
	if inv.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel invoice in %s status", inv.Status))
	}
	if inv.AmountPaid.GreaterThan(decimal.Zero) {
		return shared.NewDomainError("INVALID_STATE", "Cannot cancel an invoice with collected payments; refund them first")
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Cancel reason is required")
	}

	now := time.Now()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.BalanceDue = decimal.Zero
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv))

	return nil
}

// MarkRefunded closes an invoice whose entire collected amount has been
// returned. Guarded so it can only follow a complete refund cycle.
func (inv *Invoice) MarkRefunded() error {
	if inv.Status == InvoiceStatusRefunded {
		return nil
	}
	if inv.Status == InvoiceStatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cannot mark a cancelled invoice as refunded")
	}
	if !inv.AmountPaid.IsZero() {
		return shared.NewDomainError("INVALID_STATE", "Cannot mark invoice refunded while a net paid amount remains")
	}

	now := time.Now()
	inv.Status = InvoiceStatusRefunded
	inv.UpdatedAt = now

	inv.AddDomainEvent(NewInvoiceRefundedEvent(inv))

	return nil
}

// SetRemark sets the free-text remark
func (inv *Invoice) SetRemark(remark string) {
	inv.Remark = remark
	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()
}

// Helper methods

// GetSubtotalMoney returns the subtotal as Money
func (inv *Invoice) GetSubtotalMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.Subtotal)
}

// GetTotalMoney returns the total as Money
func (inv *Invoice) GetTotalMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.Total)
}

// GetAmountPaidMoney returns the net paid amount as Money
func (inv *Invoice) GetAmountPaidMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.AmountPaid)
}

// GetBalanceDueMoney returns the outstanding balance as Money
func (inv *Invoice) GetBalanceDueMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.BalanceDue)
}

// IsPaid returns true if the invoice is fully paid
func (inv *Invoice) IsPaid() bool {
	return inv.Status == InvoiceStatusPaid
}

// IsCancelled returns true if the invoice is cancelled
func (inv *Invoice) IsCancelled() bool {
	return inv.Status == InvoiceStatusCancelled
}

// IsPastDue returns true if the invoice is past its due date and not settled
func (inv *Invoice) IsPastDue(now time.Time) bool {
	if inv.Status.IsTerminal() {
		return false
	}
	if inv.DueDate == nil {
		return false
	}
	return now.After(*inv.DueDate)
}

// LineItemCount returns the number of line items
func (inv *Invoice) LineItemCount() int {
	return len(inv.LineItems)
}
