package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

// RefundStatus represents the approval workflow state of a refund
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"   // Requested, awaiting approval
	RefundStatusApproved  RefundStatus = "APPROVED"  // Approved, money not yet returned
	RefundStatusProcessed RefundStatus = "PROCESSED" // Money returned to the guest
	RefundStatusRejected  RefundStatus = "REJECTED"  // Declined by the approver
	RefundStatusCancelled RefundStatus = "CANCELLED" // Withdrawn before processing
)

// IsValid checks if the status is a valid RefundStatus
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPending, RefundStatusApproved, RefundStatusProcessed,
		RefundStatusRejected, RefundStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of RefundStatus
func (s RefundStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the refund can no longer change state
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusProcessed || s == RefundStatusRejected || s == RefundStatusCancelled
}

// AffectsBalance returns true if the refund counts against the invoice.
// Only processed refunds move money; pending and approved ones are intent.
func (s RefundStatus) AffectsBalance() bool {
	return s == RefundStatusProcessed
}

// RefundMethod represents how the money is returned to the guest
type RefundMethod string

const (
	RefundMethodOriginal     RefundMethod = "ORIGINAL"      // Back onto the original tender
	RefundMethodCash         RefundMethod = "CASH"
	RefundMethodBankTransfer RefundMethod = "BANK_TRANSFER"
	RefundMethodMemberWallet RefundMethod = "MEMBER_WALLET"
)

// IsValid checks if the refund method is valid
func (m RefundMethod) IsValid() bool {
	switch m {
	case RefundMethodOriginal, RefundMethodCash, RefundMethodBankTransfer, RefundMethodMemberWallet:
		return true
	}
	return false
}

// Refund is a ledger entry for money returned to a guest, driven by a
// request/approve/process workflow. A refund may target a specific payment
// (bounded by that payment's refundable remainder) or the invoice as a whole
// (bounded by the invoice's net paid amount at processing time).
type Refund struct {
	shared.ClubAggregateRoot
	RefundNumber string          `json:"refund_number"`
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	PaymentID    *uuid.UUID      `json:"payment_id"`
	GuestID      uuid.UUID       `json:"guest_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       RefundMethod    `json:"method"`
	Reason       string          `json:"reason"`
	Status       RefundStatus    `json:"status"`

	RequestedBy uuid.UUID  `json:"requested_by"`
	RequestedAt time.Time  `json:"requested_at"`
	ReviewedBy  *uuid.UUID `json:"reviewed_by"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewNote  string     `json:"review_note"`
	ProcessedBy *uuid.UUID `json:"processed_by"`
	ProcessedAt *time.Time `json:"processed_at"`
	Reference   string     `json:"reference"`
}

// NewRefund creates a refund request in pending state. The amount ceiling is
// enforced at processing time under a row lock, not here, because other
// refunds may process between request and approval.
func NewRefund(
	clubID uuid.UUID,
	refundNumber string,
	invoiceID uuid.UUID,
	paymentID *uuid.UUID,
	guestID uuid.UUID,
	amount valueobject.Money,
	method RefundMethod,
	reason string,
	requestedBy uuid.UUID,
) (*Refund, error) {
	if refundNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Refund number cannot be empty")
	}
	if invoiceID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice ID cannot be empty")
	}
	if paymentID != nil && *paymentID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment ID cannot be the nil UUID")
	}
	if guestID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Guest ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Refund amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Refund method is not valid")
	}
	if reason == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Refund reason is required")
	}
	if len(reason) > 500 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Refund reason cannot exceed 500 characters")
	}
	if requestedBy == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Requesting operator ID cannot be empty")
	}

	r := &Refund{
		ClubAggregateRoot: shared.NewClubAggregateRoot(clubID),
		RefundNumber:      refundNumber,
		InvoiceID:         invoiceID,
		PaymentID:         paymentID,
		GuestID:           guestID,
		Amount:            amount.Amount(),
		Method:            method,
		Reason:            reason,
		Status:            RefundStatusPending,
		RequestedBy:       requestedBy,
		RequestedAt:       time.Now(),
	}
	r.SetCreatedBy(requestedBy)

	r.AddDomainEvent(NewRefundRequestedEvent(r))

	return r, nil
}

// Approve moves a pending refund to approved. The approver must be a
// different operator than the requester.
func (r *Refund) Approve(reviewerID uuid.UUID, note string) error {
	if r.Status != RefundStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot approve refund in %s status", r.Status))
	}
	if reviewerID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Reviewer ID cannot be empty")
	}
	if reviewerID == r.RequestedBy {
		return shared.NewDomainError("VALIDATION_ERROR", "Refund cannot be approved by its requester")
	}

	now := time.Now()
	r.Status = RefundStatusApproved
	r.ReviewedBy = &reviewerID
	r.ReviewedAt = &now
	r.ReviewNote = note
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRefundApprovedEvent(r))

	return nil
}

// Reject declines a pending refund
func (r *Refund) Reject(reviewerID uuid.UUID, note string) error {
	if r.Status != RefundStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot reject refund in %s status", r.Status))
	}
	if reviewerID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Reviewer ID cannot be empty")
	}
	if note == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Rejection requires a review note")
	}

	now := time.Now()
	r.Status = RefundStatusRejected
	r.ReviewedBy = &reviewerID
	r.ReviewedAt = &now
	r.ReviewNote = note
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRefundRejectedEvent(r))

	return nil
}

// Process marks a refund as paid out, from either PENDING or APPROVED; a
// clerk with processing rights may skip the separate approval step. This is
// the only transition that affects the invoice balance; the application layer
// performs it under the invoice row lock and re-runs the recalculation engine.
func (r *Refund) Process(operatorID uuid.UUID, reference string) error {
	if r.Status != RefundStatusPending && r.Status != RefundStatusApproved {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot process refund in %s status", r.Status))
	}
	if operatorID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Processing operator ID cannot be empty")
	}

	now := time.Now()
	r.Status = RefundStatusProcessed
	r.ProcessedBy = &operatorID
	r.ProcessedAt = &now
	r.Reference = reference
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRefundProcessedEvent(r))

	return nil
}

// Cancel withdraws a refund that has not been processed yet
func (r *Refund) Cancel(operatorID uuid.UUID, note string) error {
	if r.Status != RefundStatusPending && r.Status != RefundStatusApproved {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel refund in %s status", r.Status))
	}
	if operatorID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Operator ID cannot be empty")
	}

	now := time.Now()
	r.Status = RefundStatusCancelled
	r.ReviewedBy = &operatorID
	r.ReviewedAt = &now
	if note != "" {
		r.ReviewNote = note
	}
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRefundCancelledEvent(r))

	return nil
}

// GetAmountMoney returns the refund amount as Money
func (r *Refund) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(r.Amount)
}

// IsTargeted returns true if the refund is tied to a specific payment
func (r *Refund) IsTargeted() bool {
	return r.PaymentID != nil
}
