package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

// PaymentMethod represents how a payment was tendered
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodVoucher      PaymentMethod = "VOUCHER"
	PaymentMethodMemberWallet PaymentMethod = "MEMBER_WALLET"
	PaymentMethodDeposit      PaymentMethod = "DEPOSIT"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer,
		PaymentMethodVoucher, PaymentMethodMemberWallet, PaymentMethodDeposit:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// PaymentType classifies how a ledger entry came to be: a regular tender at
// the desk, a slice of a held deposit, or a manual back-office adjustment.
type PaymentType string

const (
	PaymentTypeRegular            PaymentType = "REGULAR"
	PaymentTypeDepositApplication PaymentType = "DEPOSIT_APPLICATION"
	PaymentTypeManual             PaymentType = "MANUAL"
)

// IsValid checks if the payment type is valid
func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeRegular, PaymentTypeDepositApplication, PaymentTypeManual:
		return true
	}
	return false
}

// String returns the string representation of PaymentType
func (t PaymentType) String() string {
	return string(t)
}

// Payment is an append-only ledger entry recording money collected against an
// invoice. Entries are never edited or deleted after creation; the only
// mutable field is RefundedAmount, which tracks how much of this payment has
// been returned through processed refunds.
type Payment struct {
	shared.ClubAggregateRoot
	PaymentNumber  string          `json:"payment_number"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	GuestID        uuid.UUID       `json:"guest_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         PaymentMethod   `json:"method"`
	Type           PaymentType     `json:"type"`
	Reference      string          `json:"reference"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	DepositID      *uuid.UUID      `json:"deposit_id,omitempty"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	ReceivedAt     time.Time       `json:"received_at"`
	OperatorID     *uuid.UUID      `json:"operator_id"`
	Remark         string          `json:"remark"`
}

// NewPayment creates a new REGULAR payment ledger entry. The amount must be
// strictly positive; the application layer checks it against the invoice
// balance under a row lock before calling this. The idempotency key may be
// empty when the client did not supply one.
func NewPayment(
	clubID uuid.UUID,
	paymentNumber string,
	invoiceID uuid.UUID,
	guestID uuid.UUID,
	amount valueobject.Money,
	method PaymentMethod,
	reference string,
	idempotencyKey string,
) (*Payment, error) {
	if paymentNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment number cannot be empty")
	}
	if invoiceID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice ID cannot be empty")
	}
	if guestID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Guest ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment method is not valid")
	}
	if len(idempotencyKey) > 100 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Idempotency key cannot exceed 100 characters")
	}

	p := &Payment{
		ClubAggregateRoot: shared.NewClubAggregateRoot(clubID),
		PaymentNumber:     paymentNumber,
		InvoiceID:         invoiceID,
		GuestID:           guestID,
		Amount:            amount.Amount(),
		Method:            method,
		Type:              PaymentTypeRegular,
		Reference:         reference,
		IdempotencyKey:    idempotencyKey,
		RefundedAmount:    decimal.Zero,
		ReceivedAt:        time.Now(),
	}

	p.AddDomainEvent(NewPaymentRecordedEvent(p))

	return p, nil
}

// SetOperator records the staff member who took the payment
func (p *Payment) SetOperator(operatorID uuid.UUID) {
	p.OperatorID = &operatorID
	p.SetCreatedBy(operatorID)
}

// MarkDepositApplication tags the entry as a deposit slice and keeps a weak
// back-reference to the deposit it consumed.
func (p *Payment) MarkDepositApplication(depositID uuid.UUID) error {
	if depositID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Deposit ID cannot be empty")
	}
	p.Type = PaymentTypeDepositApplication
	p.DepositID = &depositID
	return nil
}

// MarkManual tags the entry as a manual back-office adjustment
func (p *Payment) MarkManual() {
	p.Type = PaymentTypeManual
}

// RefundableAmount returns how much of this payment can still be refunded
func (p *Payment) RefundableAmount() valueobject.Money {
	return valueobject.NewMoneyUSD(p.Amount.Sub(p.RefundedAmount))
}

// RegisterRefund attributes a processed refund amount to this payment. Fails
// when the cumulative refunded amount would exceed the payment amount.
func (p *Payment) RegisterRefund(amount valueobject.Money) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("VALIDATION_ERROR", "Refund amount must be positive")
	}
	remaining := p.Amount.Sub(p.RefundedAmount)
	if amount.Amount().GreaterThan(remaining) {
		return shared.ErrExcessRefund
	}

	p.RefundedAmount = p.RefundedAmount.Add(amount.Amount())
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	return nil
}

// GetAmountMoney returns the payment amount as Money
func (p *Payment) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(p.Amount)
}

// IsFullyRefunded returns true if the whole payment has been returned
func (p *Payment) IsFullyRefunded() bool {
	return p.RefundedAmount.GreaterThanOrEqual(p.Amount)
}
