package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

// DepositStatus represents the lifecycle status of a guest deposit
type DepositStatus string

const (
	DepositStatusPending          DepositStatus = "PENDING"           // Requested, money not yet received
	DepositStatusCollected        DepositStatus = "COLLECTED"         // Money held, nothing applied yet
	DepositStatusPartiallyApplied DepositStatus = "PARTIALLY_APPLIED" // Some of the deposit consumed by invoices
	DepositStatusFullyApplied     DepositStatus = "FULLY_APPLIED"     // Entire deposit consumed
	DepositStatusExpired          DepositStatus = "EXPIRED"           // Held past its validity window
	DepositStatusRefunded         DepositStatus = "REFUNDED"          // Unapplied remainder returned to the guest
)

// IsValid checks if the status is a valid DepositStatus
func (s DepositStatus) IsValid() bool {
	switch s {
	case DepositStatusPending, DepositStatusCollected, DepositStatusPartiallyApplied,
		DepositStatusFullyApplied, DepositStatusExpired, DepositStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of DepositStatus
func (s DepositStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the deposit can no longer change state
func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusFullyApplied || s == DepositStatusExpired || s == DepositStatusRefunded
}

// HoldsFunds returns true if the deposit carries an unapplied balance that
// blocks regular payments from the same guest.
func (s DepositStatus) HoldsFunds() bool {
	return s == DepositStatusCollected || s == DepositStatusPartiallyApplied
}

// Deposit is money held on a guest's file ahead of billing, typically taken
// when a booking is made. It is applied to invoices in one or more slices;
// applications are recorded against the deposit itself and appear on the
// invoice's payment ledger as DEPOSIT-method payments.
type Deposit struct {
	shared.ClubAggregateRoot
	DepositNumber string          `json:"deposit_number"`
	GuestID       uuid.UUID       `json:"guest_id"`
	GuestName     string          `json:"guest_name"`
	BookingID     *uuid.UUID      `json:"booking_id"`
	Amount        decimal.Decimal `json:"amount"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	Method        PaymentMethod   `json:"method"`
	Reference     string          `json:"reference"`
	Status        DepositStatus   `json:"status"`
	CollectedAt   *time.Time      `json:"collected_at"`
	ExpiresAt     *time.Time      `json:"expires_at"`
	ClosedAt      *time.Time      `json:"closed_at"`
	Remark        string          `json:"remark"`
}

// NewDeposit creates a deposit in pending state
func NewDeposit(
	clubID uuid.UUID,
	depositNumber string,
	guestID uuid.UUID,
	guestName string,
	bookingID *uuid.UUID,
	amount valueobject.Money,
	method PaymentMethod,
	expiresAt *time.Time,
) (*Deposit, error) {
	if depositNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Deposit number cannot be empty")
	}
	if guestID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Guest ID cannot be empty")
	}
	if guestName == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Guest name cannot be empty")
	}
	if bookingID != nil && *bookingID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Booking ID cannot be the nil UUID")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Deposit amount must be positive")
	}
	if !method.IsValid() || method == PaymentMethodDeposit {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Deposit tender method is not valid")
	}

	d := &Deposit{
		ClubAggregateRoot: shared.NewClubAggregateRoot(clubID),
		DepositNumber:     depositNumber,
		GuestID:           guestID,
		GuestName:         guestName,
		BookingID:         bookingID,
		Amount:            amount.Amount(),
		AppliedAmount:     decimal.Zero,
		Method:            method,
		Status:            DepositStatusPending,
		ExpiresAt:         expiresAt,
	}

	d.AddDomainEvent(NewDepositCreatedEvent(d))

	return d, nil
}

// MarkCollected records that the deposit money was actually received
func (d *Deposit) MarkCollected(reference string) error {
	if d.Status != DepositStatusPending {
		if d.Status == DepositStatusCollected {
			return nil
		}
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot collect deposit in %s status", d.Status))
	}

	now := time.Now()
	d.Status = DepositStatusCollected
	d.Reference = reference
	d.CollectedAt = &now
	d.UpdatedAt = now
	d.IncrementVersion()

	d.AddDomainEvent(NewDepositCollectedEvent(d))

	return nil
}

// RemainingAmount returns the unapplied portion of the deposit
func (d *Deposit) RemainingAmount() valueobject.Money {
	return valueobject.NewMoneyUSD(d.Amount.Sub(d.AppliedAmount))
}

// Apply consumes part of the deposit against an invoice. The amount must not
// exceed the unapplied remainder. Status moves to partially or fully applied
// depending on what is left.
func (d *Deposit) Apply(amount valueobject.Money) error {
	if !d.Status.HoldsFunds() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot apply deposit in %s status", d.Status))
	}
	if d.ExpiresAt != nil && time.Now().After(*d.ExpiresAt) {
		return shared.NewDomainError("INVALID_STATE", "Cannot apply an expired deposit")
	}
	if !amount.IsPositive() {
		return shared.NewDomainError("VALIDATION_ERROR", "Applied amount must be positive")
	}
	remaining := d.Amount.Sub(d.AppliedAmount)
	if amount.Amount().GreaterThan(remaining) {
		return shared.NewDomainError("VALIDATION_ERROR",
			fmt.Sprintf("Applied amount %s exceeds remaining deposit %s", amount.String(), remaining.StringFixed(valueobject.Scale)))
	}

	now := time.Now()
	d.AppliedAmount = d.AppliedAmount.Add(amount.Amount())
	if d.AppliedAmount.GreaterThanOrEqual(d.Amount) {
		d.Status = DepositStatusFullyApplied
		d.ClosedAt = &now
	} else {
		d.Status = DepositStatusPartiallyApplied
	}
	d.UpdatedAt = now
	d.IncrementVersion()

	d.AddDomainEvent(NewDepositAppliedEvent(d, amount.Amount()))

	return nil
}

// Expire closes a deposit whose validity window has passed. The unapplied
// remainder then follows the club's forfeiture policy outside this ledger.
func (d *Deposit) Expire(now time.Time) error {
	if !d.Status.HoldsFunds() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot expire deposit in %s status", d.Status))
	}
	if d.ExpiresAt == nil || now.Before(*d.ExpiresAt) {
		return shared.NewDomainError("INVALID_STATE", "Deposit has not reached its expiry time")
	}

	d.Status = DepositStatusExpired
	d.ClosedAt = &now
	d.UpdatedAt = now
	d.IncrementVersion()

	d.AddDomainEvent(NewDepositExpiredEvent(d))

	return nil
}

// Refund returns the unapplied remainder to the guest and closes the deposit
func (d *Deposit) Refund(reference string) error {
	if !d.Status.HoldsFunds() && d.Status != DepositStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot refund deposit in %s status", d.Status))
	}

	now := time.Now()
	d.Status = DepositStatusRefunded
	if reference != "" {
		d.Reference = reference
	}
	d.ClosedAt = &now
	d.UpdatedAt = now
	d.IncrementVersion()

	d.AddDomainEvent(NewDepositRefundedEvent(d))

	return nil
}

// GetAmountMoney returns the deposit amount as Money
func (d *Deposit) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(d.Amount)
}

// GetAppliedAmountMoney returns the consumed portion as Money
func (d *Deposit) GetAppliedAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(d.AppliedAmount)
}
