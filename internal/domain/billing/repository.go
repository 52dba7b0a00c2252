package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/shared"
)

// InvoiceRepository persists the invoice aggregate with its line items
type InvoiceRepository interface {
	shared.ClubRepository[Invoice]
	// FindByIDForUpdate loads the invoice under a row lock. Must run
	// inside a transaction; the lock is held until commit or rollback.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByInvoiceNumber(ctx context.Context, clubID uuid.UUID, invoiceNumber string) (*Invoice, error)
	FindBySource(ctx context.Context, clubID uuid.UUID, sourceType InvoiceSourceType, sourceID uuid.UUID) (*Invoice, error)
	FindByGuest(ctx context.Context, clubID, guestID uuid.UUID, filter shared.Filter) ([]Invoice, error)
	// SaveWithLock updates the invoice only if the stored version matches
	// the version the aggregate was loaded at. Returns a concurrency
	// conflict error when another writer got there first.
	SaveWithLock(ctx context.Context, invoice *Invoice) error
	// GenerateInvoiceNumber issues the next INV-YYYYMMDD-XXXXX number
	// for the club.
	GenerateInvoiceNumber(ctx context.Context, clubID uuid.UUID) (string, error)
}

// PaymentRepository persists the append-only payment ledger
type PaymentRepository interface {
	shared.ClubRepository[Payment]
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)
	// FindByIdempotencyKey looks up an earlier submission with the same
	// key. Returns shared.ErrNotFound when the key is unused.
	FindByIdempotencyKey(ctx context.Context, clubID uuid.UUID, key string) (*Payment, error)
	// SumByInvoice totals all recorded payments for an invoice. Called
	// inside the transaction that holds the invoice row lock.
	SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	SaveWithLock(ctx context.Context, payment *Payment) error
	GeneratePaymentNumber(ctx context.Context, clubID uuid.UUID) (string, error)
}

// RefundRepository persists the refund ledger and its workflow state
type RefundRepository interface {
	shared.ClubRepository[Refund]
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Refund, error)
	FindByStatus(ctx context.Context, clubID uuid.UUID, status RefundStatus, filter shared.Filter) ([]Refund, error)
	// SumProcessedByInvoice totals processed refunds for an invoice.
	SumProcessedByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	// SumProcessedByPayment totals processed refunds targeted at one payment.
	SumProcessedByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error)
	SaveWithLock(ctx context.Context, refund *Refund) error
	GenerateRefundNumber(ctx context.Context, clubID uuid.UUID) (string, error)
}

// DepositRepository persists guest deposits
type DepositRepository interface {
	shared.ClubRepository[Deposit]
	// FindByIDForUpdate loads the deposit under a row lock. Must run
	// inside a transaction. Deposit locks are always taken before any
	// invoice lock in the same transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Deposit, error)
	FindByGuest(ctx context.Context, clubID, guestID uuid.UUID, filter shared.Filter) ([]Deposit, error)
	// FindHeldByGuest returns deposits that still carry unapplied funds
	// for the guest. Used to block regular payments while a deposit is
	// on file.
	FindHeldByGuest(ctx context.Context, clubID, guestID uuid.UUID) ([]Deposit, error)
	FindByBooking(ctx context.Context, clubID, bookingID uuid.UUID) (*Deposit, error)
	SaveWithLock(ctx context.Context, deposit *Deposit) error
	GenerateDepositNumber(ctx context.Context, clubID uuid.UUID) (string, error)
}
