package billing

import (
	"context"

	"github.com/spa/backend/internal/domain/billing"
)

// TransactionScope provides transactional access to billing repositories.
// When a function is executed within a transaction scope, all repository
// operations are part of the same database transaction and commit or roll
// back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the billing repositories
// within a transaction. All repositories returned share the same underlying
// database transaction.
//
// Lock ordering: when a single transaction needs both a deposit row lock and
// an invoice row lock, the deposit is always locked first. Every writer
// follows this order so that deposit application and payment recording can
// never deadlock against each other.
type TransactionalRepositories interface {
	// Invoices returns the invoice repository scoped to the current transaction
	Invoices() billing.InvoiceRepository
	// Payments returns the payment ledger repository scoped to the current transaction
	Payments() billing.PaymentRepository
	// Refunds returns the refund ledger repository scoped to the current transaction
	Refunds() billing.RefundRepository
	// Deposits returns the deposit repository scoped to the current transaction
	Deposits() billing.DepositRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. Useful for testing.
type NoOpTransactionScope struct {
	invoiceRepo billing.InvoiceRepository
	paymentRepo billing.PaymentRepository
	refundRepo  billing.RefundRepository
	depositRepo billing.DepositRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	invoiceRepo billing.InvoiceRepository,
	paymentRepo billing.PaymentRepository,
	refundRepo billing.RefundRepository,
	depositRepo billing.DepositRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		depositRepo: depositRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Invoices returns the invoice repository.
func (s *NoOpTransactionScope) Invoices() billing.InvoiceRepository {
	return s.invoiceRepo
}

// Payments returns the payment ledger repository.
func (s *NoOpTransactionScope) Payments() billing.PaymentRepository {
	return s.paymentRepo
}

// Refunds returns the refund ledger repository.
func (s *NoOpTransactionScope) Refunds() billing.RefundRepository {
	return s.refundRepo
}

// Deposits returns the deposit repository.
func (s *NoOpTransactionScope) Deposits() billing.DepositRepository {
	return s.depositRepo
}
