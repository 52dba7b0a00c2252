package handler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingapp "github.com/spa/backend/internal/application/billing"
	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

// =============================================================================
// Mock Repositories
// =============================================================================

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAll(ctx context.Context, filter shared.Filter) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, entity *billing.Invoice) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockInvoiceRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDForClub(ctx context.Context, clubID, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, clubID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAllForClub(ctx context.Context, clubID uuid.UUID, filter shared.Filter) ([]billing.Invoice, error) {
	args := m.Called(ctx, clubID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByInvoiceNumber(ctx context.Context, clubID uuid.UUID, invoiceNumber string) (*billing.Invoice, error) {
	args := m.Called(ctx, clubID, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindBySource(ctx context.Context, clubID uuid.UUID, sourceType billing.InvoiceSourceType, sourceID uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, clubID, sourceType, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByGuest(ctx context.Context, clubID, guestID uuid.UUID, filter shared.Filter) ([]billing.Invoice, error) {
	args := m.Called(ctx, clubID, guestID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) GenerateInvoiceNumber(ctx context.Context, clubID uuid.UUID) (string, error) {
	args := m.Called(ctx, clubID)
	return args.String(0), args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindAll(ctx context.Context, filter shared.Filter) ([]billing.Payment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) Save(ctx context.Context, entity *billing.Payment) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockPaymentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPaymentRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentRepository) FindByIDForClub(ctx context.Context, clubID, id uuid.UUID) (*billing.Payment, error) {
	args := m.Called(ctx, clubID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindAllForClub(ctx context.Context, clubID uuid.UUID, filter shared.Filter) ([]billing.Payment, error) {
	args := m.Called(ctx, clubID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Payment, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByIdempotencyKey(ctx context.Context, clubID uuid.UUID, key string) (*billing.Payment, error) {
	args := m.Called(ctx, clubID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) SaveWithLock(ctx context.Context, payment *billing.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GeneratePaymentNumber(ctx context.Context, clubID uuid.UUID) (string, error) {
	args := m.Called(ctx, clubID)
	return args.String(0), args.Error(1)
}

type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) FindAll(ctx context.Context, filter shared.Filter) ([]billing.Refund, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) Save(ctx context.Context, entity *billing.Refund) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockRefundRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRefundRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRefundRepository) FindByIDForClub(ctx context.Context, clubID, id uuid.UUID) (*billing.Refund, error) {
	args := m.Called(ctx, clubID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) FindAllForClub(ctx context.Context, clubID uuid.UUID, filter shared.Filter) ([]billing.Refund, error) {
	args := m.Called(ctx, clubID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Refund, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) FindByStatus(ctx context.Context, clubID uuid.UUID, status billing.RefundStatus, filter shared.Filter) ([]billing.Refund, error) {
	args := m.Called(ctx, clubID, status, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) SumProcessedByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRefundRepository) SumProcessedByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRefundRepository) SaveWithLock(ctx context.Context, refund *billing.Refund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockRefundRepository) GenerateRefundNumber(ctx context.Context, clubID uuid.UUID) (string, error) {
	args := m.Called(ctx, clubID)
	return args.String(0), args.Error(1)
}

type MockDepositRepository struct {
	mock.Mock
}

func (m *MockDepositRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Deposit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Deposit), args.Error(1)
}

func (m *MockDepositRepository) FindAll(ctx context.Context, filter shared.Filter) ([]billing.Deposit, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Deposit), args.Error(1)
}

func (m *MockDepositRepository) Save(ctx context.Context, entity *billing.Deposit) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockDepositRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDepositRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDepositRepository) FindByIDForClub(ctx context.Context, clubID, id uuid.UUID) (*billing.Deposit, error) {
	args := m.Called(ctx, clubID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Deposit), args.Error(1)
}

func (m *MockDepositRepository) FindAllForClub(ctx context.Context, clubID uuid.UUID, filter shared.Filter) ([]billing.Deposit, error) {
	args := m.Called(ctx, clubID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Deposit), args.Error(1)
}

func (m *MockDepositRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Deposit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Deposit), args.Error(1)
}

func (m *MockDepositRepository) FindByGuest(ctx context.Context, clubID, guestID uuid.UUID, filter shared.Filter) ([]billing.Deposit, error) {
	args := m.Called(ctx, clubID, guestID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Deposit), args.Error(1)
}

func (m *MockDepositRepository) FindHeldByGuest(ctx context.Context, clubID, guestID uuid.UUID) ([]billing.Deposit, error) {
	args := m.Called(ctx, clubID, guestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Deposit), args.Error(1)
}

func (m *MockDepositRepository) FindByBooking(ctx context.Context, clubID, bookingID uuid.UUID) (*billing.Deposit, error) {
	args := m.Called(ctx, clubID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Deposit), args.Error(1)
}

func (m *MockDepositRepository) SaveWithLock(ctx context.Context, deposit *billing.Deposit) error {
	args := m.Called(ctx, deposit)
	return args.Error(0)
}

func (m *MockDepositRepository) GenerateDepositNumber(ctx context.Context, clubID uuid.UUID) (string, error) {
	args := m.Called(ctx, clubID)
	return args.String(0), args.Error(1)
}

// =============================================================================
// Test fixtures
// =============================================================================

type testRepos struct {
	invoices *MockInvoiceRepository
	payments *MockPaymentRepository
	refunds  *MockRefundRepository
	deposits *MockDepositRepository
	scope    *billingapp.NoOpTransactionScope
}

func newTestRepos() *testRepos {
	r := &testRepos{
		invoices: &MockInvoiceRepository{},
		payments: &MockPaymentRepository{},
		refunds:  &MockRefundRepository{},
		deposits: &MockDepositRepository{},
	}
	r.scope = billingapp.NewNoOpTransactionScope(r.invoices, r.payments, r.refunds, r.deposits)
	return r
}

func (r *testRepos) assertExpectations(t mock.TestingT) {
	r.invoices.AssertExpectations(t)
	r.payments.AssertExpectations(t)
	r.refunds.AssertExpectations(t)
	r.deposits.AssertExpectations(t)
}

func zeroRatePolicy(t *testing.T) billingapp.ChargePolicyProvider {
	t.Helper()
	policy, err := billing.NewChargePolicy(decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	return billingapp.NewStaticChargePolicyProvider(policy)
}

// testIssuedInvoice builds an issued invoice with one 100.00 line,
// recalculated against an empty ledger.
func testIssuedInvoice(t *testing.T, clubID uuid.UUID) *billing.Invoice {
	t.Helper()
	inv, err := billing.NewInvoice(clubID, "INV-20260831-00001", uuid.New(), "Ada Chen",
		billing.InvoiceSourceTypeBooking, uuid.New(), "BK-1", nil)
	require.NoError(t, err)
	_, err = inv.AddLineItem(nil, billing.LineItemKindService, "Massage", 1,
		valueobject.NewMoneyUSD(decimal.NewFromInt(100)), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, inv.Issue())

	policy, err := billing.NewChargePolicy(decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	rc := billing.NewRecalculator(policy)
	require.NoError(t, rc.Recalculate(inv, billing.LedgerTotals{
		PaymentsTotal: decimal.Zero, RefundsTotal: decimal.Zero,
	}))
	return inv
}
