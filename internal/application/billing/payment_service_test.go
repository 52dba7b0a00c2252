package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type capturingPublisher struct {
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) types() []string {
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.EventType()
	}
	return out
}

func testPolicyProvider(t *testing.T) ChargePolicyProvider {
	t.Helper()
	policy, err := billing.NewChargePolicy(decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	return NewStaticChargePolicyProvider(policy)
}

// issuedInvoice builds an issued invoice with one 100.00 line, recalculated
// against an empty ledger.
func issuedInvoice(t *testing.T, clubID uuid.UUID) *billing.Invoice {
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

func newPaymentService(repos *testRepos, store shared.IdempotencyStore, t *testing.T) *PaymentService {
	cfg := shared.DefaultIdempotencyConfig()
	if store == nil {
		cfg.Enabled = false
	}
	return NewPaymentService(repos.scope, testPolicyProvider(t), store, cfg, zap.NewNop())
}

func TestPaymentService_RecordPayment(t *testing.T) {
	clubID := uuid.New()
	ctx := context.Background()

	t.Run("full payment marks invoice paid", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-1").Return(nil, shared.ErrNotFound)
		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.deposits.On("FindHeldByGuest", ctx, clubID, inv.GuestID).Return([]billing.Deposit{}, nil)
		repos.payments.On("GeneratePaymentNumber", ctx, clubID).Return("PAY-20260831-00001", nil)
		repos.payments.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.NewFromInt(100), nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

		svc := newPaymentService(repos, nil, t)
		result, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(100),
			Method:         billing.PaymentMethodCard,
			IdempotencyKey: "key-1",
		})

		require.NoError(t, err)
		assert.False(t, result.Duplicate)
		assert.Equal(t, "PAY-20260831-00001", result.Payment.PaymentNumber)
		assert.Equal(t, billing.InvoiceStatusPaid, result.Invoice.Status)
		assert.True(t, result.Invoice.BalanceDue.IsZero())
		repos.assertExpectations(t)
	})

	t.Run("overpayment rejected before any write", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-2").Return(nil, shared.ErrNotFound)
		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.deposits.On("FindHeldByGuest", ctx, clubID, inv.GuestID).Return([]billing.Deposit{}, nil)

		svc := newPaymentService(repos, nil, t)
		_, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(150),
			Method:         billing.PaymentMethodCash,
			IdempotencyKey: "key-2",
		})

		assert.ErrorIs(t, err, shared.ErrOverpayment)
		repos.payments.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("duplicate key replays original entry", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)
		prior, err := billing.NewPayment(clubID, "PAY-20260831-00001", inv.ID, inv.GuestID,
			valueobject.NewMoneyUSD(decimal.NewFromInt(100)), billing.PaymentMethodCard, "", "key-3")
		require.NoError(t, err)

		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-3").Return(prior, nil)
		repos.invoices.On("FindByIDForClub", ctx, clubID, inv.ID).Return(inv, nil)

		svc := newPaymentService(repos, nil, t)
		result, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(100),
			Method:         billing.PaymentMethodCard,
			IdempotencyKey: "key-3",
		})

		require.NoError(t, err)
		assert.True(t, result.Duplicate)
		assert.Equal(t, prior.PaymentNumber, result.Payment.PaymentNumber)
		repos.invoices.AssertNotCalled(t, "FindByIDForUpdate", mock.Anything, mock.Anything)
	})

	t.Run("seen key short-circuits before the invoice lock", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)
		prior, err := billing.NewPayment(clubID, "PAY-20260831-00002", inv.ID, inv.GuestID,
			valueobject.NewMoneyUSD(decimal.NewFromInt(40)), billing.PaymentMethodCash, "", "key-4")
		require.NoError(t, err)

		store := &MockIdempotencyStore{}
		store.On("IsProcessed", ctx, paymentIdempotencyKey(clubID, "key-4")).Return(true, nil)
		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-4").Return(prior, nil)
		repos.invoices.On("FindByIDForClub", ctx, clubID, inv.ID).Return(inv, nil)

		svc := newPaymentService(repos, store, t)
		result, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(40),
			Method:         billing.PaymentMethodCash,
			IdempotencyKey: "key-4",
		})

		require.NoError(t, err)
		assert.True(t, result.Duplicate)
		repos.invoices.AssertNotCalled(t, "FindByIDForUpdate", mock.Anything, mock.Anything)
		store.AssertExpectations(t)
	})

	t.Run("guest with held deposit cannot pay another way", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)
		held := billing.Deposit{Status: billing.DepositStatusCollected}

		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-5").Return(nil, shared.ErrNotFound)
		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.deposits.On("FindHeldByGuest", ctx, clubID, inv.GuestID).Return([]billing.Deposit{held}, nil)

		svc := newPaymentService(repos, nil, t)
		_, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(50),
			Method:         billing.PaymentMethodCash,
			IdempotencyKey: "key-5",
		})

		assert.ErrorIs(t, err, shared.ErrDepositOnFile)
	})

	t.Run("draft invoice rejects payments", func(t *testing.T) {
		repos := newTestRepos()
		inv, err := billing.NewInvoice(clubID, "INV-2", uuid.New(), "Ada",
			billing.InvoiceSourceTypeManual, uuid.New(), "", nil)
		require.NoError(t, err)

		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-6").Return(nil, shared.ErrNotFound)
		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)

		svc := newPaymentService(repos, nil, t)
		_, err = svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(10),
			Method:         billing.PaymentMethodCash,
			IdempotencyKey: "key-6",
		})

		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_STATE", de.Code)
	})

	t.Run("publishes ledger events after the transaction commits", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)
		inv.ClearDomainEvents()

		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-ev").Return(nil, shared.ErrNotFound)
		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.deposits.On("FindHeldByGuest", ctx, clubID, inv.GuestID).Return([]billing.Deposit{}, nil)
		repos.payments.On("GeneratePaymentNumber", ctx, clubID).Return("PAY-20260831-00012", nil)
		repos.payments.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.NewFromInt(100), nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

		pub := &capturingPublisher{}
		svc := newPaymentService(repos, nil, t)
		svc.SetEventPublisher(pub)

		result, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(100),
			Method:         billing.PaymentMethodCard,
			IdempotencyKey: "key-ev",
		})

		require.NoError(t, err)
		assert.Contains(t, pub.types(), billing.EventTypePaymentRecorded)
		assert.Empty(t, result.Payment.GetDomainEvents())
		assert.Empty(t, result.Invoice.GetDomainEvents())
	})

	t.Run("keyless submission skips the duplicate screen", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.deposits.On("FindHeldByGuest", ctx, clubID, inv.GuestID).Return([]billing.Deposit{}, nil)
		repos.payments.On("GeneratePaymentNumber", ctx, clubID).Return("PAY-20260831-00009", nil)
		repos.payments.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.NewFromInt(30), nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

		svc := newPaymentService(repos, nil, t)
		result, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:    clubID,
			InvoiceID: inv.ID,
			Amount:    decimal.NewFromInt(30),
			Method:    billing.PaymentMethodCash,
		})

		require.NoError(t, err)
		assert.False(t, result.Duplicate)
		assert.Empty(t, result.Payment.IdempotencyKey)
		assert.Equal(t, billing.PaymentTypeRegular, result.Payment.Type)
		repos.payments.AssertNotCalled(t, "FindByIdempotencyKey", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("manual adjustment entry keeps its type", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-8").Return(nil, shared.ErrNotFound)
		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.deposits.On("FindHeldByGuest", ctx, clubID, inv.GuestID).Return([]billing.Deposit{}, nil)
		repos.payments.On("GeneratePaymentNumber", ctx, clubID).Return("PAY-20260831-00010", nil)
		repos.payments.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.NewFromInt(20), nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

		svc := newPaymentService(repos, nil, t)
		result, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(20),
			Method:         billing.PaymentMethodCash,
			Type:           billing.PaymentTypeManual,
			IdempotencyKey: "key-8",
		})

		require.NoError(t, err)
		assert.Equal(t, billing.PaymentTypeManual, result.Payment.Type)
	})

	t.Run("deposit application type rejected on this path", func(t *testing.T) {
		repos := newTestRepos()
		svc := newPaymentService(repos, nil, t)
		_, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      uuid.New(),
			Amount:         decimal.NewFromInt(10),
			Method:         billing.PaymentMethodCash,
			Type:           billing.PaymentTypeDepositApplication,
			IdempotencyKey: "key-9",
		})
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "VALIDATION_ERROR", de.Code)
	})

	t.Run("wrong club reads as not found", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, uuid.New())

		repos.payments.On("FindByIdempotencyKey", ctx, clubID, "key-7").Return(nil, shared.ErrNotFound)
		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)

		svc := newPaymentService(repos, nil, t)
		_, err := svc.RecordPayment(ctx, RecordPaymentRequest{
			ClubID:         clubID,
			InvoiceID:      inv.ID,
			Amount:         decimal.NewFromInt(10),
			Method:         billing.PaymentMethodCash,
			IdempotencyKey: "key-7",
		})

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestPaymentService_PartialThenFinalPayment(t *testing.T) {
	clubID := uuid.New()
	ctx := context.Background()
	repos := newTestRepos()
	inv := issuedInvoice(t, clubID)

	repos.payments.On("FindByIdempotencyKey", ctx, clubID, mock.Anything).Return(nil, shared.ErrNotFound)
	repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
	repos.deposits.On("FindHeldByGuest", ctx, clubID, inv.GuestID).Return([]billing.Deposit{}, nil)
	repos.payments.On("GeneratePaymentNumber", ctx, clubID).Return("PAY-20260831-00003", nil)
	repos.payments.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
	repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.NewFromInt(40), nil).Once()
	repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
	repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

	svc := newPaymentService(repos, nil, t)
	result, err := svc.RecordPayment(ctx, RecordPaymentRequest{
		ClubID: clubID, InvoiceID: inv.ID,
		Amount: decimal.NewFromInt(40), Method: billing.PaymentMethodCash, IdempotencyKey: "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPartial, result.Invoice.Status)
	assert.Equal(t, "60", result.Invoice.BalanceDue.String())

	repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.NewFromInt(100), nil).Once()
	result, err = svc.RecordPayment(ctx, RecordPaymentRequest{
		ClubID: clubID, InvoiceID: inv.ID,
		Amount: decimal.NewFromInt(60), Method: billing.PaymentMethodCard, IdempotencyKey: "p2",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, result.Invoice.Status)
	assert.True(t, result.Invoice.BalanceDue.IsZero())
}
