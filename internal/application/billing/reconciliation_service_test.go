package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
)

func newReconciliationService(repos *testRepos, t *testing.T) *ReconciliationService {
	return NewReconciliationService(repos.scope, testPolicyProvider(t), zap.NewNop())
}

func TestReconciliationService_VerifyInvoice(t *testing.T) {
	clubID := uuid.New()
	ctx := context.Background()

	t.Run("clean invoice reports consistent", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)

		svc := newReconciliationService(repos, t)
		report, err := svc.VerifyInvoice(ctx, clubID, inv.ID, false)

		require.NoError(t, err)
		assert.True(t, report.Consistent)
		assert.False(t, report.Repaired)
		assert.True(t, report.StoredTotal.Equal(report.DerivedTotal))
		assert.Equal(t, report.StoredStatus, report.DerivedStatus)
		repos.invoices.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
		repos.assertExpectations(t)
	})

	t.Run("drifted invoice reported without repair", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		// The ledger says 60 was collected but the stored row never saw it.
		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.NewFromInt(60), nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)

		svc := newReconciliationService(repos, t)
		report, err := svc.VerifyInvoice(ctx, clubID, inv.ID, false)

		require.NoError(t, err)
		assert.False(t, report.Consistent)
		assert.False(t, report.Repaired)
		assert.True(t, report.StoredPaid.IsZero())
		assert.True(t, report.DerivedPaid.Equal(decimal.NewFromInt(60)))
		assert.True(t, report.DerivedBalance.Equal(decimal.NewFromInt(40)))
		assert.Equal(t, "ISSUED", report.StoredStatus)
		assert.Equal(t, "PARTIAL", report.DerivedStatus)

		// Without repair the stored row must stay untouched.
		repos.invoices.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
		assert.True(t, inv.AmountPaid.IsZero())
		repos.assertExpectations(t)
	})

	t.Run("repair rewrites the drifted invoice", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.NewFromInt(100), nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

		svc := newReconciliationService(repos, t)
		report, err := svc.VerifyInvoice(ctx, clubID, inv.ID, true)

		require.NoError(t, err)
		assert.False(t, report.Consistent)
		assert.True(t, report.Repaired)
		assert.Equal(t, billing.InvoiceStatusPaid, inv.Status)
		assert.True(t, inv.AmountPaid.Equal(decimal.NewFromInt(100)))
		assert.True(t, inv.BalanceDue.IsZero())
		repos.assertExpectations(t)
	})

	t.Run("invoice of another club is not found", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, uuid.New())

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)

		svc := newReconciliationService(repos, t)
		_, err := svc.VerifyInvoice(ctx, clubID, inv.ID, false)

		require.ErrorIs(t, err, shared.ErrNotFound)
		repos.assertExpectations(t)
	})
}

func TestReconciliationService_VerifyAll(t *testing.T) {
	clubID := uuid.New()
	ctx := context.Background()

	t.Run("returns only drifted invoices", func(t *testing.T) {
		repos := newTestRepos()
		clean := issuedInvoice(t, clubID)
		drifted := issuedInvoice(t, clubID)

		repos.invoices.On("FindAllForClub", ctx, clubID, mock.AnythingOfType("shared.Filter")).
			Return([]billing.Invoice{*clean, *drifted}, nil).Once()

		repos.invoices.On("FindByIDForUpdate", ctx, clean.ID).Return(clean, nil)
		repos.payments.On("SumByInvoice", ctx, clean.ID).Return(decimal.Zero, nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, clean.ID).Return(decimal.Zero, nil)

		repos.invoices.On("FindByIDForUpdate", ctx, drifted.ID).Return(drifted, nil)
		repos.payments.On("SumByInvoice", ctx, drifted.ID).Return(decimal.NewFromInt(25), nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, drifted.ID).Return(decimal.Zero, nil)

		svc := newReconciliationService(repos, t)
		reports, err := svc.VerifyAll(ctx, clubID, false)

		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, drifted.ID, reports[0].InvoiceID)
		assert.True(t, reports[0].DerivedPaid.Equal(decimal.NewFromInt(25)))
		repos.assertExpectations(t)
	})

	t.Run("empty club yields no reports", func(t *testing.T) {
		repos := newTestRepos()

		repos.invoices.On("FindAllForClub", ctx, clubID, mock.AnythingOfType("shared.Filter")).
			Return([]billing.Invoice{}, nil).Once()

		svc := newReconciliationService(repos, t)
		reports, err := svc.VerifyAll(ctx, clubID, false)

		require.NoError(t, err)
		assert.Empty(t, reports)
		repos.assertExpectations(t)
	})
}
