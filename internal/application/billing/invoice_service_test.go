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

func newInvoiceService(repos *testRepos, t *testing.T) *InvoiceService {
	policy, err := billing.NewChargePolicy(
		decimal.RequireFromString("0.07"), decimal.RequireFromString("0.10"))
	require.NoError(t, err)
	return NewInvoiceService(repos.scope, NewStaticChargePolicyProvider(policy), zap.NewNop())
}

func TestInvoiceService_CreateInvoice(t *testing.T) {
	clubID := uuid.New()
	ctx := context.Background()

	lines := []CreateInvoiceLineRequest{
		{
			Kind:        billing.LineItemKindService,
			Description: "Swedish massage 90min",
			Quantity:    1,
			UnitPrice:   decimal.RequireFromString("180.00"),
			TaxRate:     decimal.RequireFromString("0.07"),
		},
		{
			Kind:        billing.LineItemKindProduct,
			Description: "Aromatherapy oil",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("24.00"),
			TaxRate:     decimal.RequireFromString("0.07"),
		},
	}

	t.Run("creates and issues in one pass", func(t *testing.T) {
		repos := newTestRepos()
		sourceID := uuid.New()

		repos.invoices.On("FindBySource", ctx, clubID, billing.InvoiceSourceTypeBooking, sourceID).
			Return(nil, shared.ErrNotFound)
		repos.invoices.On("GenerateInvoiceNumber", ctx, clubID).Return("INV-20260831-00001", nil)
		repos.invoices.On("Save", ctx, mock.AnythingOfType("*billing.Invoice")).Return(nil)

		svc := newInvoiceService(repos, t)
		inv, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ClubID:       clubID,
			GuestID:      uuid.New(),
			GuestName:    "Ada Chen",
			SourceType:   billing.InvoiceSourceTypeBooking,
			SourceID:     sourceID,
			SourceNumber: "BK-2026-0042",
			Lines:        lines,
		})

		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusIssued, inv.Status)
		assert.Equal(t, 2, inv.LineItemCount())
		// subtotal 228.00, service charge 22.80, tax 15.96
		assert.Equal(t, "228", inv.Subtotal.String())
		assert.Equal(t, "22.8", inv.ServiceCharge.String())
		assert.Equal(t, "15.96", inv.Tax.String())
		assert.Equal(t, "266.76", inv.Total.String())
		assert.Equal(t, inv.Total.String(), inv.BalanceDue.String())
		repos.assertExpectations(t)
	})

	t.Run("same source returns the existing invoice", func(t *testing.T) {
		repos := newTestRepos()
		sourceID := uuid.New()
		existing := issuedInvoice(t, clubID)

		repos.invoices.On("FindBySource", ctx, clubID, billing.InvoiceSourceTypeBooking, sourceID).
			Return(existing, nil)

		svc := newInvoiceService(repos, t)
		inv, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ClubID:     clubID,
			GuestID:    existing.GuestID,
			GuestName:  "Ada Chen",
			SourceType: billing.InvoiceSourceTypeBooking,
			SourceID:   sourceID,
			Lines:      lines,
		})

		require.NoError(t, err)
		assert.Equal(t, existing.InvoiceNumber, inv.InvoiceNumber)
		repos.invoices.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("no lines rejected", func(t *testing.T) {
		repos := newTestRepos()
		svc := newInvoiceService(repos, t)
		_, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ClubID:     clubID,
			GuestID:    uuid.New(),
			GuestName:  "Ada Chen",
			SourceType: billing.InvoiceSourceTypeManual,
			SourceID:   uuid.New(),
		})
		require.Error(t, err)
	})

	t.Run("discount reduces the total", func(t *testing.T) {
		repos := newTestRepos()
		sourceID := uuid.New()

		repos.invoices.On("FindBySource", ctx, clubID, billing.InvoiceSourceTypeManual, sourceID).
			Return(nil, shared.ErrNotFound)
		repos.invoices.On("GenerateInvoiceNumber", ctx, clubID).Return("INV-20260831-00002", nil)
		repos.invoices.On("Save", ctx, mock.AnythingOfType("*billing.Invoice")).Return(nil)

		svc := newInvoiceService(repos, t)
		inv, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ClubID:     clubID,
			GuestID:    uuid.New(),
			GuestName:  "Ada Chen",
			SourceType: billing.InvoiceSourceTypeManual,
			SourceID:   sourceID,
			Discount:   decimal.NewFromInt(20),
			Lines:      lines,
		})

		require.NoError(t, err)
		assert.Equal(t, "246.76", inv.Total.String())
	})
}

func TestInvoiceService_CancelInvoice(t *testing.T) {
	clubID := uuid.New()
	ctx := context.Background()

	t.Run("cancels unpaid invoice", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

		svc := newInvoiceService(repos, t)
		result, err := svc.CancelInvoice(ctx, clubID, inv.ID, "guest no-show", 0)

		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusCancelled, result.Status)
	})

	t.Run("other club's invoice is not found", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, uuid.New())

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)

		svc := newInvoiceService(repos, t)
		_, err := svc.CancelInvoice(ctx, clubID, inv.ID, "wrong club", 0)

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("stale client version is a conflict", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)
		inv.Version = 3

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)

		svc := newInvoiceService(repos, t)
		_, err := svc.CancelInvoice(ctx, clubID, inv.ID, "stale", 2)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		repos.invoices.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})
}

func TestInvoiceService_AddLineItem(t *testing.T) {
	clubID := uuid.New()
	ctx := context.Background()

	t.Run("recalculates after adding", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

		svc := NewInvoiceService(repos.scope, testPolicyProvider(t), zap.NewNop())
		result, err := svc.AddLineItem(ctx, AddInvoiceLineRequest{
			ClubID:    clubID,
			InvoiceID: inv.ID,
			Line: CreateInvoiceLineRequest{
				Kind:        billing.LineItemKindProduct,
				Description: "Bath robe",
				Quantity:    1,
				UnitPrice:   decimal.RequireFromString("60.00"),
				TaxRate:     decimal.Zero,
			},
		})

		require.NoError(t, err)
		assert.Equal(t, 2, result.LineItemCount())
		// issuedInvoice carries one 100.00 untaxed line with zero rates,
		// so the new line lands directly on the total
		assert.Equal(t, "160", result.Total.String())
	})

	t.Run("version mismatch rejected before mutation", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)
		inv.Version = 5

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)

		svc := newInvoiceService(repos, t)
		_, err := svc.AddLineItem(ctx, AddInvoiceLineRequest{
			ClubID:          clubID,
			InvoiceID:       inv.ID,
			ExpectedVersion: 4,
			Line: CreateInvoiceLineRequest{
				Kind:        billing.LineItemKindProduct,
				Description: "Bath robe",
				Quantity:    1,
				UnitPrice:   decimal.RequireFromString("60.00"),
			},
		})

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, inv.LineItemCount())
	})
}

func TestInvoiceService_ApplyDiscount(t *testing.T) {
	clubID := uuid.New()
	ctx := context.Background()

	t.Run("discount lowers the balance", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)
		repos.payments.On("SumByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.refunds.On("SumProcessedByInvoice", ctx, inv.ID).Return(decimal.Zero, nil)
		repos.invoices.On("SaveWithLock", ctx, inv).Return(nil)

		svc := NewInvoiceService(repos.scope, testPolicyProvider(t), zap.NewNop())
		result, err := svc.ApplyDiscount(ctx, clubID, inv.ID, decimal.NewFromInt(25), 0)

		require.NoError(t, err)
		assert.Equal(t, "75", result.Total.String())
		assert.Equal(t, "75", result.BalanceDue.String())
	})

	t.Run("negative discount rejected", func(t *testing.T) {
		repos := newTestRepos()
		inv := issuedInvoice(t, clubID)

		repos.invoices.On("FindByIDForUpdate", ctx, inv.ID).Return(inv, nil)

		svc := newInvoiceService(repos, t)
		_, err := svc.ApplyDiscount(ctx, clubID, inv.ID, decimal.NewFromInt(-5), 0)

		require.Error(t, err)
		repos.invoices.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})
}
