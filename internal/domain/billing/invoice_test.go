package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

func newTestInvoice(t *testing.T) *Invoice {
	t.Helper()
	due := time.Now().Add(72 * time.Hour)
	inv, err := NewInvoice(
		uuid.New(),
		"INV-2026-0001",
		uuid.New(),
		"Ada Chen",
		InvoiceSourceTypeBooking,
		uuid.New(),
		"BK-2026-0042",
		&due,
	)
	require.NoError(t, err)
	return inv
}

func addTestLine(t *testing.T, inv *Invoice, price string, qty int64, taxRate string) {
	t.Helper()
	_, err := inv.AddLineItem(
		nil,
		LineItemKindService,
		"Deep tissue massage 60min",
		qty,
		valueobject.NewMoneyUSD(decimal.RequireFromString(price)),
		decimal.RequireFromString(taxRate),
	)
	require.NoError(t, err)
}

func TestNewInvoice(t *testing.T) {
	t.Run("creates draft invoice with zeroed totals", func(t *testing.T) {
		inv := newTestInvoice(t)

		assert.Equal(t, InvoiceStatusDraft, inv.Status)
		assert.True(t, inv.Subtotal.IsZero())
		assert.True(t, inv.Total.IsZero())
		assert.True(t, inv.BalanceDue.IsZero())
		assert.Equal(t, 1, inv.GetVersion())
		assert.Len(t, inv.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeInvoiceCreated, inv.GetDomainEvents()[0].EventType())
	})

	t.Run("validation failures", func(t *testing.T) {
		tests := []struct {
			name    string
			number  string
			guestID uuid.UUID
			guest   string
			source  InvoiceSourceType
		}{
			{"empty invoice number", "", uuid.New(), "Ada", InvoiceSourceTypeBooking},
			{"nil guest", "INV-1", uuid.Nil, "Ada", InvoiceSourceTypeBooking},
			{"empty guest name", "INV-1", uuid.New(), "", InvoiceSourceTypeBooking},
			{"bad source type", "INV-1", uuid.New(), "Ada", InvoiceSourceType("BAD")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewInvoice(uuid.New(), tt.number, tt.guestID, tt.guest, tt.source, uuid.New(), "", nil)
				require.Error(t, err)
				var de *shared.DomainError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, "VALIDATION_ERROR", de.Code)
			})
		}
	})
}

func TestInvoice_Issue(t *testing.T) {
	t.Run("issues draft with line items", func(t *testing.T) {
		inv := newTestInvoice(t)
		addTestLine(t, inv, "120.00", 1, "0.07")

		err := inv.Issue()
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusIssued, inv.Status)
		assert.NotNil(t, inv.IssuedAt)
	})

	t.Run("rejects empty invoice", func(t *testing.T) {
		inv := newTestInvoice(t)
		err := inv.Issue()
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_STATE", de.Code)
	})

	t.Run("idempotent for already issued", func(t *testing.T) {
		inv := newTestInvoice(t)
		addTestLine(t, inv, "120.00", 1, "0.07")
		require.NoError(t, inv.Issue())
		assert.NoError(t, inv.Issue())
	})
}

func TestInvoice_AddLineItem(t *testing.T) {
	t.Run("rejects additions on cancelled invoice", func(t *testing.T) {
		inv := newTestInvoice(t)
		addTestLine(t, inv, "50.00", 1, "0")
		require.NoError(t, inv.Cancel("guest no-show"))

		_, err := inv.AddLineItem(nil, LineItemKindProduct, "Lotion", 1,
			valueobject.NewMoneyUSD(decimal.NewFromInt(20)), decimal.Zero)
		require.Error(t, err)
	})
}

func TestInvoice_RemoveLineItem(t *testing.T) {
	inv := newTestInvoice(t)
	addTestLine(t, inv, "50.00", 1, "0")
	itemID := inv.LineItems[0].ID

	t.Run("removes before payment", func(t *testing.T) {
		require.NoError(t, inv.RemoveLineItem(itemID))
		assert.Equal(t, 0, inv.LineItemCount())
	})

	t.Run("missing item", func(t *testing.T) {
		assert.ErrorIs(t, inv.RemoveLineItem(uuid.New()), shared.ErrNotFound)
	})

	t.Run("blocked once money collected", func(t *testing.T) {
		paid := newTestInvoice(t)
		addTestLine(t, paid, "80.00", 1, "0")
		paid.AmountPaid = decimal.NewFromInt(80)
		err := paid.RemoveLineItem(paid.LineItems[0].ID)
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_STATE", de.Code)
	})
}

func TestInvoice_Cancel(t *testing.T) {
	t.Run("cancels unpaid invoice", func(t *testing.T) {
		inv := newTestInvoice(t)
		addTestLine(t, inv, "50.00", 1, "0")
		require.NoError(t, inv.Issue())

		err := inv.Cancel("duplicate billing")
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusCancelled, inv.Status)
		assert.Equal(t, "duplicate billing", inv.CancelReason)
		assert.True(t, inv.BalanceDue.IsZero())
		assert.NotNil(t, inv.CancelledAt)
	})

	t.Run("requires a reason", func(t *testing.T) {
		inv := newTestInvoice(t)
		require.Error(t, inv.Cancel(""))
	})

	t.Run("blocked when payments exist", func(t *testing.T) {
		inv := newTestInvoice(t)
		addTestLine(t, inv, "50.00", 1, "0")
		inv.AmountPaid = decimal.NewFromInt(10)
		err := inv.Cancel("changed mind")
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_STATE", de.Code)
	})

	t.Run("blocked on terminal status", func(t *testing.T) {
		inv := newTestInvoice(t)
		inv.Status = InvoiceStatusPaid
		require.Error(t, inv.Cancel("too late"))
	})
}

func TestInvoice_MarkRefunded(t *testing.T) {
	t.Run("closes invoice with zero net paid", func(t *testing.T) {
		inv := newTestInvoice(t)
		inv.Status = InvoiceStatusPartial
		inv.AmountPaid = decimal.Zero

		require.NoError(t, inv.MarkRefunded())
		assert.Equal(t, InvoiceStatusRefunded, inv.Status)
	})

	t.Run("idempotent", func(t *testing.T) {
		inv := newTestInvoice(t)
		inv.Status = InvoiceStatusRefunded
		assert.NoError(t, inv.MarkRefunded())
	})

	t.Run("blocked while net paid remains", func(t *testing.T) {
		inv := newTestInvoice(t)
		inv.Status = InvoiceStatusPartial
		inv.AmountPaid = decimal.NewFromInt(30)
		require.Error(t, inv.MarkRefunded())
	})

	t.Run("blocked for cancelled invoice", func(t *testing.T) {
		inv := newTestInvoice(t)
		inv.Status = InvoiceStatusCancelled
		require.Error(t, inv.MarkRefunded())
	})
}

func TestInvoiceStatus(t *testing.T) {
	assert.True(t, InvoiceStatusPaid.IsTerminal())
	assert.True(t, InvoiceStatusCancelled.IsTerminal())
	assert.True(t, InvoiceStatusRefunded.IsTerminal())
	assert.False(t, InvoiceStatusPartial.IsTerminal())

	assert.True(t, InvoiceStatusIssued.CanAcceptPayment())
	assert.True(t, InvoiceStatusPartial.CanAcceptPayment())
	assert.True(t, InvoiceStatusOverdue.CanAcceptPayment())
	assert.False(t, InvoiceStatusDraft.CanAcceptPayment())
	assert.False(t, InvoiceStatusPaid.CanAcceptPayment())

	assert.False(t, InvoiceStatus("NOPE").IsValid())
}

func TestInvoice_IsPastDue(t *testing.T) {
	now := time.Now()

	inv := newTestInvoice(t)
	past := now.Add(-time.Hour)
	inv.DueDate = &past
	inv.Status = InvoiceStatusIssued
	assert.True(t, inv.IsPastDue(now))

	inv.Status = InvoiceStatusPaid
	assert.False(t, inv.IsPastDue(now))

	inv.Status = InvoiceStatusIssued
	inv.DueDate = nil
	assert.False(t, inv.IsPastDue(now))
}
