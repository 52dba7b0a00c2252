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

func newTestDeposit(t *testing.T, amount string) *Deposit {
	t.Helper()
	bookingID := uuid.New()
	d, err := NewDeposit(
		uuid.New(),
		"DEP-2026-0001",
		uuid.New(),
		"Ada Chen",
		&bookingID,
		valueobject.NewMoneyUSD(decimal.RequireFromString(amount)),
		PaymentMethodCard,
		nil,
	)
	require.NoError(t, err)
	return d
}

func TestNewDeposit(t *testing.T) {
	t.Run("creates pending deposit", func(t *testing.T) {
		d := newTestDeposit(t, "200.00")

		assert.Equal(t, DepositStatusPending, d.Status)
		assert.True(t, d.AppliedAmount.IsZero())
		assert.True(t, d.RemainingAmount().Amount().Equal(decimal.RequireFromString("200.00")))
		assert.Len(t, d.GetDomainEvents(), 1)
	})

	t.Run("rejects DEPOSIT as tender method", func(t *testing.T) {
		_, err := NewDeposit(uuid.New(), "DEP-1", uuid.New(), "Ada", nil,
			valueobject.NewMoneyUSD(decimal.NewFromInt(50)), PaymentMethodDeposit, nil)
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "VALIDATION_ERROR", de.Code)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := NewDeposit(uuid.New(), "DEP-1", uuid.New(), "Ada", nil,
			valueobject.ZeroUSD(), PaymentMethodCash, nil)
		require.Error(t, err)
	})
}

func TestDeposit_MarkCollected(t *testing.T) {
	d := newTestDeposit(t, "200.00")

	require.NoError(t, d.MarkCollected("txn_7001"))
	assert.Equal(t, DepositStatusCollected, d.Status)
	assert.NotNil(t, d.CollectedAt)
	assert.True(t, d.Status.HoldsFunds())

	// idempotent
	assert.NoError(t, d.MarkCollected("txn_7001"))

	d.Status = DepositStatusRefunded
	assert.Error(t, d.MarkCollected("txn_7002"))
}

func TestDeposit_Apply(t *testing.T) {
	t.Run("partial then full application", func(t *testing.T) {
		d := newTestDeposit(t, "200.00")
		require.NoError(t, d.MarkCollected(""))

		require.NoError(t, d.Apply(valueobject.NewMoneyUSD(decimal.NewFromInt(80))))
		assert.Equal(t, DepositStatusPartiallyApplied, d.Status)
		assert.True(t, d.RemainingAmount().Amount().Equal(decimal.NewFromInt(120)))

		require.NoError(t, d.Apply(valueobject.NewMoneyUSD(decimal.NewFromInt(120))))
		assert.Equal(t, DepositStatusFullyApplied, d.Status)
		assert.True(t, d.RemainingAmount().IsZero())
		assert.NotNil(t, d.ClosedAt)
	})

	t.Run("rejects exceeding remainder", func(t *testing.T) {
		d := newTestDeposit(t, "100.00")
		require.NoError(t, d.MarkCollected(""))

		err := d.Apply(valueobject.NewMoneyUSD(decimal.NewFromInt(101)))
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "VALIDATION_ERROR", de.Code)
	})

	t.Run("rejects application before collection", func(t *testing.T) {
		d := newTestDeposit(t, "100.00")
		require.Error(t, d.Apply(valueobject.NewMoneyUSD(decimal.NewFromInt(10))))
	})

	t.Run("rejects application after expiry", func(t *testing.T) {
		d := newTestDeposit(t, "100.00")
		require.NoError(t, d.MarkCollected(""))
		past := time.Now().Add(-time.Hour)
		d.ExpiresAt = &past

		require.Error(t, d.Apply(valueobject.NewMoneyUSD(decimal.NewFromInt(10))))
	})
}

func TestDeposit_Expire(t *testing.T) {
	d := newTestDeposit(t, "100.00")
	require.NoError(t, d.MarkCollected(""))
	expiry := time.Now().Add(-time.Minute)
	d.ExpiresAt = &expiry

	require.NoError(t, d.Expire(time.Now()))
	assert.Equal(t, DepositStatusExpired, d.Status)
	assert.True(t, d.Status.IsTerminal())

	t.Run("not yet expired", func(t *testing.T) {
		d2 := newTestDeposit(t, "100.00")
		require.NoError(t, d2.MarkCollected(""))
		future := time.Now().Add(time.Hour)
		d2.ExpiresAt = &future
		require.Error(t, d2.Expire(time.Now()))
	})

	t.Run("no expiry window set", func(t *testing.T) {
		d3 := newTestDeposit(t, "100.00")
		require.NoError(t, d3.MarkCollected(""))
		require.Error(t, d3.Expire(time.Now()))
	})
}

func TestDeposit_Refund(t *testing.T) {
	d := newTestDeposit(t, "150.00")
	require.NoError(t, d.MarkCollected(""))
	require.NoError(t, d.Apply(valueobject.NewMoneyUSD(decimal.NewFromInt(50))))

	require.NoError(t, d.Refund("rt_9001"))
	assert.Equal(t, DepositStatusRefunded, d.Status)
	assert.NotNil(t, d.ClosedAt)

	t.Run("fully applied deposit cannot be refunded", func(t *testing.T) {
		d2 := newTestDeposit(t, "50.00")
		require.NoError(t, d2.MarkCollected(""))
		require.NoError(t, d2.Apply(valueobject.NewMoneyUSD(decimal.NewFromInt(50))))
		require.Error(t, d2.Refund(""))
	})
}
