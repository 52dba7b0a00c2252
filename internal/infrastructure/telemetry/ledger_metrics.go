package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics tracks billing activity: invoices issued, payments taken,
// refunds processed and deposits applied, plus gauges over the refund
// approval queue and held deposit liability.
type LedgerMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	invoiceIssuedTotal   *Counter
	paymentTotal         *Counter
	paymentAmountTotal   *Counter
	refundProcessedTotal *Counter
	refundAmountTotal    *Counter
	depositAppliedTotal  *Counter

	pendingRefundCount *Gauge
	heldDepositAmount  *FloatGauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	queueProvider QueueMetricsProvider
}

// QueueMetricsProvider provides ledger queue data for periodic metrics
// collection. The interface keeps the telemetry layer from depending on the
// billing domain directly.
type QueueMetricsProvider interface {
	// GetPendingRefundCount returns the number of refunds awaiting review for a club
	GetPendingRefundCount(ctx context.Context, clubID uuid.UUID) (int64, error)

	// GetHeldDepositAmount returns the total unapplied deposit amount for a club
	GetHeldDepositAmount(ctx context.Context, clubID uuid.UUID) (decimal.Decimal, error)
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	QueueProvider   QueueMetricsProvider
}

// NewLedgerMetrics creates a new LedgerMetrics instance.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		queueProvider: cfg.QueueProvider,
	}

	var err error

	lm.invoiceIssuedTotal, err = NewCounter(
		cfg.Meter,
		"billing_invoice_issued_total",
		"Total number of invoices issued",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	lm.paymentTotal, err = NewCounter(
		cfg.Meter,
		"billing_payment_total",
		"Total number of payments recorded",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	lm.paymentAmountTotal, err = NewCounter(
		cfg.Meter,
		"billing_payment_amount_total",
		"Total payment amount in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	lm.refundProcessedTotal, err = NewCounter(
		cfg.Meter,
		"billing_refund_processed_total",
		"Total number of refunds processed",
		"{refunds}",
	)
	if err != nil {
		return nil, err
	}

	lm.refundAmountTotal, err = NewCounter(
		cfg.Meter,
		"billing_refund_amount_total",
		"Total refunded amount in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	lm.depositAppliedTotal, err = NewCounter(
		cfg.Meter,
		"billing_deposit_applied_total",
		"Total number of deposit applications",
		"{applications}",
	)
	if err != nil {
		return nil, err
	}

	lm.pendingRefundCount, err = NewGauge(
		cfg.Meter,
		"billing_pending_refund_count",
		"Number of refunds awaiting review",
		"{refunds}",
	)
	if err != nil {
		return nil, err
	}

	lm.heldDepositAmount, err = NewFloatGauge(
		cfg.Meter,
		"billing_held_deposit_amount",
		"Total unapplied deposit amount",
		"{currency}",
	)
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// RecordInvoiceIssued records an invoice issue event.
func (lm *LedgerMetrics) RecordInvoiceIssued(ctx context.Context, clubID uuid.UUID) {
	lm.invoiceIssuedTotal.Inc(ctx, AttrClubID.String(clubID.String()))
}

// RecordPayment records a payment with its method and amount.
// Amount is converted to the smallest currency unit (cents).
func (lm *LedgerMetrics) RecordPayment(ctx context.Context, clubID uuid.UUID, method string, amount decimal.Decimal) {
	lm.paymentTotal.Inc(ctx,
		AttrClubID.String(clubID.String()),
		AttrPaymentMethod.String(method),
	)
	amountCents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	lm.paymentAmountTotal.Add(ctx, amountCents,
		AttrClubID.String(clubID.String()),
		AttrPaymentMethod.String(method),
	)
}

// RecordRefundProcessed records a processed refund with its method and amount.
func (lm *LedgerMetrics) RecordRefundProcessed(ctx context.Context, clubID uuid.UUID, method string, amount decimal.Decimal) {
	lm.refundProcessedTotal.Inc(ctx,
		AttrClubID.String(clubID.String()),
		AttrPaymentMethod.String(method),
	)
	amountCents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	lm.refundAmountTotal.Add(ctx, amountCents,
		AttrClubID.String(clubID.String()),
		AttrPaymentMethod.String(method),
	)
}

// RecordDepositApplied records a deposit application event.
func (lm *LedgerMetrics) RecordDepositApplied(ctx context.Context, clubID uuid.UUID) {
	lm.depositAppliedTotal.Inc(ctx, AttrClubID.String(clubID.String()))
}

// ClubProvider provides club IDs for periodic metrics collection.
type ClubProvider interface {
	GetActiveClubIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// Non-blocking; use Stop() to stop collection.
func (lm *LedgerMetrics) StartPeriodicCollection(ctx context.Context, clubProvider ClubProvider, interval time.Duration) {
	lm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go lm.runPeriodicCollection(ctx, clubProvider, interval)
	})
}

func (lm *LedgerMetrics) runPeriodicCollection(ctx context.Context, clubProvider ClubProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lm.collectQueueMetrics(ctx, clubProvider)

	for {
		select {
		case <-lm.stopChan:
			lm.logger.Info("Stopping periodic ledger metrics collection")
			return
		case <-ctx.Done():
			lm.logger.Info("Context cancelled, stopping periodic ledger metrics collection")
			return
		case <-ticker.C:
			lm.collectQueueMetrics(ctx, clubProvider)
		}
	}
}

func (lm *LedgerMetrics) collectQueueMetrics(ctx context.Context, clubProvider ClubProvider) {
	if lm.queueProvider == nil {
		lm.logger.Debug("No queue provider configured, skipping ledger metrics collection")
		return
	}

	clubIDs, err := clubProvider.GetActiveClubIDs(ctx)
	if err != nil {
		lm.logger.Error("Failed to get club IDs for metrics collection", zap.Error(err))
		return
	}

	for _, clubID := range clubIDs {
		lm.collectClubQueueMetrics(ctx, clubID)
	}
}

func (lm *LedgerMetrics) collectClubQueueMetrics(ctx context.Context, clubID uuid.UUID) {
	pendingCount, err := lm.queueProvider.GetPendingRefundCount(ctx, clubID)
	if err != nil {
		lm.logger.Warn("Failed to get pending refund count for club",
			zap.String("club_id", clubID.String()),
			zap.Error(err),
		)
	} else {
		lm.pendingRefundCount.Record(ctx, pendingCount,
			AttrClubID.String(clubID.String()),
		)
	}

	heldAmount, err := lm.queueProvider.GetHeldDepositAmount(ctx, clubID)
	if err != nil {
		lm.logger.Warn("Failed to get held deposit amount for club",
			zap.String("club_id", clubID.String()),
			zap.Error(err),
		)
	} else {
		lm.heldDepositAmount.Record(ctx, heldAmount.InexactFloat64(),
			AttrClubID.String(clubID.String()),
		)
	}
}

// Stop stops the periodic collection.
func (lm *LedgerMetrics) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
