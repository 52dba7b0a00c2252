package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/infrastructure/telemetry"
)

// ReconciliationService cross-checks an invoice's stored derived fields
// against what the recalculation engine produces from the ledgers. Drift
// means some write path bypassed the engine; it is reported and, on request,
// repaired by re-running the engine under the invoice lock.
type ReconciliationService struct {
	txScope TransactionScope
	policy  ChargePolicyProvider
	logger  *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(txScope TransactionScope, policy ChargePolicyProvider, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		txScope: txScope,
		policy:  policy,
		logger:  logger,
	}
}

// ReconciliationReport describes how an invoice's stored state compares to
// the ledger-derived state
type ReconciliationReport struct {
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Consistent     bool            `json:"consistent"`
	Repaired       bool            `json:"repaired"`
	StoredTotal    decimal.Decimal `json:"stored_total"`
	DerivedTotal   decimal.Decimal `json:"derived_total"`
	StoredPaid     decimal.Decimal `json:"stored_paid"`
	DerivedPaid    decimal.Decimal `json:"derived_paid"`
	StoredBalance  decimal.Decimal `json:"stored_balance"`
	DerivedBalance decimal.Decimal `json:"derived_balance"`
	StoredStatus   string          `json:"stored_status"`
	DerivedStatus  string          `json:"derived_status"`
}

// VerifyInvoice recomputes the invoice from its ledgers and reports any
// drift. With repair set, a drifting invoice is rewritten with the derived
// values in the same transaction.
func (s *ReconciliationService) VerifyInvoice(ctx context.Context, clubID, invoiceID uuid.UUID, repair bool) (*ReconciliationReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "verify_invoice")
	defer span.End()

	telemetry.SetAttributes(span,
		"invoice_id", invoiceID.String(),
		"repair", repair,
	)

	var report *ReconciliationReport
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := repos.Invoices().FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.ClubID != clubID {
			return shared.ErrNotFound
		}

		payments, err := repos.Payments().SumByInvoice(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to sum payments: %w", err)
		}
		refunds, err := repos.Refunds().SumProcessedByInvoice(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to sum refunds: %w", err)
		}

		stored := *inv
		scratch := *inv
		scratch.LineItems = inv.LineItems

		rc := billing.NewRecalculator(s.policy.Current())
		if err := rc.Recalculate(&scratch, billing.LedgerTotals{PaymentsTotal: payments, RefundsTotal: refunds}); err != nil {
			return err
		}

		report = &ReconciliationReport{
			InvoiceID:      inv.ID,
			InvoiceNumber:  inv.InvoiceNumber,
			StoredTotal:    stored.Total,
			DerivedTotal:   scratch.Total,
			StoredPaid:     stored.AmountPaid,
			DerivedPaid:    scratch.AmountPaid,
			StoredBalance:  stored.BalanceDue,
			DerivedBalance: scratch.BalanceDue,
			StoredStatus:   stored.Status.String(),
			DerivedStatus:  scratch.Status.String(),
		}
		report.Consistent = stored.Total.Equal(scratch.Total) &&
			stored.AmountPaid.Equal(scratch.AmountPaid) &&
			stored.BalanceDue.Equal(scratch.BalanceDue) &&
			stored.Status == scratch.Status

		if report.Consistent || !repair {
			return nil
		}

		if err := rc.Recalculate(inv, billing.LedgerTotals{PaymentsTotal: payments, RefundsTotal: refunds}); err != nil {
			return err
		}
		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}
		report.Repaired = true
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if !report.Consistent {
		s.logger.Warn("Invoice drifted from ledger-derived state",
			zap.String("invoice_number", report.InvoiceNumber),
			zap.String("stored_balance", report.StoredBalance.String()),
			zap.String("derived_balance", report.DerivedBalance.String()),
			zap.Bool("repaired", report.Repaired),
		)
	}

	return report, nil
}

// VerifyAll sweeps the club's invoices page by page and returns the reports
// of the ones that drifted. Intended as a housekeeping job, not a request
// path; each invoice is verified in its own short transaction so the sweep
// never holds more than one row lock at a time.
func (s *ReconciliationService) VerifyAll(ctx context.Context, clubID uuid.UUID, repair bool) ([]ReconciliationReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "verify_all")
	defer span.End()

	var drifted []ReconciliationReport
	filter := shared.DefaultFilter()
	filter.PageSize = 100
	filter.OrderBy = "created_at"
	filter.OrderDir = "asc"

	for page := 1; ; page++ {
		filter.Page = page

		var ids []uuid.UUID
		err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			invoices, err := repos.Invoices().FindAllForClub(ctx, clubID, filter)
			if err != nil {
				return err
			}
			for i := range invoices {
				ids = append(ids, invoices[i].ID)
			}
			return nil
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			report, err := s.VerifyInvoice(ctx, clubID, id, repair)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
			if !report.Consistent {
				drifted = append(drifted, *report)
			}
		}

		if len(ids) < filter.PageSize {
			break
		}
	}

	s.logger.Info("Reconciliation sweep finished",
		zap.String("club_id", clubID.String()),
		zap.Int("drifted", len(drifted)),
	)

	return drifted, nil
}
