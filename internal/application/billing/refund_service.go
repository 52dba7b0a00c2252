package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
	"github.com/spa/backend/internal/infrastructure/telemetry"
)

// RefundService drives the refund workflow: request, approve or reject,
// process, cancel. Only processing touches invoice balances; everything
// before it is bookkeeping of intent.
type RefundService struct {
	txScope TransactionScope
	policy  ChargePolicyProvider
	metrics *telemetry.LedgerMetrics
	events  shared.EventPublisher
	logger  *zap.Logger
}

// SetMetrics attaches ledger metrics recording. Safe to leave unset.
func (s *RefundService) SetMetrics(m *telemetry.LedgerMetrics) {
	s.metrics = m
}

// SetEventPublisher attaches post-commit event publication. Safe to leave unset.
func (s *RefundService) SetEventPublisher(p shared.EventPublisher) {
	s.events = p
}

// NewRefundService creates a new RefundService
func NewRefundService(txScope TransactionScope, policy ChargePolicyProvider, logger *zap.Logger) *RefundService {
	return &RefundService{
		txScope: txScope,
		policy:  policy,
		logger:  logger,
	}
}

// RequestRefundRequest asks for money back on an invoice, optionally pinned
// to one payment
type RequestRefundRequest struct {
	ClubID      uuid.UUID
	InvoiceID   uuid.UUID
	PaymentID   *uuid.UUID
	Amount      decimal.Decimal
	Method      billing.RefundMethod
	Reason      string
	RequestedBy uuid.UUID
}

// RequestRefund creates a pending refund. The amount is checked against the
// current ledger for early feedback; the binding check happens again at
// processing time under the invoice lock, because other refunds may land in
// between.
func (s *RefundService) RequestRefund(ctx context.Context, req RequestRefundRequest) (*billing.Refund, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "refund", "request")
	defer span.End()

	telemetry.SetAttributes(span,
		"club_id", req.ClubID.String(),
		"invoice_id", req.InvoiceID.String(),
		"amount", req.Amount.String(),
	)

	var result *billing.Refund
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := repos.Invoices().FindByIDForClub(ctx, req.ClubID, req.InvoiceID)
		if err != nil {
			return err
		}

		if req.PaymentID != nil {
			payment, err := repos.Payments().FindByIDForClub(ctx, req.ClubID, *req.PaymentID)
			if err != nil {
				return err
			}
			if payment.InvoiceID != inv.ID {
				return shared.NewDomainError("VALIDATION_ERROR", "Payment does not belong to this invoice")
			}
			if req.Amount.GreaterThan(payment.RefundableAmount().Amount()) {
				return shared.ErrExcessRefund
			}
		} else if req.Amount.GreaterThan(inv.AmountPaid) {
			return shared.ErrExcessRefund
		}

		number, err := repos.Refunds().GenerateRefundNumber(ctx, req.ClubID)
		if err != nil {
			return fmt.Errorf("failed to generate refund number: %w", err)
		}

		refund, err := billing.NewRefund(req.ClubID, number, inv.ID, req.PaymentID, inv.GuestID,
			valueobject.NewMoneyUSD(req.Amount), req.Method, req.Reason, req.RequestedBy)
		if err != nil {
			return err
		}

		if err := repos.Refunds().Save(ctx, refund); err != nil {
			return fmt.Errorf("failed to save refund: %w", err)
		}

		result = refund
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	publishEvents(ctx, s.events, s.logger, result)

	s.logger.Info("Refund requested",
		zap.String("refund_number", result.RefundNumber),
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("amount", req.Amount.String()),
	)

	return result, nil
}

// ApproveRefund moves a pending refund to approved
func (s *RefundService) ApproveRefund(ctx context.Context, clubID, refundID, reviewerID uuid.UUID, note string) (*billing.Refund, error) {
	return s.review(ctx, "approve", clubID, refundID, func(r *billing.Refund) error {
		return r.Approve(reviewerID, note)
	})
}

// RejectRefund declines a pending refund
func (s *RefundService) RejectRefund(ctx context.Context, clubID, refundID, reviewerID uuid.UUID, note string) (*billing.Refund, error) {
	return s.review(ctx, "reject", clubID, refundID, func(r *billing.Refund) error {
		return r.Reject(reviewerID, note)
	})
}

// CancelRefund withdraws a refund that has not been processed
func (s *RefundService) CancelRefund(ctx context.Context, clubID, refundID, operatorID uuid.UUID, note string) (*billing.Refund, error) {
	return s.review(ctx, "cancel", clubID, refundID, func(r *billing.Refund) error {
		return r.Cancel(operatorID, note)
	})
}

func (s *RefundService) review(ctx context.Context, op string, clubID, refundID uuid.UUID, transition func(*billing.Refund) error) (*billing.Refund, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "refund", op)
	defer span.End()

	telemetry.SetAttributes(span, "refund_id", refundID.String())

	var result *billing.Refund
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		refund, err := repos.Refunds().FindByIDForClub(ctx, clubID, refundID)
		if err != nil {
			return err
		}

		if err := transition(refund); err != nil {
			return err
		}

		if err := repos.Refunds().SaveWithLock(ctx, refund); err != nil {
			return err
		}

		result = refund
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	publishEvents(ctx, s.events, s.logger, result)

	s.logger.Info("Refund reviewed",
		zap.String("refund_number", result.RefundNumber),
		zap.String("operation", op),
		zap.String("status", result.Status.String()),
	)

	return result, nil
}

// ProcessRefundResult is the outcome of processing a refund
type ProcessRefundResult struct {
	Refund  *billing.Refund  `json:"refund"`
	Invoice *billing.Invoice `json:"invoice"`
}

// ProcessRefund pays out an approved refund. The invoice is locked, the
// amount is checked against what is actually still refundable, the refund is
// marked processed and the invoice recalculated, all in one transaction.
func (s *RefundService) ProcessRefund(ctx context.Context, clubID, refundID, operatorID uuid.UUID, reference string) (*ProcessRefundResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "refund", "process")
	defer span.End()

	telemetry.SetAttributes(span,
		"club_id", clubID.String(),
		"refund_id", refundID.String(),
	)

	var result *ProcessRefundResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		refund, err := repos.Refunds().FindByIDForClub(ctx, clubID, refundID)
		if err != nil {
			return err
		}

		inv, err := repos.Invoices().FindByIDForUpdate(ctx, refund.InvoiceID)
		if err != nil {
			return err
		}
		if inv.ClubID != clubID {
			return shared.ErrNotFound
		}

		// Every refund is bounded by the invoice's net paid amount, targeted
		// or not; earlier processed refunds already shrank it.
		if refund.Amount.GreaterThan(inv.AmountPaid) {
			return shared.ErrExcessRefund
		}

		if refund.IsTargeted() {
			payment, err := repos.Payments().FindByIDForClub(ctx, clubID, *refund.PaymentID)
			if err != nil {
				return err
			}
			processed, err := repos.Refunds().SumProcessedByPayment(ctx, payment.ID)
			if err != nil {
				return fmt.Errorf("failed to sum payment refunds: %w", err)
			}
			if processed.Add(refund.Amount).GreaterThan(payment.Amount) {
				return shared.ErrExcessRefund
			}
			// RegisterRefund enforces the same ceiling on the row itself
			if err := payment.RegisterRefund(refund.GetAmountMoney()); err != nil {
				return err
			}
			if err := repos.Payments().SaveWithLock(ctx, payment); err != nil {
				return err
			}
		}

		if err := refund.Process(operatorID, reference); err != nil {
			return err
		}
		if err := repos.Refunds().SaveWithLock(ctx, refund); err != nil {
			return err
		}

		payments, err := repos.Payments().SumByInvoice(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to sum payments: %w", err)
		}
		refunds, err := repos.Refunds().SumProcessedByInvoice(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to sum refunds: %w", err)
		}

		rc := billing.NewRecalculator(s.policy.Current())
		if err := rc.Recalculate(inv, billing.LedgerTotals{PaymentsTotal: payments, RefundsTotal: refunds}); err != nil {
			return err
		}

		// Returning the entire collection closes the invoice. This is the
		// explicit transition; the engine never derives REFUNDED on its own.
		if inv.Total.IsPositive() &&
			payments.GreaterThanOrEqual(inv.Total) &&
			inv.AmountPaid.IsZero() {
			if err := inv.MarkRefunded(); err != nil {
				return err
			}
		}

		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}

		result = &ProcessRefundResult{Refund: refund, Invoice: inv}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	publishEvents(ctx, s.events, s.logger, result.Refund, result.Invoice)

	s.logger.Info("Refund processed",
		zap.String("refund_number", result.Refund.RefundNumber),
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.String("amount", result.Refund.Amount.String()),
		zap.String("invoice_status", result.Invoice.Status.String()),
	)
	if s.metrics != nil {
		s.metrics.RecordRefundProcessed(ctx, clubID, string(result.Refund.Method), result.Refund.Amount)
	}

	return result, nil
}

// GetRefund loads one refund
func (s *RefundService) GetRefund(ctx context.Context, clubID, refundID uuid.UUID) (*billing.Refund, error) {
	var result *billing.Refund
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		refund, err := repos.Refunds().FindByIDForClub(ctx, clubID, refundID)
		if err != nil {
			return err
		}
		result = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListRefundsByInvoice returns all refunds recorded against an invoice
func (s *RefundService) ListRefundsByInvoice(ctx context.Context, clubID, invoiceID uuid.UUID) ([]billing.Refund, error) {
	var result []billing.Refund
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.Invoices().FindByIDForClub(ctx, clubID, invoiceID); err != nil {
			return err
		}
		refunds, err := repos.Refunds().FindByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		result = refunds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListRefundsByStatus lists refunds in a workflow state, for the approval queue
func (s *RefundService) ListRefundsByStatus(ctx context.Context, clubID uuid.UUID, status billing.RefundStatus, filter shared.Filter) ([]billing.Refund, error) {
	if !status.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Refund status is not valid")
	}
	var result []billing.Refund
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		refunds, err := repos.Refunds().FindByStatus(ctx, clubID, status, filter)
		if err != nil {
			return err
		}
		result = refunds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
