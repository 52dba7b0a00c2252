package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
	"github.com/spa/backend/internal/infrastructure/telemetry"
)

// PaymentService records payments against invoices. A submission may carry a
// client idempotency key; resubmitting the same key returns the original
// ledger entry instead of collecting twice. Keyless submissions skip the
// duplicate screen entirely.
type PaymentService struct {
	txScope     TransactionScope
	policy      ChargePolicyProvider
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	metrics     *telemetry.LedgerMetrics
	events      shared.EventPublisher
	logger      *zap.Logger
}

// SetMetrics attaches ledger metrics recording. Safe to leave unset.
func (s *PaymentService) SetMetrics(m *telemetry.LedgerMetrics) {
	s.metrics = m
}

// SetEventPublisher attaches post-commit event publication. Safe to leave unset.
func (s *PaymentService) SetEventPublisher(p shared.EventPublisher) {
	s.events = p
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	txScope TransactionScope,
	policy ChargePolicyProvider,
	idempotency shared.IdempotencyStore,
	idemConfig shared.IdempotencyConfig,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		txScope:     txScope,
		policy:      policy,
		idempotency: idempotency,
		idemConfig:  idemConfig,
		logger:      logger,
	}
}

// RecordPaymentRequest is a request to collect money against an invoice. Type
// defaults to REGULAR; MANUAL marks a back-office adjustment entry. Deposit
// applications never come through this path.
type RecordPaymentRequest struct {
	ClubID         uuid.UUID
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	Method         billing.PaymentMethod
	Type           billing.PaymentType
	Reference      string
	IdempotencyKey string
	Remark         string
	OperatorID     *uuid.UUID
}

// RecordPaymentResult is the outcome of a payment submission
type RecordPaymentResult struct {
	Payment   *billing.Payment `json:"payment"`
	Invoice   *billing.Invoice `json:"invoice"`
	Duplicate bool             `json:"duplicate"`
}

func paymentIdempotencyKey(clubID uuid.UUID, key string) string {
	return fmt.Sprintf("billing:payment:%s:%s", clubID, key)
}

// RecordPayment appends a payment to the invoice's ledger and recalculates
// the invoice under its row lock. The idempotency store screens duplicates
// before the lock is taken; the unique index on the ledger's idempotency key
// is the authoritative guard.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*RecordPaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record")
	defer span.End()

	telemetry.SetAttributes(span,
		"club_id", req.ClubID.String(),
		"invoice_id", req.InvoiceID.String(),
		"amount", req.Amount.String(),
		"method", string(req.Method),
	)

	if !req.Amount.IsPositive() {
		err := shared.NewDomainError("VALIDATION_ERROR", "Payment amount must be positive")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.Type != "" && req.Type != billing.PaymentTypeRegular && req.Type != billing.PaymentTypeManual {
		err := shared.NewDomainError("VALIDATION_ERROR", "Payment type must be REGULAR or MANUAL")
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Fast path: a key we have already seen never reaches the invoice lock
	if req.IdempotencyKey != "" && s.idemConfig.Enabled && s.idempotency != nil {
		seen, err := s.idempotency.IsProcessed(ctx, paymentIdempotencyKey(req.ClubID, req.IdempotencyKey))
		if err != nil {
			s.logger.Warn("Idempotency store check failed, falling through to database",
				zap.Error(err))
		} else if seen {
			return s.replayPayment(ctx, req)
		}
	}

	var result *RecordPaymentResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if req.IdempotencyKey != "" {
			existing, err := repos.Payments().FindByIdempotencyKey(ctx, req.ClubID, req.IdempotencyKey)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("failed to check idempotency key: %w", err)
			}
			if existing != nil {
				inv, err := repos.Invoices().FindByIDForClub(ctx, req.ClubID, existing.InvoiceID)
				if err != nil {
					return err
				}
				result = &RecordPaymentResult{Payment: existing, Invoice: inv, Duplicate: true}
				return nil
			}
		}

		inv, err := repos.Invoices().FindByIDForUpdate(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if inv.ClubID != req.ClubID {
			return shared.ErrNotFound
		}

		if !inv.Status.CanAcceptPayment() {
			return shared.NewDomainError("INVALID_STATE",
				fmt.Sprintf("Invoice in %s status cannot accept payments", inv.Status))
		}

		// A guest holding unapplied deposit money must consume it before
		// tendering anything else.
		if req.Method != billing.PaymentMethodDeposit {
			held, err := repos.Deposits().FindHeldByGuest(ctx, req.ClubID, inv.GuestID)
			if err != nil {
				return fmt.Errorf("failed to check deposits on file: %w", err)
			}
			if len(held) > 0 {
				return shared.ErrDepositOnFile
			}
		}

		if req.Amount.GreaterThan(inv.BalanceDue) {
			return shared.ErrOverpayment
		}

		number, err := repos.Payments().GeneratePaymentNumber(ctx, req.ClubID)
		if err != nil {
			return fmt.Errorf("failed to generate payment number: %w", err)
		}

		payment, err := billing.NewPayment(req.ClubID, number, inv.ID, inv.GuestID,
			valueobject.NewMoneyUSD(req.Amount), req.Method, req.Reference, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if req.Type == billing.PaymentTypeManual {
			payment.MarkManual()
		}
		if req.OperatorID != nil {
			payment.SetOperator(*req.OperatorID)
		}
		payment.Remark = req.Remark

		if err := repos.Payments().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}

		ledger, err := s.ledgerTotals(ctx, repos, inv.ID)
		if err != nil {
			return err
		}

		rc := billing.NewRecalculator(s.policy.Current())
		if err := rc.Recalculate(inv, ledger); err != nil {
			return err
		}

		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}

		result = &RecordPaymentResult{Payment: payment, Invoice: inv}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if !result.Duplicate && req.IdempotencyKey != "" && s.idemConfig.Enabled && s.idempotency != nil {
		if _, err := s.idempotency.MarkProcessed(ctx,
			paymentIdempotencyKey(req.ClubID, req.IdempotencyKey), s.idemConfig.TTL); err != nil {
			s.logger.Warn("Failed to mark idempotency key as processed", zap.Error(err))
		}
	}

	if !result.Duplicate {
		publishEvents(ctx, s.events, s.logger, result.Payment, result.Invoice)
	}

	if result.Duplicate {
		s.logger.Info("Duplicate payment submission replayed",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("payment_number", result.Payment.PaymentNumber),
		)
	} else {
		s.logger.Info("Payment recorded",
			zap.String("payment_number", result.Payment.PaymentNumber),
			zap.String("invoice_number", result.Invoice.InvoiceNumber),
			zap.String("amount", req.Amount.String()),
			zap.String("method", string(req.Method)),
			zap.String("invoice_status", result.Invoice.Status.String()),
		)
		if s.metrics != nil {
			s.metrics.RecordPayment(ctx, req.ClubID, string(req.Method), req.Amount)
		}
	}

	return result, nil
}

// replayPayment serves a submission whose key the idempotency store has
// already seen. The ledger row is the source of truth; if it is missing the
// store entry was stale and the submission goes through the normal path.
func (s *PaymentService) replayPayment(ctx context.Context, req RecordPaymentRequest) (*RecordPaymentResult, error) {
	var result *RecordPaymentResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		payment, err := repos.Payments().FindByIdempotencyKey(ctx, req.ClubID, req.IdempotencyKey)
		if err != nil {
			return err
		}
		inv, err := repos.Invoices().FindByIDForClub(ctx, req.ClubID, payment.InvoiceID)
		if err != nil {
			return err
		}
		result = &RecordPaymentResult{Payment: payment, Invoice: inv, Duplicate: true}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// stale fast-path entry
			return nil, shared.NewDomainError("CONCURRENCY_CONFLICT",
				"Submission with this idempotency key is still being processed, retry shortly")
		}
		return nil, err
	}
	return result, nil
}

// ListPayments returns the payment ledger of an invoice
func (s *PaymentService) ListPayments(ctx context.Context, clubID, invoiceID uuid.UUID) ([]billing.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "list")
	defer span.End()

	var result []billing.Payment
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.Invoices().FindByIDForClub(ctx, clubID, invoiceID); err != nil {
			return err
		}
		payments, err := repos.Payments().FindByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		result = payments
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ledgerTotals sums both ledgers inside the transaction holding the invoice lock
func (s *PaymentService) ledgerTotals(ctx context.Context, repos TransactionalRepositories, invoiceID uuid.UUID) (billing.LedgerTotals, error) {
	payments, err := repos.Payments().SumByInvoice(ctx, invoiceID)
	if err != nil {
		return billing.LedgerTotals{}, fmt.Errorf("failed to sum payments: %w", err)
	}
	refunds, err := repos.Refunds().SumProcessedByInvoice(ctx, invoiceID)
	if err != nil {
		return billing.LedgerTotals{}, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return billing.LedgerTotals{PaymentsTotal: payments, RefundsTotal: refunds}, nil
}
