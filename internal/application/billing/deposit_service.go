package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
	"github.com/spa/backend/internal/infrastructure/telemetry"
)

// DepositService manages guest deposits and their application to invoices.
// Applying a deposit produces an ordinary DEPOSIT-method entry on the
// invoice's payment ledger, so invoice arithmetic never special-cases
// deposits.
type DepositService struct {
	txScope TransactionScope
	policy  ChargePolicyProvider
	metrics *telemetry.LedgerMetrics
	events  shared.EventPublisher
	logger  *zap.Logger
}

// SetMetrics attaches ledger metrics recording. Safe to leave unset.
func (s *DepositService) SetMetrics(m *telemetry.LedgerMetrics) {
	s.metrics = m
}

// SetEventPublisher attaches post-commit event publication. Safe to leave unset.
func (s *DepositService) SetEventPublisher(p shared.EventPublisher) {
	s.events = p
}

// NewDepositService creates a new DepositService
func NewDepositService(txScope TransactionScope, policy ChargePolicyProvider, logger *zap.Logger) *DepositService {
	return &DepositService{
		txScope: txScope,
		policy:  policy,
		logger:  logger,
	}
}

// CreateDepositRequest collects a deposit from a guest, usually at booking time
type CreateDepositRequest struct {
	ClubID     uuid.UUID
	GuestID    uuid.UUID
	GuestName  string
	BookingID  *uuid.UUID
	Amount     decimal.Decimal
	Method     billing.PaymentMethod
	Reference  string
	ExpiresAt  *time.Time
	Remark     string
	OperatorID *uuid.UUID
}

// CreateDeposit records a collected deposit. A booking can hold at most one
// deposit; collecting again for the same booking returns the existing one.
func (s *DepositService) CreateDeposit(ctx context.Context, req CreateDepositRequest) (*billing.Deposit, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "deposit", "create")
	defer span.End()

	telemetry.SetAttributes(span,
		"club_id", req.ClubID.String(),
		"guest_id", req.GuestID.String(),
		"amount", req.Amount.String(),
	)

	var result *billing.Deposit
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if req.BookingID != nil {
			existing, err := repos.Deposits().FindByBooking(ctx, req.ClubID, *req.BookingID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("failed to check for existing deposit: %w", err)
			}
			if existing != nil {
				result = existing
				return nil
			}
		}

		number, err := repos.Deposits().GenerateDepositNumber(ctx, req.ClubID)
		if err != nil {
			return fmt.Errorf("failed to generate deposit number: %w", err)
		}

		deposit, err := billing.NewDeposit(req.ClubID, number, req.GuestID, req.GuestName,
			req.BookingID, valueobject.NewMoneyUSD(req.Amount), req.Method, req.ExpiresAt)
		if err != nil {
			return err
		}
		if req.OperatorID != nil {
			deposit.SetCreatedBy(*req.OperatorID)
		}
		deposit.Remark = req.Remark

		if err := deposit.MarkCollected(req.Reference); err != nil {
			return err
		}

		if err := repos.Deposits().Save(ctx, deposit); err != nil {
			return fmt.Errorf("failed to save deposit: %w", err)
		}

		result = deposit
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	publishEvents(ctx, s.events, s.logger, result)

	s.logger.Info("Deposit collected",
		zap.String("deposit_number", result.DepositNumber),
		zap.String("guest_id", req.GuestID.String()),
		zap.String("amount", req.Amount.String()),
	)

	return result, nil
}

// ApplyDepositRequest applies part of a held deposit to an invoice. A zero
// Amount means the whole remaining deposit, capped at the invoice's balance.
type ApplyDepositRequest struct {
	ClubID         uuid.UUID
	DepositID      uuid.UUID
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	IdempotencyKey string
	OperatorID     *uuid.UUID
}

// ApplyDepositResult is the outcome of a deposit application
type ApplyDepositResult struct {
	Deposit *billing.Deposit `json:"deposit"`
	Payment *billing.Payment `json:"payment"`
	Invoice *billing.Invoice `json:"invoice"`
}

// ApplyDeposit consumes deposit money against an invoice. The deposit row is
// locked before the invoice row; every code path that touches both follows
// that order. The slice lands on the payment ledger as a DEPOSIT-method
// entry, then the invoice is recalculated.
func (s *DepositService) ApplyDeposit(ctx context.Context, req ApplyDepositRequest) (*ApplyDepositResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "deposit", "apply")
	defer span.End()

	telemetry.SetAttributes(span,
		"club_id", req.ClubID.String(),
		"deposit_id", req.DepositID.String(),
		"invoice_id", req.InvoiceID.String(),
		"amount", req.Amount.String(),
	)

	if req.Amount.IsNegative() {
		err := shared.NewDomainError("VALIDATION_ERROR", "Applied amount cannot be negative")
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *ApplyDepositResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if req.IdempotencyKey != "" {
			existing, err := repos.Payments().FindByIdempotencyKey(ctx, req.ClubID, req.IdempotencyKey)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("failed to check idempotency key: %w", err)
			}
			if existing != nil {
				deposit, err := repos.Deposits().FindByIDForClub(ctx, req.ClubID, req.DepositID)
				if err != nil {
					return err
				}
				inv, err := repos.Invoices().FindByIDForClub(ctx, req.ClubID, existing.InvoiceID)
				if err != nil {
					return err
				}
				result = &ApplyDepositResult{Deposit: deposit, Payment: existing, Invoice: inv}
				return nil
			}
		}

		// deposit before invoice, always
		deposit, err := repos.Deposits().FindByIDForUpdate(ctx, req.DepositID)
		if err != nil {
			return err
		}
		if deposit.ClubID != req.ClubID {
			return shared.ErrNotFound
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
		if deposit.GuestID != inv.GuestID {
			return shared.NewDomainError("VALIDATION_ERROR", "Deposit and invoice belong to different guests")
		}
		// An omitted amount means the whole remaining deposit, up to what
		// the invoice still owes.
		amount := req.Amount
		if amount.IsZero() {
			amount = decimal.Min(deposit.RemainingAmount().Amount(), inv.BalanceDue)
			if !amount.IsPositive() {
				return shared.NewDomainError("VALIDATION_ERROR", "Deposit has nothing left to apply")
			}
		}
		if amount.GreaterThan(inv.BalanceDue) {
			return shared.ErrOverpayment
		}

		if err := deposit.Apply(valueobject.NewMoneyUSD(amount)); err != nil {
			return err
		}
		if err := repos.Deposits().SaveWithLock(ctx, deposit); err != nil {
			return err
		}

		number, err := repos.Payments().GeneratePaymentNumber(ctx, req.ClubID)
		if err != nil {
			return fmt.Errorf("failed to generate payment number: %w", err)
		}

		payment, err := billing.NewPayment(req.ClubID, number, inv.ID, inv.GuestID,
			valueobject.NewMoneyUSD(amount), billing.PaymentMethodDeposit,
			deposit.DepositNumber, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if err := payment.MarkDepositApplication(deposit.ID); err != nil {
			return err
		}
		if req.OperatorID != nil {
			payment.SetOperator(*req.OperatorID)
		}

		if err := repos.Payments().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
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

		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}

		result = &ApplyDepositResult{Deposit: deposit, Payment: payment, Invoice: inv}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	publishEvents(ctx, s.events, s.logger, result.Deposit, result.Payment, result.Invoice)

	s.logger.Info("Deposit applied",
		zap.String("deposit_number", result.Deposit.DepositNumber),
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.String("amount", result.Payment.Amount.String()),
		zap.String("deposit_status", result.Deposit.Status.String()),
		zap.String("invoice_status", result.Invoice.Status.String()),
	)
	if s.metrics != nil {
		s.metrics.RecordDepositApplied(ctx, req.ClubID)
	}

	return result, nil
}

// GetDeposit retrieves a single deposit by ID
func (s *DepositService) GetDeposit(ctx context.Context, clubID, depositID uuid.UUID) (*billing.Deposit, error) {
	var result *billing.Deposit
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		deposit, err := repos.Deposits().FindByID(ctx, depositID)
		if err != nil {
			return err
		}
		if deposit.ClubID != clubID {
			return shared.ErrNotFound
		}
		result = deposit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListGuestDeposits returns a guest's deposits, newest first
func (s *DepositService) ListGuestDeposits(ctx context.Context, clubID, guestID uuid.UUID, filter shared.Filter) ([]billing.Deposit, error) {
	var result []billing.Deposit
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		deposits, err := repos.Deposits().FindByGuest(ctx, clubID, guestID, filter)
		if err != nil {
			return err
		}
		result = deposits
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RefundDeposit returns the unapplied remainder to the guest
func (s *DepositService) RefundDeposit(ctx context.Context, clubID, depositID uuid.UUID, reference string) (*billing.Deposit, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "deposit", "refund")
	defer span.End()

	var result *billing.Deposit
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		deposit, err := repos.Deposits().FindByIDForUpdate(ctx, depositID)
		if err != nil {
			return err
		}
		if deposit.ClubID != clubID {
			return shared.ErrNotFound
		}

		if err := deposit.Refund(reference); err != nil {
			return err
		}

		if err := repos.Deposits().SaveWithLock(ctx, deposit); err != nil {
			return err
		}

		result = deposit
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	publishEvents(ctx, s.events, s.logger, result)

	s.logger.Info("Deposit refunded",
		zap.String("deposit_number", result.DepositNumber),
		zap.String("remaining", result.RemainingAmount().String()),
	)

	return result, nil
}

// ExpireDeposits sweeps deposits whose validity window has passed. Intended
// to run from a periodic job.
func (s *DepositService) ExpireDeposits(ctx context.Context, clubID uuid.UUID, now time.Time) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "deposit", "expire_sweep")
	defer span.End()

	expired := 0
	var swept []*billing.Deposit
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		filter := shared.DefaultFilter()
		filter.PageSize = 500
		deposits, err := repos.Deposits().FindAllForClub(ctx, clubID, filter)
		if err != nil {
			return err
		}
		for i := range deposits {
			d := &deposits[i]
			if !d.Status.HoldsFunds() || d.ExpiresAt == nil || now.Before(*d.ExpiresAt) {
				continue
			}
			locked, err := repos.Deposits().FindByIDForUpdate(ctx, d.ID)
			if err != nil {
				return err
			}
			if err := locked.Expire(now); err != nil {
				continue
			}
			if err := repos.Deposits().SaveWithLock(ctx, locked); err != nil {
				return err
			}
			swept = append(swept, locked)
			expired++
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	for _, d := range swept {
		publishEvents(ctx, s.events, s.logger, d)
	}

	if expired > 0 {
		s.logger.Info("Expired deposits swept",
			zap.String("club_id", clubID.String()),
			zap.Int("count", expired),
		)
	}

	return expired, nil
}
