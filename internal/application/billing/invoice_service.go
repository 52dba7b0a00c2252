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

// InvoiceService creates and manages invoices. Invoices are created
// synchronously when the front desk closes a booking; the booking module
// calls CreateInvoice with the billable lines and receives the issued
// invoice in the same request.
type InvoiceService struct {
	txScope TransactionScope
	policy  ChargePolicyProvider
	metrics *telemetry.LedgerMetrics
	events  shared.EventPublisher
	logger  *zap.Logger
}

// SetMetrics attaches ledger metrics recording. Safe to leave unset.
func (s *InvoiceService) SetMetrics(m *telemetry.LedgerMetrics) {
	s.metrics = m
}

// SetEventPublisher attaches post-commit event publication. Safe to leave unset.
func (s *InvoiceService) SetEventPublisher(p shared.EventPublisher) {
	s.events = p
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(txScope TransactionScope, policy ChargePolicyProvider, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		txScope: txScope,
		policy:  policy,
		logger:  logger,
	}
}

// CreateInvoiceLineRequest is one billable line on a new invoice
type CreateInvoiceLineRequest struct {
	CatalogItemID *uuid.UUID
	Kind          billing.LineItemKind
	Description   string
	Quantity      int64
	UnitPrice     decimal.Decimal
	TaxRate       decimal.Decimal
}

// CreateInvoiceRequest carries everything needed to bill a closed booking
type CreateInvoiceRequest struct {
	ClubID       uuid.UUID
	GuestID      uuid.UUID
	GuestName    string
	SourceType   billing.InvoiceSourceType
	SourceID     uuid.UUID
	SourceNumber string
	DueDate      *time.Time
	Discount     decimal.Decimal
	Remark       string
	Lines        []CreateInvoiceLineRequest
	OperatorID   *uuid.UUID
}

// CreateInvoice builds, recalculates and issues an invoice in one
// transaction. Creating twice for the same source returns the existing
// invoice instead of a duplicate.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()

	telemetry.SetAttributes(span,
		"club_id", req.ClubID.String(),
		"guest_id", req.GuestID.String(),
		"source_id", req.SourceID.String(),
		"line_count", len(req.Lines),
	)

	if len(req.Lines) == 0 {
		err := shared.NewDomainError("VALIDATION_ERROR", "Invoice must have at least one line item")
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		existing, err := repos.Invoices().FindBySource(ctx, req.ClubID, req.SourceType, req.SourceID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to check for existing invoice: %w", err)
		}
		if existing != nil {
			result = existing
			return nil
		}

		number, err := repos.Invoices().GenerateInvoiceNumber(ctx, req.ClubID)
		if err != nil {
			return fmt.Errorf("failed to generate invoice number: %w", err)
		}

		inv, err := billing.NewInvoice(req.ClubID, number, req.GuestID, req.GuestName,
			req.SourceType, req.SourceID, req.SourceNumber, req.DueDate)
		if err != nil {
			return err
		}
		if req.OperatorID != nil {
			inv.SetCreatedBy(*req.OperatorID)
		}
		if req.Remark != "" {
			inv.Remark = req.Remark
		}

		for _, line := range req.Lines {
			if _, err := inv.AddLineItem(line.CatalogItemID, line.Kind, line.Description,
				line.Quantity, valueobject.NewMoneyUSD(line.UnitPrice), line.TaxRate); err != nil {
				return err
			}
		}

		if req.Discount.IsPositive() {
			if err := inv.SetDiscount(valueobject.NewMoneyUSD(req.Discount)); err != nil {
				return err
			}
		}

		if err := inv.Issue(); err != nil {
			return err
		}

		rc := billing.NewRecalculator(s.policy.Current())
		if err := rc.Recalculate(inv, billing.LedgerTotals{
			PaymentsTotal: decimal.Zero,
			RefundsTotal:  decimal.Zero,
		}); err != nil {
			return err
		}

		if err := repos.Invoices().Save(ctx, inv); err != nil {
			return fmt.Errorf("failed to save invoice: %w", err)
		}

		result = inv
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	publishEvents(ctx, s.events, s.logger, result)

	s.logger.Info("Invoice created",
		zap.String("invoice_number", result.InvoiceNumber),
		zap.String("invoice_id", result.ID.String()),
		zap.String("club_id", req.ClubID.String()),
		zap.String("total", result.Total.String()),
	)
	if s.metrics != nil {
		s.metrics.RecordInvoiceIssued(ctx, req.ClubID)
	}

	return result, nil
}

// GetInvoice loads a single invoice with its line items
func (s *InvoiceService) GetInvoice(ctx context.Context, clubID, invoiceID uuid.UUID) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "get")
	defer span.End()

	var result *billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := repos.Invoices().FindByIDForClub(ctx, clubID, invoiceID)
		if err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ListInvoicesByGuest lists a guest's invoices, newest first
func (s *InvoiceService) ListInvoicesByGuest(ctx context.Context, clubID, guestID uuid.UUID, filter shared.Filter) ([]billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "list_by_guest")
	defer span.End()

	var result []billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		invoices, err := repos.Invoices().FindByGuest(ctx, clubID, guestID, filter)
		if err != nil {
			return err
		}
		result = invoices
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ListInvoices lists the club's invoices with pagination and optional
// status or guest filters
func (s *InvoiceService) ListInvoices(ctx context.Context, clubID uuid.UUID, filter shared.Filter) ([]billing.Invoice, int64, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "list")
	defer span.End()

	var result []billing.Invoice
	var total int64
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		invoices, err := repos.Invoices().FindAllForClub(ctx, clubID, filter)
		if err != nil {
			return err
		}

		countFilter := filter
		countFilter.Filters = make(map[string]interface{}, len(filter.Filters)+1)
		for k, v := range filter.Filters {
			countFilter.Filters[k] = v
		}
		countFilter.Filters["club_id"] = clubID

		count, err := repos.Invoices().Count(ctx, countFilter)
		if err != nil {
			return err
		}

		result = invoices
		total = count
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, err
	}
	return result, total, nil
}

// AddInvoiceLineRequest adds one billable line to an existing invoice
type AddInvoiceLineRequest struct {
	ClubID          uuid.UUID
	InvoiceID       uuid.UUID
	ExpectedVersion int
	Line            CreateInvoiceLineRequest
}

// AddLineItem appends a line to an issued invoice and recalculates it under
// the row lock. ExpectedVersion carries the version the client last saw;
// a mismatch means someone else changed the invoice in between.
func (s *InvoiceService) AddLineItem(ctx context.Context, req AddInvoiceLineRequest) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "add_line_item")
	defer span.End()

	telemetry.SetAttributes(span,
		"invoice_id", req.InvoiceID.String(),
		"description", req.Line.Description,
	)

	var result *billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := s.lockInvoice(ctx, repos, req.ClubID, req.InvoiceID, req.ExpectedVersion)
		if err != nil {
			return err
		}

		if _, err := inv.AddLineItem(req.Line.CatalogItemID, req.Line.Kind, req.Line.Description,
			req.Line.Quantity, valueobject.NewMoneyUSD(req.Line.UnitPrice), req.Line.TaxRate); err != nil {
			return err
		}

		if err := s.recalculate(ctx, repos, inv); err != nil {
			return err
		}

		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}

		result = inv
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Line item added",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("description", req.Line.Description),
		zap.String("total", result.Total.String()),
	)

	return result, nil
}

// ApplyDiscount replaces the invoice-level discount and recalculates under
// the row lock
func (s *InvoiceService) ApplyDiscount(ctx context.Context, clubID, invoiceID uuid.UUID, amount decimal.Decimal, expectedVersion int) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "apply_discount")
	defer span.End()

	telemetry.SetAttributes(span,
		"invoice_id", invoiceID.String(),
		"discount", amount.String(),
	)

	var result *billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := s.lockInvoice(ctx, repos, clubID, invoiceID, expectedVersion)
		if err != nil {
			return err
		}

		if err := inv.SetDiscount(valueobject.NewMoneyUSD(amount)); err != nil {
			return err
		}

		if err := s.recalculate(ctx, repos, inv); err != nil {
			return err
		}

		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}

		result = inv
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Discount applied",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("discount", amount.String()),
		zap.String("total", result.Total.String()),
	)

	return result, nil
}

// CancelInvoice cancels an unpaid invoice under the row lock
func (s *InvoiceService) CancelInvoice(ctx context.Context, clubID, invoiceID uuid.UUID, reason string, expectedVersion int) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "cancel")
	defer span.End()

	telemetry.SetAttributes(span, "invoice_id", invoiceID.String())

	var result *billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := s.lockInvoice(ctx, repos, clubID, invoiceID, expectedVersion)
		if err != nil {
			return err
		}

		if err := inv.Cancel(reason); err != nil {
			return err
		}

		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return err
		}

		result = inv
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	publishEvents(ctx, s.events, s.logger, result)

	s.logger.Info("Invoice cancelled",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("reason", reason),
	)

	return result, nil
}

// lockInvoice loads the invoice under its row lock and screens the
// club scope and the client-observed version
func (s *InvoiceService) lockInvoice(ctx context.Context, repos TransactionalRepositories, clubID, invoiceID uuid.UUID, expectedVersion int) (*billing.Invoice, error) {
	inv, err := repos.Invoices().FindByIDForUpdate(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.ClubID != clubID {
		return nil, shared.ErrNotFound
	}
	if expectedVersion > 0 && inv.Version != expectedVersion {
		return nil, shared.ErrConcurrencyConflict
	}
	return inv, nil
}

// recalculate re-derives the invoice from its line items and the current
// ledger sums. Runs inside the transaction holding the invoice lock.
func (s *InvoiceService) recalculate(ctx context.Context, repos TransactionalRepositories, inv *billing.Invoice) error {
	payments, err := repos.Payments().SumByInvoice(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to sum payments: %w", err)
	}
	refunds, err := repos.Refunds().SumProcessedByInvoice(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to sum refunds: %w", err)
	}

	rc := billing.NewRecalculator(s.policy.Current())
	return rc.Recalculate(inv, billing.LedgerTotals{PaymentsTotal: payments, RefundsTotal: refunds})
}
