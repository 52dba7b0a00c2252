package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

// ChargePolicy is a snapshot of the club's billing rates taken when a
// recalculation runs. Rates are fractions, e.g. 0.07 for a 7% tax.
type ChargePolicy struct {
	VATRate           decimal.Decimal
	ServiceChargeRate decimal.Decimal
}

// NewChargePolicy validates and builds a rate snapshot
func NewChargePolicy(vatRate, serviceChargeRate decimal.Decimal) (ChargePolicy, error) {
	one := decimal.NewFromInt(1)
	if vatRate.IsNegative() || vatRate.GreaterThan(one) {
		return ChargePolicy{}, shared.NewDomainError("VALIDATION_ERROR", "VAT rate must be between 0 and 1")
	}
	if serviceChargeRate.IsNegative() || serviceChargeRate.GreaterThan(one) {
		return ChargePolicy{}, shared.NewDomainError("VALIDATION_ERROR", "Service charge rate must be between 0 and 1")
	}
	return ChargePolicy{VATRate: vatRate, ServiceChargeRate: serviceChargeRate}, nil
}

// LedgerTotals carries the sums the recalculation engine needs from the
// payment and refund ledgers: all recorded payments and all processed
// refunds for one invoice. The repository computes these inside the same
// transaction that holds the invoice row lock.
type LedgerTotals struct {
	PaymentsTotal decimal.Decimal
	RefundsTotal  decimal.Decimal
}

// Recalculator derives every computed field on an invoice from its line
// items and ledger totals. It is the only writer of Subtotal, ServiceCharge,
// Tax, Total, AmountPaid, BalanceDue and of arithmetic-driven statuses.
//
// Derivation, all with banker's rounding at each multiplication:
//
//	subtotal       = sum over items of unit_price * quantity
//	service_charge = subtotal * service_charge_rate
//	tax            = sum over items of item_subtotal * item_tax_rate
//	                 + (subtotal + service_charge) * vat_rate
//	total          = subtotal + service_charge + tax - discount, floored at 0
//	amount_paid    = payments_total - processed_refunds_total
//	balance_due    = total - amount_paid
//
// A negative balance means the ledgers record more money collected than the
// invoice is worth; the engine refuses to clamp it and reports the ledger as
// inconsistent so the surrounding transaction rolls back.
type Recalculator struct {
	policy ChargePolicy
	clock  func() time.Time
}

// NewRecalculator builds an engine bound to a rate snapshot
func NewRecalculator(policy ChargePolicy) *Recalculator {
	return &Recalculator{policy: policy, clock: time.Now}
}

// WithClock overrides the time source, for tests
func (rc *Recalculator) WithClock(clock func() time.Time) *Recalculator {
	rc.clock = clock
	return rc
}

// Recalculate recomputes all derived fields and the status of the invoice
// in place, and bumps the aggregate version. Mutating operations call this
// exactly once before persisting, so version moves one step per operation.
func (rc *Recalculator) Recalculate(inv *Invoice, ledger LedgerTotals) error {
	subtotal := valueobject.ZeroUSD()
	tax := valueobject.ZeroUSD()

	for i := range inv.LineItems {
		item := &inv.LineItems[i]
		line := item.Subtotal()
		var err error
		subtotal, err = subtotal.Add(line)
		if err != nil {
			return err
		}
		if item.TaxRate.IsPositive() {
			tax, err = tax.Add(line.ApplyRate(item.TaxRate))
			if err != nil {
				return err
			}
		}
	}

	serviceCharge := subtotal.ApplyRate(rc.policy.ServiceChargeRate)

	if rc.policy.VATRate.IsPositive() {
		base := subtotal.MustAdd(serviceCharge)
		var err error
		tax, err = tax.Add(base.ApplyRate(rc.policy.VATRate))
		if err != nil {
			return err
		}
	}

	total := subtotal.Amount().Add(serviceCharge.Amount()).Add(tax.Amount()).Sub(inv.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	amountPaid := ledger.PaymentsTotal.Sub(ledger.RefundsTotal)
	balance := total.Sub(amountPaid)
	if balance.IsNegative() {
		return shared.ErrInconsistentLedger
	}

	inv.Subtotal = subtotal.Amount()
	inv.ServiceCharge = serviceCharge.Amount()
	inv.Tax = tax.Amount()
	inv.Total = total
	inv.AmountPaid = amountPaid
	inv.BalanceDue = balance

	rc.deriveStatus(inv)

	inv.UpdatedAt = rc.clock()
	inv.IncrementVersion()

	return nil
}

// deriveStatus maps the recomputed balance onto the invoice status. Draft,
// cancelled and refunded are operator decisions and are never overwritten;
// an invoice only becomes REFUNDED through MarkRefunded.
func (rc *Recalculator) deriveStatus(inv *Invoice) {
	if inv.Status.isSticky() {
		return
	}

	now := rc.clock()

	switch {
	case inv.BalanceDue.IsZero() && inv.Total.IsPositive():
		inv.Status = InvoiceStatusPaid
		if inv.PaidAt == nil {
			inv.PaidAt = &now
		}
	case inv.AmountPaid.IsPositive():
		inv.Status = InvoiceStatusPartial
		inv.PaidAt = nil
	default:
		if inv.IsPastDue(now) {
			inv.Status = InvoiceStatusOverdue
		} else {
			inv.Status = InvoiceStatusIssued
		}
		inv.PaidAt = nil
	}
}
