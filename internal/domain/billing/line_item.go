package billing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/domain/shared/valueobject"
)

// LineItemKind distinguishes billable service lines from retail product lines
type LineItemKind string

const (
	LineItemKindService LineItemKind = "SERVICE"
	LineItemKindProduct LineItemKind = "PRODUCT"
)

// IsValid checks if the kind is a valid LineItemKind
func (k LineItemKind) IsValid() bool {
	return k == LineItemKindService || k == LineItemKindProduct
}

// String returns the string representation of LineItemKind
func (k LineItemKind) String() string {
	return string(k)
}

// LineItem is one priced row on an invoice. It is owned exclusively by its
// invoice: deleting the invoice deletes its line items. The unit price is
// captured at creation time and never re-derived from the catalog, so later
// catalog price changes cannot retroactively alter an issued invoice.
type LineItem struct {
	shared.BaseEntity
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	CatalogItemID *uuid.UUID      `json:"catalog_item_id,omitempty"`
	Kind          LineItemKind    `json:"kind"`
	Description   string          `json:"description"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
}

// NewLineItem creates a new line item with captured pricing
func NewLineItem(
	invoiceID uuid.UUID,
	catalogItemID *uuid.UUID,
	kind LineItemKind,
	description string,
	quantity int64,
	unitPrice valueobject.Money,
	taxRate decimal.Decimal,
) (*LineItem, error) {
	if invoiceID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice ID cannot be empty")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line item kind is not valid")
	}
	if description == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line item description cannot be empty")
	}
	if len(description) > 500 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line item description cannot exceed 500 characters")
	}
	if quantity < 1 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line item quantity must be at least 1")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line item unit price cannot be negative")
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line item tax rate must be between 0 and 1")
	}

	return &LineItem{
		BaseEntity:    shared.NewBaseEntity(),
		InvoiceID:     invoiceID,
		CatalogItemID: catalogItemID,
		Kind:          kind,
		Description:   description,
		Quantity:      quantity,
		UnitPrice:     unitPrice.Amount(),
		TaxRate:       taxRate,
	}, nil
}

// Subtotal returns quantity × unit price, rounded per the money policy
func (li *LineItem) Subtotal() valueobject.Money {
	return valueobject.NewMoneyUSD(li.UnitPrice).MultiplyByInt(li.Quantity)
}

// TaxAmount returns the per-line tax: line subtotal × line tax rate
func (li *LineItem) TaxAmount() valueobject.Money {
	return li.Subtotal().ApplyRate(li.TaxRate)
}

// GetUnitPriceMoney returns the unit price as Money
func (li *LineItem) GetUnitPriceMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(li.UnitPrice)
}
