package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	ClubAggregateModel
	InvoiceNumber string                    `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoice_club_number,priority:2"`
	GuestID       uuid.UUID                 `gorm:"type:uuid;not null;index"`
	GuestName     string                    `gorm:"type:varchar(200);not null"`
	SourceType    billing.InvoiceSourceType `gorm:"type:varchar(30);not null;index"`
	SourceID      uuid.UUID                 `gorm:"type:uuid;not null;index"`
	SourceNumber  string                    `gorm:"type:varchar(50)"`
	LineItems     []LineItemModel           `gorm:"foreignKey:InvoiceID;references:ID"`
	Subtotal      decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	ServiceCharge decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	Tax           decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	Discount      decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	Total         decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	AmountPaid    decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	BalanceDue    decimal.Decimal           `gorm:"type:decimal(18,2);not null;index"`
	Status        billing.InvoiceStatus     `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	DueDate       *time.Time                `gorm:"index"`
	IssuedAt      *time.Time
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CancelReason  string `gorm:"type:varchar(500)"`
	Remark        string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	items := make([]billing.LineItem, 0, len(m.LineItems))
	for i := range m.LineItems {
		items = append(items, *m.LineItems[i].ToDomain())
	}
	return &billing.Invoice{
		ClubAggregateRoot: m.clubAggregateRootFromModel(),
		InvoiceNumber:     m.InvoiceNumber,
		GuestID:           m.GuestID,
		GuestName:         m.GuestName,
		SourceType:        m.SourceType,
		SourceID:          m.SourceID,
		SourceNumber:      m.SourceNumber,
		LineItems:         items,
		Subtotal:          m.Subtotal,
		ServiceCharge:     m.ServiceCharge,
		Tax:               m.Tax,
		Discount:          m.Discount,
		Total:             m.Total,
		AmountPaid:        m.AmountPaid,
		BalanceDue:        m.BalanceDue,
		Status:            m.Status,
		DueDate:           m.DueDate,
		IssuedAt:          m.IssuedAt,
		PaidAt:            m.PaidAt,
		CancelledAt:       m.CancelledAt,
		CancelReason:      m.CancelReason,
		Remark:            m.Remark,
	}
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainClubAggregateRoot(inv.ClubAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.GuestID = inv.GuestID
	m.GuestName = inv.GuestName
	m.SourceType = inv.SourceType
	m.SourceID = inv.SourceID
	m.SourceNumber = inv.SourceNumber
	m.LineItems = make([]LineItemModel, 0, len(inv.LineItems))
	for i := range inv.LineItems {
		item := LineItemModel{}
		item.FromDomain(&inv.LineItems[i])
		m.LineItems = append(m.LineItems, item)
	}
	m.Subtotal = inv.Subtotal
	m.ServiceCharge = inv.ServiceCharge
	m.Tax = inv.Tax
	m.Discount = inv.Discount
	m.Total = inv.Total
	m.AmountPaid = inv.AmountPaid
	m.BalanceDue = inv.BalanceDue
	m.Status = inv.Status
	m.DueDate = inv.DueDate
	m.IssuedAt = inv.IssuedAt
	m.PaidAt = inv.PaidAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
	m.Remark = inv.Remark
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// LineItemModel is the persistence model for invoice line items.
// Line items are owned by their invoice and deleted with it.
type LineItemModel struct {
	BaseModel
	InvoiceID     uuid.UUID            `gorm:"type:uuid;not null;index"`
	CatalogItemID *uuid.UUID           `gorm:"type:uuid;index"`
	Kind          billing.LineItemKind `gorm:"type:varchar(20);not null"`
	Description   string               `gorm:"type:varchar(500);not null"`
	Quantity      int64                `gorm:"not null"`
	UnitPrice     decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	TaxRate       decimal.Decimal      `gorm:"type:decimal(8,4);not null"`
}

// TableName returns the table name for GORM
func (LineItemModel) TableName() string {
	return "invoice_line_items"
}

// ToDomain converts the persistence model to a domain LineItem entity.
func (m *LineItemModel) ToDomain() *billing.LineItem {
	return &billing.LineItem{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		InvoiceID:     m.InvoiceID,
		CatalogItemID: m.CatalogItemID,
		Kind:          m.Kind,
		Description:   m.Description,
		Quantity:      m.Quantity,
		UnitPrice:     m.UnitPrice,
		TaxRate:       m.TaxRate,
	}
}

// FromDomain populates the persistence model from a domain LineItem entity.
func (m *LineItemModel) FromDomain(li *billing.LineItem) {
	m.FromDomainBaseEntity(li.BaseEntity)
	m.InvoiceID = li.InvoiceID
	m.CatalogItemID = li.CatalogItemID
	m.Kind = li.Kind
	m.Description = li.Description
	m.Quantity = li.Quantity
	m.UnitPrice = li.UnitPrice
	m.TaxRate = li.TaxRate
}

// PaymentModel is the persistence model for the Payment aggregate root.
// The unique (club_id, idempotency_key) index is the authoritative duplicate
// guard for payment submissions.
type PaymentModel struct {
	ClubAggregateModel
	PaymentNumber  string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_payment_club_number,priority:2"`
	InvoiceID      uuid.UUID             `gorm:"type:uuid;not null;index"`
	GuestID        uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Method         billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	Type           billing.PaymentType   `gorm:"type:varchar(30);not null;default:'REGULAR'"`
	Reference      string                `gorm:"type:varchar(200)"`
	IdempotencyKey *string               `gorm:"type:varchar(100);uniqueIndex:idx_payment_club_idem,priority:2"`
	DepositID      *uuid.UUID            `gorm:"type:uuid;index"`
	RefundedAmount decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	ReceivedAt     time.Time             `gorm:"not null;index"`
	OperatorID     *uuid.UUID            `gorm:"type:uuid;index"`
	Remark         string                `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment entity.
func (m *PaymentModel) ToDomain() *billing.Payment {
	var key string
	if m.IdempotencyKey != nil {
		key = *m.IdempotencyKey
	}
	return &billing.Payment{
		ClubAggregateRoot: m.clubAggregateRootFromModel(),
		PaymentNumber:     m.PaymentNumber,
		InvoiceID:         m.InvoiceID,
		GuestID:           m.GuestID,
		Amount:            m.Amount,
		Method:            m.Method,
		Type:              m.Type,
		Reference:         m.Reference,
		IdempotencyKey:    key,
		DepositID:         m.DepositID,
		RefundedAmount:    m.RefundedAmount,
		ReceivedAt:        m.ReceivedAt,
		OperatorID:        m.OperatorID,
		Remark:            m.Remark,
	}
}

// FromDomain populates the persistence model from a domain Payment entity.
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.FromDomainClubAggregateRoot(p.ClubAggregateRoot)
	m.PaymentNumber = p.PaymentNumber
	m.InvoiceID = p.InvoiceID
	m.GuestID = p.GuestID
	m.Amount = p.Amount
	m.Method = p.Method
	m.Type = p.Type
	m.Reference = p.Reference
	// empty key persists as NULL so keyless rows never trip the unique index
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		m.IdempotencyKey = &key
	} else {
		m.IdempotencyKey = nil
	}
	m.DepositID = p.DepositID
	m.RefundedAmount = p.RefundedAmount
	m.ReceivedAt = p.ReceivedAt
	m.OperatorID = p.OperatorID
	m.Remark = p.Remark
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// RefundModel is the persistence model for the Refund aggregate root.
type RefundModel struct {
	ClubAggregateModel
	RefundNumber string               `gorm:"type:varchar(50);not null;uniqueIndex:idx_refund_club_number,priority:2"`
	InvoiceID    uuid.UUID            `gorm:"type:uuid;not null;index"`
	PaymentID    *uuid.UUID           `gorm:"type:uuid;index"`
	GuestID      uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount       decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	Method       billing.RefundMethod `gorm:"type:varchar(20);not null"`
	Reason       string               `gorm:"type:varchar(500);not null"`
	Status       billing.RefundStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	RequestedBy  uuid.UUID            `gorm:"type:uuid;not null"`
	RequestedAt  time.Time            `gorm:"not null"`
	ReviewedBy   *uuid.UUID           `gorm:"type:uuid"`
	ReviewedAt   *time.Time
	ReviewNote   string `gorm:"type:varchar(500)"`
	ProcessedBy  *uuid.UUID `gorm:"type:uuid"`
	ProcessedAt  *time.Time
	Reference    string `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (RefundModel) TableName() string {
	return "refunds"
}

// ToDomain converts the persistence model to a domain Refund entity.
func (m *RefundModel) ToDomain() *billing.Refund {
	return &billing.Refund{
		ClubAggregateRoot: m.clubAggregateRootFromModel(),
		RefundNumber:      m.RefundNumber,
		InvoiceID:         m.InvoiceID,
		PaymentID:         m.PaymentID,
		GuestID:           m.GuestID,
		Amount:            m.Amount,
		Method:            m.Method,
		Reason:            m.Reason,
		Status:            m.Status,
		RequestedBy:       m.RequestedBy,
		RequestedAt:       m.RequestedAt,
		ReviewedBy:        m.ReviewedBy,
		ReviewedAt:        m.ReviewedAt,
		ReviewNote:        m.ReviewNote,
		ProcessedBy:       m.ProcessedBy,
		ProcessedAt:       m.ProcessedAt,
		Reference:         m.Reference,
	}
}

// FromDomain populates the persistence model from a domain Refund entity.
func (m *RefundModel) FromDomain(r *billing.Refund) {
	m.FromDomainClubAggregateRoot(r.ClubAggregateRoot)
	m.RefundNumber = r.RefundNumber
	m.InvoiceID = r.InvoiceID
	m.PaymentID = r.PaymentID
	m.GuestID = r.GuestID
	m.Amount = r.Amount
	m.Method = r.Method
	m.Reason = r.Reason
	m.Status = r.Status
	m.RequestedBy = r.RequestedBy
	m.RequestedAt = r.RequestedAt
	m.ReviewedBy = r.ReviewedBy
	m.ReviewedAt = r.ReviewedAt
	m.ReviewNote = r.ReviewNote
	m.ProcessedBy = r.ProcessedBy
	m.ProcessedAt = r.ProcessedAt
	m.Reference = r.Reference
}

// RefundModelFromDomain creates a new persistence model from a domain Refund.
func RefundModelFromDomain(r *billing.Refund) *RefundModel {
	m := &RefundModel{}
	m.FromDomain(r)
	return m
}

// DepositModel is the persistence model for the Deposit aggregate root.
type DepositModel struct {
	ClubAggregateModel
	DepositNumber string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_deposit_club_number,priority:2"`
	GuestID       uuid.UUID             `gorm:"type:uuid;not null;index"`
	GuestName     string                `gorm:"type:varchar(200);not null"`
	BookingID     *uuid.UUID            `gorm:"type:uuid;index"`
	Amount        decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	AppliedAmount decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Method        billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	Reference     string                `gorm:"type:varchar(200)"`
	Status        billing.DepositStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	CollectedAt   *time.Time
	ExpiresAt     *time.Time `gorm:"index"`
	ClosedAt      *time.Time
	Remark        string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (DepositModel) TableName() string {
	return "deposits"
}

// ToDomain converts the persistence model to a domain Deposit entity.
func (m *DepositModel) ToDomain() *billing.Deposit {
	return &billing.Deposit{
		ClubAggregateRoot: m.clubAggregateRootFromModel(),
		DepositNumber:     m.DepositNumber,
		GuestID:           m.GuestID,
		GuestName:         m.GuestName,
		BookingID:         m.BookingID,
		Amount:            m.Amount,
		AppliedAmount:     m.AppliedAmount,
		Method:            m.Method,
		Reference:         m.Reference,
		Status:            m.Status,
		CollectedAt:       m.CollectedAt,
		ExpiresAt:         m.ExpiresAt,
		ClosedAt:          m.ClosedAt,
		Remark:            m.Remark,
	}
}

// FromDomain populates the persistence model from a domain Deposit entity.
func (m *DepositModel) FromDomain(d *billing.Deposit) {
	m.FromDomainClubAggregateRoot(d.ClubAggregateRoot)
	m.DepositNumber = d.DepositNumber
	m.GuestID = d.GuestID
	m.GuestName = d.GuestName
	m.BookingID = d.BookingID
	m.Amount = d.Amount
	m.AppliedAmount = d.AppliedAmount
	m.Method = d.Method
	m.Reference = d.Reference
	m.Status = d.Status
	m.CollectedAt = d.CollectedAt
	m.ExpiresAt = d.ExpiresAt
	m.ClosedAt = d.ClosedAt
	m.Remark = d.Remark
}

// DepositModelFromDomain creates a new persistence model from a domain Deposit.
func DepositModelFromDomain(d *billing.Deposit) *DepositModel {
	m := &DepositModel{}
	m.FromDomain(d)
	return m
}
