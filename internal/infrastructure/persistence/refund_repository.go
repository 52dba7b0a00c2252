package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/infrastructure/persistence/models"
)

// GormRefundRepository implements billing.RefundRepository using GORM
type GormRefundRepository struct {
	db *gorm.DB
}

// NewGormRefundRepository creates a new GormRefundRepository
func NewGormRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// FindByID finds a refund by its ID
func (r *GormRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Refund, error) {
	var model models.RefundModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForClub finds a refund by ID for a specific club
func (r *GormRefundRepository) FindByIDForClub(ctx context.Context, clubID, id uuid.UUID) (*billing.Refund, error) {
	var model models.RefundModel
	if err := r.db.WithContext(ctx).
		Where("club_id = ? AND id = ?", clubID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoice finds all refunds raised against an invoice
func (r *GormRefundRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Refund, error) {
	var refundModels []models.RefundModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("requested_at ASC").
		Find(&refundModels).Error; err != nil {
		return nil, err
	}
	refunds := make([]billing.Refund, len(refundModels))
	for i := range refundModels {
		refunds[i] = *refundModels[i].ToDomain()
	}
	return refunds, nil
}

// FindByStatus finds refunds in a workflow state for a club
func (r *GormRefundRepository) FindByStatus(ctx context.Context, clubID uuid.UUID, status billing.RefundStatus, filter shared.Filter) ([]billing.Refund, error) {
	var refundModels []models.RefundModel
	query := r.db.WithContext(ctx).Model(&models.RefundModel{}).
		Where("club_id = ? AND status = ?", clubID, status)
	query = applyBillingFilter(query, filter, RefundSortFields)

	if err := query.Find(&refundModels).Error; err != nil {
		return nil, err
	}
	refunds := make([]billing.Refund, len(refundModels))
	for i := range refundModels {
		refunds[i] = *refundModels[i].ToDomain()
	}
	return refunds, nil
}

// FindAll finds all refunds with filtering
func (r *GormRefundRepository) FindAll(ctx context.Context, filter shared.Filter) ([]billing.Refund, error) {
	var refundModels []models.RefundModel
	query := r.db.WithContext(ctx).Model(&models.RefundModel{})
	query = applyBillingFilter(query, filter, RefundSortFields)

	if err := query.Find(&refundModels).Error; err != nil {
		return nil, err
	}
	refunds := make([]billing.Refund, len(refundModels))
	for i := range refundModels {
		refunds[i] = *refundModels[i].ToDomain()
	}
	return refunds, nil
}

// FindAllForClub finds all refunds for a club with filtering
func (r *GormRefundRepository) FindAllForClub(ctx context.Context, clubID uuid.UUID, filter shared.Filter) ([]billing.Refund, error) {
	var refundModels []models.RefundModel
	query := r.db.WithContext(ctx).Model(&models.RefundModel{}).
		Where("club_id = ?", clubID)
	query = applyBillingFilter(query, filter, RefundSortFields)

	if err := query.Find(&refundModels).Error; err != nil {
		return nil, err
	}
	refunds := make([]billing.Refund, len(refundModels))
	for i := range refundModels {
		refunds[i] = *refundModels[i].ToDomain()
	}
	return refunds, nil
}

// SumProcessedByInvoice totals processed refunds for an invoice.
// Only PROCESSED refunds move money, so pending and approved requests
// are excluded.
func (r *GormRefundRepository) SumProcessedByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.RefundModel{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("invoice_id = ? AND status = ?", invoiceID, billing.RefundStatusProcessed).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// SumProcessedByPayment totals processed refunds targeted at one payment
func (r *GormRefundRepository) SumProcessedByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.RefundModel{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("payment_id = ? AND status = ?", paymentID, billing.RefundStatusProcessed).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// Save creates or updates a refund
func (r *GormRefundRepository) Save(ctx context.Context, refund *billing.Refund) error {
	model := models.RefundModelFromDomain(refund)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves the refund with optimistic locking
func (r *GormRefundRepository) SaveWithLock(ctx context.Context, refund *billing.Refund) error {
	model := models.RefundModelFromDomain(refund)
	result := r.db.WithContext(ctx).
		Model(&models.RefundModel{}).
		Where("id = ? AND version = ?", refund.ID, refund.Version-1).
		Select("*").
		Omit("id", "created_at").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Delete deletes a refund
func (r *GormRefundRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.RefundModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts refunds matching the filter
func (r *GormRefundRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.RefundModel{})
	query = applyBillingFilterWithoutPagination(query, filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GenerateRefundNumber generates the next refund number for the club
func (r *GormRefundRepository) GenerateRefundNumber(ctx context.Context, clubID uuid.UUID) (string, error) {
	// Format: REF-YYYYMMDD-XXXXX
	date := time.Now().Format("20060102")
	prefix := fmt.Sprintf("REF-%s-", date)

	var maxNumber string
	if err := r.db.WithContext(ctx).
		Model(&models.RefundModel{}).
		Select("refund_number").
		Where("club_id = ? AND refund_number LIKE ?", clubID, prefix+"%").
		Order("refund_number DESC").
		Limit(1).
		Pluck("refund_number", &maxNumber).Error; err != nil {
		return "", err
	}

	var nextNum int
	if maxNumber != "" {
		parts := strings.Split(maxNumber, "-")
		if len(parts) == 3 {
			fmt.Sscanf(parts[2], "%d", &nextNum)
		}
	}
	nextNum++

	return fmt.Sprintf("%s%05d", prefix, nextNum), nil
}

// Ensure GormRefundRepository implements RefundRepository
var _ billing.RefundRepository = (*GormRefundRepository)(nil)
