package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/infrastructure/persistence/models"
)

// GormDepositRepository implements billing.DepositRepository using GORM
type GormDepositRepository struct {
	db *gorm.DB
}

// NewGormDepositRepository creates a new GormDepositRepository
func NewGormDepositRepository(db *gorm.DB) *GormDepositRepository {
	return &GormDepositRepository{db: db}
}

// FindByID finds a deposit by its ID
func (r *GormDepositRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Deposit, error) {
	var model models.DepositModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForClub finds a deposit by ID for a specific club
func (r *GormDepositRepository) FindByIDForClub(ctx context.Context, clubID, id uuid.UUID) (*billing.Deposit, error) {
	var model models.DepositModel
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

// FindByIDForUpdate loads the deposit under a FOR UPDATE row lock.
// Must be called inside a transaction, and always before any invoice
// lock taken in the same transaction.
func (r *GormDepositRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Deposit, error) {
	var model models.DepositModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByGuest finds deposits for a guest with filtering
func (r *GormDepositRepository) FindByGuest(ctx context.Context, clubID, guestID uuid.UUID, filter shared.Filter) ([]billing.Deposit, error) {
	var depositModels []models.DepositModel
	query := r.db.WithContext(ctx).Model(&models.DepositModel{}).
		Where("club_id = ? AND guest_id = ?", clubID, guestID)
	query = applyBillingFilter(query, filter, DepositSortFields)

	if err := query.Find(&depositModels).Error; err != nil {
		return nil, err
	}
	deposits := make([]billing.Deposit, len(depositModels))
	for i := range depositModels {
		deposits[i] = *depositModels[i].ToDomain()
	}
	return deposits, nil
}

// FindHeldByGuest finds deposits that still carry unapplied funds for a guest
func (r *GormDepositRepository) FindHeldByGuest(ctx context.Context, clubID, guestID uuid.UUID) ([]billing.Deposit, error) {
	var depositModels []models.DepositModel
	if err := r.db.WithContext(ctx).
		Where("club_id = ? AND guest_id = ? AND status IN ?", clubID, guestID,
			[]billing.DepositStatus{billing.DepositStatusCollected, billing.DepositStatusPartiallyApplied}).
		Order("collected_at ASC").
		Find(&depositModels).Error; err != nil {
		return nil, err
	}
	deposits := make([]billing.Deposit, len(depositModels))
	for i := range depositModels {
		deposits[i] = *depositModels[i].ToDomain()
	}
	return deposits, nil
}

// FindByBooking finds the deposit collected for a booking
func (r *GormDepositRepository) FindByBooking(ctx context.Context, clubID, bookingID uuid.UUID) (*billing.Deposit, error) {
	var model models.DepositModel
	if err := r.db.WithContext(ctx).
		Where("club_id = ? AND booking_id = ?", clubID, bookingID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds all deposits with filtering
func (r *GormDepositRepository) FindAll(ctx context.Context, filter shared.Filter) ([]billing.Deposit, error) {
	var depositModels []models.DepositModel
	query := r.db.WithContext(ctx).Model(&models.DepositModel{})
	query = applyBillingFilter(query, filter, DepositSortFields)

	if err := query.Find(&depositModels).Error; err != nil {
		return nil, err
	}
	deposits := make([]billing.Deposit, len(depositModels))
	for i := range depositModels {
		deposits[i] = *depositModels[i].ToDomain()
	}
	return deposits, nil
}

// FindAllForClub finds all deposits for a club with filtering
func (r *GormDepositRepository) FindAllForClub(ctx context.Context, clubID uuid.UUID, filter shared.Filter) ([]billing.Deposit, error) {
	var depositModels []models.DepositModel
	query := r.db.WithContext(ctx).Model(&models.DepositModel{}).
		Where("club_id = ?", clubID)
	query = applyBillingFilter(query, filter, DepositSortFields)

	if err := query.Find(&depositModels).Error; err != nil {
		return nil, err
	}
	deposits := make([]billing.Deposit, len(depositModels))
	for i := range depositModels {
		deposits[i] = *depositModels[i].ToDomain()
	}
	return deposits, nil
}

// Save creates or updates a deposit
func (r *GormDepositRepository) Save(ctx context.Context, deposit *billing.Deposit) error {
	model := models.DepositModelFromDomain(deposit)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves the deposit with optimistic locking
func (r *GormDepositRepository) SaveWithLock(ctx context.Context, deposit *billing.Deposit) error {
	model := models.DepositModelFromDomain(deposit)
	result := r.db.WithContext(ctx).
		Model(&models.DepositModel{}).
		Where("id = ? AND version = ?", deposit.ID, deposit.Version-1).
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

// Delete deletes a deposit
func (r *GormDepositRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.DepositModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts deposits matching the filter
func (r *GormDepositRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.DepositModel{})
	query = applyBillingFilterWithoutPagination(query, filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GenerateDepositNumber generates the next deposit number for the club
func (r *GormDepositRepository) GenerateDepositNumber(ctx context.Context, clubID uuid.UUID) (string, error) {
	// Format: DEP-YYYYMMDD-XXXXX
	date := time.Now().Format("20060102")
	prefix := fmt.Sprintf("DEP-%s-", date)

	var maxNumber string
	if err := r.db.WithContext(ctx).
		Model(&models.DepositModel{}).
		Select("deposit_number").
		Where("club_id = ? AND deposit_number LIKE ?", clubID, prefix+"%").
		Order("deposit_number DESC").
		Limit(1).
		Pluck("deposit_number", &maxNumber).Error; err != nil {
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

// Ensure GormDepositRepository implements DepositRepository
var _ billing.DepositRepository = (*GormDepositRepository)(nil)
