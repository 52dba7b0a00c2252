package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/spa/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// AggregateModel provides common persistence fields for aggregate roots.
// It extends BaseModel with version for optimistic locking.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.Version = a.Version
}

// ClubAggregateModel provides common persistence fields for club-scoped aggregate roots.
// It extends AggregateModel with club ID and creator info.
type ClubAggregateModel struct {
	AggregateModel
	ClubID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
}

// FromDomainClubAggregateRoot populates ClubAggregateModel from domain ClubAggregateRoot
func (m *ClubAggregateModel) FromDomainClubAggregateRoot(c shared.ClubAggregateRoot) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.ClubID = c.ClubID
	m.CreatedBy = c.CreatedBy
}

// PopulateClubAggregateRoot populates a domain ClubAggregateRoot from the persistence model
func (m *ClubAggregateModel) PopulateClubAggregateRoot(c *shared.ClubAggregateRoot) {
	c.BaseAggregateRoot.BaseEntity.ID = m.ID
	c.BaseAggregateRoot.BaseEntity.CreatedAt = m.CreatedAt
	c.BaseAggregateRoot.BaseEntity.UpdatedAt = m.UpdatedAt
	c.BaseAggregateRoot.Version = m.Version
	c.ClubID = m.ClubID
	c.CreatedBy = m.CreatedBy
}

// clubAggregateRootFromModel builds a domain ClubAggregateRoot from the persistence model
func (m *ClubAggregateModel) clubAggregateRootFromModel() shared.ClubAggregateRoot {
	return shared.ClubAggregateRoot{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		ClubID:    m.ClubID,
		CreatedBy: m.CreatedBy,
	}
}
