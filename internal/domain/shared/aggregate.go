package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides common fields for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	Version      int           `gorm:"not null;default:1"`
	domainEvents []DomainEvent `gorm:"-"`
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// AddDomainEvent adds a domain event to be published
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity:   NewBaseEntity(),
		Version:      1,
		domainEvents: make([]DomainEvent, 0),
	}
}

// ClubAggregateRoot extends BaseAggregateRoot with club scoping.
// Every billing record belongs to exactly one club of the chain.
type ClubAggregateRoot struct {
	BaseAggregateRoot
	ClubID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"` // Operator who created this record
}

// NewClubAggregateRoot creates a new club-scoped aggregate root
func NewClubAggregateRoot(clubID uuid.UUID) ClubAggregateRoot {
	return ClubAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		ClubID:            clubID,
	}
}

// NewClubAggregateRootWithCreator creates a new club-scoped aggregate root with creator info
func NewClubAggregateRootWithCreator(clubID, createdBy uuid.UUID) ClubAggregateRoot {
	return ClubAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		ClubID:            clubID,
		CreatedBy:         &createdBy,
	}
}

// SetCreatedBy sets the creator operator ID
func (c *ClubAggregateRoot) SetCreatedBy(operatorID uuid.UUID) {
	c.CreatedBy = &operatorID
}

// GetCreatedBy returns the creator operator ID
func (c *ClubAggregateRoot) GetCreatedBy() *uuid.UUID {
	return c.CreatedBy
}
