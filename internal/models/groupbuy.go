// internal/models/groupbuy.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GroupBuy is a "borongan" campaign: a collective purchase that resolves once
// its target quantity is reached or its deadline passes. CommittedQuantity is
// mutated only through the ledger's compare-and-swap path, keyed on Version.
type GroupBuy struct {
	BaseModel
	OrganizerID       uuid.UUID      `json:"organizer_id" gorm:"type:uuid;not null;index"`
	ListingID         *uuid.UUID     `json:"listing_id,omitempty" gorm:"type:uuid;index"`
	Title             string         `json:"title" gorm:"size:255;not null"`
	Description       string         `json:"description" gorm:"type:text"`
	Category          string         `json:"category" gorm:"size:100;index"`
	ImageURL          string         `json:"image_url" gorm:"size:500"`
	UnitPrice         float64        `json:"unit_price" gorm:"type:decimal(12,2);not null"`
	OriginalUnitPrice *float64       `json:"original_unit_price,omitempty" gorm:"type:decimal(12,2)"`
	Unit              string         `json:"unit" gorm:"size:20"`
	TargetQuantity    int            `json:"target_quantity" gorm:"not null"`
	CommittedQuantity int            `json:"committed_quantity" gorm:"not null;default:0"`
	Deadline          time.Time      `json:"deadline" gorm:"not null;index"`
	LifecycleState    LifecycleState `json:"lifecycle_state" gorm:"type:varchar(20);default:'active';index"`
	ResolvedAt        *time.Time     `json:"resolved_at"`
	Version           int64          `json:"version" gorm:"not null;default:1"`

	// Relationships
	Organizer   User         `json:"organizer,omitempty" gorm:"foreignKey:OrganizerID"`
	Listing     *Listing     `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	Commitments []Commitment `json:"commitments,omitempty" gorm:"foreignKey:GroupBuyID"`
}

// RemainingCapacity is the quantity still open for new commitments.
func (g *GroupBuy) RemainingCapacity() int {
	remaining := g.TargetQuantity - g.CommittedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Commitment is a participant's pledge toward a group buy. A participant holds
// at most one row per group buy; amending a pledge updates the row in place.
// Released rows are kept as history.
type Commitment struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	GroupBuyID    uuid.UUID       `json:"group_buy_id" gorm:"type:uuid;not null;uniqueIndex:idx_commitments_group_buy_participant"`
	ParticipantID uuid.UUID       `json:"participant_id" gorm:"type:uuid;not null;uniqueIndex:idx_commitments_group_buy_participant"`
	Quantity      int             `json:"quantity" gorm:"not null"`
	State         CommitmentState `json:"state" gorm:"type:varchar(20);default:'held';index"`
	CommittedAt   time.Time       `json:"committed_at"`
	ReleasedAt    *time.Time      `json:"released_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Relationships
	GroupBuy    GroupBuy `json:"group_buy,omitempty" gorm:"foreignKey:GroupBuyID"`
	Participant User     `json:"participant,omitempty" gorm:"foreignKey:ParticipantID"`
}
