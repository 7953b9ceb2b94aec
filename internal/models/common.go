// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

type ListingStatus string

const (
	ListingStatusDraft     ListingStatus = "draft"
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSoldOut   ListingStatus = "sold_out"
	ListingStatusSuspended ListingStatus = "suspended"
)

// LifecycleState is the closed set of phases a group buy moves through.
// Transitions are owned by the lifecycle clock; no other component may
// assign this field.
type LifecycleState string

const (
	LifecycleStateActive    LifecycleState = "active"
	LifecycleStateSucceeded LifecycleState = "succeeded"
	LifecycleStateFailed    LifecycleState = "failed"
	LifecycleStateCancelled LifecycleState = "cancelled"
)

// Terminal reports whether the state permits no further transitions.
func (s LifecycleState) Terminal() bool {
	return s == LifecycleStateSucceeded || s == LifecycleStateFailed || s == LifecycleStateCancelled
}

type CommitmentState string

const (
	CommitmentStateHeld     CommitmentState = "held"
	CommitmentStateReleased CommitmentState = "released"
)
