// internal/models/listing.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Listing is an individual "lapak" stall offer published by a resident.
type Listing struct {
	BaseModel
	SellerID      uuid.UUID      `json:"seller_id" gorm:"type:uuid;not null;index"`
	Title         string         `json:"title" gorm:"size:255;not null"`
	Description   string         `json:"description" gorm:"type:text"`
	Category      string         `json:"category" gorm:"size:100;index"`
	Price         float64        `json:"price" gorm:"type:decimal(12,2);not null"`
	OriginalPrice *float64       `json:"original_price,omitempty" gorm:"type:decimal(12,2)"`
	Stock         int            `json:"stock" gorm:"default:0"`
	Unit          string         `json:"unit" gorm:"size:20"`
	Images        pq.StringArray `json:"images" gorm:"type:text[]"`
	Tags          pq.StringArray `json:"tags" gorm:"type:text[]"`
	Status        ListingStatus  `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	ViewCount     int64          `json:"view_count" gorm:"default:0"`
	SalesCount    int64          `json:"sales_count" gorm:"default:0"`

	// Relationships
	Seller    User       `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	GroupBuys []GroupBuy `json:"group_buys,omitempty" gorm:"foreignKey:ListingID"`
}
