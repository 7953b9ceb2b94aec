// internal/services/listing_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lapakwarga/lapakwarga-backend/internal/database"
	"github.com/lapakwarga/lapakwarga-backend/internal/models"
	"github.com/lapakwarga/lapakwarga-backend/internal/utils"
)

type ListingService struct {
	db *gorm.DB
}

type CreateListingRequest struct {
	Title         string   `json:"title" validate:"required,min=3,max=255"`
	Description   string   `json:"description" validate:"required,min=10"`
	Category      string   `json:"category" validate:"required"`
	Price         float64  `json:"price" validate:"required,gt=0"`
	OriginalPrice *float64 `json:"original_price,omitempty" validate:"omitempty,gt=0"`
	Stock         int      `json:"stock" validate:"min=0"`
	Unit          string   `json:"unit,omitempty"`
	Images        []string `json:"images,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

type UpdateListingRequest struct {
	Title         string               `json:"title,omitempty" validate:"omitempty,min=3,max=255"`
	Description   string               `json:"description,omitempty" validate:"omitempty,min=10"`
	Category      string               `json:"category,omitempty"`
	Price         float64              `json:"price,omitempty" validate:"omitempty,gt=0"`
	OriginalPrice *float64             `json:"original_price,omitempty" validate:"omitempty,gt=0"`
	Stock         *int                 `json:"stock,omitempty" validate:"omitempty,min=0"`
	Unit          string               `json:"unit,omitempty"`
	Images        []string             `json:"images,omitempty"`
	Tags          []string             `json:"tags,omitempty"`
	Status        models.ListingStatus `json:"status,omitempty"`
}

type ListingSearchParams struct {
	utils.PaginationParams
	SellerID *uuid.UUID            `json:"seller_id,omitempty"`
	Status   *models.ListingStatus `json:"status,omitempty"`
	PriceMin *float64              `json:"price_min,omitempty"`
	PriceMax *float64              `json:"price_max,omitempty"`
	Tags     []string              `json:"tags,omitempty"`
	InStock  *bool                 `json:"in_stock,omitempty"`
}

func NewListingService(db *gorm.DB) *ListingService {
	return &ListingService{db: db}
}

func (s *ListingService) CreateListing(sellerID uuid.UUID, req *CreateListingRequest) (*models.Listing, error) {
	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if req.OriginalPrice != nil && req.Price >= *req.OriginalPrice {
		return nil, errors.New("price must be below the original price")
	}

	// Verify seller exists and is active
	var seller models.User
	if err := s.db.First(&seller, "id = ?", sellerID).Error; err != nil {
		return nil, fmt.Errorf("seller not found: %w", err)
	}

	if seller.Status != models.UserStatusActive {
		return nil, errors.New("seller account is not active")
	}

	listing := &models.Listing{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		SellerID:      sellerID,
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Stock:         req.Stock,
		Unit:          req.Unit,
		Images:        req.Images,
		Tags:          req.Tags,
		Status:        models.ListingStatusDraft,
	}

	if err := s.db.Create(listing).Error; err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.db.Preload("Seller").First(listing, "id = ?", listing.ID)

	return listing, nil
}

func (s *ListingService) GetListing(id uuid.UUID, userID *uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := s.db.Preload("Seller").First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("listing not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	// Non-active listings are visible to their seller only
	if listing.Status != models.ListingStatusActive {
		if userID == nil || *userID != listing.SellerID {
			return nil, errors.New("listing not found")
		}
	}

	// Increment view count if not the seller viewing
	if userID == nil || *userID != listing.SellerID {
		go s.incrementViewCount(id)
	}

	return &listing, nil
}

func (s *ListingService) UpdateListing(id uuid.UUID, sellerID uuid.UUID, req *UpdateListingRequest) (*models.Listing, error) {
	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Find and verify ownership
	var listing models.Listing
	if err := s.db.First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("listing not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if listing.SellerID != sellerID {
		return nil, errors.New("unauthorized to update this listing")
	}

	// Prepare updates
	updates := make(map[string]interface{})
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Category != "" {
		updates["category"] = req.Category
	}
	if req.Price > 0 {
		updates["price"] = req.Price
	}
	if req.OriginalPrice != nil {
		updates["original_price"] = *req.OriginalPrice
	}
	if req.Stock != nil {
		updates["stock"] = *req.Stock
	}
	if req.Unit != "" {
		updates["unit"] = req.Unit
	}
	if req.Images != nil {
		updates["images"] = req.Images
	}
	if req.Tags != nil {
		updates["tags"] = req.Tags
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}

	// Apply updates
	if err := s.db.Model(&listing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	s.db.Preload("Seller").First(&listing, "id = ?", id)

	return &listing, nil
}

func (s *ListingService) DeleteListing(id uuid.UUID, sellerID uuid.UUID) error {
	// Find and verify ownership
	var listing models.Listing
	if err := s.db.First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("listing not found")
		}
		return fmt.Errorf("database error: %w", err)
	}

	if listing.SellerID != sellerID {
		return errors.New("unauthorized to delete this listing")
	}

	// The active group buy check and the delete run in one transaction so a
	// campaign created in between cannot end up pointing at a removed listing.
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var activeGroupBuys int64
		if err := tx.Model(&models.GroupBuy{}).
			Where("listing_id = ? AND lifecycle_state = ?", id, models.LifecycleStateActive).
			Count(&activeGroupBuys).Error; err != nil {
			return fmt.Errorf("failed to check group buys: %w", err)
		}

		if activeGroupBuys > 0 {
			return errors.New("cannot delete listing with an active group buy")
		}

		// Soft delete
		if err := tx.Delete(&listing).Error; err != nil {
			return fmt.Errorf("failed to delete listing: %w", err)
		}

		return nil
	})
}

func (s *ListingService) SearchListings(params ListingSearchParams) ([]models.Listing, int64, error) {
	query := s.db.Model(&models.Listing{}).Preload("Seller")

	// Apply filters
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	} else {
		// Default to active listings only
		query = query.Where("status = ?", models.ListingStatusActive)
	}

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	if params.PriceMin != nil {
		query = query.Where("price >= ?", *params.PriceMin)
	}

	if params.PriceMax != nil {
		query = query.Where("price <= ?", *params.PriceMax)
	}

	if len(params.Tags) > 0 {
		query = query.Where("tags && ?", params.Tags)
	}

	if params.InStock != nil && *params.InStock {
		query = query.Where("stock > 0")
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	// Apply sorting
	allowedSortFields := []string{"created_at", "updated_at", "title", "price", "sales_count"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)

	// Apply pagination
	query = utils.ApplyPagination(query, params.PaginationParams)

	// Execute query
	var listings []models.Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch listings: %w", err)
	}

	return listings, total, nil
}

func (s *ListingService) GetSellerListings(sellerID uuid.UUID, params utils.PaginationParams) ([]models.Listing, int64, error) {
	query := s.db.Model(&models.Listing{}).Where("seller_id = ?", sellerID)

	// Apply search if provided
	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count seller listings: %w", err)
	}

	// Apply sorting and pagination
	allowedSortFields := []string{"created_at", "updated_at", "title", "status", "sales_count"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	// Execute query
	var listings []models.Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch seller listings: %w", err)
	}

	return listings, total, nil
}

func (s *ListingService) GetPopularListings(limit int) ([]models.Listing, error) {
	var listings []models.Listing
	if err := s.db.Where("status = ?", models.ListingStatusActive).
		Order("sales_count DESC, view_count DESC").
		Limit(limit).
		Preload("Seller").
		Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch popular listings: %w", err)
	}

	return listings, nil
}

// Helper methods

func (s *ListingService) incrementViewCount(listingID uuid.UUID) {
	s.db.Model(&models.Listing{}).Where("id = ?", listingID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
}
