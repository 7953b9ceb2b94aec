// internal/services/user_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lapakwarga/lapakwarga-backend/internal/models"
	"github.com/lapakwarga/lapakwarga-backend/internal/utils"
)

type UserService struct {
	db *gorm.DB
}

type UpdateUserProfileRequest struct {
	Username     string `json:"username,omitempty" validate:"omitempty,username"`
	FullName     string `json:"full_name,omitempty" validate:"omitempty,min=2,max=100"`
	Phone        string `json:"phone,omitempty" validate:"omitempty,min=8,max=20"`
	Neighborhood string `json:"neighborhood,omitempty" validate:"omitempty,min=2,max=100"`
	RT           string `json:"rt,omitempty" validate:"omitempty,max=5"`
	RW           string `json:"rw,omitempty" validate:"omitempty,max=5"`
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetUserByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("user not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

// GetPublicProfile returns the neighbor-visible subset of a user row.
func (s *UserService) GetPublicProfile(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.Select("id, username, full_name, neighborhood, rt, rw, created_at").
		First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("user not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *UserService) UpdateProfile(userID uuid.UUID, req *UpdateUserProfileRequest) (*models.User, error) {
	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Find user
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	// Check username uniqueness if updating
	if req.Username != "" && req.Username != user.Username {
		var existingUser models.User
		if err := s.db.Where("username = ? AND id != ?", req.Username, userID).First(&existingUser).Error; err == nil {
			return nil, errors.New("username already taken")
		}
	}

	// Update fields
	if req.Username != "" {
		user.Username = req.Username
	}
	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.Neighborhood != "" {
		user.Neighborhood = req.Neighborhood
	}
	if req.RT != "" {
		user.RT = req.RT
	}
	if req.RW != "" {
		user.RW = req.RW
	}

	// Save changes
	if err := s.db.Save(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return &user, nil
}

// DeactivateAccount soft deletes a user after verifying the password. Held
// commitments in active group buys block deactivation so committed quantities
// stay accounted for.
func (s *UserService) DeactivateAccount(userID uuid.UUID, password string) error {
	// Find user
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	// Verify password
	if err := user.CheckPassword(password); err != nil {
		return errors.New("invalid password")
	}

	var heldCommitments int64
	if err := s.db.Model(&models.Commitment{}).
		Joins("JOIN group_buys ON group_buys.id = commitments.group_buy_id").
		Where("commitments.participant_id = ? AND commitments.state = ? AND group_buys.lifecycle_state = ?",
			userID, models.CommitmentStateHeld, models.LifecycleStateActive).
		Count(&heldCommitments).Error; err != nil {
		return fmt.Errorf("failed to check commitments: %w", err)
	}

	if heldCommitments > 0 {
		return errors.New("leave your active group buys before deactivating the account")
	}

	// Soft delete user
	if err := s.db.Delete(&user).Error; err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}

	return nil
}
