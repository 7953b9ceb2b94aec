// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	FullName     string     `json:"full_name" gorm:"size:100"`
	Phone        string     `json:"phone" gorm:"size:20"`
	Neighborhood string     `json:"neighborhood" gorm:"size:100;index"`
	RT           string     `json:"rt" gorm:"size:5"`
	RW           string     `json:"rw" gorm:"size:5"`
	AvatarURL    string     `json:"avatar_url" gorm:"size:500"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	// Relationships
	Listings    []Listing    `json:"listings,omitempty" gorm:"foreignKey:SellerID"`
	GroupBuys   []GroupBuy   `json:"group_buys,omitempty" gorm:"foreignKey:OrganizerID"`
	Commitments []Commitment `json:"commitments,omitempty" gorm:"foreignKey:ParticipantID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
