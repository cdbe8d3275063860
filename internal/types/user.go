package types

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string    `gorm:"not null;column:name" json:"name"`
	Email            string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	PasswordHash     string    `gorm:"not null;column:password_hash" json:"-"`
	IsVerified       bool      `gorm:"not null;default:false;column:is_verified" json:"is_verified"`
	Role             Role      `gorm:"not null;default:'student';column:role" json:"role"`
	RefreshTokenHash string    `gorm:"column:refresh_token_hash" json:"-"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
