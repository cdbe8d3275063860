package types

import (
	"time"

	"github.com/google/uuid"
)

type Certificate struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"index;not null;column:user_id" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	AttemptID uuid.UUID `gorm:"uniqueIndex;not null;column:attempt_id" json:"attempt_id"`
	Attempt   *Attempt  `gorm:"constraint:OnDelete:CASCADE;foreignKey:AttemptID;references:ID" json:"-"`
	Level     Level     `gorm:"not null;column:level" json:"level"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Certificate) TableName() string {
	return "certificate"
}
