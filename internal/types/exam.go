package types

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the aggregate root for one user's certification lifecycle.
// Exactly one row exists per user, created lazily on the first status check.
type Exam struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"uniqueIndex;not null;column:user_id" json:"user_id"`
	User        *User      `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	Status      ExamStatus `gorm:"index;not null;default:'not_started';column:status" json:"status"`
	CurrentStep *Step      `gorm:"column:current_step" json:"current_step"`
	Step1Score  *int       `gorm:"column:step1_score" json:"step1_score"`
	Step2Score  *int       `gorm:"column:step2_score" json:"step2_score"`
	Step3Score  *int       `gorm:"column:step3_score" json:"step3_score"`
	FinalLevel  *Level     `gorm:"column:final_level" json:"final_level"`
	DueAt       *time.Time `gorm:"column:due_at" json:"due_at"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Exam) TableName() string {
	return "exam"
}
