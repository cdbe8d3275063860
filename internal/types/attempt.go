package types

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is a single graded try at a step. Score, total and submitted_at
// are written exactly once on submit and never touched again.
type Attempt struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ExamID      uuid.UUID  `gorm:"index;not null;column:exam_id" json:"exam_id"`
	Exam        *Exam      `gorm:"constraint:OnDelete:CASCADE;foreignKey:ExamID;references:ID" json:"-"`
	Step        Step       `gorm:"not null;column:step" json:"step"`
	Score       int        `gorm:"not null;default:0;column:score" json:"score"`
	Total       int        `gorm:"not null;default:0;column:total" json:"total"`
	StartedAt   time.Time  `gorm:"not null;column:started_at" json:"started_at"`
	SubmittedAt *time.Time `gorm:"column:submitted_at" json:"submitted_at"`
}

func (Attempt) TableName() string {
	return "attempt"
}
