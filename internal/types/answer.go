package types

import (
	"github.com/google/uuid"
)

// Answer is the append-only audit trail of graded submissions. It feeds the
// per-competency accuracy analytics and is never read on the exam hot path.
type Answer struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AttemptID  uuid.UUID `gorm:"index;not null;column:attempt_id" json:"attempt_id"`
	Attempt    *Attempt  `gorm:"constraint:OnDelete:CASCADE;foreignKey:AttemptID;references:ID" json:"-"`
	QuestionID uuid.UUID `gorm:"not null;column:question_id" json:"question_id"`
	ChoiceID   string    `gorm:"not null;column:choice_id" json:"choice_id"`
	Correct    bool      `gorm:"not null;column:correct" json:"correct"`
}

func (Answer) TableName() string {
	return "answer"
}
