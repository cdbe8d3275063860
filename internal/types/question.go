package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Competency      string         `gorm:"index;not null;column:competency" json:"competency"`
	Level           Level          `gorm:"index;not null;column:level" json:"level"`
	Text            string         `gorm:"not null;column:text" json:"text"`
	Choices         datatypes.JSON `gorm:"not null;column:choices" json:"choices"`
	CorrectChoiceID string         `gorm:"not null;column:correct_choice_id" json:"-"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (Question) TableName() string {
	return "question"
}

func (q *Question) DecodeChoices() ([]Choice, error) {
	var choices []Choice
	if err := json.Unmarshal(q.Choices, &choices); err != nil {
		return nil, err
	}
	return choices, nil
}

func EncodeChoices(choices []Choice) (datatypes.JSON, error) {
	raw, err := json.Marshal(choices)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// PublicQuestion is the client-facing projection. The correct choice id
// must never leave the server while an exam is running.
type PublicQuestion struct {
	ID      uuid.UUID `json:"id"`
	Text    string    `json:"text"`
	Choices []Choice  `json:"choices"`
}

func (q *Question) Public() (PublicQuestion, error) {
	choices, err := q.DecodeChoices()
	if err != nil {
		return PublicQuestion{}, err
	}
	return PublicQuestion{ID: q.ID, Text: q.Text, Choices: choices}, nil
}
