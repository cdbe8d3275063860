package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/types"
)

var (
	ErrInvalidLevel        = fmt.Errorf("Invalid level")
	ErrInvalidCorrectIndex = fmt.Errorf("Invalid correctIndex")
	ErrTooFewChoices       = fmt.Errorf("Need at least two choices")
)

type QuestionPage struct {
	Items      []*types.Question `json:"items"`
	TotalPages int64             `json:"totalPages"`
}

type QuestionService interface {
	List(ctx context.Context, page, limit int) (*QuestionPage, error)
	Create(ctx context.Context, level types.Level, competency, text string, choices []string, correctIndex int) (*types.Question, error)
}

type questionService struct {
	db           *gorm.DB
	log          *logger.Logger
	questionRepo repos.QuestionRepo
}

func NewQuestionService(db *gorm.DB, log *logger.Logger, questionRepo repos.QuestionRepo) QuestionService {
	return &questionService{
		db:           db,
		log:          log.With("service", "QuestionService"),
		questionRepo: questionRepo,
	}
}

func (qs *questionService) List(ctx context.Context, page, limit int) (*QuestionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	items, total, err := qs.questionRepo.List(ctx, nil, page, limit)
	if err != nil {
		return nil, fmt.Errorf("Failed to list questions: %w", err)
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)
	return &QuestionPage{Items: items, TotalPages: totalPages}, nil
}

func (qs *questionService) Create(ctx context.Context, level types.Level, competency, text string, choiceTexts []string, correctIndex int) (*types.Question, error) {
	validLevel := false
	for _, lvl := range types.AllLevels {
		if lvl == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return nil, ErrInvalidLevel
	}
	if len(choiceTexts) < 2 {
		return nil, ErrTooFewChoices
	}
	if correctIndex < 0 || correctIndex >= len(choiceTexts) {
		return nil, ErrInvalidCorrectIndex
	}

	choices := make([]types.Choice, 0, len(choiceTexts))
	for _, t := range choiceTexts {
		choices = append(choices, types.Choice{ID: NewChoiceID(), Text: t})
	}
	encoded, err := types.EncodeChoices(choices)
	if err != nil {
		return nil, fmt.Errorf("Failed to encode choices: %w", err)
	}
	question := &types.Question{
		ID:              uuid.New(),
		Competency:      strings.TrimSpace(competency),
		Level:           level,
		Text:            strings.TrimSpace(text),
		Choices:         encoded,
		CorrectChoiceID: choices[correctIndex].ID,
	}
	created, err := qs.questionRepo.Create(ctx, nil, []*types.Question{question})
	if err != nil {
		return nil, fmt.Errorf("Failed to create question: %w", err)
	}
	return created[0], nil
}

// NewChoiceID returns a compact stable identifier for one answer choice.
func NewChoiceID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
