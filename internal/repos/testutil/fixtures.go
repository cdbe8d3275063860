package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/types"
)

// SeedUser inserts a verified student and returns it.
func SeedUser(t *testing.T, gormDB *gorm.DB, email string) *types.User {
	t.Helper()
	user := &types.User{
		ID:           uuid.New(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "x",
		Role:         types.RoleStudent,
		IsVerified:   true,
	}
	if err := gormDB.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedQuestions inserts n questions at the given level, four choices each,
// first choice correct. Returns the inserted rows in order.
func SeedQuestions(t *testing.T, gormDB *gorm.DB, level types.Level, n int) []*types.Question {
	t.Helper()
	questions := make([]*types.Question, 0, n)
	for i := 0; i < n; i++ {
		choices := make([]types.Choice, 0, 4)
		for c := 0; c < 4; c++ {
			choices = append(choices, types.Choice{
				ID:   fmt.Sprintf("%s-%d-%d", level, i, c),
				Text: fmt.Sprintf("Choice %d", c+1),
			})
		}
		encoded, err := types.EncodeChoices(choices)
		if err != nil {
			t.Fatalf("encode choices: %v", err)
		}
		questions = append(questions, &types.Question{
			ID:              uuid.New(),
			Competency:      fmt.Sprintf("Competency %d", i%22),
			Level:           level,
			Text:            fmt.Sprintf("[%s] question %d?", level, i),
			Choices:         encoded,
			CorrectChoiceID: choices[0].ID,
		})
	}
	if err := gormDB.Create(questions).Error; err != nil {
		t.Fatalf("seed questions: %v", err)
	}
	return questions
}

// CorrectChoice returns the correct choice id of a seeded question.
func CorrectChoice(q *types.Question) string {
	return q.CorrectChoiceID
}

// WrongChoice returns a choice id other than the correct one.
func WrongChoice(t *testing.T, q *types.Question) string {
	t.Helper()
	choices, err := q.DecodeChoices()
	if err != nil {
		t.Fatalf("decode choices: %v", err)
	}
	for _, c := range choices {
		if c.ID != q.CorrectChoiceID {
			return c.ID
		}
	}
	t.Fatalf("question %s has no wrong choice", q.ID)
	return ""
}

// SeedExam inserts an exam row for the user in the given state.
func SeedExam(t *testing.T, gormDB *gorm.DB, userID uuid.UUID, status types.ExamStatus, currentStep *types.Step) *types.Exam {
	t.Helper()
	exam := &types.Exam{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      status,
		CurrentStep: currentStep,
	}
	if err := gormDB.Create(exam).Error; err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return exam
}

// SeedAttempt inserts an attempt row. Pass a nil submittedAt for an attempt
// still in flight.
func SeedAttempt(t *testing.T, gormDB *gorm.DB, examID uuid.UUID, step types.Step, score, total int, submittedAt *time.Time) *types.Attempt {
	t.Helper()
	attempt := &types.Attempt{
		ID:          uuid.New(),
		ExamID:      examID,
		Step:        step,
		Score:       score,
		Total:       total,
		StartedAt:   time.Now().Add(-time.Minute),
		SubmittedAt: submittedAt,
	}
	if err := gormDB.Create(attempt).Error; err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	return attempt
}

// StepPtr is a convenience for optional step fields.
func StepPtr(s types.Step) *types.Step {
	return &s
}
