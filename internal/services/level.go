package services

import (
	"math"

	"github.com/testschool/testschool-backend/internal/types"
)

// TargetTotal is the size of a full step question set and the floor of the
// grading denominator.
const TargetTotal = 44

var stepLevels = map[types.Step][]types.Level{
	types.StepOne:   {types.LevelA1, types.LevelA2},
	types.StepTwo:   {types.LevelB1, types.LevelB2},
	types.StepThree: {types.LevelC1, types.LevelC2},
}

// StepLevels maps a step to the two proficiency levels it examines.
func StepLevels(step types.Step) ([]types.Level, bool) {
	levels, ok := stepLevels[step]
	return levels, ok
}

type StepResult struct {
	Level   types.Level
	Proceed bool
}

// ScoreToLevel is the complete classification policy: thresholds at 25, 50
// and 75 percent, inclusive lower bounds. STEP_3 has no proceed outcome and
// only two bands (below 50 and at-or-above 50). A STEP_1 result below 25
// locks the exam permanently.
func ScoreToLevel(step types.Step, pct float64) StepResult {
	switch step {
	case types.StepOne:
		switch {
		case pct < 25:
			return StepResult{Level: types.LevelFailLock}
		case pct < 50:
			return StepResult{Level: types.LevelA1}
		case pct < 75:
			return StepResult{Level: types.LevelA2}
		default:
			return StepResult{Level: types.LevelA2, Proceed: true}
		}
	case types.StepTwo:
		switch {
		case pct < 25:
			return StepResult{Level: types.LevelA2}
		case pct < 50:
			return StepResult{Level: types.LevelB1}
		case pct < 75:
			return StepResult{Level: types.LevelB2}
		default:
			return StepResult{Level: types.LevelB2, Proceed: true}
		}
	default:
		switch {
		case pct < 25:
			return StepResult{Level: types.LevelB2}
		case pct < 50:
			return StepResult{Level: types.LevelC1}
		default:
			return StepResult{Level: types.LevelC2}
		}
	}
}

type SubmittedAnswer struct {
	QuestionID string `json:"questionId" binding:"required"`
	ChoiceID   string `json:"choiceId" binding:"required"`
}

type GradedAnswer struct {
	QuestionID string
	ChoiceID   string
	Correct    bool
	Known      bool
}

// GradeAnswers scores submissions against the authoritative question set.
// Unknown or malformed question ids never error; they count as incorrect.
func GradeAnswers(answers []SubmittedAnswer, questions []*types.Question) (int, []GradedAnswer) {
	byID := make(map[string]*types.Question, len(questions))
	for _, q := range questions {
		byID[q.ID.String()] = q
	}
	correct := 0
	graded := make([]GradedAnswer, 0, len(answers))
	for _, ans := range answers {
		q, known := byID[ans.QuestionID]
		isCorrect := known && q.CorrectChoiceID == ans.ChoiceID
		if isCorrect {
			correct++
		}
		graded = append(graded, GradedAnswer{
			QuestionID: ans.QuestionID,
			ChoiceID:   ans.ChoiceID,
			Correct:    isCorrect,
			Known:      known,
		})
	}
	return correct, graded
}

// GradingTotal guards the percentage denominator against under- and
// over-submission without shrinking it below the expected set size.
func GradingTotal(submitted int) int {
	return int(math.Max(float64(TargetTotal), float64(submitted)))
}
