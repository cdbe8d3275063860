package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/testschool/testschool-backend/internal/types"
)

func TestScoreToLevel(t *testing.T) {
	tests := []struct {
		name        string
		step        types.Step
		pct         float64
		wantLevel   types.Level
		wantProceed bool
	}{
		{"step1 zero locks", types.StepOne, 0, types.LevelFailLock, false},
		{"step1 just under lock threshold", types.StepOne, 24.9, types.LevelFailLock, false},
		{"step1 at 25 is A1", types.StepOne, 25, types.LevelA1, false},
		{"step1 at 49.9 is A1", types.StepOne, 49.9, types.LevelA1, false},
		{"step1 at 50 is A2", types.StepOne, 50, types.LevelA2, false},
		{"step1 at 74.9 stays A2", types.StepOne, 74.9, types.LevelA2, false},
		{"step1 at 75 proceeds", types.StepOne, 75, types.LevelA2, true},
		{"step1 perfect proceeds", types.StepOne, 100, types.LevelA2, true},

		{"step2 below 25 keeps A2", types.StepTwo, 10, types.LevelA2, false},
		{"step2 at 25 is B1", types.StepTwo, 25, types.LevelB1, false},
		{"step2 at 50 is B2", types.StepTwo, 50, types.LevelB2, false},
		{"step2 at 74.9 stays B2", types.StepTwo, 74.9, types.LevelB2, false},
		{"step2 at 75 proceeds", types.StepTwo, 75, types.LevelB2, true},

		{"step3 below 25 keeps B2", types.StepThree, 20, types.LevelB2, false},
		{"step3 at 25 is C1", types.StepThree, 25, types.LevelC1, false},
		{"step3 at 49.9 is C1", types.StepThree, 49.9, types.LevelC1, false},
		{"step3 at 50 is C2", types.StepThree, 50, types.LevelC2, false},
		{"step3 perfect is C2", types.StepThree, 100, types.LevelC2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreToLevel(tt.step, tt.pct)
			if got.Level != tt.wantLevel {
				t.Errorf("ScoreToLevel(%s, %v).Level = %s, want %s", tt.step, tt.pct, got.Level, tt.wantLevel)
			}
			if got.Proceed != tt.wantProceed {
				t.Errorf("ScoreToLevel(%s, %v).Proceed = %v, want %v", tt.step, tt.pct, got.Proceed, tt.wantProceed)
			}
		})
	}
}

// Classification within one step must never decrease as the percentage rises.
func TestScoreToLevelMonotonic(t *testing.T) {
	rank := map[types.Level]int{
		types.LevelFailLock: 0,
		types.LevelA1:       1,
		types.LevelA2:       2,
		types.LevelB1:       3,
		types.LevelB2:       4,
		types.LevelC1:       5,
		types.LevelC2:       6,
	}
	for _, step := range []types.Step{types.StepOne, types.StepTwo, types.StepThree} {
		prev := -1
		for pct := 0.0; pct <= 100; pct += 0.5 {
			got := ScoreToLevel(step, pct)
			r := rank[got.Level]
			if r < prev {
				t.Fatalf("classification for %s regressed at pct=%v: %s", step, pct, got.Level)
			}
			prev = r
		}
	}
}

func TestStepLevels(t *testing.T) {
	tests := []struct {
		step   types.Step
		want   []types.Level
		wantOK bool
	}{
		{types.StepOne, []types.Level{types.LevelA1, types.LevelA2}, true},
		{types.StepTwo, []types.Level{types.LevelB1, types.LevelB2}, true},
		{types.StepThree, []types.Level{types.LevelC1, types.LevelC2}, true},
		{types.Step("STEP_4"), nil, false},
	}
	for _, tt := range tests {
		levels, ok := StepLevels(tt.step)
		if ok != tt.wantOK {
			t.Errorf("StepLevels(%s) ok = %v, want %v", tt.step, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if len(levels) != len(tt.want) {
			t.Errorf("StepLevels(%s) = %v, want %v", tt.step, levels, tt.want)
			continue
		}
		for i := range levels {
			if levels[i] != tt.want[i] {
				t.Errorf("StepLevels(%s)[%d] = %s, want %s", tt.step, i, levels[i], tt.want[i])
			}
		}
	}
}

func TestGradeAnswers(t *testing.T) {
	q1 := testQuestion("c1")
	q2 := testQuestion("c2")
	questions := []*types.Question{q1, q2}

	answers := []SubmittedAnswer{
		{QuestionID: q1.ID.String(), ChoiceID: "c1"},
		{QuestionID: q2.ID.String(), ChoiceID: "wrong"},
		{QuestionID: uuid.New().String(), ChoiceID: "c1"},
		{QuestionID: "not-a-uuid", ChoiceID: "c1"},
	}
	correct, graded := GradeAnswers(answers, questions)
	if correct != 1 {
		t.Fatalf("correct = %d, want 1", correct)
	}
	if len(graded) != 4 {
		t.Fatalf("len(graded) = %d, want 4", len(graded))
	}
	if !graded[0].Correct || !graded[0].Known {
		t.Errorf("graded[0] = %+v, want correct and known", graded[0])
	}
	if graded[1].Correct || !graded[1].Known {
		t.Errorf("graded[1] = %+v, want incorrect but known", graded[1])
	}
	if graded[2].Known || graded[2].Correct {
		t.Errorf("graded[2] = %+v, want unknown and incorrect", graded[2])
	}
	if graded[3].Known || graded[3].Correct {
		t.Errorf("graded[3] = %+v, want unknown and incorrect", graded[3])
	}
}

func TestGradingTotal(t *testing.T) {
	tests := []struct {
		submitted int
		want      int
	}{
		{0, 44},
		{30, 44},
		{44, 44},
		{50, 50},
	}
	for _, tt := range tests {
		if got := GradingTotal(tt.submitted); got != tt.want {
			t.Errorf("GradingTotal(%d) = %d, want %d", tt.submitted, got, tt.want)
		}
	}
}

func testQuestion(correctChoiceID string) *types.Question {
	return &types.Question{
		ID:              uuid.New(),
		Competency:      "Communication",
		Level:           types.LevelA1,
		Text:            "sample?",
		CorrectChoiceID: correctChoiceID,
	}
}
