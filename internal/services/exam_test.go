package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/repos/testutil"
	"github.com/testschool/testschool-backend/internal/requestdata"
	"github.com/testschool/testschool-backend/internal/types"
)

type recordingIssuer struct {
	mu     sync.Mutex
	issued []types.Level
}

func (ri *recordingIssuer) IssueForAttempt(ctx context.Context, userID, attemptID uuid.UUID, level types.Level) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.issued = append(ri.issued, level)
}

func (ri *recordingIssuer) count() int {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return len(ri.issued)
}

type examFixture struct {
	db      *gorm.DB
	service ExamService
	issuer  *recordingIssuer
	exams   repos.ExamRepo
}

func newExamFixture(t *testing.T) *examFixture {
	t.Helper()
	gormDB := testutil.NewTestDB(t)
	log := testutil.NewTestLogger(t)
	examRepo := repos.NewExamRepo(gormDB, log)
	attemptRepo := repos.NewAttemptRepo(gormDB, log)
	questionRepo := repos.NewQuestionRepo(gormDB, log)
	answerRepo := repos.NewAnswerRepo(gormDB, log)
	sampler := NewSamplerService(gormDB, log, questionRepo)
	issuer := &recordingIssuer{}
	service := NewExamService(gormDB, log, examRepo, attemptRepo, questionRepo, answerRepo, sampler, issuer, 60)
	return &examFixture{db: gormDB, service: service, issuer: issuer, exams: examRepo}
}

func authedCtx(userID uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		UserID: userID,
		Role:   types.RoleStudent,
	})
}

// answersFor builds a submission with the requested number of correct
// answers, the rest wrong.
func answersFor(t *testing.T, questions []*types.Question, correct int) []SubmittedAnswer {
	t.Helper()
	answers := make([]SubmittedAnswer, 0, len(questions))
	for i, q := range questions {
		choice := testutil.CorrectChoice(q)
		if i >= correct {
			choice = testutil.WrongChoice(t, q)
		}
		answers = append(answers, SubmittedAnswer{QuestionID: q.ID.String(), ChoiceID: choice})
	}
	return answers
}

func seedStepOneBank(t *testing.T, gormDB *gorm.DB) []*types.Question {
	t.Helper()
	bank := testutil.SeedQuestions(t, gormDB, types.LevelA1, 22)
	return append(bank, testutil.SeedQuestions(t, gormDB, types.LevelA2, 22)...)
}

func TestStatusCreatesExamOnce(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "status@example.com")
	ctx := authedCtx(user.ID)

	status, err := f.service.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != types.ExamNotStarted {
		t.Errorf("status = %s, want %s", status.Status, types.ExamNotStarted)
	}
	if status.Completed || status.Result != nil || status.CurrentStep != nil {
		t.Errorf("fresh status = %+v, want empty", status)
	}

	if _, err := f.service.Status(ctx); err != nil {
		t.Fatalf("second Status: %v", err)
	}
	var count int64
	if err := f.db.Model(&types.Exam{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count exams: %v", err)
	}
	if count != 1 {
		t.Errorf("exam rows = %d, want 1", count)
	}
}

func TestStatusRequiresIdentity(t *testing.T) {
	f := newExamFixture(t)
	if _, err := f.service.Status(context.Background()); err != ErrNoRequestData {
		t.Fatalf("err = %v, want ErrNoRequestData", err)
	}
}

func TestStartLockedExam(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "locked@example.com")
	testutil.SeedExam(t, f.db, user.ID, types.ExamLocked, nil)

	if _, err := f.service.Start(authedCtx(user.ID)); err != ErrExamLocked {
		t.Fatalf("err = %v, want ErrExamLocked", err)
	}
}

func TestStartResumesUnsubmittedAttempt(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "resume@example.com")
	ctx := authedCtx(user.ID)

	first, err := f.service.Start(ctx)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if first.Step == nil || *first.Step != types.StepOne {
		t.Fatalf("first step = %v, want STEP_1", first.Step)
	}
	if first.DueAt == nil {
		t.Fatal("first DueAt = nil, want a deadline")
	}
	if first.AttemptID == nil {
		t.Fatal("first AttemptID = nil")
	}

	second, err := f.service.Start(ctx)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.AttemptID == nil || *second.AttemptID != *first.AttemptID {
		t.Errorf("second AttemptID = %v, want %v", second.AttemptID, first.AttemptID)
	}
	var count int64
	if err := f.db.Model(&types.Attempt{}).Count(&count).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 1 {
		t.Errorf("attempt rows = %d, want 1", count)
	}
}

func TestStartAfterCompletion(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "done@example.com")
	level := types.LevelA2
	score := 30
	exam := testutil.SeedExam(t, f.db, user.ID, types.ExamCompleted, nil)
	exam.Step1Score = &score
	exam.Step2Score = &score
	exam.Step3Score = &score
	exam.FinalLevel = &level
	if err := f.db.Save(exam).Error; err != nil {
		t.Fatalf("save exam: %v", err)
	}

	result, err := f.service.Start(authedCtx(user.ID))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Message != "Exam complete" {
		t.Errorf("message = %q, want %q", result.Message, "Exam complete")
	}
	if result.Step != nil {
		t.Errorf("step = %v, want nil", result.Step)
	}
}

func TestSubmitCompletesBelowProceedThreshold(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "a2@example.com")
	bank := seedStepOneBank(t, f.db)
	ctx := authedCtx(user.ID)

	if _, err := f.service.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := f.service.Submit(ctx, answersFor(t, bank, 30))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Message != "Submitted" {
		t.Fatalf("message = %q, want Submitted", result.Message)
	}
	if result.Correct != 30 || result.Total != 44 {
		t.Errorf("score = %d/%d, want 30/44", result.Correct, result.Total)
	}
	if result.NextStep != nil {
		t.Errorf("nextStep = %v, want nil", result.NextStep)
	}
	if result.FinalLevel == nil || *result.FinalLevel != types.LevelA2 {
		t.Errorf("finalLevel = %v, want A2", result.FinalLevel)
	}

	exam, err := f.exams.GetByUserID(ctx, nil, user.ID)
	if err != nil {
		t.Fatalf("load exam: %v", err)
	}
	if exam.Status != types.ExamCompleted {
		t.Errorf("status = %s, want %s", exam.Status, types.ExamCompleted)
	}
	if exam.Step1Score == nil || *exam.Step1Score != 30 {
		t.Errorf("step1Score = %v, want 30", exam.Step1Score)
	}
	if f.issuer.count() != 1 {
		t.Errorf("certificates issued = %d, want 1", f.issuer.count())
	}
}

func TestSubmitProceedsToNextStep(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "proceed@example.com")
	bank := seedStepOneBank(t, f.db)
	ctx := authedCtx(user.ID)

	if _, err := f.service.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := f.service.Submit(ctx, answersFor(t, bank, 35))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.NextStep == nil || *result.NextStep != types.StepTwo {
		t.Fatalf("nextStep = %v, want STEP_2", result.NextStep)
	}
	if result.FinalLevel != nil {
		t.Errorf("finalLevel = %v, want nil", result.FinalLevel)
	}

	exam, err := f.exams.GetByUserID(ctx, nil, user.ID)
	if err != nil {
		t.Fatalf("load exam: %v", err)
	}
	if exam.Status != types.ExamInProgress {
		t.Errorf("status = %s, want %s", exam.Status, types.ExamInProgress)
	}
	if exam.DueAt != nil {
		t.Errorf("dueAt = %v, want nil after advancing", exam.DueAt)
	}
	if f.issuer.count() != 0 {
		t.Errorf("certificates issued = %d, want 0", f.issuer.count())
	}
}

func TestSubmitLocksOnFailingStepOne(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "failed@example.com")
	bank := seedStepOneBank(t, f.db)
	ctx := authedCtx(user.ID)

	if _, err := f.service.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := f.service.Submit(ctx, answersFor(t, bank, 10))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.FinalLevel != nil {
		t.Errorf("finalLevel = %v, want nil on lock", result.FinalLevel)
	}
	if result.NextStep != nil {
		t.Errorf("nextStep = %v, want nil on lock", result.NextStep)
	}

	exam, err := f.exams.GetByUserID(ctx, nil, user.ID)
	if err != nil {
		t.Fatalf("load exam: %v", err)
	}
	if exam.Status != types.ExamLocked {
		t.Fatalf("status = %s, want %s", exam.Status, types.ExamLocked)
	}
	if exam.FinalLevel != nil {
		t.Errorf("finalLevel = %v, want nil", exam.FinalLevel)
	}
	if f.issuer.count() != 0 {
		t.Errorf("certificates issued = %d, want 0", f.issuer.count())
	}

	// The lock is permanent.
	if _, err := f.service.Start(ctx); err != ErrExamLocked {
		t.Fatalf("Start after lock: err = %v, want ErrExamLocked", err)
	}
}

func TestSubmitAcceptsLateSubmission(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "late@example.com")
	bank := seedStepOneBank(t, f.db)
	ctx := authedCtx(user.ID)

	if _, err := f.service.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := f.db.Model(&types.Exam{}).Where("user_id = ?", user.ID).Update("due_at", past).Error; err != nil {
		t.Fatalf("backdate dueAt: %v", err)
	}

	result, err := f.service.Submit(ctx, answersFor(t, bank, 30))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Message != "Submitted" {
		t.Errorf("message = %q, want Submitted", result.Message)
	}
}

func TestSubmitWithoutExam(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "noexam@example.com")

	result, err := f.service.Submit(authedCtx(user.ID), nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Message != "No active step" {
		t.Errorf("message = %q, want %q", result.Message, "No active step")
	}
	if result.Total != TargetTotal {
		t.Errorf("total = %d, want %d", result.Total, TargetTotal)
	}
}

func TestSubmitNotInProgress(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "idle@example.com")
	step := types.StepOne
	testutil.SeedExam(t, f.db, user.ID, types.ExamNotStarted, &step)

	result, err := f.service.Submit(authedCtx(user.ID), nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Message != "Exam not in progress" {
		t.Errorf("message = %q, want %q", result.Message, "Exam not in progress")
	}
}

func TestSubmitWithoutStartedAttempt(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "noattempt@example.com")
	step := types.StepOne
	testutil.SeedExam(t, f.db, user.ID, types.ExamInProgress, &step)

	result, err := f.service.Submit(authedCtx(user.ID), nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Message != "No active attempt" {
		t.Errorf("message = %q, want %q", result.Message, "No active attempt")
	}
}

func TestSubmitReplaysStoredResult(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "replay@example.com")
	step := types.StepOne
	exam := testutil.SeedExam(t, f.db, user.ID, types.ExamInProgress, &step)
	submitted := time.Now().Add(-time.Minute)
	testutil.SeedAttempt(t, f.db, exam.ID, step, 30, 44, &submitted)
	bank := seedStepOneBank(t, f.db)
	ctx := authedCtx(user.ID)

	for i := 0; i < 2; i++ {
		result, err := f.service.Submit(ctx, answersFor(t, bank, 5))
		if err != nil {
			t.Fatalf("Submit #%d: %v", i+1, err)
		}
		if result.Message != "Already submitted" {
			t.Fatalf("Submit #%d message = %q, want %q", i+1, result.Message, "Already submitted")
		}
		if result.Correct != 30 || result.Total != 44 {
			t.Errorf("Submit #%d score = %d/%d, want stored 30/44", i+1, result.Correct, result.Total)
		}
	}

	var count int64
	if err := f.db.Model(&types.Attempt{}).Count(&count).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 1 {
		t.Errorf("attempt rows = %d, want 1", count)
	}
}

func TestConcurrentSubmitScoresOnce(t *testing.T) {
	f := newExamFixture(t)
	user := testutil.SeedUser(t, f.db, "race@example.com")
	bank := seedStepOneBank(t, f.db)
	ctx := authedCtx(user.ID)

	if _, err := f.service.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	answers := answersFor(t, bank, 30)

	var wg sync.WaitGroup
	results := make([]*SubmitResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.Submit(ctx, answers)
		}(i)
	}
	wg.Wait()

	// Exactly one caller gets a fresh grade; the loser sees a benign echo
	// because the winning submission already closed the step.
	fresh := 0
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("Submit #%d: %v", i+1, errs[i])
		}
		if results[i].Message == "Submitted" {
			fresh++
			if results[i].Correct != 30 || results[i].Total != 44 {
				t.Errorf("Submit #%d score = %d/%d, want 30/44", i+1, results[i].Correct, results[i].Total)
			}
		}
	}
	if fresh != 1 {
		t.Errorf("fresh submissions = %d, want exactly 1", fresh)
	}

	var submittedCount int64
	if err := f.db.Model(&types.Attempt{}).Where("submitted_at IS NOT NULL").Count(&submittedCount).Error; err != nil {
		t.Fatalf("count submitted attempts: %v", err)
	}
	if submittedCount != 1 {
		t.Errorf("submitted attempts = %d, want 1", submittedCount)
	}
	if f.issuer.count() != 1 {
		t.Errorf("certificates issued = %d, want 1", f.issuer.count())
	}
}

func TestQuestionsNeverLeakCorrectChoice(t *testing.T) {
	f := newExamFixture(t)
	seedStepOneBank(t, f.db)

	questions, err := f.service.Questions(context.Background(), types.StepOne)
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(questions) != 44 {
		t.Fatalf("len(questions) = %d, want 44", len(questions))
	}
	for _, q := range questions {
		if len(q.Choices) != 4 {
			t.Errorf("question %s has %d choices, want 4", q.ID, len(q.Choices))
		}
	}
}

func TestQuestionsInvalidStep(t *testing.T) {
	f := newExamFixture(t)
	if _, err := f.service.Questions(context.Background(), types.Step("STEP_9")); err != ErrInvalidStep {
		t.Fatalf("err = %v, want ErrInvalidStep", err)
	}
}
