package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/requestdata"
	"github.com/testschool/testschool-backend/internal/types"
)

var (
	ErrNoRequestData = fmt.Errorf("No request data found in context")
	ErrExamLocked    = fmt.Errorf("You cannot retake after failing step 1")
)

type StatusResult struct {
	Status      types.ExamStatus `json:"status"`
	CurrentStep *types.Step      `json:"currentStep"`
	DueAt       *time.Time       `json:"dueAt"`
	Completed   bool             `json:"completed"`
	Result      *LevelResult     `json:"result"`
}

type LevelResult struct {
	Level types.Level `json:"level"`
}

type StartResult struct {
	Message   string      `json:"message,omitempty"`
	Step      *types.Step `json:"step"`
	DueAt     *time.Time  `json:"dueAt,omitempty"`
	AttemptID *uuid.UUID  `json:"attemptId,omitempty"`
}

type SubmitResult struct {
	Message    string      `json:"message"`
	Correct    int         `json:"correct"`
	Total      int         `json:"total"`
	Pct        float64     `json:"pct"`
	NextStep   *types.Step `json:"nextStep"`
	FinalLevel *types.Level `json:"finalLevel"`
}

// CertificateIssuer is the finalization collaborator. Issuance is idempotent
// per attempt and its failures never fail a submit.
type CertificateIssuer interface {
	IssueForAttempt(ctx context.Context, userID, attemptID uuid.UUID, level types.Level)
}

type ExamService interface {
	Status(ctx context.Context) (*StatusResult, error)
	Start(ctx context.Context) (*StartResult, error)
	Questions(ctx context.Context, step types.Step) ([]types.PublicQuestion, error)
	Submit(ctx context.Context, answers []SubmittedAnswer) (*SubmitResult, error)
}

type examService struct {
	db                 *gorm.DB
	log                *logger.Logger
	examRepo           repos.ExamRepo
	attemptRepo        repos.AttemptRepo
	questionRepo       repos.QuestionRepo
	answerRepo         repos.AnswerRepo
	sampler            SamplerService
	certIssuer         CertificateIssuer
	secondsPerQuestion int

	// Serializes start/submit per user so concurrent submissions cannot both
	// pass the not-yet-submitted check. State is partitioned by user, so no
	// cross-user coordination exists.
	userLocks sync.Map
}

func NewExamService(
	db *gorm.DB,
	log *logger.Logger,
	examRepo repos.ExamRepo,
	attemptRepo repos.AttemptRepo,
	questionRepo repos.QuestionRepo,
	answerRepo repos.AnswerRepo,
	sampler SamplerService,
	certIssuer CertificateIssuer,
	secondsPerQuestion int,
) ExamService {
	return &examService{
		db:                 db,
		log:                log.With("service", "ExamService"),
		examRepo:           examRepo,
		attemptRepo:        attemptRepo,
		questionRepo:       questionRepo,
		answerRepo:         answerRepo,
		sampler:            sampler,
		certIssuer:         certIssuer,
		secondsPerQuestion: secondsPerQuestion,
	}
}

func (es *examService) lockUser(userID uuid.UUID) func() {
	muIface, _ := es.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (es *examService) Status(ctx context.Context) (*StatusResult, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		return nil, ErrNoRequestData
	}
	exam, err := es.examRepo.GetOrCreate(ctx, nil, rd.UserID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load exam: %w", err)
	}
	result := &StatusResult{
		Status:      exam.Status,
		CurrentStep: exam.CurrentStep,
		DueAt:       exam.DueAt,
		Completed:   exam.Status == types.ExamCompleted,
	}
	if exam.FinalLevel != nil {
		result.Result = &LevelResult{Level: *exam.FinalLevel}
	}
	return result, nil
}

func (es *examService) Start(ctx context.Context) (*StartResult, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		return nil, ErrNoRequestData
	}
	unlock := es.lockUser(rd.UserID)
	defer unlock()

	exam, err := es.examRepo.GetOrCreate(ctx, nil, rd.UserID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load exam: %w", err)
	}
	if exam.Status == types.ExamLocked {
		return nil, ErrExamLocked
	}

	step := types.StepOne
	switch {
	case exam.CurrentStep != nil:
		step = *exam.CurrentStep
	case exam.Step1Score != nil && exam.Step2Score == nil:
		step = types.StepTwo
	case exam.Step2Score != nil && exam.Step3Score == nil:
		step = types.StepThree
	case exam.Step3Score != nil:
		return &StartResult{Message: "Exam complete"}, nil
	}

	var attempt *types.Attempt
	var result StartResult
	err = es.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Resume an unsubmitted attempt instead of orphaning it with a fresh
		// row; only the first start of a step creates one.
		existing, aErr := es.attemptRepo.LatestByExamAndStep(ctx, tx, exam.ID, step)
		if aErr != nil {
			return fmt.Errorf("Failed to load attempt: %w", aErr)
		}
		if existing != nil && existing.SubmittedAt == nil {
			attempt = existing
		} else {
			attempt, aErr = es.attemptRepo.Create(ctx, tx, &types.Attempt{
				ID:        uuid.New(),
				ExamID:    exam.ID,
				Step:      step,
				StartedAt: time.Now(),
			})
			if aErr != nil {
				return fmt.Errorf("Failed to create attempt: %w", aErr)
			}
			dueAt := time.Now().Add(time.Duration(es.secondsPerQuestion) * time.Second * TargetTotal)
			exam.DueAt = &dueAt
		}
		exam.Status = types.ExamInProgress
		exam.CurrentStep = &step
		if sErr := es.examRepo.Save(ctx, tx, exam); sErr != nil {
			return fmt.Errorf("Failed to save exam: %w", sErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result = StartResult{Step: &step, DueAt: exam.DueAt, AttemptID: &attempt.ID}
	return &result, nil
}

func (es *examService) Questions(ctx context.Context, step types.Step) ([]types.PublicQuestion, error) {
	questions, err := es.sampler.Sample(ctx, step)
	if err != nil {
		return nil, err
	}
	public := make([]types.PublicQuestion, 0, len(questions))
	for _, q := range questions {
		pq, pErr := q.Public()
		if pErr != nil {
			return nil, fmt.Errorf("Failed to decode choices for question %s: %w", q.ID, pErr)
		}
		public = append(public, pq)
	}
	return public, nil
}

func (es *examService) Submit(ctx context.Context, answers []SubmittedAnswer) (*SubmitResult, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		return nil, ErrNoRequestData
	}
	unlock := es.lockUser(rd.UserID)
	defer unlock()

	exam, err := es.examRepo.GetByUserID(ctx, nil, rd.UserID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load exam: %w", err)
	}
	if exam == nil || exam.CurrentStep == nil {
		res := &SubmitResult{Message: "No active step", Total: TargetTotal}
		if exam != nil {
			res.NextStep = exam.CurrentStep
			res.FinalLevel = exam.FinalLevel
		}
		return res, nil
	}
	if exam.Status != types.ExamInProgress {
		return &SubmitResult{
			Message:    "Exam not in progress",
			Total:      TargetTotal,
			NextStep:   exam.CurrentStep,
			FinalLevel: exam.FinalLevel,
		}, nil
	}

	currentStep := *exam.CurrentStep
	attempt, err := es.attemptRepo.LatestByExamAndStep(ctx, nil, exam.ID, currentStep)
	if err != nil {
		return nil, fmt.Errorf("Failed to load attempt: %w", err)
	}
	if attempt == nil {
		// No started attempt to grade against. The source would grade and
		// transition anyway; here that is a benign echo so a stray submit can
		// never advance the state machine without a started attempt.
		return &SubmitResult{
			Message:    "No active attempt",
			Total:      TargetTotal,
			NextStep:   exam.CurrentStep,
			FinalLevel: exam.FinalLevel,
		}, nil
	}
	if attempt.SubmittedAt != nil {
		return replayResult(exam, attempt), nil
	}

	// A past dueAt is deliberately not a hard cutoff: late submissions are
	// still graded.

	levels, _ := StepLevels(currentStep)
	ids := make([]uuid.UUID, 0, len(answers))
	for _, ans := range answers {
		if id, pErr := uuid.Parse(ans.QuestionID); pErr == nil {
			ids = append(ids, id)
		}
	}
	questions, err := es.questionRepo.GetByIDsAndLevels(ctx, nil, ids, levels)
	if err != nil {
		return nil, fmt.Errorf("Failed to load questions: %w", err)
	}
	correct, graded := GradeAnswers(answers, questions)
	total := GradingTotal(len(answers))
	pct := float64(correct) / float64(total) * 100

	err = es.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, mErr := es.attemptRepo.MarkSubmitted(ctx, tx, attempt.ID, correct, total, time.Now())
		if mErr != nil {
			return fmt.Errorf("Failed to persist attempt result: %w", mErr)
		}
		if !updated {
			// Lost a race we should never lose while holding the user lock;
			// surface it rather than double-grade.
			return fmt.Errorf("Attempt %s already submitted", attempt.ID)
		}
		if aErr := es.appendAnswers(ctx, tx, attempt.ID, graded); aErr != nil {
			es.log.Warn("Failed to append answer audit trail", "attempt_id", attempt.ID, "error", aErr)
		}

		result := ScoreToLevel(currentStep, pct)
		es.applyTransition(exam, currentStep, correct, result)
		if sErr := es.examRepo.Save(ctx, tx, exam); sErr != nil {
			return fmt.Errorf("Failed to save exam: %w", sErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if exam.Status == types.ExamCompleted && exam.FinalLevel != nil {
		es.certIssuer.IssueForAttempt(ctx, rd.UserID, attempt.ID, *exam.FinalLevel)
	}

	return &SubmitResult{
		Message:    "Submitted",
		Correct:    correct,
		Total:      total,
		Pct:        pct,
		NextStep:   exam.CurrentStep,
		FinalLevel: exam.FinalLevel,
	}, nil
}

// applyTransition mutates the exam per the step transition table. FAIL_LOCK
// on STEP_1 locks the exam permanently with no final level; a proceed result
// advances to the next step; anything else completes the exam at the
// classified level.
func (es *examService) applyTransition(exam *types.Exam, step types.Step, correct int, result StepResult) {
	switch step {
	case types.StepOne:
		exam.Step1Score = &correct
		if result.Level == types.LevelFailLock {
			exam.Status = types.ExamLocked
			exam.FinalLevel = nil
			exam.CurrentStep = nil
			return
		}
		if result.Proceed {
			next := types.StepTwo
			exam.CurrentStep = &next
			exam.DueAt = nil
			return
		}
		es.finalize(exam, result.Level)
	case types.StepTwo:
		exam.Step2Score = &correct
		if result.Proceed {
			next := types.StepThree
			exam.CurrentStep = &next
			exam.DueAt = nil
			return
		}
		es.finalize(exam, result.Level)
	default:
		exam.Step3Score = &correct
		es.finalize(exam, result.Level)
	}
}

func (es *examService) finalize(exam *types.Exam, level types.Level) {
	exam.Status = types.ExamCompleted
	exam.FinalLevel = &level
	exam.CurrentStep = nil
}

func (es *examService) appendAnswers(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID, graded []GradedAnswer) error {
	rows := make([]*types.Answer, 0, len(graded))
	for _, g := range graded {
		if !g.Known {
			continue
		}
		questionID, err := uuid.Parse(g.QuestionID)
		if err != nil {
			continue
		}
		rows = append(rows, &types.Answer{
			ID:         uuid.New(),
			AttemptID:  attemptID,
			QuestionID: questionID,
			ChoiceID:   g.ChoiceID,
			Correct:    g.Correct,
		})
	}
	return es.answerRepo.CreateBatch(ctx, tx, rows)
}

func replayResult(exam *types.Exam, attempt *types.Attempt) *SubmitResult {
	pct := 0.0
	if attempt.Total > 0 {
		pct = float64(attempt.Score) / float64(attempt.Total) * 100
	}
	return &SubmitResult{
		Message:    "Already submitted",
		Correct:    attempt.Score,
		Total:      attempt.Total,
		Pct:        pct,
		NextStep:   exam.CurrentStep,
		FinalLevel: exam.FinalLevel,
	}
}
