package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/types"
)

type StepAvgPct struct {
	Step   types.Step `json:"step"`
	AvgPct float64    `json:"avg_pct"`
}

type AttemptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *types.Attempt) (*types.Attempt, error)
	LatestByExamAndStep(ctx context.Context, tx *gorm.DB, examID uuid.UUID, step types.Step) (*types.Attempt, error)
	LatestSubmittedByExam(ctx context.Context, tx *gorm.DB, examID uuid.UUID) (*types.Attempt, error)
	MarkSubmitted(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID, score, total int, submittedAt time.Time) (bool, error)
	AvgPctByStep(ctx context.Context, tx *gorm.DB) ([]StepAvgPct, error)
}

type attemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttemptRepo(db *gorm.DB, baseLog *logger.Logger) AttemptRepo {
	return &attemptRepo{db: db, log: baseLog.With("repo", "AttemptRepo")}
}

func (ar *attemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *types.Attempt) (*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	if err := transaction.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

func (ar *attemptRepo) LatestByExamAndStep(ctx context.Context, tx *gorm.DB, examID uuid.UUID, step types.Step) (*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	var attempt types.Attempt
	err := transaction.WithContext(ctx).
		Where("exam_id = ? AND step = ?", examID, step).
		Order("started_at DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (ar *attemptRepo) LatestSubmittedByExam(ctx context.Context, tx *gorm.DB, examID uuid.UUID) (*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	var attempt types.Attempt
	err := transaction.WithContext(ctx).
		Where("exam_id = ? AND submitted_at IS NOT NULL", examID).
		Order("submitted_at DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// MarkSubmitted is the single write an attempt ever receives after creation.
// The submitted_at IS NULL guard makes it a compare-and-set: exactly one
// caller gets true, every later caller gets false and must take the
// already-submitted path.
func (ar *attemptRepo) MarkSubmitted(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID, score, total int, submittedAt time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	result := transaction.WithContext(ctx).
		Model(&types.Attempt{}).
		Where("id = ? AND submitted_at IS NULL", attemptID).
		Updates(map[string]interface{}{
			"score":        score,
			"total":        total,
			"submitted_at": submittedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (ar *attemptRepo) AvgPctByStep(ctx context.Context, tx *gorm.DB) ([]StepAvgPct, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	var results []StepAvgPct
	if err := transaction.WithContext(ctx).
		Model(&types.Attempt{}).
		Select("step, AVG(CASE WHEN total > 0 THEN score * 100.0 / total ELSE 0 END) AS avg_pct").
		Where("submitted_at IS NOT NULL").
		Group("step").
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
