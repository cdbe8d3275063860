package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/types"
)

type StatusCount struct {
	Status types.ExamStatus `json:"status"`
	Count  int64            `json:"count"`
}

type ExamRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Exam, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Exam, error)
	Save(ctx context.Context, tx *gorm.DB, exam *types.Exam) error
	CountByStatus(ctx context.Context, tx *gorm.DB) ([]StatusCount, error)
}

type examRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExamRepo(db *gorm.DB, baseLog *logger.Logger) ExamRepo {
	return &examRepo{db: db, log: baseLog.With("repo", "ExamRepo")}
}

func (er *examRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Exam, error) {
	transaction := tx
	if transaction == nil {
		transaction = er.db
	}
	var exam types.Exam
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&exam).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

// GetOrCreate creates the exam record lazily. The unique index on user_id
// plus ON CONFLICT DO NOTHING keeps concurrent first calls from producing
// duplicate rows; whichever insert loses the race re-reads the winner.
func (er *examRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Exam, error) {
	transaction := tx
	if transaction == nil {
		transaction = er.db
	}
	fresh := &types.Exam{
		ID:     uuid.New(),
		UserID: userID,
		Status: types.ExamNotStarted,
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(fresh).Error; err != nil {
		return nil, err
	}
	exam, err := er.GetByUserID(ctx, transaction, userID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return exam, nil
}

func (er *examRepo) Save(ctx context.Context, tx *gorm.DB, exam *types.Exam) error {
	transaction := tx
	if transaction == nil {
		transaction = er.db
	}
	return transaction.WithContext(ctx).Save(exam).Error
}

func (er *examRepo) CountByStatus(ctx context.Context, tx *gorm.DB) ([]StatusCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = er.db
	}
	var results []StatusCount
	if err := transaction.WithContext(ctx).
		Model(&types.Exam{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
