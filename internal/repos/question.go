package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/types"
)

type QuestionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, questions []*types.Question) ([]*types.Question, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	List(ctx context.Context, tx *gorm.DB, page, limit int) ([]*types.Question, int64, error)
	SampleByLevel(ctx context.Context, tx *gorm.DB, level types.Level, limit int) ([]*types.Question, error)
	SampleByLevels(ctx context.Context, tx *gorm.DB, levels []types.Level, limit int, excludeIDs []uuid.UUID) ([]*types.Question, error)
	GetByIDsAndLevels(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, levels []types.Level) ([]*types.Question, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "QuestionRepo")}
}

func (qr *questionRepo) Create(ctx context.Context, tx *gorm.DB, questions []*types.Question) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = qr.db
	}
	if len(questions) == 0 {
		return []*types.Question{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (qr *questionRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = qr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Question{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (qr *questionRepo) List(ctx context.Context, tx *gorm.DB, page, limit int) ([]*types.Question, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = qr.db
	}
	var total int64
	if err := transaction.WithContext(ctx).
		Model(&types.Question{}).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var results []*types.Question
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// SampleByLevel draws up to limit questions of one level uniformly at random
// without replacement. RANDOM() is understood by both postgres and sqlite.
func (qr *questionRepo) SampleByLevel(ctx context.Context, tx *gorm.DB, level types.Level, limit int) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = qr.db
	}
	var results []*types.Question
	if err := transaction.WithContext(ctx).
		Where("level = ?", level).
		Order("RANDOM()").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (qr *questionRepo) SampleByLevels(ctx context.Context, tx *gorm.DB, levels []types.Level, limit int, excludeIDs []uuid.UUID) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = qr.db
	}
	query := transaction.WithContext(ctx).
		Where("level IN ?", levels)
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}
	var results []*types.Question
	if err := query.
		Order("RANDOM()").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (qr *questionRepo) GetByIDsAndLevels(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, levels []types.Level) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = qr.db
	}
	var results []*types.Question
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ? AND level IN ?", ids, levels).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
