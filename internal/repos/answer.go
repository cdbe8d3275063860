package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/types"
)

type CompetencyAccuracy struct {
	Competency string  `json:"competency"`
	Total      int64   `json:"total"`
	Correct    int64   `json:"correct"`
	Pct        float64 `json:"pct"`
}

type AnswerRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, answers []*types.Answer) error
	TopCompetencyAccuracy(ctx context.Context, tx *gorm.DB, limit int) ([]CompetencyAccuracy, error)
}

type answerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
	return &answerRepo{db: db, log: baseLog.With("repo", "AnswerRepo")}
}

func (ar *answerRepo) CreateBatch(ctx context.Context, tx *gorm.DB, answers []*types.Answer) error {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	if len(answers) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&answers).Error
}

func (ar *answerRepo) TopCompetencyAccuracy(ctx context.Context, tx *gorm.DB, limit int) ([]CompetencyAccuracy, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	var results []CompetencyAccuracy
	if err := transaction.WithContext(ctx).
		Model(&types.Answer{}).
		Select(`question.competency AS competency,
			COUNT(*) AS total,
			SUM(CASE WHEN answer.correct THEN 1 ELSE 0 END) AS correct,
			SUM(CASE WHEN answer.correct THEN 1 ELSE 0 END) * 100.0 / COUNT(*) AS pct`).
		Joins("JOIN question ON question.id = answer.question_id").
		Group("question.competency").
		Order("pct DESC").
		Limit(limit).
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
