package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/types"
)

type LevelCount struct {
	Level types.Level `json:"level"`
	Count int64       `json:"count"`
}

type CertificateWithUser struct {
	ID        uuid.UUID   `json:"id"`
	Level     types.Level `json:"level"`
	CreatedAt time.Time   `json:"created_at"`
	UserName  string      `json:"user_name"`
	UserEmail string      `json:"user_email"`
}

type CertificateRepo interface {
	// CreateIfAbsent inserts at most one certificate per attempt and returns
	// the row that ended up stored, whether or not this call created it.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, cert *types.Certificate) (*types.Certificate, error)
	GetByAttemptID(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) (*types.Certificate, error)
	GetByIDAndUser(ctx context.Context, tx *gorm.DB, id, userID uuid.UUID) (*types.Certificate, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Certificate, error)
	LatestByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Certificate, error)
	ListWithUsers(ctx context.Context, tx *gorm.DB, page, limit int) ([]CertificateWithUser, int64, error)
	CountByLevel(ctx context.Context, tx *gorm.DB) ([]LevelCount, error)
}

type certificateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCertificateRepo(db *gorm.DB, baseLog *logger.Logger) CertificateRepo {
	return &certificateRepo{db: db, log: baseLog.With("repo", "CertificateRepo")}
}

func (cr *certificateRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, cert *types.Certificate) (*types.Certificate, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}},
			DoNothing: true,
		}).
		Create(cert).Error; err != nil {
		return nil, err
	}
	return cr.GetByAttemptID(ctx, transaction, cert.AttemptID)
}

func (cr *certificateRepo) GetByAttemptID(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) (*types.Certificate, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var cert types.Certificate
	err := transaction.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (cr *certificateRepo) GetByIDAndUser(ctx context.Context, tx *gorm.DB, id, userID uuid.UUID) (*types.Certificate, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var cert types.Certificate
	err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (cr *certificateRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Certificate, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var results []*types.Certificate
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (cr *certificateRepo) LatestByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Certificate, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var cert types.Certificate
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (cr *certificateRepo) ListWithUsers(ctx context.Context, tx *gorm.DB, page, limit int) ([]CertificateWithUser, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var total int64
	if err := transaction.WithContext(ctx).
		Model(&types.Certificate{}).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var results []CertificateWithUser
	if err := transaction.WithContext(ctx).
		Model(&types.Certificate{}).
		Select(`certificate.id, certificate.level, certificate.created_at,
			"user".name AS user_name, "user".email AS user_email`).
		Joins(`JOIN "user" ON "user".id = certificate.user_id`).
		Order("certificate.created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Scan(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (cr *certificateRepo) CountByLevel(ctx context.Context, tx *gorm.DB) ([]LevelCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var results []LevelCount
	if err := transaction.WithContext(ctx).
		Model(&types.Certificate{}).
		Select("level, COUNT(*) AS count").
		Group("level").
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
