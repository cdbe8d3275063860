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

type RoleCount struct {
	Role  types.Role `json:"role"`
	Count int64      `json:"count"`
}

type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

type UserRepo interface {
	Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error)
	GetByRefreshTokenHash(ctx context.Context, tx *gorm.DB, hash string) (*types.User, error)
	EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error)
	Save(ctx context.Context, tx *gorm.DB, user *types.User) error
	List(ctx context.Context, tx *gorm.DB, page, limit int) ([]*types.User, int64, error)
	CountByRole(ctx context.Context, tx *gorm.DB) ([]RoleCount, error)
	DailyRegistrations(ctx context.Context, tx *gorm.DB, since time.Time) ([]DayCount, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	if len(users) == 0 {
		return []*types.User{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (ur *userRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var results []*types.User
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var user types.User
	err := transaction.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (ur *userRepo) GetByRefreshTokenHash(ctx context.Context, tx *gorm.DB, hash string) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	if hash == "" {
		return nil, nil
	}
	var user types.User
	err := transaction.WithContext(ctx).
		Where("refresh_token_hash = ?", hash).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (ur *userRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.User{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ur *userRepo) Save(ctx context.Context, tx *gorm.DB, user *types.User) error {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	return transaction.WithContext(ctx).Save(user).Error
}

func (ur *userRepo) List(ctx context.Context, tx *gorm.DB, page, limit int) ([]*types.User, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var results []*types.User
	var total int64
	if err := transaction.WithContext(ctx).
		Model(&types.User{}).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (ur *userRepo) CountByRole(ctx context.Context, tx *gorm.DB) ([]RoleCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var results []RoleCount
	if err := transaction.WithContext(ctx).
		Model(&types.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) DailyRegistrations(ctx context.Context, tx *gorm.DB, since time.Time) ([]DayCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	// sqlite (tests) has no to_char
	dayExpr := "to_char(created_at, 'YYYY-MM-DD')"
	if transaction.Dialector.Name() == "sqlite" {
		dayExpr = "strftime('%Y-%m-%d', created_at)"
	}
	var results []DayCount
	if err := transaction.WithContext(ctx).
		Model(&types.User{}).
		Select(dayExpr + " AS day, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("day").
		Order("day ASC").
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
