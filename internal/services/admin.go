package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/types"
)

type AdminUser struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       types.Role `json:"role"`
	IsVerified bool       `json:"is_verified"`
	CreatedAt  time.Time  `json:"created_at"`
}

type UserPage struct {
	Items      []AdminUser `json:"items"`
	TotalPages int64       `json:"totalPages"`
}

type CertificatePage struct {
	Items      []repos.CertificateWithUser `json:"items"`
	TotalPages int64                       `json:"totalPages"`
}

type AdminStats struct {
	UsersByRole         []repos.RoleCount          `json:"usersByRole"`
	ExamsByStatus       []repos.StatusCount        `json:"examsByStatus"`
	CertificatesByLevel []repos.LevelCount         `json:"certificatesByLevel"`
	AvgScoreByStep      []repos.StepAvgPct         `json:"avgScoreByStep"`
	DailyRegistrations  []repos.DayCount           `json:"dailyRegistrations"`
	CompetencyAccuracy  []repos.CompetencyAccuracy `json:"competencyAccuracy"`
}

type AdminService interface {
	ListUsers(ctx context.Context, page, limit int) (*UserPage, error)
	Stats(ctx context.Context) (*AdminStats, error)
	ListCertificates(ctx context.Context, page, limit int) (*CertificatePage, error)
}

type adminService struct {
	db          *gorm.DB
	log         *logger.Logger
	userRepo    repos.UserRepo
	examRepo    repos.ExamRepo
	attemptRepo repos.AttemptRepo
	answerRepo  repos.AnswerRepo
	certRepo    repos.CertificateRepo
}

func NewAdminService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	examRepo repos.ExamRepo,
	attemptRepo repos.AttemptRepo,
	answerRepo repos.AnswerRepo,
	certRepo repos.CertificateRepo,
) AdminService {
	return &adminService{
		db:          db,
		log:         log.With("service", "AdminService"),
		userRepo:    userRepo,
		examRepo:    examRepo,
		attemptRepo: attemptRepo,
		answerRepo:  answerRepo,
		certRepo:    certRepo,
	}
}

func (as *adminService) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	users, total, err := as.userRepo.List(ctx, nil, page, limit)
	if err != nil {
		return nil, fmt.Errorf("Failed to list users: %w", err)
	}
	items := make([]AdminUser, 0, len(users))
	for _, u := range users {
		items = append(items, AdminUser{
			ID:         u.ID.String(),
			Name:       u.Name,
			Email:      u.Email,
			Role:       u.Role,
			IsVerified: u.IsVerified,
			CreatedAt:  u.CreatedAt,
		})
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)
	return &UserPage{Items: items, TotalPages: totalPages}, nil
}

// Stats runs the six dashboard aggregations concurrently; they are
// independent reads over different tables.
func (as *adminService) Stats(ctx context.Context) (*AdminStats, error) {
	stats := &AdminStats{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := as.userRepo.CountByRole(gctx, nil)
		stats.UsersByRole = results
		return err
	})
	g.Go(func() error {
		results, err := as.examRepo.CountByStatus(gctx, nil)
		stats.ExamsByStatus = results
		return err
	})
	g.Go(func() error {
		results, err := as.certRepo.CountByLevel(gctx, nil)
		stats.CertificatesByLevel = results
		return err
	})
	g.Go(func() error {
		results, err := as.attemptRepo.AvgPctByStep(gctx, nil)
		stats.AvgScoreByStep = results
		return err
	})
	g.Go(func() error {
		results, err := as.userRepo.DailyRegistrations(gctx, nil, time.Now().AddDate(0, 0, -7))
		stats.DailyRegistrations = results
		return err
	})
	g.Go(func() error {
		results, err := as.answerRepo.TopCompetencyAccuracy(gctx, nil, 10)
		stats.CompetencyAccuracy = results
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("Failed to aggregate stats: %w", err)
	}
	return stats, nil
}

func (as *adminService) ListCertificates(ctx context.Context, page, limit int) (*CertificatePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	items, total, err := as.certRepo.ListWithUsers(ctx, nil, page, limit)
	if err != nil {
		return nil, fmt.Errorf("Failed to list certificates: %w", err)
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)
	if totalPages < 1 {
		totalPages = 1
	}
	return &CertificatePage{Items: items, TotalPages: totalPages}, nil
}
