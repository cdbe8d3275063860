package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/testschool/testschool-backend/internal/db"
	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/services"
	"github.com/testschool/testschool-backend/internal/types"
)

//go:embed questions.yaml
var questionFixtures []byte

type seedFixtures struct {
	Competencies []string `yaml:"competencies"`
	ChoiceTexts  []string `yaml:"choiceTexts"`
}

const (
	adminEmail = "anisha-admin@testschool.com"
	adminPass  = "Admin123!"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	var fixtures seedFixtures
	if err := yaml.Unmarshal(questionFixtures, &fixtures); err != nil {
		log.Error("Failed to parse question fixtures", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	userRepo := repos.NewUserRepo(thePG, log)
	questionRepo := repos.NewQuestionRepo(thePG, log)

	// Admin
	existing, err := userRepo.GetByEmail(ctx, nil, adminEmail)
	if err != nil {
		log.Error("Failed to look up admin", "error", err)
		os.Exit(1)
	}
	if existing == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPass), bcrypt.DefaultCost)
		if err != nil {
			log.Error("Failed to hash admin password", "error", err)
			os.Exit(1)
		}
		admin := &types.User{
			ID:           uuid.New(),
			Name:         "Administrator",
			Email:        adminEmail,
			PasswordHash: string(hash),
			Role:         types.RoleAdmin,
			IsVerified:   true,
		}
		if _, err := userRepo.Create(ctx, nil, []*types.User{admin}); err != nil {
			log.Error("Failed to create admin", "error", err)
			os.Exit(1)
		}
		log.Info("Admin user created", "email", adminEmail)
	}

	// Question bank: one question per competency per level.
	target := int64(len(fixtures.Competencies) * len(types.AllLevels))
	count, err := questionRepo.Count(ctx, nil)
	if err != nil {
		log.Error("Failed to count questions", "error", err)
		os.Exit(1)
	}
	if count < target {
		toInsert := make([]*types.Question, 0, target)
		for _, level := range types.AllLevels {
			for _, comp := range fixtures.Competencies {
				question, err := buildQuestion(level, comp, fixtures.ChoiceTexts)
				if err != nil {
					log.Error("Failed to build question", "error", err)
					os.Exit(1)
				}
				toInsert = append(toInsert, question)
			}
		}
		if _, err := questionRepo.Create(ctx, nil, toInsert); err != nil {
			log.Error("Failed to insert questions", "error", err)
			os.Exit(1)
		}
		log.Info("Question bank seeded", "count", len(toInsert))
	} else {
		log.Info("Question bank already seeded", "count", count)
	}

	fmt.Println("Seed complete.")
	fmt.Println("Admin Credentials:")
	fmt.Printf("Email: %s\n", adminEmail)
	fmt.Printf("Password: %s\n", adminPass)
}

func buildQuestion(level types.Level, competency string, choiceTexts []string) (*types.Question, error) {
	choices := make([]types.Choice, 0, len(choiceTexts))
	for _, text := range choiceTexts {
		choices = append(choices, types.Choice{ID: services.NewChoiceID(), Text: text})
	}
	encoded, err := types.EncodeChoices(choices)
	if err != nil {
		return nil, err
	}
	return &types.Question{
		ID:              uuid.New(),
		Competency:      competency,
		Level:           level,
		Text:            fmt.Sprintf("[%s] %s sample question?", level, competency),
		Choices:         encoded,
		CorrectChoiceID: choices[0].ID,
	}, nil
}
