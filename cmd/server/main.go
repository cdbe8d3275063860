package main

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/testschool/testschool-backend/internal/db"
	"github.com/testschool/testschool-backend/internal/handlers"
	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/middleware"
	"github.com/testschool/testschool-backend/internal/observability"
	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/server"
	"github.com/testschool/testschool-backend/internal/services"
	"github.com/testschool/testschool-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtAccessSecret := utils.GetEnv("JWT_ACCESS_SECRET", "defaultaccesssecret", log)
	jwtRefreshSecret := utils.GetEnv("JWT_REFRESH_SECRET", "defaultrefreshsecret", log)
	accessTTLMin := utils.GetEnvAsInt("ACCESS_TOKEN_TTL_MIN", 15, log)
	refreshTTLDays := utils.GetEnvAsInt("REFRESH_TOKEN_TTL_DAYS", 7, log)
	secondsPerQuestion := utils.GetEnvAsInt("DEFAULT_SECONDS_PER_QUESTION", 60, log)
	clientOrigin := utils.GetEnv("CLIENT_ORIGIN", "http://localhost:3000", log)
	sebConfigHash := utils.GetEnv("SEB_CONFIG_HASH", "", log)
	rateWindowSec := utils.GetEnvAsInt("RATE_LIMIT_WINDOW_SEC", 900, log)
	rateMax := utils.GetEnvAsInt("RATE_LIMIT_MAX", 200, log)

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "testschool-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(ctx); err != nil {
				log.Warn("OTel shutdown failed", "error", err)
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis (rate limiting; OTP storage opens its own client)
	var rdb *goredis.Client
	if addr := utils.GetEnv("REDIS_ADDR", "localhost:6379", log); addr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis ping failed (rate limiting will fail open)", "addr", addr, "error", err)
		}
		cancel()
	}

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	questionRepo := repos.NewQuestionRepo(thePG, log)
	examRepo := repos.NewExamRepo(thePG, log)
	attemptRepo := repos.NewAttemptRepo(thePG, log)
	answerRepo := repos.NewAnswerRepo(thePG, log)
	certRepo := repos.NewCertificateRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	mailService := services.NewMailService(log)
	otpService, err := services.NewOTPService(log)
	if err != nil {
		log.Error("Could not init OTPService", "error", err)
		os.Exit(1)
	}
	authService := services.NewAuthService(
		thePG,
		log,
		userRepo,
		otpService,
		mailService,
		jwtAccessSecret,
		jwtRefreshSecret,
		time.Duration(accessTTLMin)*time.Minute,
		time.Duration(refreshTTLDays)*24*time.Hour,
		clientOrigin,
	)
	samplerService := services.NewSamplerService(thePG, log, questionRepo)
	certService := services.NewCertificateService(thePG, log, certRepo, examRepo, attemptRepo, userRepo, mailService)
	examService := services.NewExamService(
		thePG,
		log,
		examRepo,
		attemptRepo,
		questionRepo,
		answerRepo,
		samplerService,
		certService,
		secondsPerQuestion,
	)
	questionService := services.NewQuestionService(thePG, log, questionRepo)
	adminService := services.NewAdminService(thePG, log, userRepo, examRepo, attemptRepo, answerRepo, certRepo)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	examHandler := handlers.NewExamHandler(log, examService)
	questionHandler := handlers.NewQuestionHandler(questionService)
	certificateHandler := handlers.NewCertificateHandler(certService)
	adminHandler := handlers.NewAdminHandler(adminService)
	sebHandler := handlers.NewSEBHandler(log, sebConfigHash, clientOrigin)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)
	rateLimiter := middleware.NewRateLimiter(log, rdb, time.Duration(rateWindowSec)*time.Second, int64(rateMax))

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ClientOrigin:       clientOrigin,
		AuthHandler:        authHandler,
		ExamHandler:        examHandler,
		QuestionHandler:    questionHandler,
		CertificateHandler: certificateHandler,
		AdminHandler:       adminHandler,
		SEBHandler:         sebHandler,
		AuthMiddleware:     authMiddleware,
		RateLimiter:        rateLimiter,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
