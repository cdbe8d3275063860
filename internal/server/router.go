package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/testschool/testschool-backend/internal/handlers"
	"github.com/testschool/testschool-backend/internal/middleware"
	"github.com/testschool/testschool-backend/internal/types"
)

type RouterConfig struct {
	ClientOrigin       string
	AuthHandler        *handlers.AuthHandler
	ExamHandler        *handlers.ExamHandler
	QuestionHandler    *handlers.QuestionHandler
	CertificateHandler *handlers.CertificateHandler
	AdminHandler       *handlers.AdminHandler
	SEBHandler         *handlers.SEBHandler
	AuthMiddleware     *middleware.AuthMiddleware
	RateLimiter        *middleware.RateLimiter
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("testschool-backend"))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			cfg.ClientOrigin,
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	if cfg.RateLimiter != nil {
		router.Use(cfg.RateLimiter.Limit())
	}

	// ===============
	// || Public    ||
	// ===============
	router.GET("/api/health", handlers.HealthCheck)
	auth := router.Group("/api/auth")
	{
		auth.POST("/register", cfg.AuthHandler.Register)
		auth.POST("/verify-otp", cfg.AuthHandler.VerifyOTP)
		auth.POST("/resend-otp", cfg.AuthHandler.ResendOTP)
		auth.POST("/login", cfg.AuthHandler.Login)
		auth.POST("/refresh", cfg.AuthHandler.Refresh)
		auth.POST("/forgot-password", cfg.AuthHandler.ForgotPassword)
		auth.POST("/reset-password", cfg.AuthHandler.ResetPassword)
	}
	seb := router.Group("/api/seb")
	{
		seb.POST("/validate", cfg.SEBHandler.Validate)
		seb.GET("/config", cfg.SEBHandler.Config)
	}

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/api")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Auth
	protected.POST("/auth/logout", cfg.AuthHandler.Logout)
	// Exams
	protected.GET("/exams/status", cfg.ExamHandler.Status)
	protected.POST("/exams/start", cfg.ExamHandler.Start)
	protected.GET("/exams/questions", cfg.ExamHandler.Questions)
	protected.POST("/exams/submit", cfg.ExamHandler.Submit)
	// Certificates
	protected.GET("/certificates/my", cfg.CertificateHandler.ListMine)
	protected.GET("/certificates/my/latest/pdf", cfg.CertificateHandler.LatestPDF)
	protected.GET("/certificates/:id/pdf", cfg.CertificateHandler.PDFByID)

	// ===============
	// || Admin     ||
	// ===============
	staff := router.Group("/api")
	staff.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireRole(types.RoleAdmin, types.RoleSupervisor))
	staff.GET("/questions", cfg.QuestionHandler.List)

	admin := router.Group("/api")
	admin.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireRole(types.RoleAdmin))
	admin.POST("/questions", cfg.QuestionHandler.Create)
	admin.GET("/admin/users", cfg.AdminHandler.ListUsers)
	admin.GET("/admin/stats", cfg.AdminHandler.Stats)
	admin.GET("/admin/certificates", cfg.AdminHandler.ListCertificates)

	return router
}
