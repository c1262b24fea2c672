package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/handler"
	"github.com/ujianku/ujianku-backend/internal/middleware"
	"github.com/ujianku/ujianku-backend/internal/response"
	"github.com/ujianku/ujianku-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	StudentExam *handler.StudentExamHandler
	StudentMgmt *handler.StudentManagementHandler
	Exam        *handler.ExamHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for login routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/guru/login", handlers.Auth.GuruLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/guru/me", middleware.RequireGuruJWT(authService), handlers.Auth.GetGuruProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.POST("/exam/start", handlers.StudentExam.StartExam)
		studentAPI.GET("/exam/state", handlers.StudentExam.GetExamState)
		studentAPI.POST("/exam/submit", handlers.StudentExam.SubmitExam)
		studentAPI.POST("/exam/autosave", handlers.StudentExam.AutosaveAnswer)
		studentAPI.GET("/exam/paper", middleware.CacheControl(3600), handlers.StudentExam.GetExamPaper)
	}

	// ─── 3. WebSocket Group (Guru WS Auth) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireGuruWSAuth(authService))
	{
		ws.GET("/guru/exams/:id/monitor", handlers.WS.MonitorExam)
	}

	// ─── 4. Guru Group (JWT) ───────────────────────────────────────────
	guruAPI := router.Group("/api/v1/guru")
	guruAPI.Use(middleware.RequireGuruJWT(authService))
	{
		// Exam management
		guruAPI.POST("/exams", handlers.Exam.CreateExam)
		guruAPI.GET("/exams", handlers.Exam.ListExams)
		guruAPI.GET("/exams/:id", handlers.Exam.GetExam)
		guruAPI.PUT("/exams/:id", handlers.Exam.UpdateExam)
		guruAPI.DELETE("/exams/:id", handlers.Exam.DeleteExam)
		guruAPI.POST("/exams/:id/key", handlers.Exam.UploadAnswerKey)
		guruAPI.POST("/exams/:id/paper", handlers.Exam.UploadPaper)
		guruAPI.GET("/exams/:id/results", handlers.Exam.GetResults)
		guruAPI.DELETE("/exams/:id/results", handlers.Exam.PurgeResults)

		// Roster management
		guruAPI.POST("/students", handlers.StudentMgmt.CreateStudent)
		guruAPI.GET("/students", handlers.StudentMgmt.ListStudents)
		guruAPI.DELETE("/students/:id", handlers.StudentMgmt.DeleteStudent)
		guruAPI.POST("/students/import", handlers.StudentMgmt.ImportRoster)
		guruAPI.POST("/students/:id/reset-session", handlers.StudentMgmt.ResetStudentSession)
	}

	return router
}
