package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/handler"
	"github.com/proctorly/proctorly-backend/internal/middleware"
	"github.com/proctorly/proctorly-backend/internal/response"
	"github.com/proctorly/proctorly-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Exam     *handler.ExamHandler
	WS       *handler.WSHandler
	Monitor  *handler.MonitorHandler
	Question *handler.QuestionHandler
	Setting  *handler.SettingHandler
	Result   *handler.ResultHandler
	User     *handler.UserHandler
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

	// Compress API responses. Photos are already-compressed images,
	// so brotli would only waste CPU on them.
	brotliCfg := middleware.DefaultBrotliConfig
	brotliCfg.Skipper = func(c *gin.Context) bool {
		return strings.HasPrefix(c.Request.URL.Path, "/photos/")
	}
	router.Use(middleware.BrotliWithConfig(brotliCfg))

	// Serve candidate photos statically with aggressive caching (1 year).
	photosGroup := router.Group("/photos")
	photosGroup.Use(middleware.CacheControl(365 * 24 * time.Hour))
	{
		photosGroup.Static("/", "./photos")
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	{
		publicAPI.GET("/settings", handlers.Setting.GetPublicSettings)
	}

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/candidate/login", handlers.Auth.CandidateLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/candidate/logout", middleware.RequireCandidateJWT(authService), handlers.Auth.CandidateLogout)
		auth.GET("/candidate/me", middleware.RequireCandidateJWT(authService), handlers.Auth.GetCandidateProfile)
	}

	// ─── 2. Candidate Group (JWT + Single Device) ──────────────────────
	examAPI := router.Group("/api/v1/exam")
	examAPI.Use(
		middleware.RequireCandidateJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		examAPI.POST("/start", handlers.Exam.StartExam)
		examAPI.GET("/state", handlers.Exam.GetExamState)
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/exam", handlers.WS.ExamStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Live monitor
		adminAPI.GET("/sessions", handlers.Monitor.ListSessions)
		adminAPI.POST("/sessions/:username/unlock", handlers.Monitor.UnlockSession)
		adminAPI.POST("/sessions/:username/enable-resume", handlers.Monitor.EnableResume)
		adminAPI.POST("/sessions/:username/clear", handlers.Monitor.ClearSession)
		adminAPI.POST("/sessions/:username/reset-login", handlers.Monitor.ResetLogin)
		adminAPI.DELETE("/sessions/:username", handlers.Monitor.DeleteSession)
		adminAPI.GET("/lock-events", handlers.Monitor.ListLockEvents)

		// Question bank
		adminAPI.GET("/questions", handlers.Question.ListQuestions)
		adminAPI.POST("/questions", handlers.Question.SaveQuestion)
		adminAPI.GET("/questions/:id", handlers.Question.GetQuestion)
		adminAPI.DELETE("/questions/:id", handlers.Question.DeleteQuestion)

		// Candidate accounts
		adminAPI.GET("/users", handlers.User.ListUsers)
		adminAPI.POST("/users", handlers.User.SaveUser)
		adminAPI.GET("/users/:username", handlers.User.GetUser)
		adminAPI.DELETE("/users/:username", handlers.User.DeleteUser)

		// Results
		adminAPI.GET("/results", handlers.Result.ListResults)
		adminAPI.DELETE("/results", handlers.Result.ClearResults)

		// Exam settings
		settingsGroup := adminAPI.Group("/settings")
		{
			settingsGroup.GET("", handlers.Setting.GetSettings)
			settingsGroup.PUT("", handlers.Setting.UpdateSettings)
		}
	}

	return router
}
