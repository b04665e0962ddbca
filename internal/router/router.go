package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/invigio/invigio-backend/internal/config"
	"github.com/invigio/invigio-backend/internal/handler"
	"github.com/invigio/invigio-backend/internal/middleware"
	"github.com/invigio/invigio-backend/internal/response"
	"github.com/invigio/invigio-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt     *handler.AttemptHandler
	Proctor     *handler.ProctorHandler
	Monitoring  *handler.MonitoringHandler
	Stream      *handler.StreamHandler
	LiveMonitor *handler.LiveMonitorHandler
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
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
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

	// Event ingest and frame uploads arrive continuously from every open
	// exam tab; cap them per IP so one client cannot starve the rest.
	eventLimiter := middleware.NewRateLimiter(120, time.Minute)
	frameLimiter := middleware.NewRateLimiter(60, time.Minute)

	// ─── 1. Attempts (Student JWT) ─────────────────────────────────────
	attempts := router.Group("/attempts")
	attempts.Use(middleware.RequireStudentJWT(authService))
	{
		attempts.POST("/:id/start", handlers.Attempt.Start)
		attempts.POST("/:id/answers", handlers.Attempt.SubmitAnswer)
		attempts.POST("/:id/complete", handlers.Attempt.Complete)
		attempts.GET("/:id/state", handlers.Attempt.GetState)
		attempts.POST("/:id/events", eventLimiter.Middleware(), handlers.Proctor.LogEvent)
	}

	// Event log reads accept either role; ownership is checked against
	// the claims in the service layer.
	router.GET("/attempts/:id/events",
		middleware.RequireJWT(authService),
		handlers.Proctor.ListEvents,
	)

	// ─── 2. Monitoring: student side (Student JWT) ─────────────────────
	monitoringStudent := router.Group("/monitoring")
	monitoringStudent.Use(middleware.RequireStudentJWT(authService))
	{
		monitoringStudent.GET("/consent-requests", handlers.Monitoring.PendingRequest)
		monitoringStudent.POST("/consent", handlers.Monitoring.RespondConsent)
		monitoringStudent.DELETE("/consent", handlers.Monitoring.RevokeConsent)
		monitoringStudent.POST("/frames", frameLimiter.Middleware(), handlers.Monitoring.SubmitFrame)
	}

	// ─── 3. Monitoring: teacher side (Teacher JWT) ─────────────────────
	monitoringTeacher := router.Group("/monitoring")
	monitoringTeacher.Use(middleware.RequireTeacherJWT(authService))
	{
		monitoringTeacher.POST("/request", handlers.Monitoring.RequestAccess)
		monitoringTeacher.GET("/quizzes/:quiz_id/live", handlers.LiveMonitor.MonitorQuizSSE)
	}

	// ─── 4. WebSocket (Teacher WS Auth via ?token=) ────────────────────
	router.GET("/monitoring/stream",
		middleware.RequireTeacherWSAuth(authService),
		handlers.Stream.FrameStream,
	)

	return router
}
