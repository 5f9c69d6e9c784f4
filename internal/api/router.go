package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/smileagent/autoreply-engine/internal/api/handlers"
	"github.com/smileagent/autoreply-engine/internal/api/middleware"
	"github.com/smileagent/autoreply-engine/internal/logger"
	"github.com/smileagent/autoreply-engine/internal/quota"
	"github.com/smileagent/autoreply-engine/internal/repository"
	"github.com/smileagent/autoreply-engine/internal/services"
	"gorm.io/gorm"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB        *gorm.DB
	Scheduler *services.Scheduler
	Guard     *quota.Guard
	Logger    *slog.Logger
	// Security configuration
	APIKey         string // API key for authentication (empty = disabled)
	AllowedOrigins string // Comma-separated allowed CORS origins
	AppEnv         string // "development" or "production"
	RateLimit      int    // Requests per second
	RateBurst      int    // Burst size for rate limiter
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	secLog := logger.NewSecurityLogger()

	// Security middleware (applied in order)
	e.Use(middleware.Recover())
	e.Use(middleware.SecureHeaders())
	e.Use(middleware.SecureCORS(cfg.AllowedOrigins, cfg.AppEnv))

	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(float64(cfg.RateLimit), cfg.RateBurst, secLog))
	}

	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	// Initialize repositories and handlers
	threadRepo := repository.NewThreadStateRepository(cfg.DB)

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Scheduler)
	triageHandler := handlers.NewTriageHandler(threadRepo, cfg.Scheduler, cfg.Guard)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	// API routes
	api := e.Group("/api")
	api.Use(middleware.APIKeyAuth(cfg.APIKey, secLog))

	api.GET("/usage", triageHandler.GetUsage)

	tenants := api.Group("/tenants")
	tenants.GET("/:tenant_id/threads/:thread_id", triageHandler.GetThreadStatus)
	tenants.POST("/:tenant_id/threads/:thread_id/reply", triageHandler.TriggerReply)

	// Operational routes
	api.POST("/scheduler/tick", triageHandler.ForceTick)

	return e
}
