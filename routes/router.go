package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/empire/bot"
	"github.com/cppla/empire/config"
	"github.com/cppla/empire/controllers"
	"github.com/cppla/empire/metrics"
	"github.com/cppla/empire/middleware"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

// Deps are the services the HTTP layer is built on. Bot may be nil when no bot token is configured.
type Deps struct {
	DB         *gorm.DB
	Users      *services.UserService
	Reputation *services.ReputationService
	CheckIns   *services.CheckInService
	Calendar   services.Calendar
	Bot        *bot.Handler
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}
	r.Use(metrics.GinMiddleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.TelegramIDHeader, middleware.AdminKeyHeader, utils.RequestIDKey},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDKey},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	authController := controllers.NewAuthController(deps.Users)
	checkInController := controllers.NewCheckInController(deps.CheckIns)
	reputationController := controllers.NewReputationController(deps.Reputation)
	statsController := controllers.NewStatsController(deps.DB, deps.Calendar)
	configController := controllers.NewConfigController(deps.CheckIns.Policy())

	r.GET("/health", statsController.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.Bot != nil {
		r.POST("/webhook", deps.Bot.Webhook(cfg.TelegramWebhookSecret))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	requireUser := middleware.AuthRequired(deps.Users)

	api := r.Group("/api/v1")

	public := api.Group("")
	public.Use(limiter.Middleware())
	public.POST("/users/register", authController.Register)
	public.POST("/auth/telegram", authController.TelegramLogin)
	public.GET("/stats", statsController.GetStats)
	public.GET("/config/check-in", configController.GetCheckInPolicy)

	// authenticated requests are limited per user
	protected := api.Group("")
	protected.Use(requireUser, limiter.Middleware())
	protected.POST("/auth/logout", authController.Logout)
	protected.GET("/users/me", authController.Me)
	protected.PUT("/users/me", authController.UpdateProfile)
	protected.POST("/check-in", checkInController.CheckIn)
	protected.GET("/check-in/status", checkInController.Status)
	protected.GET("/check-in/history", checkInController.History)
	protected.GET("/check-in/stats", checkInController.Stats)
	protected.GET("/reputation/history", reputationController.History)
	protected.GET("/reputation/stats", reputationController.Stats)

	admin := api.Group("/reputation")
	admin.Use(middleware.AdminRequired(deps.Users), limiter.Middleware())
	admin.POST("/add", reputationController.Add)
	admin.POST("/deduct", reputationController.Deduct)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}
