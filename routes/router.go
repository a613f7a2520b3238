package routes

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/controllers"
	"github.com/imglink/imglink/middleware"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/store"
	"github.com/imglink/imglink/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, objects storage.Store) *gin.Engine {
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
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	s := store.New(db)

	authController := controllers.NewAuthController(db)
	uploadController := controllers.NewUploadController(s, objects)
	cronController := controllers.NewCronController(s, s, objects)
	adminController := controllers.NewAdminController(s, objects)
	proxyController := controllers.NewProxyController(objects)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	api.POST("/upload", middleware.RateLimitMiddleware(), middleware.AuthOptional(), uploadController.Upload)
	api.GET("/check-limit", middleware.AuthOptional(), uploadController.CheckLimit)
	api.GET("/proxy-image", proxyController.Image)

	uploadsGroup := api.Group("/uploads")
	uploadsGroup.GET("", middleware.AuthRequired(), uploadController.ListMine)
	uploadsGroup.DELETE("/:id", middleware.AuthRequired(), uploadController.Delete)
	uploadsGroup.PATCH("/:id/expiry", middleware.AuthRequired(), uploadController.UpdateExpiry)

	// Scheduler-facing endpoints, shared-secret auth only.
	cronGroup := api.Group("/cron")
	cronGroup.Use(middleware.CronAuth())
	cronGroup.GET("/delete-expired", cronController.DeleteExpired)
	cronGroup.GET("/retry-failed-deletions", cronController.RetryFailedDeletions)

	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.AuthRequired(), middleware.AdminRequired())
	adminGroup.GET("/uploads", adminController.ListUploads)
	adminGroup.DELETE("/uploads", adminController.BulkDelete)
	adminGroup.GET("/users", adminController.ListUploaders)
	adminGroup.GET("/stats", adminController.Stats)

	return r
}
