// Package router wires the HTTP routes to their handlers.
package router

import (
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"gymgate/internal/handler"
	"gymgate/internal/middleware"
	"gymgate/internal/types"
)

// NewRouter builds the gin engine with all middleware and routes registered.
func NewRouter(serverHandler *handler.Server, configManager types.ConfigManager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Register global middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Logger(configManager.GetLogConfig()))
	router.Use(middleware.CORS(configManager.GetCORSConfig()))
	router.Use(middleware.RateLimiter(configManager.GetPerformanceConfig()))
	router.Use(middleware.SecurityHeaders())
	startTime := time.Now()
	router.Use(func(c *gin.Context) {
		c.Set("serverStartTime", startTime)
		c.Next()
	})

	registerSystemRoutes(router, serverHandler)
	registerAPIRoutes(router, serverHandler, configManager)

	return router
}

// registerSystemRoutes registers system-level routes
func registerSystemRoutes(router *gin.Engine, serverHandler *handler.Server) {
	router.GET("/health", serverHandler.Health)
}

// registerAPIRoutes registers API routes
func registerAPIRoutes(router *gin.Engine, serverHandler *handler.Server, configManager types.ConfigManager) {
	api := router.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))

	authConfig := configManager.GetAuthConfig()

	registerPublicAPIRoutes(api, serverHandler)

	protectedAPI := api.Group("")
	protectedAPI.Use(middleware.Auth(authConfig))
	registerProtectedAPIRoutes(protectedAPI, serverHandler)
}

// registerPublicAPIRoutes registers member-facing routes
func registerPublicAPIRoutes(api *gin.RouterGroup, serverHandler *handler.Server) {
	api.POST("/auth/login", serverHandler.Login)

	attendance := api.Group("/attendance")
	{
		attendance.POST("/check-in", serverHandler.CheckIn)
		attendance.POST("/check-out", serverHandler.CheckOut)
		attendance.POST("/tokens", serverHandler.GenerateToken)
		attendance.GET("/history", serverHandler.GetHistory)
		attendance.GET("/active", serverHandler.GetActiveSession)
	}

	api.GET("/members/:id/streak", serverHandler.GetStreak)
	api.GET("/gyms/:id/capacity", serverHandler.GetCapacity)
}

// registerProtectedAPIRoutes registers staff routes behind the auth key
func registerProtectedAPIRoutes(api *gin.RouterGroup, serverHandler *handler.Server) {
	api.POST("/attendance/:id/void", serverHandler.Void)
	api.PUT("/gyms/:id/capacity", serverHandler.UpsertGym)
	api.PUT("/gyms/:id/capacity/reset", serverHandler.ResetCapacity)

	settings := api.Group("/settings")
	{
		settings.GET("", serverHandler.GetSettings)
		settings.PUT("", serverHandler.UpdateSettings)
	}
}
