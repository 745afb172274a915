// Package handler contains the HTTP handlers for the attendance API.
package handler

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"gymgate/internal/config"
	"gymgate/internal/services"
	"gymgate/internal/store"
	"gymgate/internal/types"
)

// Server aggregates the dependencies the HTTP handlers need.
type Server struct {
	DB                *gorm.DB
	Store             store.Store
	ConfigManager     types.ConfigManager
	SettingsManager   *config.SystemSettingsManager
	AttendanceService *services.AttendanceService
	CapacityService   *services.CapacityService
}

// NewServer creates a new handler server.
func NewServer(
	db *gorm.DB,
	s store.Store,
	configManager types.ConfigManager,
	settingsManager *config.SystemSettingsManager,
	attendanceService *services.AttendanceService,
	capacityService *services.CapacityService,
) *Server {
	return &Server{
		DB:                db,
		Store:             s,
		ConfigManager:     configManager,
		SettingsManager:   settingsManager,
		AttendanceService: attendanceService,
		CapacityService:   capacityService,
	}
}

// Health handles the GET /health request, verifying database connectivity.
func (s *Server) Health(c *gin.Context) {
	status := "healthy"
	dbStatus := "ok"
	httpStatus := 200

	sqlDB, err := s.DB.DB()
	if err != nil {
		dbStatus = "error"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = "error"
		}
	}
	if dbStatus != "ok" {
		status = "unhealthy"
		httpStatus = 503
	}

	payload := gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if startTime, exists := c.Get("serverStartTime"); exists {
		if t, ok := startTime.(time.Time); ok {
			payload["uptime"] = time.Since(t).String()
		}
	}

	c.JSON(httpStatus, payload)
}

// LoginRequest defines the request payload for admin login.
type LoginRequest struct {
	AuthKey string `json:"auth_key"`
}

// Login handles POST /api/auth/login: verifies the admin key so the caller
// can discover whether its stored credential is still valid.
func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(200, gin.H{"success": false})
		return
	}

	authConfig := s.ConfigManager.GetAuthConfig()
	valid := req.AuthKey != "" && subtle.ConstantTimeCompare([]byte(req.AuthKey), []byte(authConfig.Key)) == 1
	c.JSON(200, gin.H{"success": valid})
}
