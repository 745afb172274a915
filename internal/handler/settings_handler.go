package handler

import (
	"github.com/gin-gonic/gin"

	app_errors "gymgate/internal/errors"
	"gymgate/internal/response"
)

// GetSettings handles the GET /api/settings request.
func (s *Server) GetSettings(c *gin.Context) {
	response.Success(c, s.SettingsManager.GetSettings())
}

// UpdateSettings handles the PUT /api/settings request.
func (s *Server) UpdateSettings(c *gin.Context) {
	var settingsMap map[string]any
	if err := c.ShouldBindJSON(&settingsMap); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrInvalidJSON, err.Error()))
		return
	}

	if len(settingsMap) == 0 {
		response.Success(c, nil)
		return
	}

	if err := s.SettingsManager.ValidateSettings(settingsMap); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrValidation, err.Error()))
		return
	}

	if err := s.SettingsManager.UpdateSettings(settingsMap); err != nil {
		response.Error(c, asAPIError(err))
		return
	}

	response.Success(c, s.SettingsManager.GetSettings())
}
