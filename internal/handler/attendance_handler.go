package handler

import (
	"github.com/gin-gonic/gin"

	app_errors "gymgate/internal/errors"
	"gymgate/internal/response"
	"gymgate/internal/services"
)

// CheckIn handles POST /api/attendance/check-in.
func (s *Server) CheckIn(c *gin.Context) {
	var params services.CheckInParams
	if err := c.ShouldBindJSON(&params); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrInvalidJSON, err.Error()))
		return
	}

	attendance, err := s.AttendanceService.CheckIn(c.Request.Context(), params)
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, attendance)
}

// CheckOutRequest defines the request payload for a check-out.
type CheckOutRequest struct {
	MemberID string `json:"member_id" binding:"required"`
	Method   string `json:"method"`
}

// CheckOut handles POST /api/attendance/check-out.
func (s *Server) CheckOut(c *gin.Context) {
	var req CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrInvalidJSON, err.Error()))
		return
	}

	attendance, err := s.AttendanceService.CheckOut(c.Request.Context(), req.MemberID, req.Method)
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, attendance)
}

// GenerateTokenRequest defines the request payload for issuing a token.
type GenerateTokenRequest struct {
	MemberID string `json:"member_id" binding:"required"`
	GymID    string `json:"gym_id" binding:"required"`
}

// GenerateToken handles POST /api/attendance/tokens.
func (s *Server) GenerateToken(c *gin.Context) {
	var req GenerateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrInvalidJSON, err.Error()))
		return
	}

	token, err := s.AttendanceService.GenerateToken(req.MemberID, req.GymID)
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, token)
}

// GetHistory handles GET /api/attendance/history.
func (s *Server) GetHistory(c *gin.Context) {
	memberID := c.Query("member_id")
	page, pageSize := response.ParsePageParams(c, s.SettingsManager.GetSettings().HistoryDefaultPageSize)

	result, err := s.AttendanceService.GetHistory(c.Request.Context(), memberID, page, pageSize)
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, result)
}

// GetActiveSession handles GET /api/attendance/active.
func (s *Server) GetActiveSession(c *gin.Context) {
	memberID := c.Query("member_id")
	if memberID == "" {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrValidation, "member_id is required"))
		return
	}

	attendance, err := s.AttendanceService.GetActiveSession(memberID)
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, attendance)
}

// GetStreak handles GET /api/members/:id/streak.
func (s *Server) GetStreak(c *gin.Context) {
	streak, err := s.AttendanceService.GetStreak(c.Param("id"))
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, streak)
}

// VoidRequest defines the request payload for voiding an attendance record.
type VoidRequest struct {
	StaffID string `json:"staff_id" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
}

// Void handles POST /api/attendance/:id/void (admin).
func (s *Server) Void(c *gin.Context) {
	var req VoidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrInvalidJSON, err.Error()))
		return
	}

	attendance, err := s.AttendanceService.Void(c.Param("id"), req.StaffID, req.Reason)
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, attendance)
}

// asAPIError normalizes service errors for the response envelope.
func asAPIError(err error) *app_errors.APIError {
	if apiErr, ok := err.(*app_errors.APIError); ok {
		return apiErr
	}
	return app_errors.NewAPIError(app_errors.ErrInternalServer, err.Error())
}
