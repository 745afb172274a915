package handler

import (
	"github.com/gin-gonic/gin"

	app_errors "gymgate/internal/errors"
	"gymgate/internal/response"
)

// capacityView is the client-facing readout of a gym's occupancy.
type capacityView struct {
	GymID              string `json:"gym_id"`
	MaxCapacity        int    `json:"max_capacity"`
	CurrentOccupancy   int    `json:"current_occupancy"`
	SoftLimit          int    `json:"soft_limit"`
	IsOpen             bool   `json:"is_open"`
	IsFull             bool   `json:"is_full"`
	IsBusy             bool   `json:"is_busy"`
	UtilizationPercent int    `json:"utilization_percent"`
}

// GetCapacity handles GET /api/gyms/:id/capacity.
func (s *Server) GetCapacity(c *gin.Context) {
	capacity, err := s.CapacityService.GetCapacity(c.Param("id"))
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}

	response.Success(c, capacityView{
		GymID:              capacity.GymID,
		MaxCapacity:        capacity.MaxCapacity,
		CurrentOccupancy:   capacity.CurrentOccupancy,
		SoftLimit:          capacity.SoftLimit(),
		IsOpen:             capacity.IsOpen,
		IsFull:             capacity.IsFull(),
		IsBusy:             capacity.IsBusy(),
		UtilizationPercent: capacity.UtilizationPercent(),
	})
}

// ResetCapacityRequest defines the request payload for an occupancy reset.
type ResetCapacityRequest struct {
	Occupancy *int `json:"occupancy" binding:"required"`
}

// ResetCapacity handles PUT /api/gyms/:id/capacity/reset (admin).
func (s *Server) ResetCapacity(c *gin.Context) {
	var req ResetCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrInvalidJSON, err.Error()))
		return
	}

	capacity, err := s.CapacityService.ResetOccupancy(c.Param("id"), *req.Occupancy)
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, capacity)
}

// UpsertGymRequest defines the request payload for provisioning a gym.
type UpsertGymRequest struct {
	MaxCapacity int  `json:"max_capacity" binding:"required"`
	IsOpen      bool `json:"is_open"`
}

// UpsertGym handles PUT /api/gyms/:id/capacity (admin): registers a gym or
// changes its cap and operating state.
func (s *Server) UpsertGym(c *gin.Context) {
	var req UpsertGymRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrInvalidJSON, err.Error()))
		return
	}

	capacity, err := s.CapacityService.EnsureGym(c.Param("id"), req.MaxCapacity, req.IsOpen)
	if err != nil {
		response.Error(c, asAPIError(err))
		return
	}
	response.Success(c, capacity)
}
