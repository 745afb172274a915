package services

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	app_errors "gymgate/internal/errors"
	"gymgate/internal/models"
)

// CapacityService owns all occupancy mutations. Occupancy only moves through
// conditional UPDATEs here, so the check and the mutation are one atomic
// statement and concurrent check-ins cannot push past the cap.
type CapacityService struct {
	DB *gorm.DB
}

// NewCapacityService creates a new capacity service.
func NewCapacityService(db *gorm.DB) *CapacityService {
	return &CapacityService{DB: db}
}

// GetCapacity returns the live occupancy row for a gym.
func (s *CapacityService) GetCapacity(gymID string) (*models.GymCapacity, error) {
	var capacity models.GymCapacity
	if err := s.DB.Where("gym_id = ?", gymID).First(&capacity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_errors.ErrGymNotFound
		}
		return nil, app_errors.ParseDBError(err)
	}
	return &capacity, nil
}

// Admit reserves one occupancy slot. The guard clause rejects the increment
// when the gym is full or closed; a rejection is disambiguated with a
// follow-up read so the caller gets the right business error.
func (s *CapacityService) Admit(tx *gorm.DB, gymID string) error {
	result := tx.Model(&models.GymCapacity{}).
		Where("gym_id = ? AND is_open = ? AND current_occupancy < max_capacity", gymID, true).
		UpdateColumn("current_occupancy", gorm.Expr("current_occupancy + 1"))
	if result.Error != nil {
		return app_errors.ParseDBError(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var capacity models.GymCapacity
	if err := tx.Where("gym_id = ?", gymID).First(&capacity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return app_errors.ErrGymNotFound
		}
		return app_errors.ParseDBError(err)
	}
	if !capacity.IsOpen {
		return app_errors.ErrGymClosed
	}
	return app_errors.ErrCapacityExceeded
}

// Release frees one occupancy slot, floored at zero. A no-op release is
// logged rather than surfaced; it means the counter was already reconciled
// (admin reset) or the row vanished.
func (s *CapacityService) Release(tx *gorm.DB, gymID string) error {
	result := tx.Model(&models.GymCapacity{}).
		Where("gym_id = ? AND current_occupancy > 0", gymID).
		UpdateColumn("current_occupancy", gorm.Expr("current_occupancy - 1"))
	if result.Error != nil {
		return app_errors.ParseDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		logrus.WithField("gym_id", gymID).Warn("Occupancy release had no effect, counter already at zero or gym missing")
	}
	return nil
}

// ResetOccupancy is the administrative correction against a physical
// headcount. The new value is clamped to [0, max_capacity].
func (s *CapacityService) ResetOccupancy(gymID string, count int) (*models.GymCapacity, error) {
	capacity, err := s.GetCapacity(gymID)
	if err != nil {
		return nil, err
	}

	if count < 0 {
		count = 0
	}
	if count > capacity.MaxCapacity {
		count = capacity.MaxCapacity
	}

	if err := s.DB.Model(&models.GymCapacity{}).
		Where("gym_id = ?", gymID).
		UpdateColumn("current_occupancy", count).Error; err != nil {
		return nil, app_errors.ParseDBError(err)
	}

	logrus.WithFields(logrus.Fields{
		"gym_id":    gymID,
		"occupancy": count,
	}).Info("Gym occupancy administratively reset")

	capacity.CurrentOccupancy = count
	return capacity, nil
}

// EnsureGym registers or updates the capacity row for a gym. Used by
// provisioning and by tests.
func (s *CapacityService) EnsureGym(gymID string, maxCapacity int, isOpen bool) (*models.GymCapacity, error) {
	if maxCapacity <= 0 {
		return nil, app_errors.NewAPIError(app_errors.ErrValidation, fmt.Sprintf("max capacity must be positive, got %d", maxCapacity))
	}

	capacity := &models.GymCapacity{GymID: gymID, MaxCapacity: maxCapacity, IsOpen: isOpen}
	err := s.DB.Where("gym_id = ?", gymID).First(&models.GymCapacity{}).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.DB.Create(capacity).Error; err != nil {
			return nil, app_errors.ParseDBError(err)
		}
	case err != nil:
		return nil, app_errors.ParseDBError(err)
	default:
		if err := s.DB.Model(&models.GymCapacity{}).Where("gym_id = ?", gymID).
			Updates(map[string]any{"max_capacity": maxCapacity, "is_open": isOpen}).Error; err != nil {
			return nil, app_errors.ParseDBError(err)
		}
	}
	return s.GetCapacity(gymID)
}
