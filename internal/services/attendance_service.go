package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gymgate/internal/config"
	app_errors "gymgate/internal/errors"
	"gymgate/internal/membership"
	"gymgate/internal/models"
	"gymgate/internal/response"
	"gymgate/internal/store"
)

// tokenMethods are the check-in methods that present a single-use token
// instead of a bare member ID.
var tokenMethods = map[string]bool{
	models.CheckInMethodQRCode: true,
	models.CheckInMethodNFC:    true,
}

var directMethods = map[string]bool{
	models.CheckInMethodManual:    true,
	models.CheckInMethodGeofence:  true,
	models.CheckInMethodBiometric: true,
	models.CheckInMethodKiosk:     true,
}

// CheckInParams carries the inputs of one check-in attempt. Token methods
// supply TokenValue; direct methods supply MemberID (manual additionally
// requires StaffID).
type CheckInParams struct {
	MemberID   string         `json:"member_id"`
	TokenValue string         `json:"token_value"`
	GymID      string         `json:"gym_id"`
	Method     string         `json:"method"`
	StaffID    string         `json:"staff_id"`
	DeviceInfo datatypes.JSON `json:"device_info"`
}

// AttendanceService coordinates check-ins and check-outs: identity
// resolution, membership validation, capacity admission, the attendance
// write, token consumption and the streak update. All writes of one
// operation share a transaction, so a failure after the capacity increment
// rolls the counter back with everything else.
type AttendanceService struct {
	DB              *gorm.DB
	Store           store.Store
	SettingsManager *config.SystemSettingsManager
	Capacity        *CapacityService
	Membership      membership.Validator
}

// NewAttendanceService creates a new attendance service.
func NewAttendanceService(
	db *gorm.DB,
	s store.Store,
	settingsManager *config.SystemSettingsManager,
	capacity *CapacityService,
	validator membership.Validator,
) *AttendanceService {
	return &AttendanceService{
		DB:              db,
		Store:           s,
		SettingsManager: settingsManager,
		Capacity:        capacity,
		Membership:      validator,
	}
}

// CheckIn executes one entry attempt end to end and returns the new open
// attendance record.
func (s *AttendanceService) CheckIn(ctx context.Context, params CheckInParams) (*models.Attendance, error) {
	now := time.Now()

	memberID, token, gymID, err := s.resolveIdentity(params, now)
	if err != nil {
		return nil, err
	}

	if err := s.checkDailyQuota(memberID, now); err != nil {
		return nil, err
	}

	decision, err := s.Membership.ValidateAccess(ctx, memberID, gymID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"member_id": memberID,
			"gym_id":    gymID,
			"error":     err.Error(),
		}).Error("Membership validation failed")
		return nil, app_errors.ErrMembershipUnavailable
	}
	if !decision.GymOpen {
		return nil, app_errors.ErrGymClosed
	}
	if !decision.Valid {
		if decision.Reason != "" {
			return nil, app_errors.NewAPIError(app_errors.ErrMembershipInvalid, decision.Reason)
		}
		return nil, app_errors.ErrMembershipInvalid
	}

	// Friendly pre-check. The unique index on active_key is the real guard;
	// this read just catches the common case before touching the counter.
	var open int64
	if err := s.DB.Model(&models.Attendance{}).
		Where("member_id = ? AND check_out_time IS NULL AND is_valid = ?", memberID, true).
		Count(&open).Error; err != nil {
		return nil, app_errors.ParseDBError(err)
	}
	if open > 0 {
		return nil, app_errors.ErrAlreadyCheckedIn
	}

	attendance := models.NewAttendance(memberID, gymID, decision.MembershipID, params.Method, now)
	attendance.StaffID = params.StaffID
	attendance.DeviceInfo = params.DeviceInfo

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Capacity.Admit(tx, gymID); err != nil {
			return err
		}

		if err := tx.Create(attendance).Error; err != nil {
			if app_errors.IsDuplicateKeyError(err) {
				return app_errors.ErrAlreadyCheckedIn
			}
			return app_errors.ParseDBError(err)
		}

		if token != nil {
			if err := s.consumeToken(tx, token, now); err != nil {
				return err
			}
		}
		if err := s.invalidateOutstandingTokens(tx, memberID, token); err != nil {
			return err
		}

		return s.applyStreakVisit(tx, memberID, now)
	})
	if err != nil {
		var apiErr *app_errors.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, app_errors.ParseDBError(err)
	}

	s.recordQuotaUse(memberID, now)

	logrus.WithFields(logrus.Fields{
		"attendance_id": attendance.ID,
		"member_id":     memberID,
		"gym_id":        gymID,
		"method":        params.Method,
	}).Info("Member checked in")

	return attendance, nil
}

// resolveIdentity maps the attempt to a member ID, and for token methods
// verifies the presented token is usable. The token row is consumed later,
// inside the check-in transaction.
func (s *AttendanceService) resolveIdentity(params CheckInParams, now time.Time) (string, *models.CheckInToken, string, error) {
	switch {
	case tokenMethods[params.Method]:
		if params.TokenValue == "" {
			return "", nil, "", app_errors.NewAPIError(app_errors.ErrValidation, "token_value is required for this check-in method")
		}

		var token models.CheckInToken
		if err := s.DB.Where("token_value = ?", params.TokenValue).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", nil, "", app_errors.ErrTokenNotFound
			}
			return "", nil, "", app_errors.ParseDBError(err)
		}

		if err := token.Use(now); err != nil {
			switch {
			case errors.Is(err, models.ErrTokenHasExpired):
				return "", nil, "", app_errors.ErrTokenExpired
			case errors.Is(err, models.ErrTokenAlreadyUsed):
				return "", nil, "", app_errors.ErrTokenUsed
			default:
				return "", nil, "", app_errors.ErrTokenNotFound
			}
		}

		gymID := params.GymID
		if gymID == "" {
			gymID = token.GymID
		} else if gymID != token.GymID {
			return "", nil, "", app_errors.NewAPIError(app_errors.ErrValidation, "token was issued for a different gym")
		}
		return token.MemberID, &token, gymID, nil

	case directMethods[params.Method]:
		if params.MemberID == "" {
			return "", nil, "", app_errors.NewAPIError(app_errors.ErrValidation, "member_id is required for this check-in method")
		}
		if params.Method == models.CheckInMethodManual && params.StaffID == "" {
			return "", nil, "", app_errors.NewAPIError(app_errors.ErrValidation, "staff_id is required for manual check-in")
		}
		if params.GymID == "" {
			return "", nil, "", app_errors.NewAPIError(app_errors.ErrValidation, "gym_id is required")
		}
		return params.MemberID, nil, params.GymID, nil

	default:
		return "", nil, "", app_errors.NewAPIError(app_errors.ErrValidation, fmt.Sprintf("unknown check-in method: %s", params.Method))
	}
}

// consumeToken marks the token used with a conditional update, so two
// concurrent presentations of the same value cannot both succeed.
func (s *AttendanceService) consumeToken(tx *gorm.DB, token *models.CheckInToken, now time.Time) error {
	result := tx.Model(&models.CheckInToken{}).
		Where("id = ? AND used_at IS NULL AND is_valid = ?", token.ID, true).
		Update("used_at", now)
	if result.Error != nil {
		return app_errors.ParseDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return app_errors.ErrTokenUsed
	}
	return nil
}

// invalidateOutstandingTokens revokes every other unused token of the
// member, so stale QR codes stop working once a newer credential exists.
func (s *AttendanceService) invalidateOutstandingTokens(tx *gorm.DB, memberID string, keep *models.CheckInToken) error {
	query := tx.Model(&models.CheckInToken{}).
		Where("member_id = ? AND used_at IS NULL AND is_valid = ?", memberID, true)
	if keep != nil {
		query = query.Where("id != ?", keep.ID)
	}
	if err := query.Update("is_valid", false).Error; err != nil {
		return app_errors.ParseDBError(err)
	}
	return nil
}

// applyStreakVisit records the visit day on the member's streak row,
// creating it lazily on the first visit.
func (s *AttendanceService) applyStreakVisit(tx *gorm.DB, memberID string, now time.Time) error {
	quota := s.SettingsManager.GetSettings().StreakFreezePerMonth

	var streak models.MemberStreak
	err := tx.Where("member_id = ?", memberID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		streak = models.MemberStreak{MemberID: memberID}
		streak.UpdateStreak(now, quota)
		if err := tx.Create(&streak).Error; err != nil {
			return app_errors.ParseDBError(err)
		}
		return nil
	}
	if err != nil {
		return app_errors.ParseDBError(err)
	}

	if streak.UpdateStreak(now, quota) {
		if err := tx.Save(&streak).Error; err != nil {
			return app_errors.ParseDBError(err)
		}
	}
	return nil
}

// CheckOut closes the member's open session, derives the visit duration and
// frees the gym slot.
func (s *AttendanceService) CheckOut(ctx context.Context, memberID, method string) (*models.Attendance, error) {
	if method == "" {
		method = models.CheckOutMethodManual
	}
	now := time.Now()

	attendance, err := s.findOpenSession(memberID)
	if err != nil {
		return nil, err
	}

	if err := attendance.CheckOut(method, now); err != nil {
		return nil, app_errors.ErrNotCheckedIn
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// The guard protects against a reaper pass closing the same row
		// between our read and this write.
		result := tx.Model(&models.Attendance{}).
			Where("id = ? AND check_out_time IS NULL", attendance.ID).
			Updates(map[string]any{
				"check_out_time":   attendance.CheckOutTime,
				"check_out_method": attendance.CheckOutMethod,
				"duration_minutes": attendance.DurationMinutes,
				"active_key":       nil,
			})
		if result.Error != nil {
			return app_errors.ParseDBError(result.Error)
		}
		if result.RowsAffected == 0 {
			return app_errors.ErrNotCheckedIn
		}
		return s.Capacity.Release(tx, attendance.GymID)
	})
	if err != nil {
		var apiErr *app_errors.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, app_errors.ParseDBError(err)
	}

	logrus.WithFields(logrus.Fields{
		"attendance_id":    attendance.ID,
		"member_id":        memberID,
		"gym_id":           attendance.GymID,
		"duration_minutes": *attendance.DurationMinutes,
	}).Info("Member checked out")

	return attendance, nil
}

// GenerateToken issues a fresh check-in token, revoking the member's other
// unused tokens first so only the newest credential stays valid.
func (s *AttendanceService) GenerateToken(memberID, gymID string) (*models.CheckInToken, error) {
	if memberID == "" || gymID == "" {
		return nil, app_errors.NewAPIError(app_errors.ErrValidation, "member_id and gym_id are required")
	}

	now := time.Now()
	ttl := time.Duration(s.SettingsManager.GetSettings().TokenExpiryMinutes) * time.Minute
	token := models.GenerateCheckInToken(memberID, gymID, ttl, now)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.invalidateOutstandingTokens(tx, memberID, nil); err != nil {
			return err
		}
		if err := tx.Create(token).Error; err != nil {
			return app_errors.ParseDBError(err)
		}
		return nil
	})
	if err != nil {
		var apiErr *app_errors.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, app_errors.ParseDBError(err)
	}

	return token, nil
}

// GetHistory returns the member's past visits, most recent first.
func (s *AttendanceService) GetHistory(ctx context.Context, memberID string, page, pageSize int) (*response.PaginatedResponse, error) {
	if memberID == "" {
		return nil, app_errors.NewAPIError(app_errors.ErrValidation, "member_id is required")
	}

	query := s.DB.Model(&models.Attendance{}).
		Where("member_id = ?", memberID).
		Order("check_in_time DESC")

	var records []models.Attendance
	result, err := response.Paginate(ctx, query, page, pageSize, &records)
	if err != nil {
		return nil, app_errors.ParseDBError(err)
	}
	return result, nil
}

// GetActiveSession returns the member's open attendance. A member with no
// open session is a plain read miss, not a state conflict, so it surfaces
// as not-found rather than the check-out path's conflict error.
func (s *AttendanceService) GetActiveSession(memberID string) (*models.Attendance, error) {
	attendance, err := s.findOpenSession(memberID)
	if err == app_errors.ErrNotCheckedIn {
		return nil, app_errors.ErrResourceNotFound
	}
	return attendance, err
}

// GetStreak returns the member's streak row, or a zero-valued one when the
// member has never visited.
func (s *AttendanceService) GetStreak(memberID string) (*models.MemberStreak, error) {
	var streak models.MemberStreak
	err := s.DB.Where("member_id = ?", memberID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.MemberStreak{MemberID: memberID}, nil
	}
	if err != nil {
		return nil, app_errors.ParseDBError(err)
	}
	return &streak, nil
}

// Void administratively invalidates an attendance record. Voiding an open
// session also frees its gym slot. Re-voiding is a no-op.
func (s *AttendanceService) Void(attendanceID, staffID, reason string) (*models.Attendance, error) {
	if staffID == "" {
		return nil, app_errors.NewAPIError(app_errors.ErrValidation, "staff_id is required")
	}

	var attendance models.Attendance
	if err := s.DB.Where("id = ?", attendanceID).First(&attendance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_errors.ErrResourceNotFound
		}
		return nil, app_errors.ParseDBError(err)
	}
	if !attendance.IsValid {
		return &attendance, nil
	}

	attendance.Void(staffID, reason, time.Now())

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		return s.applyVoid(tx, &attendance)
	})
	if err != nil {
		var apiErr *app_errors.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, app_errors.ParseDBError(err)
	}

	logrus.WithFields(logrus.Fields{
		"attendance_id": attendance.ID,
		"staff_id":      staffID,
		"reason":        reason,
	}).Info("Attendance record voided")

	return &attendance, nil
}

// applyVoid persists the void. Whether a gym slot is released is decided by
// the first, open-guarded update matching at write time; deciding it from an
// earlier read would release a second time when a concurrent check-out or
// reaper pass closes the row in between.
func (s *AttendanceService) applyVoid(tx *gorm.DB, attendance *models.Attendance) error {
	updates := map[string]any{
		"is_valid":    false,
		"voided_at":   attendance.VoidedAt,
		"voided_by":   attendance.VoidedBy,
		"void_reason": attendance.VoidReason,
		"active_key":  nil,
	}

	result := tx.Model(&models.Attendance{}).
		Where("id = ? AND is_valid = ? AND check_out_time IS NULL", attendance.ID, true).
		Updates(updates)
	if result.Error != nil {
		return app_errors.ParseDBError(result.Error)
	}
	if result.RowsAffected > 0 {
		// still open at write time, so the session holds a slot
		return s.Capacity.Release(tx, attendance.GymID)
	}

	// Closed row, or lost the race to another void. Voiding a closed record
	// is legal and must not touch occupancy; re-voiding is a no-op.
	result = tx.Model(&models.Attendance{}).
		Where("id = ? AND is_valid = ?", attendance.ID, true).
		Updates(updates)
	if result.Error != nil {
		return app_errors.ParseDBError(result.Error)
	}
	return nil
}

func (s *AttendanceService) findOpenSession(memberID string) (*models.Attendance, error) {
	var attendance models.Attendance
	err := s.DB.Where("member_id = ? AND check_out_time IS NULL AND is_valid = ?", memberID, true).
		First(&attendance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, app_errors.ErrNotCheckedIn
	}
	if err != nil {
		return nil, app_errors.ParseDBError(err)
	}
	return &attendance, nil
}

// checkDailyQuota rejects the attempt when the member has already reached
// the daily check-in limit. A limit of 0 disables the quota.
func (s *AttendanceService) checkDailyQuota(memberID string, now time.Time) error {
	limit := s.SettingsManager.GetSettings().MaxCheckInsPerDay
	if limit <= 0 {
		return nil
	}

	data, err := s.Store.Get(quotaKey(memberID, now))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		// quota is advisory; do not block entry on a counter outage
		logrus.WithField("member_id", memberID).WithError(err).Warn("Daily quota lookup failed")
		return nil
	}

	count, _ := strconv.ParseInt(string(data), 10, 64)
	if count >= int64(limit) {
		return app_errors.ErrCheckInLimitReached
	}
	return nil
}

// recordQuotaUse counts a successful check-in toward today's quota. The
// counter expires at the next UTC midnight.
func (s *AttendanceService) recordQuotaUse(memberID string, now time.Time) {
	if s.SettingsManager.GetSettings().MaxCheckInsPerDay <= 0 {
		return
	}
	if _, err := s.Store.Incr(quotaKey(memberID, now), untilMidnightUTC(now)); err != nil {
		logrus.WithField("member_id", memberID).WithError(err).Warn("Failed to record daily quota use")
	}
}

func quotaKey(memberID string, now time.Time) string {
	return fmt.Sprintf("attendance:quota:%s:%s", memberID, now.UTC().Format("2006-01-02"))
}

func untilMidnightUTC(now time.Time) time.Duration {
	u := now.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return midnight.Sub(u)
}
