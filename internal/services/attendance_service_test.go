package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gymgate/internal/config"
	app_errors "gymgate/internal/errors"
	"gymgate/internal/membership"
	"gymgate/internal/models"
	"gymgate/internal/store"
)

// stubValidator is a canned membership validator for tests.
type stubValidator struct {
	decision *membership.AccessDecision
	err      error
}

func (s *stubValidator) ValidateAccess(ctx context.Context, memberID, gymID string) (*membership.AccessDecision, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.decision != nil {
		return s.decision, nil
	}
	return &membership.AccessDecision{Valid: true, MembershipID: "membership-" + memberID, GymOpen: true}, nil
}

// setupAttendanceTest creates an attendance service on a fresh in-memory
// database with an open 10-person gym.
func setupAttendanceTest(t *testing.T) (*AttendanceService, *stubValidator, *gorm.DB) {
	t.Helper()
	testName := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", testName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: false,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&models.SystemSetting{},
		&models.Attendance{},
		&models.CheckInToken{},
		&models.GymCapacity{},
		&models.MemberStreak{},
	)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.GymCapacity{GymID: "gym-1", MaxCapacity: 10, IsOpen: true}).Error)

	validator := &stubValidator{}
	memStore := store.NewMemoryStore()
	t.Cleanup(func() { _ = memStore.Close() })

	settingsManager := config.NewSystemSettingsManager()
	capacityService := NewCapacityService(db)
	service := NewAttendanceService(db, memStore, settingsManager, capacityService, validator)
	return service, validator, db
}

func occupancy(t *testing.T, db *gorm.DB, gymID string) int {
	t.Helper()
	var capacity models.GymCapacity
	require.NoError(t, db.Where("gym_id = ?", gymID).First(&capacity).Error)
	return capacity.CurrentOccupancy
}

// TestCheckIn_ManualSuccess tests the direct check-in path end to end
func TestCheckIn_ManualSuccess(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)

	attendance, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1",
		GymID:    "gym-1",
		Method:   models.CheckInMethodManual,
		StaffID:  "staff-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "member-1", attendance.MemberID)
	assert.Equal(t, "membership-member-1", attendance.MembershipID)
	assert.True(t, attendance.IsOpen())
	assert.Equal(t, 1, occupancy(t, db, "gym-1"))

	// streak row created lazily on the first visit
	streak, err := service.GetStreak("member-1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
}

// TestCheckIn_QRWithoutToken tests the token-not-found rejection
func TestCheckIn_QRWithoutToken(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)

	_, err := service.CheckIn(context.Background(), CheckInParams{
		TokenValue: "does-not-exist",
		Method:     models.CheckInMethodQRCode,
	})
	assert.Equal(t, app_errors.ErrTokenNotFound, err)
	assert.Equal(t, 0, occupancy(t, db, "gym-1"))
}

// TestCheckIn_TokenSingleUse tests the issue-present-reuse cycle
func TestCheckIn_TokenSingleUse(t *testing.T) {
	t.Parallel()
	service, _, _ := setupAttendanceTest(t)

	token, err := service.GenerateToken("member-1", "gym-1")
	require.NoError(t, err)
	require.Len(t, token.TokenValue, 64)

	attendance, err := service.CheckIn(context.Background(), CheckInParams{
		TokenValue: token.TokenValue,
		Method:     models.CheckInMethodQRCode,
	})
	require.NoError(t, err)
	assert.Equal(t, "member-1", attendance.MemberID)
	assert.Equal(t, "gym-1", attendance.GymID)

	// a used token cannot be presented again
	_, err = service.CheckIn(context.Background(), CheckInParams{
		TokenValue: token.TokenValue,
		Method:     models.CheckInMethodQRCode,
	})
	assert.Equal(t, app_errors.ErrTokenUsed, err)
}

// TestCheckIn_ExpiredToken tests expiry rejection
func TestCheckIn_ExpiredToken(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)

	expired := models.GenerateCheckInToken("member-1", "gym-1", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, db.Create(expired).Error)

	_, err := service.CheckIn(context.Background(), CheckInParams{
		TokenValue: expired.TokenValue,
		Method:     models.CheckInMethodNFC,
	})
	assert.Equal(t, app_errors.ErrTokenExpired, err)
}

// TestGenerateToken_InvalidatesPrior tests that only the newest token works
func TestGenerateToken_InvalidatesPrior(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)

	first, err := service.GenerateToken("member-1", "gym-1")
	require.NoError(t, err)
	second, err := service.GenerateToken("member-1", "gym-1")
	require.NoError(t, err)

	var reloaded models.CheckInToken
	require.NoError(t, db.Where("id = ?", first.ID).First(&reloaded).Error)
	assert.False(t, reloaded.IsValid)

	_, err = service.CheckIn(context.Background(), CheckInParams{
		TokenValue: second.TokenValue,
		Method:     models.CheckInMethodQRCode,
	})
	assert.NoError(t, err)
}

// TestCheckIn_AlreadyCheckedInAcrossGyms tests the one-open-session invariant
func TestCheckIn_AlreadyCheckedInAcrossGyms(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)
	require.NoError(t, db.Create(&models.GymCapacity{GymID: "gym-2", MaxCapacity: 10, IsOpen: true}).Error)

	_, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	require.NoError(t, err)

	_, err = service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-2", Method: models.CheckInMethodKiosk,
	})
	assert.Equal(t, app_errors.ErrAlreadyCheckedIn, err)

	// the rejected attempt must not leak an occupancy slot
	assert.Equal(t, 0, occupancy(t, db, "gym-2"))
}

// TestCheckIn_CapacityExceeded tests the full-gym rejection and recovery
func TestCheckIn_CapacityExceeded(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)
	require.NoError(t, db.Create(&models.GymCapacity{GymID: "gym-small", MaxCapacity: 1, IsOpen: true}).Error)

	_, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-small", Method: models.CheckInMethodKiosk,
	})
	require.NoError(t, err)

	_, err = service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-2", GymID: "gym-small", Method: models.CheckInMethodKiosk,
	})
	assert.Equal(t, app_errors.ErrCapacityExceeded, err)

	// a checkout frees the slot
	_, err = service.CheckOut(context.Background(), "member-1", models.CheckOutMethodManual)
	require.NoError(t, err)
	assert.Equal(t, 0, occupancy(t, db, "gym-small"))

	_, err = service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-2", GymID: "gym-small", Method: models.CheckInMethodKiosk,
	})
	assert.NoError(t, err)
}

// TestCheckIn_GymClosed tests rejection when the gym is not operating
func TestCheckIn_GymClosed(t *testing.T) {
	t.Parallel()
	service, validator, db := setupAttendanceTest(t)
	require.NoError(t, db.Create(&models.GymCapacity{GymID: "gym-closed", MaxCapacity: 10, IsOpen: false}).Error)
	// GORM replaces a zero-valued bool with the column's default:true on
	// insert, so force the closed state with an explicit update.
	require.NoError(t, db.Model(&models.GymCapacity{}).Where("gym_id = ?", "gym-closed").UpdateColumn("is_open", false).Error)

	_, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-closed", Method: models.CheckInMethodKiosk,
	})
	assert.Equal(t, app_errors.ErrGymClosed, err)

	// the validator can also report the gym closed
	validator.decision = &membership.AccessDecision{Valid: true, GymOpen: false}
	_, err = service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	assert.Equal(t, app_errors.ErrGymClosed, err)
}

// TestCheckIn_MembershipInvalid tests the membership denial path
func TestCheckIn_MembershipInvalid(t *testing.T) {
	t.Parallel()
	service, validator, db := setupAttendanceTest(t)

	validator.decision = &membership.AccessDecision{Valid: false, GymOpen: true, Reason: "membership expired"}
	_, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	apiErr, ok := err.(*app_errors.APIError)
	require.True(t, ok)
	assert.Equal(t, "MEMBERSHIP_INVALID", apiErr.Code)
	assert.Equal(t, "membership expired", apiErr.Message)
	assert.Equal(t, 0, occupancy(t, db, "gym-1"))
}

// TestCheckIn_MembershipUnavailable tests fail-closed on upstream outage
func TestCheckIn_MembershipUnavailable(t *testing.T) {
	t.Parallel()
	service, validator, _ := setupAttendanceTest(t)

	validator.err = fmt.Errorf("connection refused")
	_, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	assert.Equal(t, app_errors.ErrMembershipUnavailable, err)
}

// TestCheckIn_ValidationErrors tests method-specific input requirements
func TestCheckIn_ValidationErrors(t *testing.T) {
	t.Parallel()
	service, _, _ := setupAttendanceTest(t)

	tests := []struct {
		name   string
		params CheckInParams
	}{
		{"unknown method", CheckInParams{MemberID: "m", GymID: "gym-1", Method: "teleport"}},
		{"qr without token", CheckInParams{Method: models.CheckInMethodQRCode}},
		{"manual without member", CheckInParams{GymID: "gym-1", Method: models.CheckInMethodManual, StaffID: "staff-1"}},
		{"manual without staff", CheckInParams{MemberID: "m", GymID: "gym-1", Method: models.CheckInMethodManual}},
		{"kiosk without gym", CheckInParams{MemberID: "m", Method: models.CheckInMethodKiosk}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CheckIn(context.Background(), tt.params)
			apiErr, ok := err.(*app_errors.APIError)
			require.True(t, ok)
			assert.Equal(t, "VALIDATION_FAILED", apiErr.Code)
		})
	}
}

// TestCheckIn_DailyQuota tests the per-day check-in limit
func TestCheckIn_DailyQuota(t *testing.T) {
	t.Parallel()
	service, _, _ := setupAttendanceTest(t)

	// default limit is 3 per day
	for i := 0; i < 3; i++ {
		_, err := service.CheckIn(context.Background(), CheckInParams{
			MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
		})
		require.NoError(t, err)
		_, err = service.CheckOut(context.Background(), "member-1", models.CheckOutMethodKiosk)
		require.NoError(t, err)
	}

	_, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	assert.Equal(t, app_errors.ErrCheckInLimitReached, err)
}

// TestCheckOut_NotCheckedIn tests check-out without an open session
func TestCheckOut_NotCheckedIn(t *testing.T) {
	t.Parallel()
	service, _, _ := setupAttendanceTest(t)

	_, err := service.CheckOut(context.Background(), "member-1", models.CheckOutMethodManual)
	assert.Equal(t, app_errors.ErrNotCheckedIn, err)
}

// TestCheckOut_DerivesDuration tests the closed record shape
func TestCheckOut_DerivesDuration(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)

	_, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	require.NoError(t, err)

	attendance, err := service.CheckOut(context.Background(), "member-1", models.CheckOutMethodManual)
	require.NoError(t, err)
	require.NotNil(t, attendance.DurationMinutes)
	assert.GreaterOrEqual(t, *attendance.DurationMinutes, 0)
	assert.Equal(t, 0, occupancy(t, db, "gym-1"))

	var reloaded models.Attendance
	require.NoError(t, db.Where("id = ?", attendance.ID).First(&reloaded).Error)
	assert.False(t, reloaded.IsOpen())
	assert.Nil(t, reloaded.ActiveKey)
}

// TestVoid_OpenSessionReleasesSlot tests the staff void operation
func TestVoid_OpenSessionReleasesSlot(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)

	attendance, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	require.NoError(t, err)
	require.Equal(t, 1, occupancy(t, db, "gym-1"))

	voided, err := service.Void(attendance.ID, "staff-1", "accidental entry")
	require.NoError(t, err)
	assert.False(t, voided.IsValid)
	assert.Equal(t, 0, occupancy(t, db, "gym-1"))

	// re-void is a no-op and must not decrement again
	_, err = service.Void(attendance.ID, "staff-2", "again")
	require.NoError(t, err)
	assert.Equal(t, 0, occupancy(t, db, "gym-1"))

	// the member can check in again after the void
	_, err = service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	assert.NoError(t, err)
}

// TestVoid_RowClosedBetweenReadAndWrite tests that the slot release is
// decided at write time. The staff read sees an open session; before the
// void commits, a check-out closes the row and frees its slot. The void must
// still land but must not free a slot a second time.
func TestVoid_RowClosedBetweenReadAndWrite(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)

	// a second occupant makes a double release observable
	_, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-2", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	require.NoError(t, err)

	attendance, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	require.NoError(t, err)
	require.Equal(t, 2, occupancy(t, db, "gym-1"))

	// the staff client read the row while it was still open
	var stale models.Attendance
	require.NoError(t, db.Where("id = ?", attendance.ID).First(&stale).Error)
	require.True(t, stale.IsOpen())

	// a check-out lands first and frees the slot
	_, err = service.CheckOut(context.Background(), "member-1", models.CheckOutMethodKiosk)
	require.NoError(t, err)
	require.Equal(t, 1, occupancy(t, db, "gym-1"))

	stale.Void("staff-1", "duplicate entry", time.Now())
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return service.applyVoid(tx, &stale)
	}))

	// the void landed without touching member-2's slot
	assert.Equal(t, 1, occupancy(t, db, "gym-1"))
	var current models.Attendance
	require.NoError(t, db.Where("id = ?", attendance.ID).First(&current).Error)
	assert.False(t, current.IsValid)
	assert.NotNil(t, current.CheckOutTime)
}

// TestGetActiveSession tests the active session lookup
func TestGetActiveSession(t *testing.T) {
	t.Parallel()
	service, _, _ := setupAttendanceTest(t)

	// no open session is a read miss, not a state conflict
	_, err := service.GetActiveSession("member-1")
	assert.Equal(t, app_errors.ErrResourceNotFound, err)

	created, err := service.CheckIn(context.Background(), CheckInParams{
		MemberID: "member-1", GymID: "gym-1", Method: models.CheckInMethodKiosk,
	})
	require.NoError(t, err)

	active, err := service.GetActiveSession("member-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, active.ID)
}

// TestGetHistory tests pagination ordering
func TestGetHistory(t *testing.T) {
	t.Parallel()
	service, _, db := setupAttendanceTest(t)

	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 5; i++ {
		a := models.NewAttendance("member-1", "gym-1", "membership-1", models.CheckInMethodKiosk, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, a.CheckOut(models.CheckOutMethodKiosk, base.Add(time.Duration(i)*time.Hour+30*time.Minute)))
		require.NoError(t, db.Create(a).Error)
	}

	result, err := service.GetHistory(context.Background(), "member-1", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Pagination.TotalItems)

	records, ok := result.Items.(*[]models.Attendance)
	require.True(t, ok)
	require.Len(t, *records, 3)
	// most recent first
	assert.True(t, (*records)[0].CheckInTime.After((*records)[1].CheckInTime))
}
