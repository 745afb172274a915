package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gymgate/internal/config"
	"gymgate/internal/membership"
	"gymgate/internal/models"
	"gymgate/internal/services"
	"gymgate/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type allowAllValidator struct{}

func (allowAllValidator) ValidateAccess(ctx context.Context, memberID, gymID string) (*membership.AccessDecision, error) {
	return &membership.AccessDecision{Valid: true, MembershipID: "membership-" + memberID, GymOpen: true}, nil
}

// setupHandlerTest builds a Server over a fresh in-memory stack and a gin
// engine with the member-facing routes registered.
func setupHandlerTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	testName := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", testName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{PrepareStmt: false})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.SystemSetting{},
		&models.Attendance{},
		&models.CheckInToken{},
		&models.GymCapacity{},
		&models.MemberStreak{},
	))
	require.NoError(t, db.Create(&models.GymCapacity{GymID: "gym-1", MaxCapacity: 10, IsOpen: true}).Error)

	memStore := store.NewMemoryStore()
	t.Cleanup(func() { _ = memStore.Close() })

	settingsManager := config.NewSystemSettingsManager()
	capacityService := services.NewCapacityService(db)
	attendanceService := services.NewAttendanceService(db, memStore, settingsManager, capacityService, allowAllValidator{})

	server := NewServer(db, memStore, nil, settingsManager, attendanceService, capacityService)

	engine := gin.New()
	engine.POST("/api/attendance/check-in", server.CheckIn)
	engine.POST("/api/attendance/check-out", server.CheckOut)
	engine.POST("/api/attendance/tokens", server.GenerateToken)
	engine.GET("/api/attendance/history", server.GetHistory)
	engine.GET("/api/attendance/active", server.GetActiveSession)
	engine.GET("/api/members/:id/streak", server.GetStreak)
	engine.GET("/api/gyms/:id/capacity", server.GetCapacity)
	engine.POST("/api/attendance/:id/void", server.Void)
	engine.PUT("/api/gyms/:id/capacity/reset", server.ResetCapacity)
	return engine, db
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// TestCheckInEndpoint_Success tests a kiosk check-in over HTTP
func TestCheckInEndpoint_Success(t *testing.T) {
	t.Parallel()
	engine, _ := setupHandlerTest(t)

	w := doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"member_id": "member-1",
		"gym_id":    "gym-1",
		"method":    "kiosk",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int               `json:"code"`
		Data models.Attendance `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "member-1", resp.Data.MemberID)
	assert.True(t, resp.Data.IsOpen())
}

// TestCheckInEndpoint_ErrorMapping tests the failure envelope
func TestCheckInEndpoint_ErrorMapping(t *testing.T) {
	t.Parallel()
	engine, _ := setupHandlerTest(t)

	// double check-in maps to 409 ALREADY_CHECKED_IN
	doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"member_id": "member-1", "gym_id": "gym-1", "method": "kiosk",
	})
	w := doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"member_id": "member-1", "gym_id": "gym-1", "method": "kiosk",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ALREADY_CHECKED_IN", resp.Code)

	// QR check-in with an unknown token maps to 401 TOKEN_NOT_FOUND
	w = doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"token_value": "bogus", "method": "qr_code",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestTokenEndpointRoundTrip tests issue-then-present over HTTP
func TestTokenEndpointRoundTrip(t *testing.T) {
	t.Parallel()
	engine, _ := setupHandlerTest(t)

	w := doJSON(t, engine, http.MethodPost, "/api/attendance/tokens", gin.H{
		"member_id": "member-1", "gym_id": "gym-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var tokenResp struct {
		Data models.CheckInToken `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenResp))
	require.Len(t, tokenResp.Data.TokenValue, 64)

	w = doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"token_value": tokenResp.Data.TokenValue, "method": "qr_code",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestCheckOutEndpoint tests the check-out flow and capacity readout
func TestCheckOutEndpoint(t *testing.T) {
	t.Parallel()
	engine, _ := setupHandlerTest(t)

	doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"member_id": "member-1", "gym_id": "gym-1", "method": "kiosk",
	})

	w := doJSON(t, engine, http.MethodGet, "/api/gyms/gym-1/capacity", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var capResp struct {
		Data struct {
			CurrentOccupancy int `json:"current_occupancy"`
			SoftLimit        int `json:"soft_limit"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &capResp))
	assert.Equal(t, 1, capResp.Data.CurrentOccupancy)
	assert.Equal(t, 8, capResp.Data.SoftLimit)

	w = doJSON(t, engine, http.MethodPost, "/api/attendance/check-out", gin.H{
		"member_id": "member-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/attendance/check-out", gin.H{
		"member_id": "member-1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

// TestActiveSessionEndpoint tests the open session readout
func TestActiveSessionEndpoint(t *testing.T) {
	t.Parallel()
	engine, _ := setupHandlerTest(t)

	// no open session is a plain read miss
	w := doJSON(t, engine, http.MethodGet, "/api/attendance/active?member_id=member-1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	var errResp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "NOT_FOUND", errResp.Code)

	doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"member_id": "member-1", "gym_id": "gym-1", "method": "kiosk",
	})

	w = doJSON(t, engine, http.MethodGet, "/api/attendance/active?member_id=member-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestStreakEndpoint tests the streak readout
func TestStreakEndpoint(t *testing.T) {
	t.Parallel()
	engine, _ := setupHandlerTest(t)

	doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"member_id": "member-1", "gym_id": "gym-1", "method": "kiosk",
	})

	w := doJSON(t, engine, http.MethodGet, "/api/members/member-1/streak", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.MemberStreak `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.CurrentStreak)

	// unknown member reads as a zero streak, not an error
	w = doJSON(t, engine, http.MethodGet, "/api/members/stranger/streak", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestVoidEndpoint tests the staff void route
func TestVoidEndpoint(t *testing.T) {
	t.Parallel()
	engine, db := setupHandlerTest(t)

	doJSON(t, engine, http.MethodPost, "/api/attendance/check-in", gin.H{
		"member_id": "member-1", "gym_id": "gym-1", "method": "kiosk",
	})

	var attendance models.Attendance
	require.NoError(t, db.Where("member_id = ?", "member-1").First(&attendance).Error)

	w := doJSON(t, engine, http.MethodPost, "/api/attendance/"+attendance.ID+"/void", gin.H{
		"staff_id": "staff-1", "reason": "test entry",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/gyms/gym-1/capacity", nil)
	var capResp struct {
		Data struct {
			CurrentOccupancy int `json:"current_occupancy"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &capResp))
	assert.Equal(t, 0, capResp.Data.CurrentOccupancy)
}

// TestResetCapacityEndpoint tests the admin occupancy correction
func TestResetCapacityEndpoint(t *testing.T) {
	t.Parallel()
	engine, _ := setupHandlerTest(t)

	w := doJSON(t, engine, http.MethodPut, "/api/gyms/gym-1/capacity/reset", gin.H{
		"occupancy": 7,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/gyms/gym-1/capacity", nil)
	var capResp struct {
		Data struct {
			CurrentOccupancy int `json:"current_occupancy"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &capResp))
	assert.Equal(t, 7, capResp.Data.CurrentOccupancy)
}
