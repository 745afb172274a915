package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Check-in method constants
const (
	CheckInMethodQRCode    = "qr_code"
	CheckInMethodNFC       = "nfc"
	CheckInMethodManual    = "manual"
	CheckInMethodGeofence  = "geofence"
	CheckInMethodBiometric = "biometric"
	CheckInMethodKiosk     = "kiosk"
)

// Check-out method constants. AutoTimeout is reserved for the reaper.
const (
	CheckOutMethodQRCode      = "qr_code"
	CheckOutMethodNFC         = "nfc"
	CheckOutMethodManual      = "manual"
	CheckOutMethodGeofence    = "geofence"
	CheckOutMethodKiosk       = "kiosk"
	CheckOutMethodAutoTimeout = "auto_timeout"
)

// Entity-level state errors, mapped to API errors by the coordinator.
var (
	ErrAlreadyCheckedOut = errors.New("attendance is already checked out")
	ErrAttendanceVoided  = errors.New("attendance has been voided")
)

// Attendance corresponds to the attendances table: one physical gym visit.
//
// ActiveKey holds the member ID while the session is open and NULL once it is
// closed or voided. The unique index on it is the database-level guarantee
// that a member has at most one open session, even under concurrent
// check-ins; SQLite, MySQL and Postgres all permit multiple NULLs in a unique
// column, so this is the portable form of a partial unique index.
type Attendance struct {
	ID           string `gorm:"type:varchar(36);primaryKey" json:"id"`
	MemberID     string `gorm:"type:varchar(36);not null;index:idx_attendances_member_checkin,priority:1" json:"member_id"`
	GymID        string `gorm:"type:varchar(36);not null;index" json:"gym_id"`
	MembershipID string `gorm:"type:varchar(36);not null" json:"membership_id"`

	CheckInTime   time.Time `gorm:"not null;index:idx_attendances_member_checkin,priority:2" json:"check_in_time"`
	CheckInMethod string    `gorm:"type:varchar(20);not null" json:"check_in_method"`

	CheckOutTime    *time.Time `gorm:"index:idx_attendances_open_checkin,priority:1" json:"check_out_time,omitempty"`
	CheckOutMethod  string     `gorm:"type:varchar(20);not null;default:''" json:"check_out_method,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`

	ActiveKey *string `gorm:"type:varchar(36);uniqueIndex:idx_attendances_active_member" json:"-"`

	IsValid    bool       `gorm:"not null;default:true" json:"is_valid"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   string     `gorm:"type:varchar(36);not null;default:''" json:"voided_by,omitempty"`
	VoidReason string     `gorm:"type:varchar(255);not null;default:''" json:"void_reason,omitempty"`

	StaffID    string         `gorm:"type:varchar(36);not null;default:''" json:"staff_id,omitempty"`
	DeviceInfo datatypes.JSON `gorm:"type:json" json:"device_info,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAttendance creates an open attendance for a just-validated check-in.
func NewAttendance(memberID, gymID, membershipID, method string, now time.Time) *Attendance {
	activeKey := memberID
	return &Attendance{
		ID:            uuid.NewString(),
		MemberID:      memberID,
		GymID:         gymID,
		MembershipID:  membershipID,
		CheckInTime:   now,
		CheckInMethod: method,
		ActiveKey:     &activeKey,
		IsValid:       true,
	}
}

// IsOpen reports whether the session has not been closed yet.
func (a *Attendance) IsOpen() bool {
	return a.CheckOutTime == nil
}

// CheckOut transitions OPEN -> CLOSED, deriving the visit duration. The
// duration is floored at zero to protect against clock skew between the
// check-in and check-out hosts.
func (a *Attendance) CheckOut(method string, now time.Time) error {
	if !a.IsValid {
		return ErrAttendanceVoided
	}
	if a.CheckOutTime != nil {
		return ErrAlreadyCheckedOut
	}

	minutes := int(now.Sub(a.CheckInTime).Minutes())
	if minutes < 0 {
		minutes = 0
	}

	checkedOutAt := now
	a.CheckOutTime = &checkedOutAt
	a.CheckOutMethod = method
	a.DurationMinutes = &minutes
	a.ActiveKey = nil
	return nil
}

// Void administratively invalidates the record from any state. Re-voiding is
// a no-op update. A voided open session releases its active slot.
func (a *Attendance) Void(staffID, reason string, now time.Time) {
	if !a.IsValid {
		return
	}
	voidedAt := now
	a.IsValid = false
	a.VoidedAt = &voidedAt
	a.VoidedBy = staffID
	a.VoidReason = reason
	a.ActiveKey = nil
}

// StaleSince reports whether an open session exceeded the auto-checkout
// threshold at the given instant.
func (a *Attendance) StaleSince(now time.Time, autoCheckoutHours int) bool {
	return a.IsOpen() && now.Sub(a.CheckInTime) > time.Duration(autoCheckoutHours)*time.Hour
}
