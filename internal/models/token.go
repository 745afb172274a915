package models

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"gymgate/internal/utils"
)

// Token state errors, mapped to API errors by the coordinator.
var (
	ErrTokenAlreadyUsed = errors.New("check-in token already used")
	ErrTokenHasExpired  = errors.New("check-in token has expired")
	ErrTokenRevoked     = errors.New("check-in token has been revoked")
)

// CheckInToken corresponds to the check_in_tokens table: a short-lived,
// single-use credential a member presents at the door.
type CheckInToken struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	MemberID   string     `gorm:"type:varchar(36);not null;index" json:"member_id"`
	GymID      string     `gorm:"type:varchar(36);not null" json:"gym_id"`
	TokenValue string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"token_value"`
	ExpiresAt  time.Time  `gorm:"not null;index:idx_check_in_tokens_expires_at" json:"expires_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	IsValid    bool       `gorm:"not null;default:true" json:"is_valid"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// GenerateCheckInToken mints a fresh token for a member at a gym. The value
// carries 256 bits of entropy, so uniqueness collisions are not a practical
// concern; the unique index exists to make the single-use guarantee explicit.
func GenerateCheckInToken(memberID, gymID string, ttl time.Duration, now time.Time) *CheckInToken {
	return &CheckInToken{
		ID:         uuid.NewString(),
		MemberID:   memberID,
		GymID:      gymID,
		TokenValue: utils.GenerateTokenValue(),
		ExpiresAt:  now.Add(ttl),
		IsValid:    true,
	}
}

// Use consumes the token. Expiry is checked before the used flag so a token
// that is both expired and used reports expiry, which is the more actionable
// signal for the member.
func (t *CheckInToken) Use(now time.Time) error {
	if !t.IsValid {
		return ErrTokenRevoked
	}
	if now.After(t.ExpiresAt) {
		return ErrTokenHasExpired
	}
	if t.UsedAt != nil {
		return ErrTokenAlreadyUsed
	}
	usedAt := now
	t.UsedAt = &usedAt
	return nil
}

// Invalidate revokes the token. Safe to call repeatedly.
func (t *CheckInToken) Invalidate() {
	t.IsValid = false
}

// IsUsable reports whether Use would succeed at the given instant.
func (t *CheckInToken) IsUsable(now time.Time) bool {
	return t.IsValid && t.UsedAt == nil && !now.After(t.ExpiresAt)
}
