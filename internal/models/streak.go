package models

import "time"

// MemberStreak corresponds to the member_streaks table: one row per member
// tracking consecutive visit days across all gyms.
//
// FreezeMonth is the "2006-01" month the freeze counters belong to; the
// monthly quota refill happens lazily on the first visit of a new month.
type MemberStreak struct {
	MemberID      string     `gorm:"type:varchar(36);primaryKey" json:"member_id"`
	CurrentStreak int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak int        `gorm:"not null;default:0" json:"longest_streak"`
	StreakStart   *time.Time `json:"streak_start,omitempty"`
	LastVisitDate *time.Time `json:"last_visit_date,omitempty"`

	FreezeDaysRemaining int       `gorm:"not null;default:0" json:"freeze_days_remaining"`
	FreezeUsedThisMonth int       `gorm:"not null;default:0" json:"freeze_used_this_month"`
	FreezeMonth         string    `gorm:"type:varchar(7);not null;default:''" json:"freeze_month"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// visitDay truncates a timestamp to its UTC calendar day.
func visitDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// UpdateStreak records a visit on the calendar day of visitedAt and returns
// whether the streak counter changed. A second visit on the same day is a
// no-op. A one-day gap extends the streak. A longer gap consumes one freeze
// day per missed day when enough remain; otherwise the streak resets to 1
// and no freezes are burned.
//
// monthlyFreezeQuota is the per-month allowance; the remaining balance is
// refilled to it when the visit falls in a new calendar month.
func (s *MemberStreak) UpdateStreak(visitedAt time.Time, monthlyFreezeQuota int) bool {
	day := visitDay(visitedAt)

	if month := day.Format("2006-01"); s.FreezeMonth != month {
		s.FreezeMonth = month
		s.FreezeDaysRemaining = monthlyFreezeQuota
		s.FreezeUsedThisMonth = 0
	}

	if s.LastVisitDate == nil {
		s.CurrentStreak = 1
		s.StreakStart = &day
		s.LastVisitDate = &day
		s.bumpLongest()
		return true
	}

	last := visitDay(*s.LastVisitDate)
	gapDays := int(day.Sub(last).Hours() / 24)

	switch {
	case gapDays <= 0:
		// same day, or an out-of-order backfill
		return false
	case gapDays == 1:
		s.CurrentStreak++
	default:
		missed := gapDays - 1
		if s.FreezeDaysRemaining >= missed {
			s.FreezeDaysRemaining -= missed
			s.FreezeUsedThisMonth += missed
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
			s.StreakStart = &day
		}
	}

	s.LastVisitDate = &day
	s.bumpLongest()
	return true
}

func (s *MemberStreak) bumpLongest() {
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
}
