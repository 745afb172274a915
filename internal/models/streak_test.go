package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// TestUpdateStreak_ConsecutiveDays tests the basic extend path
func TestUpdateStreak_ConsecutiveDays(t *testing.T) {
	t.Parallel()
	s := &MemberStreak{MemberID: "member-1"}

	assert.True(t, s.UpdateStreak(day("2025-03-10"), 2))
	assert.True(t, s.UpdateStreak(day("2025-03-11"), 2))
	assert.True(t, s.UpdateStreak(day("2025-03-12"), 2))

	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak)
	assert.Equal(t, day("2025-03-10"), *s.StreakStart)
	assert.Equal(t, day("2025-03-12"), *s.LastVisitDate)
}

// TestUpdateStreak_SameDayRevisit tests that a repeat visit is a no-op
func TestUpdateStreak_SameDayRevisit(t *testing.T) {
	t.Parallel()
	s := &MemberStreak{MemberID: "member-1"}

	s.UpdateStreak(day("2025-03-10"), 2)
	s.UpdateStreak(day("2025-03-11"), 2)
	changed := s.UpdateStreak(day("2025-03-11").Add(9*time.Hour), 2)

	assert.False(t, changed)
	assert.Equal(t, 2, s.CurrentStreak)
}

// TestUpdateStreak_GapResetsWithoutFreezes tests the reset path
func TestUpdateStreak_GapResetsWithoutFreezes(t *testing.T) {
	t.Parallel()
	s := &MemberStreak{MemberID: "member-1"}

	s.UpdateStreak(day("2025-03-10"), 0)
	s.UpdateStreak(day("2025-03-15"), 0)

	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
	assert.Equal(t, day("2025-03-15"), *s.StreakStart)
}

// TestUpdateStreak_FreezeBridgesGap tests freeze consumption over a gap
func TestUpdateStreak_FreezeBridgesGap(t *testing.T) {
	t.Parallel()
	s := &MemberStreak{MemberID: "member-1"}

	s.UpdateStreak(day("2025-03-10"), 2)
	s.UpdateStreak(day("2025-03-11"), 2)
	// two-day gap, one missed day, one freeze available
	s.UpdateStreak(day("2025-03-13"), 2)

	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 1, s.FreezeDaysRemaining)
	assert.Equal(t, 1, s.FreezeUsedThisMonth)
}

// TestUpdateStreak_GapLargerThanFreezeBalance tests reset without burning freezes
func TestUpdateStreak_GapLargerThanFreezeBalance(t *testing.T) {
	t.Parallel()
	s := &MemberStreak{MemberID: "member-1"}

	s.UpdateStreak(day("2025-03-10"), 2)
	// four missed days against a balance of two: reset, keep the freezes
	s.UpdateStreak(day("2025-03-15"), 2)

	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 2, s.FreezeDaysRemaining)
	assert.Equal(t, 0, s.FreezeUsedThisMonth)
}

// TestUpdateStreak_MonthlyQuotaRefill tests the lazy month rollover
func TestUpdateStreak_MonthlyQuotaRefill(t *testing.T) {
	t.Parallel()
	s := &MemberStreak{MemberID: "member-1"}

	s.UpdateStreak(day("2025-03-28"), 2)
	s.UpdateStreak(day("2025-03-31"), 2) // consumes both freezes
	assert.Equal(t, 0, s.FreezeDaysRemaining)
	assert.Equal(t, 2, s.FreezeUsedThisMonth)
	assert.Equal(t, 2, s.CurrentStreak)

	s.UpdateStreak(day("2025-04-01"), 2)
	assert.Equal(t, "2025-04", s.FreezeMonth)
	assert.Equal(t, 2, s.FreezeDaysRemaining)
	assert.Equal(t, 0, s.FreezeUsedThisMonth)
	assert.Equal(t, 3, s.CurrentStreak)
}

// TestUpdateStreak_LongestStreakBound tests longest >= current after recompute
func TestUpdateStreak_LongestStreakBound(t *testing.T) {
	t.Parallel()
	s := &MemberStreak{MemberID: "member-1"}

	for _, d := range []string{"2025-03-10", "2025-03-11", "2025-03-12", "2025-03-13"} {
		s.UpdateStreak(day(d), 0)
	}
	assert.Equal(t, 4, s.LongestStreak)

	s.UpdateStreak(day("2025-03-20"), 0)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 4, s.LongestStreak)
	assert.GreaterOrEqual(t, s.LongestStreak, s.CurrentStreak)
}
