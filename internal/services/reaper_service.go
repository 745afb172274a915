package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gymgate/internal/config"
	"gymgate/internal/models"
	"gymgate/internal/store"
	"gymgate/internal/utils"
)

const (
	reaperLockKey = "attendance:reaper:lock"
	reaperLockTTL = 5 * time.Minute

	// expired tokens are kept for a day so support can answer "why did my
	// QR code stop working" before the row disappears
	tokenRetention = 24 * time.Hour

	reaperBatchSize = 200
)

// StaleSessionReaper force-closes attendance rows left open past the
// auto-checkout threshold and releases their gym slots. It also purges
// long-expired check-in tokens so the table stays bounded.
type StaleSessionReaper struct {
	db              *gorm.DB
	store           store.Store
	settingsManager *config.SystemSettingsManager
	capacity        *CapacityService
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewStaleSessionReaper creates a new reaper.
func NewStaleSessionReaper(
	db *gorm.DB,
	s store.Store,
	settingsManager *config.SystemSettingsManager,
	capacity *CapacityService,
) *StaleSessionReaper {
	return &StaleSessionReaper{
		db:              db,
		store:           s,
		settingsManager: settingsManager,
		capacity:        capacity,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the periodic sweep loop.
func (r *StaleSessionReaper) Start() {
	r.wg.Add(1)
	go r.run()
	logrus.Debug("Stale session reaper started")
}

// Stop stops the reaper gracefully.
func (r *StaleSessionReaper) Stop(ctx context.Context) {
	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("StaleSessionReaper stopped gracefully.")
	case <-ctx.Done():
		logrus.Warn("StaleSessionReaper stop timed out.")
	}
}

func (r *StaleSessionReaper) run() {
	defer r.wg.Done()

	interval := func() time.Duration {
		minutes := r.settingsManager.GetSettings().ReaperIntervalMinutes
		if minutes <= 0 {
			minutes = 10
		}
		return time.Duration(minutes) * time.Minute
	}

	ticker := time.NewTicker(interval())
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Sweep()
			ticker.Reset(interval())
		}
	}
}

// Sweep runs one reaper pass. The store lock keeps concurrent instances
// from sweeping the same rows; losing the lock just skips this round.
func (r *StaleSessionReaper) Sweep() {
	acquired, err := r.store.SetNX(reaperLockKey, []byte("1"), reaperLockTTL)
	if err != nil {
		logrus.WithError(err).Warn("Reaper could not acquire sweep lock")
		return
	}
	if !acquired {
		logrus.Debug("Reaper sweep lock held elsewhere, skipping round")
		return
	}
	defer func() {
		if err := r.store.Delete(reaperLockKey); err != nil {
			logrus.WithError(err).Warn("Failed to release reaper sweep lock")
		}
	}()

	closed := r.closeStaleSessions()
	purged := r.purgeExpiredTokens()

	if closed > 0 || purged > 0 {
		logrus.WithFields(logrus.Fields{
			"sessions_closed": closed,
			"tokens_purged":   purged,
		}).Info("Reaper sweep completed")
	}
}

// closeStaleSessions force-closes every open session older than the
// auto-checkout threshold. Each row is closed with a conditional update
// gated on it still being open, so a racing manual check-out or a second
// reaper pass cannot double-release the gym slot.
func (r *StaleSessionReaper) closeStaleSessions() int {
	hours := r.settingsManager.GetSettings().AutoCheckoutHours
	if hours <= 0 {
		return 0
	}

	now := time.Now()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	var stale []models.Attendance
	if err := r.db.
		Where("check_out_time IS NULL AND is_valid = ? AND check_in_time < ?", true, cutoff).
		Limit(reaperBatchSize).
		Find(&stale).Error; err != nil {
		logrus.WithError(err).Error("Reaper failed to list stale sessions")
		return 0
	}

	closed := 0
	for i := range stale {
		session := &stale[i]

		err := r.closeSession(session, now, &closed)
		if err != nil && utils.IsTransientDBError(err) {
			// one retry covers SQLITE_BUSY style contention with a live
			// check-out on the same row
			err = r.closeSession(session, now, &closed)
		}
		if err != nil {
			// keep sweeping; one bad row must not abort the round
			logrus.WithFields(logrus.Fields{
				"attendance_id": session.ID,
				"member_id":     session.MemberID,
			}).WithError(err).Error("Reaper failed to close stale session")
		}
	}

	return closed
}

func (r *StaleSessionReaper) closeSession(session *models.Attendance, now time.Time, closed *int) error {
	minutes := int(now.Sub(session.CheckInTime).Minutes())
	if minutes < 0 {
		minutes = 0
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Attendance{}).
			Where("id = ? AND check_out_time IS NULL", session.ID).
			Updates(map[string]any{
				"check_out_time":   now,
				"check_out_method": models.CheckOutMethodAutoTimeout,
				"duration_minutes": minutes,
				"active_key":       nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// already closed between the list and this update
			return nil
		}
		if err := r.capacity.Release(tx, session.GymID); err != nil {
			return err
		}
		*closed++
		return nil
	})
}

func (r *StaleSessionReaper) purgeExpiredTokens() int {
	cutoff := time.Now().Add(-tokenRetention)
	result := r.db.Where("expires_at < ?", cutoff).Delete(&models.CheckInToken{})
	if result.Error != nil {
		logrus.WithError(result.Error).Error("Reaper failed to purge expired tokens")
		return 0
	}
	return int(result.RowsAffected)
}
