package migrations

import "gorm.io/gorm"

// addAttendanceIndexes backfills the composite indexes the history and reaper
// queries depend on. AutoMigrate creates them on fresh databases; this covers
// rows migrated from earlier schemas.
func addAttendanceIndexes(db *gorm.DB) error {
	if !indexExists(db, "attendances", "idx_attendances_member_checkin") {
		if err := db.Exec(
			"CREATE INDEX IF NOT EXISTS idx_attendances_member_checkin ON attendances (member_id, check_in_time)",
		).Error; err != nil {
			return err
		}
	}
	if !indexExists(db, "attendances", "idx_attendances_open_checkin") {
		if err := db.Exec(
			"CREATE INDEX IF NOT EXISTS idx_attendances_open_checkin ON attendances (check_out_time, check_in_time)",
		).Error; err != nil {
			return err
		}
	}
	return nil
}
