package migrations

import "gorm.io/gorm"

// addTokenExpiryIndex supports the reaper's expired-token purge.
func addTokenExpiryIndex(db *gorm.DB) error {
	if indexExists(db, "check_in_tokens", "idx_check_in_tokens_expires_at") {
		return nil
	}
	return db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_check_in_tokens_expires_at ON check_in_tokens (expires_at)",
	).Error
}
