// Package migrations contains versioned data/index migrations that run after
// GORM's AutoMigrate.
package migrations

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// migration is a named, idempotent migration step.
type migration struct {
	Version string
	Run     func(db *gorm.DB) error
}

// all migrations in order. Each step must be safe to re-run.
var all = []migration{
	{Version: "v1.1.0_attendance_indexes", Run: addAttendanceIndexes},
	{Version: "v1.2.0_token_expiry_index", Run: addTokenExpiryIndex},
}

// MigrateDatabase applies every registered migration in order.
func MigrateDatabase(db *gorm.DB) error {
	for _, m := range all {
		if err := m.Run(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		logrus.Debugf("Migration %s applied", m.Version)
	}
	return nil
}

// indexExists reports whether an index is already present, best effort across
// dialects.
func indexExists(db *gorm.DB, table, index string) bool {
	return db.Migrator().HasIndex(table, index)
}
