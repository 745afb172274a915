package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"gymgate/internal/models"
	"gymgate/internal/types"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SystemSettingsManager manages the runtime business settings stored in the
// system_settings table. Reads are served from an in-memory snapshot; writes
// go through validation, persist per-key rows, and refresh the snapshot.
type SystemSettingsManager struct {
	mu       sync.RWMutex
	settings types.SystemSettings
	db       *gorm.DB
}

// NewSystemSettingsManager creates an uninitialized settings manager. Before
// Initialize is called it serves struct-tag defaults, which keeps unit tests
// free of database plumbing.
func NewSystemSettingsManager() *SystemSettingsManager {
	return &SystemSettingsManager{settings: DefaultSystemSettings()}
}

// DefaultSystemSettings builds a SystemSettings populated from the `default`
// struct tags.
func DefaultSystemSettings() types.SystemSettings {
	var settings types.SystemSettings
	v := reflect.ValueOf(&settings).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		def := t.Field(i).Tag.Get("default")
		if def == "" {
			continue
		}
		if v.Field(i).Kind() == reflect.Int {
			if n, err := strconv.Atoi(def); err == nil {
				v.Field(i).SetInt(int64(n))
			}
		}
	}
	return settings
}

// Initialize attaches the database and loads the persisted settings.
func (sm *SystemSettingsManager) Initialize(db *gorm.DB) error {
	sm.mu.Lock()
	sm.db = db
	sm.mu.Unlock()
	return sm.loadFromDatabase()
}

// EnsureSettingsInitialized writes default rows for any missing setting keys
// so the admin API always sees the full set.
func (sm *SystemSettingsManager) EnsureSettingsInitialized() error {
	sm.mu.RLock()
	db := sm.db
	sm.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("settings manager not initialized with a database")
	}

	defaults := DefaultSystemSettings()
	v := reflect.ValueOf(defaults)
	t := v.Type()

	rows := make([]models.SystemSetting, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := jsonKey(field)
		if key == "" {
			continue
		}
		rows = append(rows, models.SystemSetting{
			SettingKey:   key,
			SettingValue: fmt.Sprint(v.Field(i).Interface()),
			Description:  field.Tag.Get("desc"),
		})
	}

	// Insert-if-missing keeps operator-tuned values across restarts.
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoNothing: true,
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to seed system settings: %w", err)
	}

	return sm.loadFromDatabase()
}

// GetSettings returns the current settings snapshot.
func (sm *SystemSettingsManager) GetSettings() types.SystemSettings {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.settings
}

// UpdateSettings validates and persists a partial settings update keyed by
// json names, then refreshes the snapshot.
func (sm *SystemSettingsManager) UpdateSettings(updates map[string]any) error {
	if err := sm.ValidateSettings(updates); err != nil {
		return err
	}

	sm.mu.RLock()
	db := sm.db
	sm.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("settings manager not initialized with a database")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for key, value := range updates {
			strValue := fmt.Sprint(normalizeNumber(value))
			if err := tx.Model(&models.SystemSetting{}).
				Where("setting_key = ?", key).
				Update("setting_value", strValue).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := sm.loadFromDatabase(); err != nil {
		return err
	}

	logrus.WithField("keys", settingKeys(updates)).Info("System settings updated")
	return nil
}

// ValidateSettings checks a partial update against the struct tags.
func (sm *SystemSettingsManager) ValidateSettings(updates map[string]any) error {
	t := reflect.TypeOf(types.SystemSettings{})
	fieldsByKey := make(map[string]reflect.StructField, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if key := jsonKey(t.Field(i)); key != "" {
			fieldsByKey[key] = t.Field(i)
		}
	}

	for key, value := range updates {
		field, ok := fieldsByKey[key]
		if !ok {
			return fmt.Errorf("invalid setting key: %s", key)
		}

		num, ok := toInt(value)
		if !ok {
			return fmt.Errorf("setting %s: expected a number", key)
		}

		if min, hasMin := boundFromTag(field.Tag.Get("validate"), "min="); hasMin && num < min {
			return fmt.Errorf("setting %s: value %d is below minimum value %d", key, num, min)
		}
		if max, hasMax := boundFromTag(field.Tag.Get("validate"), "max="); hasMax && num > max {
			return fmt.Errorf("setting %s: value %d exceeds maximum value %d", key, num, max)
		}
	}
	return nil
}

// loadFromDatabase replaces the snapshot with the persisted values, falling
// back to defaults for keys missing from the table.
func (sm *SystemSettingsManager) loadFromDatabase() error {
	sm.mu.RLock()
	db := sm.db
	sm.mu.RUnlock()
	if db == nil {
		return nil
	}

	var rows []models.SystemSetting
	if err := db.Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load system settings: %w", err)
	}

	settings := DefaultSystemSettings()
	v := reflect.ValueOf(&settings).Elem()
	t := v.Type()
	byKey := make(map[string]string, len(rows))
	for _, row := range rows {
		byKey[row.SettingKey] = row.SettingValue
	}
	for i := 0; i < t.NumField(); i++ {
		key := jsonKey(t.Field(i))
		raw, ok := byKey[key]
		if !ok {
			continue
		}
		if v.Field(i).Kind() == reflect.Int {
			if n, err := strconv.Atoi(raw); err == nil {
				v.Field(i).SetInt(int64(n))
			} else {
				logrus.WithFields(logrus.Fields{"key": key, "value": raw}).
					Warn("Ignoring malformed system setting value")
			}
		}
	}

	sm.mu.Lock()
	sm.settings = settings
	sm.mu.Unlock()
	return nil
}

func jsonKey(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

// toInt accepts the numeric types JSON unmarshaling can produce and rejects
// non-integer floats.
func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func normalizeNumber(value any) any {
	if n, ok := toInt(value); ok {
		return n
	}
	return value
}

func boundFromTag(tag, prefix string) (int, bool) {
	for _, part := range strings.Split(tag, ",") {
		if strings.HasPrefix(part, prefix) {
			if n, err := strconv.Atoi(strings.TrimPrefix(part, prefix)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func settingKeys(updates map[string]any) []string {
	keys := make([]string, 0, len(updates))
	for key := range updates {
		keys = append(keys, key)
	}
	return keys
}
