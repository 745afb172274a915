// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"sync"

	"gymgate/internal/types"
	"gymgate/internal/utils"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Constants holds the validation bounds for static configuration.
var Constants = struct {
	MinPort    int
	MaxPort    int
	MinTimeout int
}{
	MinPort:    1,
	MaxPort:    65535,
	MinTimeout: 1,
}

// Config represents the full static application configuration loaded from the
// environment at startup.
type Config struct {
	Server      types.ServerConfig
	Auth        types.AuthConfig
	CORS        types.CORSConfig
	Performance types.PerformanceConfig
	Log         types.LogConfig
	Database    types.DatabaseConfig
	Membership  types.MembershipConfig
	RedisDSN    string
}

// Manager implements types.ConfigManager backed by environment variables.
type Manager struct {
	mu              sync.RWMutex
	config          *Config
	settingsManager *SystemSettingsManager
}

// NewManager creates a new configuration manager, loading .env if present.
func NewManager(settingsManager *SystemSettingsManager) (types.ConfigManager, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	manager := &Manager{settingsManager: settingsManager}
	if err := manager.ReloadConfig(); err != nil {
		return nil, err
	}

	return manager, nil
}

// ReloadConfig re-reads the environment into the manager.
func (m *Manager) ReloadConfig() error {
	config := &Config{
		Server: types.ServerConfig{
			Port:                    utils.ParseInteger(os.Getenv("PORT"), 3001),
			Host:                    utils.GetEnvOrDefault("HOST", "0.0.0.0"),
			IsMaster:                !utils.ParseBoolean(os.Getenv("IS_SLAVE"), false),
			ReadTimeout:             utils.ParseInteger(os.Getenv("SERVER_READ_TIMEOUT"), 60),
			WriteTimeout:            utils.ParseInteger(os.Getenv("SERVER_WRITE_TIMEOUT"), 60),
			IdleTimeout:             utils.ParseInteger(os.Getenv("SERVER_IDLE_TIMEOUT"), 120),
			GracefulShutdownTimeout: utils.ParseInteger(os.Getenv("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT"), 10),
		},
		Auth: types.AuthConfig{
			Key: os.Getenv("AUTH_KEY"),
		},
		CORS: types.CORSConfig{
			Enabled:          utils.ParseBoolean(os.Getenv("ENABLE_CORS"), true),
			AllowedOrigins:   utils.ParseArray(os.Getenv("ALLOWED_ORIGINS"), []string{"*"}),
			AllowedMethods:   utils.ParseArray(os.Getenv("ALLOWED_METHODS"), []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   utils.ParseArray(os.Getenv("ALLOWED_HEADERS"), []string{"*"}),
			AllowCredentials: utils.ParseBoolean(os.Getenv("ALLOW_CREDENTIALS"), false),
		},
		Performance: types.PerformanceConfig{
			MaxConcurrentRequests: utils.ParseInteger(os.Getenv("MAX_CONCURRENT_REQUESTS"), 100),
		},
		Log: types.LogConfig{
			Level:      utils.GetEnvOrDefault("LOG_LEVEL", "info"),
			Format:     utils.GetEnvOrDefault("LOG_FORMAT", "text"),
			EnableFile: utils.ParseBoolean(os.Getenv("LOG_ENABLE_FILE"), false),
			FilePath:   utils.GetEnvOrDefault("LOG_FILE_PATH", "./data/logs/app.log"),
		},
		Database: types.DatabaseConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		Membership: types.MembershipConfig{
			BaseURL:        os.Getenv("MEMBERSHIP_SERVICE_URL"),
			TimeoutSeconds: utils.ParseInteger(os.Getenv("MEMBERSHIP_TIMEOUT_SECONDS"), 5),
		},
		RedisDSN: os.Getenv("REDIS_DSN"),
	}

	if err := validateConfig(config); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < Constants.MinPort || config.Server.Port > Constants.MaxPort {
		return fmt.Errorf("port must be between %d and %d", Constants.MinPort, Constants.MaxPort)
	}
	if config.Auth.Key == "" {
		return fmt.Errorf("AUTH_KEY is required")
	}
	if len(config.Auth.Key) < 16 {
		return fmt.Errorf("AUTH_KEY must be at least 16 characters")
	}
	if config.Performance.MaxConcurrentRequests < 1 {
		return fmt.Errorf("max concurrent requests cannot be less than 1")
	}
	if config.Server.ReadTimeout < Constants.MinTimeout {
		return fmt.Errorf("read timeout cannot be less than %d second", Constants.MinTimeout)
	}
	if config.Membership.TimeoutSeconds < Constants.MinTimeout {
		return fmt.Errorf("membership timeout cannot be less than %d second", Constants.MinTimeout)
	}
	return nil
}

// Validate validates the current configuration.
func (m *Manager) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return validateConfig(m.config)
}

// IsMaster returns whether this node runs background services.
func (m *Manager) IsMaster() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Server.IsMaster
}

// GetAuthConfig returns the admin authentication configuration.
func (m *Manager) GetAuthConfig() types.AuthConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Auth
}

// GetCORSConfig returns the CORS configuration.
func (m *Manager) GetCORSConfig() types.CORSConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.CORS
}

// GetPerformanceConfig returns the performance configuration.
func (m *Manager) GetPerformanceConfig() types.PerformanceConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Performance
}

// GetLogConfig returns the logging configuration.
func (m *Manager) GetLogConfig() types.LogConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Log
}

// GetDatabaseConfig returns the database configuration.
func (m *Manager) GetDatabaseConfig() types.DatabaseConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Database
}

// GetMembershipConfig returns the membership service configuration.
func (m *Manager) GetMembershipConfig() types.MembershipConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Membership
}

// GetEffectiveServerConfig returns the server configuration.
func (m *Manager) GetEffectiveServerConfig() types.ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Server
}

// GetRedisDSN returns the Redis DSN, empty when running on the memory store.
func (m *Manager) GetRedisDSN() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.RedisDSN
}

// DisplayServerConfig logs a condensed view of the effective configuration.
func (m *Manager) DisplayServerConfig() {
	m.mu.RLock()
	config := m.config
	m.mu.RUnlock()

	role := "master"
	if !config.Server.IsMaster {
		role = "slave"
	}
	storage := "memory"
	if config.RedisDSN != "" {
		storage = "redis"
	}

	logrus.Info("")
	logrus.Info("======= GymGate Attendance Service =======")
	logrus.Infof("  Listen:     %s:%d (%s)", config.Server.Host, config.Server.Port, role)
	logrus.Infof("  Database:   %s", describeDSN(config.Database.DSN))
	logrus.Infof("  Store:      %s", storage)
	logrus.Infof("  Membership: %s (timeout %ds)", config.Membership.BaseURL, config.Membership.TimeoutSeconds)
	logrus.Infof("  Log level:  %s", config.Log.Level)
	logrus.Info("==========================================")
	logrus.Info("")
}

// describeDSN hides credentials when echoing the DSN into logs.
func describeDSN(dsn string) string {
	switch {
	case dsn == "":
		return "(not configured)"
	case len(dsn) > 0 && (dsn[0] == '.' || dsn[0] == '/' || dsn == ":memory:"):
		return "sqlite " + dsn
	default:
		return "configured"
	}
}
