package types

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	IsMaster() bool
	GetAuthConfig() AuthConfig
	GetCORSConfig() CORSConfig
	GetPerformanceConfig() PerformanceConfig
	GetLogConfig() LogConfig
	GetDatabaseConfig() DatabaseConfig
	GetMembershipConfig() MembershipConfig
	GetEffectiveServerConfig() ServerConfig
	GetRedisDSN() string
	Validate() error
	DisplayServerConfig()
	ReloadConfig() error
}

// SystemSettings holds the runtime-tunable business settings. They are stored
// in the system_settings table and editable through the admin API; the struct
// tags drive defaulting and validation.
type SystemSettings struct {
	// Check-in credentials
	TokenExpiryMinutes int `json:"token_expiry_minutes" default:"30" name:"Token expiry (minutes)" category:"checkin" desc:"How long an issued QR/NFC check-in token stays redeemable" validate:"required,min=1"`

	// Attendance lifecycle
	MaxCheckInsPerDay int `json:"max_checkins_per_day" default:"3" name:"Max check-ins per day" category:"attendance" desc:"Successful check-ins allowed per member per day; 0 disables the quota" validate:"min=0"`
	AutoCheckoutHours int `json:"auto_checkout_hours" default:"4" name:"Auto checkout (hours)" category:"attendance" desc:"Open sessions older than this are force-closed by the reaper" validate:"required,min=1"`

	// Streaks
	StreakFreezePerMonth int `json:"streak_freeze_per_month" default:"2" name:"Streak freezes per month" category:"streak" desc:"Freeze days granted to each member every calendar month" validate:"min=0"`

	// Background sweep
	ReaperIntervalMinutes int `json:"reaper_interval_minutes" default:"10" name:"Reaper interval (minutes)" category:"attendance" desc:"How often the stale-session reaper scans for abandoned sessions" validate:"required,min=1"`

	// API
	HistoryDefaultPageSize int `json:"history_default_page_size" default:"15" name:"History default page size" category:"api" desc:"Page size used by the attendance history listing when the client does not pass one" validate:"required,min=1,max=200"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port                    int    `json:"port"`
	Host                    string `json:"host"`
	IsMaster                bool   `json:"is_master"`
	ReadTimeout             int    `json:"read_timeout"`
	WriteTimeout            int    `json:"write_timeout"`
	IdleTimeout             int    `json:"idle_timeout"`
	GracefulShutdownTimeout int    `json:"graceful_shutdown_timeout"`
}

// AuthConfig represents authentication configuration for the admin API
type AuthConfig struct {
	Key string `json:"key"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// PerformanceConfig represents performance configuration
type PerformanceConfig struct {
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	EnableFile bool   `json:"enable_file"`
	FilePath   string `json:"file_path"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// MembershipConfig holds the connection settings for the external membership
// validation service.
type MembershipConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}
