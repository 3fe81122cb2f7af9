package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/creatorops/rotor/pkg/logger"
)

type Config struct {
	Server     Server            `yaml:"server"`
	Database   Database          `yaml:"database"`
	Logger     logger.Config     `yaml:"logger"`
	Auth       Auth              `yaml:"auth"`
	Autopilot  Autopilot         `yaml:"autopilot"`
	Intake     Intake            `yaml:"intake"`
	Processor  Processor         `yaml:"processor"`
	Publishers []PublisherBridge `yaml:"publishers"`
	Analytics  Analytics         `yaml:"analytics"`
}

type Server struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type Database struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	Path     string `yaml:"path"`
}

type Auth struct {
	TOTPSecret string `yaml:"totp_secret"`
	SessionTTL string `yaml:"session_ttl"`
}

// Autopilot holds the defaults applied when a start request omits fields,
// plus the engine limits that are not part of the per-start configuration.
type Autopilot struct {
	IntervalMinutes int    `yaml:"interval_minutes"`
	MaxItemsPerWake int    `yaml:"max_items_per_wake"`
	WorkerSlots     int    `yaml:"worker_slots"`
	MaxRetries      int    `yaml:"max_retries"`
	RetryBackoff    string `yaml:"retry_backoff"`
	MaxRetryBackoff string `yaml:"max_retry_backoff"`
	StepTimeout     string `yaml:"step_timeout"`
	Timezone        string `yaml:"timezone"`
}

type Intake struct {
	BaseURL      string `yaml:"base_url"`
	Token        string `yaml:"token"`
	PageSize     int    `yaml:"page_size"`
	SyncOnWake   bool   `yaml:"sync_on_wake"`
	DefaultLimit int    `yaml:"default_limit"`
}

type Processor struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type PublisherBridge struct {
	Platform string `yaml:"platform"`
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	Enabled  bool   `yaml:"enabled"`
}

type Analytics struct {
	SnapshotSchedule string `yaml:"snapshot_schedule"`
	RetentionDays    int    `yaml:"retention_days"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5380
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "rotor.db"
	}
	if cfg.Auth.SessionTTL == "" {
		cfg.Auth.SessionTTL = "12h"
	}
	if cfg.Autopilot.IntervalMinutes == 0 {
		cfg.Autopilot.IntervalMinutes = 30
	}
	if cfg.Autopilot.MaxItemsPerWake == 0 {
		cfg.Autopilot.MaxItemsPerWake = 10
	}
	if cfg.Autopilot.WorkerSlots == 0 {
		cfg.Autopilot.WorkerSlots = 3
	}
	if cfg.Autopilot.MaxRetries == 0 {
		cfg.Autopilot.MaxRetries = 3
	}
	if cfg.Autopilot.RetryBackoff == "" {
		cfg.Autopilot.RetryBackoff = "1m"
	}
	if cfg.Autopilot.MaxRetryBackoff == "" {
		cfg.Autopilot.MaxRetryBackoff = "30m"
	}
	if cfg.Autopilot.StepTimeout == "" {
		cfg.Autopilot.StepTimeout = "5m"
	}
	if cfg.Autopilot.Timezone == "" {
		cfg.Autopilot.Timezone = "Local"
	}
	if cfg.Intake.PageSize == 0 {
		cfg.Intake.PageSize = 100
	}
	if cfg.Analytics.SnapshotSchedule == "" {
		cfg.Analytics.SnapshotSchedule = "0 5 0 * * *"
	}
	if cfg.Analytics.RetentionDays == 0 {
		cfg.Analytics.RetentionDays = 90
	}

	return cfg, nil
}
