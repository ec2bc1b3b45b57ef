// Package daemon manages the LearnQuest daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/learnquest/learnquest/internal/app/engagement"
	"github.com/learnquest/learnquest/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	API           APIConfig           `toml:"api"`
	Storage       StorageConfig       `toml:"storage"`
	Rewards       RewardsConfig       `toml:"rewards"`
	Streak        StreakConfig        `toml:"streak"`
	Notifications NotificationsConfig `toml:"notifications"`
	Redis         RedisConfig         `toml:"redis"`
	Logging       LoggingConfig       `toml:"logging"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
}

// StorageConfig controls where the database lives. Empty Dir means the
// LearnQuest home directory.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// RewardsConfig controls completion processing.
type RewardsConfig struct {
	LockTimeout           string `toml:"lock_timeout"`
	FollowUpRetryInterval string `toml:"followup_retry_interval"`
	MaxFollowUpRetries    int    `toml:"max_followup_retries"`
	// Levels overrides the built-in level table when non-empty.
	Levels []engagement.LevelDef `toml:"levels,omitempty"`
}

// StreakConfig controls streak day boundaries and freezes.
type StreakConfig struct {
	Timezone       string `toml:"timezone"`
	InitialFreezes int    `toml:"initial_freezes"`
	MaxFreezes     int    `toml:"max_freezes"`
}

// NotificationsConfig controls notification throttling.
type NotificationsConfig struct {
	MaxPerDay int `toml:"max_per_day"`
}

// RedisConfig enables the cross-process lock and pub/sub notifications.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	LockTTL  string `toml:"lock_ttl"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
	File   string `toml:"file"`   // empty means stderr
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
	MaxBacklog     int    `toml:"max_backlog"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			RequestTimeout: "30s",
		},
		Rewards: RewardsConfig{
			LockTimeout:           "3s",
			FollowUpRetryInterval: "10s",
			MaxFollowUpRetries:    5,
		},
		Streak: StreakConfig{
			Timezone:       "UTC",
			InitialFreezes: 1,
			MaxFreezes:     3,
		},
		Notifications: NotificationsConfig{
			MaxPerDay: domain.DefaultNotificationPolicy().MaxPerDay,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			LockTTL: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
			MaxBacklog:     1000,
		},
	}
}

// Validate checks values that would otherwise fail at wiring time.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if _, err := time.LoadLocation(c.Streak.Timezone); err != nil {
		return fmt.Errorf("streak.timezone: %w", err)
	}
	if c.Streak.InitialFreezes < 0 || c.Streak.MaxFreezes < c.Streak.InitialFreezes {
		return fmt.Errorf("streak freezes: initial %d, max %d", c.Streak.InitialFreezes, c.Streak.MaxFreezes)
	}
	if c.Notifications.MaxPerDay < 0 {
		return fmt.Errorf("notifications.max_per_day must be >= 0")
	}
	if len(c.Rewards.Levels) > 0 {
		if err := engagement.LevelTable(c.Rewards.Levels).Validate(); err != nil {
			return fmt.Errorf("rewards.levels: %w", err)
		}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q: want text or json", c.Logging.Format)
	}
	return nil
}

// LevelTable returns the configured level table or the built-in one.
func (c Config) LevelTable() engagement.LevelTable {
	if len(c.Rewards.Levels) > 0 {
		return engagement.LevelTable(c.Rewards.Levels)
	}
	return engagement.DefaultLevelTable()
}

// Location returns the streak and goal calendar location.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Streak.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DataDir returns the database directory.
func (c Config) DataDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return Home()
}

// LoadConfig reads config from ~/.learnquest/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.learnquest/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// Home returns the LearnQuest data directory.
func Home() string {
	if env := os.Getenv("LEARNQUEST_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".learnquest")
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
