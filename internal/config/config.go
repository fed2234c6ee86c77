// Package config loads and validates runtime configuration at startup.
// Fail-fast: a missing or out-of-range value stops the process with an error.
//
// Values come from, in increasing priority: built-in defaults, an optional
// YAML config file, a .env file, the environment and command-line flags.
// Keys are snake_case; the matching environment variable is the upper-case
// key (DATABASE_URL for database_url).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all runtime configuration for the alert service.
type Config struct {
	Store       string `mapstructure:"store"`
	HTTPPort    string `mapstructure:"http_port"`
	GRPCPort    string `mapstructure:"grpc_port"`
	DatabaseURL string `mapstructure:"database_url"`
	DBMaxConns  int32  `mapstructure:"db_max_conns"`
	RedisURL    string `mapstructure:"redis_url"`
	AdminToken  string `mapstructure:"admin_token"`
	Migrate     bool   `mapstructure:"migrate"`

	Workers               int           `mapstructure:"workers"`
	QueryRate             float64       `mapstructure:"query_rate"`
	QueryTimeout          time.Duration `mapstructure:"query_timeout"`
	AlertTimeout          time.Duration `mapstructure:"alert_timeout"`
	ResultLimit           int           `mapstructure:"result_limit"`
	HighPriorityThreshold int           `mapstructure:"high_priority_threshold"`
	NewMatchPolicy        string        `mapstructure:"new_match_policy"`
	SeenTTL               time.Duration `mapstructure:"seen_ttl"`
	LockTTL               time.Duration `mapstructure:"lock_ttl"`

	InstantSchedule string `mapstructure:"instant_schedule"`
	DailySchedule   string `mapstructure:"daily_schedule"`
	WeeklySchedule  string `mapstructure:"weekly_schedule"`
	RunOnStart      bool   `mapstructure:"run_on_start"`

	JSONLogs bool `mapstructure:"json"`
	Debug    bool `mapstructure:"debug"`
}

var defaults = map[string]any{
	"store":                   StorePostgres,
	"http_port":               "8084",
	"grpc_port":               "9094",
	"database_url":            "",
	"db_max_conns":            10,
	"redis_url":               "",
	"admin_token":             "",
	"migrate":                 false,
	"workers":                 1,
	"query_rate":              0.0,
	"query_timeout":           10 * time.Second,
	"alert_timeout":           30 * time.Second,
	"result_limit":            100,
	"high_priority_threshold": 5,
	"new_match_policy":        "created_since",
	"seen_ttl":                90 * 24 * time.Hour,
	"lock_ttl":                10 * time.Minute,
	"instant_schedule":        "@every 5m",
	"daily_schedule":          "@every 1h",
	"weekly_schedule":         "@every 6h",
	"run_on_start":            true,
	"json":                    false,
	"debug":                   false,
}

// LoadDotEnv loads path (".env" when empty) into the environment. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Bind registers defaults and environment lookups on v.
func Bind(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load reads v (see Bind) and returns a validated Config. When configFile
// is set it is read first.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	Bind(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be a positive integer, got %d", c.Workers)
	}
	if c.ResultLimit < 1 || c.ResultLimit > 1000 {
		return fmt.Errorf("RESULT_LIMIT must be between 1 and 1000, got %d", c.ResultLimit)
	}
	if c.HighPriorityThreshold < 1 {
		return fmt.Errorf("HIGH_PRIORITY_THRESHOLD must be a positive integer, got %d", c.HighPriorityThreshold)
	}
	if c.QueryRate < 0 {
		return fmt.Errorf("QUERY_RATE must not be negative, got %v", c.QueryRate)
	}
	if c.QueryTimeout < 0 || c.AlertTimeout < 0 {
		return fmt.Errorf("QUERY_TIMEOUT and ALERT_TIMEOUT must not be negative")
	}
	switch c.NewMatchPolicy {
	case "created_since", "seen_set":
	default:
		return fmt.Errorf("NEW_MATCH_POLICY must be created_since or seen_set, got %q", c.NewMatchPolicy)
	}
	return nil
}

// Schedules maps each cadence name to its cron spec.
func (c *Config) Schedules() map[string]string {
	return map[string]string{
		"instant": c.InstantSchedule,
		"daily":   c.DailySchedule,
		"weekly":  c.WeeklySchedule,
	}
}
