// Package config provides configuration management for the swapd daemon.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the daemon.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the health/metrics HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address string.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL configuration for the swap event audit trail.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration for swap history snapshots.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Address returns the Redis address string.
func (c RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EtcdConfig holds etcd configuration for leader election.
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// EngineConfig holds swap policy engine configuration.
type EngineConfig struct {
	// Enabled toggles the periodic decision loop.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often the engine re-evaluates every tracked VM.
	Interval time.Duration `mapstructure:"interval"`

	// MemoryThresholdPercent is the host memory usage above which enabling
	// VMM-swap becomes a candidate action.
	MemoryThresholdPercent float64 `mapstructure:"memory_threshold_percent"`

	// MemoryHysteresisPercent is subtracted from the threshold before swap
	// is disabled again, so usage hovering at the threshold does not flap.
	MemoryHysteresisPercent float64 `mapstructure:"memory_hysteresis_percent"`

	// MinPredictedDuration is the minimum predicted remaining-enabled
	// duration that justifies paying the cost of enabling swap for a VM
	// with recorded history.
	MinPredictedDuration time.Duration `mapstructure:"min_predicted_duration"`

	// ControlCommand is the external binary invoked to apply swap
	// decisions ("<command> enable|disable <vm-id>"). Empty means dry run:
	// decisions are logged but not applied.
	ControlCommand string `mapstructure:"control_command"`

	// EventRetention is how long audit events are kept before the engine
	// prunes them. Zero disables pruning.
	EventRetention time.Duration `mapstructure:"event_retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("SWAPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the engine configuration for values that would make the
// decision loop misbehave.
func (c EngineConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("engine.interval must be positive, got %s", c.Interval)
	}
	if c.MemoryThresholdPercent <= 0 || c.MemoryThresholdPercent > 100 {
		return fmt.Errorf("engine.memory_threshold_percent must be in (0, 100], got %g", c.MemoryThresholdPercent)
	}
	if c.MemoryHysteresisPercent < 0 || c.MemoryHysteresisPercent >= c.MemoryThresholdPercent {
		return fmt.Errorf("engine.memory_hysteresis_percent must be in [0, threshold), got %g", c.MemoryHysteresisPercent)
	}
	if c.MinPredictedDuration < 0 {
		return fmt.Errorf("engine.min_predicted_duration must not be negative, got %s", c.MinPredictedDuration)
	}
	if c.EventRetention < 0 {
		return fmt.Errorf("engine.event_retention must not be negative, got %s", c.EventRetention)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "swapd")
	v.SetDefault("database.user", "swapd")
	v.SetDefault("database.password", "swapd")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// etcd
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")

	// Engine
	v.SetDefault("engine.enabled", true)
	v.SetDefault("engine.interval", "1m")
	v.SetDefault("engine.memory_threshold_percent", 85)
	v.SetDefault("engine.memory_hysteresis_percent", 10)
	v.SetDefault("engine.min_predicted_duration", "10m")
	v.SetDefault("engine.control_command", "")
	v.SetDefault("engine.event_retention", "720h")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}
