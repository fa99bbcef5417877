// Package config loads service configuration: built-in defaults, overridden
// by an optional YAML file, overridden in turn by environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Processor ProcessorConfig `yaml:"processor"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is one of "memory", "postgres" or "redis".
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSL_MODE"`
}

// DSN returns the connection string for database/sql.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// ProcessorConfig holds the payment processor API settings.
type ProcessorConfig struct {
	BaseURL           string        `yaml:"base_url" env:"PROCESSOR_BASE_URL"`
	APIKey            string        `yaml:"api_key" env:"PROCESSOR_API_KEY"`
	APISecret         string        `yaml:"api_secret" env:"PROCESSOR_API_SECRET"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"PROCESSOR_RPS"`
	Timeout           time.Duration `yaml:"timeout" env:"PROCESSOR_TIMEOUT"`
}

// MonitorConfig holds the reconciliation engine settings.
type MonitorConfig struct {
	// PollSpec is a seconds-resolution cron expression.
	PollSpec      string `yaml:"poll_spec" env:"MONITOR_POLL_SPEC"`
	TokenDecimals int    `yaml:"token_decimals" env:"MONITOR_TOKEN_DECIMALS"`
	// ResumeOnStart restarts polls for non-terminal payments after a restart.
	ResumeOnStart bool `yaml:"resume_on_start" env:"MONITOR_RESUME_ON_START"`
}

// LoggingConfig holds the log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Output string `yaml:"output" env:"LOG_OUTPUT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{Driver: "memory"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "escrow",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Processor: ProcessorConfig{
			RequestsPerSecond: 10,
			Timeout:           15 * time.Second,
		},
		Monitor: MonitorConfig{
			PollSpec:      "*/3 * * * * *",
			TokenDecimals: 6,
			ResumeOnStart: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if it
// exists, then environment variable overrides. An empty path skips the file
// stage.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// All env tags are optional; envdecode only errors on malformed values.
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no workable fallback.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("storage driver %q is not supported", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}
	if c.Monitor.TokenDecimals < 0 {
		return fmt.Errorf("token decimals must not be negative")
	}
	return nil
}
