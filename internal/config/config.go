/*-------------------------------------------------------------------------
 *
 * config.go
 *    Configuration for the bastion gateway server
 *
 * Configuration is loaded from a YAML file (-c flag or CONFIG_PATH),
 * falling back to environment variables, falling back to defaults.
 * Plugin base URLs come exclusively from configuration; they are fixed
 * for the life of the process.
 *
 * IDENTIFICATION
 *    internal/config/config.go
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Approval ApprovalConfig `yaml:"approval"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

/* DatabaseConfig selects the request store. Driver "postgres" persists
 * requests and audit events; driver "memory" keeps everything
 * in-process and is intended for development and tests. */
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type AuthConfig struct {
	AgentAPIKey       string        `yaml:"agent_api_key"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	RateLimitPerMin   int           `yaml:"rate_limit_per_min"`
}

type PluginsConfig struct {
	/* Addresses maps plugin name to its base URL */
	Addresses   map[string]string `yaml:"addresses"`
	CallTimeout time.Duration     `yaml:"call_timeout"`
}

type ApprovalConfig struct {
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
}

type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "bastion",
			Password:        "bastion",
			Database:        "bastion",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Auth: AuthConfig{
			SessionTTL:      12 * time.Hour,
			RateLimitPerMin: 120,
		},
		Plugins: PluginsConfig{
			Addresses:   map[string]string{},
			CallTimeout: 30 * time.Second,
		},
		Approval: ApprovalConfig{
			DefaultTTLSeconds: 300,
		},
		Sweeper: SweeperConfig{
			Interval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

/* LoadConfig loads configuration from a YAML file over the defaults */
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

/* LoadFromEnv overrides configuration from environment variables */
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("BASTION_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("BASTION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BASTION_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("BASTION_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("BASTION_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("BASTION_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("BASTION_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("BASTION_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("BASTION_AGENT_API_KEY"); v != "" {
		cfg.Auth.AgentAPIKey = v
	}
	if v := os.Getenv("BASTION_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Auth.AdminPasswordHash = v
	}
	if v := os.Getenv("BASTION_DEFAULT_TTL_SECONDS"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl > 0 {
			cfg.Approval.DefaultTTLSeconds = ttl
		}
	}
	if v := os.Getenv("BASTION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BASTION_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

/* Validate rejects configurations the server cannot start with */
func (c *Config) Validate() error {
	if c.Auth.AgentAPIKey == "" {
		return fmt.Errorf("auth.agent_api_key is required")
	}
	if c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("auth.admin_password_hash is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Approval.DefaultTTLSeconds <= 0 {
		return fmt.Errorf("approval.default_ttl_seconds must be positive")
	}
	return nil
}
