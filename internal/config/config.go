// Package config provides configuration management for Dockyard.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with DY_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./configs/config.yaml, ~/.dockyard/config.yaml, /etc/dockyard/config.yaml)
//  3. .env files
//  4. Environment variables (DY_ prefix)
//
// # Usage Example
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use DY_ prefix and underscores for nested keys:
//   - DY_SERVER_PORT=8095
//   - DY_CACHE_BACKEND=redis
//   - DY_CACHE_REDIS_ADDR=localhost:6379
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for Dockyard.
type Config struct {
	// Server contains HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// Storage contains the metadata database settings
	Storage StorageConfig `mapstructure:"storage"`

	// Cache contains the host state cache settings
	Cache CacheConfig `mapstructure:"cache"`

	// Engine contains remote engine client settings
	Engine EngineConfig `mapstructure:"engine"`

	// Sync contains background refresh settings
	Sync SyncConfig `mapstructure:"sync"`

	// Logging contains logging settings
	Logging LoggingConfig `mapstructure:"logging"`

	// Security contains rate limiting and CORS settings
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port is the server listen port (default: 8080)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables request logging
	Debug bool `mapstructure:"debug"`

	// TLSEnabled enables HTTPS
	TLSEnabled bool `mapstructure:"tls_enabled"`

	// TLSCert is the path to the TLS certificate file
	TLSCert string `mapstructure:"tls_cert"`

	// TLSKey is the path to the TLS private key file
	TLSKey string `mapstructure:"tls_key"`
}

// StorageConfig contains metadata database settings.
type StorageConfig struct {
	// Path is the bbolt database file
	Path string `mapstructure:"path"`

	// Timeout bounds waiting for the database file lock
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig contains host state cache settings.
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend string `mapstructure:"backend"`

	// TTL is how long a listing stays fresh
	TTL time.Duration `mapstructure:"ttl"`

	// KeyPrefix namespaces every key, useful when sharing a Redis instance
	KeyPrefix string `mapstructure:"key_prefix"`

	// CleanupInterval is how often the memory backend drops expired entries
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// Redis contains connection settings for the redis backend
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EngineConfig contains settings shared by every remote engine client.
type EngineConfig struct {
	// APIVersion pins the engine API version
	APIVersion string `mapstructure:"api_version"`

	// DialTimeout bounds connecting to a host
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// Timeout bounds a whole request
	Timeout time.Duration `mapstructure:"timeout"`

	// DefaultPort is used for hosts added without a port
	DefaultPort int `mapstructure:"default_port"`
}

// SyncConfig contains background refresh settings.
type SyncConfig struct {
	// Interval between refreshes of every enabled host; 0 disables the loop
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`

	// Output is the log output destination (stdout, stderr)
	Output string `mapstructure:"output"`
}

// SecurityConfig contains security and rate limiting settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client
	RateLimit int `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DY_ prefix)
//  2. .env file
//  3. Configuration file
//  4. Default values
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.dockyard")
		v.AddConfigPath("/etc/dockyard")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			// A missing explicit file still runs on defaults
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("DY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.tls_enabled", false)

	v.SetDefault("storage.path", "./data/dockyard.db")
	v.SetDefault("storage.timeout", "5s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "15s")
	v.SetDefault("cache.key_prefix", "")
	v.SetDefault("cache.cleanup_interval", "1m")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("engine.api_version", "1.41")
	v.SetDefault("engine.dial_timeout", "5s")
	v.SetDefault("engine.timeout", "30s")
	v.SetDefault("engine.default_port", 4243)

	v.SetDefault("sync.interval", "0s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache redis addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend: %q", cfg.Cache.Backend)
	}

	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", cfg.Cache.TTL)
	}

	if cfg.Engine.DefaultPort < 1 || cfg.Engine.DefaultPort > 65535 {
		return fmt.Errorf("invalid engine default port: %d", cfg.Engine.DefaultPort)
	}

	if cfg.Engine.APIVersion == "" {
		return fmt.Errorf("engine api version is required")
	}

	if cfg.Sync.Interval < 0 {
		return fmt.Errorf("sync interval cannot be negative")
	}

	return nil
}

func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
