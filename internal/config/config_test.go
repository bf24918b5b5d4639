package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoadDefaults tests that default configuration values are loaded correctly.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	// Server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default server host '0.0.0.0', got '%s'", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read timeout 30s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}

	// Storage defaults
	if cfg.Storage.Path != "./data/dockyard.db" {
		t.Errorf("Expected default storage path './data/dockyard.db', got '%s'", cfg.Storage.Path)
	}

	// Cache defaults
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Expected default cache backend 'memory', got '%s'", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 15*time.Second {
		t.Errorf("Expected default cache ttl 15s, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected default redis addr 'localhost:6379', got '%s'", cfg.Cache.Redis.Addr)
	}

	// Engine defaults
	if cfg.Engine.APIVersion != "1.41" {
		t.Errorf("Expected default engine api version '1.41', got '%s'", cfg.Engine.APIVersion)
	}
	if cfg.Engine.DialTimeout != 5*time.Second {
		t.Errorf("Expected default dial timeout 5s, got %v", cfg.Engine.DialTimeout)
	}
	if cfg.Engine.Timeout != 30*time.Second {
		t.Errorf("Expected default engine timeout 30s, got %v", cfg.Engine.Timeout)
	}
	if cfg.Engine.DefaultPort != 4243 {
		t.Errorf("Expected default engine port 4243, got %d", cfg.Engine.DefaultPort)
	}

	// Sync defaults
	if cfg.Sync.Interval != 0 {
		t.Errorf("Expected sync loop disabled by default, got %v", cfg.Sync.Interval)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default logging level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected default logging format 'json', got '%s'", cfg.Logging.Format)
	}

	// Security defaults
	if cfg.Security.RateLimit != 100 {
		t.Errorf("Expected default rate limit 100, got %d", cfg.Security.RateLimit)
	}
	if len(cfg.Security.AllowedOrigins) != 1 || cfg.Security.AllowedOrigins[0] != "*" {
		t.Errorf("Expected default allowed origins ['*'], got %v", cfg.Security.AllowedOrigins)
	}
}

// TestLoadFile tests that values from a YAML file override defaults.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
cache:
  backend: redis
  ttl: 30s
  key_prefix: "dy:"
  redis:
    addr: cache.internal:6379
    db: 2
sync:
  interval: 1m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Redis.Addr != "cache.internal:6379" || cfg.Cache.Redis.DB != 2 {
		t.Errorf("Unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Expected ttl 30s, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.KeyPrefix != "dy:" {
		t.Errorf("Expected key prefix 'dy:', got '%s'", cfg.Cache.KeyPrefix)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Expected sync interval 1m, got %v", cfg.Sync.Interval)
	}
	// Untouched sections keep their defaults
	if cfg.Engine.DefaultPort != 4243 {
		t.Errorf("Expected default engine port 4243, got %d", cfg.Engine.DefaultPort)
	}
}

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080},
		Storage: StorageConfig{Path: "dockyard.db"},
		Cache:   CacheConfig{Backend: "memory", TTL: 15 * time.Second},
		Engine:  EngineConfig{APIVersion: "1.41", DefaultPort: 4243},
	}
}

// TestValidation tests the configuration validation logic.
func TestValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
		errMsg    string
	}{
		{
			name:      "valid configuration",
			mutate:    func(*Config) {},
			expectErr: false,
		},
		{
			name:      "invalid port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			expectErr: true,
			errMsg:    "invalid server port",
		},
		{
			name:      "invalid port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			expectErr: true,
			errMsg:    "invalid server port",
		},
		{
			name:      "missing storage path",
			mutate:    func(c *Config) { c.Storage.Path = "" },
			expectErr: true,
			errMsg:    "storage path is required",
		},
		{
			name:      "unknown cache backend",
			mutate:    func(c *Config) { c.Cache.Backend = "memcached" },
			expectErr: true,
			errMsg:    "unknown cache backend",
		},
		{
			name: "redis backend without address",
			mutate: func(c *Config) {
				c.Cache.Backend = "redis"
				c.Cache.Redis.Addr = ""
			},
			expectErr: true,
			errMsg:    "cache redis addr is required",
		},
		{
			name:      "zero cache ttl",
			mutate:    func(c *Config) { c.Cache.TTL = 0 },
			expectErr: true,
			errMsg:    "cache ttl must be positive",
		},
		{
			name:      "invalid engine port",
			mutate:    func(c *Config) { c.Engine.DefaultPort = 0 },
			expectErr: true,
			errMsg:    "invalid engine default port",
		},
		{
			name:      "negative sync interval",
			mutate:    func(c *Config) { c.Sync.Interval = -time.Second },
			expectErr: true,
			errMsg:    "sync interval cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if tt.expectErr {
				if err == nil {
					t.Errorf("Expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

// TestEnvironmentVariableOverride tests that environment variables override config values.
func TestEnvironmentVariableOverride(t *testing.T) {
	t.Setenv("DY_SERVER_PORT", "9999")
	t.Setenv("DY_SERVER_HOST", "127.0.0.1")
	t.Setenv("DY_CACHE_TTL", "45s")
	t.Setenv("DY_ENGINE_API_VERSION", "1.43")

	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999 from environment, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host '127.0.0.1' from environment, got '%s'", cfg.Server.Host)
	}
	if cfg.Cache.TTL != 45*time.Second {
		t.Errorf("Expected cache ttl 45s from environment, got %v", cfg.Cache.TTL)
	}
	if cfg.Engine.APIVersion != "1.43" {
		t.Errorf("Expected api version '1.43' from environment, got '%s'", cfg.Engine.APIVersion)
	}
}

// TestGet tests the global config getter.
func TestGet(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	retrieved := Get()
	if retrieved == nil {
		t.Fatal("Get() returned nil")
	}
	if retrieved.Server.Port != 8080 {
		t.Errorf("Expected port 8080 from Get(), got %d", retrieved.Server.Port)
	}
}
