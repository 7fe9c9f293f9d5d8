package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	API      APIConfig     `yaml:"api"`
	Auth     AuthConfig    `yaml:"auth"`
	Session  SessionConfig `yaml:"session"`
	Storage  StorageConfig `yaml:"storage"`
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// APIConfig points at the remote photo API
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // 0 keeps the transport defaults
}

// AuthConfig controls how bearer token claims are read.
// With an empty JWTSecret the payload is decoded without verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SessionConfig represents the browser identity cookie
type SessionConfig struct {
	CookieName   string        `yaml:"cookie_name"`
	CookieMaxAge int           `yaml:"cookie_max_age"` // seconds
	SecureCookie bool          `yaml:"secure_cookie"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"` // unused controllers are dropped after this
}

// StorageConfig selects the durable token store backend
type StorageConfig struct {
	Driver        string `yaml:"driver"` // file, redis or sqlite
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	SQLitePath    string `yaml:"sqlite_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		API: APIConfig{
			BaseURL: "http://localhost:5000",
		},
		Session: SessionConfig{
			CookieName:   "client_id",
			CookieMaxAge: 365 * 24 * 60 * 60,
			IdleTimeout:  24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver:     "file",
			RedisAddr:  "localhost:6379",
			SQLitePath: "./data/photoshare.db",
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	// A missing file means defaults
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides overrides configuration with environment variables
func applyEnvOverrides(cfg *Config) {
	if apiURL := os.Getenv("PHOTOSHARE_API_URL"); apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if jwtSecret := os.Getenv("PHOTOSHARE_JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}
	if driver := os.Getenv("PHOTOSHARE_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if redisAddr := os.Getenv("PHOTOSHARE_REDIS_ADDR"); redisAddr != "" {
		cfg.Storage.RedisAddr = redisAddr
	}
	if port := os.Getenv("PHOTOSHARE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

// Save writes the configuration as YAML, creating the parent directory.
// The file may hold the JWT secret, so it is private to the owner.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureFile writes the default configuration to path when no file exists
// there and reports whether it did
func EnsureFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := DefaultConfig().Save(path); err != nil {
		return false, err
	}
	return true, nil
}
