// Package config provides configuration management for the client service
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	CORS     CORSConfig     `yaml:"cors"`
	Log      LogConfig      `yaml:"log"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port         string        `yaml:"port"`
	Mode         string        `yaml:"mode"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // postgres, mysql, sqlite
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// AuthConfig holds settings for the login service collaborator
type AuthConfig struct {
	LoginURL        string        `yaml:"login_url"`
	ProfileCacheTTL time.Duration `yaml:"profile_cache_ttl"`
}

// UpstreamConfig holds settings for sibling services
type UpstreamConfig struct {
	ServiceAPIURL   string        `yaml:"service_api_url"`
	FinanceAPIURL   string        `yaml:"finance_api_url"`
	Timeout         time.Duration `yaml:"timeout"`
	ActivityTimeout time.Duration `yaml:"activity_timeout"`
}

// StorageConfig holds object store settings
type StorageConfig struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
}

// RedisConfig holds cache settings. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SecurityConfig holds secrets used for field encryption
type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8002",
			Mode:         "release",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         "5432",
			User:         "postgres",
			Name:         "clients",
			SSLMode:      "disable",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			LoginURL:        "http://login:8001",
			ProfileCacheTTL: time.Minute,
		},
		Upstream: UpstreamConfig{
			Timeout:         10 * time.Second,
			ActivityTimeout: 2 * time.Second,
		},
		Storage: StorageConfig{
			Region:     "us-east-1",
			PresignTTL: time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:8080", "http://localhost:8081"},
			AllowCredentials: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads an optional YAML file and then applies environment overrides.
// Environment variables always win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Mode = getEnv("SERVER_MODE", cfg.Server.Mode)
	cfg.Server.ReadTimeout = getDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.DSN = getEnv("DATABASE_URL", cfg.Database.DSN)
	cfg.Database.MaxOpenConns = getInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	// API_URL is the name the login service URL has always been deployed under
	cfg.Auth.LoginURL = getEnv("API_URL", cfg.Auth.LoginURL)
	cfg.Auth.ProfileCacheTTL = getDuration("PROFILE_CACHE_TTL", cfg.Auth.ProfileCacheTTL)

	cfg.Upstream.ServiceAPIURL = getEnv("SERVICE_API_URL", cfg.Upstream.ServiceAPIURL)
	cfg.Upstream.FinanceAPIURL = getEnv("FINANCE_API_URL", cfg.Upstream.FinanceAPIURL)
	cfg.Upstream.Timeout = getDuration("UPSTREAM_TIMEOUT", cfg.Upstream.Timeout)
	cfg.Upstream.ActivityTimeout = getDuration("ACTIVITY_TIMEOUT", cfg.Upstream.ActivityTimeout)

	cfg.Storage.Bucket = getEnv("S3_BUCKET_NAME", cfg.Storage.Bucket)
	cfg.Storage.Region = getEnv("AWS_REGION", cfg.Storage.Region)
	cfg.Storage.Endpoint = getEnv("S3_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", cfg.Storage.AccessKeyID)
	cfg.Storage.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", cfg.Storage.SecretAccessKey)
	cfg.Storage.UsePathStyle = getBool("S3_USE_PATH_STYLE", cfg.Storage.UsePathStyle)
	cfg.Storage.PresignTTL = getDuration("S3_PRESIGN_TTL", cfg.Storage.PresignTTL)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getInt("REDIS_DB", cfg.Redis.DB)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = splitString(origins)
	}
	cfg.CORS.AllowCredentials = getBool("CORS_ALLOW_CREDENTIALS", cfg.CORS.AllowCredentials)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Security.EncryptionKey = getEnv("ENCRYPTION_KEY", cfg.Security.EncryptionKey)
}

// Validate reports the first missing required setting
func (c *Config) Validate() error {
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if c.Auth.LoginURL == "" {
		return fmt.Errorf("API_URL (login service) is required")
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or a bare number of seconds
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// splitString splits a comma-separated string into a slice
func splitString(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
