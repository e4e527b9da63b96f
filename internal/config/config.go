package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port                  int    `mapstructure:"port"`
	CookieDomain          string `mapstructure:"cookie_domain"`
	InternalSecret        string `mapstructure:"internal_secret"`
	ClamdAddr             string `mapstructure:"clamd_addr"`
	LoginRateLimitPerHour int    `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int    `mapstructure:"login_lock_threshold"`
	LoginLockTTLMinutes   int    `mapstructure:"login_lock_ttl_minutes"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig contains JWT signing material and token lifetimes.
type AuthConfig struct {
	PrivateKeyPEM          string `mapstructure:"private_key_pem"`
	PublicKeyPEM           string `mapstructure:"public_key_pem"`
	AccessTokenTTLMinutes  int    `mapstructure:"access_token_ttl_minutes"`
	RefreshTokenTTLMinutes int    `mapstructure:"refresh_token_ttl_minutes"`
}

// OllamaConfig contains settings for the cover-letter generation model.
type OllamaConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// WorkerConfig contains settings consumed by the asynq worker.
type WorkerConfig struct {
	InternalAPIBaseURL string `mapstructure:"internal_api_base_url"`
	FrontendBaseURL    string `mapstructure:"frontend_base_url"`
	Concurrency        int    `mapstructure:"concurrency"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr returns the host:port pair for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AccessTokenTTL returns the access token lifetime as a duration.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a duration.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLMinutes) * time.Minute
}

// Timeout returns the per-call deadline for generation requests.
func (o OllamaConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// LoginLockTTL returns the lockout window after repeated failed logins.
func (a APIConfig) LoginLockTTL() time.Duration {
	return time.Duration(a.LoginLockTTLMinutes) * time.Minute
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.login_rate_limit_per_hour", 10)
	v.SetDefault("api.login_lock_threshold", 5)
	v.SetDefault("api.login_lock_ttl_minutes", 15)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "elecmate")
	v.SetDefault("database.user", "elecmate")
	v.SetDefault("database.password", "elecmate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "elecmate")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.access_token_ttl_minutes", 15)
	v.SetDefault("auth.refresh_token_ttl_minutes", 7*24*60)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.1")
	v.SetDefault("ollama.timeout_seconds", 25)
	v.SetDefault("ollama.max_retries", 1)
	v.SetDefault("worker.internal_api_base_url", "http://localhost:8080")
	v.SetDefault("worker.frontend_base_url", "http://localhost:3000")
	v.SetDefault("worker.concurrency", 10)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.cookie_domain":              "API_COOKIE_DOMAIN",
		"api.internal_secret":            "INTERNAL_API_SECRET",
		"api.clamd_addr":                 "CLAMD_ADDR",
		"api.login_rate_limit_per_hour":  "LOGIN_RATE_LIMIT_PER_HOUR",
		"api.login_lock_threshold":       "LOGIN_LOCK_THRESHOLD",
		"api.login_lock_ttl_minutes":     "LOGIN_LOCK_TTL_MINUTES",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_pem":           "AUTH_PRIVATE_KEY_PEM",
		"auth.public_key_pem":            "AUTH_PUBLIC_KEY_PEM",
		"auth.access_token_ttl_minutes":  "AUTH_ACCESS_TOKEN_TTL_MINUTES",
		"auth.refresh_token_ttl_minutes": "AUTH_REFRESH_TOKEN_TTL_MINUTES",
		"ollama.base_url":                "OLLAMA_BASE_URL",
		"ollama.model":                   "OLLAMA_MODEL",
		"ollama.timeout_seconds":         "OLLAMA_TIMEOUT_SECONDS",
		"ollama.max_retries":             "OLLAMA_MAX_RETRIES",
		"worker.internal_api_base_url":   "INTERNAL_API_BASE_URL",
		"worker.frontend_base_url":       "FRONTEND_BASE_URL",
		"worker.concurrency":             "WORKER_CONCURRENCY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.LoginRateLimitPerHour <= 0 {
		return errors.New("login rate limit must be positive")
	}
	if cfg.API.LoginLockThreshold <= 0 {
		return errors.New("login lock threshold must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.AccessTokenTTLMinutes <= 0 {
		return errors.New("access token ttl must be positive")
	}
	if cfg.Auth.RefreshTokenTTLMinutes <= 0 {
		return errors.New("refresh token ttl must be positive")
	}
	if cfg.Ollama.BaseURL == "" {
		return errors.New("ollama base url is required")
	}
	if cfg.Ollama.Model == "" {
		return errors.New("ollama model is required")
	}
	if cfg.Ollama.TimeoutSeconds <= 0 {
		return errors.New("ollama timeout must be positive")
	}
	return nil
}
