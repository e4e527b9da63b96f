package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv supplies the settings that have no defaults so Load can
// succeed; everything else falls back.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio-access")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 10, cfg.API.LoginRateLimitPerHour)
	assert.Equal(t, 5, cfg.API.LoginLockThreshold)
	assert.Equal(t, 15*time.Minute, cfg.API.LoginLockTTL())
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "elecmate", cfg.MinIO.Bucket)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL())
	assert.Equal(t, "llama3.1", cfg.Ollama.Model)
	assert.Equal(t, 25*time.Second, cfg.Ollama.Timeout())
	assert.Equal(t, 10, cfg.Worker.Concurrency)
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("POSTGRES_DB", "elec_prod")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("OLLAMA_TIMEOUT_SECONDS", "40")
	t.Setenv("INTERNAL_API_SECRET", "hunter2")
	t.Setenv("CLAMD_ADDR", "clamav:3310")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "elec_prod", cfg.Database.Name)
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, 40*time.Second, cfg.Ollama.Timeout())
	assert.Equal(t, "hunter2", cfg.API.InternalSecret)
	assert.Equal(t, "clamav:3310", cfg.API.ClamdAddr)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing minio credentials", env: map[string]string{}},
		{
			name: "bad api port",
			env:  map[string]string{"API_PORT": "-1"},
		},
		{
			name: "zero redis port",
			env:  map[string]string{"REDIS_PORT": "0"},
		},
		{
			name: "zero ollama timeout",
			env:  map[string]string{"OLLAMA_TIMEOUT_SECONDS": "0"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.name != "missing minio credentials" {
				setRequiredEnv(t)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	dsn := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		Name:     "elecmate",
		User:     "svc",
		Password: "pw",
		SSLMode:  "disable",
	}.DSN()
	assert.Equal(t, "host=db port=5432 user=svc password=pw dbname=elecmate sslmode=disable", dsn)
}
