package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"SERVICE_NAME", "ENV", "LOG_LEVEL", "PORT",
		"API_BASE_URL", "USER_EMAIL", "PASSWORD", "HTTP_TIMEOUT",
		"TOKEN_STORE", "DOTENV_PATH", "REDIS_ADDR", "REDIS_DB",
		"POLL_INTERVAL", "POLL_SENSOR_IDS", "NATS_URL", "DATABASE_URL",
		"CREDENTIALS_SECRET", "TOKEN_REFRESH_AHEAD",
	}
	for _, key := range envVars {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "fleet-telemetry", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 9020, cfg.Port)
	assert.Equal(t, "https://driverapp.eastus.cloudapp.azure.com/", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "dotenv", cfg.TokenStore)
	assert.Equal(t, ".env", cfg.DotenvPath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Empty(t, cfg.PollSensorIDs)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.CredentialsSecret)
	assert.Equal(t, 2*time.Minute, cfg.TokenRefreshAhead)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("PORT", "8080")
	t.Setenv("API_BASE_URL", "https://fleet.test/")
	t.Setenv("USER_EMAIL", "ops@fleet.test")
	t.Setenv("PASSWORD", "hunter2")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("TOKEN_STORE", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("POLL_SENSOR_IDS", "300, 301,,302")

	cfg := Load()

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://fleet.test/", cfg.APIBaseURL)
	assert.Equal(t, "ops@fleet.test", cfg.UserEmail)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "redis", cfg.TokenStore)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"300", "301", "302"}, cfg.PollSensorIDs)
}

func TestFleetBaseURL_TrailingSlash(t *testing.T) {
	for _, base := range []string{"https://fleet.test", "https://fleet.test/", "https://fleet.test//"} {
		cfg := &Config{APIBaseURL: base}
		assert.Equal(t, "https://fleet.test/v1/fleet/", cfg.FleetBaseURL())
	}
}

func TestGetEnvInt_InvalidFallsToDefault(t *testing.T) {
	t.Setenv("BAD_INT", "not-a-number")
	assert.Equal(t, 42, GetEnvInt("BAD_INT", 42))
}

func TestGetEnvDuration_InvalidFallsToDefault(t *testing.T) {
	t.Setenv("BAD_DURATION", "not-a-duration")
	assert.Equal(t, 5*time.Second, GetEnvDuration("BAD_DURATION", 5*time.Second))
}

func TestGetEnvList_Unset(t *testing.T) {
	t.Setenv("EMPTY_LIST", "")
	assert.Equal(t, []string{"a"}, GetEnvList("EMPTY_LIST", []string{"a"}))
}
