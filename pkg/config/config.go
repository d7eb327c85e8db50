package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the fleet-telemetry service.
// It is read once at startup and passed explicitly to every component.
type Config struct {
	ServiceName string // e.g. "fleet-telemetry"
	Env         string // "dev", "uat", "prod"
	LogLevel    string
	Port        int

	// Remote fleet API
	APIBaseURL  string // e.g. https://driverapp.eastus.cloudapp.azure.com/
	UserEmail   string
	Password    string
	HTTPTimeout time.Duration
	RateLimit   int // requests per second against the fleet API
	RateBurst   int

	// Credential source. When CredentialsSecret is set the email/password
	// pair is read from AWS Secrets Manager instead of USER_EMAIL/PASSWORD.
	CredentialsSecret string
	AWSRegion         string
	CacheTTL          time.Duration
	CleanupFreq       time.Duration

	// Token persistence: dotenv | redis | keyring | memory
	TokenStore     string
	DotenvPath     string
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	KeyringService string

	// Token keeper refreshes JWT access tokens this long before expiry.
	TokenRefreshAhead   time.Duration
	TokenKeeperInterval time.Duration

	// Telemetry polling
	PollInterval    time.Duration
	PollSensorIDs   []string
	NATSURL         string
	OutboundSubject string
	DatabaseURL     string // empty disables the reading archive

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// FleetBaseURL is the root of the /v1/fleet/ resource tree.
func (c *Config) FleetBaseURL() string {
	return strings.TrimRight(c.APIBaseURL, "/") + "/v1/fleet/"
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: GetEnv("SERVICE_NAME", "fleet-telemetry"),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		Port:        GetEnvInt("PORT", 9020),

		APIBaseURL:  GetEnv("API_BASE_URL", "https://driverapp.eastus.cloudapp.azure.com/"),
		UserEmail:   GetEnv("USER_EMAIL", ""),
		Password:    GetEnv("PASSWORD", ""),
		HTTPTimeout: GetEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		RateLimit:   GetEnvInt("RATE_LIMIT_RPS", 10),
		RateBurst:   GetEnvInt("RATE_LIMIT_BURST", 20),

		CredentialsSecret: GetEnv("CREDENTIALS_SECRET", ""),
		AWSRegion:         GetEnv("AWS_REGION", "us-east-2"),
		CacheTTL:          GetEnvDuration("CACHE_TTL", 24*time.Hour),
		CleanupFreq:       GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),

		TokenStore:     GetEnv("TOKEN_STORE", "dotenv"),
		DotenvPath:     GetEnv("DOTENV_PATH", ".env"),
		RedisAddr:      GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:        GetEnvInt("REDIS_DB", 0),
		RedisPass:      GetEnv("REDIS_PASS", ""),
		KeyringService: GetEnv("KEYRING_SERVICE", "fleet-telemetry"),

		TokenRefreshAhead:   GetEnvDuration("TOKEN_REFRESH_AHEAD", 2*time.Minute),
		TokenKeeperInterval: GetEnvDuration("TOKEN_KEEPER_INTERVAL", 1*time.Minute),

		PollInterval:    GetEnvDuration("POLL_INTERVAL", 1*time.Minute),
		PollSensorIDs:   GetEnvList("POLL_SENSOR_IDS", nil),
		NATSURL:         GetEnv("NATS_URL", "nats://localhost:4222"),
		OutboundSubject: GetEnv("OUTBOUND_SUBJECT", "evt.fleet.sensor.reading.v1"),
		DatabaseURL:     GetEnv("DATABASE_URL", ""),

		HTTPReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
	}
}
