package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the relay.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Modmail    ModmailConfig
	Attachment AttachmentConfig
	BlobStore  BlobStoreConfig
	Webhook    WebhookConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig secures the transcript read API. APIKeys holds bcrypt hashes of
// accepted keys; callers exchange a key for a short-lived JWT.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	APIKeyHashes          []string
}

// ModmailConfig tunes lifecycle and relay behavior.
type ModmailConfig struct {
	MinMessageLength    int
	ForceOpenMarker     string
	StaffNoteMarker     string
	FormStepWait        time.Duration
	OpenRateLimit       time.Duration
	InactivityWarning   time.Duration
	InactivityAutoClose time.Duration
	ResolveAutoClose    time.Duration
	SweepInterval       time.Duration
	ThreadLookupNegTTL  time.Duration
}

// AttachmentConfig bounds the tiering pipeline.
type AttachmentConfig struct {
	InlineLimitBytes   int64
	ExternalLimitBytes int64
	ExternalExpiry     time.Duration
}

// BlobStoreConfig points at the time-boxed external file host. An empty
// Endpoint disables the external tier entirely.
type BlobStoreConfig struct {
	Endpoint string
	APIKey   string
}

// WebhookConfig holds the optional notification webhook endpoint.
type WebhookConfig struct {
	URL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "heimdall-modmail"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			APIKeyHashes:          splitNonEmpty(os.Getenv("AUTH_API_KEY_HASHES")),
		},
		Modmail: ModmailConfig{
			MinMessageLength:    getEnvAsInt("MODMAIL_MIN_MESSAGE_LENGTH", 50),
			ForceOpenMarker:     getEnv("MODMAIL_FORCE_MARKER", "--force"),
			StaffNoteMarker:     getEnv("MODMAIL_STAFF_NOTE_MARKER", "#"),
			FormStepWait:        getEnvAsDuration("MODMAIL_FORM_STEP_WAIT", 5*time.Minute),
			OpenRateLimit:       getEnvAsDuration("MODMAIL_OPEN_RATE_LIMIT", 5*time.Second),
			InactivityWarning:   getEnvAsDuration("MODMAIL_INACTIVITY_WARNING", 48*time.Hour),
			InactivityAutoClose: getEnvAsDuration("MODMAIL_INACTIVITY_AUTO_CLOSE", 168*time.Hour),
			ResolveAutoClose:    getEnvAsDuration("MODMAIL_RESOLVE_AUTO_CLOSE", 24*time.Hour),
			SweepInterval:       getEnvAsDuration("MODMAIL_SWEEP_INTERVAL", 10*time.Minute),
			ThreadLookupNegTTL:  getEnvAsDuration("MODMAIL_THREAD_LOOKUP_NEG_TTL", 15*time.Minute),
		},
		Attachment: AttachmentConfig{
			InlineLimitBytes:   getEnvAsInt64("ATTACHMENT_INLINE_LIMIT_BYTES", 8*1024*1024),
			ExternalLimitBytes: getEnvAsInt64("ATTACHMENT_EXTERNAL_LIMIT_BYTES", 95*1024*1024),
			ExternalExpiry:     getEnvAsDuration("ATTACHMENT_EXTERNAL_EXPIRY", 30*24*time.Hour),
		},
		BlobStore: BlobStoreConfig{
			Endpoint: os.Getenv("BLOB_STORE_ENDPOINT"),
			APIKey:   os.Getenv("BLOB_STORE_API_KEY"),
		},
		Webhook: WebhookConfig{
			URL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitNonEmpty(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
