package app

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const minSecretKeyBytes = 32

const (
	RevocationBackendPostgres = "postgres"
	RevocationBackendRedis    = "redis"
)

// Config is read once at startup and handed to constructors by value.
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	SecretKey   []byte
	SentryDSN   string
	CORSOrigins []string

	AccessTokenTTL time.Duration

	LoginWindow       time.Duration
	LoginMaxAttempts  int
	LoginThrottleKeys int
	TrustProxyHeaders bool
	BcryptCost        int
	HashConcurrency   int
	RegisterPerMinute int
	RegisterBurst     int

	RevocationBackend   string
	RedisURL            string
	RevocationRetention time.Duration
	CleanupBatchSize    int
	CronSecret          string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
}

// LoadConfig reads the process environment, optionally seeded from .env.
func LoadConfig(loadDotEnv bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (Config, error) {
	env := envReader{getenv: getenv}

	databaseURL, err := env.required("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	secret, err := env.required("FREELATRACKER_SECRET_KEY")
	if err != nil {
		return Config{}, err
	}
	if len(secret) < minSecretKeyBytes {
		return Config{}, fmt.Errorf("FREELATRACKER_SECRET_KEY must be at least %d bytes", minSecretKeyBytes)
	}

	cfg := Config{
		Env:         env.or("APP_ENV", "development"),
		Port:        env.or("PORT", "8080"),
		DatabaseURL: databaseURL,
		SecretKey:   []byte(secret),
		SentryDSN:   env.or("SENTRY_DSN", ""),
		CORSOrigins: env.list("CORS_ORIGINS", []string{"http://localhost:8000", "http://127.0.0.1:8000"}),

		AccessTokenTTL: env.minutes("ACCESS_TOKEN_TTL_MINUTES", 60),

		LoginWindow:       env.seconds("LOGIN_WINDOW_SECONDS", 300),
		LoginMaxAttempts:  env.int("LOGIN_MAX_ATTEMPTS", 10),
		LoginThrottleKeys: env.int("LOGIN_THROTTLE_MAX_KEYS", 5000),
		TrustProxyHeaders: env.bool("TRUST_PROXY_HEADERS", false),
		BcryptCost:        env.int("BCRYPT_COST", bcrypt.DefaultCost),
		HashConcurrency:   env.int("PASSWORD_HASH_CONCURRENCY", runtime.GOMAXPROCS(0)),
		RegisterPerMinute: env.int("REGISTER_RATE_PER_MINUTE", 20),
		RegisterBurst:     env.int("REGISTER_BURST", 5),

		RevocationBackend:   strings.ToLower(env.or("REVOCATION_BACKEND", RevocationBackendPostgres)),
		RedisURL:            env.or("REDIS_URL", ""),
		RevocationRetention: env.hours("REVOCATION_RETENTION_HOURS", 24),
		CleanupBatchSize:    env.int("CLEANUP_BATCH_SIZE", 500),
		CronSecret:          env.or("CRON_SECRET", ""),

		DBMaxOpenConns:    env.int("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    env.int("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: env.minutes("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: env.minutes("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
	}

	switch cfg.RevocationBackend {
	case RevocationBackendPostgres:
	case RevocationBackendRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required when REVOCATION_BACKEND=redis")
		}
	default:
		return Config{}, fmt.Errorf("unsupported REVOCATION_BACKEND: %s", cfg.RevocationBackend)
	}

	return cfg, nil
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) required(name string) (string, error) {
	value := strings.TrimSpace(e.getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func (e envReader) or(name, fallback string) string {
	value := strings.TrimSpace(e.getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

// int ignores unparsable and non-positive values.
func (e envReader) int(name string, fallback int) int {
	value := strings.TrimSpace(e.getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func (e envReader) seconds(name string, fallback int) time.Duration {
	return time.Duration(e.int(name, fallback)) * time.Second
}

func (e envReader) minutes(name string, fallback int) time.Duration {
	return time.Duration(e.int(name, fallback)) * time.Minute
}

func (e envReader) hours(name string, fallback int) time.Duration {
	return time.Duration(e.int(name, fallback)) * time.Hour
}

func (e envReader) bool(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(e.getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func (e envReader) list(name string, fallback []string) []string {
	raw := strings.TrimSpace(e.getenv(name))
	if raw == "" {
		return fallback
	}

	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	return envReader{getenv: os.Getenv}.bool(name, fallback)
}
