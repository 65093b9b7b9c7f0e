package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Kafka     KafkaConfig
	Stream    StreamConfig
	Zoho      ZohoConfig
	RateLimit RateLimitConfig
	Orders    OrderConfig
	Bootstrap BootstrapConfig
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
	MigrationsDir  string
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
	Level       string
	Service     string
	Development bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// KafkaConfig points the event forwarder at a topic. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// StreamConfig holds chat vendor credentials.
type StreamConfig struct {
	APIKey          string
	APISecret       string
	BaseURL         string
	TimeoutSeconds  int
	UserTokenTTLMin int
}

// ZohoConfig holds CRM vendor credentials.
type ZohoConfig struct {
	BaseURL        string
	AccessToken    string
	TimeoutSeconds int
}

// RateLimitConfig bounds message posting per sender.
type RateLimitConfig struct {
	MessagesPerMinute int
}

// OrderConfig holds order lifecycle defaults.
type OrderConfig struct {
	DefaultDeliveryDays int
}

// BootstrapConfig names the super admin created at startup when absent.
// An empty email skips it.
type BootstrapConfig struct {
	AdminEmail    string
	AdminName     string
	AdminPassword string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "marketplace-support"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Service:     getEnv("APP_NAME", "marketplace-support"),
			Development: getEnv("APP_ENV", "development") == "development",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "marketplace.support.events"),
		},
		Stream: StreamConfig{
			APIKey:          os.Getenv("STREAM_API_KEY"),
			APISecret:       os.Getenv("STREAM_API_SECRET"),
			BaseURL:         getEnv("STREAM_BASE_URL", "https://chat.stream-io-api.com"),
			TimeoutSeconds:  getEnvAsInt("STREAM_TIMEOUT_SECONDS", 5),
			UserTokenTTLMin: getEnvAsInt("STREAM_USER_TOKEN_TTL_MINUTES", 24*60),
		},
		Zoho: ZohoConfig{
			BaseURL:        getEnv("ZOHO_BASE_URL", "https://www.zohoapis.com"),
			AccessToken:    os.Getenv("ZOHO_ACCESS_TOKEN"),
			TimeoutSeconds: getEnvAsInt("ZOHO_TIMEOUT_SECONDS", 5),
		},
		RateLimit: RateLimitConfig{
			MessagesPerMinute: getEnvAsInt("RATE_LIMIT_MESSAGES_PER_MINUTE", 30),
		},
		Orders: OrderConfig{
			DefaultDeliveryDays: getEnvAsInt("DEFAULT_DELIVERY_DAYS", 7),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    os.Getenv("SUPER_ADMIN_EMAIL"),
			AdminName:     getEnv("SUPER_ADMIN_NAME", "Super Admin"),
			AdminPassword: os.Getenv("SUPER_ADMIN_PASSWORD"),
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

// Timeout bounds a single chat vendor call.
func (s StreamConfig) Timeout() time.Duration {
	return secondsOr(s.TimeoutSeconds, 5)
}

// Timeout bounds a single CRM vendor call.
func (z ZohoConfig) Timeout() time.Duration {
	return secondsOr(z.TimeoutSeconds, 5)
}

func secondsOr(val, fallback int) time.Duration {
	if val <= 0 {
		val = fallback
	}
	return time.Duration(val) * time.Second
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

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
