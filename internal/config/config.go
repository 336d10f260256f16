// Package config loads settings from the environment and an optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Invite    InviteConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Tx        TxConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Env     string
	Name    string
	Version string
}

// Production reports whether the production logger should be used.
func (a AppConfig) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Path string
}

type InviteConfig struct {
	TTL time.Duration
}

type JWTConfig struct {
	// Secret signs principal tokens. Empty means a secret is generated and
	// kept in the database.
	Secret string
	TTL    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type CacheConfig struct {
	// Enabled turns the Redis cache off even when an address is set.
	Enabled          bool
	Version          string
	ProductListTTL   time.Duration
	ProductDetailTTL time.Duration
	WarehouseListTTL time.Duration
	OrderListTTL     time.Duration
}

type TxConfig struct {
	MaxConcurrent  int
	AcquireTimeout time.Duration
	MaxDuration    time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	InvalidationTopic string
}

// Enabled reports whether invalidation events should be published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.InvalidationTopic != ""
}

type TelemetryConfig struct {
	OTLPEndpoint string
}

// Load reads .env files when present and returns the configuration.
func Load(files ...string) *Config {
	// A missing .env is not an error.
	_ = godotenv.Load(files...)
	return LoadEnv()
}

// LoadEnv returns the configuration from the process environment.
func LoadEnv() *Config {
	return &Config{
		App: AppConfig{
			Env:     getEnv("APP_ENV", "development"),
			Name:    getEnv("APP_NAME", "stockledger"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "stockledger.db"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		Invite: InviteConfig{
			TTL: getEnvDuration("INVITE_TTL", 7*24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:          getEnvBool("CACHE_ENABLED", true),
			Version:          getEnv("CACHE_VERSION", "v1"),
			ProductListTTL:   getEnvDuration("CACHE_TTL_PRODUCT_LIST", 5*time.Minute),
			ProductDetailTTL: getEnvDuration("CACHE_TTL_PRODUCT_DETAIL", 10*time.Minute),
			WarehouseListTTL: getEnvDuration("CACHE_TTL_WAREHOUSE_LIST", 10*time.Minute),
			OrderListTTL:     getEnvDuration("CACHE_TTL_ORDER_LIST", 2*time.Minute),
		},
		Tx: TxConfig{
			MaxConcurrent:  getEnvInt("TX_MAX_CONCURRENT", 4),
			AcquireTimeout: getEnvDuration("TX_ACQUIRE_TIMEOUT", 5*time.Second),
			MaxDuration:    getEnvDuration("TX_MAX_DURATION", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           getEnvSlice("KAFKA_BROKERS", nil),
			InvalidationTopic: getEnv("KAFKA_INVALIDATION_TOPIC", "inventory.cache-invalidated"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return fallback
}
