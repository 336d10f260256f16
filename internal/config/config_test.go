package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := LoadEnv()
	if cfg.Redis.Enabled() {
		t.Error("expected redis to be disabled without an address")
	}
	if cfg.Kafka.Enabled() {
		t.Error("expected kafka to be disabled without brokers")
	}
	if cfg.Tx.MaxConcurrent != 4 {
		t.Errorf("expected 4 transaction slots, got %d", cfg.Tx.MaxConcurrent)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("TX_ACQUIRE_TIMEOUT", "250ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := LoadEnv()
	if !cfg.App.Production() {
		t.Error("expected production")
	}
	if cfg.Tx.AcquireTimeout != 250*time.Millisecond {
		t.Errorf("unexpected acquire timeout %v", cfg.Tx.AcquireTimeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("expected fallback for malformed int, got %d", cfg.Redis.DB)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CACHE_VERSION=v9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set.
	os.Unsetenv("CACHE_VERSION")
	t.Cleanup(func() { os.Unsetenv("CACHE_VERSION") })

	cfg := Load(path)
	if cfg.Cache.Version != "v9" {
		t.Errorf("expected cache version from .env, got %q", cfg.Cache.Version)
	}
}

func TestCacheToggle(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "false")
	if LoadEnv().Cache.Enabled {
		t.Error("expected cache to be disabled")
	}

	t.Setenv("CACHE_ENABLED", "maybe")
	if !LoadEnv().Cache.Enabled {
		t.Error("expected fallback to enabled for a malformed bool")
	}
}
