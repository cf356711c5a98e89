package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr string

	// StorageDriver selects the persistence backend: "memory" or "postgres".
	StorageDriver string
	PostgresDSN   string

	Redis            RedisConfig
	ProviderCacheTTL time.Duration

	// ReverifyOnPayment re-runs the provider verification gate at payment
	// authorization time instead of trusting the intake snapshot alone.
	ReverifyOnPayment bool

	KafkaBrokers []string
	KafkaTopic   string

	ShutdownTimeout time.Duration
}

// RedisConfig captures Redis connection settings. An empty URL means Redis
// is not configured and the provider cache is skipped.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	addr := os.Getenv("MEDISURE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	driver := os.Getenv("MEDISURE_STORAGE_DRIVER")
	if driver == "" {
		driver = DriverMemory
	}
	if driver != DriverMemory && driver != DriverPostgres {
		return Server{}, fmt.Errorf("unknown storage driver %q", driver)
	}

	dsn := os.Getenv("MEDISURE_POSTGRES_DSN")
	if driver == DriverPostgres && dsn == "" {
		return Server{}, fmt.Errorf("MEDISURE_POSTGRES_DSN is required when storage driver is postgres")
	}

	var brokers []string
	if raw := os.Getenv("MEDISURE_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	topic := os.Getenv("MEDISURE_KAFKA_TOPIC")
	if topic == "" {
		topic = "claims.terminal"
	}

	return Server{
		Addr:          addr,
		StorageDriver: driver,
		PostgresDSN:   dsn,
		Redis: RedisConfig{
			URL:          os.Getenv("MEDISURE_REDIS_URL"),
			PoolSize:     envInt("MEDISURE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MEDISURE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("MEDISURE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("MEDISURE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("MEDISURE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		ProviderCacheTTL:  envDuration("MEDISURE_PROVIDER_CACHE_TTL", 5*time.Minute),
		ReverifyOnPayment: os.Getenv("MEDISURE_REVERIFY_ON_PAYMENT") == "true",
		KafkaBrokers:      brokers,
		KafkaTopic:        topic,
		ShutdownTimeout:   envDuration("MEDISURE_SHUTDOWN_TIMEOUT", 10*time.Second),
	}, nil
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}
