package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreRedis = "redis"
	StoreMongo = "mongo"
)

// Bus backends
const (
	BusLocal = "local"
	BusRedis = "redis"
	BusNATS  = "nats"
)

// Config is the server configuration, read from the environment
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	RedisURI      string `env:"REDIS_URI" envDefault:"localhost:6379"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"masbaha"`
	NATSURL       string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`
	BusBackend   string `env:"BUS_BACKEND" envDefault:"local"`

	JWTSecret      string   `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	StorageTTL       time.Duration `env:"STORAGE_TTL" envDefault:"720h"`
	InactivityWindow time.Duration `env:"INACTIVITY_WINDOW" envDefault:"48h"`
	CompletionWindow time.Duration `env:"COMPLETION_WINDOW" envDefault:"10h"`
	StorageTimeout   time.Duration `env:"STORAGE_TIMEOUT" envDefault:"5s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown backends and non-positive windows
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreRedis, StoreMongo:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreRedis, StoreMongo, c.StoreBackend)
	}
	switch c.BusBackend {
	case BusLocal, BusRedis, BusNATS:
	default:
		return fmt.Errorf("BUS_BACKEND must be one of %q, %q, %q, got %q", BusLocal, BusRedis, BusNATS, c.BusBackend)
	}
	if c.InactivityWindow <= 0 || c.CompletionWindow <= 0 || c.StorageTTL <= 0 || c.StorageTimeout <= 0 {
		return fmt.Errorf("retention windows, STORAGE_TTL and STORAGE_TIMEOUT must be positive")
	}
	return nil
}

// RedisAddr strips the redis:// prefix some deployments put on REDIS_URI
func (c *Config) RedisAddr() string {
	return strings.TrimPrefix(c.RedisURI, "redis://")
}
