package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"50056"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver       string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName         string `envconfig:"DB_NAME" default:"marketplace"`
	SQLitePath     string `envconfig:"SQLITE_PATH" default:"./orders.db"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"./internal/repository/migrations"`

	MongoURI    string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017/?replicaSet=rs0"`
	MongoDBName string `envconfig:"MONGO_DB_NAME" default:"marketplace"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	CartCacheTTL  time.Duration `envconfig:"CART_CACHE_TTL" default:"15m"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"orders.placed"`

	RequestTimeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout     time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	OutboxPollInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	HealthProbeInterval time.Duration `envconfig:"HEALTH_PROBE_INTERVAL" default:"5s"`
}

// Load reads an optional .env file and then the process environment.
func Load(logger logrus.FieldLogger) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		logger.Warnf("Error loading .env file (but continuing): %v", err)
	} else if err == nil {
		logger.Info("Loaded configuration from .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.DBDriver = strings.ToLower(c.DBDriver)
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", c.OutboxPollInterval)
	}
	if c.HealthProbeInterval <= 0 {
		return fmt.Errorf("HEALTH_PROBE_INTERVAL must be positive, got %s", c.HealthProbeInterval)
	}
	if c.CartCacheTTL <= 0 {
		return fmt.Errorf("CART_CACHE_TTL must be positive, got %s", c.CartCacheTTL)
	}
	return nil
}

// MigrationsDir is the directory holding migrations for the configured driver.
func (c *Config) MigrationsDir() string {
	return strings.TrimRight(c.MigrationsPath, "/") + "/" + c.DBDriver
}
