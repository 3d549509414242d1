package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_PORT"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"console" validate:"oneof=console json"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres memory"`
	// BaseURL prefixes product slugs to build export permalinks.
	BaseURL    string `envconfig:"CATALOG_BASE_URL" default:"http://localhost"`
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Media      MediaConfig
	Taxonomy   TaxonomyConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"120s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
	// MaxBodyBytes bounds the import document accepted by POST /api/v1/imports.
	MaxBodyBytes int64 `envconfig:"HTTP_SERVER_MAX_BODY_BYTES" default:"67108864"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds PostgreSQL database connection details.
// The fields are only mandatory with the postgres store driver.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	DBName   string `envconfig:"POSTGRES_DBNAME"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// RedisConfig configures the optional Redis cache. An empty Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	PoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"10"`
	Prefix   string `envconfig:"REDIS_PREFIX" default:"catalog:"`
}

// MediaConfig configures how remote images are fetched and stored.
type MediaConfig struct {
	Dir             string        `envconfig:"MEDIA_DIR" default:"./uploads"`
	MaxDimension    int           `envconfig:"MEDIA_MAX_DIMENSION" default:"2048" validate:"gte=0"`
	JPEGQuality     int           `envconfig:"MEDIA_JPEG_QUALITY" default:"85" validate:"gte=1,lte=100"`
	RequestsPerSec  float64       `envconfig:"MEDIA_RATE" default:"4" validate:"gt=0"`
	Burst           int           `envconfig:"MEDIA_BURST" default:"2" validate:"gte=1"`
	Timeout         time.Duration `envconfig:"MEDIA_TIMEOUT" default:"30s"`
	PrimaryLanguage string        `envconfig:"MEDIA_PRIMARY_LANG" default:"en"`
}

// TaxonomyConfig names the host taxonomies and the canonical label table.
type TaxonomyConfig struct {
	Category   string `envconfig:"TAXONOMY_CATEGORY" default:"al_product-cat" validate:"required"`
	Attribute  string `envconfig:"TAXONOMY_ATTRIBUTE" default:"al_product-attributes" validate:"required"`
	Language   string `envconfig:"TAXONOMY_LANGUAGE" default:"language" validate:"required"`
	LabelsFile string `envconfig:"TAXONOMY_LABELS_FILE"`
}

// ErrPostgresNotConfigured is returned when the postgres driver is selected without connection details.
var ErrPostgresNotConfigured = errors.New("config: POSTGRES_HOST, POSTGRES_USER and POSTGRES_DBNAME are required with STORE_DRIVER=postgres")

var (
	cfg    Config
	loaded bool
)

// Load initializes the configuration from environment variables.
// It should be called once during application startup.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfg = c
	loaded = true
	return &cfg, nil
}

// Validate checks field constraints and driver-specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	if c.StoreDriver == DriverPostgres {
		p := c.Postgres
		if p.Host == "" || p.User == "" || p.DBName == "" {
			return ErrPostgresNotConfigured
		}
	}
	return nil
}

// Get returns the loaded configuration.
// Panics if Load() has not been called successfully.
func Get() *Config {
	if !loaded {
		panic("config: configuration has not been loaded, call config.Load() first")
	}
	return &cfg
}
