package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all configuration shared by the three process roles.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Database  DatabaseConfig
	Scraper   ScraperConfig
	Catalog   CatalogConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server settings for the server role.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// RedisConfig holds broker/cache connection settings.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Addr returns the Redis address in host:port form.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// QueueConfig holds the SQS job-queue settings.
type QueueConfig struct {
	JobQueueURL     string        `envconfig:"JOB_QUEUE_URL"`
	WaitTimeSeconds int32         `envconfig:"JOB_QUEUE_WAIT_SECONDS" default:"20"`
	ReceiveBackoff  time.Duration `envconfig:"JOB_QUEUE_RECEIVE_BACKOFF" default:"5s"`
}

// DatabaseConfig holds catalog database settings.
type DatabaseConfig struct {
	URL       string `envconfig:"DATABASE_URL"`
	BatchSize int    `envconfig:"DB_BATCH_SIZE" default:"500"`
}

// ScraperConfig bounds the scraping retry policy.
type ScraperConfig struct {
	Retries      int           `envconfig:"SCRAPER_RETRIES" default:"3"`
	BackoffBase  time.Duration `envconfig:"SCRAPER_BACKOFF_BASE" default:"500ms"`
	FetchTimeout time.Duration `envconfig:"SCRAPER_FETCH_TIMEOUT" default:"10s"`
	CacheTTL     time.Duration `envconfig:"AVAILABILITY_CACHE_TTL" default:"30m"`
}

// CatalogConfig bounds the catalog ingestion stream.
type CatalogConfig struct {
	BulkIndexURL  string        `envconfig:"CATALOG_BULK_INDEX_URL" default:"https://api.scryfall.com/bulk-data"`
	CardNamesURL  string        `envconfig:"CATALOG_CARD_NAMES_URL" default:"https://api.scryfall.com/catalog/card-names"`
	SetsURL       string        `envconfig:"CATALOG_SETS_URL" default:"https://api.scryfall.com/sets"`
	ChunkSize     int           `envconfig:"CATALOG_CHUNK_SIZE" default:"20000"`
	NamesCacheTTL time.Duration `envconfig:"CATALOG_NAMES_CACHE_TTL" default:"24h"`
}

// SchedulerConfig holds the recurring-job intervals.
type SchedulerConfig struct {
	AvailabilityInterval time.Duration `envconfig:"AVAILABILITY_SWEEP_INTERVAL" default:"15m"`
	CatalogInterval      time.Duration `envconfig:"CATALOG_UPDATE_INTERVAL" default:"24h"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load for role entrypoints where a bad environment is fatal.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
