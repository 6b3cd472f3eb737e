package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Failure policies for persistence errors within a cycle.
const (
	FailureIsolate = "isolate"
	FailureAbort   = "abort"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const (
	DefaultFeedURL   = "https://map.ccnetmc.com/nationsmap/tiles/_markers_/marker_world.json"
	DefaultMarkerSet = "towny.markerset"
	maxWorkers       = 64
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	FeedURL       string
	FeedMarkerSet string
	FeedTimeout   time.Duration
	PollInterval  time.Duration
	ReferenceTown string
	Workers       int
	FailurePolicy string

	StoreDriver string
	SQLitePath  string
	PostgresDSN string

	// Read cache for snapshot lookups. Disabled when RedisAddr is empty.
	RedisAddr string
	RedisTTL  time.Duration

	// Snapshot publishing. Disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Raw feed archive. Disabled when ArchiveBucket is empty.
	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveEndpoint  string
	ArchivePathStyle bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "60s")
	if err != nil {
		return nil, err
	}

	redisTTL, err := parsePositiveDuration("REDIS_TTL", "5m")
	if err != nil {
		return nil, err
	}

	workers, err := parseWorkers()
	if err != nil {
		return nil, err
	}

	pathStyle, err := strconv.ParseBool(sharedcfg.EnvOrDefault("ARCHIVE_S3_PATH_STYLE", "false"))
	if err != nil {
		return nil, errors.New("invalid ARCHIVE_S3_PATH_STYLE")
	}

	cfg := &Config{
		FeedURL:       sharedcfg.EnvOrDefault("FEED_URL", DefaultFeedURL),
		FeedMarkerSet: sharedcfg.EnvOrDefault("FEED_MARKERSET", DefaultMarkerSet),
		FeedTimeout:   feedTimeout,
		PollInterval:  pollInterval,
		ReferenceTown: sharedcfg.EnvOrDefault("REFERENCE_TOWN", "Astarte"),
		Workers:       workers,
		FailurePolicy: strings.ToLower(sharedcfg.EnvOrDefault("FAILURE_POLICY", FailureIsolate)),

		StoreDriver: strings.ToLower(sharedcfg.EnvOrDefault("STORE_DRIVER", StoreSQLite)),
		SQLitePath:  sharedcfg.EnvOrDefault("SQLITE_PATH", "towns.db"),
		PostgresDSN: sharedcfg.EnvOrDefault("POSTGRES_DSN", ""),

		RedisAddr: sharedcfg.EnvOrDefault("REDIS_ADDR", ""),
		RedisTTL:  redisTTL,

		KafkaBrokers: parseBrokers(),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "town-snapshots"),

		ArchiveBucket:    sharedcfg.EnvOrDefault("ARCHIVE_S3_BUCKET", ""),
		ArchiveRegion:    sharedcfg.EnvOrDefault("ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveEndpoint:  sharedcfg.EnvOrDefault("ARCHIVE_S3_ENDPOINT", ""),
		ArchivePathStyle: pathStyle,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FeedURL == "" {
		return errors.New("FEED_URL is required")
	}
	if c.FeedMarkerSet == "" {
		return errors.New("FEED_MARKERSET is required")
	}
	switch c.FailurePolicy {
	case FailureIsolate, FailureAbort:
	default:
		return fmt.Errorf("invalid FAILURE_POLICY %q: must be %s or %s", c.FailurePolicy, FailureIsolate, FailureAbort)
	}
	switch c.StoreDriver {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORE_DRIVER is postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// CacheEnabled reports whether snapshot lookups go through Redis.
func (c *Config) CacheEnabled() bool { return c.RedisAddr != "" }

// PublishEnabled reports whether snapshots are published to Kafka.
func (c *Config) PublishEnabled() bool { return len(c.KafkaBrokers) > 0 }

// ArchiveEnabled reports whether raw feed payloads are archived to S3.
func (c *Config) ArchiveEnabled() bool { return c.ArchiveBucket != "" }

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseBrokers returns nil when KAFKA_BROKERS is unset so publishing stays off.
func parseBrokers() []string {
	raw := strings.TrimSpace(sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""))
	if raw == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(raw)
}

func parseWorkers() (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault("WORKERS", "4"))
	if err != nil || n < 1 || n > maxWorkers {
		return 0, fmt.Errorf("invalid WORKERS: must be between 1 and %d", maxWorkers)
	}
	return n, nil
}
