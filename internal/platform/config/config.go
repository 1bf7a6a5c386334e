// Package config defines the engine's process configuration.
//
// Values are layered (low -> high precedence): defaults from Default(), an
// optional YAML file named by CIVIC_CONFIG, then CIVIC_* environment
// variables. Nested keys use a double underscore: CIVIC_GEO__CONFIDENCE_FLOOR.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    Server          `koanf:"server"`
	Log       Log             `koanf:"log"`
	Geo       Geo             `koanf:"geo"`
	Fetch     Fetch           `koanf:"fetch"`
	Cache     Cache           `koanf:"cache"`
	Redis     RedisConfig     `koanf:"redis"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Directory DirectoryConfig `koanf:"directory"`
	Quality   QualityConfig   `koanf:"quality"`
	Kafka     KafkaConfig     `koanf:"kafka"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string `koanf:"addr"`
	// DefaultDeadline applies when a caller supplies none.
	DefaultDeadline time.Duration `koanf:"default_deadline"`
	// MaxDeadline caps caller-supplied deadlines.
	MaxDeadline     time.Duration `koanf:"max_deadline"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// AdminToken guards /v1/admin; the admin routes are not mounted without it.
	AdminToken string `koanf:"admin_token"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Geo configures the provider fallback chain.
type Geo struct {
	ConfidenceFloor  float64       `koanf:"confidence_floor"`
	ProviderTimeout  time.Duration `koanf:"provider_timeout"`
	Providers        []string      `koanf:"providers"`
	GoogleBaseURL    string        `koanf:"google_base_url"`
	GoogleAPIKey     string        `koanf:"google_api_key"`
	ZippopotamURL    string        `koanf:"zippopotam_url"`
	FailureThreshold int           `koanf:"failure_threshold"`
	SuccessThreshold int           `koanf:"success_threshold"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
}

// Fetch configures per-level representative fetches.
type Fetch struct {
	LevelTimeout time.Duration `koanf:"level_timeout"`
}

// Cache configures the resolution cache.
type Cache struct {
	Backend         string        `koanf:"backend"`
	ZipTTL          time.Duration `koanf:"zip_ttl"`
	DistrictTTL     time.Duration `koanf:"district_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type PostgresConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// DirectoryConfig selects where representative snapshots are read from.
type DirectoryConfig struct {
	Backend string `koanf:"backend"`
	// SeedDir holds <level>.yaml snapshots published at startup when non-empty.
	SeedDir string `koanf:"seed_dir"`
}

type QualityConfig struct {
	RulesFile string `koanf:"rules_file"`
	HotReload bool   `koanf:"hot_reload"`
}

type KafkaConfig struct {
	Brokers     []string `koanf:"brokers"`
	ReviewTopic string   `koanf:"review_topic"`
	Partitions  int32    `koanf:"partitions"`
	Replication int16    `koanf:"replication"`
}

// DefaultProviders is the geo fallback order used when none is configured.
var DefaultProviders = []string{"google", "zippopotam", "static"}

// Default returns the built-in configuration. Slice fields are left empty
// here and filled by Load so that configured lists replace, not merge.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			DefaultDeadline: 3 * time.Second,
			MaxDeadline:     10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{Level: "info", Format: "json"},
		Geo: Geo{
			ConfidenceFloor:  0.5,
			ProviderTimeout:  1500 * time.Millisecond,
			GoogleBaseURL:    "https://maps.googleapis.com/maps/api/geocode/json",
			ZippopotamURL:    "https://api.zippopotam.us/us",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			BreakerCooldown:  30 * time.Second,
		},
		Fetch: Fetch{LevelTimeout: 1 * time.Second},
		Cache: Cache{
			Backend:         "memory",
			ZipTTL:          24 * time.Hour,
			DistrictTTL:     6 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Postgres:  PostgresConfig{MaxOpenConns: 10},
		Directory: DirectoryConfig{Backend: "memory"},
		Quality:   QualityConfig{HotReload: true},
		Kafka: KafkaConfig{
			ReviewTopic: "civic.quality.rejections",
			Partitions:  3,
			Replication: 1,
		},
	}
}
