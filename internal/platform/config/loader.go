package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	platformstrings "civic/pkg/platform/strings"
)

const (
	envPrefix  = "CIVIC_"
	envFileKey = "CIVIC_CONFIG"
)

// Load builds a Config from defaults, the optional CIVIC_CONFIG file and
// CIVIC_* environment variables.
func Load() (Config, error) {
	return LoadFrom(os.Getenv(envFileKey))
}

// LoadFrom is Load with an explicit file path ("" skips the file layer).
func LoadFrom(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// CIVIC_GEO__CONFIDENCE_FLOOR -> geo.confidence_floor
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Geo.Providers = platformstrings.DedupeAndTrimLower(cfg.Geo.Providers)
	if len(cfg.Geo.Providers) == 0 {
		cfg.Geo.Providers = append([]string(nil), DefaultProviders...)
	}
	cfg.Kafka.Brokers = platformstrings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Geo.ConfidenceFloor < 0 || c.Geo.ConfidenceFloor > 1 {
		return fmt.Errorf("geo.confidence_floor must be within [0,1], got %v", c.Geo.ConfidenceFloor)
	}
	if len(c.Geo.Providers) == 0 {
		return errors.New("geo.providers must list at least one provider")
	}
	if c.Geo.ProviderTimeout <= 0 || c.Fetch.LevelTimeout <= 0 {
		return errors.New("geo.provider_timeout and fetch.level_timeout must be positive")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("cache.backend=redis requires redis.url")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	switch c.Directory.Backend {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("directory.backend=postgres requires postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown directory.backend %q", c.Directory.Backend)
	}
	return nil
}
