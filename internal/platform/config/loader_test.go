package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.5, cfg.Geo.ConfidenceFloor)
	assert.Equal(t, DefaultProviders, cfg.Geo.Providers)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Second, cfg.Fetch.LevelTimeout)
}

func TestLoadFrom_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "civic.yaml")
	yamlContent := `
server:
  addr: ":9090"
geo:
  confidence_floor: 0.6
  provider_timeout: 750ms
  providers: [static]
cache:
  zip_ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))
	t.Setenv("CIVIC_GEO__CONFIDENCE_FLOOR", "0.7")
	t.Setenv("CIVIC_FETCH__LEVEL_TIMEOUT", "250ms")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 0.7, cfg.Geo.ConfidenceFloor, "env overrides file")
	assert.Equal(t, 750*time.Millisecond, cfg.Geo.ProviderTimeout)
	assert.Equal(t, []string{"static"}, cfg.Geo.Providers, "configured list replaces the default order")
	assert.Equal(t, time.Hour, cfg.Cache.ZipTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.LevelTimeout)
	assert.Equal(t, 6*time.Hour, cfg.Cache.DistrictTTL, "unset keys keep defaults")
}

func TestLoadFrom_NormalizesLists(t *testing.T) {
	t.Setenv("CIVIC_GEO__PROVIDERS", "Static, zippopotam ,static")
	t.Setenv("CIVIC_KAFKA__BROKERS", "localhost:9092, localhost:9092")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, []string{"static", "zippopotam"}, cfg.Geo.Providers)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("floor out of range", func(t *testing.T) {
		cfg := Default()
		cfg.Geo.Providers = DefaultProviders
		cfg.Geo.ConfidenceFloor = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis backend without url", func(t *testing.T) {
		cfg := Default()
		cfg.Geo.Providers = DefaultProviders
		cfg.Cache.Backend = "redis"
		assert.Error(t, cfg.Validate())
	})

	t.Run("postgres directory without dsn", func(t *testing.T) {
		cfg := Default()
		cfg.Geo.Providers = DefaultProviders
		cfg.Directory.Backend = "postgres"
		assert.Error(t, cfg.Validate())
	})

	t.Run("defaults are valid", func(t *testing.T) {
		cfg := Default()
		cfg.Geo.Providers = DefaultProviders
		assert.NoError(t, cfg.Validate())
	})
}
