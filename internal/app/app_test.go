package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic/internal/civic/models"
	"civic/internal/platform/config"
	"civic/internal/platform/logger"
	"civic/pkg/domain"
	"civic/pkg/testutil"
)

func offlineConfig() config.Config {
	cfg := config.Default()
	cfg.Geo.Providers = []string{"static"}
	cfg.Directory.SeedDir = "../../data/seed"
	return cfg
}

func TestBuild_OfflineEngineResolvesSeededZip(t *testing.T) {
	ctx := context.Background()
	engine, err := Build(ctx, offlineConfig(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	testutil.Given(t, "the static provider and the seed directory", func(t *testing.T) {
		testutil.When(t, "95814 is resolved", func(t *testing.T) {
			bundle, err := engine.Service.Resolve(ctx, "95814", 2*time.Second)
			require.NoError(t, err)

			testutil.Then(t, "Sacramento is classified and its federal roster served", func(t *testing.T) {
				assert.Equal(t, "Sacramento", bundle.Jurisdiction.PlaceName)
				assert.Equal(t, "CA", bundle.Jurisdiction.State)
				federal := bundle.RepresentativesByLevel[domain.LevelFederal]
				assert.Equal(t, models.LevelOK, federal.Status)
				assert.NotEmpty(t, federal.Records)
			})
		})
	})
}

func TestBuild_NoKafkaMeansNoBackgroundWork(t *testing.T) {
	engine, err := Build(context.Background(), offlineConfig(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	assert.Empty(t, engine.Checks)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, engine.Run(ctx))
}

func TestBuild_RejectsUnusableProviderList(t *testing.T) {
	cfg := offlineConfig()
	cfg.Geo.Providers = []string{"google"}

	_, err := Build(context.Background(), cfg, logger.Discard())
	assert.Error(t, err, "google without an api key leaves no provider")

	cfg.Geo.Providers = []string{"carrier-pigeon"}
	_, err = Build(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}

func TestBuild_MissingSeedDirIsEmptyDirectory(t *testing.T) {
	cfg := offlineConfig()
	cfg.Directory.SeedDir = t.TempDir()

	engine, err := Build(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	_, err = engine.Directory.GetByDistrict(context.Background(), domain.LevelFederal, "CA-07")
	assert.Error(t, err, "no snapshot was published")
}
