package config

import (
	"testing"
	"time"

	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Empty(t, cfg.DatasetURLs)
	assert.Equal(t, 60*time.Second, cfg.DownloadTimeout)
	assert.Zero(t, cfg.RefreshInterval, "scheduled refresh is off by default")
	assert.Equal(t, 15*time.Minute, cfg.ResponseCacheTTL)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "market-dataset-refreshed", cfg.KafkaRefreshTopic)
	assert.False(t, cfg.NarrativeEnabled)
	assert.Equal(t, "gemini-1.5-flash", cfg.NarrativeModel)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DATA_DIR", "/var/lib/market-engine")
	t.Setenv("HOME_VALUE_URL", "https://example.com/zhvi.csv")
	t.Setenv("RENTER_DEMAND_URL", "https://example.com/renter.csv")
	t.Setenv("REFRESH_INTERVAL", "12h")
	t.Setenv("RESPONSE_CACHE_TTL", "5m")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("GEMINI_API_KEY", "key-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/var/lib/market-engine", cfg.DataDir)
	assert.Equal(t, "https://example.com/zhvi.csv", cfg.DatasetURLs[domain.FamilyHomeValue])
	assert.Equal(t, "https://example.com/renter.csv", cfg.DatasetURLs[domain.FamilyRenterDemand])
	assert.NotContains(t, cfg.DatasetURLs, domain.FamilyAffordability)
	assert.Equal(t, 12*time.Hour, cfg.RefreshInterval)
	assert.Equal(t, 5*time.Minute, cfg.ResponseCacheTTL)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.True(t, cfg.NarrativeEnabled)
}

func TestLoad_Validation(t *testing.T) {
	t.Run("mapbox enabled without token", func(t *testing.T) {
		t.Setenv("MAPBOX_ENABLED", "true")
		_, err := Load()
		assert.ErrorContains(t, err, "MAPBOX_TOKEN")
	})

	t.Run("narrative enabled without key", func(t *testing.T) {
		t.Setenv("NARRATIVE_ENABLED", "true")
		_, err := Load()
		assert.ErrorContains(t, err, "GEMINI_API_KEY")
	})

	t.Run("mapbox token alone enables geocoding", func(t *testing.T) {
		t.Setenv("MAPBOX_TOKEN", testMapboxToken)
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.MapboxEnabled)
	})

	t.Run("explicit disable overrides token", func(t *testing.T) {
		t.Setenv("MAPBOX_TOKEN", testMapboxToken)
		t.Setenv("MAPBOX_ENABLED", "false")
		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.MapboxEnabled)
	})

	t.Run("negative refresh interval", func(t *testing.T) {
		t.Setenv("REFRESH_INTERVAL", "-1h")
		_, err := Load()
		assert.ErrorContains(t, err, "REFRESH_INTERVAL")
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Setenv("RESPONSE_CACHE_TTL", "not-a-duration")
		_, err := Load()
		assert.ErrorContains(t, err, "RESPONSE_CACHE_TTL")
	})
}
