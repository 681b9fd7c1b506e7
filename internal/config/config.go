package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hearthdata/market-engine/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset sources. DataDir holds one flat file per family, overwritten
	// on each successful refresh. A family with no URL is served from its
	// local file only.
	DataDir         string
	DatasetURLs     map[domain.Family]string
	DownloadTimeout time.Duration

	// RefreshInterval is how often the background scheduler re-checks the
	// sources. Zero disables scheduled refresh; POST /api/refresh still works.
	RefreshInterval time.Duration

	ResponseCacheTTL time.Duration

	// Mapbox geocoding configuration.
	MapboxToken   string
	MapboxEnabled bool
	MapboxTimeout time.Duration

	// Kafka refresh notifications (disabled when no brokers configured).
	KafkaBrokers      []string
	KafkaRefreshTopic string

	// Gemini narrative generation (disabled when no API key configured).
	GeminiAPIKey     string
	NarrativeEnabled bool
	NarrativeModel   string
}

// urlEnvVars maps each dataset family to the env var naming its source URL.
var urlEnvVars = map[domain.Family]string{
	domain.FamilyHomeValue:       "HOME_VALUE_URL",
	domain.FamilyPricePerSqft:    "PRICE_PER_SQFT_URL",
	domain.FamilyNewConstruction: "NEW_CONSTRUCTION_URL",
	domain.FamilyAffordability:   "AFFORDABILITY_URL",
	domain.FamilyRenterDemand:    "RENTER_DEMAND_URL",
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	downloadTimeout, err := parseDurationEnv("DOWNLOAD_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	var refreshInterval time.Duration
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		refreshInterval, err = time.ParseDuration(v)
		if err != nil || refreshInterval < 0 {
			return nil, errors.New("invalid REFRESH_INTERVAL")
		}
	}
	cacheTTL, err := parseDurationEnv("RESPONSE_CACHE_TTL", "15m")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDurationEnv("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	urls := make(map[domain.Family]string, len(urlEnvVars))
	for family, envVar := range urlEnvVars {
		if u := os.Getenv(envVar); u != "" {
			urls[family] = u
		}
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	narrativeEnabled := geminiKey != ""
	if v := os.Getenv("NARRATIVE_ENABLED"); v != "" {
		narrativeEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataDir:         envOrDefault("DATA_DIR", "data"),
		DatasetURLs:     urls,
		DownloadTimeout: downloadTimeout,
		RefreshInterval: refreshInterval,

		ResponseCacheTTL: cacheTTL,

		MapboxToken:   mapboxToken,
		MapboxEnabled: mapboxEnabled,
		MapboxTimeout: mapboxTimeout,

		KafkaBrokers:      parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaRefreshTopic: envOrDefault("KAFKA_REFRESH_TOPIC", "market-dataset-refreshed"),

		GeminiAPIKey:     geminiKey,
		NarrativeEnabled: narrativeEnabled,
		NarrativeModel:   envOrDefault("NARRATIVE_MODEL", "gemini-1.5-flash"),
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.NarrativeEnabled && cfg.GeminiAPIKey == "" {
		return nil, errors.New("NARRATIVE_ENABLED is true but GEMINI_API_KEY is not set")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaRefreshTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_REFRESH_TOPIC is empty")
	}

	return cfg, nil
}

// KafkaEnabled reports whether refresh notifications should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseDurationEnv(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
