package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// market data engine.
type Metrics struct {
	QueriesTotal     *prometheus.CounterVec // labels: outcome={resolved,no_match,error}
	ResolutionsTotal *prometheus.CounterVec // labels: match_type
	ResolveDuration  prometheus.Histogram
	ResponseCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Dataset refresh metrics.
	RefreshTotal    *prometheus.CounterVec // labels: family, outcome={downloaded,disk,kept,error}
	RefreshDuration prometheus.Histogram
	SnapshotRegions *prometheus.GaugeVec // labels: family, kind

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge

	// Narrative collaborator metrics.
	NarrativeRequests *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_engine",
			Name:      "queries_total",
			Help:      "Address queries by outcome.",
		}, []string{"outcome"}),
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_engine",
			Name:      "resolutions_total",
			Help:      "Successful region resolutions by match type.",
		}, []string{"match_type"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "market_engine",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of region resolution, including any geocoding.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		ResponseCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_engine",
			Name:      "response_cache_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_engine",
			Name:      "refresh_total",
			Help:      "Dataset refresh attempts by family and outcome.",
		}, []string{"family", "outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "market_engine",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete download-parse-publish cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		SnapshotRegions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "market_engine",
			Name:      "snapshot_regions",
			Help:      "Region count in the published snapshot by family and kind.",
		}, []string{"family", "kind"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_engine",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_engine",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "market_engine",
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "market_engine",
			Name:      "geocode_enabled",
			Help:      "1 when the geocoding collaborator is configured, 0 otherwise.",
		}),
		NarrativeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_engine",
			Name:      "narrative_requests_total",
			Help:      "Narrative generation requests by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.QueriesTotal,
		m.ResolutionsTotal,
		m.ResolveDuration,
		m.ResponseCache,
		m.RefreshTotal,
		m.RefreshDuration,
		m.SnapshotRegions,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
		m.NarrativeRequests,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh, unregistered set to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		QueriesTotal:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "market_engine", Name: "queries_total"}, []string{"outcome"}),
		ResolutionsTotal:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "market_engine", Name: "resolutions_total"}, []string{"match_type"}),
		ResolveDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "market_engine", Name: "resolve_duration_seconds"}),
		ResponseCache:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "market_engine", Name: "response_cache_total"}, []string{"result"}),
		RefreshTotal:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "market_engine", Name: "refresh_total"}, []string{"family", "outcome"}),
		RefreshDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "market_engine", Name: "refresh_duration_seconds"}),
		SnapshotRegions:    prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "market_engine", Name: "snapshot_regions"}, []string{"family", "kind"}),
		GeocodeRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "market_engine", Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "market_engine", Name: "geocode_cache_total"}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "market_engine", Name: "geocode_api_duration_seconds"}),
		GeocodeEnabled:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "market_engine", Name: "geocode_enabled"}),
		NarrativeRequests:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "market_engine", Name: "narrative_requests_total"}, []string{"outcome"}),
	}
}
