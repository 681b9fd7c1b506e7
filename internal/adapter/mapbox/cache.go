package mapbox

import (
	"context"
	"strings"
	"sync"

	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/hearthdata/market-engine/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory cache keyed by the
// lowercased query. Entries live for the process lifetime: coordinates of a
// named place do not change at a cadence this system cares about, so there is
// no TTL and no eviction. Failures and empty results are never cached — a
// transient provider outage must not permanently poison a query.
type CachedGeocoder struct {
	inner   domain.Geocoder
	metrics *observability.Metrics

	mu     sync.RWMutex
	points map[string]domain.GeoPoint
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		metrics: metrics,
		points:  make(map[string]domain.GeoPoint),
	}
}

// Geocode returns the cached point for query, calling the inner geocoder on a
// miss. Two concurrent misses for the same key may both call the provider;
// the second insert simply overwrites the first with the same value.
func (c *CachedGeocoder) Geocode(ctx context.Context, query string) (domain.GeoPoint, bool, error) {
	key := strings.ToLower(strings.TrimSpace(query))

	c.mu.RLock()
	pt, ok := c.points[key]
	c.mu.RUnlock()
	if ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return pt, true, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	pt, found, err := c.inner.Geocode(ctx, query)
	if err != nil || !found {
		return domain.GeoPoint{}, false, err
	}

	c.mu.Lock()
	c.points[key] = pt
	c.mu.Unlock()
	return pt, true, nil
}
