package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/hearthdata/market-engine/internal/observability"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	calls int
	point domain.GeoPoint
	found bool
	err   error
}

func (m *countingGeocoder) Geocode(_ context.Context, _ string) (domain.GeoPoint, bool, error) {
	m.calls++
	return m.point, m.found, m.err
}

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{point: domain.GeoPoint{Lat: 30.2672, Lng: -97.7431}, found: true}
	cached := NewCachedGeocoder(inner, testMetrics())

	r1, found, err := cached.Geocode(context.Background(), "Austin, TX")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 30.2672, r1.Lat)

	r2, found, err := cached.Geocode(context.Background(), "Austin, TX")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedGeocoder_KeyIsCaseInsensitive(t *testing.T) {
	inner := &countingGeocoder{point: domain.GeoPoint{Lat: 47.6, Lng: -122.3}, found: true}
	cached := NewCachedGeocoder(inner, testMetrics())

	_, _, err := cached.Geocode(context.Background(), "SEATTLE, WA")
	require.NoError(t, err)
	_, _, err = cached.Geocode(context.Background(), "  seattle, wa ")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_DoesNotCacheEmptyResult(t *testing.T) {
	inner := &countingGeocoder{found: false}
	cached := NewCachedGeocoder(inner, testMetrics())

	_, found, err := cached.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = cached.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "empty results must be retried")
}

func TestCachedGeocoder_DoesNotCacheError(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("timeout")}
	cached := NewCachedGeocoder(inner, testMetrics())

	_, found, err := cached.Geocode(context.Background(), "Austin, TX")
	require.Error(t, err)
	assert.False(t, found)

	// The provider recovers; the cache must not have poisoned the key.
	inner.err = nil
	inner.found = true
	inner.point = domain.GeoPoint{Lat: 30.0, Lng: -97.0}

	pt, found, err := cached.Geocode(context.Background(), "Austin, TX")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 30.0, pt.Lat)
	assert.Equal(t, 2, inner.calls)
}
