package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Geocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "Seattle")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))

		resp := response{
			Features: []feature{
				{
					Center:    []float64{-122.3321, 47.6062},
					PlaceName: "Seattle, Washington, United States",
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	pt, found, err := c.Geocode(context.Background(), "Seattle, WA")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, 47.6062, pt.Lat)
	assert.Equal(t, -122.3321, pt.Lng)
}

func TestClient_Geocode_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, found, err := c.Geocode(context.Background(), "zzz nowhere")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClient_Geocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, found, err := c.Geocode(context.Background(), "Seattle, WA")
	require.Error(t, err)
	assert.False(t, found)
	assert.Contains(t, err.Error(), "status 401")
}

func TestClient_Geocode_MalformedCenter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{
			Features: []feature{{Center: []float64{-122.3321}}},
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, found, err := c.Geocode(context.Background(), "Seattle, WA")
	require.NoError(t, err)
	assert.False(t, found)
}
