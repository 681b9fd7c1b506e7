package dataset

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/hearthdata/market-engine/internal/observability"
)

const testCSV = "RegionID,RegionName,RegionType,StateName,2023-01-31,2023-02-28\n" +
	"1,98109,zip,WA,712000,715500\n" +
	"2,\"Seattle, WA\",msa,WA,640000,642100\n"

const testCSVv2 = "RegionID,RegionName,RegionType,StateName,2023-01-31,2023-02-28,2023-03-31\n" +
	"1,98109,zip,WA,712000,715500,718200\n" +
	"2,\"Seattle, WA\",msa,WA,640000,642100,645800\n" +
	"3,98122,zip,WA,801000,803000,805000\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, urls map[domain.Family]string, notifier Notifier) *Store {
	t.Helper()
	return NewStore(t.TempDir(), urls, 5*time.Second, discardLogger(), observability.NewMetricsForTesting(), notifier)
}

// csvServer serves body for every request and counts hits.
func csvServer(t *testing.T, body *atomic.Value, hits *atomic.Int64, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		time.Sleep(delay)
		b := body.Load().(string)
		if b == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(b))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStore_SnapshotBootstrap(t *testing.T) {
	t.Run("downloads when no local file exists", func(t *testing.T) {
		var body atomic.Value
		body.Store(testCSV)
		var hits atomic.Int64
		srv := csvServer(t, &body, &hits, 0)

		store := newTestStore(t, map[domain.Family]string{domain.FamilyHomeValue: srv.URL}, nil)

		snap, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
		require.NoError(t, err)
		assert.Equal(t, int64(1), hits.Load())
		assert.Len(t, snap.ZipIndex, 1)
		assert.Len(t, snap.MetroIndex, 1)
		assert.NotNil(t, snap.Lookup("98109", domain.KindZIP))

		// The payload was persisted for later disk reloads.
		_, statErr := os.Stat(filepath.Join(store.dataDir, fileNames[domain.FamilyHomeValue]))
		assert.NoError(t, statErr)

		// A second call serves the published snapshot, no new fetch.
		again, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
		require.NoError(t, err)
		assert.Same(t, snap, again)
		assert.Equal(t, int64(1), hits.Load())
	})

	t.Run("concurrent bootstrap collapses to one download", func(t *testing.T) {
		var body atomic.Value
		body.Store(testCSV)
		var hits atomic.Int64
		srv := csvServer(t, &body, &hits, 50*time.Millisecond)

		store := newTestStore(t, map[domain.Family]string{domain.FamilyHomeValue: srv.URL}, nil)

		const callers = 8
		snaps := make([]*domain.DatasetSnapshot, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				snap, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
				assert.NoError(t, err)
				snaps[i] = snap
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), hits.Load(), "overlapping bootstraps must share one download")
		for i := 1; i < callers; i++ {
			assert.Same(t, snaps[0], snaps[i])
		}
	})

	t.Run("reloads from disk with mtime as downloadedAt", func(t *testing.T) {
		fixed := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(fixed))
		defer SetClock(nil)

		store := newTestStore(t, nil, nil)
		path := filepath.Join(store.dataDir, fileNames[domain.FamilyHomeValue])
		require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o644))

		fetched := time.Date(2023, 5, 30, 8, 0, 0, 0, time.UTC)
		require.NoError(t, os.Chtimes(path, fetched, fetched))

		snap, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
		require.NoError(t, err)
		assert.Equal(t, fixed, snap.LoadedAt)
		assert.WithinDuration(t, fetched, snap.DownloadedAt, time.Second)
	})

	t.Run("no source at all", func(t *testing.T) {
		store := newTestStore(t, nil, nil)
		_, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
		assert.ErrorContains(t, err, "no source")
	})
}

func TestStore_Refresh(t *testing.T) {
	t.Run("concurrent refresh shares one download cycle", func(t *testing.T) {
		var body atomic.Value
		body.Store(testCSV)
		var hits atomic.Int64
		srv := csvServer(t, &body, &hits, 50*time.Millisecond)

		store := newTestStore(t, map[domain.Family]string{domain.FamilyHomeValue: srv.URL}, nil)

		const callers = 6
		reports := make([]*Report, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := store.Refresh(context.Background())
				assert.NoError(t, err)
				reports[i] = r
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), hits.Load(), "overlapping refreshes must share one download")
		for i := 1; i < callers; i++ {
			assert.Same(t, reports[0], reports[i], "all callers receive the same report")
		}
	})

	t.Run("refresh replaces the published generation", func(t *testing.T) {
		var body atomic.Value
		body.Store(testCSV)
		var hits atomic.Int64
		srv := csvServer(t, &body, &hits, 0)

		store := newTestStore(t, map[domain.Family]string{domain.FamilyHomeValue: srv.URL}, nil)

		first, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
		require.NoError(t, err)
		assert.Len(t, first.ZipIndex, 1)

		body.Store(testCSVv2)
		report, err := store.Refresh(context.Background())
		require.NoError(t, err)

		second := store.Published(domain.FamilyHomeValue)
		require.NotNil(t, second)
		assert.NotSame(t, first, second)
		assert.Len(t, second.ZipIndex, 2)

		// The old generation the first reader holds is untouched.
		assert.Len(t, first.ZipIndex, 1)

		var fr FamilyReport
		for _, f := range report.Families {
			if f.Family == domain.FamilyHomeValue {
				fr = f
			}
		}
		assert.Equal(t, SourceDownloaded, fr.Source)
		assert.Equal(t, 2, fr.ZipRegions)
		assert.Equal(t, 1, fr.MetroRegions)
	})

	t.Run("primary failure keeps previous snapshot and errors", func(t *testing.T) {
		var body atomic.Value
		body.Store(testCSV)
		var hits atomic.Int64
		srv := csvServer(t, &body, &hits, 0)

		store := newTestStore(t, map[domain.Family]string{domain.FamilyHomeValue: srv.URL}, nil)

		prev, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
		require.NoError(t, err)

		body.Store("") // server now returns 500
		report, err := store.Refresh(context.Background())
		require.Error(t, err)
		assert.ErrorContains(t, err, string(domain.FamilyHomeValue))

		assert.Same(t, prev, store.Published(domain.FamilyHomeValue))
		assert.Equal(t, SourceError, report.Families[0].Source)
		assert.NotEmpty(t, report.Families[0].Error)
	})

	t.Run("auxiliary failure degrades only that family", func(t *testing.T) {
		var goodBody atomic.Value
		goodBody.Store(testCSV)
		var goodHits atomic.Int64
		good := csvServer(t, &goodBody, &goodHits, 0)

		var badBody atomic.Value
		badBody.Store("")
		var badHits atomic.Int64
		bad := csvServer(t, &badBody, &badHits, 0)

		store := newTestStore(t, map[domain.Family]string{
			domain.FamilyHomeValue:    good.URL,
			domain.FamilyRenterDemand: bad.URL,
		}, nil)

		report, err := store.Refresh(context.Background())
		require.NoError(t, err, "auxiliary failure must not fail the refresh")

		assert.NotNil(t, store.Published(domain.FamilyHomeValue))
		assert.Nil(t, store.Published(domain.FamilyRenterDemand))

		byFamily := make(map[domain.Family]FamilyReport)
		for _, f := range report.Families {
			byFamily[f.Family] = f
		}
		assert.Equal(t, SourceDownloaded, byFamily[domain.FamilyHomeValue].Source)
		assert.Equal(t, SourceError, byFamily[domain.FamilyRenterDemand].Source)
		assert.Equal(t, SourceKept, byFamily[domain.FamilyAffordability].Source)
	})
}

// --- notifier ---

type recordingNotifier struct {
	mu       sync.Mutex
	families []domain.Family
}

func (n *recordingNotifier) NotifyRefresh(_ context.Context, snap *domain.DatasetSnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.families = append(n.families, snap.Family)
	return nil
}

func TestStore_NotifiesOnPublish(t *testing.T) {
	var body atomic.Value
	body.Store(testCSV)
	var hits atomic.Int64
	srv := csvServer(t, &body, &hits, 0)

	notifier := &recordingNotifier{}
	store := newTestStore(t, map[domain.Family]string{domain.FamilyHomeValue: srv.URL}, notifier)

	_, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []domain.Family{domain.FamilyHomeValue}, notifier.families)
}

func TestStore_CheckReadiness(t *testing.T) {
	store := newTestStore(t, nil, nil)
	assert.Error(t, store.CheckReadiness(context.Background()))

	path := filepath.Join(store.dataDir, fileNames[domain.FamilyHomeValue])
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o644))
	_, err := store.Snapshot(context.Background(), domain.FamilyHomeValue)
	require.NoError(t, err)

	assert.NoError(t, store.CheckReadiness(context.Background()))
}
