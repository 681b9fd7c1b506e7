package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/hearthdata/market-engine/internal/observability"
)

// Source outcomes recorded in a refresh report.
const (
	SourceDownloaded = "downloaded" // fetched from the configured URL
	SourceDisk       = "disk"       // reloaded from the local file
	SourceKept       = "kept"       // previous snapshot left in place
	SourceError      = "error"      // fetch or parse failed, previous kept
)

// fileNames maps each dataset family to its flat file under the data
// directory, overwritten on each successful refresh.
var fileNames = map[domain.Family]string{
	domain.FamilyHomeValue:       "home_value.csv",
	domain.FamilyPricePerSqft:    "price_per_sqft.csv",
	domain.FamilyNewConstruction: "new_construction.csv",
	domain.FamilyAffordability:   "affordability.csv",
	domain.FamilyRenterDemand:    "renter_demand.csv",
}

// Notifier publishes a notification after a new snapshot generation is
// published. Implementations must tolerate being called concurrently.
type Notifier interface {
	NotifyRefresh(ctx context.Context, snap *domain.DatasetSnapshot) error
}

// Store maintains the published DatasetSnapshot for every family.
//
// Snapshots are built off to the side and published with an atomic pointer
// swap; readers that already hold a snapshot keep a consistent view while a
// refresh runs. Overlapping refresh or bootstrap calls for the same family
// collapse into a single in-flight load via singleflight.
type Store struct {
	dataDir    string
	urls       map[domain.Family]string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
	notifier   Notifier // nil disables notifications

	flight singleflight.Group
	snaps  map[domain.Family]*atomic.Pointer[domain.DatasetSnapshot]
}

// NewStore creates a Store. urls may omit families that are served from the
// local data directory only; notifier may be nil.
func NewStore(dataDir string, urls map[domain.Family]string, downloadTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics, notifier Notifier) *Store {
	snaps := make(map[domain.Family]*atomic.Pointer[domain.DatasetSnapshot], len(domain.Families))
	for _, family := range domain.Families {
		snaps[family] = &atomic.Pointer[domain.DatasetSnapshot]{}
	}
	return &Store{
		dataDir:    dataDir,
		urls:       urls,
		httpClient: &http.Client{Timeout: downloadTimeout},
		logger:     logger,
		metrics:    metrics,
		notifier:   notifier,
		snaps:      snaps,
	}
}

// Published returns the currently published snapshot for family, or nil if
// none has been published yet.
func (s *Store) Published(family domain.Family) *domain.DatasetSnapshot {
	p, ok := s.snaps[family]
	if !ok {
		return nil
	}
	return p.Load()
}

// Snapshot returns the published snapshot for family, lazily bootstrapping
// it on first use. Concurrent bootstrap calls share one load.
func (s *Store) Snapshot(ctx context.Context, family domain.Family) (*domain.DatasetSnapshot, error) {
	if snap := s.Published(family); snap != nil {
		return snap, nil
	}

	v, err, _ := s.flight.Do("load:"+string(family), func() (any, error) {
		// Re-check inside the flight: a concurrent caller may have
		// published while this one queued.
		if snap := s.Published(family); snap != nil {
			return snap, nil
		}
		_, snap, err := s.load(ctx, family, false)
		return snap, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.DatasetSnapshot), nil
}

// CheckReadiness reports whether queries can be served: the primary
// home-value snapshot must be published.
func (s *Store) CheckReadiness(_ context.Context) error {
	if s.Published(domain.FamilyHomeValue) == nil {
		return errors.New("home value snapshot not yet published")
	}
	return nil
}

// FamilyReport describes the outcome of one family within a refresh.
type FamilyReport struct {
	Family       domain.Family `json:"family"`
	Source       string        `json:"source"`
	LoadedAt     time.Time     `json:"loaded_at,omitempty"`
	DownloadedAt time.Time     `json:"downloaded_at,omitempty"`
	ZipRegions   int           `json:"zip_regions"`
	MetroRegions int           `json:"metro_regions"`
	Error        string        `json:"error,omitempty"`
}

// Report is the structured result of a refresh operation.
type Report struct {
	Families []FamilyReport `json:"families"`
}

// Refresh re-fetches every family and publishes new snapshots. Concurrent
// calls coalesce into one download cycle and share the resulting report.
//
// A failure on the primary home-value family is returned as an error (the
// previous snapshot stays published); failures on auxiliary families degrade
// only that family and are reported in the per-family entries.
func (s *Store) Refresh(ctx context.Context) (*Report, error) {
	type result struct {
		report *Report
		err    error
	}
	v, _, _ := s.flight.Do("refresh", func() (any, error) {
		report, err := s.refreshAll(ctx)
		return result{report: report, err: err}, nil
	})
	r := v.(result)
	return r.report, r.err
}

func (s *Store) refreshAll(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() {
		s.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}()

	report := &Report{}
	var primaryErr error

	for _, family := range domain.Families {
		fr := s.refreshFamily(ctx, family)
		report.Families = append(report.Families, fr)
		s.metrics.RefreshTotal.WithLabelValues(string(family), fr.Source).Inc()

		if fr.Error != "" && family == domain.FamilyHomeValue {
			primaryErr = fmt.Errorf("refresh %s: %s", family, fr.Error)
		}
	}

	return report, primaryErr
}

func (s *Store) refreshFamily(ctx context.Context, family domain.Family) FamilyReport {
	fr := FamilyReport{Family: family}

	url := s.urls[family]
	prev := s.Published(family)

	var (
		snap   *domain.DatasetSnapshot
		source string
		err    error
	)
	path := filepath.Join(s.dataDir, fileNames[family])
	_, statErr := os.Stat(path)
	switch {
	case url != "":
		source, snap, err = s.load(ctx, family, true)
	case prev == nil && statErr == nil:
		// No URL configured but a local file exists: reload it.
		source, snap, err = s.load(ctx, family, false)
	default:
		// Nothing to fetch: keep whatever generation is published,
		// which may be none for an unconfigured auxiliary family.
		snap, source = prev, SourceKept
	}

	if err != nil {
		s.logger.Warn("dataset refresh failed", "family", family, "error", err)
		fr.Source = SourceError
		fr.Error = err.Error()
		snap = prev // report the still-published generation, if any
	} else {
		fr.Source = source
	}

	if snap != nil {
		fr.LoadedAt = snap.LoadedAt
		fr.DownloadedAt = snap.DownloadedAt
		fr.ZipRegions = len(snap.ZipIndex)
		fr.MetroRegions = len(snap.MetroIndex)
	}
	return fr
}

// load builds and publishes a fresh snapshot for family. With forceDownload
// it always fetches the configured URL; otherwise it prefers the local file
// and downloads only when the file is missing.
func (s *Store) load(ctx context.Context, family domain.Family, forceDownload bool) (string, *domain.DatasetSnapshot, error) {
	path := filepath.Join(s.dataDir, fileNames[family])
	url := s.urls[family]
	source := SourceDisk

	_, statErr := os.Stat(path)
	if forceDownload || statErr != nil {
		if url == "" {
			return "", nil, fmt.Errorf("no source for %s: %s missing and no URL configured", family, path)
		}
		if err := s.download(ctx, url, path); err != nil {
			return "", nil, err
		}
		source = SourceDownloaded
	}

	snap, err := s.parseFile(family, path, source)
	if err != nil {
		return "", nil, err
	}

	s.publish(ctx, snap)
	return source, snap, nil
}

// parseFile reads and parses the family's local file into a snapshot.
// DownloadedAt is the file's modification time unless the bytes were just
// fetched; the mtime is the authoritative fetch time across restarts.
func (s *Store) parseFile(family domain.Family, path, source string) (*domain.DatasetSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	frag, stats, err := domain.ParseWideTable(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	downloadedAt := clock.Now()
	if source == SourceDisk {
		if fi, err := os.Stat(path); err == nil {
			downloadedAt = fi.ModTime()
		}
	}

	s.logger.Info("dataset loaded",
		"family", family,
		"source", source,
		"rows", stats.Rows,
		"kept", stats.Kept,
		"skipped", stats.Skipped,
	)

	return &domain.DatasetSnapshot{
		Family:       family,
		LoadedAt:     clock.Now(),
		DownloadedAt: downloadedAt,
		ZipIndex:     frag.Zip,
		MetroIndex:   frag.Metro,
	}, nil
}

// publish swaps in the new snapshot generation and emits the side effects:
// region-count gauges and the optional refresh notification.
func (s *Store) publish(ctx context.Context, snap *domain.DatasetSnapshot) {
	s.snaps[snap.Family].Store(snap)

	s.metrics.SnapshotRegions.WithLabelValues(string(snap.Family), string(domain.KindZIP)).Set(float64(len(snap.ZipIndex)))
	s.metrics.SnapshotRegions.WithLabelValues(string(snap.Family), string(domain.KindMetro)).Set(float64(len(snap.MetroIndex)))

	if s.notifier != nil {
		if err := s.notifier.NotifyRefresh(ctx, snap); err != nil {
			s.logger.Warn("refresh notification failed", "family", snap.Family, "error", err)
		}
	}
}

// download fetches url into path, replacing the previous file only after a
// complete write. Partial files are removed on error so a later load never
// parses a truncated dataset.
func (s *Store) download(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", tmp, err)
	}

	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(tmp) // best-effort cleanup of a partial file
		}
	}()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("writing file %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing file %s: %w", tmp, err)
	}
	success = true

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
