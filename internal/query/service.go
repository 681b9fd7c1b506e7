package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/hearthdata/market-engine/internal/observability"
)

// fieldNarrative requests the generated market narrative; every other field
// name is a dataset family.
const fieldNarrative = "narrative"

// SnapshotProvider hands out the current snapshot for a family, lazily
// bootstrapping it if needed. Implemented by dataset.Store.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, family domain.Family) (*domain.DatasetSnapshot, error)
}

// LookupRequest is one address query. Region, when set, bypasses resolution
// and fetches the named metro directly. An empty Fields slice requests all
// indicator families.
type LookupRequest struct {
	Address string
	Region  string
	Fields  []string
}

// FamilySeries is the response shape of one indicator family for the
// resolved region.
type FamilySeries struct {
	LatestPeriod string               `json:"latest_period"`
	LatestValue  float64              `json:"latest_value"`
	Yearly       []domain.YearPoint   `json:"yearly"`
	Monthly      []domain.Observation `json:"monthly"`
}

// LookupResult is the fully assembled payload for one address query.
// Unavailable is set (with Note explaining why) when no region matched;
// that is a data-level outcome, not an error.
type LookupResult struct {
	Address       string                          `json:"address"`
	Unavailable   bool                            `json:"unavailable,omitempty"`
	Note          string                          `json:"note,omitempty"`
	RegionKey     string                          `json:"region_key,omitempty"`
	RegionKind    domain.RegionKind               `json:"region_kind,omitempty"`
	MatchType     domain.MatchType                `json:"match_type,omitempty"`
	DistanceMiles float64                         `json:"distance_miles,omitempty"`
	Indicators    map[domain.Family]*FamilySeries `json:"indicators,omitempty"`
	Narrative     string                          `json:"narrative,omitempty"`
	Cached        bool                            `json:"cached"`
}

// Service composes resolution, aggregation, auxiliary family lookup, and the
// response cache into the engine's query surface.
type Service struct {
	provider  SnapshotProvider
	geocoder  domain.Geocoder           // nil disables the nearest-metro stage
	narrative domain.NarrativeGenerator // nil disables the narrative field
	cache     *responseCache
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService creates a Service. geocoder and narrative may be nil.
func NewService(provider SnapshotProvider, geocoder domain.Geocoder, narrative domain.NarrativeGenerator, cacheTTL time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		provider:  provider,
		geocoder:  geocoder,
		narrative: narrative,
		cache:     newResponseCache(cacheTTL, clock),
		logger:    logger,
		metrics:   metrics,
	}
}

// Lookup answers one address query, serving from the response cache when a
// fresh entry exists. A no-match is returned as an Unavailable result, never
// an error; errors mean the query itself could not be processed.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	if strings.TrimSpace(req.Address) == "" && req.Region == "" {
		return nil, domain.ErrEmptyAddress
	}

	key := cacheKey(req.Address, req.Region, req.Fields)
	if hit, ok := s.cache.get(key); ok {
		s.metrics.ResponseCache.WithLabelValues("hit").Inc()
		cached := *hit
		cached.Cached = true
		return &cached, nil
	}
	s.metrics.ResponseCache.WithLabelValues("miss").Inc()

	result, err := s.assemble(ctx, req)
	if err != nil {
		s.metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if result.Unavailable {
		s.metrics.QueriesTotal.WithLabelValues("no_match").Inc()
	} else {
		s.metrics.QueriesTotal.WithLabelValues("resolved").Inc()
	}

	s.cache.put(key, result)
	return result, nil
}

func (s *Service) assemble(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	valueSnap, err := s.provider.Snapshot(ctx, domain.FamilyHomeValue)
	if err != nil {
		return nil, fmt.Errorf("home value snapshot: %w", err)
	}

	resolved, err := s.resolve(ctx, req, valueSnap)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return &LookupResult{
			Address:     req.Address,
			Unavailable: true,
			Note:        "no market region matched this address",
		}, nil
	}
	s.metrics.ResolutionsTotal.WithLabelValues(string(resolved.MatchType)).Inc()

	result := &LookupResult{
		Address:       req.Address,
		RegionKey:     resolved.Entry.Key,
		RegionKind:    resolved.Entry.Kind,
		MatchType:     resolved.MatchType,
		DistanceMiles: resolved.DistanceMiles,
		Note:          resolved.Note,
		Indicators:    make(map[domain.Family]*FamilySeries),
	}

	want := wantedFields(req.Fields)
	for _, family := range domain.Families {
		if !want[string(family)] {
			continue
		}
		entry := resolved.Entry
		if family != domain.FamilyHomeValue {
			entry = s.auxiliaryEntry(ctx, family, resolved.Entry)
			if entry == nil {
				continue
			}
		}
		result.Indicators[family] = buildSeries(entry)
	}

	if want[fieldNarrative] && s.narrative != nil {
		home := result.Indicators[domain.FamilyHomeValue]
		yearly := domain.YearlySeries(resolved.Entry.Series)
		if home != nil {
			yearly = home.Yearly
		}
		text, err := s.narrative.MarketNarrative(ctx, resolved.Entry, yearly)
		if err != nil {
			s.logger.Warn("narrative generation failed", "region", resolved.Entry.Key, "error", err)
		} else {
			result.Narrative = text
		}
	}

	return result, nil
}

// resolve maps the request to a region: either the explicit metro override
// or the full multi-stage resolution of the address.
func (s *Service) resolve(ctx context.Context, req LookupRequest, snap *domain.DatasetSnapshot) (*domain.ResolvedRegion, error) {
	if req.Region != "" {
		entry := snap.Lookup(strings.ToUpper(strings.TrimSpace(req.Region)), domain.KindMetro)
		if entry == nil {
			return nil, nil
		}
		return &domain.ResolvedRegion{
			Entry:     entry,
			MatchType: domain.MatchExactMetro,
			Note:      fmt.Sprintf("region override %q", req.Region),
		}, nil
	}

	start := time.Now()
	resolved, err := domain.ResolveRegion(ctx, req.Address, snap, s.geocoder, s.logger)
	s.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	return resolved, err
}

// auxiliaryEntry finds the same region in an auxiliary family's snapshot.
// Auxiliary families degrade silently: a missing snapshot or key just omits
// that indicator from the payload.
func (s *Service) auxiliaryEntry(ctx context.Context, family domain.Family, resolved *domain.RegionEntry) *domain.RegionEntry {
	snap, err := s.provider.Snapshot(ctx, family)
	if err != nil {
		s.logger.Warn("auxiliary family unavailable", "family", family, "error", err)
		return nil
	}
	return snap.Lookup(resolved.Key, resolved.Kind)
}

func buildSeries(entry *domain.RegionEntry) *FamilySeries {
	return &FamilySeries{
		LatestPeriod: entry.LatestPeriod,
		LatestValue:  entry.LatestValue,
		Yearly:       domain.YearlySeries(entry.Series),
		Monthly:      domain.TruncateSeries(entry.Series, domain.MaxSeriesPoints),
	}
}

// wantedFields expands the request's field filter into a lookup set. An
// empty filter selects every family plus the narrative.
func wantedFields(fields []string) map[string]bool {
	want := make(map[string]bool, len(domain.Families)+1)
	if len(fields) == 0 {
		for _, family := range domain.Families {
			want[string(family)] = true
		}
		want[fieldNarrative] = true
		return want
	}
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			want[f] = true
		}
	}
	return want
}
