package domain

import "time"

// Family identifies one dataset family tracked by the engine.
type Family string

const (
	FamilyHomeValue       Family = "home_value"
	FamilyPricePerSqft    Family = "price_per_sqft"
	FamilyNewConstruction Family = "new_construction"
	FamilyAffordability   Family = "affordability"
	FamilyRenterDemand    Family = "renter_demand"
)

// Families lists every dataset family in refresh order. FamilyHomeValue is
// the primary family: queries cannot be answered without it, and a failed
// refresh of it is an error rather than a degradation.
var Families = []Family{
	FamilyHomeValue,
	FamilyPricePerSqft,
	FamilyNewConstruction,
	FamilyAffordability,
	FamilyRenterDemand,
}

// RegionKind discriminates the two region granularities in a snapshot.
type RegionKind string

const (
	KindZIP   RegionKind = "zip"
	KindMetro RegionKind = "metro"
)

// Observation is one (period, value) point of a monthly series.
// Period is formatted YYYY-MM.
type Observation struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// RegionEntry is one region's complete time series within a dataset family.
// Entries are immutable once constructed; a refresh builds new ones.
type RegionEntry struct {
	Key          string        `json:"key"`
	Kind         RegionKind    `json:"kind"`
	State        string        `json:"state,omitempty"`
	LatestPeriod string        `json:"latest_period"`
	LatestValue  float64       `json:"latest_value"`
	Series       []Observation `json:"series"`
}

// DatasetSnapshot is one immutable generation of a dataset family's indices.
// It is built off to the side and published by pointer swap; readers holding
// an older generation keep a fully consistent (if stale) view.
type DatasetSnapshot struct {
	Family       Family
	LoadedAt     time.Time
	DownloadedAt time.Time
	ZipIndex     map[string]*RegionEntry
	MetroIndex   map[string]*RegionEntry
}

// Lookup returns the entry for key in the index matching kind, or nil.
func (s *DatasetSnapshot) Lookup(key string, kind RegionKind) *RegionEntry {
	if s == nil {
		return nil
	}
	switch kind {
	case KindZIP:
		return s.ZipIndex[key]
	case KindMetro:
		return s.MetroIndex[key]
	}
	return nil
}

// GeoPoint is a latitude/longitude pair produced by the geocoding collaborator.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MatchType records which resolution stage produced a ResolvedRegion.
type MatchType string

const (
	MatchExactZIP     MatchType = "exact_zip"
	MatchExactMetro   MatchType = "exact_metro"
	MatchPrefixMetro  MatchType = "prefix_metro"
	MatchFuzzyMetro   MatchType = "fuzzy_metro"
	MatchNearestMetro MatchType = "nearest_metro"
)

// ResolvedRegion is the outcome of matching one address against a snapshot.
// DistanceMiles is only meaningful for MatchNearestMetro.
type ResolvedRegion struct {
	Entry         *RegionEntry `json:"entry"`
	MatchType     MatchType    `json:"match_type"`
	DistanceMiles float64      `json:"distance_miles,omitempty"`
	Note          string       `json:"note"`
}
