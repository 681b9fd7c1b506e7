package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/golang/geo/s2"
)

// maxFuzzyDistance is the largest Levenshtein distance accepted by the fuzzy
// metro stage. Anything further is more likely a different city than a typo.
const maxFuzzyDistance = 3

// earthRadiusMiles is the sphere radius used for great-circle distances.
const earthRadiusMiles = 3958.8

var (
	// zipRe finds a 5-digit ZIP (optionally ZIP+4) anywhere in an address.
	zipRe = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)

	// cityStateZipRe matches a "<city>, <ST> <zip>" address tail.
	cityStateZipRe = regexp.MustCompile(`([^,]+),\s*([A-Za-z]{2})\s+\d{5}(?:-\d{4})?\s*$`)

	// cityStateRe matches a bare "<city>, <ST>" address tail.
	cityStateRe = regexp.MustCompile(`([^,]+),\s*([A-Za-z]{2})\s*$`)

	stateTokenRe = regexp.MustCompile(`\b([A-Za-z]{2})\b`)
)

// ErrEmptyAddress is returned for an address with no content. It is the only
// hard failure ResolveRegion produces; an address that simply matches nothing
// yields (nil, nil).
var ErrEmptyAddress = errors.New("empty address")

// ResolveRegion matches a free-text address against a dataset snapshot.
//
// Stages, first hit wins: exact ZIP lookup, exact metro lookup, same-state
// metro prefix match, same-state Levenshtein match, and — when a geocoder is
// configured — nearest same-state metro by great-circle distance. A nil
// result with a nil error means no stage matched; callers surface that as a
// data-level note, not an error.
func ResolveRegion(ctx context.Context, address string, snap *DatasetSnapshot, geocoder Geocoder, logger *slog.Logger) (*ResolvedRegion, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrEmptyAddress
	}
	if snap == nil {
		return nil, nil
	}

	// Stage 1: exact ZIP.
	if zip := extractZip(address); zip != "" {
		if entry := snap.ZipIndex[zip]; entry != nil {
			return &ResolvedRegion{
				Entry:     entry,
				MatchType: MatchExactZIP,
				Note:      fmt.Sprintf("matched ZIP %s", zip),
			}, nil
		}
	}

	city, state, ok := splitCityState(address)
	if !ok {
		return nil, nil
	}
	cityUpper := strings.ToUpper(city)
	stateUpper := strings.ToUpper(state)

	// Stage 2: exact metro.
	metroKey := cityUpper + ", " + stateUpper
	if entry := snap.MetroIndex[metroKey]; entry != nil {
		return &ResolvedRegion{
			Entry:     entry,
			MatchType: MatchExactMetro,
			Note:      fmt.Sprintf("matched metro %s", metroKey),
		}, nil
	}

	candidates := sameStateMetros(snap, stateUpper)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Stage 3: prefix metro.
	for _, key := range candidates {
		if strings.HasPrefix(metroCity(key), cityUpper) {
			return &ResolvedRegion{
				Entry:     snap.MetroIndex[key],
				MatchType: MatchPrefixMetro,
				Note:      fmt.Sprintf("prefix-matched %q to metro %s", city, key),
			}, nil
		}
	}

	// Stage 4: fuzzy metro.
	if key, dist := closestByEdits(cityUpper, candidates); dist <= maxFuzzyDistance {
		return &ResolvedRegion{
			Entry:     snap.MetroIndex[key],
			MatchType: MatchFuzzyMetro,
			Note:      fmt.Sprintf("fuzzy-matched %q to metro %s (edit distance %d)", city, key, dist),
		}, nil
	}

	// Stage 5: nearest metro by great-circle distance.
	if geocoder == nil {
		return nil, nil
	}
	return nearestMetro(ctx, address, candidates, snap, geocoder, logger)
}

// nearestMetro geocodes the address and every same-state metro candidate,
// picking the closest. Candidates that fail to geocode are skipped. There is
// deliberately no distance cutoff; the note carries the distance so callers
// can judge a far-flung match for themselves.
func nearestMetro(ctx context.Context, address string, candidates []string, snap *DatasetSnapshot, geocoder Geocoder, logger *slog.Logger) (*ResolvedRegion, error) {
	origin, found, err := geocoder.Geocode(ctx, address)
	if err != nil || !found {
		if err != nil {
			logger.Warn("address geocode failed", "address", address, "error", err)
		}
		return nil, nil
	}

	var (
		bestKey  string
		bestDist = -1.0
	)
	for _, key := range candidates {
		pt, found, err := geocoder.Geocode(ctx, key)
		if err != nil || !found {
			if err != nil {
				logger.Warn("candidate geocode failed", "metro", key, "error", err)
			}
			continue
		}
		d := HaversineMiles(origin, pt)
		if bestDist < 0 || d < bestDist {
			bestKey, bestDist = key, d
		}
	}
	if bestDist < 0 {
		return nil, nil
	}

	return &ResolvedRegion{
		Entry:         snap.MetroIndex[bestKey],
		MatchType:     MatchNearestMetro,
		DistanceMiles: bestDist,
		Note:          fmt.Sprintf("nearest metro %s, %.1f miles away", bestKey, bestDist),
	}, nil
}

// HaversineMiles is the great-circle distance between two points on a sphere
// of radius 3958.8 miles.
func HaversineMiles(a, b GeoPoint) float64 {
	angle := s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng))
	return angle.Radians() * earthRadiusMiles
}

// extractZip returns the first 5-digit ZIP in the address, or "".
func extractZip(address string) string {
	if m := zipRe.FindStringSubmatch(address); m != nil {
		return m[1]
	}
	return ""
}

// splitCityState extracts the city and two-letter state from an address tail.
// It prefers the "<city>, <ST> <zip>" form, then "<city>, <ST>", and finally
// falls back to splitting on commas: second-to-last segment as city, first
// two-letter token of the last segment as state.
func splitCityState(address string) (city, state string, ok bool) {
	if m := cityStateZipRe.FindStringSubmatch(address); m != nil {
		return strings.TrimSpace(m[1]), m[2], true
	}
	if m := cityStateRe.FindStringSubmatch(address); m != nil {
		return strings.TrimSpace(m[1]), m[2], true
	}

	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return "", "", false
	}
	city = strings.TrimSpace(parts[len(parts)-2])
	if m := stateTokenRe.FindStringSubmatch(parts[len(parts)-1]); m != nil {
		state = m[1]
	}
	if city == "" || state == "" {
		return "", "", false
	}
	return city, state, true
}

// sameStateMetros returns the metro keys ending in ", ST", sorted so prefix
// matching picks a deterministic first candidate.
func sameStateMetros(snap *DatasetSnapshot, stateUpper string) []string {
	suffix := ", " + stateUpper
	var keys []string
	for key := range snap.MetroIndex {
		if strings.HasSuffix(key, suffix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// metroCity returns the city portion of a "CITY, ST" metro key.
func metroCity(key string) string {
	if i := strings.LastIndex(key, ","); i >= 0 {
		return key[:i]
	}
	return key
}

// closestByEdits returns the candidate whose city portion has the smallest
// edit distance to city, comparing case-insensitively.
func closestByEdits(city string, candidates []string) (string, int) {
	bestKey, bestDist := "", -1
	lower := strings.ToLower(city)
	for _, key := range candidates {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(metroCity(key)))
		if bestDist < 0 || d < bestDist {
			bestKey, bestDist = key, d
		}
	}
	if bestDist < 0 {
		return "", maxFuzzyDistance + 1
	}
	return bestKey, bestDist
}
