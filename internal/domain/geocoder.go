package domain

import "context"

// Geocoder resolves a free-text place query to coordinates.
type Geocoder interface {
	// Geocode returns the best candidate for query. The boolean is false
	// when the provider returned no candidates; an error indicates the
	// call itself failed. Callers treat both the same way: no coordinates.
	Geocode(ctx context.Context, query string) (GeoPoint, bool, error)
}

// NarrativeGenerator synthesizes a short qualitative market summary for a
// resolved region. It is an external collaborator: implementations may call
// a generative model, and failures must degrade to an absent narrative.
type NarrativeGenerator interface {
	MarketNarrative(ctx context.Context, entry *RegionEntry, yearly []YearPoint) (string, error)
}
