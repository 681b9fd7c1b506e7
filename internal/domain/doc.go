// Package domain models wide-format housing market time series and the
// resolution of free-text addresses to the regions those series describe.
//
// # Data Source
//
// Market indicators come from research CSV exports in the "wide" layout:
// one row per region, one column per calendar month. Five dataset families
// are tracked — a smoothed median home value index (ZHVI-style), median
// price per square foot, new-construction sales volume, an affordability
// index, and a renter-demand index. Each family publishes the same column
// conventions:
//
//	RegionName  the region key: a 5-digit ZIP code or a "City, ST" metro name
//	RegionType  "zip" or "msa" (case-insensitive); other values are ignored
//	State*      optional two-letter state column
//	YYYY-MM     one observation column per month; some exports use
//	            YYYY-MM-DD day-stamped headers, truncated to the month here
//
// Metadata columns are located by case-insensitive substring match so that
// variants like "RegionName"/"Region_Name" or "StateName"/"State" all work.
//
// # Observation Semantics
//
// A cell is a valid observation only when it is non-empty and numeric. The
// "latest" value for a region is the last column, in column order, that
// parsed successfully — trailing blanks are common in fresh exports where
// the newest month has not been computed for every region yet.
//
// Rows that yield no usable region name or not a single valid observation
// are skipped, never fatal: one malformed row must not abort a 30k-row file.
//
// # Region Resolution
//
// A free-text address is matched to a region in five stages, first hit wins:
// exact ZIP lookup, exact "CITY, ST" metro lookup, prefix match against
// same-state metros, Levenshtein fuzzy match (distance ≤ 3) against the same
// candidate set, and finally nearest-metro by great-circle distance using a
// geocoding collaborator. Each stage is strictly weaker than the previous
// one, so the match type on the result doubles as a confidence signal.
package domain
