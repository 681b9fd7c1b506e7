package domain

// MaxSeriesPoints caps how many monthly observations are included in a
// response payload. Value-index exports go back to 2000 (300+ months); the
// cap keeps payloads bounded without touching the stored series.
const MaxSeriesPoints = 240

// YearPoint is one point of a yearly rollup.
type YearPoint struct {
	Year  string  `json:"year"`
	Value float64 `json:"value"`
}

// YearlySeries collapses an ordered monthly series to one point per year.
// Each year's value is the latest month observed for that year, not an
// average: a year in progress reports its most recent reading.
func YearlySeries(series []Observation) []YearPoint {
	var (
		out  []YearPoint
		seen = make(map[string]int)
	)
	for _, obs := range series {
		if len(obs.Period) < 4 {
			continue
		}
		year := obs.Period[:4]
		if i, ok := seen[year]; ok {
			out[i].Value = obs.Value
			continue
		}
		seen[year] = len(out)
		out = append(out, YearPoint{Year: year, Value: obs.Value})
	}
	return out
}

// TruncateSeries returns the most recent max points of series. The input is
// returned unchanged when it already fits; no copy is made either way, so
// callers must treat the result as read-only.
func TruncateSeries(series []Observation, max int) []Observation {
	if max <= 0 || len(series) <= max {
		return series
	}
	return series[len(series)-max:]
}
