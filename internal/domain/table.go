package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// periodHeaderRe matches observation column headers: "2023-04" or "2023-04-30".
var periodHeaderRe = regexp.MustCompile(`^(\d{4}-\d{2})(?:-\d{2})?$`)

// TableFragment is the parsed form of one wide CSV file: two region indices
// the caller merges into a snapshot.
type TableFragment struct {
	Zip   map[string]*RegionEntry
	Metro map[string]*RegionEntry
}

// ParseStats summarizes a parse for logging and validation tooling.
type ParseStats struct {
	Rows    int // data rows seen (excluding header)
	Kept    int // rows that produced a RegionEntry
	Skipped int // rows dropped: no region name, unknown type, or no observations
}

// ParseWideTable parses UTF-8 wide-format CSV text into a TableFragment.
//
// The first record is the header. Columns whose header matches YYYY-MM or
// YYYY-MM-DD are observation periods (day-stamped headers are truncated to
// the month); all other columns are metadata. The region-name and region-type
// columns are located by case-insensitive substring match, so exports that
// rename "RegionName" to "Region_Name" still parse. Quoted fields with
// embedded commas ("Seattle, WA") and escaped quotes are handled by the CSV
// reader, not a comma split.
//
// Malformed rows are counted in ParseStats.Skipped and never abort the parse.
func ParseWideTable(text string) (*TableFragment, ParseStats, error) {
	var stats ParseStats

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, stats, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, stats, errors.New("empty dataset: no header row")
	}

	header := records[0]
	cols, err := mapColumns(header)
	if err != nil {
		return nil, stats, err
	}

	frag := &TableFragment{
		Zip:   make(map[string]*RegionEntry),
		Metro: make(map[string]*RegionEntry),
	}

	for _, row := range records[1:] {
		stats.Rows++
		entry := parseRow(row, cols)
		if entry == nil {
			stats.Skipped++
			continue
		}
		stats.Kept++
		switch entry.Kind {
		case KindZIP:
			frag.Zip[entry.Key] = entry
		case KindMetro:
			frag.Metro[entry.Key] = entry
		}
	}

	return frag, stats, nil
}

// columnLayout records where the metadata and period columns live in a header.
type columnLayout struct {
	name    int
	typ     int
	state   int // -1 when absent
	periods []periodColumn
}

type periodColumn struct {
	index  int
	period string // YYYY-MM
}

func mapColumns(header []string) (columnLayout, error) {
	cols := columnLayout{name: -1, typ: -1, state: -1}

	for i, h := range header {
		h = strings.TrimSpace(h)
		if m := periodHeaderRe.FindStringSubmatch(h); m != nil {
			cols.periods = append(cols.periods, periodColumn{index: i, period: m[1]})
			continue
		}
		// "RegionName", "Region_Name", and "region name" all normalize to
		// the same token, so exports with renamed headers still parse.
		norm := normalizeHeader(h)
		switch {
		case cols.name == -1 && strings.Contains(norm, "regionname"):
			cols.name = i
		case cols.typ == -1 && strings.Contains(norm, "regiontype"):
			cols.typ = i
		case cols.state == -1 && strings.Contains(norm, "state"):
			cols.state = i
		}
	}

	if cols.name == -1 {
		return cols, errors.New("dataset header has no region-name column")
	}
	if cols.typ == -1 {
		return cols, errors.New("dataset header has no region-type column")
	}
	if len(cols.periods) == 0 {
		return cols, errors.New("dataset header has no observation columns")
	}
	return cols, nil
}

// parseRow converts one CSV record to a RegionEntry, or nil if the row is
// unusable (missing name, unrecognized type, or zero valid observations).
func parseRow(row []string, cols columnLayout) *RegionEntry {
	name := fieldAt(row, cols.name)
	if name == "" {
		return nil
	}

	var kind RegionKind
	switch strings.ToLower(fieldAt(row, cols.typ)) {
	case "zip":
		kind = KindZIP
	case "msa":
		kind = KindMetro
	default:
		return nil
	}

	series := make([]Observation, 0, len(cols.periods))
	for _, pc := range cols.periods {
		cell := fieldAt(row, pc.index)
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			continue
		}
		series = append(series, Observation{Period: pc.period, Value: v})
	}
	if len(series) == 0 {
		return nil
	}

	key := name
	if kind == KindMetro {
		key = strings.ToUpper(name)
	}

	latest := series[len(series)-1]
	return &RegionEntry{
		Key:          key,
		Kind:         kind,
		State:        fieldAt(row, cols.state),
		LatestPeriod: latest.Period,
		LatestValue:  latest.Value,
		Series:       series,
	}
}

// normalizeHeader lowercases a header cell and strips separators so column
// detection is insensitive to naming style.
func normalizeHeader(h string) string {
	h = strings.ToLower(h)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, h)
}

func fieldAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
