// Command genmock generates deterministic wide-format CSV fixtures for every
// dataset family. The files land in a data directory the engine can serve
// directly, and each one is re-parsed through the domain package so the
// fixtures are guaranteed to match real parser behavior.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data -months 36 -seed 7
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hearthdata/market-engine/internal/domain"
)

// metroDef seeds one metro plus a handful of its ZIP codes.
type metroDef struct {
	name    string
	state   string
	zips    []string
	baseVal float64 // starting home value; other families scale off it
}

var metros = []metroDef{
	{name: "Seattle, WA", state: "WA", zips: []string{"98109", "98103", "98115"}, baseVal: 780000},
	{name: "Austin, TX", state: "TX", zips: []string{"78701", "78704"}, baseVal: 540000},
	{name: "San Francisco, CA", state: "CA", zips: []string{"94103", "94110", "94117"}, baseVal: 1250000},
	{name: "Portland, OR", state: "OR", zips: []string{"97201", "97209"}, baseVal: 520000},
	{name: "Nashville, TN", state: "TN", zips: []string{"37203"}, baseVal: 430000},
	{name: "Boise City, ID", state: "ID", zips: []string{"83702"}, baseVal: 470000},
}

// familyDef controls how one family's values are derived from the metro base.
type familyDef struct {
	family domain.Family
	file   string
	scale  float64 // multiplier applied to the metro base value
	drift  float64 // max month-over-month relative change
}

var families = []familyDef{
	{family: domain.FamilyHomeValue, file: "home_value.csv", scale: 1, drift: 0.012},
	{family: domain.FamilyPricePerSqft, file: "price_per_sqft.csv", scale: 0.00058, drift: 0.01},
	{family: domain.FamilyNewConstruction, file: "new_construction.csv", scale: 0.0004, drift: 0.08},
	{family: domain.FamilyAffordability, file: "affordability.csv", scale: 0.00004, drift: 0.02},
	{family: domain.FamilyRenterDemand, file: "renter_demand.csv", scale: 0.0000018, drift: 0.03},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data", "directory to write fixture CSVs into")
	months := flag.Int("months", 36, "number of monthly observation columns")
	seed := flag.Int64("seed", 1, "RNG seed for reproducible values")
	flag.Parse()

	if *months < 1 {
		return fmt.Errorf("months must be at least 1, got %d", *months)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	periods := monthlyPeriods(*months)
	rng := rand.New(rand.NewSource(*seed))

	for _, fd := range families {
		text := buildFamilyCSV(fd, periods, rng)

		frag, stats, err := domain.ParseWideTable(text)
		if err != nil {
			return fmt.Errorf("%s: generated CSV does not parse: %w", fd.family, err)
		}
		if stats.Skipped > 0 {
			return fmt.Errorf("%s: generated CSV has %d unparseable rows", fd.family, stats.Skipped)
		}

		path := filepath.Join(*outDir, fd.file)
		if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		log.Printf("%s: %d zip + %d metro regions, %d periods -> %s",
			fd.family, len(frag.Zip), len(frag.Metro), len(periods), path)
	}

	printAssertionStats(periods)
	return nil
}

// monthlyPeriods returns months consecutive YYYY-MM strings ending at the
// month before the current one, oldest first.
func monthlyPeriods(months int) []string {
	end := time.Now().UTC().AddDate(0, -1, 0)
	periods := make([]string, months)
	for i := range periods {
		t := end.AddDate(0, i-(months-1), 0)
		periods[i] = t.Format("2006-01")
	}
	return periods
}

func buildFamilyCSV(fd familyDef, periods []string, rng *rand.Rand) string {
	var b strings.Builder

	b.WriteString("RegionName,RegionType,StateName")
	for _, p := range periods {
		b.WriteByte(',')
		b.WriteString(p)
	}
	b.WriteByte('\n')

	for _, m := range metros {
		writeRow(&b, quoteName(m.name), "msa", m.state, walk(m.baseVal*fd.scale, fd.drift, len(periods), rng))
		for _, zip := range m.zips {
			// ZIP values wobble around the metro level.
			base := m.baseVal * fd.scale * (0.85 + 0.3*rng.Float64())
			writeRow(&b, zip, "zip", m.state, walk(base, fd.drift, len(periods), rng))
		}
	}
	return b.String()
}

// walk produces a random walk of n values starting at base. Roughly one cell
// in forty is left blank to mirror the gaps real exports have.
func walk(base, drift float64, n int, rng *rand.Rand) []string {
	vals := make([]string, n)
	v := base
	for i := range vals {
		v *= 1 + drift*(2*rng.Float64()-1)
		if rng.Intn(40) == 0 && i != n-1 {
			vals[i] = "" // keep the last column populated so latest is stable
			continue
		}
		vals[i] = fmt.Sprintf("%.2f", v)
	}
	return vals
}

func writeRow(b *strings.Builder, name, typ, state string, vals []string) {
	b.WriteString(name)
	b.WriteByte(',')
	b.WriteString(typ)
	b.WriteByte(',')
	b.WriteString(state)
	for _, v := range vals {
		b.WriteByte(',')
		b.WriteString(v)
	}
	b.WriteByte('\n')
}

// quoteName wraps metro names in quotes since they embed a comma.
func quoteName(name string) string {
	return `"` + name + `"`
}

func printAssertionStats(periods []string) {
	zipTotal := 0
	for _, m := range metros {
		zipTotal += len(m.zips)
	}
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Metros: %d, ZIPs: %d\n", len(metros), zipTotal)
	fmt.Printf("Periods: %s .. %s (%d)\n", periods[0], periods[len(periods)-1], len(periods))
	fmt.Printf("States: %s\n", statesList())
}

func statesList() string {
	seen := map[string]bool{}
	var out []string
	for _, m := range metros {
		if !seen[m.state] {
			seen[m.state] = true
			out = append(out, m.state)
		}
	}
	return strings.Join(out, ", ")
}
