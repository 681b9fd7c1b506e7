// Command validate runs integrity checks over a data directory of wide-format
// dataset CSVs: every family file parses, region keys are well formed, the
// primary family is present, and auxiliary families reference regions the
// primary family knows about.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hearthdata/market-engine/internal/domain"
)

var fileNames = map[domain.Family]string{
	domain.FamilyHomeValue:       "home_value.csv",
	domain.FamilyPricePerSqft:    "price_per_sqft.csv",
	domain.FamilyNewConstruction: "new_construction.csv",
	domain.FamilyAffordability:   "affordability.csv",
	domain.FamilyRenterDemand:    "renter_demand.csv",
}

var (
	zipKeyRe   = regexp.MustCompile(`^\d{5}$`)
	metroKeyRe = regexp.MustCompile(`^[^,]+, [A-Z]{2}$`)
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// parsedFamily is one loaded family file plus its parse stats.
type parsedFamily struct {
	frag  *domain.TableFragment
	stats domain.ParseStats
}

func main() {
	dataDir := flag.String("data-dir", "data", "directory containing family CSV files")
	flag.Parse()

	os.Exit(run(*dataDir))
}

func run(dataDir string) int {
	fmt.Println("=== Market Dataset Integrity Validation ===")
	fmt.Println()

	loaded := map[domain.Family]parsedFamily{}
	loadPhase := &phase{name: "Phase 1: Parse (all family files)"}
	for _, family := range domain.Families {
		path := filepath.Join(dataDir, fileNames[family])
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && family != domain.FamilyHomeValue {
				fmt.Printf("  note: %s absent, skipping\n", fileNames[family])
				continue
			}
			loadPhase.errorf("%s: %v", family, err)
			continue
		}

		frag, stats, err := domain.ParseWideTable(string(data))
		if err != nil {
			loadPhase.errorf("%s: %v", family, err)
			continue
		}
		loaded[family] = parsedFamily{frag: frag, stats: stats}
		fmt.Printf("  %s: %d rows, %d kept, %d skipped (%d zip, %d metro)\n",
			family, stats.Rows, stats.Kept, stats.Skipped, len(frag.Zip), len(frag.Metro))
	}

	phases := []*phase{
		loadPhase,
		validateKeys(loaded),
		validateSeries(loaded),
		validateCrossFamily(loaded),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-44s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateKeys checks the shape of every region key: 5-digit ZIPs and
// upper-cased "CITY, ST" metros.
func validateKeys(loaded map[domain.Family]parsedFamily) *phase {
	p := &phase{name: "Phase 2: Region keys (shape and casing)"}

	for family, pf := range loaded {
		for key := range pf.frag.Zip {
			if !zipKeyRe.MatchString(key) {
				p.errorf("%s: zip key %q is not 5 digits", family, key)
			}
		}
		for key, entry := range pf.frag.Metro {
			if key != strings.ToUpper(key) {
				p.errorf("%s: metro key %q is not upper-cased", family, key)
			}
			if !metroKeyRe.MatchString(key) {
				p.errorf("%s: metro key %q is not CITY, ST form", family, key)
			}
			if entry.State != "" && !strings.HasSuffix(key, ", "+strings.ToUpper(entry.State)) {
				p.errorf("%s: metro key %q does not end in its state %q", family, key, entry.State)
			}
		}
	}
	return p
}

// validateSeries checks per-entry invariants: the latest observation matches
// the series tail and periods are strictly increasing.
func validateSeries(loaded map[domain.Family]parsedFamily) *phase {
	p := &phase{name: "Phase 3: Series (ordering and latest)"}

	for family, pf := range loaded {
		check := func(entry *domain.RegionEntry) {
			if len(entry.Series) == 0 {
				p.errorf("%s %s: empty series", family, entry.Key)
				return
			}
			last := entry.Series[len(entry.Series)-1]
			if entry.LatestPeriod != last.Period || entry.LatestValue != last.Value {
				p.errorf("%s %s: latest (%s, %g) does not match series tail (%s, %g)",
					family, entry.Key, entry.LatestPeriod, entry.LatestValue, last.Period, last.Value)
			}
			for i := 1; i < len(entry.Series); i++ {
				if entry.Series[i].Period <= entry.Series[i-1].Period {
					p.errorf("%s %s: periods not increasing at %s", family, entry.Key, entry.Series[i].Period)
					break
				}
			}
		}
		for _, entry := range pf.frag.Zip {
			check(entry)
		}
		for _, entry := range pf.frag.Metro {
			check(entry)
		}
	}
	return p
}

// validateCrossFamily checks that the primary family exists and that
// auxiliary regions are anchored in it, so auxiliary indicators can actually
// be attached to resolved queries.
func validateCrossFamily(loaded map[domain.Family]parsedFamily) *phase {
	p := &phase{name: "Phase 4: Cross-family (anchored in primary)"}

	primary, ok := loaded[domain.FamilyHomeValue]
	if !ok {
		p.errorf("primary family %s is missing; queries cannot be served", domain.FamilyHomeValue)
		return p
	}
	if len(primary.frag.Metro) == 0 {
		p.errorf("primary family has no metro regions; address resolution will always fail")
	}

	for family, pf := range loaded {
		if family == domain.FamilyHomeValue {
			continue
		}
		orphans := 0
		for key := range pf.frag.Zip {
			if primary.frag.Zip[key] == nil {
				orphans++
			}
		}
		for key := range pf.frag.Metro {
			if primary.frag.Metro[key] == nil {
				orphans++
			}
		}
		if orphans > 0 {
			p.errorf("%s: %d regions unknown to the primary family (indicator will never be served)", family, orphans)
		}
	}
	return p
}
