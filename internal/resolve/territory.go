package resolve

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/statsync/statsync/internal/normalize"
	"github.com/statsync/statsync/internal/store"
	"github.com/statsync/statsync/pkg/types"
)

// TerritoryMatcher resolves free-text territory labels against the pre-seeded
// territory table. It is strictly lookup-only: territories are owned by an
// external seeding process and never created here.
//
// The rule cascade is ordered by specificity and the order is load-bearing:
// county names are substrings of compound region names ("Cluj" sits inside
// "Cluj-Napoca" locality labels, "București" inside "București - Ilfov"), so
// codes, exact totals, and county exact-match run before the broader region
// containment rule.
type TerritoryMatcher struct {
	st *store.Store
}

// NewTerritoryMatcher creates a matcher over the given store.
func NewTerritoryMatcher(st *store.Store) *TerritoryMatcher {
	return &TerritoryMatcher{st: st}
}

// Fixed aggregate categories that carry their own territory code.
var fixedAggregates = map[string]string{
	"EXTRA-REGIO":       "ROZZ",
	"EXTRA-REGIO NUTS2": "ROZZ",
	"EXTRA REGIO":       "ROZZ",
}

// multiNamePattern detects "X, Y" aggregate labels naming several
// territories at once. Those are not a single territory and stay unresolved.
var multiNamePattern = regexp.MustCompile(`^[A-Z][A-Z -]*(?:, ?[A-Z][A-Z -]*)+$`)

// codedLabelPattern matches "<4-6 digit code> <name>" locality labels.
var codedLabelPattern = regexp.MustCompile(`^(\d{4,6}) (.+)$`)

// nationalTotals are the label variants for the country total.
var nationalTotals = map[string]bool{
	"TOTAL":      true,
	"TOTAL TARA": true,
	"ROMANIA":    true,
}

// macroregionPattern maps ordinal-word macroregion labels to NUTS1 codes.
var macroregionPattern = regexp.MustCompile(`^MACROREGIUNEA (UNU|DOI|TREI|PATRU)$`)

var macroregionCodes = map[string]string{
	"UNU":   "RO1",
	"DOI":   "RO2",
	"TREI":  "RO3",
	"PATRU": "RO4",
}

// countyCodes maps exact normalized county names to NUTS3 codes.
var countyCodes = map[string]string{
	"ALBA": "AB", "ARAD": "AR", "ARGES": "AG", "BACAU": "BC", "BIHOR": "BH",
	"BISTRITA-NASAUD": "BN", "BOTOSANI": "BT", "BRASOV": "BV", "BRAILA": "BR",
	"BUCURESTI": "B", "BUZAU": "BZ", "CARAS-SEVERIN": "CS", "CALARASI": "CL",
	"CLUJ": "CJ", "CONSTANTA": "CT", "COVASNA": "CV", "DAMBOVITA": "DB",
	"DOLJ": "DJ", "GALATI": "GL", "GIURGIU": "GR", "GORJ": "GJ",
	"HARGHITA": "HR", "HUNEDOARA": "HD", "IALOMITA": "IL", "IASI": "IS",
	"ILFOV": "IF", "MARAMURES": "MM", "MEHEDINTI": "MH", "MURES": "MS",
	"NEAMT": "NT", "OLT": "OT", "PRAHOVA": "PH", "SATU MARE": "SM",
	"SALAJ": "SJ", "SIBIU": "SB", "SUCEAVA": "SV", "TELEORMAN": "TR",
	"TIMIS": "TM", "TULCEA": "TL", "VASLUI": "VS", "VALCEA": "VL",
	"VRANCEA": "VN",
}

// countyQualifiers are label prefixes that still denote the county itself.
var countyQualifiers = []string{"JUDETUL ", "MUNICIPIUL "}

// region is one NUTS2 development region with its containment and
// word-boundary matchers, built once from the canonical normalized name.
type region struct {
	code    string
	name    string         // normalized canonical name
	folded  string         // hyphen-folded form for containment tests
	pattern *regexp.Regexp // word-boundary matcher tolerant of hyphen/space variation
}

var developmentRegions = buildRegions([]struct{ code, name string }{
	{"RO11", "Nord-Vest"},
	{"RO12", "Centru"},
	{"RO21", "Nord-Est"},
	{"RO22", "Sud-Est"},
	{"RO31", "Sud - Muntenia"},
	{"RO32", "București - Ilfov"},
	{"RO41", "Sud-Vest Oltenia"},
	{"RO42", "Vest"},
})

func buildRegions(defs []struct{ code, name string }) []region {
	regions := make([]region, 0, len(defs))
	for _, def := range defs {
		folded := normalize.LabelFoldHyphens(def.name)
		tokens := strings.Fields(folded)
		pattern := regexp.MustCompile(`\b` + strings.Join(tokens, `[ -]+`) + `\b`)
		regions = append(regions, region{
			code:    def.code,
			name:    normalize.Label(def.name),
			folded:  folded,
			pattern: pattern,
		})
	}
	// Longer names first, so "Sud-Vest Oltenia" and "Nord-Vest" are tested
	// before plain "Vest".
	sort.SliceStable(regions, func(i, j int) bool {
		return len(regions[i].folded) > len(regions[j].folded)
	})
	return regions
}

// Match resolves a raw territory label. A nil EntityID with Unresolvable set
// is a recorded data outcome, not an error; errors are store failures only.
func (m *TerritoryMatcher) Match(ctx context.Context, label string) (*Resolution, error) {
	norm := normalize.Label(label)
	if norm == "" {
		return unresolvable("empty territory label"), nil
	}

	// 1. Fixed aggregate categories, and multi-territory aggregates that can
	// never resolve to a single row.
	if code, ok := fixedAggregates[norm]; ok {
		return m.byCode(ctx, code, types.MethodPatternMatch, 1.0)
	}
	if multiNamePattern.MatchString(norm) {
		return unresolvable("aggregate of multiple territories"), nil
	}

	// 2. Capital-city aggregate variants, with or without the surrounding
	// county qualifier.
	if strings.Contains(norm, "BUCURESTI") &&
		(strings.Contains(norm, "INCLUSIV") || strings.Contains(norm, "EXCLUSIV") || norm == "MUNICIPIUL BUCURESTI") {
		return m.byCode(ctx, "B", types.MethodPatternMatch, 1.0)
	}

	// 3. Coded locality labels: the numeric prefix is the external SIRUTA
	// code, with the primary code column as fallback.
	if match := codedLabelPattern.FindStringSubmatch(norm); match != nil {
		code := match[1]
		t, err := m.st.GetTerritoryBySiruta(ctx, code)
		if err != nil {
			return nil, err
		}
		if t == nil {
			t, err = m.st.GetTerritoryByCode(ctx, code)
			if err != nil {
				return nil, err
			}
		}
		if t == nil {
			// Well-formed coded label with no matching row: a data-quality
			// gap in the seed, not a matcher error.
			log.Printf("resolve: territory seed gap: coded label %q has no territory row", label)
			return unresolvable(fmt.Sprintf("no territory for code %s", code)), nil
		}
		return resolved(t.ID, types.MethodCodeBased, 1.0), nil
	}

	// 4. National total variants.
	if nationalTotals[norm] {
		return m.byCode(ctx, "RO", types.MethodPatternMatch, 1.0)
	}

	// 5. Ordinal-word macroregions.
	if match := macroregionPattern.FindStringSubmatch(norm); match != nil {
		return m.byCode(ctx, macroregionCodes[match[1]], types.MethodPatternMatch, 1.0)
	}

	// 6. County exact match, optionally behind a qualifier. Runs before the
	// region containment rule so county names embedded in compound region
	// names resolve to the county.
	if code, ok := matchCounty(norm); ok {
		return m.byCode(ctx, code, types.MethodPatternMatch, 1.0)
	}

	// 7. Development regions, on the hyphen-folded form. The word boundary
	// keeps "VEST" from firing inside unrelated words; plain substring
	// containment would.
	folded := normalize.LabelFoldHyphens(label)
	for _, r := range developmentRegions {
		if folded == r.folded {
			return m.byCode(ctx, r.code, types.MethodPatternMatch, 1.0)
		}
		if r.pattern.MatchString(folded) {
			return m.byCode(ctx, r.code, types.MethodFuzzyMatch, 0.9)
		}
	}

	// 8. Nothing matched.
	return unresolvable("no territory rule matched"), nil
}

func matchCounty(norm string) (string, bool) {
	candidate := norm
	for _, q := range countyQualifiers {
		if strings.HasPrefix(norm, q) {
			candidate = strings.TrimPrefix(norm, q)
			break
		}
	}
	code, ok := countyCodes[candidate]
	return code, ok
}

func (m *TerritoryMatcher) byCode(ctx context.Context, code string, method types.ResolutionMethod, confidence float64) (*Resolution, error) {
	t, err := m.st.GetTerritoryByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if t == nil {
		log.Printf("resolve: territory seed gap: fixed code %s has no territory row", code)
		return unresolvable(fmt.Sprintf("territory code %s not seeded", code)), nil
	}
	return resolved(t.ID, method, confidence), nil
}
