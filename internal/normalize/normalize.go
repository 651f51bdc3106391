// Package normalize provides the deterministic label normalizer used as the
// durable resolution cache key. The output feeds the unique key of the
// label_mappings table, so the transform must be stable across process
// restarts and library upgrades: NFD decomposition, combining-mark removal,
// upper-casing, whitespace collapsing, trimming.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and removes combining diacritical marks, so
// both s-cedilla and s-comma forms of Romanian text normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Label normalizes a raw dimension label: diacritics stripped, upper-cased,
// runs of whitespace collapsed to a single space, trimmed.
func Label(s string) string {
	return collapse(fold(s), false)
}

// LabelFoldHyphens normalizes like Label but additionally treats hyphens as
// spaces. Used where the source data alternates freely between hyphenated and
// spaced forms of the same name.
func LabelFoldHyphens(s string) string {
	return collapse(fold(s), true)
}

func fold(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Malformed input passes through undecomposed; upper-casing and
		// collapsing still apply so the key stays deterministic.
		out = s
	}
	return strings.ToUpper(out)
}

func collapse(s string, foldHyphens bool) string {
	if foldHyphens {
		s = strings.ReplaceAll(s, "-", " ")
	}
	return strings.Join(strings.Fields(s), " ")
}
