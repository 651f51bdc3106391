package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// NaturalKey derives the fixed-width identity of a fact row from its resolved
// id tuple. The serialization is canonical: classification ids are sorted, a
// null reference serializes distinctly from every numeric id, and fields are
// delimited so adjacent values never bleed into each other. Equal tuples
// always produce equal keys, which makes re-ingestion an upsert instead of a
// duplicate insert.
func NaturalKey(matrixID string, territoryID, timePeriodID *int64, classValueIDs []int64, unitID *int64) string {
	var b strings.Builder
	b.WriteString(matrixID)
	b.WriteByte('|')
	writeRef(&b, territoryID)
	b.WriteByte('|')
	writeRef(&b, timePeriodID)
	b.WriteByte('|')

	sorted := append([]int64(nil), classValueIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte('|')
	writeRef(&b, unitID)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeRef(b *strings.Builder, id *int64) {
	if id == nil {
		b.WriteByte('-')
		return
	}
	b.WriteString(strconv.FormatInt(*id, 10))
}
