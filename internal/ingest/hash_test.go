package ingest

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNaturalKeyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genID := gen.Int64Range(1, 1_000_000)
	genIDs := gen.SliceOf(genID)

	properties.Property("equal tuples produce equal keys", prop.ForAll(
		func(terr, period, unit int64, classIDs []int64) bool {
			a := NaturalKey("POP107A", &terr, &period, classIDs, &unit)
			b := NaturalKey("POP107A", &terr, &period, classIDs, &unit)
			return a == b
		},
		genID, genID, genID, genIDs,
	))

	properties.Property("classification order never changes the key", prop.ForAll(
		func(terr int64, classIDs []int64) bool {
			reversed := make([]int64, len(classIDs))
			for i, id := range classIDs {
				reversed[len(classIDs)-1-i] = id
			}
			return NaturalKey("POP107A", &terr, nil, classIDs, nil) ==
				NaturalKey("POP107A", &terr, nil, reversed, nil)
		},
		genID, genIDs,
	))

	properties.Property("keys are fixed-width hex", prop.ForAll(
		func(terr, period int64) bool {
			key := NaturalKey("POP107A", &terr, &period, nil, nil)
			if len(key) != 64 {
				return false
			}
			for _, c := range key {
				if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
					return false
				}
			}
			return true
		},
		genID, genID,
	))

	properties.Property("distinct territory ids produce distinct keys", prop.ForAll(
		func(a, b int64) bool {
			if a == b {
				return true
			}
			return NaturalKey("POP107A", &a, nil, nil, nil) !=
				NaturalKey("POP107A", &b, nil, nil, nil)
		},
		genID, genID,
	))

	properties.TestingRun(t)
}

func TestNaturalKeyNullReferences(t *testing.T) {
	id := int64(1)

	// A null reference is not the same identity as any numeric id.
	withID := NaturalKey("POP107A", &id, nil, nil, nil)
	withNull := NaturalKey("POP107A", nil, nil, nil, nil)
	if withID == withNull {
		t.Error("null territory collides with territory id 1")
	}

	// Null in one position is distinct from null in another.
	nullPeriod := NaturalKey("POP107A", &id, nil, nil, nil)
	nullTerritory := NaturalKey("POP107A", nil, &id, nil, nil)
	if nullPeriod == nullTerritory {
		t.Error("id position does not affect the key")
	}
}

func TestNaturalKeyMatrixScoped(t *testing.T) {
	id := int64(7)
	if NaturalKey("POP107A", &id, &id, nil, &id) == NaturalKey("SOM101B", &id, &id, nil, &id) {
		t.Error("same tuple in different matrices shares a key")
	}
}
