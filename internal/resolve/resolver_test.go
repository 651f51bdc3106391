package resolve

import (
	"context"
	"testing"

	"github.com/statsync/statsync/internal/store"
	"github.com/statsync/statsync/pkg/types"
)

func newTestResolver(t *testing.T, st *store.Store) *Resolver {
	t.Helper()
	r, err := New(context.Background(), st, Options{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func TestResolveCascadePersistsAndCaches(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()

	r := newTestResolver(t, st)
	first, err := r.Resolve(ctx, types.ContextTerritory, "Judetul Cluj", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.Unresolvable {
		t.Fatalf("first resolve unresolvable: %s", first.Reason)
	}
	if first.Method != types.MethodPatternMatch {
		t.Errorf("fresh resolve method = %s, want %s", first.Method, types.MethodPatternMatch)
	}

	// Same instance: served from the in-process cache, outcome unchanged.
	again, err := r.Resolve(ctx, types.ContextTerritory, "Judetul Cluj", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if *again.EntityID != *first.EntityID {
		t.Errorf("cached resolve diverged: %d vs %d", *again.EntityID, *first.EntityID)
	}
	if r.CacheSize() != 1 {
		t.Errorf("cache size = %d, want 1", r.CacheSize())
	}

	// Fresh instance over the same store: served from the persisted mapping.
	r2 := newTestResolver(t, st)
	persisted, err := r2.Resolve(ctx, types.ContextTerritory, "Judetul Cluj", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if persisted.Method != types.MethodExactCacheHit {
		t.Errorf("persisted resolve method = %s, want %s", persisted.Method, types.MethodExactCacheHit)
	}
	if *persisted.EntityID != *first.EntityID {
		t.Errorf("persisted resolve diverged: %d vs %d", *persisted.EntityID, *first.EntityID)
	}
}

func TestResolvePersistsUnresolvableOutcome(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()

	r := newTestResolver(t, st)
	res, err := r.Resolve(ctx, types.ContextTerritory, "Planeta Marte", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Unresolvable {
		t.Fatalf("want unresolvable, got %+v", res)
	}

	m, err := st.GetLabelMapping(ctx, "PLANETA MARTE", types.ContextTerritory, "")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if m == nil {
		t.Fatal("unresolvable outcome was not persisted")
	}
	if !m.Unresolvable || m.EntityID() != nil {
		t.Errorf("persisted mapping = %+v, want unresolvable null outcome", m)
	}

	// A fresh instance must serve the recorded outcome without re-analyzing.
	r2 := newTestResolver(t, st)
	res2, err := r2.Resolve(ctx, types.ContextTerritory, "Planeta Marte", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res2.Unresolvable {
		t.Errorf("recorded unresolvable outcome not honored: %+v", res2)
	}
}

func TestResolveHonorsManualOverride(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()
	cjID := territoryID(t, st, "CJ")

	// An operator can pre-record a mapping for a label no rule handles.
	err := st.InsertLabelMapping(ctx, &types.LabelMapping{
		NormalizedLabel: "ZONA METROPOLITANA CLUJ",
		ContextType:     types.ContextTerritory,
		TerritoryID:     &cjID,
		Method:          types.MethodManualOverride,
		Confidence:      1.0,
	})
	if err != nil {
		t.Fatalf("insert override: %v", err)
	}

	r := newTestResolver(t, st)
	res, err := r.Resolve(ctx, types.ContextTerritory, "Zona metropolitană Cluj", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Unresolvable {
		t.Fatalf("override not honored: %s", res.Reason)
	}
	if *res.EntityID != cjID {
		t.Errorf("override resolved to %d, want %d", *res.EntityID, cjID)
	}
}

func TestResolveAltLabelFallback(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()

	r := newTestResolver(t, st)
	res, err := r.Resolve(ctx, types.ContextTerritory, "Necunoscut", "Judetul Cluj", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Unresolvable {
		t.Fatalf("alt label fallback failed: %s", res.Reason)
	}
	if want := territoryID(t, st, "CJ"); *res.EntityID != want {
		t.Errorf("resolved to %d, want %d", *res.EntityID, want)
	}

	// The mapping stays keyed on the primary label.
	m, err := st.GetLabelMapping(ctx, "NECUNOSCUT", types.ContextTerritory, "")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if m == nil {
		t.Fatal("no mapping recorded under the primary label")
	}
}

func TestResolveClassificationHierarchy(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()
	r := newTestResolver(t, st)

	total, err := r.Resolve(ctx, types.ContextClassification, "Total", "", "VARSTA")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	band, err := r.Resolve(ctx, types.ContextClassification, "0-4 ani", "", "VARSTA")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if total.Unresolvable || band.Unresolvable {
		t.Fatalf("classification labels unresolvable: %+v %+v", total, band)
	}

	typeID, err := st.GetOrCreateClassificationType(ctx, "VARSTA", "VARSTA")
	if err != nil {
		t.Fatalf("type lookup: %v", err)
	}
	v, err := st.GetClassificationValue(ctx, typeID, "0-4 ANI")
	if err != nil || v == nil {
		t.Fatalf("value lookup: %v %v", v, err)
	}
	if v.ParentID == nil || *v.ParentID != *total.EntityID {
		t.Errorf("band parent = %v, want TOTAL value %d", v.ParentID, *total.EntityID)
	}
}

func TestResolveUnitSpellingsConverge(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()
	r := newTestResolver(t, st)

	a, err := r.Resolve(ctx, types.ContextUnit, "Numar persoane", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := r.Resolve(ctx, types.ContextUnit, "NUMĂR  PERSOANE", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Unresolvable || b.Unresolvable {
		t.Fatalf("unit labels unresolvable: %+v %+v", a, b)
	}
	if *a.EntityID != *b.EntityID {
		t.Errorf("unit spellings diverged: %d vs %d", *a.EntityID, *b.EntityID)
	}
}

func TestResolveContextHintSeparatesKeys(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()
	r := newTestResolver(t, st)

	a, err := r.Resolve(ctx, types.ContextClassification, "Total", "", "VARSTA")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := r.Resolve(ctx, types.ContextClassification, "Total", "", "SEXE")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if *a.EntityID == *b.EntityID {
		t.Error("same label under different hints shares a value row")
	}
}
