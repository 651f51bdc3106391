// Package resolve turns free-text dimension labels into canonical entity ids.
//
// Resolution runs as a cascade: an in-process cache, then the persisted
// mapping table guarded by a bloom prefilter, then a type-specific resolver
// whose outcome is persisted before being returned. Unresolvable outcomes are
// persisted too, so a label is only ever analyzed once.
package resolve

import (
	"context"
	"sync"

	"github.com/statsync/statsync/internal/bloom"
	syncerrors "github.com/statsync/statsync/internal/errors"
	"github.com/statsync/statsync/internal/normalize"
	"github.com/statsync/statsync/internal/store"
	"github.com/statsync/statsync/pkg/types"
)

// Resolution is the outcome of resolving one label. An unresolvable outcome
// is recorded data, not an error: the caller stores the fact row with a null
// reference and moves on.
type Resolution struct {
	EntityID     *int64
	Method       types.ResolutionMethod
	Confidence   float64
	Unresolvable bool
	Reason       string
}

func resolved(id int64, method types.ResolutionMethod, confidence float64) *Resolution {
	return &Resolution{EntityID: &id, Method: method, Confidence: confidence}
}

func unresolvable(reason string) *Resolution {
	return &Resolution{Unresolvable: true, Reason: reason}
}

type cacheKey struct {
	contextType types.ContextType
	contextHint string
	label       string
}

// bytes flattens the key for the prefilter. 0x1f keeps the three parts from
// colliding across field boundaries.
func (k cacheKey) bytes() []byte {
	b := make([]byte, 0, len(k.label)+len(k.contextType)+len(k.contextHint)+2)
	b = append(b, k.label...)
	b = append(b, 0x1f)
	b = append(b, k.contextType...)
	b = append(b, 0x1f)
	b = append(b, k.contextHint...)
	return b
}

// Options tunes the negative-lookup prefilter.
type Options struct {
	PrefilterExpectedKeys int
	PrefilterFPR          float64
}

// Resolver resolves labels for every context type over one store. Safe for
// concurrent use; cache and prefilter are guarded per instance.
type Resolver struct {
	st        *store.Store
	territory *TerritoryMatcher
	period    *TimePeriodResolver
	class     *ClassificationResolver
	unit      *UnitResolver

	prefilter *bloom.Filter

	mu    sync.Mutex
	cache map[cacheKey]*Resolution
}

// New builds a resolver and warms the prefilter from the persisted mapping
// keys, so labels never seen before skip the mapping-table read entirely.
func New(ctx context.Context, st *store.Store, opts Options) (*Resolver, error) {
	if opts.PrefilterExpectedKeys <= 0 {
		opts.PrefilterExpectedKeys = 1 << 16
	}
	if opts.PrefilterFPR <= 0 || opts.PrefilterFPR >= 1 {
		opts.PrefilterFPR = 0.01
	}
	r := &Resolver{
		st:        st,
		territory: NewTerritoryMatcher(st),
		period:    &TimePeriodResolver{st: st},
		class:     &ClassificationResolver{st: st},
		unit:      &UnitResolver{st: st},
		prefilter: bloom.New(opts.PrefilterExpectedKeys, opts.PrefilterFPR),
		cache:     make(map[cacheKey]*Resolution),
	}
	err := st.ListMappingKeys(ctx, func(label string, ct types.ContextType, hint string) {
		r.prefilter.Add(cacheKey{contextType: ct, contextHint: hint, label: label}.bytes())
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve resolves one label in the given context. altLabel is an optional
// fallback spelling tried only when the primary label does not resolve; the
// recorded mapping stays keyed on the primary label. The cascade
// short-circuits on the first hit and persists every fresh outcome,
// unresolvable ones included, before returning.
func (r *Resolver) Resolve(ctx context.Context, contextType types.ContextType, label, altLabel, contextHint string) (*Resolution, error) {
	norm := normalize.Label(label)
	if norm == "" {
		norm = normalize.Label(altLabel)
	}
	key := cacheKey{contextType: contextType, contextHint: contextHint, label: norm}

	r.mu.Lock()
	if res, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return res, nil
	}
	r.mu.Unlock()

	// The prefilter has no false negatives, so a miss proves no mapping row
	// exists and the read can be skipped.
	if r.prefilter.MayContain(key.bytes()) {
		m, err := r.st.GetLabelMapping(ctx, norm, contextType, contextHint)
		if err != nil {
			return nil, err
		}
		if m != nil {
			res := resolutionFromMapping(m, types.MethodExactCacheHit)
			r.remember(key, res)
			return res, nil
		}
	}

	res, err := r.dispatch(ctx, contextType, label, altLabel, contextHint)
	if err != nil {
		return nil, err
	}

	mapping := &types.LabelMapping{
		NormalizedLabel: norm,
		ContextType:     contextType,
		ContextHint:     contextHint,
		Method:          res.Method,
		Confidence:      res.Confidence,
		Unresolvable:    res.Unresolvable,
		Reason:          res.Reason,
	}
	setEntityID(mapping, contextType, res.EntityID)
	if err := r.st.InsertLabelMapping(ctx, mapping); err != nil {
		if !syncerrors.IsDuplicateMapping(err) {
			return nil, err
		}
		// Another resolver recorded this key first; converge to its outcome.
		m, rerr := r.st.GetLabelMapping(ctx, norm, contextType, contextHint)
		if rerr != nil {
			return nil, rerr
		}
		if m != nil {
			res = resolutionFromMapping(m, m.Method)
		}
	}

	r.remember(key, res)
	return res, nil
}

// CacheSize reports the number of in-process cached outcomes.
func (r *Resolver) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

func (r *Resolver) remember(key cacheKey, res *Resolution) {
	r.mu.Lock()
	r.cache[key] = res
	r.mu.Unlock()
	r.prefilter.Add(key.bytes())
}

func (r *Resolver) dispatch(ctx context.Context, contextType types.ContextType, label, altLabel, contextHint string) (*Resolution, error) {
	switch contextType {
	case types.ContextTerritory:
		res, err := r.territory.Match(ctx, label)
		if err != nil {
			return nil, err
		}
		if res.Unresolvable && altLabel != "" {
			alt, err := r.territory.Match(ctx, altLabel)
			if err != nil {
				return nil, err
			}
			if !alt.Unresolvable {
				return alt, nil
			}
		}
		return res, nil
	case types.ContextTimePeriod:
		return r.period.Resolve(ctx, label)
	case types.ContextClassification:
		return r.class.Resolve(ctx, label, contextHint)
	case types.ContextUnit:
		return r.unit.Resolve(ctx, label)
	}
	return unresolvable("unknown context type"), nil
}

func resolutionFromMapping(m *types.LabelMapping, method types.ResolutionMethod) *Resolution {
	return &Resolution{
		EntityID:     m.EntityID(),
		Method:       method,
		Confidence:   m.Confidence,
		Unresolvable: m.Unresolvable,
		Reason:       m.Reason,
	}
}

func setEntityID(m *types.LabelMapping, contextType types.ContextType, id *int64) {
	if id == nil {
		return
	}
	switch contextType {
	case types.ContextTerritory:
		m.TerritoryID = id
	case types.ContextTimePeriod:
		m.TimePeriodID = id
	case types.ContextClassification:
		m.ClassValueID = id
	case types.ContextUnit:
		m.UnitID = id
	}
}
