package resolve

import (
	"context"
	"strings"

	"github.com/statsync/statsync/internal/normalize"
	"github.com/statsync/statsync/internal/store"
	"github.com/statsync/statsync/pkg/types"
)

// defaultTypeCode groups labels that arrive without a classification type.
const defaultTypeCode = "GENERAL"

// totalValueName is the normalized name of a type's root aggregate value.
const totalValueName = "TOTAL"

// ClassificationResolver creates classification values on demand under the
// type named by the context hint. Values deduplicate on normalized name, so
// spelling variants of one category converge to a single row.
type ClassificationResolver struct {
	st *store.Store
}

func (c *ClassificationResolver) Resolve(ctx context.Context, label, typeCode string) (*Resolution, error) {
	norm := normalize.Label(label)
	if norm == "" {
		return unresolvable("empty classification label"), nil
	}
	if typeCode == "" {
		typeCode = defaultTypeCode
	}

	typeID, err := c.st.GetOrCreateClassificationType(ctx, typeCode, typeCode)
	if err != nil {
		return nil, err
	}

	// Non-total values hang off the type's TOTAL aggregate when one exists,
	// giving each type a shallow rollup hierarchy.
	var parentID *int64
	if norm != totalValueName {
		total, err := c.st.GetClassificationValue(ctx, typeID, totalValueName)
		if err != nil {
			return nil, err
		}
		if total != nil {
			parentID = &total.ID
		}
	}

	id, err := c.st.GetOrCreateClassificationValue(ctx, typeID, strings.TrimSpace(label), norm, parentID)
	if err != nil {
		return nil, err
	}
	return resolved(id, types.MethodPatternMatch, 1.0), nil
}

// UnitOfMeasure labels deduplicate on normalized name only; units carry no
// hierarchy or type.
type UnitResolver struct {
	st *store.Store
}

func (u *UnitResolver) Resolve(ctx context.Context, label string) (*Resolution, error) {
	norm := normalize.Label(label)
	if norm == "" {
		return unresolvable("empty unit label"), nil
	}
	id, err := u.st.GetOrCreateUnit(ctx, strings.TrimSpace(label), norm)
	if err != nil {
		return nil, err
	}
	return resolved(id, types.MethodPatternMatch, 1.0), nil
}
