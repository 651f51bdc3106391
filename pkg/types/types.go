// Package types defines the shared domain model for the statsync ingestion
// engine: canonical entities, label mappings, raw chunk rows, and fact rows.
package types

import "time"

// ContextType identifies the kind of canonical entity a label resolves to.
type ContextType string

const (
	ContextTerritory      ContextType = "territory"
	ContextTimePeriod     ContextType = "time_period"
	ContextClassification ContextType = "classification"
	ContextUnit           ContextType = "unit"
)

// TerritoryLevel is the hierarchy level of a territory row.
type TerritoryLevel string

const (
	LevelNational TerritoryLevel = "NATIONAL" // the country total (code RO)
	LevelNUTS1    TerritoryLevel = "NUTS1"    // macroregions RO1-RO4
	LevelNUTS2    TerritoryLevel = "NUTS2"    // development regions RO11-RO42
	LevelNUTS3    TerritoryLevel = "NUTS3"    // counties
	LevelLAU      TerritoryLevel = "LAU"      // localities, keyed by SIRUTA code
)

// Territory is a pre-seeded administrative territory. Rows are owned by an
// external seeding process and are read-only for the ingestion engine.
type Territory struct {
	ID         int64
	Code       string
	SirutaCode string // external locality code, empty above LAU level
	Level      TerritoryLevel
	ParentID   *int64
	Path       string // materialized hierarchy path, e.g. RO.RO1.RO11.CJ
	NameRO     string
	NameEN     string
}

// Periodicity classifies a time period's granularity.
type Periodicity string

const (
	PeriodicityAnnual    Periodicity = "ANNUAL"
	PeriodicityQuarterly Periodicity = "QUARTERLY"
	PeriodicityMonthly   Periodicity = "MONTHLY"
)

// TimePeriod is a canonical time period, created on demand during resolution.
// Quarter and Month are zero when not applicable for the periodicity.
type TimePeriod struct {
	ID          int64
	Year        int
	Quarter     int
	Month       int
	Periodicity Periodicity
	Label       string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// ClassificationType is a typed category tree (age bands, sectors, ...).
type ClassificationType struct {
	ID   int64
	Code string
	Name string
}

// ClassificationValue is a category under a ClassificationType, created on
// demand, optionally parented for hierarchical types.
type ClassificationValue struct {
	ID       int64
	TypeID   int64
	Code     string
	Name     string
	ParentID *int64
}

// UnitOfMeasure is a canonical measurement unit, created on demand.
type UnitOfMeasure struct {
	ID   int64
	Code string
	Name string
}

// ResolutionMethod tags how a label was resolved. The tag is informational
// only and never changes resolution behavior.
type ResolutionMethod string

const (
	MethodExactCacheHit  ResolutionMethod = "exact-cache-hit"
	MethodPatternMatch   ResolutionMethod = "pattern-match"
	MethodFuzzyMatch     ResolutionMethod = "fuzzy-match"
	MethodManualOverride ResolutionMethod = "manual-override"
	MethodCodeBased      ResolutionMethod = "code-based"
)

// LabelMapping is the durable resolution record for one normalized label.
// At most one row exists per (NormalizedLabel, ContextType, ContextHint);
// once written the row is never rewritten by normal operation, so concurrent
// resolution attempts converge to the first-ever recorded outcome.
type LabelMapping struct {
	ID              int64
	NormalizedLabel string
	ContextType     ContextType
	ContextHint     string
	TerritoryID     *int64
	TimePeriodID    *int64
	ClassValueID    *int64
	UnitID          *int64
	Method          ResolutionMethod
	Confidence      float64
	Unresolvable    bool
	Reason          string
	CreatedAt       time.Time
}

// EntityID returns whichever canonical id the mapping carries, or nil for an
// unresolvable mapping.
func (m *LabelMapping) EntityID() *int64 {
	switch {
	case m.TerritoryID != nil:
		return m.TerritoryID
	case m.TimePeriodID != nil:
		return m.TimePeriodID
	case m.ClassValueID != nil:
		return m.ClassValueID
	case m.UnitID != nil:
		return m.UnitID
	}
	return nil
}

// ClassificationLabel pairs a raw category label with the classification type
// it belongs to. TypeCode doubles as the mapping context hint.
type ClassificationLabel struct {
	TypeCode string `json:"type_code"`
	Label    string `json:"label"`
}

// RawRow is one observation as delivered by the fetch collaborator: free-text
// dimension labels plus a numeric value. A nil Value is the source's missing
// marker.
type RawRow struct {
	TerritoryLabel    string                `json:"territory,omitempty"`
	TerritoryAlt      string                `json:"territory_alt,omitempty"`
	TimePeriodLabel   string                `json:"time_period,omitempty"`
	Classifications   []ClassificationLabel `json:"classifications,omitempty"`
	UnitLabel         string                `json:"unit,omitempty"`
	Value             *float64              `json:"value"`
}

// Chunk is a bounded subset of a matrix's dimension cross-product, fetched
// and checkpointed as one unit. The signature is the encoded selection-id
// list and can run to several kilobytes for locality-enumerating matrices.
type Chunk struct {
	MatrixID  string   `json:"matrix_id"`
	Signature string   `json:"signature"`
	Rows      []RawRow `json:"rows"`
}

// Statistic is a fact row. NaturalKey is the fixed-width hash over the full
// resolved-id tuple and is the upsert conflict target.
type Statistic struct {
	NaturalKey    string
	MatrixID      string
	TerritoryID   *int64
	TimePeriodID  *int64
	ClassValueIDs []int64
	UnitID        *int64
	Value         *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
