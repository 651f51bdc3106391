package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/statsync/statsync/internal/normalize"
	"github.com/statsync/statsync/internal/store"
	"github.com/statsync/statsync/pkg/types"
)

// TimePeriodResolver parses Romanian period labels ("Anul 2020",
// "Trimestrul II 2020", "Luna ianuarie 2020") and creates the canonical
// period row on first sight.
type TimePeriodResolver struct {
	st *store.Store
}

var (
	annualPattern  = regexp.MustCompile(`^(?:ANUL )?(\d{4})$`)
	quarterPattern = regexp.MustCompile(`^TRIMESTRUL ([IV]+) (?:ANUL )?(\d{4})$`)
	monthPattern   = regexp.MustCompile(`^(?:LUNA )?([A-Z]+) (\d{4})$`)
)

var romanQuarters = map[string]int{"I": 1, "II": 2, "III": 3, "IV": 4}

var monthNumbers = map[string]int{
	"IANUARIE": 1, "FEBRUARIE": 2, "MARTIE": 3, "APRILIE": 4,
	"MAI": 5, "IUNIE": 6, "IULIE": 7, "AUGUST": 8,
	"SEPTEMBRIE": 9, "OCTOMBRIE": 10, "NOIEMBRIE": 11, "DECEMBRIE": 12,
}

// Resolve parses the label and returns the id of the matching canonical
// period, creating it if this is the first label to name it. Distinct label
// spellings of the same period converge to one row.
func (p *TimePeriodResolver) Resolve(ctx context.Context, label string) (*Resolution, error) {
	norm := normalize.Label(label)
	if norm == "" {
		return unresolvable("empty time period label"), nil
	}

	period, ok := parsePeriod(norm)
	if !ok {
		return unresolvable(fmt.Sprintf("unrecognized time period format %q", strings.TrimSpace(label))), nil
	}
	period.Label = strings.TrimSpace(label)

	id, err := p.st.GetOrCreateTimePeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	return resolved(id, types.MethodPatternMatch, 1.0), nil
}

func parsePeriod(norm string) (*types.TimePeriod, bool) {
	if m := annualPattern.FindStringSubmatch(norm); m != nil {
		year, _ := strconv.Atoi(m[1])
		return &types.TimePeriod{
			Year:        year,
			Periodicity: types.PeriodicityAnnual,
			PeriodStart: monthStart(year, 1),
			PeriodEnd:   monthEnd(year, 12),
		}, true
	}
	if m := quarterPattern.FindStringSubmatch(norm); m != nil {
		quarter, ok := romanQuarters[m[1]]
		if !ok {
			return nil, false
		}
		year, _ := strconv.Atoi(m[2])
		return &types.TimePeriod{
			Year:        year,
			Quarter:     quarter,
			Periodicity: types.PeriodicityQuarterly,
			PeriodStart: monthStart(year, 3*quarter-2),
			PeriodEnd:   monthEnd(year, 3*quarter),
		}, true
	}
	if m := monthPattern.FindStringSubmatch(norm); m != nil {
		month, ok := monthNumbers[m[1]]
		if !ok {
			return nil, false
		}
		year, _ := strconv.Atoi(m[2])
		return &types.TimePeriod{
			Year:        year,
			Month:       month,
			Periodicity: types.PeriodicityMonthly,
			PeriodStart: monthStart(year, month),
			PeriodEnd:   monthEnd(year, month),
		}, true
	}
	return nil, false
}

func monthStart(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

func monthEnd(year, month int) time.Time {
	return time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}
