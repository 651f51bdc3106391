package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/statsync/statsync/pkg/types"
)

func TestParsePeriod(t *testing.T) {
	cases := []struct {
		norm        string
		periodicity types.Periodicity
		year        int
		quarter     int
		month       int
		start       string
		end         string
	}{
		{"ANUL 2020", types.PeriodicityAnnual, 2020, 0, 0, "2020-01-01", "2020-12-31"},
		{"2020", types.PeriodicityAnnual, 2020, 0, 0, "2020-01-01", "2020-12-31"},
		{"TRIMESTRUL I 2021", types.PeriodicityQuarterly, 2021, 1, 0, "2021-01-01", "2021-03-31"},
		{"TRIMESTRUL II 2020", types.PeriodicityQuarterly, 2020, 2, 0, "2020-04-01", "2020-06-30"},
		{"TRIMESTRUL IV 2019", types.PeriodicityQuarterly, 2019, 4, 0, "2019-10-01", "2019-12-31"},
		{"LUNA IANUARIE 2020", types.PeriodicityMonthly, 2020, 0, 1, "2020-01-01", "2020-01-31"},
		{"LUNA FEBRUARIE 2020", types.PeriodicityMonthly, 2020, 0, 2, "2020-02-01", "2020-02-29"},
		{"DECEMBRIE 2022", types.PeriodicityMonthly, 2022, 0, 12, "2022-12-01", "2022-12-31"},
	}
	for _, tc := range cases {
		p, ok := parsePeriod(tc.norm)
		if !ok {
			t.Errorf("parsePeriod(%q): no match", tc.norm)
			continue
		}
		if p.Periodicity != tc.periodicity || p.Year != tc.year || p.Quarter != tc.quarter || p.Month != tc.month {
			t.Errorf("parsePeriod(%q) = %s %d Q%d M%d, want %s %d Q%d M%d",
				tc.norm, p.Periodicity, p.Year, p.Quarter, p.Month,
				tc.periodicity, tc.year, tc.quarter, tc.month)
		}
		if got := p.PeriodStart.Format("2006-01-02"); got != tc.start {
			t.Errorf("parsePeriod(%q) start = %s, want %s", tc.norm, got, tc.start)
		}
		if got := p.PeriodEnd.Format("2006-01-02"); got != tc.end {
			t.Errorf("parsePeriod(%q) end = %s, want %s", tc.norm, got, tc.end)
		}
	}
}

func TestParsePeriodRejectsMalformed(t *testing.T) {
	for _, norm := range []string{
		"",
		"ANUL",
		"ZIUA 5 IANUARIE 2020",
		"TRIMESTRUL V 2020",
		"LUNA SMARANDA 2020",
		"ANUL 20",
	} {
		if p, ok := parsePeriod(norm); ok {
			t.Errorf("parsePeriod(%q) = %+v, want no match", norm, p)
		}
	}
}

func TestTimePeriodResolverConvergesSpellings(t *testing.T) {
	st := newSeededStore(t)
	r := &TimePeriodResolver{st: st}
	ctx := context.Background()

	// Distinct labels naming the same period must land on one canonical row.
	first, err := r.Resolve(ctx, "Anul 2020")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(ctx, "2020")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.Unresolvable || second.Unresolvable {
		t.Fatalf("annual labels unresolvable: %+v %+v", first, second)
	}
	if *first.EntityID != *second.EntityID {
		t.Errorf("spellings diverged: %d vs %d", *first.EntityID, *second.EntityID)
	}

	// Same year, different periodicity is a different period.
	quarterly, err := r.Resolve(ctx, "Trimestrul I 2020")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if *quarterly.EntityID == *first.EntityID {
		t.Error("quarterly period shares a row with the annual period")
	}
}

func TestTimePeriodResolverUnparseable(t *testing.T) {
	st := newSeededStore(t)
	r := &TimePeriodResolver{st: st}

	res, err := r.Resolve(context.Background(), "Ziua de 5 ianuarie")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Unresolvable {
		t.Fatalf("want unresolvable, got %+v", res)
	}
	if res.Reason == "" {
		t.Error("unresolvable outcome carries no reason")
	}
}

func TestMonthEndLeapYear(t *testing.T) {
	got := monthEnd(2020, 2)
	want := time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("monthEnd(2020, 2) = %s, want %s", got, want)
	}
}
