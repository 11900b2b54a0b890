package cleaning

import (
	"sort"

	"bibliocli/pkg/contracts/domain"
)

// RemovalEvent records one rule's removals: what, how many, and the
// per-year breakdown of the removed rows.
type RemovalEvent struct {
	Rule    string      `json:"rule"`
	Reason  string      `json:"reason"`
	Removed int         `json:"removed"`
	ByYear  map[int]int `json:"by_year"`
}

// SkipEvent records a rule that could not run and why. A skip is a
// degradation, not a failure: the pipeline continues with reduced
// cleaning power.
type SkipEvent struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// YearTotal summarizes removals for one source year against its input size
type YearTotal struct {
	Year    int     `json:"year"`
	Removed int     `json:"removed"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// AuditLog is the append-only trail of one cleaning run
type AuditLog struct {
	StartRows int `json:"start_rows"`
	FinalRows int `json:"final_rows"`

	Removals []RemovalEvent `json:"removals"`
	Skips    []SkipEvent    `json:"skips"`

	// Late-flag normalization happened (rule ran, no rows removed)
	LateNormalized bool `json:"late_normalized"`

	// Weird-loan diagnostics, logged before removal
	WeirdFlagged   int     `json:"weird_flagged"`
	WeirdLateShare float64 `json:"weird_late_share"`

	YearTotals []YearTotal `json:"year_totals"`
}

// TotalRemoved returns the number of rows removed across all rules
func (a *AuditLog) TotalRemoved() int {
	total := 0
	for _, ev := range a.Removals {
		total += ev.Removed
	}
	return total
}

// removedByYear accumulates every rule's per-year counts
func (a *AuditLog) removedByYear() map[int]int {
	byYear := make(map[int]int)
	for _, ev := range a.Removals {
		for year, n := range ev.ByYear {
			byYear[year] += n
		}
	}
	return byYear
}

// finalizeYearTotals computes the global per-year removed/total/percent
// summary from the input's per-year sizes.
func (a *AuditLog) finalizeYearTotals(startByYear map[int]int) {
	removed := a.removedByYear()

	years := make([]int, 0, len(startByYear))
	for year := range startByYear {
		years = append(years, year)
	}
	sort.Ints(years)

	a.YearTotals = a.YearTotals[:0]
	for _, year := range years {
		total := startByYear[year]
		n := removed[year]
		pct := 0.0
		if total > 0 {
			pct = float64(n) / float64(total) * 100.0
		}
		a.YearTotals = append(a.YearTotals, YearTotal{
			Year:    year,
			Removed: n,
			Total:   total,
			Percent: pct,
		})
	}
}

// yearOf returns the reporting year for a record: the source year when
// tagged, else the issue year when parsed, else 0 (excluded from
// per-year counts).
func yearOf(rec *domain.LoanRecord) int {
	if rec.SourceYear > 0 {
		return rec.SourceYear
	}
	if rec.IssueTime.Valid {
		return rec.IssueTime.Time.Year()
	}
	return 0
}
