package exporter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bibliocli/internal/cleaning"
)

func TestAuditWriter(t *testing.T) {
	audit := &cleaning.AuditLog{
		StartRows: 100,
		FinalRows: 90,
		Removals: []cleaning.RemovalEvent{
			{
				Rule:    "missing_issue",
				Reason:  "issue timestamp cell empty",
				Removed: 6,
				ByYear:  map[int]int{2021: 2, 2022: 4},
			},
			{
				Rule:    "return_before_issue",
				Reason:  "return precedes issue",
				Removed: 4,
				ByYear:  map[int]int{2022: 4},
			},
		},
		Skips: []cleaning.SkipEvent{
			{Rule: "excluded_user_category", Reason: "missing columns: user_category"},
		},
		YearTotals: []cleaning.YearTotal{
			{Year: 2021, Removed: 2, Total: 40, Percent: 5},
			{Year: 2022, Removed: 8, Total: 60, Percent: 13.333333},
		},
	}

	path := filepath.Join(t.TempDir(), "audit.xlsx")
	w := NewAuditWriter(nil)
	require.NoError(t, w.Write(path, audit))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(removalsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Rule", "Reason", "Year", "Removed"}, rows[0])
	// years within one rule come out sorted
	assert.Equal(t, "2021", rows[1][2])
	assert.Equal(t, "2", rows[1][3])
	assert.Equal(t, "2022", rows[2][2])
	assert.Equal(t, "4", rows[2][3])
	assert.Equal(t, "return_before_issue", rows[3][0])
	assert.Contains(t, rows[4][1], "SKIPPED")

	totals, err := f.GetRows(yearsSheet)
	require.NoError(t, err)
	require.Len(t, totals, 4)
	assert.Equal(t, []string{"Year", "Removed", "Total", "Percent"}, totals[0])
	assert.Equal(t, "2021", totals[1][0])
	// the last row aggregates the whole run
	assert.Equal(t, "all", totals[3][0])
	assert.Equal(t, "10", totals[3][1])
	assert.Equal(t, "100", totals[3][2])
}
