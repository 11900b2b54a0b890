package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"bibliocli/internal/cleaning"
)

const (
	removalsSheet = "Removals"
	yearsSheet    = "Per-Year Totals"
)

// AuditWriter renders a cleaning audit trail as an Excel workbook so
// librarians can review what the pipeline dropped without touching the
// logs.
type AuditWriter struct {
	logger *slog.Logger
}

// NewAuditWriter creates an audit writer
func NewAuditWriter(logger *slog.Logger) *AuditWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditWriter{logger: logger}
}

// Write saves the audit workbook to path. The workbook has a removals
// sheet with one row per rule per source year and a summary sheet of
// per-year totals.
func (w *AuditWriter) Write(path string, audit *cleaning.AuditLog) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", removalsSheet); err != nil {
		return fmt.Errorf("failed to name removals sheet: %w", err)
	}
	if err := w.writeRemovals(f, audit); err != nil {
		return err
	}

	if _, err := f.NewSheet(yearsSheet); err != nil {
		return fmt.Errorf("failed to create totals sheet: %w", err)
	}
	if err := w.writeYearTotals(f, audit); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save audit workbook: %w", err)
	}

	w.logger.Info("audit workbook written",
		slog.String("path", path),
		slog.Int("rules", len(audit.Removals)),
		slog.Int("removed", audit.TotalRemoved()))

	return nil
}

func (w *AuditWriter) writeRemovals(f *excelize.File, audit *cleaning.AuditLog) error {
	header := []interface{}{"Rule", "Reason", "Year", "Removed"}
	if err := writeRow(f, removalsSheet, 1, header); err != nil {
		return err
	}

	rowNum := 2
	for _, ev := range audit.Removals {
		years := make([]int, 0, len(ev.ByYear))
		for year := range ev.ByYear {
			years = append(years, year)
		}
		sort.Ints(years)

		for _, year := range years {
			row := []interface{}{ev.Rule, ev.Reason, year, ev.ByYear[year]}
			if err := writeRow(f, removalsSheet, rowNum, row); err != nil {
				return err
			}
			rowNum++
		}
	}

	for _, skip := range audit.Skips {
		row := []interface{}{skip.Rule, "SKIPPED: " + skip.Reason, "", 0}
		if err := writeRow(f, removalsSheet, rowNum, row); err != nil {
			return err
		}
		rowNum++
	}

	return nil
}

func (w *AuditWriter) writeYearTotals(f *excelize.File, audit *cleaning.AuditLog) error {
	header := []interface{}{"Year", "Removed", "Total", "Percent"}
	if err := writeRow(f, yearsSheet, 1, header); err != nil {
		return err
	}

	for i, yt := range audit.YearTotals {
		row := []interface{}{yt.Year, yt.Removed, yt.Total, yt.Percent}
		if err := writeRow(f, yearsSheet, i+2, row); err != nil {
			return err
		}
	}

	summary := []interface{}{"all", audit.TotalRemoved(), audit.StartRows, percentOf(audit.TotalRemoved(), audit.StartRows)}
	return writeRow(f, yearsSheet, len(audit.YearTotals)+2, summary)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func percentOf(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}
