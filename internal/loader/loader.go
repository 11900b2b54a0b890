// Package loader reads the raw yearly borrowings exports and the
// closed-days calendar. Per-row parse problems never fail a load: bad
// cells become null-valued fields that the cleaning engine removes with
// an audit entry. Only missing files and directories are fatal.
package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"bibliocli/internal/config"
	apperrors "bibliocli/internal/errors"
	"bibliocli/pkg/contracts/domain"
)

// yearRe matches the 4-digit year embedded in yearly export filenames,
// e.g. "borrowings_2021.csv"
var yearRe = regexp.MustCompile(`(19|20)\d{2}`)

// Loader reads raw input files using the configured schema
type Loader struct {
	schema config.SchemaConfig
	logger *slog.Logger
}

// New creates a loader for the given schema
func New(schema config.SchemaConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{schema: schema, logger: logger}
}

// LoadLoans loads every borrowings_*.csv file in dir, concatenates the
// rows, and tags each row with the year parsed from its filename.
// Duplicate rows across files pass through unchanged.
func (l *Loader) LoadLoans(dir string) (*domain.Dataset, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, apperrors.NotFound("borrowings directory %s", dir)
	}

	files, err := findYearlyFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("discover borrowings files: %w", err)
	}
	if len(files) == 0 {
		return nil, apperrors.NotFound("no files matching borrowings_*.csv in %s", dir)
	}

	dataset := &domain.Dataset{Columns: make(domain.ColumnSet)}
	for _, path := range files {
		year := yearFromFilename(filepath.Base(path))
		rows, cols, err := l.loadFile(path, year)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}

		// column availability is the union across files
		for c := range cols {
			dataset.Columns[c] = true
		}
		dataset.Records = append(dataset.Records, rows...)

		l.logger.Info("loaded borrowings file",
			slog.String("file", filepath.Base(path)),
			slog.Int("year", year),
			slog.Int("rows", len(rows)))
	}

	l.logger.Info("raw borrowings loaded",
		slog.Int("files", len(files)),
		slog.Int("total_rows", dataset.Len()))
	return dataset, nil
}

// LoadClosedDays reads the closed-days table and returns the normalized,
// deduplicated holiday calendar.
func (l *Loader) LoadClosedDays(path string) (*domain.ClosedCalendar, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.NotFound("closed days file %s", path)
	}

	records, header, err := readSemicolonCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read closed days: %w", err)
	}

	dateIdx := -1
	for i, name := range header {
		if name == l.schema.ClosedDateColumn {
			dateIdx = i
			break
		}
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("expected column %q in %s", l.schema.ClosedDateColumn, filepath.Base(path))
	}

	var dates []time.Time
	skipped := 0
	for _, row := range records {
		if dateIdx >= len(row) {
			continue
		}
		d, ok := parseDayFirstDate(row[dateIdx])
		if !ok {
			skipped++
			continue
		}
		dates = append(dates, d)
	}

	cal := domain.NewClosedCalendar(dates)
	l.logger.Info("closed days loaded",
		slog.Int("days", cal.Len()),
		slog.Int("unparseable", skipped))
	return cal, nil
}

// findYearlyFiles returns the sorted borrowings_*.csv paths in dir
func findYearlyFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "borrowings_") && strings.HasSuffix(strings.ToLower(name), ".csv") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// yearFromFilename extracts the embedded 4-digit year, 0 when absent
func yearFromFilename(name string) int {
	m := yearRe.FindString(name)
	if m == "" {
		return 0
	}
	year, _ := strconv.Atoi(m)
	return year
}

// loadFile reads one yearly export into loan records
func (l *Loader) loadFile(path string, year int) ([]domain.LoanRecord, domain.ColumnSet, error) {
	rows, header, err := readSemicolonCSV(path)
	if err != nil {
		return nil, nil, err
	}

	idx := l.columnIndex(header)
	cols := make(domain.ColumnSet, len(idx))
	for c := range idx {
		cols[c] = true
	}

	records := make([]domain.LoanRecord, 0, len(rows))
	for _, row := range rows {
		cell := func(c domain.Column) string {
			i, ok := idx[c]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		records = append(records, domain.LoanRecord{
			IssueRaw:     cell(domain.ColumnIssue),
			ReturnRaw:    cell(domain.ColumnReturn),
			LateRaw:      cell(domain.ColumnLate),
			UserID:       cell(domain.ColumnUserID),
			UserCategory: cell(domain.ColumnUserCategory),
			MediaType:    cell(domain.ColumnMediaType),
			ISBN:         cell(domain.ColumnISBN),
			Barcode:      cell(domain.ColumnBarcode),
			LoanDuration: parseNullFloat(cell(domain.ColumnLoanDuration)),
			DaysLate:     parseNullFloat(cell(domain.ColumnDaysLate)),
			Extensions:   parseNullFloat(cell(domain.ColumnExtensions)),
			SourceYear:   year,
		})
	}
	return records, cols, nil
}

// columnIndex maps logical columns to header positions via the schema
func (l *Loader) columnIndex(header []string) map[domain.Column]int {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		byName[strings.TrimSpace(name)] = i
	}

	idx := make(map[domain.Column]int)
	add := func(c domain.Column, name string) {
		if name == "" {
			return
		}
		if i, ok := byName[name]; ok {
			idx[c] = i
		}
	}
	add(domain.ColumnIssue, l.schema.IssueColumn)
	add(domain.ColumnReturn, l.schema.ReturnColumn)
	add(domain.ColumnUserID, l.schema.UserIDColumn)
	add(domain.ColumnUserCategory, l.schema.UserCategoryColumn)
	add(domain.ColumnMediaType, l.schema.MediaTypeColumn)
	add(domain.ColumnISBN, l.schema.ISBNColumn)
	add(domain.ColumnBarcode, l.schema.BarcodeColumn)
	add(domain.ColumnLoanDuration, l.schema.LoanDurationColumn)
	add(domain.ColumnDaysLate, l.schema.DaysLateColumn)
	add(domain.ColumnLate, l.schema.LateColumn)
	add(domain.ColumnExtensions, l.schema.ExtensionsColumn)
	return idx
}

// readSemicolonCSV reads a semicolon-separated, quoted, UTF-8 file,
// tolerating a BOM prefix and ragged rows. Returns data rows and header.
func readSemicolonCSV(path string) ([][]string, []string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Remove BOM if present
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("file has no header row")
	}
	return rows[1:], rows[0], nil
}

// parseNullFloat leniently coerces a cell to a float, accepting a comma
// decimal separator. Empty or unparseable cells stay null.
func parseNullFloat(s string) domain.NullFloat {
	if s == "" {
		return domain.NullFloat{}
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return domain.NullFloat{}
	}
	return domain.Float(v)
}

// parseDayFirstDate parses a day-first date cell ("02.01.2006" style),
// also accepting ISO dates.
func parseDayFirstDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"02.01.2006", "2.1.2006", "2006-01-02", "02.01.2006 15:04", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
