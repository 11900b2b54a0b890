package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliocli/internal/config"
	apperrors "bibliocli/internal/errors"
	"bibliocli/pkg/contracts/domain"
)

// testSchema uses short English column names to keep fixtures readable
func testSchema() config.SchemaConfig {
	return config.SchemaConfig{
		IssueColumn:        "issue",
		ReturnColumn:       "return",
		UserIDColumn:       "user",
		UserCategoryColumn: "category",
		MediaTypeColumn:    "media",
		ISBNColumn:         "isbn",
		BarcodeColumn:      "barcode",
		LoanDurationColumn: "duration",
		DaysLateColumn:     "days_late",
		LateColumn:         "late",
		ExtensionsColumn:   "extensions",
		ClosedDateColumn:   "closed",
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadLoans(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		l := New(testSchema(), nil)
		_, err := l.LoadLoans(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("no matching files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "unrelated.csv", "a;b\n1;2\n")
		l := New(testSchema(), nil)
		_, err := l.LoadLoans(dir)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("concatenates yearly files and tags source year", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "borrowings_2021.csv",
			"issue;return;user;media;late;extensions\n"+
				"05.03.2021 10:15;02.04.2021 16:00;u1;Book;1;0\n"+
				"06.03.2021 11:00;01.04.2021 09:30;u2;DVD;0;2\n")
		writeFile(t, dir, "borrowings_2022.csv",
			"issue;return;user;media;late;extensions\n"+
				"10.01.2022 14:45;20.01.2022 12:00;u1;Book;nein;1\n")

		l := New(testSchema(), nil)
		ds, err := l.LoadLoans(dir)
		require.NoError(t, err)
		require.Equal(t, 3, ds.Len())

		assert.Equal(t, 2021, ds.Records[0].SourceYear)
		assert.Equal(t, 2021, ds.Records[1].SourceYear)
		assert.Equal(t, 2022, ds.Records[2].SourceYear)

		assert.Equal(t, "u1", ds.Records[0].UserID)
		assert.Equal(t, "05.03.2021 10:15", ds.Records[0].IssueRaw)
		assert.Equal(t, "nein", ds.Records[2].LateRaw)
		assert.Equal(t, domain.Float(2), ds.Records[1].Extensions)

		assert.True(t, ds.Columns.Has(domain.ColumnIssue, domain.ColumnReturn, domain.ColumnLate, domain.ColumnExtensions))
		assert.False(t, ds.Columns.Has(domain.ColumnUserCategory))
	})

	t.Run("duplicate rows across years pass through", func(t *testing.T) {
		dir := t.TempDir()
		row := "05.03.2021 10:15;02.04.2021 16:00;u1;Book;1;0\n"
		header := "issue;return;user;media;late;extensions\n"
		writeFile(t, dir, "borrowings_2021.csv", header+row)
		writeFile(t, dir, "borrowings_2022.csv", header+row)

		l := New(testSchema(), nil)
		ds, err := l.LoadLoans(dir)
		require.NoError(t, err)
		assert.Equal(t, 2, ds.Len())
	})

	t.Run("tolerates BOM and ragged rows", func(t *testing.T) {
		dir := t.TempDir()
		content := "\xEF\xBB\xBFissue;return;user\n05.03.2021 10:15;02.04.2021 16:00;u1\n06.03.2021 09:00\n"
		writeFile(t, dir, "borrowings_2021.csv", content)

		l := New(testSchema(), nil)
		ds, err := l.LoadLoans(dir)
		require.NoError(t, err)
		require.Equal(t, 2, ds.Len())
		assert.Equal(t, "05.03.2021 10:15", ds.Records[0].IssueRaw)
		assert.Equal(t, "", ds.Records[1].ReturnRaw)
	})

	t.Run("unparseable numeric cells stay null", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "borrowings_2021.csv",
			"issue;duration;days_late;extensions\n"+
				"05.03.2021;28,5;abc;\n")

		l := New(testSchema(), nil)
		ds, err := l.LoadLoans(dir)
		require.NoError(t, err)
		require.Equal(t, 1, ds.Len())

		rec := ds.Records[0]
		assert.Equal(t, domain.Float(28.5), rec.LoanDuration)
		assert.False(t, rec.DaysLate.Valid)
		assert.False(t, rec.Extensions.Valid)
	})
}

func TestLoadClosedDays(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		l := New(testSchema(), nil)
		_, err := l.LoadClosedDays(filepath.Join(t.TempDir(), "closed.csv"))
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("missing date column", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "closed.csv", "holiday\n01.01.2021\n")
		l := New(testSchema(), nil)
		_, err := l.LoadClosedDays(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	})

	t.Run("normalizes and deduplicates", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "closed.csv",
			"closed;comment\n"+
				"01.01.2021;new year\n"+
				"01.01.2021;duplicate\n"+
				"garbage;unparseable\n"+
				"24.12.2021;christmas eve\n")

		l := New(testSchema(), nil)
		cal, err := l.LoadClosedDays(path)
		require.NoError(t, err)

		assert.Equal(t, 2, cal.Len())
		assert.True(t, cal.IsClosed(time.Date(2021, 1, 1, 15, 30, 0, 0, time.UTC)))
		assert.True(t, cal.IsClosed(time.Date(2021, 12, 24, 0, 0, 0, 0, time.UTC)))
		assert.False(t, cal.IsClosed(time.Date(2021, 12, 25, 0, 0, 0, 0, time.UTC)))
	})
}
