package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bibliocli/pkg/contracts/domain"
)

// Loan builds one parsed loan record. Options mutate the default,
// which is a returned-on-time book loan by a tracked user.
func Loan(opts ...func(*domain.LoanRecord)) domain.LoanRecord {
	issue := time.Date(2022, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := domain.LoanRecord{
		UserID:       "u1",
		UserCategory: "student",
		MediaType:    "book",
		IssueRaw:     "01.03.2022 10:00",
		ReturnRaw:    "15.03.2022 09:00",
		LateRaw:      "false",
		IssueTime:    domain.Timestamp(issue),
		ReturnTime:   domain.Timestamp(issue.AddDate(0, 0, 14)),
		LoanDuration: domain.Float(14),
		DaysLate:     domain.Float(0),
		Extensions:   domain.Float(0),
		SourceYear:   2022,
	}
	for _, opt := range opts {
		opt(&rec)
	}
	return rec
}

// WithUser sets the user id
func WithUser(id string) func(*domain.LoanRecord) {
	return func(r *domain.LoanRecord) { r.UserID = id }
}

// WithIssue sets the parsed issue timestamp and its source year
func WithIssue(t time.Time) func(*domain.LoanRecord) {
	return func(r *domain.LoanRecord) {
		r.IssueTime = domain.Timestamp(t)
		r.SourceYear = t.Year()
	}
}

// WithMediaType sets the media type
func WithMediaType(mt string) func(*domain.LoanRecord) {
	return func(r *domain.LoanRecord) { r.MediaType = mt }
}

// Late marks the loan late in both the raw cell and the flag
func Late() func(*domain.LoanRecord) {
	return func(r *domain.LoanRecord) {
		r.LateRaw = "true"
		r.Late = true
		r.DaysLate = domain.Float(3)
	}
}

// FullColumnSet returns a column set with every logical column present
func FullColumnSet() domain.ColumnSet {
	return domain.ColumnSet{
		domain.ColumnIssue:        true,
		domain.ColumnReturn:       true,
		domain.ColumnUserID:       true,
		domain.ColumnUserCategory: true,
		domain.ColumnMediaType:    true,
		domain.ColumnISBN:         true,
		domain.ColumnBarcode:      true,
		domain.ColumnLoanDuration: true,
		domain.ColumnDaysLate:     true,
		domain.ColumnLate:         true,
		domain.ColumnExtensions:   true,
	}
}

// WriteBorrowingsCSV writes one yearly semicolon CSV into dir using the
// given header line and rows, named so the loader picks it up.
func WriteBorrowingsCSV(t *testing.T, dir string, year int, header string, rows []string) string {
	t.Helper()
	require := func(err error) {
		if err != nil {
			t.Fatalf("fixture write failed: %v", err)
		}
	}
	require(os.MkdirAll(dir, 0755))

	path := filepath.Join(dir, fmt.Sprintf("borrowings_%d.csv", year))
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	require(os.WriteFile(path, []byte(content), 0644))
	return path
}
