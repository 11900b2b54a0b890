package domain

// Column identifies a logical input column of the loans table. Cleaning
// rules declare the columns they require; the loader records which ones
// the source files actually carried.
type Column string

const (
	ColumnIssue        Column = "issue"
	ColumnReturn       Column = "return"
	ColumnUserID       Column = "user_id"
	ColumnUserCategory Column = "user_category"
	ColumnMediaType    Column = "media_type"
	ColumnISBN         Column = "isbn"
	ColumnBarcode      Column = "barcode"
	ColumnLoanDuration Column = "loan_duration"
	ColumnDaysLate     Column = "days_late"
	ColumnLate         Column = "late"
	ColumnExtensions   Column = "extensions"
)

// ColumnSet records which logical columns were present in the raw input
type ColumnSet map[Column]bool

// Has reports whether every given column was present in the input
func (s ColumnSet) Has(cols ...Column) bool {
	for _, c := range cols {
		if !s[c] {
			return false
		}
	}
	return true
}

// Missing returns the subset of cols absent from the input, in order
func (s ColumnSet) Missing(cols ...Column) []Column {
	var missing []Column
	for _, c := range cols {
		if !s[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// Dataset is the loans table plus the schema information the cleaning
// engine needs for its degradation policy.
type Dataset struct {
	Records []LoanRecord
	Columns ColumnSet
}

// Len returns the number of loan rows
func (d *Dataset) Len() int {
	return len(d.Records)
}
