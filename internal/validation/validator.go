// Package validation is the fail-fast correctness gate between feature
// derivation and every downstream consumer. It checks the dataset
// invariants and returns the first violation; it never repairs data.
package validation

import (
	"log/slog"

	apperrors "bibliocli/internal/errors"
	"bibliocli/internal/cleaning"
	"bibliocli/pkg/contracts/domain"
)

// Validator checks the cleaned, feature-enriched dataset
type Validator struct {
	logger *slog.Logger
}

// New creates a validator
func New(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger}
}

// requiredColumns are the logical columns the invariants below read.
// The cleaning engine may degrade when columns are absent; the
// validator may not.
var requiredColumns = []domain.Column{
	domain.ColumnIssue,
	domain.ColumnReturn,
	domain.ColumnLate,
}

// Validate asserts the dataset invariants. The first violated invariant
// aborts with a ValidationError; the input is never mutated.
func (v *Validator) Validate(ds *domain.Dataset) error {
	if missing := ds.Columns.Missing(requiredColumns...); len(missing) > 0 {
		return apperrors.Invariant("required_columns_present",
			"input lacks columns the invariants read: %v", missing)
	}

	minSessionIndex := make(map[string]int)

	for i := range ds.Records {
		rec := &ds.Records[i]

		if !rec.IssueTime.Valid {
			return apperrors.Invariant("issue_time_present", "row %d has no issue timestamp", i)
		}
		if !rec.ReturnTime.Valid {
			return apperrors.Invariant("return_time_present", "row %d has no return timestamp", i)
		}
		if rec.ReturnTime.Time.Before(rec.IssueTime.Time) {
			return apperrors.Invariant("return_after_issue",
				"row %d: return %s precedes issue %s",
				i, rec.ReturnTime.Time.Format("2006-01-02 15:04"), rec.IssueTime.Time.Format("2006-01-02 15:04"))
		}

		// the boolean flag must be bit-identical to re-normalizing the raw value
		if rec.Late != cleaning.NormalizeLate(rec.LateRaw) {
			return apperrors.Invariant("late_flag_matches_raw",
				"row %d: late=%t but raw %q normalizes to %t",
				i, rec.Late, rec.LateRaw, cleaning.NormalizeLate(rec.LateRaw))
		}

		if !rec.HasUser() {
			continue
		}
		if rec.Features == nil {
			return apperrors.Invariant("features_present_for_users",
				"row %d: tracked user %s has no derived features", i, rec.UserID)
		}
		if rec.Features.LateFlag != rec.Late {
			return apperrors.Invariant("late_flag_matches_raw",
				"row %d: feature late_flag=%t differs from late=%t", i, rec.Features.LateFlag, rec.Late)
		}
		idx := rec.Features.SessionIndex
		if idx < 1 {
			return apperrors.Invariant("session_index_positive",
				"row %d: session index %d for user %s", i, idx, rec.UserID)
		}
		if cur, ok := minSessionIndex[rec.UserID]; !ok || idx < cur {
			minSessionIndex[rec.UserID] = idx
		}
	}

	for userID, min := range minSessionIndex {
		if min != 1 {
			return apperrors.Invariant("session_index_starts_at_1",
				"user %s: minimum session index is %d", userID, min)
		}
	}

	v.logger.Info("validation passed",
		slog.Int("rows", ds.Len()),
		slog.Int("tracked_users", len(minSessionIndex)))
	return nil
}
