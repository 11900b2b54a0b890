// Package cleaning applies the ordered removal rules that turn the raw
// borrowings table into the cleaned dataset, producing a structured
// audit trail of every removal and every skipped rule. Row-level data
// problems never abort a run; each rule that cannot operate on the
// available columns is skipped with a logged reason.
package cleaning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bibliocli/internal/config"
	"bibliocli/pkg/contracts/domain"
)

// timestampLayouts are tried in order when parsing issue/return cells.
// The ILS exports day-first German timestamps; ISO forms appear in
// re-exported data.
var timestampLayouts = []string{
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Engine runs the ordered cleaning rules
type Engine struct {
	cfg    config.CleaningConfig
	logger *slog.Logger
}

// NewEngine creates a cleaning engine with the given thresholds
func NewEngine(cfg config.CleaningConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// rule is one capability-checked cleaning stage. requires lists the
// input columns the rule needs; an unavailable column turns the rule
// into a recorded skip instead of an error.
type rule struct {
	name     string
	requires []domain.Column
	apply    func(ctx context.Context, run *cleanRun)
}

// cleanRun is the mutable state threaded through one Clean invocation
type cleanRun struct {
	records  []domain.LoanRecord
	calendar *domain.ClosedCalendar
	audit    *AuditLog
}

// Clean applies the removal rules in their fixed order and returns the
// cleaned dataset plus the audit trail. calendar may be nil; the
// weird-loan rule is then skipped with a logged reason.
func (e *Engine) Clean(ctx context.Context, ds *domain.Dataset, calendar *domain.ClosedCalendar) (*domain.Dataset, *AuditLog, error) {
	run := &cleanRun{
		records:  append([]domain.LoanRecord(nil), ds.Records...),
		calendar: calendar,
		audit:    &AuditLog{StartRows: ds.Len()},
	}

	startByYear := make(map[int]int)
	for i := range run.records {
		if year := yearOf(&run.records[i]); year > 0 {
			startByYear[year]++
		}
	}

	e.logger.InfoContext(ctx, "cleaning started", slog.Int("start_rows", run.audit.StartRows))

	for _, r := range e.rules() {
		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("cleaning cancelled: %w", ctx.Err())
		default:
		}

		if missing := ds.Columns.Missing(r.requires...); len(missing) > 0 {
			e.skip(ctx, run, r.name, fmt.Sprintf("missing column %v", missing))
			continue
		}
		r.apply(ctx, run)
	}

	run.audit.FinalRows = len(run.records)
	run.audit.finalizeYearTotals(startByYear)

	e.logger.InfoContext(ctx, "cleaning finished",
		slog.Int("final_rows", run.audit.FinalRows),
		slog.Int("removed_total", run.audit.TotalRemoved()))
	for _, yt := range run.audit.YearTotals {
		e.logger.InfoContext(ctx, "removed per year",
			slog.Int("year", yt.Year),
			slog.Int("removed", yt.Removed),
			slog.Int("total", yt.Total),
			slog.String("percent", fmt.Sprintf("%.2f%%", yt.Percent)))
	}

	return &domain.Dataset{Records: run.records, Columns: ds.Columns}, run.audit, nil
}

// rules returns the ordered removal rules
func (e *Engine) rules() []rule {
	return []rule{
		{
			name:     "missing_issue",
			requires: []domain.Column{domain.ColumnIssue},
			apply:    e.dropMissingIssue,
		},
		{
			name:     "invalid_issue",
			requires: []domain.Column{domain.ColumnIssue},
			apply:    e.parseTimestampsAndDropInvalidIssue,
		},
		{
			name:     "missing_return",
			requires: []domain.Column{domain.ColumnReturn},
			apply:    e.dropMissingReturn,
		},
		{
			name:     "return_before_issue",
			requires: []domain.Column{domain.ColumnIssue, domain.ColumnReturn},
			apply:    e.dropReturnBeforeIssue,
		},
		{
			name:     "excluded_user_category",
			requires: []domain.Column{domain.ColumnUserCategory},
			apply:    e.dropExcludedUserCategories,
		},
		{
			name:     "negative_loan_duration",
			requires: []domain.Column{domain.ColumnLoanDuration},
			apply:    e.dropNegativeLoanDuration,
		},
		{
			name:     "negative_days_late",
			requires: []domain.Column{domain.ColumnDaysLate},
			apply:    e.dropNegativeDaysLate,
		},
		{
			name:     "normalize_late_flag",
			requires: []domain.Column{domain.ColumnLate},
			apply:    e.normalizeLateFlag,
		},
		{
			name:     "weird_loan",
			requires: []domain.Column{domain.ColumnLate, domain.ColumnExtensions},
			apply:    e.removeWeirdLoans,
		},
	}
}

// drop removes every record matching remove and records the audit event
func (e *Engine) drop(ctx context.Context, run *cleanRun, name, reason string, remove func(*domain.LoanRecord) bool) {
	byYear := make(map[int]int)
	kept := run.records[:0]
	removed := 0

	for i := range run.records {
		rec := &run.records[i]
		if remove(rec) {
			removed++
			if year := yearOf(rec); year > 0 {
				byYear[year]++
			}
			continue
		}
		kept = append(kept, *rec)
	}
	run.records = kept

	if removed == 0 {
		return
	}

	run.audit.Removals = append(run.audit.Removals, RemovalEvent{
		Rule:    name,
		Reason:  reason,
		Removed: removed,
		ByYear:  byYear,
	})
	e.logger.InfoContext(ctx, "removed rows",
		slog.String("rule", name),
		slog.String("reason", reason),
		slog.Int("removed", removed),
		slog.Any("by_year", byYear))
}

// skip records that a rule could not run
func (e *Engine) skip(ctx context.Context, run *cleanRun, name, reason string) {
	run.audit.Skips = append(run.audit.Skips, SkipEvent{Rule: name, Reason: reason})
	e.logger.WarnContext(ctx, "skipped cleaning rule",
		slog.String("rule", name),
		slog.String("reason", reason))
}

func (e *Engine) dropMissingIssue(ctx context.Context, run *cleanRun) {
	e.drop(ctx, run, "missing_issue", "missing issue timestamp", func(r *domain.LoanRecord) bool {
		return r.IssueRaw == ""
	})
}

func (e *Engine) parseTimestampsAndDropInvalidIssue(ctx context.Context, run *cleanRun) {
	for i := range run.records {
		rec := &run.records[i]
		rec.IssueTime = parseTimestamp(rec.IssueRaw)
		rec.ReturnTime = parseTimestamp(rec.ReturnRaw)
	}
	e.drop(ctx, run, "invalid_issue", "unparseable issue timestamp", func(r *domain.LoanRecord) bool {
		return !r.IssueTime.Valid
	})
}

func (e *Engine) dropMissingReturn(ctx context.Context, run *cleanRun) {
	e.drop(ctx, run, "missing_return", "missing return timestamp", func(r *domain.LoanRecord) bool {
		return !r.ReturnTime.Valid
	})
}

func (e *Engine) dropReturnBeforeIssue(ctx context.Context, run *cleanRun) {
	e.drop(ctx, run, "return_before_issue", "return precedes issue", func(r *domain.LoanRecord) bool {
		return r.IssueTime.Valid && r.ReturnTime.Valid && r.ReturnTime.Time.Before(r.IssueTime.Time)
	})
}

func (e *Engine) dropExcludedUserCategories(ctx context.Context, run *cleanRun) {
	excluded := make(map[string]struct{}, len(e.cfg.RemoveUserCategories))
	for _, cat := range e.cfg.RemoveUserCategories {
		excluded[strings.TrimSpace(cat)] = struct{}{}
	}
	reason := fmt.Sprintf("user category in %v", e.cfg.RemoveUserCategories)
	e.drop(ctx, run, "excluded_user_category", reason, func(r *domain.LoanRecord) bool {
		_, ok := excluded[strings.TrimSpace(r.UserCategory)]
		return ok
	})
}

func (e *Engine) dropNegativeLoanDuration(ctx context.Context, run *cleanRun) {
	e.drop(ctx, run, "negative_loan_duration", "negative loan duration", func(r *domain.LoanRecord) bool {
		return r.LoanDuration.Valid && r.LoanDuration.Float64 < 0
	})
}

func (e *Engine) dropNegativeDaysLate(ctx context.Context, run *cleanRun) {
	// missing days-late counts as 0, matching the raw export convention
	for i := range run.records {
		if !run.records[i].DaysLate.Valid {
			run.records[i].DaysLate = domain.Float(0)
		}
	}
	e.drop(ctx, run, "negative_days_late", "negative days late", func(r *domain.LoanRecord) bool {
		return r.DaysLate.Float64 < 0
	})
}

func (e *Engine) normalizeLateFlag(ctx context.Context, run *cleanRun) {
	for i := range run.records {
		run.records[i].Late = NormalizeLate(run.records[i].LateRaw)
	}
	run.audit.LateNormalized = true
	e.logger.InfoContext(ctx, "normalized late flag", slog.Int("rows", len(run.records)))
}

// removeWeirdLoans flags loans whose open-business-day span exceeds the
// extension-scaled allowance and removes the flagged loans that are not
// late. A weird loan that is also late is kept as genuine overdue
// behavior; a weird loan that is not late is treated as a data artifact.
func (e *Engine) removeWeirdLoans(ctx context.Context, run *cleanRun) {
	if run.calendar == nil {
		e.skip(ctx, run, "weird_loan", "closed-days calendar not supplied")
		return
	}

	open := e.cfg.OpenWeekdays()
	flagged := 0
	lateAmongWeird := 0

	for i := range run.records {
		rec := &run.records[i]
		if !rec.IssueTime.Valid || !rec.ReturnTime.Valid || rec.ReturnTime.Time.Before(rec.IssueTime.Time) {
			// unparseable or inverted pairs are excluded from the
			// open-day computation and treated as not weird
			continue
		}

		ext := 0.0
		if rec.Extensions.Valid && rec.Extensions.Float64 > 0 {
			ext = rec.Extensions.Float64
		}
		if ext > float64(e.cfg.MaxExtensionsCap) {
			ext = float64(e.cfg.MaxExtensionsCap)
		}

		openDays := OpenDaysBetween(rec.IssueTime.Time, rec.ReturnTime.Time, open, run.calendar)
		rec.OpenDays = domain.Float(float64(openDays))
		rec.MaxAllowedOpenDays = domain.Float(float64(e.cfg.BaseAllowedOpenDays) * (1 + ext))
		rec.WeirdLoan = float64(openDays) > rec.MaxAllowedOpenDays.Float64

		if rec.WeirdLoan {
			flagged++
			if rec.Late {
				lateAmongWeird++
			}
		}
	}

	lateShare := 0.0
	if flagged > 0 {
		lateShare = float64(lateAmongWeird) / float64(flagged)
	}
	run.audit.WeirdFlagged = flagged
	run.audit.WeirdLateShare = lateShare

	e.logger.InfoContext(ctx, "weird loans flagged",
		slog.Int("flagged", flagged),
		slog.String("late_share", fmt.Sprintf("%.3f", lateShare)))

	e.drop(ctx, run, "weird_loan", "weird loan and not late", func(r *domain.LoanRecord) bool {
		return r.WeirdLoan && !r.Late
	})
}

// NormalizeLate canonicalizes the heterogeneous raw truth encodings of
// the late flag. Unrecognized values default to false. The mapping is
// stable under its own output, so normalizing twice equals normalizing
// once.
func NormalizeLate(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "ja":
		return true
	default:
		return false
	}
}

// parseTimestamp coerces a raw cell to a timestamp; failures stay null
func parseTimestamp(s string) domain.NullTime {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.NullTime{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Timestamp(t)
		}
	}
	return domain.NullTime{}
}
