package domain

import (
	"time"
)

// NullFloat is a float64 that may be absent. Raw numeric cells that fail
// to parse stay invalid instead of raising; downstream rules decide what
// to do with them.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid NullFloat
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// NullTime is a timestamp that may be absent or unparsed
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Timestamp returns a valid NullTime
func Timestamp(t time.Time) NullTime {
	return NullTime{Time: t, Valid: true}
}

// ExperienceStage labels how far into their borrowing history a user is
type ExperienceStage string

const (
	StageEarly       ExperienceStage = "early"
	StageExperienced ExperienceStage = "experienced"
)

// LoanRecord represents one borrowing transaction. Raw string fields are
// kept alongside their parsed forms so the cleaning engine can report
// exactly what it dropped.
type LoanRecord struct {
	// Raw cells as read from the yearly export
	IssueRaw  string
	ReturnRaw string
	LateRaw   string

	// Parsed timestamps; Valid is false before parsing or on parse failure
	IssueTime  NullTime
	ReturnTime NullTime

	// Identifiers; empty UserID marks an anonymous/non-tracked loan
	UserID       string
	UserCategory string
	MediaType    string
	ISBN         string
	Barcode      string

	// Numeric fields, null when the cell was empty or unparseable
	LoanDuration NullFloat
	DaysLate     NullFloat
	Extensions   NullFloat

	// Provenance: 4-digit year parsed from the source filename
	SourceYear int

	// Derived by the cleaning engine
	Late               bool
	OpenDays           NullFloat
	MaxAllowedOpenDays NullFloat
	WeirdLoan          bool

	// Derived by the feature builder; only set when UserID is non-empty
	Features *LoanFeatures
}

// HasUser reports whether this loan is attributable to a tracked user
func (r *LoanRecord) HasUser() bool {
	return r.UserID != ""
}

// LoanFeatures holds the per-loan derived behavioral features. A nil
// Features pointer on a LoanRecord means the loan has no tracked user
// and every derived feature is null.
type LoanFeatures struct {
	LateFlag bool

	// Session grouping: all loans by one user on one calendar day
	SessionDay           time.Time
	SessionIndex         int
	SessionSize          int
	SessionLateFlag      bool
	SessionExtensionFlag bool

	// Strict-majority media type of the session; empty on a tie
	DominantMediaType string

	ExperienceStage ExperienceStage

	// Issue-timing features
	Weekday     time.Weekday
	Hour        int
	PreciseHour float64

	// Per-user timing aggregates, broadcast to every loan row of the user
	ModalWeekday        time.Weekday
	ModalHour           int
	UserMeanPreciseHour float64
	UserStdPreciseHour  float64

	// Whether this loan's weekday+hour matches the user's modal pair
	MatchesTypicalTime bool
}

// UserTimingProfile aggregates a user's visit-timing habits
type UserTimingProfile struct {
	UserID          string
	ModalWeekday    time.Weekday
	ModalHour       int
	MeanPreciseHour float64
	StdPreciseHour  float64
	Visits          int
}

// SessionKey identifies one (user, calendar day) session
type SessionKey struct {
	UserID string
	Day    time.Time
}

// Day normalizes a timestamp to its calendar day in UTC
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
