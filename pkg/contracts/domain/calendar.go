package domain

import (
	"time"
)

// ClosedCalendar is the set of exceptional closed dates (holidays),
// normalized to calendar days and deduplicated.
type ClosedCalendar struct {
	days map[time.Time]struct{}
}

// NewClosedCalendar builds a calendar from a list of dates. Times are
// normalized to their calendar day; duplicates collapse.
func NewClosedCalendar(dates []time.Time) *ClosedCalendar {
	days := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		days[Day(d)] = struct{}{}
	}
	return &ClosedCalendar{days: days}
}

// IsClosed reports whether the calendar day of t is an exceptional closed day
func (c *ClosedCalendar) IsClosed(t time.Time) bool {
	if c == nil {
		return false
	}
	_, ok := c.days[Day(t)]
	return ok
}

// Len returns the number of distinct closed days
func (c *ClosedCalendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.days)
}
