package cleaning

import (
	"time"

	"bibliocli/pkg/contracts/domain"
)

// OpenDaysBetween counts the library-open business days in the half-open
// interval [start, end), taken at calendar-day resolution. A day counts
// when its weekday is marked open and it is not an exceptional closed
// day. end before start yields 0.
func OpenDaysBetween(start, end time.Time, open [7]bool, cal *domain.ClosedCalendar) int {
	from := domain.Day(start)
	to := domain.Day(end)

	count := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if !open[d.Weekday()] {
			continue
		}
		if cal.IsClosed(d) {
			continue
		}
		count++
	}
	return count
}
