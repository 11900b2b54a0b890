package cleaning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bibliocli/internal/config"
	"bibliocli/pkg/contracts/domain"
)

func tueSatMask(t *testing.T) [7]bool {
	t.Helper()
	c := config.CleaningConfig{OpenWeekdayMask: "0111110"}
	return c.OpenWeekdays()
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOpenDaysBetween(t *testing.T) {
	open := tueSatMask(t)

	t.Run("one full week tue-sat", func(t *testing.T) {
		// Mon 2023-01-02 .. Mon 2023-01-09: Tue 3rd through Sat 7th are open
		got := OpenDaysBetween(day(2023, 1, 2), day(2023, 1, 9), open, nil)
		assert.Equal(t, 5, got)
	})

	t.Run("interval is half open", func(t *testing.T) {
		// Tue 3rd counted, Wed 4th (end) excluded
		got := OpenDaysBetween(day(2023, 1, 3), day(2023, 1, 4), open, nil)
		assert.Equal(t, 1, got)

		got = OpenDaysBetween(day(2023, 1, 3), day(2023, 1, 3), open, nil)
		assert.Equal(t, 0, got)
	})

	t.Run("end before start yields zero", func(t *testing.T) {
		got := OpenDaysBetween(day(2023, 1, 9), day(2023, 1, 2), open, nil)
		assert.Equal(t, 0, got)
	})

	t.Run("holidays excluded", func(t *testing.T) {
		cal := domain.NewClosedCalendar([]time.Time{
			day(2023, 1, 4),                               // Wed
			time.Date(2023, 1, 5, 13, 45, 0, 0, time.UTC), // Thu, mid-day timestamp normalizes
			day(2023, 1, 4),                               // duplicate
		})
		got := OpenDaysBetween(day(2023, 1, 2), day(2023, 1, 9), open, cal)
		assert.Equal(t, 3, got)
	})

	t.Run("closed weekdays never count", func(t *testing.T) {
		// Sun 8th and Mon 9th fall inside but the mask closes them
		got := OpenDaysBetween(day(2023, 1, 7), day(2023, 1, 11), open, nil)
		// Sat 7th and Tue 10th are open
		assert.Equal(t, 2, got)
	})

	t.Run("time of day is ignored", func(t *testing.T) {
		start := time.Date(2023, 1, 3, 23, 59, 0, 0, time.UTC)
		end := time.Date(2023, 1, 4, 0, 1, 0, 0, time.UTC)
		assert.Equal(t, 1, OpenDaysBetween(start, end, open, nil))
	})
}
