package domain

import "time"

// WeekStart returns Monday 00:00 of the week containing t, in t's location.
// Sunday is treated as day 7 of the prior week.
func WeekStart(t time.Time) time.Time {
	day := int(t.Weekday())
	if day == 0 {
		day = 7
	}
	monday := t.AddDate(0, 0, -(day - 1))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

// WeekEnd returns the last instant of the Monday-started week.
func WeekEnd(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// ISOWeekday returns the 1-based day of week with Monday=1 and Sunday=7.
func ISOWeekday(t time.Time) int {
	day := int(t.Weekday())
	if day == 0 {
		return 7
	}
	return day
}

// WeeksInRange lists the Monday-started week windows covering [from, to],
// oldest first.
func WeeksInRange(from, to time.Time) []WeekWindow {
	var weeks []WeekWindow
	for cur := WeekStart(from); !cur.After(to); cur = cur.AddDate(0, 0, 7) {
		weeks = append(weeks, WeekWindow{Start: cur, End: WeekEnd(cur)})
	}
	return weeks
}

// WeekWindow is one Monday-Sunday window.
type WeekWindow struct {
	Start time.Time
	End   time.Time
}
