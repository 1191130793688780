package utils

import "time"

// MonthBounds returns [first day 00:00, first day of next month 00:00) in loc.
func MonthBounds(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
