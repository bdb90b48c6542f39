// Package timeutil provides UTC calendar utilities for learnsync.
// Every date the progress core stores is a "YYYY-MM-DD" string anchored to UTC,
// so results never depend on the caller's local timezone.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// FormatDate is the canonical date layout (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// UTCDateString formats an instant as its UTC calendar date.
// 2024-01-15T23:59:59Z -> "2024-01-15", 2024-01-16T00:00:00Z -> "2024-01-16".
func UTCDateString(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// StartOfDay returns 00:00:00 UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns Monday 00:00 UTC of the ISO week containing t.
// A Sunday maps to the previous Monday.
func StartOfWeek(t time.Time) time.Time {
	u := t.UTC()
	weekday := int(u.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(u.AddDate(0, 0, -(weekday - 1)))
}

// WeekStartUTC returns the Monday of the ISO week containing t as a date string.
func WeekStartUTC(t time.Time) string {
	return UTCDateString(StartOfWeek(t))
}

// ParseDate parses a "YYYY-MM-DD" string as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(FormatDate, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q: %w", value, err)
	}
	return t, nil
}

// IsValidDate reports whether value is a well-formed "YYYY-MM-DD" date.
func IsValidDate(value string) bool {
	t, err := ParseDate(value)
	return err == nil && t.Format(FormatDate) == value
}

// AddDays shifts a date string by n days. Invalid input is returned unchanged.
func AddDays(date string, n int) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format(FormatDate)
}

// WeekStartOf returns the Monday of the week containing the given date string.
func WeekStartOf(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return WeekStartUTC(t)
}

// DaysBetween returns the signed number of days from one date to another
// (to - from). ok is false when either date is malformed.
func DaysBetween(from, to string) (days int, ok bool) {
	f, err := ParseDate(from)
	if err != nil {
		return 0, false
	}
	t, err := ParseDate(to)
	if err != nil {
		return 0, false
	}
	return int(t.Sub(f).Hours() / 24), true
}

// DaysIntoWeek returns how many days of the ISO week precede the given date
// (Monday -> 0, Sunday -> 6).
func DaysIntoWeek(date string) int {
	days, ok := DaysBetween(WeekStartOf(date), date)
	if !ok {
		return 0
	}
	return days
}

// IsSameDay checks if two instants fall on the same UTC calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	return UTCDateString(t1) == UTCDateString(t2)
}

// MaxDate returns the later of two date strings. Empty strings sort first,
// and "YYYY-MM-DD" strings compare chronologically as plain strings.
func MaxDate(a, b string) string {
	if a >= b {
		return a
	}
	return b
}
