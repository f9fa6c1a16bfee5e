// Package timeutil provides timezone utilities for Almaty timezone (UTC+5).
// Streaks and daily activity are user-facing "did you show up today" concepts,
// so all calendar-day math is done in the students' local timezone rather
// than with elapsed-hours arithmetic.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
// Kazakhstan abolished DST in 2005, so this is constant year-round.
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// Now returns the current time in Almaty timezone.
func Now() time.Time {
	return time.Now().In(AlmatyTZ)
}

// ToAlmaty converts a time to Almaty timezone.
func ToAlmaty(t time.Time) time.Time {
	return t.In(AlmatyTZ)
}

// Date creates a time in Almaty timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, AlmatyTZ)
}

// DateTime creates a time in Almaty timezone with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, AlmatyTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Almaty timezone.
func StartOfDay(t time.Time) time.Time {
	almaty := ToAlmaty(t)
	return time.Date(almaty.Year(), almaty.Month(), almaty.Day(), 0, 0, 0, 0, AlmatyTZ)
}

// StartOfWeek returns the start of the week (Monday 00:00:00) in Almaty timezone.
func StartOfWeek(t time.Time) time.Time {
	almaty := ToAlmaty(t)
	weekday := int(almaty.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	daysToSubtract := weekday - 1 // Monday = 1
	return StartOfDay(almaty.AddDate(0, 0, -daysToSubtract))
}

// TrailingWindowStart returns the start of a trailing window of the given
// number of days, ending at t. A 7-day window covers today plus the six
// previous calendar days.
func TrailingWindowStart(t time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	return StartOfDay(t).AddDate(0, 0, -(days - 1))
}

// IsSameDay checks if two times are on the same calendar day in Almaty timezone.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := ToAlmaty(t1), ToAlmaty(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// IsConsecutiveDay checks if t2 is the calendar day after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	nextDay := ToAlmaty(t1).AddDate(0, 0, 1)
	return IsSameDay(nextDay, t2)
}

// CalendarDaysBetween returns the signed number of calendar days from t1 to t2.
// Positive when t2 is after t1. Computed on day boundaries, so 23:59 to 00:01
// the next day counts as one day.
func CalendarDaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	return int(d2.Sub(d1).Hours() / 24)
}

// IsToday checks if the given time is today in Almaty timezone.
func IsToday(t time.Time) bool {
	return IsSameDay(t, Now())
}

// IsYesterday checks if the given time is yesterday in Almaty timezone.
func IsYesterday(t time.Time) bool {
	return IsSameDay(t, Now().AddDate(0, 0, -1))
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in Almaty timezone.
func FormatDateStr(t time.Time) string {
	return ToAlmaty(t).Format(FormatDate)
}

// ParseDateAlmaty parses a date string (YYYY-MM-DD) in Almaty timezone.
func ParseDateAlmaty(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, AlmatyTZ)
}
