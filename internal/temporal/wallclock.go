package temporal

import (
	"fmt"
	"strings"
	"time"
)

const (
	wallClockLayout       = "2006-01-02T15:04:05"
	wallClockMinuteLayout = "2006-01-02T15:04"
	wallClockDateLayout   = "2006-01-02"
)

// WallClock is a calendar date and time-of-day as written, without a zone.
// The zero value is not a valid wall clock.
type WallClock struct {
	Year       int
	Month      time.Month
	Day        int
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// Date builds a wall clock at midnight of the given date.
func Date(year int, month time.Month, day int) WallClock {
	return WallClock{Year: year, Month: month, Day: day}
}

// NewWallClock builds a normalized wall clock. Out-of-range fields roll over
// the same way time.Date does.
func NewWallClock(year int, month time.Month, day, hour, minute, second, nsec int) WallClock {
	return FromTime(time.Date(year, month, day, hour, minute, second, nsec, time.UTC))
}

// FromTime reads the wall clock of t in t's own location.
func FromTime(t time.Time) WallClock {
	y, m, d := t.Date()
	return WallClock{
		Year:       y,
		Month:      m,
		Day:        d,
		Hour:       t.Hour(),
		Minute:     t.Minute(),
		Second:     t.Second(),
		Nanosecond: t.Nanosecond(),
	}
}

// ParseWallClock accepts 2006-01-02T15:04:05, 2006-01-02T15:04 and 2006-01-02.
func ParseWallClock(value string) (WallClock, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{wallClockLayout, wallClockMinuteLayout, wallClockDateLayout} {
		t, err := time.Parse(layout, value)
		if err == nil {
			return FromTime(t), nil
		}
	}
	return WallClock{}, fmt.Errorf("temporal: invalid wall clock %q", value)
}

// floating places the wall clock on a UTC timeline. It is only used for
// calendar arithmetic and ordering, never as an instant.
func (w WallClock) floating() time.Time {
	return time.Date(w.Year, w.Month, w.Day, w.Hour, w.Minute, w.Second, w.Nanosecond, time.UTC)
}

// IsZero reports whether w is the zero value.
func (w WallClock) IsZero() bool {
	return w == WallClock{}
}

// Valid reports whether every field is within its calendar range.
func (w WallClock) Valid() bool {
	if w.Month < time.January || w.Month > time.December {
		return false
	}
	if w.Day < 1 || w.Day > DaysIn(w.Year, w.Month) {
		return false
	}
	return w.Hour >= 0 && w.Hour < 24 &&
		w.Minute >= 0 && w.Minute < 60 &&
		w.Second >= 0 && w.Second < 60 &&
		w.Nanosecond >= 0 && w.Nanosecond < int(time.Second)
}

// Weekday returns the day of the week of the date.
func (w WallClock) Weekday() time.Weekday {
	return w.floating().Weekday()
}

// YearDay returns the day of the year, 1-based.
func (w WallClock) YearDay() int {
	return w.floating().YearDay()
}

// DateOnly truncates the time-of-day.
func (w WallClock) DateOnly() WallClock {
	return Date(w.Year, w.Month, w.Day)
}

// WithDate keeps the time-of-day of w and replaces its date.
func (w WallClock) WithDate(year int, month time.Month, day int) WallClock {
	w.Year, w.Month, w.Day = year, month, day
	return w
}

// AddDate adds calendar years, months and days, normalizing overflow.
func (w WallClock) AddDate(years, months, days int) WallClock {
	return FromTime(w.floating().AddDate(years, months, days))
}

// Add shifts the wall clock by an exact duration as if no zone transitions existed.
func (w WallClock) Add(d time.Duration) WallClock {
	return FromTime(w.floating().Add(d))
}

// Sub returns the wall-clock distance w - other.
func (w WallClock) Sub(other WallClock) time.Duration {
	return w.floating().Sub(other.floating())
}

// Compare returns -1, 0 or +1.
func (w WallClock) Compare(other WallClock) int {
	return w.floating().Compare(other.floating())
}

// Before reports whether w is strictly earlier than other.
func (w WallClock) Before(other WallClock) bool { return w.Compare(other) < 0 }

// After reports whether w is strictly later than other.
func (w WallClock) After(other WallClock) bool { return w.Compare(other) > 0 }

// In interprets the wall clock in loc without any DST checks. Use ToInstant
// for a checked conversion.
func (w WallClock) In(loc *time.Location) time.Time {
	return time.Date(w.Year, w.Month, w.Day, w.Hour, w.Minute, w.Second, w.Nanosecond, loc)
}

// String formats the wall clock as 2006-01-02T15:04:05.
func (w WallClock) String() string {
	s := w.floating().Format(wallClockLayout)
	if w.Nanosecond != 0 {
		s = w.floating().Format(wallClockLayout + ".999999999")
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (w WallClock) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *WallClock) UnmarshalText(data []byte) error {
	parsed, err := ParseWallClock(string(data))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// DaysIn returns the number of days in the month of the given year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
