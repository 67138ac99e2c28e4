package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Frequency represents the base unit a rule steps by.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily steps one calendar day at a time.
	FrequencyDaily
	// FrequencyWeekly steps whole weeks aligned to the rule's week start.
	FrequencyWeekly
	// FrequencyMonthly steps calendar months.
	FrequencyMonthly
	// FrequencyYearly steps calendar years.
	FrequencyYearly
)

var frequencyNames = map[Frequency]string{
	FrequencyDaily:   "daily",
	FrequencyWeekly:  "weekly",
	FrequencyMonthly: "monthly",
	FrequencyYearly:  "yearly",
}

// String returns the lower-case name of the frequency.
func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("frequency(%d)", int(f))
}

// ParseFrequency maps daily/weekly/monthly/yearly (any case) to a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for freq, name := range frequencyNames {
		if name == value {
			return freq, nil
		}
	}
	return FrequencyUnspecified, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrenceRule, value)
}

// WeekdayNum selects a weekday, optionally restricted to its nth appearance in
// the month (or year). Ordinal 0 selects every such weekday; negative ordinals
// count from the end.
type WeekdayNum struct {
	Weekday time.Weekday
	Ordinal int
}

// Every selects all occurrences of the weekday within the period.
func Every(day time.Weekday) WeekdayNum {
	return WeekdayNum{Weekday: day}
}

// Nth selects the nth weekday within the period.
func Nth(n int, day time.Weekday) WeekdayNum {
	return WeekdayNum{Weekday: day, Ordinal: n}
}

// Rule is an immutable recurrence definition. Exactly one of Count and Until
// may be set; when neither is, the rule is unbounded and every consumer must
// supply a window.
type Rule struct {
	Frequency  Frequency
	Interval   int
	ByWeekday  []WeekdayNum
	ByMonthDay []int
	ByMonth    []time.Month
	// WeekStart aligns weekly periods; the zero value is Sunday, rules built via
	// ParseRRule or NewRule default to Monday.
	WeekStart time.Weekday
	Count     int
	Until     *time.Time
	// Exceptions are instants whose wall clock, in the event zone, is removed
	// from the generated sequence.
	Exceptions []time.Time
}

var (
	// ErrInvalidRecurrenceRule indicates a malformed rule.
	ErrInvalidRecurrenceRule = errors.New("recurrence: invalid rule")
	// ErrExpansionBoundExceeded indicates an expansion hit the safety limits.
	ErrExpansionBoundExceeded = errors.New("recurrence: expansion bound exceeded")
)

// NewRule returns a rule with interval 1 and Monday week start.
func NewRule(freq Frequency) Rule {
	return Rule{Frequency: freq, Interval: 1, WeekStart: time.Monday}
}

// Validate reports a wrapped ErrInvalidRecurrenceRule describing the first problem found.
func (r Rule) Validate() error {
	if _, ok := frequencyNames[r.Frequency]; !ok {
		return fmt.Errorf("%w: unsupported frequency %d", ErrInvalidRecurrenceRule, int(r.Frequency))
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrInvalidRecurrenceRule, r.Interval)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", ErrInvalidRecurrenceRule)
	}
	if r.Count > 0 && r.Until != nil {
		return fmt.Errorf("%w: count and until are mutually exclusive", ErrInvalidRecurrenceRule)
	}
	if r.WeekStart < time.Sunday || r.WeekStart > time.Saturday {
		return fmt.Errorf("%w: invalid week start %d", ErrInvalidRecurrenceRule, int(r.WeekStart))
	}
	for _, day := range r.ByMonthDay {
		if day == 0 || day < -31 || day > 31 {
			return fmt.Errorf("%w: by-month-day %d out of range", ErrInvalidRecurrenceRule, day)
		}
	}
	for _, month := range r.ByMonth {
		if month < time.January || month > time.December {
			return fmt.Errorf("%w: by-month %d out of range", ErrInvalidRecurrenceRule, int(month))
		}
	}
	for _, wd := range r.ByWeekday {
		if wd.Weekday < time.Sunday || wd.Weekday > time.Saturday {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidRecurrenceRule, int(wd.Weekday))
		}
		if wd.Ordinal < -53 || wd.Ordinal > 53 {
			return fmt.Errorf("%w: weekday ordinal %d out of range", ErrInvalidRecurrenceRule, wd.Ordinal)
		}
		if wd.Ordinal != 0 && (r.Frequency == FrequencyDaily || r.Frequency == FrequencyWeekly) {
			return fmt.Errorf("%w: weekday ordinals require monthly or yearly frequency", ErrInvalidRecurrenceRule)
		}
	}
	return nil
}

// Bounded reports whether the rule terminates on its own.
func (r Rule) Bounded() bool {
	return r.Count > 0 || r.Until != nil
}

// WithCount returns a copy bounded by count occurrences (until is cleared).
func (r Rule) WithCount(count int) Rule {
	c := r.clone()
	c.Count = count
	c.Until = nil
	return c
}

// WithUntil returns a copy bounded by the inclusive instant until (count is cleared).
func (r Rule) WithUntil(until time.Time) Rule {
	c := r.clone()
	u := until.UTC()
	c.Until = &u
	c.Count = 0
	return c
}

// WithExceptions returns a copy with the given exception instants appended.
func (r Rule) WithExceptions(exceptions ...time.Time) Rule {
	c := r.clone()
	for _, ex := range exceptions {
		c.Exceptions = append(c.Exceptions, ex.UTC())
	}
	return c
}

func (r Rule) clone() Rule {
	c := r
	c.ByWeekday = slices.Clone(r.ByWeekday)
	c.ByMonthDay = slices.Clone(r.ByMonthDay)
	c.ByMonth = slices.Clone(r.ByMonth)
	c.Exceptions = slices.Clone(r.Exceptions)
	if r.Until != nil {
		u := *r.Until
		c.Until = &u
	}
	return c
}
