package recurrence

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/example/calendar-scheduler/internal/temporal"
)

const (
	// DefaultMaxCandidates caps the candidates a single sequence may generate.
	DefaultMaxCandidates = 100_000
	// DefaultHorizonYears caps how far past its start a sequence may look.
	DefaultHorizonYears = 400
)

// Limits are the safety bounds of an expansion. Exceeding either fails the
// sequence with ErrExpansionBoundExceeded.
type Limits struct {
	MaxCandidates int
	HorizonYears  int
}

// DefaultLimits returns the limits applied when Options.Limits is zero.
func DefaultLimits() Limits {
	return Limits{MaxCandidates: DefaultMaxCandidates, HorizonYears: DefaultHorizonYears}
}

func (l Limits) normalized() Limits {
	def := DefaultLimits()
	if l.MaxCandidates <= 0 {
		l.MaxCandidates = def.MaxCandidates
	}
	if l.HorizonYears <= 0 {
		l.HorizonYears = def.HorizonYears
	}
	return l
}

// Options bound a sequence to a window of wall-clock time.
type Options struct {
	// After suppresses candidates strictly before it. For rules without Count
	// whole periods before it are skipped without being generated.
	After *temporal.WallClock
	// WindowEnd ends the sequence at the first candidate after it (inclusive bound).
	WindowEnd *temporal.WallClock
	Limits    Limits
}

// Sequence lazily generates the start wall clocks of a rule in ascending order.
// It follows the bufio.Scanner protocol: call Next until it returns false,
// then check Err. A Sequence is not safe for concurrent use; Reset restarts it.
type Sequence struct {
	rule       Rule
	start      temporal.WallClock
	until      *temporal.WallClock
	exceptions map[temporal.WallClock]struct{}
	opts       Options
	limits     Limits
	horizon    temporal.WallClock
	firstUnit  int

	unit      int
	pending   []temporal.WallClock
	generated int
	last      temporal.WallClock
	hasLast   bool
	current   temporal.WallClock
	done      bool
	err       error
}

// Expand validates the rule and returns a sequence of candidate starts beginning
// at start. zone resolves Until and Exceptions into wall clocks.
func (r Rule) Expand(start temporal.WallClock, zone temporal.Zone, opts Options) (*Sequence, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if !start.Valid() {
		return nil, fmt.Errorf("%w: invalid start %s", ErrInvalidRecurrenceRule, start)
	}

	s := &Sequence{
		rule:   r.clone(),
		start:  start,
		opts:   opts,
		limits: opts.Limits.normalized(),
	}
	s.horizon = start.AddDate(s.limits.HorizonYears, 0, 0)

	if r.Until != nil {
		until := temporal.ToWallClock(*r.Until, zone)
		s.until = &until
	}
	if len(r.Exceptions) > 0 {
		s.exceptions = make(map[temporal.WallClock]struct{}, len(r.Exceptions))
		for _, ex := range r.Exceptions {
			s.exceptions[temporal.ToWallClock(ex, zone)] = struct{}{}
		}
	}
	if opts.After != nil && r.Count == 0 {
		s.firstUnit = s.unitsBefore(*opts.After)
	}
	s.Reset()
	return s, nil
}

// Reset rewinds the sequence to its first candidate.
func (s *Sequence) Reset() {
	s.unit = s.firstUnit
	s.pending = s.pending[:0]
	s.generated = 0
	s.last = temporal.WallClock{}
	s.hasLast = false
	s.current = temporal.WallClock{}
	s.done = false
	s.err = nil
}

// Next advances to the next candidate. It returns false when the sequence is
// exhausted, the window ends, or an error occurred.
func (s *Sequence) Next() bool {
	for !s.done {
		if len(s.pending) == 0 {
			anchor := s.unitAnchor(s.unit)
			if s.opts.WindowEnd != nil && anchor.After(*s.opts.WindowEnd) {
				s.done = true
				break
			}
			if s.until != nil && anchor.After(*s.until) {
				s.done = true
				break
			}
			if anchor.After(s.horizon) {
				s.fail(fmt.Errorf("%w: no end within %d years of %s", ErrExpansionBoundExceeded, s.limits.HorizonYears, s.start))
				break
			}
			s.pending = append(s.pending[:0], s.expandUnit(anchor)...)
			s.unit++
			continue
		}

		candidate := s.pending[0]
		s.pending = s.pending[1:]

		if candidate.Before(s.start) {
			continue
		}
		if s.hasLast && !candidate.After(s.last) {
			continue
		}
		if s.until != nil && candidate.After(*s.until) {
			s.done = true
			break
		}
		if s.opts.WindowEnd != nil && candidate.After(*s.opts.WindowEnd) {
			s.done = true
			break
		}
		if s.rule.Count > 0 && s.generated >= s.rule.Count {
			s.done = true
			break
		}
		if s.generated >= s.limits.MaxCandidates {
			s.fail(fmt.Errorf("%w: more than %d candidates", ErrExpansionBoundExceeded, s.limits.MaxCandidates))
			break
		}
		s.generated++
		s.last, s.hasLast = candidate, true

		if _, excluded := s.exceptions[candidate]; excluded {
			continue
		}
		if s.opts.After != nil && candidate.Before(*s.opts.After) {
			continue
		}
		s.current = candidate
		return true
	}
	return false
}

// Value returns the candidate produced by the last successful Next.
func (s *Sequence) Value() temporal.WallClock {
	return s.current
}

// Err returns the error that stopped the sequence, if any.
func (s *Sequence) Err() error {
	return s.err
}

// All restarts the sequence and yields every candidate. A terminal error is
// yielded once with a zero wall clock.
func (s *Sequence) All() iter.Seq2[temporal.WallClock, error] {
	return func(yield func(temporal.WallClock, error) bool) {
		s.Reset()
		for s.Next() {
			if !yield(s.Value(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(temporal.WallClock{}, err)
		}
	}
}

// Collect drains the sequence from its beginning.
func (s *Sequence) Collect() ([]temporal.WallClock, error) {
	var out []temporal.WallClock
	for w, err := range s.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *Sequence) fail(err error) {
	s.err = err
	s.done = true
}

// Between returns the candidates of the rule within [from, to], both inclusive.
func (r Rule) Between(start temporal.WallClock, zone temporal.Zone, from, to temporal.WallClock) ([]temporal.WallClock, error) {
	seq, err := r.Expand(start, zone, Options{After: &from, WindowEnd: &to})
	if err != nil {
		return nil, err
	}
	return seq.Collect()
}

// unitAnchor returns the first calendar day of unit k.
func (s *Sequence) unitAnchor(k int) temporal.WallClock {
	step := k * s.rule.Interval
	switch s.rule.Frequency {
	case FrequencyDaily:
		return s.start.DateOnly().AddDate(0, 0, step)
	case FrequencyWeekly:
		return weekStartOf(s.start, s.rule.WeekStart).AddDate(0, 0, 7*step)
	case FrequencyMonthly:
		return temporal.Date(s.start.Year, s.start.Month, 1).AddDate(0, step, 0)
	default:
		return temporal.Date(s.start.Year+step, time.January, 1)
	}
}

// unitsBefore returns a unit index whose candidates all precede w, or 0.
func (s *Sequence) unitsBefore(w temporal.WallClock) int {
	if !w.After(s.start) {
		return 0
	}
	var units int
	switch s.rule.Frequency {
	case FrequencyDaily:
		units = int(w.DateOnly().Sub(s.start.DateOnly()) / (24 * time.Hour))
	case FrequencyWeekly:
		from := weekStartOf(s.start, s.rule.WeekStart)
		to := weekStartOf(w, s.rule.WeekStart)
		units = int(to.Sub(from)/(24*time.Hour)) / 7
	case FrequencyMonthly:
		units = (w.Year-s.start.Year)*12 + int(w.Month) - int(s.start.Month)
	case FrequencyYearly:
		units = w.Year - s.start.Year
	}
	k := units/s.rule.Interval - 1
	if k < 0 {
		return 0
	}
	return k
}

func (s *Sequence) expandUnit(anchor temporal.WallClock) []temporal.WallClock {
	var days []temporal.WallClock
	switch s.rule.Frequency {
	case FrequencyDaily:
		if s.matchesMonth(anchor.Month) && s.matchesMonthDay(anchor) && s.matchesWeekday(anchor.Weekday(), s.start.Weekday()) {
			days = append(days, anchor)
		}
	case FrequencyWeekly:
		for i := 0; i < 7; i++ {
			day := anchor.AddDate(0, 0, i)
			if s.matchesMonth(day.Month) && s.matchesMonthDay(day) && s.matchesWeekday(day.Weekday(), s.start.Weekday()) {
				days = append(days, day)
			}
		}
	case FrequencyMonthly:
		if s.matchesMonth(anchor.Month) {
			days = s.monthDays(anchor.Year, anchor.Month)
		}
	case FrequencyYearly:
		days = s.yearDays(anchor.Year)
	}

	out := make([]temporal.WallClock, 0, len(days))
	for _, day := range days {
		out = append(out, s.start.WithDate(day.Year, day.Month, day.Day))
	}
	return out
}

func (s *Sequence) matchesMonth(month time.Month) bool {
	return len(s.rule.ByMonth) == 0 || slices.Contains(s.rule.ByMonth, month)
}

func (s *Sequence) matchesMonthDay(day temporal.WallClock) bool {
	if len(s.rule.ByMonthDay) == 0 {
		return true
	}
	last := temporal.DaysIn(day.Year, day.Month)
	for _, md := range s.rule.ByMonthDay {
		if resolved, ok := resolveMonthDay(md, last); ok && resolved == day.Day {
			return true
		}
	}
	return false
}

// matchesWeekday filters daily and weekly units. Weekly rules without
// by-weekday repeat on the start's weekday.
func (s *Sequence) matchesWeekday(day, startDay time.Weekday) bool {
	if len(s.rule.ByWeekday) == 0 {
		return s.rule.Frequency != FrequencyWeekly || day == startDay
	}
	for _, wd := range s.rule.ByWeekday {
		if wd.Weekday == day {
			return true
		}
	}
	return false
}

// monthDays lists the matching days of one month in ascending order. A
// by-month-day with no valid day in the month contributes nothing.
func (s *Sequence) monthDays(year int, month time.Month) []temporal.WallClock {
	last := temporal.DaysIn(year, month)
	hasMonthDay := len(s.rule.ByMonthDay) > 0
	hasWeekday := len(s.rule.ByWeekday) > 0

	if !hasMonthDay && !hasWeekday {
		if s.start.Day > last {
			return nil
		}
		return []temporal.WallClock{temporal.Date(year, month, s.start.Day)}
	}

	var monthDays, weekdayDays []int
	if hasMonthDay {
		for _, md := range s.rule.ByMonthDay {
			if resolved, ok := resolveMonthDay(md, last); ok {
				monthDays = append(monthDays, resolved)
			}
		}
	}
	if hasWeekday {
		for _, wd := range s.rule.ByWeekday {
			weekdayDays = append(weekdayDays, weekdayDaysInMonth(year, month, wd)...)
		}
	}

	var selected []int
	switch {
	case hasMonthDay && hasWeekday:
		for _, d := range monthDays {
			if slices.Contains(weekdayDays, d) {
				selected = append(selected, d)
			}
		}
	case hasMonthDay:
		selected = monthDays
	default:
		selected = weekdayDays
	}

	slices.Sort(selected)
	selected = slices.Compact(selected)
	out := make([]temporal.WallClock, 0, len(selected))
	for _, d := range selected {
		out = append(out, temporal.Date(year, month, d))
	}
	return out
}

func (s *Sequence) yearDays(year int) []temporal.WallClock {
	months := slices.Clone(s.rule.ByMonth)
	if len(months) == 0 {
		switch {
		case len(s.rule.ByWeekday) > 0:
			// Ordinals count within the year; by-month-day then filters.
			days := weekdayDaysInYear(year, s.rule.ByWeekday)
			if len(s.rule.ByMonthDay) == 0 {
				return days
			}
			return slices.DeleteFunc(days, func(d temporal.WallClock) bool { return !s.matchesMonthDay(d) })
		case len(s.rule.ByMonthDay) > 0:
			months = allMonths()
		default:
			months = []time.Month{s.start.Month}
		}
	}
	slices.Sort(months)
	months = slices.Compact(months)

	var out []temporal.WallClock
	for _, month := range months {
		out = append(out, s.monthDays(year, month)...)
	}
	return out
}

func resolveMonthDay(md, last int) (int, bool) {
	day := md
	if md < 0 {
		day = last + 1 + md
	}
	if day < 1 || day > last {
		return 0, false
	}
	return day, true
}

func weekdayDaysInMonth(year int, month time.Month, wd WeekdayNum) []int {
	last := temporal.DaysIn(year, month)
	first := temporal.Date(year, month, 1).Weekday()
	offset := (int(wd.Weekday) - int(first) + 7) % 7

	var days []int
	for d := 1 + offset; d <= last; d += 7 {
		days = append(days, d)
	}
	return pickOrdinal(days, wd.Ordinal)
}

func weekdayDaysInYear(year int, weekdays []WeekdayNum) []temporal.WallClock {
	jan1 := temporal.Date(year, time.January, 1)
	length := 365
	if temporal.DaysIn(year, time.February) == 29 {
		length = 366
	}

	var offsets []int
	for _, wd := range weekdays {
		first := (int(wd.Weekday) - int(jan1.Weekday()) + 7) % 7
		var all []int
		for d := first; d < length; d += 7 {
			all = append(all, d)
		}
		offsets = append(offsets, pickOrdinal(all, wd.Ordinal)...)
	}
	slices.Sort(offsets)
	offsets = slices.Compact(offsets)

	out := make([]temporal.WallClock, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, jan1.AddDate(0, 0, off))
	}
	return out
}

func pickOrdinal(values []int, ordinal int) []int {
	switch {
	case ordinal == 0:
		return values
	case ordinal > 0 && ordinal <= len(values):
		return []int{values[ordinal-1]}
	case ordinal < 0 && -ordinal <= len(values):
		return []int{values[len(values)+ordinal]}
	default:
		return nil
	}
}

func weekStartOf(w temporal.WallClock, weekStart time.Weekday) temporal.WallClock {
	back := (int(w.Weekday()) - int(weekStart) + 7) % 7
	return w.DateOnly().AddDate(0, 0, -back)
}

func allMonths() []time.Month {
	months := make([]time.Month, 0, 12)
	for m := time.January; m <= time.December; m++ {
		months = append(months, m)
	}
	return months
}
