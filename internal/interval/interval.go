// Package interval implements half-open time interval algebra.
//
// Every function that returns a set of intervals returns them sorted by start
// and pairwise disjoint.
package interval

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

// ErrInvalidInterval indicates an interval whose start is after its end.
var ErrInvalidInterval = errors.New("interval: start must not be after end")

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// New validates and builds an interval.
func New(start, end time.Time) (Interval, error) {
	if start.After(end) {
		return Interval{}, fmt.Errorf("%w: %s > %s", ErrInvalidInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// IsEmpty reports whether the interval covers no time.
func (i Interval) IsEmpty() bool {
	return !i.Start.Before(i.End)
}

// Overlaps reports whether i and o share any instant. Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// ContainsInstant reports whether t lies in [Start, End).
func (i Interval) ContainsInstant(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Intersect returns the common part of i and o, if they overlap.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	if !i.Overlaps(o) {
		return Interval{}, false
	}
	return Interval{Start: latest(i.Start, o.Start), End: earliest(i.End, o.End)}, true
}

// String formats the interval in RFC 3339.
func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Subtract returns the parts of a not covered by b: zero, one or two intervals.
func Subtract(a, b Interval) []Interval {
	if a.IsEmpty() {
		return nil
	}
	if !a.Overlaps(b) {
		return []Interval{a}
	}
	var out []Interval
	if a.Start.Before(b.Start) {
		out = append(out, Interval{Start: a.Start, End: b.Start})
	}
	if b.End.Before(a.End) {
		out = append(out, Interval{Start: b.End, End: a.End})
	}
	return out
}

// Merge returns the minimal sorted disjoint set covering the input. Overlapping
// and adjacent intervals are joined; empty intervals are dropped. The input is
// not modified.
func Merge(in []Interval) []Interval {
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.IsEmpty() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	slices.SortFunc(sorted, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			last.End = latest(last.End, iv.End)
			continue
		}
		out = append(out, iv)
	}
	return out
}

// SubtractAll removes every interval of cover from window and returns the
// remaining gaps.
func SubtractAll(window Interval, cover []Interval) []Interval {
	if window.IsEmpty() {
		return nil
	}
	remaining := []Interval{window}
	for _, c := range Merge(cover) {
		if !c.Start.Before(window.End) {
			break
		}
		last := remaining[len(remaining)-1]
		remaining = append(remaining[:len(remaining)-1], Subtract(last, c)...)
		if len(remaining) == 0 {
			break
		}
	}
	return remaining
}

// Clip intersects a set with window, dropping intervals outside it.
func Clip(set []Interval, window Interval) []Interval {
	var out []Interval
	for _, iv := range Merge(set) {
		if clipped, ok := iv.Intersect(window); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// Overlapping returns the members of the sorted disjoint set that overlap probe.
func Overlapping(set []Interval, probe Interval) []Interval {
	first := sort.Search(len(set), func(i int) bool { return set[i].End.After(probe.Start) })
	var out []Interval
	for _, iv := range set[first:] {
		if !iv.Start.Before(probe.End) {
			break
		}
		if iv.Overlaps(probe) {
			out = append(out, iv)
		}
	}
	return out
}

// Union returns the merged union of several sets.
func Union(sets ...[]Interval) []Interval {
	var all []Interval
	for _, s := range sets {
		all = append(all, s...)
	}
	return Merge(all)
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
