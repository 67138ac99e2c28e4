package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/occurrence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

const (
	// MinSlotInterval is the smallest accepted step between booking slots.
	MinSlotInterval = 10 * time.Minute
	// MaxSlotInterval is the largest accepted step between booking slots.
	MaxSlotInterval = time.Hour
)

// ErrInvalidSlotInterval indicates a slot step outside [MinSlotInterval, MaxSlotInterval].
var ErrInvalidSlotInterval = errors.New("scheduler: invalid slot interval")

// FreeBusy splits a window into busy time and advertised availability.
type FreeBusy struct {
	Busy []BusyInterval
	// Free is availability from transparent events minus busy time.
	Free []interval.Interval
}

// ComputeFreeBusy materializes events once and returns busy time together with
// the free time advertised by transparent events, minus busy time.
func (r *Resolver) ComputeFreeBusy(ctx context.Context, events []occurrence.Event, window interval.Interval) (FreeBusy, error) {
	var busy, free []occurrence.Occurrence
	for _, ev := range events {
		occs, err := r.materializer.Materialize(ctx, ev, window)
		if err != nil {
			return FreeBusy{}, err
		}
		if ev.Transparent {
			free = append(free, occs...)
		} else {
			busy = append(busy, occs...)
		}
	}

	result := FreeBusy{Busy: BusyFromOccurrences(busy, window)}
	available := make([]interval.Interval, 0, len(free))
	for _, o := range free {
		available = append(available, o.Interval())
	}
	busyIntervals := Intervals(result.Busy)
	for _, a := range interval.Clip(available, window) {
		result.Free = append(result.Free, interval.SubtractAll(a, busyIntervals)...)
	}
	return result, nil
}

// FreeTime returns the gaps of window not covered by busy.
func FreeTime(busy []BusyInterval, window interval.Interval) []interval.Interval {
	return interval.SubtractAll(window, Intervals(busy))
}

// SlotOptions configure booking slot generation.
type SlotOptions struct {
	Window   interval.Interval
	Duration time.Duration
	// Interval is the step between candidate slot starts.
	Interval time.Duration
}

// Slot is a bookable start with the end of the free interval that holds it.
type Slot struct {
	Start          time.Time
	Duration       time.Duration
	AvailableUntil time.Time
}

// BookingSlots steps a cursor from the window start by opts.Interval and emits
// every [cursor, cursor+Duration) that lies inside one free interval.
func BookingSlots(free []interval.Interval, opts SlotOptions) []Slot {
	if opts.Duration <= 0 || opts.Interval <= 0 {
		return nil
	}
	free = interval.Merge(free)

	var slots []Slot
	i := 0
	for cursor := opts.Window.Start; !cursor.Add(opts.Duration).After(opts.Window.End); cursor = cursor.Add(opts.Interval) {
		for i < len(free) && !free[i].End.After(cursor) {
			i++
		}
		if i == len(free) {
			break
		}
		candidate := interval.Interval{Start: cursor, End: cursor.Add(opts.Duration)}
		if free[i].Contains(candidate) {
			slots = append(slots, Slot{Start: cursor, Duration: opts.Duration, AvailableUntil: free[i].End})
		}
	}
	return slots
}

// HostAvailability is the free time of one host of a service.
type HostAvailability struct {
	HostID string
	Free   []interval.Interval
}

// ServiceSlot is a slot bookable with any of HostIDs.
type ServiceSlot struct {
	Start    time.Time
	Duration time.Duration
	HostIDs  []string
}

// ServiceSlots computes booking slots per host and groups them by start.
func ServiceSlots(hosts []HostAvailability, opts SlotOptions) []ServiceSlot {
	byStart := make(map[time.Time]*ServiceSlot)
	for _, host := range hosts {
		for _, slot := range BookingSlots(host.Free, opts) {
			key := slot.Start.UTC()
			if existing, ok := byStart[key]; ok {
				existing.HostIDs = append(existing.HostIDs, host.HostID)
				continue
			}
			byStart[key] = &ServiceSlot{Start: slot.Start, Duration: slot.Duration, HostIDs: []string{host.HostID}}
		}
	}

	out := make([]ServiceSlot, 0, len(byStart))
	for _, s := range byStart {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b ServiceSlot) int { return a.Start.Compare(b.Start) })
	return out
}

// ValidateSlotInterval reports ErrInvalidSlotInterval for steps outside 10 to 60 minutes.
func ValidateSlotInterval(step time.Duration) error {
	if step < MinSlotInterval || step > MaxSlotInterval {
		return fmt.Errorf("%w: %s not within [%s, %s]", ErrInvalidSlotInterval, step, MinSlotInterval, MaxSlotInterval)
	}
	return nil
}

// DayWindow returns the instants spanning the local calendar day of date in zone.
// A day whose midnight is skipped by a transition starts at the first instant
// after the gap.
func DayWindow(date temporal.WallClock, zone temporal.Zone) (interval.Interval, error) {
	start, err := dayBoundary(date.DateOnly(), zone)
	if err != nil {
		return interval.Interval{}, err
	}
	end, err := dayBoundary(date.DateOnly().AddDate(0, 0, 1), zone)
	if err != nil {
		return interval.Interval{}, err
	}
	return interval.Interval{Start: start, End: end}, nil
}

// dayBoundary returns the first instant whose wall clock in zone is at or
// after midnight.
func dayBoundary(midnight temporal.WallClock, zone temporal.Zone) (time.Time, error) {
	instant, err := temporal.ToInstant(midnight, zone)
	if !errors.Is(err, temporal.ErrAmbiguousOrInvalidLocalTime) || !midnight.Valid() {
		return instant, err
	}

	// UTC offsets stay within 15 hours, so the boundary lies in [lo, hi].
	naive := time.Date(midnight.Year, midnight.Month, midnight.Day, 0, 0, 0, 0, time.UTC)
	lo, hi := naive.Add(-15*time.Hour), naive.Add(15*time.Hour)
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if temporal.ToWallClock(mid, zone).Before(midnight) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}
