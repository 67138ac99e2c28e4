package scheduler

import (
	"context"
	"slices"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/occurrence"
)

// BusyInterval is a merged span of busy time and the events that occupy it.
type BusyInterval struct {
	interval.Interval
	EventIDs []string
}

// Decision is the outcome of checking one proposed occurrence.
type Decision struct {
	Accepted bool
	// Overlapping lists the existing busy intervals the proposal overlaps.
	Overlapping []BusyInterval
}

// Conflict pairs a rejected occurrence of a proposal with what it overlaps.
type Conflict struct {
	Occurrence  occurrence.Occurrence
	Overlapping []BusyInterval
}

// EventDecision is the outcome of checking every occurrence of a proposed event.
type EventDecision struct {
	Accepted  bool
	Conflicts []Conflict
	// Checked counts the occurrences examined inside the window.
	Checked int
}

// Resolver computes busy time and conflict decisions. It is stateless apart
// from the injected materializer and safe for concurrent use.
type Resolver struct {
	materializer *occurrence.Materializer
}

// NewResolver returns a resolver materializing events through m.
func NewResolver(m *occurrence.Materializer) *Resolver {
	return &Resolver{materializer: m}
}

// ComputeBusyTime materializes every opaque event in window and returns the
// merged busy set, clipped to window, sorted and disjoint.
func (r *Resolver) ComputeBusyTime(ctx context.Context, events []occurrence.Event, window interval.Interval) ([]BusyInterval, error) {
	var occs []occurrence.Occurrence
	for _, ev := range events {
		if ev.Transparent {
			continue
		}
		found, err := r.materializer.Materialize(ctx, ev, window)
		if err != nil {
			return nil, err
		}
		occs = append(occs, found...)
	}
	return BusyFromOccurrences(occs, window), nil
}

// BusyFromOccurrences merges occurrences into attributed busy intervals
// clipped to window. Zero-length occurrences occupy no time and are dropped.
func BusyFromOccurrences(occs []occurrence.Occurrence, window interval.Interval) []BusyInterval {
	sorted := make([]occurrence.Occurrence, 0, len(occs))
	for _, o := range occs {
		if o.Interval().IsEmpty() {
			continue
		}
		if clipped, ok := o.Interval().Intersect(window); ok {
			o.Start, o.End = clipped.Start, clipped.End
			sorted = append(sorted, o)
		}
	}
	occurrence.SortByStart(sorted)

	var out []BusyInterval
	for _, o := range sorted {
		if n := len(out); n > 0 && !o.Start.After(out[n-1].End) {
			last := &out[n-1]
			if o.End.After(last.End) {
				last.End = o.End
			}
			if !slices.Contains(last.EventIDs, o.EventID) {
				last.EventIDs = append(last.EventIDs, o.EventID)
			}
			continue
		}
		out = append(out, BusyInterval{Interval: o.Interval(), EventIDs: []string{o.EventID}})
	}
	for i := range out {
		slices.Sort(out[i].EventIDs)
	}
	return out
}

// Intervals strips event attribution from a busy set.
func Intervals(busy []BusyInterval) []interval.Interval {
	out := make([]interval.Interval, 0, len(busy))
	for _, b := range busy {
		out = append(out, b.Interval)
	}
	return out
}

// CheckConflict accepts proposed iff it overlaps none of existing. The check is
// advisory; exclusivity against concurrent writers belongs to the store.
func CheckConflict(existing []BusyInterval, proposed occurrence.Occurrence) Decision {
	probe := proposed.Interval()
	var overlapping []BusyInterval
	for _, b := range existing {
		if b.Overlaps(probe) {
			overlapping = append(overlapping, b)
		}
	}
	return Decision{Accepted: len(overlapping) == 0, Overlapping: overlapping}
}

// CheckEvent checks every occurrence of proposed that falls in window against
// existing. Transparent proposals are always accepted.
func (r *Resolver) CheckEvent(ctx context.Context, existing []BusyInterval, proposed occurrence.Event, window interval.Interval) (EventDecision, error) {
	occs, err := r.materializer.Materialize(ctx, proposed, window)
	if err != nil {
		return EventDecision{}, err
	}
	decision := EventDecision{Accepted: true, Checked: len(occs)}
	if proposed.Transparent {
		return decision, nil
	}
	for _, o := range occs {
		d := CheckConflict(existing, o)
		if d.Accepted {
			continue
		}
		decision.Accepted = false
		decision.Conflicts = append(decision.Conflicts, Conflict{Occurrence: o, Overlapping: d.Overlapping})
	}
	return decision, nil
}
