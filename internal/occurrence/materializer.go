// Package occurrence turns events into concrete occurrence intervals.
package occurrence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/logging"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

// ErrInvalidEvent indicates an event that cannot be materialized.
var ErrInvalidEvent = errors.New("occurrence: invalid event")

// zoneSlack widens wall-clock bounds so offset changes inside a window never
// cut off a candidate. Exact filtering happens on instants afterwards.
const zoneSlack = 48 * time.Hour

// Event is a possibly recurring calendar entry. Start is a wall clock in TimeZone.
type Event struct {
	ID         string
	CalendarID string
	Start      temporal.WallClock
	Duration   time.Duration
	TimeZone   string
	Rule       *recurrence.Rule
	// Transparent events mark availability and never count as busy.
	Transparent bool
}

// Recurring reports whether the event carries a rule.
func (e Event) Recurring() bool {
	return e.Rule != nil
}

// Validate reports ErrInvalidEvent or the rule's validation error.
func (e Event) Validate() error {
	if e.Duration < 0 {
		return fmt.Errorf("%w: negative duration %s", ErrInvalidEvent, e.Duration)
	}
	if e.TimeZone == "" {
		return fmt.Errorf("%w: time zone is required", ErrInvalidEvent)
	}
	if !e.Start.Valid() {
		return fmt.Errorf("%w: invalid start %s", ErrInvalidEvent, e.Start)
	}
	if e.Rule != nil {
		return e.Rule.Validate()
	}
	return nil
}

// Occurrence is one materialized instance of an event.
type Occurrence struct {
	EventID string
	Start   time.Time
	End     time.Time
}

// Interval returns the occurrence as [Start, End).
func (o Occurrence) Interval() interval.Interval {
	return interval.Interval{Start: o.Start, End: o.End}
}

// Materializer expands events within query windows. It holds no mutable state.
type Materializer struct {
	resolver temporal.Resolver
	limits   recurrence.Limits
}

// NewMaterializer returns a materializer resolving zones through resolver.
func NewMaterializer(resolver temporal.Resolver, limits recurrence.Limits) *Materializer {
	if resolver == nil {
		resolver = temporal.SystemResolver{}
	}
	return &Materializer{resolver: resolver, limits: limits}
}

// Materialize returns the occurrences of ev that intersect window, ordered by start.
// Zero-length occurrences intersect when their start lies inside the window.
func (m *Materializer) Materialize(ctx context.Context, ev Event, window interval.Interval) ([]Occurrence, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	zone, err := m.resolver.ResolveTimeZone(ev.TimeZone)
	if err != nil {
		return nil, err
	}

	if ev.Rule == nil {
		start, err := temporal.ToInstant(ev.Start, zone)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		occ := Occurrence{EventID: ev.ID, Start: start, End: start.Add(ev.Duration)}
		if !intersects(occ, window) {
			return nil, nil
		}
		return []Occurrence{occ}, nil
	}

	after := temporal.ToWallClock(window.Start.Add(-ev.Duration).Add(-zoneSlack), zone)
	end := temporal.ToWallClock(window.End.Add(zoneSlack), zone)
	seq, err := ev.Rule.Expand(ev.Start, zone, recurrence.Options{After: &after, WindowEnd: &end, Limits: m.limits})
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx)
	var out []Occurrence
	for n := 0; seq.Next(); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		candidate := seq.Value()
		start, err := temporal.ToInstant(candidate, zone)
		if errors.Is(err, temporal.ErrAmbiguousOrInvalidLocalTime) {
			if logger != nil {
				logger.DebugContext(ctx, "skipping nonexistent local time",
					"event_id", ev.ID, "wall_clock", candidate.String(), "time_zone", zone.Name())
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if !start.Before(window.End) {
			break
		}
		occ := Occurrence{EventID: ev.ID, Start: start, End: start.Add(ev.Duration)}
		if intersects(occ, window) {
			out = append(out, occ)
		}
	}
	if err := seq.Err(); err != nil {
		return nil, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return out, nil
}

// MaterializeAll materializes several events into one start-ordered list.
func (m *Materializer) MaterializeAll(ctx context.Context, events []Event, window interval.Interval) ([]Occurrence, error) {
	var out []Occurrence
	for _, ev := range events {
		occs, err := m.Materialize(ctx, ev, window)
		if err != nil {
			return nil, err
		}
		out = append(out, occs...)
	}
	SortByStart(out)
	return out, nil
}

// Span returns the earliest instant an occurrence of ev can start and the latest
// instant one can end. end is nil for unbounded rules. The bounds may be loose but
// always contain every occurrence.
func (m *Materializer) Span(ctx context.Context, ev Event) (time.Time, *time.Time, error) {
	if err := ev.Validate(); err != nil {
		return time.Time{}, nil, err
	}
	zone, err := m.resolver.ResolveTimeZone(ev.TimeZone)
	if err != nil {
		return time.Time{}, nil, err
	}
	first := ev.Start.In(zone.Location()).UTC().Add(-time.Hour)

	switch {
	case ev.Rule == nil:
		end := first.Add(time.Hour + ev.Duration + time.Hour)
		return first, &end, nil
	case ev.Rule.Until != nil:
		end := ev.Rule.Until.UTC().Add(ev.Duration + zoneSlack)
		return first, &end, nil
	case ev.Rule.Count > 0:
		seq, err := ev.Rule.Expand(ev.Start, zone, recurrence.Options{Limits: m.limits})
		if err != nil {
			return time.Time{}, nil, err
		}
		var last temporal.WallClock
		for seq.Next() {
			last = seq.Value()
		}
		if err := seq.Err(); err != nil {
			return time.Time{}, nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if err := ctx.Err(); err != nil {
			return time.Time{}, nil, err
		}
		if last.IsZero() {
			end := first
			return first, &end, nil
		}
		end := last.In(zone.Location()).UTC().Add(ev.Duration + time.Hour)
		return first, &end, nil
	default:
		return first, nil, nil
	}
}

// SortByStart orders occurrences by start, then end, then event id.
func SortByStart(occs []Occurrence) {
	slices.SortFunc(occs, func(a, b Occurrence) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := a.End.Compare(b.End); c != 0 {
			return c
		}
		return strings.Compare(a.EventID, b.EventID)
	})
}

func intersects(o Occurrence, window interval.Interval) bool {
	if o.Start.Equal(o.End) {
		return window.ContainsInstant(o.Start)
	}
	return o.Interval().Overlaps(window)
}
