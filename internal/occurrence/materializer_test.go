package occurrence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func window(from, to time.Time) interval.Interval {
	return interval.Interval{Start: from, End: to}
}

func startsOf(occs []Occurrence) []time.Time {
	out := make([]time.Time, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.Start)
	}
	return out
}

func newMaterializer() *Materializer {
	return NewMaterializer(temporal.SystemResolver{}, recurrence.Limits{})
}

func TestMaterializeSingleEvent(t *testing.T) {
	t.Parallel()

	m := newMaterializer()
	ev := Event{
		ID:       "evt-1",
		Start:    temporal.NewWallClock(2024, time.June, 3, 10, 0, 0, 0),
		Duration: time.Hour,
		TimeZone: "Europe/Berlin",
	}

	t.Run("returns the occurrence when it intersects", func(t *testing.T) {
		t.Parallel()
		got, err := m.Materialize(context.Background(), ev, window(utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 4, 0, 0)))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, Occurrence{EventID: "evt-1", Start: utc(2024, time.June, 3, 8, 0), End: utc(2024, time.June, 3, 9, 0)}, got[0])
	})

	t.Run("includes occurrences spilling into the window", func(t *testing.T) {
		t.Parallel()
		got, err := m.Materialize(context.Background(), ev, window(utc(2024, time.June, 3, 8, 30), utc(2024, time.June, 3, 12, 0)))
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("omits occurrences touching the window edge", func(t *testing.T) {
		t.Parallel()
		got, err := m.Materialize(context.Background(), ev, window(utc(2024, time.June, 3, 9, 0), utc(2024, time.June, 3, 12, 0)))
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = m.Materialize(context.Background(), ev, window(utc(2024, time.June, 3, 6, 0), utc(2024, time.June, 3, 8, 0)))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("zero length events count when their start is inside", func(t *testing.T) {
		t.Parallel()
		point := ev
		point.Duration = 0
		got, err := m.Materialize(context.Background(), point, window(utc(2024, time.June, 3, 8, 0), utc(2024, time.June, 3, 9, 0)))
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestMaterializeRecurring(t *testing.T) {
	t.Parallel()

	m := newMaterializer()

	t.Run("weekly on monday wednesday friday", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyWeekly)
		rule.ByWeekday = []recurrence.WeekdayNum{
			recurrence.Every(time.Monday), recurrence.Every(time.Wednesday), recurrence.Every(time.Friday),
		}
		ev := Event{ID: "standup", Start: temporal.NewWallClock(2024, time.January, 1, 9, 0, 0, 0), Duration: 15 * time.Minute, TimeZone: "UTC", Rule: &rule}

		got, err := m.Materialize(context.Background(), ev, window(utc(2024, time.January, 1, 0, 0), utc(2024, time.January, 15, 0, 0)))
		require.NoError(t, err)
		assert.Equal(t, []time.Time{
			utc(2024, time.January, 1, 9, 0),
			utc(2024, time.January, 3, 9, 0),
			utc(2024, time.January, 5, 9, 0),
			utc(2024, time.January, 8, 9, 0),
			utc(2024, time.January, 10, 9, 0),
			utc(2024, time.January, 12, 9, 0),
		}, startsOf(got))
		for _, o := range got {
			assert.Equal(t, 15*time.Minute, o.End.Sub(o.Start))
			assert.NotEqual(t, time.Saturday, o.Start.Weekday())
			assert.NotEqual(t, time.Sunday, o.Start.Weekday())
		}
	})

	t.Run("monthly on day 31 skips february", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyMonthly)
		rule.ByMonthDay = []int{31}
		ev := Event{ID: "close", Start: temporal.NewWallClock(2023, time.January, 31, 12, 0, 0, 0), Duration: time.Hour, TimeZone: "UTC", Rule: &rule}

		got, err := m.Materialize(context.Background(), ev, window(utc(2023, time.February, 1, 0, 0), utc(2023, time.April, 1, 0, 0)))
		require.NoError(t, err)
		assert.Equal(t, []time.Time{utc(2023, time.March, 31, 12, 0)}, startsOf(got))
	})

	t.Run("drops wall clocks skipped by daylight saving", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyDaily)
		ev := Event{ID: "night", Start: temporal.NewWallClock(2024, time.March, 29, 2, 30, 0, 0), Duration: time.Hour, TimeZone: "Europe/Berlin", Rule: &rule}

		got, err := m.Materialize(context.Background(), ev, window(utc(2024, time.March, 29, 0, 0), utc(2024, time.April, 2, 0, 0)))
		require.NoError(t, err)
		assert.Equal(t, []time.Time{
			utc(2024, time.March, 29, 1, 30),
			utc(2024, time.March, 30, 1, 30),
			utc(2024, time.April, 1, 0, 30),
		}, startsOf(got))
	})

	t.Run("keeps local time across offset changes", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyWeekly)
		ev := Event{ID: "weekly", Start: temporal.NewWallClock(2024, time.October, 21, 9, 0, 0, 0), Duration: time.Hour, TimeZone: "Europe/Berlin", Rule: &rule}

		got, err := m.Materialize(context.Background(), ev, window(utc(2024, time.October, 20, 0, 0), utc(2024, time.November, 1, 0, 0)))
		require.NoError(t, err)
		assert.Equal(t, []time.Time{utc(2024, time.October, 21, 7, 0), utc(2024, time.October, 28, 8, 0)}, startsOf(got))
	})

	t.Run("includes a recurring occurrence started before the window", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyDaily)
		ev := Event{ID: "long", Start: temporal.NewWallClock(2024, time.May, 1, 22, 0, 0, 0), Duration: 4 * time.Hour, TimeZone: "UTC", Rule: &rule}

		got, err := m.Materialize(context.Background(), ev, window(utc(2024, time.May, 3, 0, 0), utc(2024, time.May, 3, 12, 0)))
		require.NoError(t, err)
		assert.Equal(t, []time.Time{utc(2024, time.May, 2, 22, 0)}, startsOf(got))
	})

	t.Run("honours exceptions", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyDaily).WithCount(3).WithExceptions(utc(2024, time.May, 2, 7, 0))
		ev := Event{ID: "x", Start: temporal.NewWallClock(2024, time.May, 1, 9, 0, 0, 0), Duration: time.Hour, TimeZone: "Europe/Berlin", Rule: &rule}

		got, err := m.Materialize(context.Background(), ev, window(utc(2024, time.May, 1, 0, 0), utc(2024, time.May, 10, 0, 0)))
		require.NoError(t, err)
		assert.Equal(t, []time.Time{utc(2024, time.May, 1, 7, 0), utc(2024, time.May, 3, 7, 0)}, startsOf(got))
	})
}

func TestMaterializeErrors(t *testing.T) {
	t.Parallel()

	m := newMaterializer()
	w := window(utc(2024, time.January, 1, 0, 0), utc(2024, time.February, 1, 0, 0))
	start := temporal.NewWallClock(2024, time.January, 1, 9, 0, 0, 0)

	t.Run("negative duration", func(t *testing.T) {
		t.Parallel()
		_, err := m.Materialize(context.Background(), Event{Start: start, Duration: -time.Minute, TimeZone: "UTC"}, w)
		require.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("missing time zone", func(t *testing.T) {
		t.Parallel()
		_, err := m.Materialize(context.Background(), Event{Start: start}, w)
		require.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("unknown time zone", func(t *testing.T) {
		t.Parallel()
		_, err := m.Materialize(context.Background(), Event{Start: start, TimeZone: "Mars/Olympus_Mons"}, w)
		require.ErrorIs(t, err, temporal.ErrTimeZoneResolutionFailed)
	})

	t.Run("invalid rule", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.Rule{Frequency: recurrence.FrequencyDaily}
		_, err := m.Materialize(context.Background(), Event{Start: start, TimeZone: "UTC", Rule: &rule}, w)
		require.ErrorIs(t, err, recurrence.ErrInvalidRecurrenceRule)
	})

	t.Run("single event at a skipped local time", func(t *testing.T) {
		t.Parallel()
		ev := Event{Start: temporal.NewWallClock(2024, time.March, 31, 2, 30, 0, 0), TimeZone: "Europe/Berlin"}
		_, err := m.Materialize(context.Background(), ev, w)
		require.ErrorIs(t, err, temporal.ErrAmbiguousOrInvalidLocalTime)
	})

	t.Run("expansion bound", func(t *testing.T) {
		t.Parallel()
		limited := NewMaterializer(nil, recurrence.Limits{MaxCandidates: 10})
		rule := recurrence.NewRule(recurrence.FrequencyDaily)
		_, err := limited.Materialize(context.Background(), Event{Start: start, TimeZone: "UTC", Rule: &rule}, w)
		require.ErrorIs(t, err, recurrence.ErrExpansionBoundExceeded)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rule := recurrence.NewRule(recurrence.FrequencyDaily)
		_, err := m.Materialize(ctx, Event{Start: start, TimeZone: "UTC", Rule: &rule}, w)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestMaterializeAll(t *testing.T) {
	t.Parallel()

	m := newMaterializer()
	rule := recurrence.NewRule(recurrence.FrequencyDaily).WithCount(2)
	events := []Event{
		{ID: "b", Start: temporal.NewWallClock(2024, time.January, 1, 12, 0, 0, 0), Duration: time.Hour, TimeZone: "UTC", Rule: &rule},
		{ID: "a", Start: temporal.NewWallClock(2024, time.January, 1, 9, 0, 0, 0), Duration: time.Hour, TimeZone: "UTC"},
	}

	got, err := m.MaterializeAll(context.Background(), events, window(utc(2024, time.January, 1, 0, 0), utc(2024, time.January, 3, 0, 0)))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		utc(2024, time.January, 1, 9, 0),
		utc(2024, time.January, 1, 12, 0),
		utc(2024, time.January, 2, 12, 0),
	}, startsOf(got))
}

func TestSpan(t *testing.T) {
	t.Parallel()

	m := newMaterializer()
	start := temporal.NewWallClock(2024, time.January, 1, 9, 0, 0, 0)

	t.Run("single event", func(t *testing.T) {
		t.Parallel()
		first, last, err := m.Span(context.Background(), Event{Start: start, Duration: time.Hour, TimeZone: "UTC"})
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.False(t, first.After(utc(2024, time.January, 1, 9, 0)))
		assert.False(t, last.Before(utc(2024, time.January, 1, 10, 0)))
	})

	t.Run("count bounded rule covers the last occurrence", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyDaily).WithCount(5)
		_, last, err := m.Span(context.Background(), Event{Start: start, Duration: time.Hour, TimeZone: "UTC", Rule: &rule})
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.False(t, last.Before(utc(2024, time.January, 5, 10, 0)))
	})

	t.Run("until bounded rule", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyDaily).WithUntil(utc(2024, time.March, 1, 0, 0))
		_, last, err := m.Span(context.Background(), Event{Start: start, Duration: time.Hour, TimeZone: "UTC", Rule: &rule})
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.False(t, last.Before(utc(2024, time.March, 1, 1, 0)))
	})

	t.Run("unbounded rule has no end", func(t *testing.T) {
		t.Parallel()
		rule := recurrence.NewRule(recurrence.FrequencyWeekly)
		_, last, err := m.Span(context.Background(), Event{Start: start, Duration: time.Hour, TimeZone: "UTC", Rule: &rule})
		require.NoError(t, err)
		assert.Nil(t, last)
	})
}
