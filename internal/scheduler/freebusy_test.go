package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/occurrence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

func TestComputeFreeBusy(t *testing.T) {
	t.Parallel()

	r := newResolver()
	events := []occurrence.Event{
		{ID: "availability", Start: temporal.NewWallClock(2024, time.March, 4, 9, 0, 0, 0), Duration: 8 * time.Hour, TimeZone: "UTC", Transparent: true},
		{ID: "lunch", Start: temporal.NewWallClock(2024, time.March, 4, 12, 0, 0, 0), Duration: time.Hour, TimeZone: "UTC"},
	}

	got, err := r.ComputeFreeBusy(context.Background(), events, span(clock(0, 0), clock(23, 0)))
	require.NoError(t, err)
	assert.Equal(t, []BusyInterval{{Interval: span(clock(12, 0), clock(13, 0)), EventIDs: []string{"lunch"}}}, got.Busy)
	assert.Equal(t, []interval.Interval{span(clock(9, 0), clock(12, 0)), span(clock(13, 0), clock(17, 0))}, got.Free)
}

func TestFreeTime(t *testing.T) {
	t.Parallel()

	busy := []BusyInterval{{Interval: span(clock(10, 0), clock(11, 0))}, {Interval: span(clock(14, 0), clock(15, 0))}}
	assert.Equal(t,
		[]interval.Interval{span(clock(9, 0), clock(10, 0)), span(clock(11, 0), clock(14, 0)), span(clock(15, 0), clock(17, 0))},
		FreeTime(busy, span(clock(9, 0), clock(17, 0))),
	)
}

func TestBookingSlots(t *testing.T) {
	t.Parallel()

	base := clock(0, 0)
	at := func(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

	t.Run("no free time yields no slots", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, BookingSlots(nil, SlotOptions{Window: span(at(0), at(100)), Duration: 10 * time.Minute, Interval: 10 * time.Minute}))
	})

	t.Run("slots must fit inside one free interval", func(t *testing.T) {
		t.Parallel()
		free := []interval.Interval{span(at(2), at(12))}
		assert.Empty(t, BookingSlots(free, SlotOptions{Window: span(at(0), at(100)), Duration: 10 * time.Minute, Interval: 10 * time.Minute}))

		free = []interval.Interval{span(at(0), at(25))}
		got := BookingSlots(free, SlotOptions{Window: span(at(0), at(100)), Duration: 10 * time.Minute, Interval: 10 * time.Minute})
		assert.Equal(t, []Slot{
			{Start: at(0), Duration: 10 * time.Minute, AvailableUntil: at(25)},
			{Start: at(10), Duration: 10 * time.Minute, AvailableUntil: at(25)},
		}, got)
	})

	t.Run("adjacent free intervals are joined", func(t *testing.T) {
		t.Parallel()
		free := []interval.Interval{span(at(0), at(15)), span(at(15), at(30))}
		got := BookingSlots(free, SlotOptions{Window: span(at(0), at(30)), Duration: 20 * time.Minute, Interval: 10 * time.Minute})
		assert.Equal(t, []Slot{
			{Start: at(0), Duration: 20 * time.Minute, AvailableUntil: at(30)},
			{Start: at(10), Duration: 20 * time.Minute, AvailableUntil: at(30)},
		}, got)
	})

	t.Run("slots never pass the window end", func(t *testing.T) {
		t.Parallel()
		free := []interval.Interval{span(at(0), at(120))}
		got := BookingSlots(free, SlotOptions{Window: span(at(0), at(60)), Duration: 30 * time.Minute, Interval: 15 * time.Minute})
		require.Len(t, got, 3)
		assert.Equal(t, at(30), got[2].Start)
	})

	t.Run("non positive duration or step yields nothing", func(t *testing.T) {
		t.Parallel()
		free := []interval.Interval{span(at(0), at(60))}
		assert.Empty(t, BookingSlots(free, SlotOptions{Window: span(at(0), at(60)), Interval: 10 * time.Minute}))
		assert.Empty(t, BookingSlots(free, SlotOptions{Window: span(at(0), at(60)), Duration: 10 * time.Minute}))
	})
}

func TestServiceSlots(t *testing.T) {
	t.Parallel()

	base := clock(9, 0)
	at := func(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

	hosts := []HostAvailability{
		{HostID: "alice", Free: []interval.Interval{span(at(0), at(60))}},
		{HostID: "bob", Free: []interval.Interval{span(at(30), at(90))}},
	}
	got := ServiceSlots(hosts, SlotOptions{Window: span(at(0), at(90)), Duration: 30 * time.Minute, Interval: 30 * time.Minute})
	assert.Equal(t, []ServiceSlot{
		{Start: at(0), Duration: 30 * time.Minute, HostIDs: []string{"alice"}},
		{Start: at(30), Duration: 30 * time.Minute, HostIDs: []string{"alice", "bob"}},
		{Start: at(60), Duration: 30 * time.Minute, HostIDs: []string{"bob"}},
	}, got)
}

func TestValidateSlotInterval(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSlotInterval(10*time.Minute))
	require.NoError(t, ValidateSlotInterval(time.Hour))
	require.ErrorIs(t, ValidateSlotInterval(9*time.Minute), ErrInvalidSlotInterval)
	require.ErrorIs(t, ValidateSlotInterval(61*time.Minute), ErrInvalidSlotInterval)
}

func TestDayWindow(t *testing.T) {
	t.Parallel()

	berlin, err := temporal.SystemResolver{}.ResolveTimeZone("Europe/Berlin")
	require.NoError(t, err)

	got, err := DayWindow(temporal.NewWallClock(2024, time.March, 31, 15, 0, 0, 0), berlin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 30, 23, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, 23*time.Hour, got.Duration())
}

func TestDayWindow_MidnightSkipped(t *testing.T) {
	t.Parallel()

	santiago, err := temporal.SystemResolver{}.ResolveTimeZone("America/Santiago")
	require.NoError(t, err)

	// Clocks jump from 00:00 -04 to 01:00 -03 on 2024-09-08.
	got, err := DayWindow(temporal.NewWallClock(2024, time.September, 8, 9, 0, 0, 0), santiago)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.September, 8, 4, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, time.Date(2024, time.September, 9, 3, 0, 0, 0, time.UTC), got.End)
	assert.Equal(t, 23*time.Hour, got.Duration())
	assert.Equal(t, temporal.NewWallClock(2024, time.September, 8, 1, 0, 0, 0), temporal.ToWallClock(got.Start, santiago))

	t.Run("day before ends where the gap begins", func(t *testing.T) {
		t.Parallel()

		prev, err := DayWindow(temporal.NewWallClock(2024, time.September, 7, 12, 0, 0, 0), santiago)
		require.NoError(t, err)
		assert.Equal(t, got.Start, prev.End)
		assert.Equal(t, 24*time.Hour, prev.Duration())
	})
}
