package application

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/interval"
)

const importCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:standup
DTSTAMP:20240101T000000Z
SUMMARY:Standup
DTSTART;TZID=Europe/Berlin:20240304T093000
DURATION:PT15M
RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=10
EXDATE;TZID=Europe/Berlin:20240306T093000
END:VEVENT
BEGIN:VEVENT
UID:clash
DTSTAMP:20240101T000000Z
SUMMARY:Clash
DTSTART:20240304T083500Z
DURATION:PT30M
END:VEVENT
BEGIN:VEVENT
UID:bad-rule
DTSTAMP:20240101T000000Z
DTSTART:20240304T120000Z
DURATION:PT30M
RRULE:FREQ=DAILY;COUNT=2;UNTIL=20240310T000000Z
END:VEVENT
BEGIN:VEVENT
UID:override
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240308T083000Z
DTSTART:20240308T100000Z
DURATION:PT15M
END:VEVENT
BEGIN:VEVENT
UID:lunch
DTSTAMP:20240101T000000Z
SUMMARY:Lunch
DTSTART:20240306T083000Z
DURATION:PT1H
END:VEVENT
END:VCALENDAR
`

func TestEventService_ImportEvents(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.addCalendar("cal-1", "UTC")
	svc := newEventServiceForTest(store, utc(2024, time.March, 1, 0, 0))

	input := strings.ReplaceAll(importCalendar, "\n", "\r\n")
	result, err := svc.ImportEvents(context.Background(), "cal-1", strings.NewReader(input))
	require.NoError(t, err)

	var created []string
	for _, ev := range result.Created {
		created = append(created, ev.Title)
	}
	// Lunch lands on the excluded standup.
	assert.Equal(t, []string{"Standup", "Lunch"}, created)

	skipped := make(map[string]string)
	for _, s := range result.Skipped {
		skipped[s.UID] = s.Reason
	}
	assert.Len(t, skipped, 3)
	assert.Contains(t, skipped, "clash")
	assert.Contains(t, skipped, "bad-rule")
	assert.Contains(t, skipped, "override")

	standup := result.Created[0]
	require.NotNil(t, standup.Rule)
	assert.Equal(t, "Europe/Berlin", standup.TimeZone)
	assert.Equal(t, []time.Time{utc(2024, time.March, 6, 8, 30)}, standup.Rule.Exceptions)
}

func TestEventService_ImportEvents_Malformed(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.addCalendar("cal-1", "UTC")
	svc := newEventServiceForTest(store, utc(2024, time.March, 1, 0, 0))

	_, err := svc.ImportEvents(context.Background(), "cal-1", strings.NewReader("not a calendar"))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "calendar")

	_, err = svc.ImportEvents(context.Background(), "missing", strings.NewReader(importCalendar))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventService_ExportEvents_RoundTrip(t *testing.T) {
	t.Parallel()

	source := newMemoryStore()
	source.addCalendar("cal-1", "UTC")
	svc := newEventServiceForTest(source, utc(2024, time.March, 1, 0, 0))
	ctx := context.Background()

	series := EventInput{
		Title:          "Standup",
		Start:          wall(2024, time.March, 4, 9, 30),
		Duration:       15 * time.Minute,
		TimeZone:       "Europe/Berlin",
		RecurrenceRule: "FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=10",
		ExceptionDates: []time.Time{utc(2024, time.March, 6, 8, 30)},
	}
	_, err := svc.CreateEvent(ctx, "cal-1", series)
	require.NoError(t, err)
	_, err = svc.CreateEvent(ctx, "cal-1", EventInput{Title: "Review", Start: wall(2024, time.April, 2, 14, 0), Duration: time.Hour})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportEvents(ctx, "cal-1", nil, &buf))
	assert.Contains(t, buf.String(), "RRULE:FREQ=WEEKLY;")

	target := newMemoryStore()
	target.addCalendar("cal-2", "UTC")
	importer := newEventServiceForTest(target, utc(2024, time.March, 1, 0, 0))
	result, err := importer.ImportEvents(ctx, "cal-2", &buf)
	require.NoError(t, err)
	require.Empty(t, result.Skipped)
	require.Len(t, result.Created, 2)

	window := interval.Interval{Start: utc(2024, time.March, 1, 0, 0), End: utc(2024, time.May, 1, 0, 0)}
	want, err := svc.ListEventInstances(ctx, "cal-1", window)
	require.NoError(t, err)
	got, err := importer.ListEventInstances(ctx, "cal-2", window)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Event.Title, got[i].Event.Title)
		assert.Equal(t, want[i].Instances, got[i].Instances)
	}
}

func TestEventService_ExportEvents_Window(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.addCalendar("cal-1", "UTC")
	svc := newEventServiceForTest(store, utc(2024, time.March, 1, 0, 0))
	ctx := context.Background()

	_, err := svc.CreateEvent(ctx, "cal-1", EventInput{Title: "March", Start: wall(2024, time.March, 4, 9, 0), Duration: time.Hour})
	require.NoError(t, err)
	_, err = svc.CreateEvent(ctx, "cal-1", EventInput{Title: "June", Start: wall(2024, time.June, 4, 9, 0), Duration: time.Hour})
	require.NoError(t, err)

	window := interval.Interval{Start: utc(2024, time.March, 1, 0, 0), End: utc(2024, time.April, 1, 0, 0)}
	var buf bytes.Buffer
	require.NoError(t, svc.ExportEvents(ctx, "cal-1", &window, &buf))
	assert.Contains(t, buf.String(), "SUMMARY:March")
	assert.NotContains(t, buf.String(), "SUMMARY:June")
}
