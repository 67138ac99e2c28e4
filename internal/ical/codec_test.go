package ical

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/temporal"
)

func crlf(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n")
}

const importFixture = `
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:standup
DTSTAMP:20240101T000000Z
SUMMARY:Standup
DTSTART;TZID=Europe/Berlin:20240304T093000
DTEND;TZID=Europe/Berlin:20240304T094500
RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=10
EXDATE;TZID=Europe/Berlin:20240306T093000
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTAMP:20240101T000000Z
SUMMARY:Good Friday
DTSTART;VALUE=DATE:20240329
TRANSP:TRANSPARENT
END:VEVENT
BEGIN:VEVENT
UID:moved
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240305T100000Z
DTSTART:20240305T110000Z
DURATION:PT1H
END:VEVENT
BEGIN:VEVENT
UID:nowhere
DTSTAMP:20240101T000000Z
DTSTART;TZID=Mars/Olympus:20240305T110000
DURATION:PT1H
END:VEVENT
END:VCALENDAR
`

func TestCodecDecode(t *testing.T) {
	t.Parallel()

	codec := NewCodec(nil, "")
	events, skipped, err := codec.Decode(strings.NewReader(crlf(importFixture)))
	require.NoError(t, err)
	require.Len(t, events, 2)

	standup := events[0]
	assert.Equal(t, "standup", standup.UID)
	assert.Equal(t, "Standup", standup.Summary)
	assert.Equal(t, temporal.NewWallClock(2024, time.March, 4, 9, 30, 0, 0), standup.Start)
	assert.Equal(t, "Europe/Berlin", standup.TimeZone)
	assert.Equal(t, 15*time.Minute, standup.Duration)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=10", standup.RecurrenceRule)
	assert.Equal(t, []time.Time{time.Date(2024, time.March, 6, 8, 30, 0, 0, time.UTC)}, standup.ExceptionDates)
	assert.False(t, standup.Transparent)

	holiday := events[1]
	assert.True(t, holiday.AllDay)
	assert.True(t, holiday.Transparent)
	assert.Equal(t, temporal.Date(2024, time.March, 29), holiday.Start)
	assert.Equal(t, 24*time.Hour, holiday.Duration)
	assert.Empty(t, holiday.TimeZone)

	require.Len(t, skipped, 2)
	assert.Equal(t, "moved", skipped[0].UID)
	require.ErrorIs(t, skipped[0], ErrUnsupportedComponent)
	assert.Equal(t, "nowhere", skipped[1].UID)
	require.ErrorIs(t, skipped[1], temporal.ErrTimeZoneResolutionFailed)
}

func TestCodecDecodeMalformed(t *testing.T) {
	t.Parallel()

	_, _, err := NewCodec(nil, "").Decode(strings.NewReader("not a calendar"))
	require.ErrorIs(t, err, ErrMalformedCalendar)
}

func TestCodecEventsRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec(temporal.SystemResolver{}, "-//test//EN")
	in := []Event{
		{
			UID:            "weekly",
			Summary:        "Planning, weekly",
			Start:          temporal.NewWallClock(2024, time.March, 4, 10, 0, 0, 0),
			TimeZone:       "America/New_York",
			Duration:       90 * time.Minute,
			RecurrenceRule: "FREQ=WEEKLY;BYDAY=MO,TH;UNTIL=20240430T000000Z",
			ExceptionDates: []time.Time{time.Date(2024, time.March, 11, 14, 0, 0, 0, time.UTC)},
		},
		{
			UID:         "focus",
			Start:       temporal.NewWallClock(2024, time.March, 5, 8, 0, 0, 0),
			TimeZone:    "UTC",
			Duration:    2 * time.Hour,
			Transparent: true,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, codec.EncodeEvents(&buf, in, time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)))
	assert.Contains(t, buf.String(), "PRODID:-//test//EN")
	assert.Contains(t, buf.String(), "DTSTART;TZID=America/New_York:20240304T100000")

	out, skipped, err := codec.Decode(&buf)
	require.NoError(t, err)
	require.Empty(t, skipped)
	assert.Equal(t, in, out)
}

func TestCodecEncodeEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewCodec(nil, "").EncodeEvents(&buf, nil, time.Now()))
	assert.Equal(t, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:"+DefaultProductID+"\r\nEND:VCALENDAR\r\n", buf.String())
}

func TestCodecEncodeFreeBusy(t *testing.T) {
	t.Parallel()

	at := func(hour int) time.Time { return time.Date(2024, time.March, 4, hour, 0, 0, 0, time.UTC) }
	fb := FreeBusy{
		UID:    "cal-1",
		Window: interval.Interval{Start: at(0), End: at(24)},
		Busy:   []interval.Interval{{Start: at(10), End: at(11)}},
		Free:   []interval.Interval{{Start: at(9), End: at(10)}},
		Stamp:  at(8),
	}

	var buf bytes.Buffer
	require.NoError(t, NewCodec(nil, "").EncodeFreeBusy(&buf, fb))
	out := buf.String()
	assert.Contains(t, out, "BEGIN:VFREEBUSY")
	assert.Contains(t, out, "FREEBUSY;FBTYPE=BUSY:20240304T100000Z/20240304T110000Z")
	assert.Contains(t, out, "FREEBUSY;FBTYPE=FREE:20240304T090000Z/20240304T100000Z")
	assert.Contains(t, out, "DTSTART:20240304T000000Z")
}
