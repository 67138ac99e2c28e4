package application

import (
	"time"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/occurrence"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

// Calendar groups events that share busy time. Version advances on every
// event write.
type Calendar struct {
	ID        string
	OwnerID   string
	Name      string
	TimeZone  string
	WeekStart time.Weekday
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CalendarInput captures caller provided calendar fields.
type CalendarInput struct {
	OwnerID  string
	Name     string
	TimeZone string
	// WeekStart defaults to Monday when nil.
	WeekStart *time.Weekday
}

// CalendarSettingsInput updates the fields that are set.
type CalendarSettingsInput struct {
	Name      *string
	TimeZone  *string
	WeekStart *time.Weekday
}

// Event is a possibly recurring event together with the envelope every
// occurrence falls inside.
type Event struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	Start       temporal.WallClock
	Duration    time.Duration
	TimeZone    string
	// Rule is nil for single events. Its Exceptions hold the excluded starts.
	Rule        *recurrence.Rule
	Transparent bool
	FirstStart  time.Time
	LastEnd     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Definition returns the shape the materializer expands.
func (e Event) Definition() occurrence.Event {
	return occurrence.Event{
		ID:          e.ID,
		CalendarID:  e.CalendarID,
		Start:       e.Start,
		Duration:    e.Duration,
		TimeZone:    e.TimeZone,
		Rule:        e.Rule,
		Transparent: e.Transparent,
	}
}

// EventInput captures caller provided event fields. Updates replace every field.
type EventInput struct {
	Title       string
	Description string
	Start       temporal.WallClock
	Duration    time.Duration
	// TimeZone defaults to the calendar zone.
	TimeZone string
	// RecurrenceRule is an RFC 5545 RRULE value; empty for single events.
	RecurrenceRule string
	ExceptionDates []time.Time
	Transparent    bool
}

// EventInstances pairs an event with its occurrences inside a query window.
type EventInstances struct {
	Event     Event
	Instances []occurrence.Occurrence
}

// ConflictCheckInput asks whether a proposed event fits the given calendars.
type ConflictCheckInput struct {
	CalendarIDs []string
	Event       EventInput
	Window      interval.Interval
}

// SlotQuery selects bookable slots on one local day.
type SlotQuery struct {
	Date temporal.WallClock
	// TimeZone defaults to the zone of the first calendar queried.
	TimeZone string
	Duration time.Duration
	Interval time.Duration
}

// ImportResult reports what an iCalendar import stored and what it skipped.
type ImportResult struct {
	Created []Event
	Skipped []ImportSkip
}

// ImportSkip names an imported component that was not stored.
type ImportSkip struct {
	UID    string
	Reason string
}
