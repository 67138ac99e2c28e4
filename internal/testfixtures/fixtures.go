package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/occurrence"
	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

var (
	calendarCounter uint64
	eventCounter    uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Calendar fixtures -----------------------------

// CalendarFixture is a deterministic calendar record.
type CalendarFixture struct {
	ID        string
	OwnerID   string
	Name      string
	TimeZone  string
	WeekStart time.Weekday
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CalendarOption configures the generated calendar fixture.
type CalendarOption func(*CalendarFixture)

// NewCalendarFixture returns a UTC calendar with optional overrides.
func NewCalendarFixture(opts ...CalendarOption) CalendarFixture {
	idx := atomic.AddUint64(&calendarCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := CalendarFixture{
		ID:        fmt.Sprintf("calendar-%03d", idx),
		OwnerID:   "owner-1",
		Name:      fmt.Sprintf("Calendar %03d", idx),
		TimeZone:  "UTC",
		WeekStart: time.Monday,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithCalendarID overrides the generated id.
func WithCalendarID(id string) CalendarOption {
	return func(f *CalendarFixture) {
		f.ID = id
	}
}

// WithCalendarOwner overrides the owner.
func WithCalendarOwner(ownerID string) CalendarOption {
	return func(f *CalendarFixture) {
		f.OwnerID = ownerID
	}
}

// WithCalendarTimeZone overrides the zone.
func WithCalendarTimeZone(name string) CalendarOption {
	return func(f *CalendarFixture) {
		f.TimeZone = name
	}
}

// WithCalendarWeekStart overrides the week start.
func WithCalendarWeekStart(day time.Weekday) CalendarOption {
	return func(f *CalendarFixture) {
		f.WeekStart = day
	}
}

// Persistence converts the fixture into a repository record at version 0.
func (f CalendarFixture) Persistence() persistence.Calendar {
	return persistence.Calendar{
		ID:        f.ID,
		OwnerID:   f.OwnerID,
		Name:      f.Name,
		TimeZone:  f.TimeZone,
		WeekStart: f.WeekStart,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// ------------------------------ Event fixtures ------------------------------

// EventFixture is a deterministic event definition.
type EventFixture struct {
	ID             string
	CalendarID     string
	Title          string
	Start          temporal.WallClock
	Duration       time.Duration
	TimeZone       string
	RecurrenceRule string
	ExceptionDates []time.Time
	Transparent    bool
	CreatedAt      time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a one hour UTC event on the reference date.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:         fmt.Sprintf("event-%03d", idx),
		CalendarID: "calendar-001",
		Title:      fmt.Sprintf("Event %03d", idx),
		Start:      temporal.NewWallClock(2024, time.January, 2, 9, 0, 0, 0),
		Duration:   time.Hour,
		TimeZone:   "UTC",
		CreatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated id.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventCalendar overrides the owning calendar.
func WithEventCalendar(calendarID string) EventOption {
	return func(f *EventFixture) {
		f.CalendarID = calendarID
	}
}

// WithEventStart overrides the start wall clock and zone.
func WithEventStart(start temporal.WallClock, zone string) EventOption {
	return func(f *EventFixture) {
		f.Start = start
		f.TimeZone = zone
	}
}

// WithEventDuration overrides the duration.
func WithEventDuration(d time.Duration) EventOption {
	return func(f *EventFixture) {
		f.Duration = d
	}
}

// WithEventRule sets an RRULE value and optional exception instants.
func WithEventRule(rrule string, exceptions ...time.Time) EventOption {
	return func(f *EventFixture) {
		f.RecurrenceRule = rrule
		f.ExceptionDates = exceptions
	}
}

// WithEventTransparent marks the event as availability rather than busy time.
func WithEventTransparent() EventOption {
	return func(f *EventFixture) {
		f.Transparent = true
	}
}

// Input converts the fixture into service input.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		Title:          f.Title,
		Start:          f.Start,
		Duration:       f.Duration,
		TimeZone:       f.TimeZone,
		RecurrenceRule: f.RecurrenceRule,
		ExceptionDates: f.ExceptionDates,
		Transparent:    f.Transparent,
	}
}

// Definition converts the fixture into the shape the materializer expands.
func (f EventFixture) Definition() (occurrence.Event, error) {
	ev := occurrence.Event{
		ID:          f.ID,
		CalendarID:  f.CalendarID,
		Start:       f.Start,
		Duration:    f.Duration,
		TimeZone:    f.TimeZone,
		Transparent: f.Transparent,
	}
	if f.RecurrenceRule != "" {
		rule, err := recurrence.ParseRRule(f.RecurrenceRule)
		if err != nil {
			return occurrence.Event{}, err
		}
		rule = rule.WithExceptions(f.ExceptionDates...)
		ev.Rule = &rule
	}
	return ev, nil
}

// Persistence converts the fixture into a repository record with its
// occurrence envelope computed. It panics on fixtures that cannot be expanded.
func (f EventFixture) Persistence() persistence.Event {
	def, err := f.Definition()
	if err != nil {
		panic(fmt.Sprintf("testfixtures: event %s: %v", f.ID, err))
	}
	first, last, err := occurrence.NewMaterializer(temporal.SystemResolver{}, recurrence.Limits{}).Span(context.Background(), def)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: event %s: %v", f.ID, err))
	}
	return persistence.Event{
		ID:             f.ID,
		CalendarID:     f.CalendarID,
		Title:          f.Title,
		Start:          f.Start,
		Duration:       f.Duration,
		TimeZone:       f.TimeZone,
		RecurrenceRule: f.RecurrenceRule,
		ExceptionDates: f.ExceptionDates,
		Transparent:    f.Transparent,
		FirstStart:     first,
		LastEnd:        last,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.CreatedAt,
	}
}
