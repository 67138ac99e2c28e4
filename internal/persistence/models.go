package persistence

import (
	"time"

	"github.com/example/calendar-scheduler/internal/temporal"
)

// Calendar owns events. Version increases on every event write so concurrent
// bookings can be serialised with compare-and-swap.
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

// Event is the stored form of a possibly recurring event.
type Event struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	Start       temporal.WallClock
	Duration    time.Duration
	TimeZone    string
	// RecurrenceRule is an RFC 5545 RRULE value; empty for single events.
	RecurrenceRule string
	ExceptionDates []time.Time
	Transparent    bool
	// FirstStart and LastEnd bound every occurrence; LastEnd is nil for
	// unbounded rules. Window reads select on them.
	FirstStart time.Time
	LastEnd    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventWindow selects events of one calendar whose envelope intersects [From, To).
type EventWindow struct {
	CalendarID string
	From       time.Time
	To         time.Time
}
