package persistence

import (
	"context"
	"time"
)

// CalendarRepository exposes CRUD operations for calendars.
type CalendarRepository interface {
	CreateCalendar(ctx context.Context, calendar Calendar) error
	// UpdateCalendar stores settings when calendar.Version matches the stored
	// version and returns the record with its new version.
	UpdateCalendar(ctx context.Context, calendar Calendar) (Calendar, error)
	GetCalendar(ctx context.Context, id string) (Calendar, error)
	ListCalendars(ctx context.Context, ownerID string) ([]Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
}

// EventRepository reads events by id or window and writes them under a
// compare-and-swap on the owning calendar's version.
type EventRepository interface {
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, window EventWindow) ([]Event, error)
	ListCalendarEvents(ctx context.Context, calendarID string) ([]Event, error)
	// SaveEvent inserts or replaces event if the calendar is still at
	// expectedVersion, returning the new calendar version.
	SaveEvent(ctx context.Context, event Event, expectedVersion int64) (int64, error)
	DeleteEvent(ctx context.Context, id string, expectedVersion int64) (int64, error)
	// DeleteEventsEndedBefore purges bounded events whose last occurrence ended before cutoff.
	DeleteEventsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
