package application

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

// memoryStore keeps calendars and events in maps and enforces the same
// version compare-and-swap as the SQLite repositories.
type memoryStore struct {
	mu        sync.Mutex
	calendars map[string]persistence.Calendar
	events    map[string]persistence.Event

	// beforeSave runs before each SaveEvent and may bump versions to
	// simulate a concurrent writer.
	beforeSave func(store *memoryStore, calendarID string)
	saveCalls  int
	listCalls  int
	listErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		calendars: make(map[string]persistence.Calendar),
		events:    make(map[string]persistence.Event),
	}
}

func (m *memoryStore) addCalendar(id, zone string) persistence.Calendar {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal := persistence.Calendar{ID: id, OwnerID: "owner-1", Name: id, TimeZone: zone, WeekStart: time.Monday}
	m.calendars[id] = cal
	return cal
}

func (m *memoryStore) bump(calendarID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal := m.calendars[calendarID]
	cal.Version++
	m.calendars[calendarID] = cal
}

func (m *memoryStore) CreateCalendar(ctx context.Context, calendar persistence.Calendar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calendars[calendar.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.calendars[calendar.ID] = calendar
	return nil
}

func (m *memoryStore) UpdateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.calendars[calendar.ID]
	if !ok {
		return persistence.Calendar{}, persistence.ErrNotFound
	}
	if current.Version != calendar.Version {
		return persistence.Calendar{}, persistence.ErrVersionConflict
	}
	calendar.Version++
	m.calendars[calendar.ID] = calendar
	return calendar, nil
}

func (m *memoryStore) GetCalendar(ctx context.Context, id string) (persistence.Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal, ok := m.calendars[id]
	if !ok {
		return persistence.Calendar{}, persistence.ErrNotFound
	}
	return cal, nil
}

func (m *memoryStore) ListCalendars(ctx context.Context, ownerID string) ([]persistence.Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Calendar
	for _, cal := range m.calendars {
		if ownerID == "" || cal.OwnerID == ownerID {
			out = append(out, cal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) DeleteCalendar(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calendars[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.calendars, id)
	for eid, ev := range m.events {
		if ev.CalendarID == id {
			delete(m.events, eid)
		}
	}
	return nil
}

func (m *memoryStore) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return ev, nil
}

func (m *memoryStore) ListEvents(ctx context.Context, window persistence.EventWindow) ([]persistence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []persistence.Event
	for _, ev := range m.events {
		if ev.CalendarID != window.CalendarID || !ev.FirstStart.Before(window.To) {
			continue
		}
		if ev.LastEnd != nil && !ev.LastEnd.After(window.From) {
			continue
		}
		out = append(out, ev)
	}
	sortEvents(out)
	return out, nil
}

func (m *memoryStore) ListCalendarEvents(ctx context.Context, calendarID string) ([]persistence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Event
	for _, ev := range m.events {
		if ev.CalendarID == calendarID {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out, nil
}

func (m *memoryStore) SaveEvent(ctx context.Context, event persistence.Event, expectedVersion int64) (int64, error) {
	if m.beforeSave != nil {
		m.beforeSave(m, event.CalendarID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	cal, ok := m.calendars[event.CalendarID]
	if !ok {
		return 0, persistence.ErrNotFound
	}
	if cal.Version != expectedVersion {
		return 0, persistence.ErrVersionConflict
	}
	cal.Version++
	m.calendars[cal.ID] = cal
	m.events[event.ID] = event
	return cal.Version, nil
}

func (m *memoryStore) DeleteEvent(ctx context.Context, id string, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return 0, persistence.ErrNotFound
	}
	cal := m.calendars[ev.CalendarID]
	if cal.Version != expectedVersion {
		return 0, persistence.ErrVersionConflict
	}
	cal.Version++
	m.calendars[cal.ID] = cal
	delete(m.events, id)
	return cal.Version, nil
}

func sortEvents(events []persistence.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].FirstStart.Equal(events[j].FirstStart) {
			return events[i].FirstStart.Before(events[j].FirstStart)
		}
		return events[i].ID < events[j].ID
	})
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func wall(year int, month time.Month, day, hour, minute int) temporal.WallClock {
	return temporal.NewWallClock(year, month, day, hour, minute, 0, 0)
}

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}
