package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/calendar-scheduler/internal/ical"
	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/occurrence"
	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/scheduler"
	"github.com/example/calendar-scheduler/internal/temporal"
)

// EventStore captures the event persistence the services need.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	ListEvents(ctx context.Context, window persistence.EventWindow) ([]persistence.Event, error)
	ListCalendarEvents(ctx context.Context, calendarID string) ([]persistence.Event, error)
	SaveEvent(ctx context.Context, event persistence.Event, expectedVersion int64) (int64, error)
	DeleteEvent(ctx context.Context, id string, expectedVersion int64) (int64, error)
}

// Options tune conflict checking and query limits.
type Options struct {
	// ConflictHorizon bounds how far past max(first start, now) occurrences
	// of unbounded or long series are checked for conflicts.
	ConflictHorizon time.Duration
	// MaxWriteAttempts bounds compare-and-swap retries of one write.
	MaxWriteAttempts int
	// MaxQueryWindow bounds the length of read windows.
	MaxQueryWindow time.Duration
	// FreeBusyCacheTTL keeps computed free/busy sets; zero disables caching.
	FreeBusyCacheTTL time.Duration
}

// DefaultOptions returns a 90 day conflict horizon and a 400 day query limit.
func DefaultOptions() Options {
	return Options{
		ConflictHorizon:  90 * 24 * time.Hour,
		MaxWriteAttempts: defaultWriteAttempts,
		MaxQueryWindow:   400 * 24 * time.Hour,
		FreeBusyCacheTTL: time.Minute,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.ConflictHorizon <= 0 {
		o.ConflictHorizon = def.ConflictHorizon
	}
	if o.MaxWriteAttempts <= 0 {
		o.MaxWriteAttempts = def.MaxWriteAttempts
	}
	if o.MaxQueryWindow <= 0 {
		o.MaxQueryWindow = def.MaxQueryWindow
	}
	return o
}

func (o Options) validateWindow(window interval.Interval) error {
	vErr := &ValidationError{}
	switch {
	case window.Start.IsZero() || window.End.IsZero():
		vErr.add("window", "from and to are required")
	case !window.Start.Before(window.End):
		vErr.add("window", "from must be before to")
	case window.Duration() > o.MaxQueryWindow:
		vErr.add("window", fmt.Sprintf("window must not exceed %s", o.MaxQueryWindow))
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// EventService creates, changes and lists events. Every opaque write is
// checked against the calendar's busy time and stored under the calendar
// version, so two bookings racing for the same slot cannot both succeed.
type EventService struct {
	calendars    CalendarStore
	events       EventStore
	materializer *occurrence.Materializer
	resolver     *scheduler.Resolver
	codec        *ical.Codec
	options      Options
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewEventService wires dependencies for event operations.
func NewEventService(calendars CalendarStore, events EventStore, materializer *occurrence.Materializer, options Options, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(calendars, events, materializer, options, idGenerator, now, nil)
}

// NewEventServiceWithLogger wires dependencies and a base logger.
func NewEventServiceWithLogger(calendars CalendarStore, events EventStore, materializer *occurrence.Materializer, options Options, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if materializer == nil {
		materializer = occurrence.NewMaterializer(temporal.SystemResolver{}, recurrence.Limits{})
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		calendars:    calendars,
		events:       events,
		materializer: materializer,
		resolver:     scheduler.NewResolver(materializer),
		codec:        ical.NewCodec(nil, ""),
		options:      options.normalized(),
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// WithCodec replaces the iCalendar codec used by import and export.
func (s *EventService) WithCodec(codec *ical.Codec) *EventService {
	if codec != nil {
		s.codec = codec
	}
	return s
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

func (s *EventService) configured() error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.calendars == nil || s.events == nil {
		return fmt.Errorf("event repositories not configured")
	}
	return nil
}

// CreateEvent validates input, rejects it when an occurrence overlaps busy
// time and stores it.
func (s *EventService) CreateEvent(ctx context.Context, calendarID string, input EventInput) (event Event, err error) {
	if err = s.configured(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "calendar_id", calendarID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", ErrorAttrs(err)...)
			return
		}
		logger.With("event_id", event.ID, "recurring", event.Rule != nil).InfoContext(ctx, "event created")
	}()

	if vErr := validateEventInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	base := Event{ID: s.idGenerator(), CreatedAt: s.now().UTC()}
	event, err = s.write(ctx, logger, calendarID, func(cal persistence.Calendar) (Event, error) {
		return s.buildEvent(ctx, base, cal, input)
	})
	return
}

// UpdateEvent replaces every field of an event, re-checking conflicts
// against the rest of its calendar.
func (s *EventService) UpdateEvent(ctx context.Context, eventID string, input EventInput) (event Event, err error) {
	if err = s.configured(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", ErrorAttrs(err)...)
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	if vErr := validateEventInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	current, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	base := Event{ID: current.ID, CreatedAt: current.CreatedAt}
	event, err = s.write(ctx, logger, current.CalendarID, func(cal persistence.Calendar) (Event, error) {
		return s.buildEvent(ctx, base, cal, input)
	})
	return
}

// DeleteEvent removes an event.
func (s *EventService) DeleteEvent(ctx context.Context, eventID string) (err error) {
	if err = s.configured(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete event", ErrorAttrs(err)...)
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	for attempt := 1; ; attempt++ {
		var rec persistence.Event
		if rec, err = s.events.GetEvent(ctx, eventID); err != nil {
			err = mapRepoError(err)
			return
		}
		var cal persistence.Calendar
		if cal, err = s.calendars.GetCalendar(ctx, rec.CalendarID); err != nil {
			err = mapRepoError(err)
			return
		}
		_, err = s.events.DeleteEvent(ctx, eventID, cal.Version)
		if errors.Is(err, persistence.ErrVersionConflict) {
			if attempt < s.options.MaxWriteAttempts {
				logger.DebugContext(ctx, "calendar changed during delete, retrying", "attempt", attempt)
				continue
			}
			err = ErrConcurrentUpdate
			return
		}
		err = mapRepoError(err)
		return
	}
}

// GetEvent returns an event by id.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (Event, error) {
	if err := s.configured(); err != nil {
		return Event{}, err
	}
	rec, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	return toEvent(rec)
}

// ListEventInstances returns the events of a calendar that have occurrences
// in window, each with those occurrences.
func (s *EventService) ListEventInstances(ctx context.Context, calendarID string, window interval.Interval) ([]EventInstances, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	if err := s.options.validateWindow(window); err != nil {
		return nil, err
	}
	if _, err := s.calendars.GetCalendar(ctx, calendarID); err != nil {
		return nil, mapRepoError(err)
	}

	events, err := s.loadEvents(ctx, calendarID, window)
	if err != nil {
		return nil, err
	}
	var out []EventInstances
	for _, ev := range events {
		occs, err := s.materializer.Materialize(ctx, ev.Definition(), window)
		if err != nil {
			return nil, mapCoreError(err)
		}
		if len(occs) == 0 {
			continue
		}
		out = append(out, EventInstances{Event: ev, Instances: occs})
	}
	return out, nil
}

func (s *EventService) loadEvents(ctx context.Context, calendarID string, window interval.Interval) ([]Event, error) {
	records, err := s.events.ListEvents(ctx, persistence.EventWindow{CalendarID: calendarID, From: window.Start, To: window.End})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toEvents(records)
}

// write builds the event against the latest calendar copy, checks it and
// stores it under that copy's version, retrying while the version moves.
func (s *EventService) write(ctx context.Context, logger *slog.Logger, calendarID string, build func(persistence.Calendar) (Event, error)) (Event, error) {
	for attempt := 1; ; attempt++ {
		cal, err := s.calendars.GetCalendar(ctx, calendarID)
		if err != nil {
			return Event{}, mapRepoError(err)
		}
		ev, err := build(cal)
		if err != nil {
			return Event{}, err
		}
		if err := s.ensureNoConflicts(ctx, ev); err != nil {
			return Event{}, err
		}
		rec, err := toEventRecord(ev)
		if err != nil {
			return Event{}, mapCoreError(err)
		}

		version, err := s.events.SaveEvent(ctx, rec, cal.Version)
		if errors.Is(err, persistence.ErrVersionConflict) {
			if attempt < s.options.MaxWriteAttempts {
				logger.DebugContext(ctx, "calendar changed during write, retrying", "attempt", attempt)
				continue
			}
			return Event{}, ErrConcurrentUpdate
		}
		if err != nil {
			return Event{}, mapRepoError(err)
		}
		logger.DebugContext(ctx, "event stored", "calendar_version", version)
		return ev, nil
	}
}

func (s *EventService) buildEvent(ctx context.Context, base Event, cal persistence.Calendar, input EventInput) (Event, error) {
	ev := base
	ev.CalendarID = cal.ID
	ev.Title = strings.TrimSpace(input.Title)
	ev.Description = input.Description
	ev.Start = input.Start
	ev.Duration = input.Duration
	ev.TimeZone = strings.TrimSpace(input.TimeZone)
	if ev.TimeZone == "" {
		ev.TimeZone = cal.TimeZone
	}
	ev.Transparent = input.Transparent
	ev.UpdatedAt = s.now().UTC()

	if input.RecurrenceRule != "" {
		rule, err := recurrence.ParseRRule(input.RecurrenceRule)
		if err != nil {
			return Event{}, mapCoreError(err)
		}
		if rule.WeekStart != cal.WeekStart && !strings.Contains(strings.ToUpper(input.RecurrenceRule), "WKST=") {
			rule.WeekStart = cal.WeekStart
		}
		rule = rule.WithExceptions(input.ExceptionDates...)
		ev.Rule = &rule
	}

	first, last, err := s.materializer.Span(ctx, ev.Definition())
	if err != nil {
		return Event{}, mapCoreError(err)
	}
	ev.FirstStart, ev.LastEnd = first, last
	return ev, nil
}

// conflictWindow spans from the first possible start of ev to its last end,
// capped at ConflictHorizon past max(first start, now).
func (s *EventService) conflictWindow(ev Event) interval.Interval {
	from := ev.FirstStart
	base := from
	if now := s.now().UTC(); now.After(base) {
		base = now
	}
	end := base.Add(s.options.ConflictHorizon)
	if ev.LastEnd != nil && ev.LastEnd.Before(end) {
		end = *ev.LastEnd
	}
	if end.Before(from) {
		end = from
	}
	return interval.Interval{Start: from, End: end}
}

func (s *EventService) ensureNoConflicts(ctx context.Context, ev Event) error {
	window := s.conflictWindow(ev)

	var busy []scheduler.BusyInterval
	if !ev.Transparent {
		existing, err := s.loadEvents(ctx, ev.CalendarID, window)
		if err != nil {
			return err
		}
		others := make([]occurrence.Event, 0, len(existing))
		for _, other := range existing {
			if other.ID == ev.ID {
				continue
			}
			others = append(others, other.Definition())
		}
		busy, err = s.resolver.ComputeBusyTime(ctx, others, window)
		if err != nil {
			return mapCoreError(err)
		}
	}

	// Transparent events are still expanded so invalid starts surface.
	decision, err := s.resolver.CheckEvent(ctx, busy, ev.Definition(), window)
	if err != nil {
		return mapCoreError(err)
	}
	if !decision.Accepted {
		return &ConflictError{Conflicts: decision.Conflicts}
	}
	return nil
}

func validateEventInput(input EventInput) *ValidationError {
	vErr := &ValidationError{}
	switch {
	case input.Start.IsZero():
		vErr.add("start", "start is required")
	case !input.Start.Valid():
		vErr.add("start", "start is not a calendar date")
	}
	switch {
	case input.Duration < 0:
		vErr.add("duration", "duration must not be negative")
	case input.Duration%time.Second != 0:
		// Stored as whole seconds.
		vErr.add("duration", "duration must be whole seconds")
	}
	if len(input.ExceptionDates) > 0 && strings.TrimSpace(input.RecurrenceRule) == "" {
		vErr.add("exception_dates", "exception dates require a recurrence rule")
	}
	return vErr
}
