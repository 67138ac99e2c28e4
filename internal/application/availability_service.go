package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
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

// AvailabilityService answers busy, free and bookable-slot queries. It
// never writes.
type AvailabilityService struct {
	calendars CalendarStore
	events    EventStore
	zones     temporal.Resolver
	resolver  *scheduler.Resolver
	codec     *ical.Codec
	cache     *freeBusyCache
	options   Options
	now       func() time.Time
	logger    *slog.Logger
}

// NewAvailabilityService wires dependencies for availability queries.
func NewAvailabilityService(calendars CalendarStore, events EventStore, zones temporal.Resolver, limits recurrence.Limits, options Options, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(calendars, events, zones, limits, options, now, nil)
}

// NewAvailabilityServiceWithLogger wires dependencies and a base logger.
func NewAvailabilityServiceWithLogger(calendars CalendarStore, events EventStore, zones temporal.Resolver, limits recurrence.Limits, options Options, now func() time.Time, logger *slog.Logger) *AvailabilityService {
	if zones == nil {
		zones = temporal.SystemResolver{}
	}
	if now == nil {
		now = time.Now
	}
	options = options.normalized()
	return &AvailabilityService{
		calendars: calendars,
		events:    events,
		zones:     zones,
		resolver:  scheduler.NewResolver(occurrence.NewMaterializer(zones, limits)),
		codec:     ical.NewCodec(zones, ""),
		cache:     newFreeBusyCache(options.FreeBusyCacheTTL, 0, now),
		options:   options,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

func (s *AvailabilityService) configured() error {
	if s == nil {
		return fmt.Errorf("AvailabilityService is nil")
	}
	if s.calendars == nil || s.events == nil {
		return fmt.Errorf("event repositories not configured")
	}
	return nil
}

// BusyTime returns the merged busy intervals of a calendar in window.
func (s *AvailabilityService) BusyTime(ctx context.Context, calendarID string, window interval.Interval) ([]scheduler.BusyInterval, error) {
	fb, err := s.FreeBusy(ctx, calendarID, window)
	if err != nil {
		return nil, err
	}
	return fb.Busy, nil
}

// FreeBusy returns busy time and the availability advertised by transparent
// events minus busy time.
func (s *AvailabilityService) FreeBusy(ctx context.Context, calendarID string, window interval.Interval) (fb scheduler.FreeBusy, err error) {
	if err = s.configured(); err != nil {
		return
	}
	if err = s.options.validateWindow(window); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "FreeBusy", "calendar_id", calendarID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute free/busy", ErrorAttrs(err)...)
		}
	}()

	cal, err := s.calendars.GetCalendar(ctx, calendarID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	fb, err = s.freeBusy(ctx, cal, window)
	return
}

func (s *AvailabilityService) freeBusy(ctx context.Context, cal persistence.Calendar, window interval.Interval) (scheduler.FreeBusy, error) {
	key := freeBusyCacheKey(cal.ID, cal.Version, window)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	events, err := s.definitions(ctx, cal.ID, window)
	if err != nil {
		return scheduler.FreeBusy{}, err
	}
	fb, err := s.resolver.ComputeFreeBusy(ctx, events, window)
	if err != nil {
		return scheduler.FreeBusy{}, mapCoreError(err)
	}
	s.cache.Store(key, fb)
	return fb, nil
}

func (s *AvailabilityService) definitions(ctx context.Context, calendarID string, window interval.Interval) ([]occurrence.Event, error) {
	records, err := s.events.ListEvents(ctx, persistence.EventWindow{CalendarID: calendarID, From: window.Start, To: window.End})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	events, err := toEvents(records)
	if err != nil {
		return nil, err
	}
	out := make([]occurrence.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Definition())
	}
	return out, nil
}

// CheckConflicts reports, without writing, whether a proposed event overlaps
// busy time of any of the given calendars inside the window.
func (s *AvailabilityService) CheckConflicts(ctx context.Context, input ConflictCheckInput) (decision scheduler.EventDecision, err error) {
	if err = s.configured(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CheckConflicts", "calendar_ids", input.CalendarIDs)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to check conflicts", ErrorAttrs(err)...)
			return
		}
		logger.DebugContext(ctx, "conflicts checked", "accepted", decision.Accepted, "checked", decision.Checked)
	}()

	vErr := validateEventInput(input.Event)
	ids := uniqueStrings(input.CalendarIDs)
	if len(ids) == 0 {
		vErr.add("calendar_ids", "at least one calendar is required")
	}
	if wErr, ok := s.options.validateWindow(input.Window).(*ValidationError); ok {
		vErr.merge(wErr)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var existing []occurrence.Event
	var first persistence.Calendar
	for i, id := range ids {
		var cal persistence.Calendar
		if cal, err = s.calendars.GetCalendar(ctx, id); err != nil {
			err = mapRepoError(err)
			return
		}
		if i == 0 {
			first = cal
		}
		var defs []occurrence.Event
		if defs, err = s.definitions(ctx, id, input.Window); err != nil {
			return
		}
		existing = append(existing, defs...)
	}

	proposed := occurrence.Event{
		ID:          "proposed",
		CalendarID:  first.ID,
		Start:       input.Event.Start,
		Duration:    input.Event.Duration,
		TimeZone:    strings.TrimSpace(input.Event.TimeZone),
		Transparent: input.Event.Transparent,
	}
	if proposed.TimeZone == "" {
		proposed.TimeZone = first.TimeZone
	}
	if input.Event.RecurrenceRule != "" {
		rule, perr := recurrence.ParseRRule(input.Event.RecurrenceRule)
		if perr != nil {
			err = mapCoreError(perr)
			return
		}
		rule = rule.WithExceptions(input.Event.ExceptionDates...)
		proposed.Rule = &rule
	}

	busy, err := s.resolver.ComputeBusyTime(ctx, existing, input.Window)
	if err != nil {
		err = mapCoreError(err)
		return
	}
	decision, err = s.resolver.CheckEvent(ctx, busy, proposed, input.Window)
	err = mapCoreError(err)
	return
}

// BookingSlots returns the slots of one local day that fit inside the
// calendar's advertised availability.
func (s *AvailabilityService) BookingSlots(ctx context.Context, calendarID string, query SlotQuery) ([]scheduler.Slot, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	if vErr := validateSlotQuery(query); vErr.HasErrors() {
		return nil, vErr
	}
	cal, err := s.calendars.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	opts, err := s.slotOptions(query, cal)
	if err != nil {
		return nil, err
	}
	fb, err := s.freeBusy(ctx, cal, opts.Window)
	if err != nil {
		return nil, err
	}
	return scheduler.BookingSlots(fb.Free, opts), nil
}

// ServiceSlots returns the slots of one local day bookable with at least one
// of the calendars, each listing which calendars can take it.
func (s *AvailabilityService) ServiceSlots(ctx context.Context, calendarIDs []string, query SlotQuery) ([]scheduler.ServiceSlot, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	vErr := validateSlotQuery(query)
	ids := uniqueStrings(calendarIDs)
	if len(ids) == 0 {
		vErr.add("calendar_ids", "at least one calendar is required")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	var (
		hosts []scheduler.HostAvailability
		opts  scheduler.SlotOptions
	)
	for i, id := range ids {
		cal, err := s.calendars.GetCalendar(ctx, id)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if i == 0 {
			if opts, err = s.slotOptions(query, cal); err != nil {
				return nil, err
			}
		}
		fb, err := s.freeBusy(ctx, cal, opts.Window)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, scheduler.HostAvailability{HostID: cal.ID, Free: fb.Free})
	}
	return scheduler.ServiceSlots(hosts, opts), nil
}

func (s *AvailabilityService) slotOptions(query SlotQuery, cal persistence.Calendar) (scheduler.SlotOptions, error) {
	name := strings.TrimSpace(query.TimeZone)
	if name == "" {
		name = cal.TimeZone
	}
	zone, err := s.zones.ResolveTimeZone(name)
	if err != nil {
		return scheduler.SlotOptions{}, mapCoreError(err)
	}
	window, err := scheduler.DayWindow(query.Date, zone)
	if err != nil {
		return scheduler.SlotOptions{}, mapCoreError(err)
	}
	return scheduler.SlotOptions{Window: window, Duration: query.Duration, Interval: query.Interval}, nil
}

// ExportFreeBusy writes the free/busy of a calendar as a VFREEBUSY component.
func (s *AvailabilityService) ExportFreeBusy(ctx context.Context, calendarID string, window interval.Interval, w io.Writer) error {
	fb, err := s.FreeBusy(ctx, calendarID, window)
	if err != nil {
		return err
	}
	return s.codec.EncodeFreeBusy(w, ical.FreeBusy{
		UID:    calendarID,
		Window: window,
		Busy:   scheduler.Intervals(fb.Busy),
		Free:   fb.Free,
		Stamp:  s.now(),
	})
}

func validateSlotQuery(query SlotQuery) *ValidationError {
	vErr := &ValidationError{}
	if query.Date.IsZero() || !query.Date.Valid() {
		vErr.add("date", "date is required")
	}
	if query.Duration <= 0 {
		vErr.add("duration", "duration must be positive")
	}
	if err := scheduler.ValidateSlotInterval(query.Interval); err != nil {
		vErr.add("interval", err.Error())
	}
	return vErr
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func sortStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	slices.Sort(out)
	return out
}
