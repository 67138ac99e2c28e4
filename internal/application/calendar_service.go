package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

// CalendarStore captures the calendar persistence the services need.
type CalendarStore interface {
	CreateCalendar(ctx context.Context, calendar persistence.Calendar) error
	UpdateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error)
	GetCalendar(ctx context.Context, id string) (persistence.Calendar, error)
	ListCalendars(ctx context.Context, ownerID string) ([]persistence.Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
}

// defaultWriteAttempts bounds compare-and-swap retries of one write.
const defaultWriteAttempts = 5

// CalendarService manages calendars and their settings.
type CalendarService struct {
	calendars   CalendarStore
	zones       temporal.Resolver
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCalendarService wires dependencies for calendar operations.
func NewCalendarService(calendars CalendarStore, zones temporal.Resolver, idGenerator func() string, now func() time.Time) *CalendarService {
	return NewCalendarServiceWithLogger(calendars, zones, idGenerator, now, nil)
}

// NewCalendarServiceWithLogger wires dependencies and a base logger.
func NewCalendarServiceWithLogger(calendars CalendarStore, zones temporal.Resolver, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CalendarService {
	if zones == nil {
		zones = temporal.SystemResolver{}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarService{calendars: calendars, zones: zones, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *CalendarService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CalendarService", operation, attrs...)
}

// CreateCalendar validates input and persists a new calendar.
func (s *CalendarService) CreateCalendar(ctx context.Context, input CalendarInput) (calendar Calendar, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateCalendar", "owner_id", input.OwnerID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create calendar", ErrorAttrs(err)...)
			return
		}
		logger.With("calendar_id", calendar.ID).InfoContext(ctx, "calendar created")
	}()

	weekStart := time.Monday
	if input.WeekStart != nil {
		weekStart = *input.WeekStart
	}
	timeZone := strings.TrimSpace(input.TimeZone)
	if timeZone == "" {
		timeZone = "UTC"
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(input.OwnerID) == "" {
		vErr.add("owner_id", "owner is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	vErr.merge(s.validateSettings(timeZone, weekStart))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now().UTC()
	calendar = Calendar{
		ID:        s.idGenerator(),
		OwnerID:   strings.TrimSpace(input.OwnerID),
		Name:      strings.TrimSpace(input.Name),
		TimeZone:  timeZone,
		WeekStart: weekStart,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}

	if s.calendars == nil {
		return
	}
	if err = s.calendars.CreateCalendar(ctx, toCalendarRecord(calendar)); err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

// GetCalendar returns a calendar by id.
func (s *CalendarService) GetCalendar(ctx context.Context, id string) (Calendar, error) {
	if s == nil || s.calendars == nil {
		return Calendar{}, fmt.Errorf("calendar repository not configured")
	}
	rec, err := s.calendars.GetCalendar(ctx, id)
	if err != nil {
		return Calendar{}, mapRepoError(err)
	}
	return toCalendar(rec), nil
}

// ListCalendars returns the calendars of ownerID, or all when it is empty.
func (s *CalendarService) ListCalendars(ctx context.Context, ownerID string) ([]Calendar, error) {
	if s == nil || s.calendars == nil {
		return nil, fmt.Errorf("calendar repository not configured")
	}
	records, err := s.calendars.ListCalendars(ctx, ownerID)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Calendar, 0, len(records))
	for _, rec := range records {
		out = append(out, toCalendar(rec))
	}
	return out, nil
}

// UpdateCalendarSettings changes name, time zone or week start. Concurrent
// event writes move the version, so the update is retried on the latest copy.
func (s *CalendarService) UpdateCalendarSettings(ctx context.Context, id string, input CalendarSettingsInput) (calendar Calendar, err error) {
	if s == nil || s.calendars == nil {
		err = fmt.Errorf("calendar repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateCalendarSettings", "calendar_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update calendar", ErrorAttrs(err)...)
			return
		}
		logger.With("version", calendar.Version).InfoContext(ctx, "calendar updated")
	}()

	for attempt := 1; ; attempt++ {
		var rec persistence.Calendar
		rec, err = s.calendars.GetCalendar(ctx, id)
		if err != nil {
			err = mapRepoError(err)
			return
		}

		if input.Name != nil {
			rec.Name = strings.TrimSpace(*input.Name)
		}
		if input.TimeZone != nil {
			rec.TimeZone = strings.TrimSpace(*input.TimeZone)
		}
		if input.WeekStart != nil {
			rec.WeekStart = *input.WeekStart
		}
		vErr := s.validateSettings(rec.TimeZone, rec.WeekStart)
		if rec.Name == "" {
			vErr.add("name", "name is required")
		}
		if vErr.HasErrors() {
			err = vErr
			return
		}
		rec.UpdatedAt = s.now().UTC()

		var updated persistence.Calendar
		updated, err = s.calendars.UpdateCalendar(ctx, rec)
		if errors.Is(err, persistence.ErrVersionConflict) {
			if attempt < defaultWriteAttempts {
				logger.DebugContext(ctx, "calendar changed during update, retrying", "attempt", attempt)
				continue
			}
			err = ErrConcurrentUpdate
			return
		}
		if err != nil {
			err = mapRepoError(err)
			return
		}
		calendar = toCalendar(updated)
		return
	}
}

// DeleteCalendar removes a calendar and its events.
func (s *CalendarService) DeleteCalendar(ctx context.Context, id string) (err error) {
	if s == nil || s.calendars == nil {
		return fmt.Errorf("calendar repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteCalendar", "calendar_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete calendar", ErrorAttrs(err)...)
			return
		}
		logger.InfoContext(ctx, "calendar deleted")
	}()

	if err = s.calendars.DeleteCalendar(ctx, id); err != nil {
		err = mapRepoError(err)
	}
	return
}

func (s *CalendarService) validateSettings(timeZone string, weekStart time.Weekday) *ValidationError {
	vErr := &ValidationError{}
	if _, err := s.zones.ResolveTimeZone(timeZone); err != nil {
		vErr.add("time_zone", fmt.Sprintf("unknown time zone %q", timeZone))
	}
	if weekStart < time.Sunday || weekStart > time.Saturday {
		vErr.add("week_start", "week start must be a weekday")
	}
	return vErr
}
