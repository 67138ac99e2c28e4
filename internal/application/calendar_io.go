package application

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/example/calendar-scheduler/internal/ical"
	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/persistence"
)

// ImportEvents reads VEVENTs from r and creates each one in the calendar.
// Components that cannot be represented, fail validation or conflict with
// busy time are skipped and reported; other failures abort the import.
func (s *EventService) ImportEvents(ctx context.Context, calendarID string, r io.Reader) (result ImportResult, err error) {
	if err = s.configured(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ImportEvents", "calendar_id", calendarID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to import events", ErrorAttrs(err)...)
			return
		}
		logger.InfoContext(ctx, "events imported", "created", len(result.Created), "skipped", len(result.Skipped))
	}()

	if _, err = s.calendars.GetCalendar(ctx, calendarID); err != nil {
		err = mapRepoError(err)
		return
	}

	decoded, rejected, err := s.codec.Decode(r)
	if err != nil {
		err = fieldError("calendar", err.Error())
		return
	}
	for _, c := range rejected {
		result.Skipped = append(result.Skipped, ImportSkip{UID: c.UID, Reason: c.Err.Error()})
	}

	for _, item := range decoded {
		input := EventInput{
			Title:          item.Summary,
			Description:    item.Description,
			Start:          item.Start,
			Duration:       item.Duration,
			TimeZone:       item.TimeZone,
			RecurrenceRule: item.RecurrenceRule,
			ExceptionDates: item.ExceptionDates,
			Transparent:    item.Transparent,
		}
		created, cerr := s.CreateEvent(ctx, calendarID, input)
		if cerr != nil {
			var vErr *ValidationError
			if errors.As(cerr, &vErr) || errors.Is(cerr, ErrConflict) || errors.Is(cerr, ErrResourceLimit) {
				result.Skipped = append(result.Skipped, ImportSkip{UID: item.UID, Reason: cerr.Error()})
				continue
			}
			err = cerr
			return
		}
		result.Created = append(result.Created, created)
	}
	return
}

// ExportEvents writes the events of a calendar as iCalendar. A nil window
// exports every event; otherwise only events whose envelope meets it.
func (s *EventService) ExportEvents(ctx context.Context, calendarID string, window *interval.Interval, w io.Writer) error {
	if err := s.configured(); err != nil {
		return err
	}
	if _, err := s.calendars.GetCalendar(ctx, calendarID); err != nil {
		return mapRepoError(err)
	}

	var (
		records []persistence.Event
		err     error
	)
	if window == nil {
		records, err = s.events.ListCalendarEvents(ctx, calendarID)
	} else {
		if verr := s.options.validateWindow(*window); verr != nil {
			return verr
		}
		records, err = s.events.ListEvents(ctx, persistence.EventWindow{CalendarID: calendarID, From: window.Start, To: window.End})
	}
	if err != nil && !isNotFoundError(err) {
		return err
	}
	events, err := toEvents(records)
	if err != nil {
		return err
	}

	out := make([]ical.Event, 0, len(events))
	for _, ev := range events {
		item := ical.Event{
			UID:         ev.ID,
			Summary:     ev.Title,
			Description: ev.Description,
			Start:       ev.Start,
			TimeZone:    ev.TimeZone,
			Duration:    ev.Duration,
			Transparent: ev.Transparent,
		}
		if ev.Rule != nil {
			text, err := ev.Rule.RRule()
			if err != nil {
				return fmt.Errorf("event %s: %w", ev.ID, err)
			}
			item.RecurrenceRule = text
			item.ExceptionDates = ev.Rule.Exceptions
		}
		out = append(out, item)
	}
	return s.codec.EncodeEvents(w, out, s.now())
}
