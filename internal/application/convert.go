package application

import (
	"fmt"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/recurrence"
)

func toCalendar(rec persistence.Calendar) Calendar {
	return Calendar{
		ID:        rec.ID,
		OwnerID:   rec.OwnerID,
		Name:      rec.Name,
		TimeZone:  rec.TimeZone,
		WeekStart: rec.WeekStart,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toCalendarRecord(cal Calendar) persistence.Calendar {
	return persistence.Calendar{
		ID:        cal.ID,
		OwnerID:   cal.OwnerID,
		Name:      cal.Name,
		TimeZone:  cal.TimeZone,
		WeekStart: cal.WeekStart,
		Version:   cal.Version,
		CreatedAt: cal.CreatedAt,
		UpdatedAt: cal.UpdatedAt,
	}
}

// toEvent parses the stored RRULE and reattaches exception dates to it.
func toEvent(rec persistence.Event) (Event, error) {
	ev := Event{
		ID:          rec.ID,
		CalendarID:  rec.CalendarID,
		Title:       rec.Title,
		Description: rec.Description,
		Start:       rec.Start,
		Duration:    rec.Duration,
		TimeZone:    rec.TimeZone,
		Transparent: rec.Transparent,
		FirstStart:  rec.FirstStart,
		LastEnd:     rec.LastEnd,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.RecurrenceRule == "" {
		return ev, nil
	}
	rule, err := recurrence.ParseRRule(rec.RecurrenceRule)
	if err != nil {
		return Event{}, fmt.Errorf("stored event %s: %w", rec.ID, err)
	}
	rule = rule.WithExceptions(rec.ExceptionDates...)
	ev.Rule = &rule
	return ev, nil
}

func toEventRecord(ev Event) (persistence.Event, error) {
	rec := persistence.Event{
		ID:          ev.ID,
		CalendarID:  ev.CalendarID,
		Title:       ev.Title,
		Description: ev.Description,
		Start:       ev.Start,
		Duration:    ev.Duration,
		TimeZone:    ev.TimeZone,
		Transparent: ev.Transparent,
		FirstStart:  ev.FirstStart,
		LastEnd:     ev.LastEnd,
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.UpdatedAt,
	}
	if ev.Rule == nil {
		return rec, nil
	}
	text, err := ev.Rule.RRule()
	if err != nil {
		return persistence.Event{}, err
	}
	rec.RecurrenceRule = text
	rec.ExceptionDates = make([]time.Time, 0, len(ev.Rule.Exceptions))
	for _, ex := range ev.Rule.Exceptions {
		rec.ExceptionDates = append(rec.ExceptionDates, ex.UTC())
	}
	return rec, nil
}

func toEvents(records []persistence.Event) ([]Event, error) {
	out := make([]Event, 0, len(records))
	for _, rec := range records {
		ev, err := toEvent(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
