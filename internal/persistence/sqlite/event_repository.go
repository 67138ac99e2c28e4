package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

// EventRepository implements persistence.EventRepository.
type EventRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewEventRepository creates an event repository on pool.
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{pool: pool, mapper: NewErrorMapper(), retry: NewRetryHelper(DefaultRetryConfig())}
}

const eventColumns = `id, calendar_id, title, description, start_local, duration_seconds, time_zone, rrule,
	transparent, first_start, last_end, created_at, updated_at`

// GetEvent retrieves an event and its exception dates.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	ev, err := scanEvent(r.pool.DB().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	events := []persistence.Event{ev}
	if err := r.loadExceptions(ctx, events); err != nil {
		return persistence.Event{}, err
	}
	return events[0], nil
}

// ListEvents returns events of the calendar whose envelope intersects the window.
func (r *EventRepository) ListEvents(ctx context.Context, window persistence.EventWindow) ([]persistence.Event, error) {
	return r.query(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE calendar_id = ? AND first_start < ? AND (last_end IS NULL OR last_end > ?)
		ORDER BY first_start, id`,
		window.CalendarID, formatTime(window.To), formatTime(window.From),
	)
}

// ListCalendarEvents returns every event of a calendar.
func (r *EventRepository) ListCalendarEvents(ctx context.Context, calendarID string) ([]persistence.Event, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events WHERE calendar_id = ? ORDER BY first_start, id`, calendarID)
}

// SaveEvent upserts the event under the calendar version compare-and-swap.
func (r *EventRepository) SaveEvent(ctx context.Context, event persistence.Event, expectedVersion int64) (int64, error) {
	if event.ID == "" || event.CalendarID == "" {
		return 0, persistence.ErrConstraintViolation
	}
	var version int64
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var owner string
			err := tx.QueryRowContext(ctx, `SELECT calendar_id FROM events WHERE id = ?`, event.ID).Scan(&owner)
			switch {
			case err == nil && owner != event.CalendarID:
				return fmt.Errorf("%w: event %s belongs to calendar %s", persistence.ErrConstraintViolation, event.ID, owner)
			case err != nil && !errors.Is(err, sql.ErrNoRows):
				return err
			}

			if err := bumpVersion(ctx, tx, event.CalendarID, expectedVersion); err != nil {
				return err
			}
			var lastEnd sql.NullString
			if event.LastEnd != nil {
				lastEnd = sql.NullString{String: formatTime(*event.LastEnd), Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					title = excluded.title,
					description = excluded.description,
					start_local = excluded.start_local,
					duration_seconds = excluded.duration_seconds,
					time_zone = excluded.time_zone,
					rrule = excluded.rrule,
					transparent = excluded.transparent,
					first_start = excluded.first_start,
					last_end = excluded.last_end,
					updated_at = excluded.updated_at`,
				event.ID, event.CalendarID, event.Title, event.Description, event.Start.String(),
				int64(event.Duration/time.Second), event.TimeZone, event.RecurrenceRule, event.Transparent,
				formatTime(event.FirstStart), lastEnd, formatTime(event.CreatedAt), formatTime(event.UpdatedAt),
			); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM event_exceptions WHERE event_id = ?`, event.ID); err != nil {
				return err
			}
			for _, ex := range event.ExceptionDates {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO event_exceptions (event_id, exception_at) VALUES (?, ?)`,
					event.ID, formatTime(ex),
				); err != nil {
					return err
				}
			}
			return tx.QueryRowContext(ctx, `SELECT version FROM calendars WHERE id = ?`, event.CalendarID).Scan(&version)
		})
	})
	return version, err
}

// DeleteEvent removes an event under the calendar version compare-and-swap.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string, expectedVersion int64) (int64, error) {
	var version int64
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var calendarID string
			if err := tx.QueryRowContext(ctx, `SELECT calendar_id FROM events WHERE id = ?`, id).Scan(&calendarID); err != nil {
				return err
			}
			if err := bumpVersion(ctx, tx, calendarID, expectedVersion); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
				return err
			}
			return tx.QueryRowContext(ctx, `SELECT version FROM calendars WHERE id = ?`, calendarID).Scan(&version)
		})
	})
	return version, err
}

// DeleteEventsEndedBefore purges bounded events that ended before cutoff.
// Calendar versions are left alone since removing past events cannot create
// a conflict.
func (r *EventRepository) DeleteEventsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.retry.WithRetry(ctx, func() error {
		res, err := r.pool.DB().ExecContext(ctx,
			`DELETE FROM events WHERE last_end IS NOT NULL AND last_end < ?`, formatTime(cutoff))
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]persistence.Event, error) {
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	var events []persistence.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	if err := r.loadExceptions(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *EventRepository) loadExceptions(ctx context.Context, events []persistence.Event) error {
	if len(events) == 0 {
		return nil
	}
	index := make(map[string]int, len(events))
	ids := make([]any, 0, len(events))
	for i, ev := range events {
		index[ev.ID] = i
		ids = append(ids, ev.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT event_id, exception_at FROM event_exceptions WHERE event_id IN (`+placeholders+`) ORDER BY exception_at`, ids...)
	if err != nil {
		return r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, at string
		if err := rows.Scan(&id, &at); err != nil {
			return err
		}
		t, err := parseTime(at)
		if err != nil {
			return err
		}
		i := index[id]
		events[i].ExceptionDates = append(events[i].ExceptionDates, t)
	}
	return r.mapper.MapError(rows.Err())
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		ev                   persistence.Event
		start, firstStart    string
		createdAt, updatedAt string
		durationSeconds      int64
		lastEnd              sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.CalendarID, &ev.Title, &ev.Description, &start, &durationSeconds, &ev.TimeZone,
		&ev.RecurrenceRule, &ev.Transparent, &firstStart, &lastEnd, &createdAt, &updatedAt); err != nil {
		return persistence.Event{}, err
	}

	var err error
	if ev.Start, err = temporal.ParseWallClock(start); err != nil {
		return persistence.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	ev.Duration = time.Duration(durationSeconds) * time.Second
	if ev.FirstStart, err = parseTime(firstStart); err != nil {
		return persistence.Event{}, err
	}
	if lastEnd.Valid {
		t, err := parseTime(lastEnd.String)
		if err != nil {
			return persistence.Event{}, err
		}
		ev.LastEnd = &t
	}
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Event{}, err
	}
	if ev.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Event{}, err
	}
	return ev, nil
}
