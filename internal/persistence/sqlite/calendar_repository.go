package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
)

// CalendarRepository implements persistence.CalendarRepository.
type CalendarRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewCalendarRepository creates a calendar repository on pool.
func NewCalendarRepository(pool *ConnectionPool) *CalendarRepository {
	return &CalendarRepository{pool: pool, mapper: NewErrorMapper(), retry: NewRetryHelper(DefaultRetryConfig())}
}

const calendarColumns = `id, owner_id, name, time_zone, week_start, version, created_at, updated_at`

// CreateCalendar inserts a calendar at version 0.
func (r *CalendarRepository) CreateCalendar(ctx context.Context, calendar persistence.Calendar) error {
	if calendar.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx,
			`INSERT INTO calendars (`+calendarColumns+`) VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			calendar.ID, calendar.OwnerID, calendar.Name, calendar.TimeZone, int(calendar.WeekStart),
			formatTime(calendar.CreatedAt), formatTime(calendar.UpdatedAt),
		)
		return err
	})
}

// UpdateCalendar stores name, time zone and week start if the version matches.
func (r *CalendarRepository) UpdateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	var updated persistence.Calendar
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if err := bumpVersion(ctx, tx, calendar.ID, calendar.Version); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE calendars SET name = ?, time_zone = ?, week_start = ?, updated_at = ? WHERE id = ?`,
				calendar.Name, calendar.TimeZone, int(calendar.WeekStart), formatTime(calendar.UpdatedAt), calendar.ID,
			); err != nil {
				return err
			}
			var err error
			updated, err = scanCalendar(tx.QueryRowContext(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE id = ?`, calendar.ID))
			return err
		})
	})
	return updated, err
}

// GetCalendar retrieves a calendar by id.
func (r *CalendarRepository) GetCalendar(ctx context.Context, id string) (persistence.Calendar, error) {
	cal, err := scanCalendar(r.pool.DB().QueryRowContext(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE id = ?`, id))
	if err != nil {
		return persistence.Calendar{}, r.mapper.MapError(err)
	}
	return cal, nil
}

// ListCalendars returns the calendars of ownerID, or every calendar when it is empty.
func (r *CalendarRepository) ListCalendars(ctx context.Context, ownerID string) ([]persistence.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendars`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Calendar
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cal)
	}
	return out, r.mapper.MapError(rows.Err())
}

// DeleteCalendar removes a calendar and, by cascade, its events.
func (r *CalendarRepository) DeleteCalendar(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		res, err := r.pool.DB().ExecContext(ctx, `DELETE FROM calendars WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// bumpVersion is the compare-and-swap every event write goes through.
func bumpVersion(ctx context.Context, tx *sql.Tx, calendarID string, expected int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE calendars SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		formatTime(time.Now()), calendarID, expected,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM calendars WHERE id = ?`, calendarID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	if err != nil {
		return err
	}
	return persistence.ErrVersionConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalendar(row rowScanner) (persistence.Calendar, error) {
	var (
		cal                  persistence.Calendar
		weekStart            int
		createdAt, updatedAt string
	)
	if err := row.Scan(&cal.ID, &cal.OwnerID, &cal.Name, &cal.TimeZone, &weekStart, &cal.Version, &createdAt, &updatedAt); err != nil {
		return persistence.Calendar{}, err
	}
	cal.WeekStart = time.Weekday(weekStart)
	var err error
	if cal.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Calendar{}, err
	}
	if cal.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Calendar{}, err
	}
	return cal, nil
}
