package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a migrated SQLite
// database in a temporary directory.
type SQLiteHarness struct {
	Store     *sqlite.Store
	Calendars persistence.CalendarRepository
	Events    persistence.EventRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a file-backed database under tb.TempDir. Close is
// also registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store:     store,
		Calendars: store.Calendars,
		Events:    store.Events,
		cleanup: func() {
			_ = store.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// SeedCalendar stores the fixture and returns its record.
func (h *SQLiteHarness) SeedCalendar(tb testing.TB, fixture CalendarFixture) persistence.Calendar {
	tb.Helper()
	rec := fixture.Persistence()
	if err := h.Calendars.CreateCalendar(context.Background(), rec); err != nil {
		tb.Fatalf("failed to seed calendar %s: %v", rec.ID, err)
	}
	return rec
}

// SeedEvent stores the fixture at the calendar's current version.
func (h *SQLiteHarness) SeedEvent(tb testing.TB, fixture EventFixture) persistence.Event {
	tb.Helper()
	ctx := context.Background()
	cal, err := h.Calendars.GetCalendar(ctx, fixture.CalendarID)
	if err != nil {
		tb.Fatalf("failed to load calendar %s: %v", fixture.CalendarID, err)
	}
	rec := fixture.Persistence()
	if _, err := h.Events.SaveEvent(ctx, rec, cal.Version); err != nil {
		tb.Fatalf("failed to seed event %s: %v", rec.ID, err)
	}
	return rec
}
