// Package sqlite implements the persistence repositories on modernc.org/sqlite.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// timeLayout is fixed-width so stored instants compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
	}
	return t.UTC(), nil
}

// Store bundles the connection pool and repositories of one database.
type Store struct {
	pool      *ConnectionPool
	Calendars *CalendarRepository
	Events    *EventRepository
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	store := &Store{
		pool:      pool,
		Calendars: NewCalendarRepository(pool),
		Events:    NewEventRepository(pool),
	}
	if err := store.Migrate(ctx, logger); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) error {
	scanner := migration.NewScannerDir(migrationFiles, "migrations")
	manager := migration.NewManager(scanner, migration.NewExecutor(s.pool.DB()), logger)
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("migrate sqlite database: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Optimize lets SQLite refresh its query planner statistics.
func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.pool.DB().ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("optimize sqlite database: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
