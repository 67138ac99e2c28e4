package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/logging"
)

func TestOpen_MigratesAndServes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := Open(ctx, MemoryConfig(), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Optimize(ctx))
	// Already applied migrations are skipped.
	require.NoError(t, store.Migrate(ctx, logging.Discard()))

	var tables int
	require.NoError(t, store.pool.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('calendars', 'events', 'event_exceptions')`,
	).Scan(&tables))
	assert.Equal(t, 3, tables)
}

func TestOpen_ReopensFileDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scheduler.db")

	created := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)

	first, err := Open(ctx, DefaultConfig(path), nil)
	require.NoError(t, err)
	_, err = first.pool.DB().ExecContext(ctx,
		`INSERT INTO calendars (id, owner_id, name, time_zone, week_start, version, created_at, updated_at)
		VALUES ('cal-1', 'owner', 'Team', 'UTC', 1, 0, ?, ?)`, formatTime(created), formatTime(created))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(ctx, DefaultConfig(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	cal, err := second.Calendars.GetCalendar(ctx, "cal-1")
	require.NoError(t, err)
	assert.Equal(t, "Team", cal.Name)
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{}, nil)
	assert.Error(t, err)
}
