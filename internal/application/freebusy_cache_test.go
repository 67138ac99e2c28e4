package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/scheduler"
)

func sampleFreeBusy() scheduler.FreeBusy {
	at := func(h int) time.Time { return time.Date(2024, time.May, 1, h, 0, 0, 0, time.UTC) }
	return scheduler.FreeBusy{
		Busy: []scheduler.BusyInterval{{Interval: interval.Interval{Start: at(9), End: at(10)}, EventIDs: []string{"evt-1"}}},
		Free: []interval.Interval{{Start: at(10), End: at(12)}},
	}
}

func TestFreeBusyCacheStoresAndReturnsCopies(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newFreeBusyCache(time.Minute, 4, func() time.Time { return current })

	original := sampleFreeBusy()
	cache.Store("key", original)
	original.Busy[0].EventIDs[0] = "mutated"

	cached, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, "evt-1", cached.Busy[0].EventIDs[0])

	cached.Busy[0].EventIDs[0] = "changed"
	again, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, sampleFreeBusy(), again)
}

func TestFreeBusyCacheExpiresEntries(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newFreeBusyCache(time.Second, 4, func() time.Time { return current })

	cache.Store("key", sampleFreeBusy())
	_, ok := cache.Get("key")
	require.True(t, ok)

	current = current.Add(2 * time.Second)
	_, ok = cache.Get("key")
	assert.False(t, ok)
}

func TestFreeBusyCacheEvictsOldest(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newFreeBusyCache(time.Minute, 2, func() time.Time { return current })

	cache.Store("a", sampleFreeBusy())
	current = current.Add(time.Second)
	cache.Store("b", sampleFreeBusy())
	current = current.Add(time.Second)
	cache.Store("c", sampleFreeBusy())

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("a")
	assert.False(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
}

func TestFreeBusyCacheDisabled(t *testing.T) {
	t.Parallel()

	cache := newFreeBusyCache(0, 4, nil)
	assert.Nil(t, cache)
	cache.Store("key", sampleFreeBusy())
	_, ok := cache.Get("key")
	assert.False(t, ok)
}

func TestFreeBusyCacheKeyIncludesVersion(t *testing.T) {
	t.Parallel()

	window := interval.Interval{Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}
	assert.NotEqual(t, freeBusyCacheKey("cal", 1, window), freeBusyCacheKey("cal", 2, window))
}
