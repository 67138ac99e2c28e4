package application

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/scheduler"
)

// freeBusyCache keeps recently computed free/busy sets. Keys include the
// calendar version, so any event write makes older entries unreachable and
// they age out through the TTL.
type freeBusyCache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]freeBusyCacheEntry
}

type freeBusyCacheEntry struct {
	value     scheduler.FreeBusy
	expiresAt time.Time
}

func newFreeBusyCache(ttl time.Duration, maxEntries int, now func() time.Time) *freeBusyCache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &freeBusyCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]freeBusyCacheEntry),
	}
}

func (c *freeBusyCache) Get(key string) (scheduler.FreeBusy, bool) {
	if c == nil {
		return scheduler.FreeBusy{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return scheduler.FreeBusy{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return scheduler.FreeBusy{}, false
	}
	return cloneFreeBusy(entry.value), true
}

func (c *freeBusyCache) Store(key string, value scheduler.FreeBusy) {
	if c == nil {
		return
	}
	cloned := cloneFreeBusy(value)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = freeBusyCacheEntry{value: cloned, expiresAt: expiry}
}

func (c *freeBusyCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *freeBusyCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *freeBusyCache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	delete(c.entries, oldestKey)
}

func cloneFreeBusy(fb scheduler.FreeBusy) scheduler.FreeBusy {
	out := scheduler.FreeBusy{}
	if len(fb.Busy) > 0 {
		out.Busy = make([]scheduler.BusyInterval, len(fb.Busy))
		for i, b := range fb.Busy {
			out.Busy[i] = scheduler.BusyInterval{Interval: b.Interval, EventIDs: append([]string(nil), b.EventIDs...)}
		}
	}
	if len(fb.Free) > 0 {
		out.Free = append([]interval.Interval(nil), fb.Free...)
	}
	return out
}

func freeBusyCacheKey(calendarID string, version int64, window interval.Interval) string {
	return fmt.Sprintf("%s|%d|%s|%s", calendarID, version,
		window.Start.UTC().Format(time.RFC3339Nano), window.End.UTC().Format(time.RFC3339Nano))
}
