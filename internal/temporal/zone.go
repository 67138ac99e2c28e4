package temporal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAmbiguousOrInvalidLocalTime indicates a wall clock that does not exist in
	// the zone, typically because a DST transition skipped it.
	ErrAmbiguousOrInvalidLocalTime = errors.New("temporal: wall clock does not exist in time zone")
	// ErrTimeZoneResolutionFailed indicates the resolver could not produce a zone.
	ErrTimeZoneResolutionFailed = errors.New("temporal: time zone resolution failed")
)

// Zone is a resolved reference to a named time zone. Offsets are always looked
// up through the location so DST changes are honoured.
type Zone struct {
	name string
	loc  *time.Location
}

// NewZone wraps an already loaded location.
func NewZone(name string, loc *time.Location) Zone {
	if loc == nil {
		loc = time.UTC
	}
	if name == "" {
		name = loc.String()
	}
	return Zone{name: name, loc: loc}
}

// UTC is the zone of coordinated universal time.
func UTC() Zone {
	return Zone{name: "UTC", loc: time.UTC}
}

// Name returns the IANA name the zone was resolved from.
func (z Zone) Name() string {
	if z.name == "" {
		return "UTC"
	}
	return z.name
}

// Location returns the underlying location.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// Resolver resolves time zone names. Implementations live outside the core;
// SystemResolver and CachingResolver are the defaults wired by the service.
type Resolver interface {
	ResolveTimeZone(name string) (Zone, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (Zone, error)

// ResolveTimeZone implements Resolver.
func (f ResolverFunc) ResolveTimeZone(name string) (Zone, error) {
	return f(name)
}

// SystemResolver loads zones from the Go time zone database.
type SystemResolver struct{}

// ResolveTimeZone implements Resolver.
func (SystemResolver) ResolveTimeZone(name string) (Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Zone{}, fmt.Errorf("%w: empty zone name", ErrTimeZoneResolutionFailed)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: %s: %v", ErrTimeZoneResolutionFailed, name, err)
	}
	return Zone{name: name, loc: loc}, nil
}

// ToInstant converts a wall clock in zone into an absolute instant (UTC).
//
// Wall clocks skipped by a transition fail with ErrAmbiguousOrInvalidLocalTime.
// Wall clocks that occur twice resolve to the earlier instant.
func ToInstant(w WallClock, zone Zone) (time.Time, error) {
	if !w.Valid() {
		return time.Time{}, fmt.Errorf("%w: %s is not a calendar time", ErrAmbiguousOrInvalidLocalTime, w)
	}
	loc := zone.Location()
	naive := w.floating()

	// Offsets in effect around the wall clock; transitions are never closer
	// together than a day in the tz database.
	offsets := make([]int, 0, 3)
	for _, probe := range []time.Time{naive.Add(-24 * time.Hour), naive, naive.Add(24 * time.Hour)} {
		_, offset := probe.In(loc).Zone()
		if !containsInt(offsets, offset) {
			offsets = append(offsets, offset)
		}
	}

	var (
		best  time.Time
		found bool
	)
	for _, offset := range offsets {
		candidate := naive.Add(-time.Duration(offset) * time.Second)
		if FromTime(candidate.In(loc)) != w {
			continue
		}
		if !found || candidate.Before(best) {
			best = candidate
			found = true
		}
	}
	if !found {
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrAmbiguousOrInvalidLocalTime, w, zone.Name())
	}
	return best.UTC(), nil
}

// ToWallClock returns the wall clock of instant t in zone.
func ToWallClock(t time.Time, zone Zone) WallClock {
	return FromTime(t.In(zone.Location()))
}

func containsInt(values []int, v int) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
