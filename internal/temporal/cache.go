package temporal

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// CachingResolver memoizes successful zone lookups of another resolver.
// Failures are never cached so a recovering backend is picked up on the next call.
type CachingResolver struct {
	next  Resolver
	cache *lru.Cache[string, Zone]
}

// NewCachingResolver wraps next with an LRU cache holding up to size zones.
func NewCachingResolver(next Resolver, size int) (*CachingResolver, error) {
	if next == nil {
		next = SystemResolver{}
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, Zone](size)
	if err != nil {
		return nil, fmt.Errorf("temporal: create zone cache: %w", err)
	}
	return &CachingResolver{next: next, cache: cache}, nil
}

// ResolveTimeZone implements Resolver.
func (r *CachingResolver) ResolveTimeZone(name string) (Zone, error) {
	key := strings.TrimSpace(name)
	if zone, ok := r.cache.Get(key); ok {
		return zone, nil
	}
	zone, err := r.next.ResolveTimeZone(key)
	if err != nil {
		return Zone{}, err
	}
	r.cache.Add(key, zone)
	return zone, nil
}

// Len reports the number of cached zones.
func (r *CachingResolver) Len() int {
	return r.cache.Len()
}

// Purge drops every cached zone.
func (r *CachingResolver) Purge() {
	r.cache.Purge()
}
