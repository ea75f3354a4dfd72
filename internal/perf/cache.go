package perf

import (
	"context"
	"time"
)

// Get returns the cached value for key. Expired entries are evicted on read.
// A value stored under a different type is reported as a miss.
func Get[T any](o *Optimizer, key string) (T, bool) {
	var zero T
	o.mu.Lock()
	entry, ok := o.cache[key]
	if ok && !o.now().Before(entry.expiresAt) {
		delete(o.cache, key)
		ok = false
	}
	var v T
	if ok {
		v, ok = entry.value.(T)
	}
	if ok {
		o.hits++
	} else {
		o.misses++
	}
	o.mu.Unlock()

	if ok {
		if o.cacheHit != nil {
			o.cacheHit.Add(context.Background(), 1)
		}
		return v, true
	}
	if o.cacheMiss != nil {
		o.cacheMiss.Add(context.Background(), 1)
	}
	return zero, false
}

// Set caches value under key for ttl. A ttl <= 0 uses the optimizer default.
func Set[T any](o *Optimizer, key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = o.ttl
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache[key] = cacheEntry{value: value, expiresAt: o.now().Add(ttl)}
}

// Delete removes key from the cache.
func (o *Optimizer) Delete(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cache, key)
}

// Clear empties the cache and resets hit/miss counters.
func (o *Optimizer) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache = make(map[string]cacheEntry)
	o.hits, o.misses = 0, 0
}

// Sweep removes every expired entry and returns how many were removed.
func (o *Optimizer) Sweep() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	removed := 0
	for key, entry := range o.cache {
		if !now.Before(entry.expiresAt) {
			delete(o.cache, key)
			removed++
		}
	}
	return removed
}

// CacheStats summarizes cache usage.
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// CacheStats returns the current entry count and hit statistics. Size counts
// entries not yet evicted, including expired ones awaiting a read or Sweep.
func (o *Optimizer) CacheStats() CacheStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := CacheStats{Size: len(o.cache), Hits: o.hits, Misses: o.misses}
	if total := o.hits + o.misses; total > 0 {
		s.HitRate = float64(o.hits) / float64(total)
	}
	return s
}

// Since returns the hits and misses counted after before was taken.
func (s CacheStats) Since(before CacheStats) (hits, misses int) {
	return int(s.Hits - before.Hits), int(s.Misses - before.Misses)
}
