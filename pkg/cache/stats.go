package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks cache performance counters.
type Statistics struct {
	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Hit records a cache hit.
func (s *Statistics) Hit() { atomic.AddInt64(&s.hits, 1) }

// Miss records a cache miss.
func (s *Statistics) Miss() { atomic.AddInt64(&s.misses, 1) }

// Set records a set operation.
func (s *Statistics) Set() { atomic.AddInt64(&s.sets, 1) }

// Delete records a delete operation.
func (s *Statistics) Delete() { atomic.AddInt64(&s.deletes, 1) }

// Eviction records an eviction.
func (s *Statistics) Eviction() { atomic.AddInt64(&s.evictions, 1) }

// UpdateSize records the current entry count and tracks the high-water
// mark.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the total cache hits.
func (s *Statistics) Hits() int64 { return atomic.LoadInt64(&s.hits) }

// Misses returns the total cache misses.
func (s *Statistics) Misses() int64 { return atomic.LoadInt64(&s.misses) }

// Sets returns the total set operations.
func (s *Statistics) Sets() int64 { return atomic.LoadInt64(&s.sets) }

// Deletes returns the total delete operations.
func (s *Statistics) Deletes() int64 { return atomic.LoadInt64(&s.deletes) }

// Evictions returns the total evictions.
func (s *Statistics) Evictions() int64 { return atomic.LoadInt64(&s.evictions) }

// CurrentSize returns the current entry count.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest entry count the cache has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// HitRatio returns hits over total lookups, in [0, 1].
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the cache has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset zeroes all counters and restarts the uptime clock.
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.misses, 0)
	atomic.StoreInt64(&s.sets, 0)
	atomic.StoreInt64(&s.deletes, 0)
	atomic.StoreInt64(&s.evictions, 0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.currentSize = 0
	s.maxSize = 0
	s.mu.Unlock()
}
