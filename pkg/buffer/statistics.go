package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks buffer performance counters.
type Statistics struct {
	writes    int64
	reads     int64
	overflows int64
	drops     int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Write records a write operation.
func (s *Statistics) Write() { atomic.AddInt64(&s.writes, 1) }

// Read records a read operation.
func (s *Statistics) Read() { atomic.AddInt64(&s.reads, 1) }

// Overflow records a write that hit a full buffer.
func (s *Statistics) Overflow() { atomic.AddInt64(&s.overflows, 1) }

// Drop records an item discarded by the overflow policy.
func (s *Statistics) Drop() { atomic.AddInt64(&s.drops, 1) }

// UpdateSize records the current item count and tracks the high-water
// mark.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Writes returns the total write operations.
func (s *Statistics) Writes() int64 { return atomic.LoadInt64(&s.writes) }

// Reads returns the total read operations.
func (s *Statistics) Reads() int64 { return atomic.LoadInt64(&s.reads) }

// Overflows returns the total overflow events.
func (s *Statistics) Overflows() int64 { return atomic.LoadInt64(&s.overflows) }

// Drops returns the total dropped items.
func (s *Statistics) Drops() int64 { return atomic.LoadInt64(&s.drops) }

// CurrentSize returns the current item count.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest item count the buffer has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// DropRate returns drops over writes, in [0, 1].
func (s *Statistics) DropRate() float64 {
	writes := s.Writes()
	if writes == 0 {
		return 0.0
	}
	return float64(s.Drops()) / float64(writes)
}

// Uptime returns how long the buffer has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset zeroes all counters and restarts the uptime clock.
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.writes, 0)
	atomic.StoreInt64(&s.reads, 0)
	atomic.StoreInt64(&s.overflows, 0)
	atomic.StoreInt64(&s.drops, 0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.currentSize = 0
	s.maxSize = 0
	s.mu.Unlock()
}
