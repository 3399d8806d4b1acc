// Package buffer provides the bounded frame queues behind the stream
// multiplexer. A queue is a fixed-capacity circular buffer with a
// configurable overflow policy; statistics are always collected and
// Prometheus export is opt-in via WithMetrics.
package buffer

// Buffer is a bounded FIFO queue parameterized by item type.
type Buffer[T any] interface {
	// Write adds an item. Behavior on a full buffer depends on the
	// overflow policy.
	Write(item T) error

	// Read removes and returns the oldest item, or false when empty.
	Read() (T, bool)

	// Size returns the current number of items.
	Size() int

	// Capacity returns the fixed maximum number of items.
	Capacity() int

	// IsEmpty returns true when no items are buffered.
	IsEmpty() bool

	// Stats returns the buffer statistics.
	Stats() *Statistics

	// Close marks the buffer closed and wakes any blocked writers.
	Close() error
}

// OverflowPolicy defines what Write does when the buffer is full.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the incoming item.
	DropNewest

	// Block makes Write wait until space frees up or the buffer
	// closes.
	Block
)

// String returns a human-readable policy name.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback receives each item discarded by an overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Returns an error if metrics registration fails when requested.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	return newCircularBuffer(capacity, applyOptions(options...))
}
