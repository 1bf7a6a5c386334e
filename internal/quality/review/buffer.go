package review

import (
	"sync"

	"civic/internal/quality"
)

// RingBuffer is a bounded, thread-safe queue of rejections. When full, the
// oldest rejection is dropped to make room.
type RingBuffer struct {
	mu       sync.Mutex
	items    []quality.Rejection
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &RingBuffer{
		items:    make([]quality.Rejection, capacity),
		capacity: capacity,
	}
}

// Enqueue adds a rejection, dropping the oldest if necessary. It reports
// whether something was dropped.
func (b *RingBuffer) Enqueue(rej quality.Rejection) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := false
	if b.count >= b.capacity {
		b.items[b.tail] = quality.Rejection{}
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}

	b.items[b.head] = rej
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped
}

// DequeueBatch removes up to n rejections, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []quality.Rejection {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	out := make([]quality.Rejection, n)
	for i := 0; i < n; i++ {
		out[i] = b.items[b.tail]
		b.items[b.tail] = quality.Rejection{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of dropped rejections.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
