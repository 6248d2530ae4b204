package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("queue full")
	ErrQueueClosed = errors.New("queue closed")
)

// Buffer is a thread-safe FIFO that grows when it reaches 70% of capacity.
type Buffer[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	maxLen   int // 0 = unbounded
	closed   bool

	// ready holds at most one wakeup for the consumer.
	ready chan struct{}

	// Stats
	totalReceived int64
	totalSent     int64
	totalRejected int64
	resizeCount   int
}

// NewBuffer creates a buffer with the given initial capacity.
// maxLen > 0 bounds the number of pending items; Push fails with ErrQueueFull beyond it.
func NewBuffer[T any](initialCapacity, maxLen int) *Buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxLen < 0 {
		maxLen = 0
	}
	return &Buffer[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		maxLen:   maxLen,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends an item without blocking.
func (b *Buffer[T]) Push(item T) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrQueueClosed
	}
	if b.maxLen > 0 && b.count >= b.maxLen {
		b.totalRejected++
		b.mu.Unlock()
		return ErrQueueFull
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalReceived++
	b.mu.Unlock()

	b.wake()
	return nil
}

// Receive removes and returns the oldest item.
// Blocks until an item is available, the buffer is closed and drained
// (ErrQueueClosed), or ctx is done (ctx.Err()).
func (b *Buffer[T]) Receive(ctx context.Context) (T, error) {
	for {
		if item, ok := b.TryReceive(); ok {
			return item, nil
		}

		b.mu.Lock()
		closed := b.closed && b.count == 0
		b.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-b.ready:
		}
	}
}

// TryReceive removes the oldest item without blocking.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.count == 0 {
		return zero, false
	}

	item := b.buf[b.head]
	b.buf[b.head] = zero // Clear reference for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalSent++

	return item, true
}

// Close stops accepting items. The consumer still receives what is pending.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wake()
}

// Len returns the number of pending items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:         b.count,
		Capacity:      b.capacity,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		TotalRejected: b.totalRejected,
		ResizeCount:   b.resizeCount,
	}
}

// Stats contains buffer statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	TotalRejected int64
	ResizeCount   int
}

func (b *Buffer[T]) wake() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// grow doubles the buffer capacity. Must be called with lock held.
func (b *Buffer[T]) grow() {
	newCapacity := b.capacity * 2
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}
