// Package logbuf implements bounded FIFO line buffers for process console
// output. Buffers keep the most recent lines up to a fixed capacity, evicting
// the oldest line once the capacity is exceeded. Buffer contents survive
// instance restarts and are only lost when the daemon itself restarts.
package logbuf

import "sync"

const (
	// InstanceCapacity is the line capacity of a per-instance buffer.
	InstanceCapacity = 1000
	// AuxCapacity is the line capacity of the global and terminal buffers.
	AuxCapacity = 500
)

// Buffer is a bounded FIFO sequence of text lines.
type Buffer struct {
	mu       sync.RWMutex
	lines    []string
	start    int // index of the oldest line within the ring
	count    int
	capacity int
}

// New creates a buffer holding at most capacity lines.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = InstanceCapacity
	}
	return &Buffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Append adds a line, evicting the oldest line if the buffer is full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == b.capacity {
		b.lines[b.start] = line
		b.start = (b.start + 1) % b.capacity
		return
	}
	b.lines[(b.start+b.count)%b.capacity] = line
	b.count++
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Capacity returns the maximum number of lines the buffer can hold.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Snapshot returns the buffered lines in original append order.
func (b *Buffer) Snapshot() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.lines[(b.start+i)%b.capacity]
	}
	return out
}
