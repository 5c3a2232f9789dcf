package scanner

import "sync"

// RawBuffer holds chunks read from the channel until the drainer takes them.
// Append and Drain are atomic with respect to each other.
type RawBuffer struct {
	mu     sync.Mutex
	chunks []string
}

// Append adds one chunk to the tail
func (b *RawBuffer) Append(chunk string) {
	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.mu.Unlock()
}

// Drain returns every buffered chunk in arrival order and empties the buffer
func (b *RawBuffer) Drain() []string {
	b.mu.Lock()
	chunks := b.chunks
	b.chunks = nil
	b.mu.Unlock()
	return chunks
}

// Len returns the number of buffered chunks
func (b *RawBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
