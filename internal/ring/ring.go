// Package ring provides a thread-safe, unbounded sample queue feeding the
// audio capture path.
package ring

import "sync"

// Buffer is an unbounded, mutex-guarded queue of float32 PCM samples at
// whatever rate the producer feeds it. Append and Drain are both
// linearizable: a Drain that happens-after an Append sees that Append's
// samples contiguous and in order.
type Buffer struct {
	mu  sync.Mutex
	buf []float32
}

// New returns an empty Buffer. capacityHint pre-sizes the backing store to
// avoid early reallocation; it does not bound growth.
func New(capacityHint int) *Buffer {
	return &Buffer{buf: make([]float32, 0, capacityHint)}
}

// Append concatenates samples onto the buffer. Safe to call from the audio
// callback: it never allocates more than appending to a slice requires.
func (b *Buffer) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	b.buf = append(b.buf, samples...)
	b.mu.Unlock()
}

// Drain returns all buffered samples as a new slice and clears the buffer.
// The backing array's capacity is retained for reuse.
func (b *Buffer) Drain() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil
	}
	out := make([]float32, len(b.buf))
	copy(out, b.buf)
	b.buf = b.buf[:0]
	return out
}

// Count returns the number of samples currently buffered.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// DurationSeconds reports count/16000 regardless of the buffer's actual
// sample rate. This is a diagnostic figure only — the buffer may hold
// samples at the hardware rate — and must never be used for audio math.
func (b *Buffer) DurationSeconds() float64 {
	return float64(b.Count()) / 16000.0
}

// Reset discards all buffered samples without returning them.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.buf = b.buf[:0]
	b.mu.Unlock()
}
