// Package capture ingests raw terminal output into bounded, queryable
// per-session line buffers.
//
// The Service owns every Session record and subscribes to the host terminal
// signals on an event bus. Raw chunks pass through a normalization pipeline
// that strips escape sequences and shell-integration telemetry before the
// surviving lines are stored.
package capture

import "strings"

// LineBuffer is a fixed-capacity buffer of text lines with oldest-first
// eviction. When the buffer is full, appending a line discards the oldest
// one, so the buffer always holds the most recent lines in their original
// relative order.
//
// LineBuffer is not safe for concurrent use on its own; the Service
// serializes all access to it.
type LineBuffer struct {
	lines    []string
	capacity int
	start    int
	count    int
}

// NewLineBuffer creates a line buffer holding at most capacity lines.
// A capacity below 1 is treated as 1.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LineBuffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Append adds lines in order, evicting the oldest lines once the
// buffer is full.
func (b *LineBuffer) Append(lines ...string) {
	for _, line := range lines {
		if b.count < b.capacity {
			b.lines[(b.start+b.count)%b.capacity] = line
			b.count++
			continue
		}
		// Full: overwrite the oldest slot and advance the start.
		b.lines[b.start] = line
		b.start = (b.start + 1) % b.capacity
	}
}

// Len returns the number of lines currently stored.
func (b *LineBuffer) Len() int {
	return b.count
}

// Lines returns a copy of all stored lines, oldest first.
func (b *LineBuffer) Lines() []string {
	out := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.lines[(b.start+i)%b.capacity]
	}
	return out
}

// Last returns a copy of the most recent n lines, oldest first.
// If n is zero or negative, or exceeds the stored count, all lines
// are returned.
func (b *LineBuffer) Last(n int) []string {
	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]string, n)
	offset := b.count - n
	for i := 0; i < n; i++ {
		out[i] = b.lines[(b.start+offset+i)%b.capacity]
	}
	return out
}

// Text returns the stored lines joined with newlines, oldest first.
func (b *LineBuffer) Text() string {
	return strings.Join(b.Lines(), "\n")
}

// ByteSize returns the serialized size of the buffer: the sum of line
// lengths plus one newline separator per line break.
func (b *LineBuffer) ByteSize() int {
	if b.count == 0 {
		return 0
	}
	size := b.count - 1 // newline separators
	for i := 0; i < b.count; i++ {
		size += len(b.lines[(b.start+i)%b.capacity])
	}
	return size
}

// Reset discards all stored lines. The underlying memory is retained
// to avoid reallocation.
func (b *LineBuffer) Reset() {
	b.start = 0
	b.count = 0
}
