// Package ringbuf implements the contiguous byte buffer that backs
// bufio2's buffered reader and writer: a single backing slice with head and
// tail cursors, fixed in size, cleared but never wrapped — appending always
// happens at tail, consuming always advances head, and the two cursors
// reset to 0 together once they meet.
package ringbuf

// Buffer is a contiguous byte buffer with head/tail cursors. The zero value
// is an empty, zero-capacity buffer; use New to preallocate.
type Buffer struct {
	data []byte
	head int
	tail int
}

// New allocates a Buffer with the given capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the backing storage's capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Size returns the number of buffered, unconsumed bytes (tail - head).
func (b *Buffer) Size() int { return b.tail - b.head }

// Available returns the remaining room at the tail (cap - tail). Note this
// is not cap-size: bytes already consumed from the head are not reclaimed
// until the buffer empties and auto-clears.
func (b *Buffer) Available() int { return len(b.data) - b.tail }

// Clear resets both cursors to 0 without touching the backing storage.
func (b *Buffer) Clear() {
	b.head = 0
	b.tail = 0
}

// Write appends up to len(src) bytes at tail, bounded by Available, and
// returns the number of bytes actually copied.
func (b *Buffer) Write(src []byte) int {
	n := len(src)
	if avail := b.Available(); n > avail {
		n = avail
	}
	copy(b.data[b.tail:b.tail+n], src[:n])
	b.tail += n
	return n
}

// Read copies up to len(dst) buffered bytes into dst, bounded by Size, and
// advances head by the number of bytes copied (equivalent to Read followed
// by Consume of the same count). Returns the number of bytes copied.
func (b *Buffer) Read(dst []byte) int {
	n := len(dst)
	if size := b.Size(); n > size {
		n = size
	}
	copy(dst[:n], b.data[b.head:b.head+n])
	b.Consume(n)
	return n
}

// Tail returns the writable region of the backing storage beyond tail, for
// callers (bufio2) that want to read directly from a source into the
// buffer without an intermediate copy.
func (b *Buffer) Tail() []byte {
	return b.data[b.tail:]
}

// Advance grows tail by n after the caller has written n bytes directly
// into the slice returned by Tail.
func (b *Buffer) Advance(n int) {
	b.tail += n
}

// Peek returns a view of all currently buffered bytes without consuming
// them. The returned slice aliases the backing storage and is invalidated
// by the next Write, Consume, or Clear.
func (b *Buffer) Peek() []byte {
	return b.data[b.head:b.tail]
}

// Consume advances head by k bytes (clamped to Size), auto-clearing the
// buffer when head catches up to tail so appending stays contiguous.
func (b *Buffer) Consume(k int) {
	if size := b.Size(); k > size {
		k = size
	}
	b.head += k
	if b.head == b.tail {
		b.Clear()
	}
}
