// Package bufio2 provides buffered reader/writer adapters over any object
// satisfying the Source/Sink contracts (implemented by socket.Socket),
// backed by ringbuf.Buffer. It is named bufio2, not bufio, because it
// adapts the awaitable Source/Sink shape used throughout netcore-go rather
// than the stdlib io.Reader/io.Writer shape bufio targets.
package bufio2

import (
	"github.com/netcore-go/netcore/neterr"
	"github.com/netcore-go/netcore/ringbuf"
)

// Source is a readable endpoint offering both a non-blocking probe and an
// awaitable read that suspends until data (or EOF) is available.
type Source interface {
	// TryRead performs a single non-blocking read attempt. ok is false if
	// the call would have blocked (no data ready, stream still open); err
	// is non-nil only for a genuine failure.
	TryRead(dst []byte) (n int, ok bool, err error)
	// Read suspends the caller until at least one byte is available or the
	// stream is at EOF (n == 0, err == nil).
	Read(dst []byte) (n int, err error)
}

// Sink is a writable endpoint with the same non-blocking/awaitable pairing
// as Source.
type Sink interface {
	TryWrite(src []byte) (n int, ok bool, err error)
	Write(src []byte) (n int, err error)
}

// Reader buffers reads from a Source.
type Reader struct {
	src Source
	buf *ringbuf.Buffer
}

// NewReader creates a Reader with the given internal buffer capacity.
func NewReader(src Source, capacity int) *Reader {
	return &Reader{src: src, buf: ringbuf.New(capacity)}
}

// Read fills dst completely, or returns a *neterr.EofError describing how
// many bytes were delivered before the source closed. When len(dst) is at
// least the buffer's capacity, already-buffered bytes are drained into dst
// first and the remainder is read directly from the source (bypassing the
// buffer) to avoid a redundant copy; otherwise the buffer is refilled from
// the source in a loop.
func (r *Reader) Read(dst []byte) (int, error) {
	want := len(dst)
	if want == 0 {
		return 0, nil
	}

	if want >= r.buf.Cap() {
		copied := r.buf.Read(dst)
		for copied < want {
			n, err := r.src.Read(dst[copied:])
			if err != nil {
				return copied, err
			}
			if n == 0 {
				return copied, &neterr.EofError{Transferred: copied}
			}
			copied += n
		}
		return copied, nil
	}

	copied := 0
	for copied < want {
		if r.buf.Size() == 0 {
			if err := r.fill(); err != nil {
				if neterr.IsEOF(err) {
					return copied, &neterr.EofError{Transferred: copied}
				}
				return copied, err
			}
		}
		copied += r.buf.Read(dst[copied:])
	}
	return copied, nil
}

// fill performs one awaited read directly into the ring buffer's tail
// region, growing Size by however many bytes the source delivered.
func (r *Reader) fill() error {
	n, err := r.src.Read(r.buf.Tail())
	if err != nil {
		return err
	}
	if n == 0 {
		return &neterr.EofError{Transferred: 0}
	}
	r.buf.Advance(n)
	return nil
}

// Done probes the source non-blockingly (never suspending the caller) to
// decide whether the stream has closed. If the buffer already holds data,
// the stream is obviously not done. Otherwise a single-byte non-blocking
// read is attempted; a byte read this way is pushed back into the buffer
// so Read still observes it.
func (r *Reader) Done() bool {
	if r.buf.Size() > 0 {
		return false
	}
	var probe [1]byte
	n, ok, err := r.src.TryRead(probe[:])
	if err != nil {
		return true
	}
	if !ok {
		return false
	}
	if n == 0 {
		return true
	}
	r.buf.Write(probe[:n])
	return false
}

// Writer buffers writes to a Sink.
type Writer struct {
	sink Sink
	buf  *ringbuf.Buffer
}

// NewWriter creates a Writer with the given internal buffer capacity.
func NewWriter(sink Sink, capacity int) *Writer {
	return &Writer{sink: sink, buf: ringbuf.New(capacity)}
}

// Write buffers src, flushing as needed. When len(src) is at least the
// buffer's capacity, the buffer is flushed first and src is written
// directly to the sink, bypassing the buffer.
func (w *Writer) Write(src []byte) (int, error) {
	want := len(src)
	if want == 0 {
		return 0, nil
	}

	if want >= w.buf.Cap() {
		if err := w.Flush(); err != nil {
			return 0, err
		}
		written := 0
		for written < want {
			n, err := w.sink.Write(src[written:])
			if err != nil {
				return written, err
			}
			written += n
		}
		return written, nil
	}

	written := w.buf.Write(src)
	for written < want {
		if err := w.Flush(); err != nil {
			return written, err
		}
		written += w.buf.Write(src[written:])
	}
	if w.buf.Available() == 0 {
		if err := w.Flush(); err != nil {
			return written, err
		}
	}
	return written, nil
}

// Flush drains the buffer via awaited writes until empty.
func (w *Writer) Flush() error {
	for w.buf.Size() > 0 {
		n, err := w.sink.Write(w.buf.Peek())
		if err != nil {
			return err
		}
		w.buf.Consume(n)
	}
	return nil
}

// TryFlush drains the buffer non-blockingly, returning true if bytes remain
// buffered (more I/O is still needed to fully flush).
func (w *Writer) TryFlush() (bool, error) {
	for w.buf.Size() > 0 {
		n, ok, err := w.sink.TryWrite(w.buf.Peek())
		if err != nil {
			return true, err
		}
		if !ok {
			return true, nil
		}
		w.buf.Consume(n)
	}
	return false, nil
}
