// Package ioready holds the small platform-error helpers shared by the
// descriptor primitives (timerfd, eventfd, signalfd; socket and procfd do
// their own checks): recognizing "would block" from a raw syscall, and
// encoding/decoding the
// little-endian 64-bit counters that timerfd/eventfd read and write.
package ioready

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// WouldBlock reports whether err is the "try again" signal from a
// non-blocking syscall (EAGAIN, or EWOULDBLOCK where distinct).
func WouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// InProgress reports whether err is EINPROGRESS, the non-blocking connect()
// "in flight" signal.
func InProgress(err error) bool {
	return err == unix.EINPROGRESS
}

// DecodeUint64 reads a little-endian uint64 counter, the wire format used
// by both timerfd and eventfd reads.
func DecodeUint64(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

// EncodeUint64 writes v as a little-endian uint64 into an 8-byte buffer,
// the wire format eventfd writes expect.
func EncodeUint64(v uint64) [8]byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf
}
