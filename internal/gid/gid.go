// Package gid extracts the calling goroutine's numeric id, the same
// runtime.Stack-parsing technique documented by the zero-dependency
// sibling module this package is modeled on. It exists for exactly one
// purpose in netcore-go: keying reactor's registry by the goroutine that
// called Runtime.Run, so reactor.Current can find that Runtime and a second
// Run on the same goroutine is rejected.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns the id of the calling goroutine.
//
// This parses the header line of runtime.Stack, which is the only portable
// way to obtain a goroutine id without linkname tricks. It is not cheap;
// callers on a hot path should cache the result (reactor does, once, in
// Runtime.Run).
func Current() int64 {
	buf := make([]byte, 64)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	// Header looks like: "goroutine 123 [running]:"
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return -1
	}
	rest := buf[len(prefix):]
	sp := bytes.IndexByte(rest, ' ')
	if sp < 0 {
		return -1
	}
	id, err := strconv.ParseInt(string(rest[:sp]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
