package reactor

import (
	"errors"
	"sync"

	"github.com/netcore-go/netcore/internal/gid"
)

// registry implements the spec's "thread-local discoverable runtime",
// keyed by goroutine id rather than OS thread id since that's the closest
// analogue Go exposes. Grounded on the teacher's own package-level registry
// pattern for associating a loop with the goroutine driving it.
var (
	registryMu sync.RWMutex
	registry   = make(map[int64]*Runtime)
)

func installRuntime(id int64, rt *Runtime) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[id]; exists {
		return ErrGoroutineBound
	}
	registry[id] = rt
	return nil
}

func uninstallRuntime(id int64) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, id)
}

// Current returns the Runtime bound to the calling goroutine via Run, if
// any.
func Current() (*Runtime, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	rt, ok := registry[gid.Current()]
	return rt, ok
}

// ErrNoCurrentRuntime names the condition of no runtime being bound to the
// calling goroutine. Nothing in this module returns it; Current reports the
// same condition through its bool result.
var ErrNoCurrentRuntime = errors.New("reactor: no runtime bound to the calling goroutine")
