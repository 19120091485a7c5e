// Package pool implements the bounded, reusable-item cache described for
// connection pooling: checkout first drains the cache (subject to a
// checkout predicate), falls back to constructing a new item while under
// capacity, and suspends the caller on an internal FIFO once capacity is
// exhausted until a checkin hands an item back directly.
package pool

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joeycumines/go-catrate"

	"github.com/netcore-go/netcore/internal/logadapt"
	"github.com/netcore-go/netcore/reactor"
)

// Option configures a Pool at construction, following the same closure
// idiom as reactor.Option.
type Option[T any] func(*config[T])

type config[T any] struct {
	maxSize  int
	maxIdle  time.Duration
	provide  func() (T, error)
	checkin  func(T) bool
	checkout func(T) bool
	logger   logadapt.Logger
	evictLim *catrate.Limiter
}

// WithMaxIdle sets how long a cached item may sit unused before eviction
// becomes eligible. Zero (the default) disables idle eviction.
func WithMaxIdle[T any](d time.Duration) Option[T] {
	return func(c *config[T]) { c.maxIdle = d }
}

// WithCheckout installs the predicate applied to a cached item before it is
// handed to a caller; a false result discards the item and tries again.
func WithCheckout[T any](f func(T) bool) Option[T] {
	return func(c *config[T]) { c.checkout = f }
}

// WithCheckin installs the predicate applied to a returned item before it
// is pushed back into the cache; a false result discards it instead.
func WithCheckin[T any](f func(T) bool) Option[T] {
	return func(c *config[T]) { c.checkin = f }
}

// WithLogger installs the Logger used for eviction diagnostics.
func WithLogger[T any](l logadapt.Logger) Option[T] {
	return func(c *config[T]) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEvictionRateLimit throttles idle eviction to at most limit items per
// window, using github.com/joeycumines/go-catrate's sliding-window limiter.
// Without this option, eviction sweeps are unthrottled.
func WithEvictionRateLimit[T any](window time.Duration, limit int) Option[T] {
	return func(c *config[T]) {
		c.evictLim = catrate.NewLimiter(map[time.Duration]int{window: limit})
	}
}

type entry[T any] struct {
	value     T
	idleSince time.Time
}

// Pool is a bounded cache of reusable items of type T.
type Pool[T any] struct {
	rt      *reactor.Runtime
	provide func() (T, error)
	checkin func(T) bool
	check   func(T) bool
	logger  logadapt.Logger

	sem *semaphore.Weighted

	mu      sync.Mutex
	cache   []entry[T]
	waiters reactor.WaiterQueue
	closed  bool

	evictLim *catrate.Limiter
}

// New creates a Pool bounded at maxSize live items (checked-out + cached),
// using provide to construct new items. checkout/checkin default to
// always-accept when not supplied via Option.
func New[T any](rt *reactor.Runtime, maxSize int, provide func() (T, error), opts ...Option[T]) *Pool[T] {
	cfg := &config[T]{
		maxSize:  maxSize,
		provide:  provide,
		checkin:  func(T) bool { return true },
		checkout: func(T) bool { return true },
		logger:   rt.Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	p := &Pool[T]{
		rt:       rt,
		provide:  cfg.provide,
		checkin:  cfg.checkin,
		check:    cfg.checkout,
		logger:   cfg.logger,
		sem:      semaphore.NewWeighted(int64(maxSize)),
		evictLim: cfg.evictLim,
	}
	if cfg.maxIdle > 0 {
		rt.Spawn(func(rt *reactor.Runtime) { p.evictLoop(cfg.maxIdle) })
	}
	return p
}

// Handle is a checked-out item. Call Release exactly once to return it to
// the pool (subject to the checkin predicate) or discard it.
type Handle[T any] struct {
	p        *Pool[T]
	value    T
	released bool
}

// Value returns the held item.
func (h *Handle[T]) Value() T { return h.value }

// Release runs the pool's checkin predicate against the held item: true
// pushes it back into the cache (or hands it directly to the oldest
// capacity waiter, if any); false discards it and frees its capacity slot.
// Idempotent.
func (h *Handle[T]) Release() {
	if h.released {
		return
	}
	h.released = true
	h.p.checkinItem(h.value)
}

// handoff is what a capacity waiter's Waiter resolves to: either a recycled
// item ready to use directly (Ok), or a signal that a slot merely became
// free (e.g. a checked-in item failed the checkin predicate) and the waiter
// must retry acquisition from the top.
type handoff[T any] struct {
	ok    bool
	value T
}

// Checkout acquires an item: first draining the cache (subject to the
// checkout predicate, discarding rejects), then constructing a new item
// while under capacity, and finally suspending on the pool's internal FIFO
// until a checkin frees or hands back a slot.
func (p *Pool[T]) Checkout() (*Handle[T], error) {
	for {
		p.mu.Lock()
		for len(p.cache) > 0 {
			last := len(p.cache) - 1
			item := p.cache[last].value
			p.cache = p.cache[:last]
			if p.check(item) {
				p.mu.Unlock()
				return &Handle[T]{p: p, value: item}, nil
			}
			// Rejected: the slot is freed, not reused.
			p.sem.Release(1)
		}
		p.mu.Unlock()

		if p.sem.TryAcquire(1) {
			v, err := p.provide()
			if err != nil {
				p.sem.Release(1)
				return nil, err
			}
			return &Handle[T]{p: p, value: v}, nil
		}

		// At capacity with nothing cached: wait for a direct handoff from
		// the next Release, exactly as asyncsync.Mutex hands off to the
		// next FIFO waiter rather than reopening the race.
		w := p.rt.NewWaiter()
		p.mu.Lock()
		p.waiters.Push(w)
		p.mu.Unlock()

		v, err := w.Wait()
		if err != nil {
			return nil, err
		}
		h := v.(handoff[T])
		if h.ok {
			return &Handle[T]{p: p, value: h.value}, nil
		}
		// A slot merely freed up (the checked-in item was rejected by
		// checkin); retry acquisition, which will now win the semaphore.
	}
}

func (p *Pool[T]) checkinItem(value T) {
	accept := p.checkin(value)

	p.mu.Lock()
	w, hasWaiter := p.waiters.Pop()
	if !hasWaiter && accept {
		p.cache = append(p.cache, entry[T]{value: value, idleSince: time.Now()})
	}
	p.mu.Unlock()

	switch {
	case hasWaiter && accept:
		p.rt.Schedule(w, handoff[T]{ok: true, value: value})
	case hasWaiter && !accept:
		p.sem.Release(1)
		p.rt.Schedule(w, handoff[T]{ok: false})
	case !hasWaiter && !accept:
		p.sem.Release(1)
	}
}

// Len reports the number of items currently cached (not checked out).
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

func (p *Pool[T]) evictLoop(maxIdle time.Duration) {
	interval := maxIdle / 2
	if interval <= 0 {
		interval = time.Second
	}
	for {
		select {
		case <-time.After(interval):
		}
		p.evictOnce(maxIdle)
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}
	}
}

func (p *Pool[T]) evictOnce(maxIdle time.Duration) {
	now := time.Now()
	p.mu.Lock()
	kept := p.cache[:0]
	evicted := 0
	for _, e := range p.cache {
		if now.Sub(e.idleSince) >= maxIdle {
			if p.evictLim != nil {
				if _, allowed := p.evictLim.Allow("evict"); !allowed {
					kept = append(kept, e)
					continue
				}
			}
			evicted++
			continue
		}
		kept = append(kept, e)
	}
	p.cache = kept
	p.mu.Unlock()
	for i := 0; i < evicted; i++ {
		p.sem.Release(1)
	}
	if evicted > 0 {
		p.logger.Debug().Int("evicted", evicted).Log("pool: evicted idle items")
	}
}

// Close stops idle eviction. Items already checked out remain valid;
// cached items are left as-is (the pool does not assume T is closeable).
func (p *Pool[T]) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
