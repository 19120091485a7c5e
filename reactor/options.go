package reactor

import "github.com/netcore-go/netcore/internal/logadapt"

// Option configures a Runtime at construction. Grounded on the teacher's
// functional-options pattern (eventloop/options.go's LoopOption), adapted
// from that file's unexported-adapter-struct idiom to a plain closure since
// reactor has no need for the teacher's additional apply-order bookkeeping.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	maxEvents int
	logger    logadapt.Logger
}

func defaultConfig() *runtimeConfig {
	return &runtimeConfig{
		maxEvents: 128,
		logger:    logadapt.Noop,
	}
}

// WithMaxEvents bounds the size of the epoll_wait readiness batch. Values
// less than 1 are ignored.
func WithMaxEvents(n int) Option {
	return func(c *runtimeConfig) {
		if n > 0 {
			c.maxEvents = n
		}
	}
}

// WithLogger installs the Logger used for diagnostic output (spawned-task
// panics). Defaults to a no-op logger.
func WithLogger(l logadapt.Logger) Option {
	return func(c *runtimeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func resolveOptions(opts []Option) *runtimeConfig {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}
