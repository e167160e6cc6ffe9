package flashio

import (
	"log/slog"
	"sync"

	"github.com/hupe1980/flashio/blockfs"
)

// DefaultCapacity is the number of descriptor slots, console slots included.
const DefaultCapacity = 32

type options struct {
	capacity         int
	console          *Console
	logger           *Logger
	metricsCollector MetricsCollector
	locking          bool
	fsLock           sync.Mutex
	compression      blockfs.Compression
	nameMax          uint32
}

// Option configures Format and Mount.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		capacity:         DefaultCapacity,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.console == nil {
		o.console = StdConsole()
	}
	return o
}

// WithCapacity sets the size of the descriptor table. Values below 4 leave no
// room for files and are raised to 4.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = max(n, 4)
	}
}

// WithConsole routes descriptors 0, 1 and 2 to c.
//
// If nil is passed, the process' standard streams are used.
func WithConsole(c *Console) Option {
	return func(o *options) {
		o.console = c
	}
}

// WithLogger sets a custom logger.
//
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithLogLevel enables text logging to stderr at the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(nil, level)
	}
}

// WithMetricsCollector sets a custom metrics collector.
//
// If nil is passed, metrics are discarded.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLocking serializes filesystem operations with a mutex passed to the
// filesystem's lock hooks. Use it when several goroutines share a System.
func WithLocking() Option {
	return func(o *options) {
		o.locking = true
	}
}

// WithCompression compresses the filesystem's directory table.
//
// It only matters for Format and for commits made after Mount; existing
// metadata is read whatever compression it was written with.
func WithCompression(c blockfs.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithNameMax limits the length of path components.
func WithNameMax(n uint32) Option {
	return func(o *options) {
		o.nameMax = n
	}
}
