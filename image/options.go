package image

import (
	"log/slog"
	"time"

	"github.com/hupe1980/flashio/codec"
	"github.com/hupe1980/flashio/internal/compress"
	"github.com/hupe1980/flashio/resource"
)

// DefaultChunkBlocks is the number of blocks per chunk.
const DefaultChunkBlocks = 16

type options struct {
	chunkBlocks uint32
	compression compress.Type
	controller  *resource.Controller
	codec       codec.Codec
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures Snapshot and Restore.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		chunkBlocks: DefaultChunkBlocks,
		compression: compress.ZSTD,
		codec:       codec.Default,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithChunkBlocks sets how many blocks go into one chunk blob.
func WithChunkBlocks(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkBlocks = n
		}
	}
}

// WithCompression selects the chunk compression. The default is zstd.
func WithCompression(t compress.Type) Option {
	return func(o *options) {
		o.compression = t
	}
}

// WithController bounds parallelism, memory and throughput. Without one,
// chunks are processed one at a time.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithCodec sets the manifest codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
