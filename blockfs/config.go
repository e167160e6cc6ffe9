package blockfs

import (
	"fmt"
	"math"

	"github.com/hupe1980/flashio/blockdev"
	"github.com/hupe1980/flashio/internal/compress"
)

// Compression selects how the directory table is stored.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// MaxPathLen is the longest full path the directory table can hold.
const MaxPathLen = math.MaxUint16

// DefaultNameMax is the longest path component accepted when Config.NameMax is 0.
const DefaultNameMax = 255

// Config describes the device and its geometry.
type Config struct {
	// Device is the block device the filesystem lives on.
	Device blockdev.Device

	// ReadSize is the minimum read size. All reads are a multiple of it.
	ReadSize uint32
	// ProgSize is the minimum program size. All programs are a multiple of it.
	ProgSize uint32
	// BlockSize is the erase block size.
	BlockSize uint32
	// BlockCount is the number of erase blocks.
	BlockCount uint32
	// CacheSize bounds the size of a single device read or program.
	CacheSize uint32
	// LookaheadSize is the size of the allocator window in bytes; each byte
	// covers eight blocks.
	LookaheadSize uint32
	// BlockCycles is the number of metadata commits before the metadata pair
	// is moved to other blocks. -1 disables relocation.
	BlockCycles int32

	// NameMax limits the length of a path component. 0 means DefaultNameMax.
	NameMax uint32

	// Lock and Unlock, when both set, are called around every operation.
	Lock   func()
	Unlock func()

	// Compression is applied to the directory table on commit.
	Compression Compression
}

// Validate checks the geometry for consistency.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInval}, args...)...)
	}
	switch {
	case c.Device == nil:
		return bad("nil device")
	case c.ReadSize == 0 || c.ProgSize == 0 || c.BlockSize == 0 || c.CacheSize == 0:
		return bad("sizes must be positive")
	case c.CacheSize%c.ReadSize != 0 || c.CacheSize%c.ProgSize != 0:
		return bad("cache size %d must be a multiple of read size %d and program size %d", c.CacheSize, c.ReadSize, c.ProgSize)
	case c.BlockSize%c.CacheSize != 0:
		return bad("block size %d must be a multiple of cache size %d", c.BlockSize, c.CacheSize)
	case c.LookaheadSize == 0 || c.LookaheadSize%8 != 0:
		return bad("lookahead size %d must be a positive multiple of 8", c.LookaheadSize)
	case c.BlockCount < minBlocks:
		return bad("block count %d below minimum %d", c.BlockCount, minBlocks)
	case c.BlockCycles == 0 || c.BlockCycles < -1:
		return bad("block cycles must be -1 or positive, got %d", c.BlockCycles)
	case c.BlockSize < superblockSize || c.BlockSize < metaHeaderSize+64:
		return bad("block size %d too small", c.BlockSize)
	case (c.Lock == nil) != (c.Unlock == nil):
		return bad("lock and unlock hooks must be set together")
	}
	return nil
}

func (c *Config) nameMax() int {
	if c.NameMax == 0 {
		return DefaultNameMax
	}
	return int(c.NameMax)
}
