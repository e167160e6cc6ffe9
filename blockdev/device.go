package blockdev

import (
	"errors"
	"fmt"
)

// ErasedByte is the value every byte of a block holds after Erase.
const ErasedByte = 0xFF

// Device is the block device contract consumed by the filesystem layer.
type Device interface {
	// Read copies len(p) bytes starting at off within block into p.
	Read(block, off uint32, p []byte) error
	// Program writes p at off within block. The target range must have been
	// erased; devices do not check this.
	Program(block, off uint32, p []byte) error
	// Erase resets every byte of block to ErasedByte.
	Erase(block uint32) error
	// Sync flushes pending writes.
	Sync() error
}

// Geometry describes the physical layout of a device.
type Geometry struct {
	// ReadSize is the minimum read granularity in bytes.
	ReadSize uint32
	// ProgSize is the program granularity in bytes (flash page size).
	ProgSize uint32
	// BlockSize is the erase granularity in bytes (flash sector size).
	BlockSize uint32
	// BlockCount is the number of blocks in the region.
	BlockCount uint32
}

var (
	// ErrInvalidGeometry is returned when a geometry is inconsistent.
	ErrInvalidGeometry = errors.New("blockdev: invalid geometry")
	// ErrRegionTooSmall is returned when a geometry does not fit its backing region.
	ErrRegionTooSmall = errors.New("blockdev: region too small for geometry")
)

// Validate checks that the geometry is self-consistent.
func (g Geometry) Validate() error {
	switch {
	case g.ReadSize == 0 || g.ProgSize == 0 || g.BlockSize == 0 || g.BlockCount == 0:
		return fmt.Errorf("%w: sizes must be positive (%+v)", ErrInvalidGeometry, g)
	case g.BlockSize%g.ReadSize != 0:
		return fmt.Errorf("%w: block size %d not a multiple of read size %d", ErrInvalidGeometry, g.BlockSize, g.ReadSize)
	case g.BlockSize%g.ProgSize != 0:
		return fmt.Errorf("%w: block size %d not a multiple of program size %d", ErrInvalidGeometry, g.BlockSize, g.ProgSize)
	}
	return nil
}

// Size returns the number of bytes covered by the geometry.
func (g Geometry) Size() int64 {
	return int64(g.BlockSize) * int64(g.BlockCount)
}

// Fits reports an error if the geometry does not fit into a region of size bytes.
func (g Geometry) Fits(size int64) error {
	if g.Size() > size {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrRegionTooSmall, g.Size(), size)
	}
	return nil
}

// BoundsError is the panic value for out-of-range device accesses.
type BoundsError struct {
	Op     string
	Block  uint32
	Off    uint32
	Len    int
	Blocks uint32
	Size   uint32
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("blockdev: %s out of bounds: block %d off %d len %d (blocks %d, block size %d)",
		e.Op, e.Block, e.Off, e.Len, e.Blocks, e.Size)
}

// checkBounds panics if the access does not lie inside a single block.
func (g Geometry) checkBounds(op string, block, off uint32, n int) {
	if block >= g.BlockCount || uint64(off)+uint64(n) > uint64(g.BlockSize) {
		panic(&BoundsError{Op: op, Block: block, Off: off, Len: n, Blocks: g.BlockCount, Size: g.BlockSize})
	}
}

// addr returns the byte address of off within block, relative to the region start.
func (g Geometry) addr(block, off uint32) uint32 {
	return block*g.BlockSize + off
}
