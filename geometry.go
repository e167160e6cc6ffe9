package flashio

import (
	"github.com/hupe1980/flashio/blockdev"
	"github.com/hupe1980/flashio/blockfs"
)

// Geometry describes the storage region and how the filesystem uses it.
type Geometry struct {
	ReadSize      uint32
	ProgSize      uint32
	BlockSize     uint32
	BlockCount    uint32
	CacheSize     uint32
	LookaheadSize uint32
	// BlockCycles is the erase-cycle budget of the metadata pair before it
	// moves. -1 disables relocation.
	BlockCycles int32
}

// Reference sizing of an RP2040-class part: 4 KiB erase sectors and 256-byte pages.
const (
	PicoSectorSize = 4096
	PicoPageSize   = 256
)

// PicoGeometry returns the reference geometry for a region of regionSize bytes.
func PicoGeometry(regionSize int64) Geometry {
	return Geometry{
		ReadSize:      1,
		ProgSize:      PicoPageSize,
		BlockSize:     PicoSectorSize,
		BlockCount:    uint32(regionSize / PicoSectorSize),
		CacheSize:     PicoPageSize,
		LookaheadSize: 16,
		BlockCycles:   500,
	}
}

// Device returns the physical part of the geometry.
func (g Geometry) Device() blockdev.Geometry {
	return blockdev.Geometry{
		ReadSize:   g.ReadSize,
		ProgSize:   g.ProgSize,
		BlockSize:  g.BlockSize,
		BlockCount: g.BlockCount,
	}
}

// Size returns the number of bytes the filesystem occupies.
func (g Geometry) Size() int64 {
	return int64(g.BlockSize) * int64(g.BlockCount)
}

func (g Geometry) config(dev blockdev.Device, o *options) blockfs.Config {
	cfg := blockfs.Config{
		Device:        dev,
		ReadSize:      g.ReadSize,
		ProgSize:      g.ProgSize,
		BlockSize:     g.BlockSize,
		BlockCount:    g.BlockCount,
		CacheSize:     g.CacheSize,
		LookaheadSize: g.LookaheadSize,
		BlockCycles:   g.BlockCycles,
		NameMax:       o.nameMax,
		Compression:   o.compression,
	}
	if o.locking {
		cfg.Lock = o.fsLock.Lock
		cfg.Unlock = o.fsLock.Unlock
	}
	return cfg
}

// Validate checks the geometry against the filesystem's constraints.
func (g Geometry) Validate() error {
	cfg := g.config(nopDevice{}, &options{})
	return cfg.Validate()
}

// nopDevice stands in for a device when only the geometry is checked.
type nopDevice struct{}

func (nopDevice) Read(uint32, uint32, []byte) error    { return nil }
func (nopDevice) Program(uint32, uint32, []byte) error { return nil }
func (nopDevice) Erase(uint32) error                   { return nil }
func (nopDevice) Sync() error                          { return nil }
