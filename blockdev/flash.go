package blockdev

import "fmt"

// Controller is the hardware program/erase pair of a flash chip.
//
// Addresses are byte offsets into the flash address space. ProgramPage is
// called with page-aligned ranges and EraseSector with sector-aligned addresses
// when the geometry matches the chip.
type Controller interface {
	ProgramPage(addr uint32, p []byte) error
	EraseSector(addr uint32) error
}

// FlashDevice is a Device over real flash.
//
// Reads are served from alias, a read-only view of the flash address space.
// Program and erase go through the controller with interrupts masked for
// exactly the duration of the controller call.
type FlashDevice struct {
	geom  Geometry
	base  uint32
	alias []byte
	ctrl  Controller
	irq   Interrupts
}

// NewFlashDevice creates a device over the region [base, base+geom.Size()) of
// the flash address space aliased by alias.
func NewFlashDevice(geom Geometry, base uint32, alias []byte, ctrl Controller, irq Interrupts) (*FlashDevice, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if ctrl == nil {
		return nil, fmt.Errorf("blockdev: nil flash controller")
	}
	if irq == nil {
		irq = NewCriticalSection()
	}
	if err := geom.Fits(int64(len(alias)) - int64(base)); err != nil {
		return nil, err
	}
	return &FlashDevice{
		geom:  geom,
		base:  base,
		alias: alias,
		ctrl:  ctrl,
		irq:   irq,
	}, nil
}

// Geometry returns the device geometry.
func (d *FlashDevice) Geometry() Geometry { return d.geom }

// Base returns the offset of the region within the flash address space.
func (d *FlashDevice) Base() uint32 { return d.base }

func (d *FlashDevice) Read(block, off uint32, p []byte) error {
	d.geom.checkBounds("read", block, off, len(p))
	a := d.base + d.geom.addr(block, off)
	copy(p, d.alias[a:a+uint32(len(p))])
	return nil
}

func (d *FlashDevice) Program(block, off uint32, p []byte) error {
	d.geom.checkBounds("program", block, off, len(p))
	a := d.base + d.geom.addr(block, off)
	return d.guarded(func() error { return d.ctrl.ProgramPage(a, p) })
}

func (d *FlashDevice) Erase(block uint32) error {
	d.geom.checkBounds("erase", block, 0, 0)
	a := d.base + d.geom.addr(block, 0)
	return d.guarded(func() error { return d.ctrl.EraseSector(a) })
}

// Sync is a no-op; the controller completes every call before returning.
func (d *FlashDevice) Sync() error { return nil }

// guarded runs fn with interrupts masked and restores them on every path.
func (d *FlashDevice) guarded(fn func() error) error {
	state := d.irq.Disable()
	defer d.irq.Restore(state)
	return fn()
}
