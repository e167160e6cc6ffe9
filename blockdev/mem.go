package blockdev

// MemDevice is a Device backed by a heap buffer.
//
// It is a first-class backend, not a stub: it enforces the same bounds as
// FlashDevice and starts out fully erased.
type MemDevice struct {
	geom Geometry
	mem  []byte
}

// NewMemDevice allocates an erased in-memory device.
func NewMemDevice(geom Geometry) (*MemDevice, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	d := &MemDevice{
		geom: geom,
		mem:  make([]byte, geom.Size()),
	}
	for i := range d.mem {
		d.mem[i] = ErasedByte
	}
	return d, nil
}

// Geometry returns the device geometry.
func (d *MemDevice) Geometry() Geometry { return d.geom }

// Bytes exposes the backing buffer. Callers must not modify it.
func (d *MemDevice) Bytes() []byte { return d.mem }

func (d *MemDevice) Read(block, off uint32, p []byte) error {
	d.geom.checkBounds("read", block, off, len(p))
	a := d.geom.addr(block, off)
	copy(p, d.mem[a:a+uint32(len(p))])
	return nil
}

func (d *MemDevice) Program(block, off uint32, p []byte) error {
	d.geom.checkBounds("program", block, off, len(p))
	a := d.geom.addr(block, off)
	copy(d.mem[a:a+uint32(len(p))], p)
	return nil
}

func (d *MemDevice) Erase(block uint32) error {
	d.geom.checkBounds("erase", block, 0, 0)
	a := d.geom.addr(block, 0)
	blk := d.mem[a : a+d.geom.BlockSize]
	for i := range blk {
		blk[i] = ErasedByte
	}
	return nil
}

// Sync is a no-op; writes take effect immediately.
func (d *MemDevice) Sync() error { return nil }
