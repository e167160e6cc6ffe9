package blockdev

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/flashio/internal/fs"
	"github.com/hupe1980/flashio/internal/mmap"
)

// ErrUnaligned is returned by ImageFlash for program or erase calls that do not
// respect the page or sector size.
var ErrUnaligned = errors.New("blockdev: unaligned flash access")

// ImageFlash is a Controller over a flash image file.
//
// It behaves like NOR flash: programming can only clear bits, so each written
// byte is ANDed with the current cell content, and erasing a sector sets every
// byte back to ErasedByte.
type ImageFlash struct {
	f          fs.File
	size       int64
	pageSize   uint32
	sectorSize uint32
}

// NewImageFlash wraps an open image file of size bytes.
func NewImageFlash(f fs.File, size int64, pageSize, sectorSize uint32) *ImageFlash {
	return &ImageFlash{f: f, size: size, pageSize: pageSize, sectorSize: sectorSize}
}

func (c *ImageFlash) ProgramPage(addr uint32, p []byte) error {
	if addr%c.pageSize != 0 || uint32(len(p))%c.pageSize != 0 {
		return fmt.Errorf("%w: program %d bytes at %#x (page %d)", ErrUnaligned, len(p), addr, c.pageSize)
	}
	if int64(addr)+int64(len(p)) > c.size {
		return fmt.Errorf("blockdev: program past end of image at %#x", addr)
	}

	cells := make([]byte, len(p))
	if _, err := c.f.ReadAt(cells, int64(addr)); err != nil {
		return fmt.Errorf("blockdev: read image at %#x: %w", addr, err)
	}
	for i := range cells {
		cells[i] &= p[i]
	}
	if _, err := c.f.WriteAt(cells, int64(addr)); err != nil {
		return fmt.Errorf("blockdev: program image at %#x: %w", addr, err)
	}
	return nil
}

func (c *ImageFlash) EraseSector(addr uint32) error {
	if addr%c.sectorSize != 0 {
		return fmt.Errorf("%w: erase at %#x (sector %d)", ErrUnaligned, addr, c.sectorSize)
	}
	if int64(addr)+int64(c.sectorSize) > c.size {
		return fmt.Errorf("blockdev: erase past end of image at %#x", addr)
	}
	if _, err := c.f.WriteAt(bytes.Repeat([]byte{ErasedByte}, int(c.sectorSize)), int64(addr)); err != nil {
		return fmt.Errorf("blockdev: erase image at %#x: %w", addr, err)
	}
	return nil
}

// Image is a FlashDevice backed by a flash image file on the host.
type Image struct {
	*FlashDevice

	file    fs.File
	mapping *mmap.Mapping
}

type imageOptions struct {
	fs   fs.FileSystem
	irq  Interrupts
	base uint32
}

// ImageOption configures OpenImage.
type ImageOption func(*imageOptions)

// WithFileSystem opens the image through fsys instead of the local filesystem.
func WithFileSystem(fsys fs.FileSystem) ImageOption {
	return func(o *imageOptions) { o.fs = fsys }
}

// WithInterrupts sets the interrupt guard used around program and erase.
func WithInterrupts(irq Interrupts) ImageOption {
	return func(o *imageOptions) { o.irq = irq }
}

// WithBase places the region at base within the image, leaving the bytes
// before it untouched (for example a firmware partition).
func WithBase(base uint32) ImageOption {
	return func(o *imageOptions) { o.base = base }
}

// OpenImage opens or creates the flash image at path. The file is extended with
// erased bytes until it covers base+geom.Size().
func OpenImage(path string, geom Geometry, opts ...ImageOption) (*Image, error) {
	o := imageOptions{fs: fs.Default}
	for _, opt := range opts {
		opt(&o)
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if o.base%geom.BlockSize != 0 {
		return nil, fmt.Errorf("%w: base %#x not sector aligned", ErrUnaligned, o.base)
	}

	f, err := o.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	size := int64(o.base) + geom.Size()
	if err := extendErased(f, size); err != nil {
		_ = f.Close()
		return nil, err
	}

	m, err := mmap.Map(f, int(size))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("blockdev: map image: %w", err)
	}
	if r, err := m.Region(int(o.base), int(geom.Size())); err == nil {
		_ = r.Advise(mmap.AccessRandom)
	}

	ctrl := NewImageFlash(f, size, geom.ProgSize, geom.BlockSize)
	dev, err := NewFlashDevice(geom, o.base, m.Bytes(), ctrl, o.irq)
	if err != nil {
		_ = m.Close()
		_ = f.Close()
		return nil, err
	}

	return &Image{FlashDevice: dev, file: f, mapping: m}, nil
}

// extendErased grows f to size bytes, filling the new tail with ErasedByte.
func extendErased(f fs.File, size int64) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	cur := fi.Size()
	if cur >= size {
		return nil
	}

	chunk := bytes.Repeat([]byte{ErasedByte}, 64*1024)
	for off := cur; off < size; {
		n := min(int64(len(chunk)), size-off)
		if _, err := f.WriteAt(chunk[:n], off); err != nil {
			return fmt.Errorf("blockdev: extend image: %w", err)
		}
		off += n
	}
	return f.Sync()
}

// Sync flushes the image file to stable storage.
func (img *Image) Sync() error {
	return img.file.Sync()
}

// Close unmaps and closes the image file.
func (img *Image) Close() error {
	return errors.Join(img.mapping.Close(), img.file.Close())
}
