package blockfs

import (
	"io"
	"math"
)

// MaxFileSize is the largest file size supported.
const MaxFileSize = math.MaxInt32

// File is an open file. Handles of the same path share one block-sized
// write-back buffer.
type File struct {
	fs     *FS
	n      *node
	flags  int
	pos    int64
	closed bool
}

// OpenFile opens name with flags built from ORdOnly, OWrOnly or ORdWr and the
// optional OCreat, OExcl, OTrunc and OAppend bits.
func (fs *FS) OpenFile(name string, flags int) (*File, error) {
	defer fs.locked()()
	if !fs.mounted {
		return nil, ErrInval
	}
	if flags&^oKnown != 0 || flags&oAccess == 0 {
		return nil, ErrInval
	}
	if flags&OTrunc != 0 && !writable(flags) {
		return nil, ErrInval
	}
	p, err := fs.clean(name)
	if err != nil {
		return nil, err
	}
	if p == "" {
		return nil, ErrIsDir
	}

	n := fs.nodes[p]
	switch {
	case n == nil && flags&OCreat == 0:
		return nil, ErrNoEnt
	case n == nil:
		if err := fs.checkParent(p); err != nil {
			return nil, err
		}
		n = &node{path: p}
		fs.nodes[p] = n
		if err := fs.commit(); err != nil {
			delete(fs.nodes, p)
			return nil, err
		}
	case flags&OCreat != 0 && flags&OExcl != 0:
		return nil, ErrExist
	case n.dir:
		return nil, ErrIsDir
	}

	if n.refs == 0 {
		n.buf = make([]byte, fs.cfg.BlockSize)
		n.bufIdx = -1
	}
	n.refs++
	f := &File{fs: fs, n: n, flags: flags}
	if flags&OTrunc != 0 && n.size > 0 {
		f.truncate(0)
	}
	return f, nil
}

// Name returns the path of the file relative to the root.
func (f *File) Name() string { return f.n.path }

// Size returns the current size of the file, unsynced writes included.
func (f *File) Size() int64 {
	defer f.fs.locked()()
	return f.n.size
}

// Read reads up to len(p) bytes from the current position. At end of file it
// returns 0, io.EOF.
func (f *File) Read(p []byte) (int, error) {
	defer f.fs.locked()()
	if f.closed || !readable(f.flags) {
		return 0, ErrBadF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.pos >= f.n.size {
		return 0, io.EOF
	}

	bs := int64(f.fs.cfg.BlockSize)
	total := 0
	for len(p) > 0 && f.pos < f.n.size {
		idx, off := f.pos/bs, f.pos%bs
		if err := f.load(idx); err != nil {
			return total, err
		}
		end := min(bs, f.n.size-idx*bs)
		k := copy(p, f.n.buf[off:end])
		p = p[k:]
		f.pos += int64(k)
		total += k
	}
	return total, nil
}

// Write writes p at the current position, or at the end of file when the file
// was opened with OAppend. Writing past the end fills the gap with zeros.
func (f *File) Write(p []byte) (int, error) {
	defer f.fs.locked()()
	if f.closed || !writable(f.flags) {
		return 0, ErrBadF
	}
	if f.flags&OAppend != 0 {
		f.pos = f.n.size
	}
	if f.pos+int64(len(p)) > MaxFileSize {
		return 0, ErrFBig
	}

	bs := int64(f.fs.cfg.BlockSize)
	total := 0
	for len(p) > 0 {
		idx, off := f.pos/bs, f.pos%bs
		if err := f.load(idx); err != nil {
			return total, err
		}
		k := copy(f.n.buf[off:], p)
		f.n.bufDirty = true
		f.n.dirty = true
		p = p[k:]
		f.pos += int64(k)
		total += k
		if f.pos > f.n.size {
			f.resize(f.pos)
		}
	}
	return total, nil
}

// Seek sets the position for the next Read or Write.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	defer f.fs.locked()()
	if f.closed {
		return 0, ErrBadF
	}
	var base int64
	switch whence {
	case SeekSet:
	case SeekCur:
		base = f.pos
	case SeekEnd:
		base = f.n.size
	default:
		return 0, ErrInval
	}
	pos := base + offset
	if pos < 0 || pos > MaxFileSize {
		return 0, ErrInval
	}
	f.pos = pos
	return pos, nil
}

// Tell returns the current position.
func (f *File) Tell() int64 { return f.pos }

// Truncate changes the size of the file.
func (f *File) Truncate(size int64) error {
	defer f.fs.locked()()
	if f.closed || !writable(f.flags) {
		return ErrBadF
	}
	if size < 0 || size > MaxFileSize {
		return ErrInval
	}
	return f.truncate(size)
}

// Sync writes buffered data and commits the file's metadata, including
// changes made through other handles of the same path.
func (f *File) Sync() error {
	defer f.fs.locked()()
	if f.closed {
		return ErrBadF
	}
	return f.sync()
}

// Close syncs and releases the file. The handle is released even when the
// sync fails.
func (f *File) Close() error {
	defer f.fs.locked()()
	if f.closed {
		return ErrBadF
	}
	err := f.sync()

	f.closed = true
	f.n.refs--
	if f.n.refs == 0 {
		f.n.buf, f.n.bufIdx, f.n.bufDirty = nil, -1, false
		if f.n.removed {
			f.fs.freeBlocks(f.n.blocks)
			f.n.blocks = nil
		}
	}
	return err
}

func (f *File) sync() error {
	if err := f.flush(); err != nil {
		return err
	}
	if !f.n.dirty {
		return nil
	}
	if !f.n.removed {
		if err := f.fs.commit(); err != nil {
			return err
		}
	}
	f.n.dirty = false
	return f.fs.dev.Sync()
}

// load makes block idx of the file the buffered block.
func (f *File) load(idx int64) error {
	n := f.n
	if n.bufIdx == idx {
		return nil
	}
	if err := f.flush(); err != nil {
		return err
	}

	n.bufIdx = -1
	if idx < int64(len(n.blocks)) && n.blocks[idx] != noBlock {
		if err := f.fs.read(n.blocks[idx], 0, n.buf); err != nil {
			return err
		}
	} else {
		clear(n.buf)
	}
	n.bufIdx = idx
	f.zeroTail()
	return nil
}

// zeroTail clears buffered bytes past the end of file.
func (f *File) zeroTail() {
	n := f.n
	bs := int64(f.fs.cfg.BlockSize)
	valid := n.size - n.bufIdx*bs
	if n.bufIdx >= 0 && valid < bs {
		clear(n.buf[max(valid, 0):])
	}
}

// flush writes the buffered block to a fresh block and retires the old one.
// The whole block is programmed so bytes past the end of file read as zeros
// once the file grows over them.
func (f *File) flush() error {
	n := f.n
	if !n.bufDirty {
		return nil
	}
	idx := n.bufIdx
	if idx >= int64(len(n.blocks)) {
		n.bufDirty = false
		return nil
	}

	b, err := f.fs.alloc.alloc()
	if err != nil {
		return err
	}
	if err := f.fs.erase(b); err != nil {
		f.fs.alloc.drop(b)
		return err
	}
	if err := f.fs.prog(b, n.buf); err != nil {
		f.fs.alloc.drop(b)
		return err
	}

	f.fs.alloc.free(n.blocks[idx])
	n.blocks[idx] = b
	n.bufDirty = false
	return nil
}

// resize sets the file size and adjusts the block list to cover it.
func (f *File) resize(size int64) {
	n := f.n
	want := blocksFor(size, f.fs.cfg.BlockSize)
	for int64(len(n.blocks)) < want {
		n.blocks = append(n.blocks, noBlock)
	}
	if int64(len(n.blocks)) > want {
		f.fs.freeBlocks(n.blocks[want:])
		n.blocks = n.blocks[:want:want]
	}
	n.size = size
}

func (f *File) truncate(size int64) error {
	n := f.n
	if size == n.size {
		return nil
	}
	bs := int64(f.fs.cfg.BlockSize)
	shrink := size < n.size
	f.resize(size)
	n.dirty = true

	if n.bufIdx >= int64(len(n.blocks)) {
		n.bufIdx, n.bufDirty = -1, false
	}
	if !shrink || size%bs == 0 {
		f.zeroTail()
		return nil
	}

	// The last block keeps stale bytes past the new end on flash. Rewrite it
	// so a later extension reads zeros there.
	if err := f.load(size / bs); err != nil {
		return err
	}
	f.zeroTail()
	n.bufDirty = true
	return nil
}
