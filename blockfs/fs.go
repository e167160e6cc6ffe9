package blockfs

import (
	"bytes"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/flashio/blockdev"
)

// node is a directory table entry shared by every open handle of a path.
//
// Open handles share one write-back buffer so they all see the same bytes.
// Buffered bytes past the end of file are always zero.
type node struct {
	path   string
	dir    bool
	size   int64
	blocks []uint32

	refs    int
	removed bool

	buf      []byte
	bufIdx   int64
	bufDirty bool
	dirty    bool
}

// Info describes a file or directory.
type Info struct {
	Name string
	Dir  bool
	Size int64
}

// Usage reports block consumption.
type Usage struct {
	BlockSize  uint32
	BlockCount uint32
	UsedBlocks uint32
}

// FreeBytes returns the number of bytes in unused blocks.
func (u Usage) FreeBytes() int64 {
	return int64(u.BlockCount-u.UsedBlocks) * int64(u.BlockSize)
}

// FS is a mounted filesystem.
type FS struct {
	cfg   Config
	dev   blockdev.Device
	alloc *allocator

	nodes   map[string]*node
	super   superblock
	metaRev uint32
	mounted bool
}

func newFS(cfg Config) *FS {
	return &FS{
		cfg:   cfg,
		dev:   cfg.Device,
		alloc: newAllocator(cfg.BlockCount, cfg.LookaheadSize*8),
		nodes: make(map[string]*node),
	}
}

// Format writes an empty filesystem to the device, destroying its contents.
func Format(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	fs := newFS(cfg)
	defer fs.locked()()

	for b := uint32(0); b < minBlocks; b++ {
		if err := fs.erase(b); err != nil {
			return err
		}
		fs.alloc.claim(b)
	}

	fs.super = superblock{
		blockSize:  cfg.BlockSize,
		blockCount: cfg.BlockCount,
		nameMax:    uint32(cfg.nameMax()),
		pair:       [2]uint32{2, 3},
	}
	if err := fs.commit(); err != nil {
		return err
	}
	if err := fs.writeSuperblock(fs.super.pair); err != nil {
		return err
	}
	return fs.dev.Sync()
}

// Mount attaches to the filesystem on cfg.Device.
func Mount(cfg Config) (*FS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fs := newFS(cfg)
	defer fs.locked()()

	if err := fs.load(); err != nil {
		return nil, err
	}
	fs.mounted = true
	return fs, nil
}

func (fs *FS) load() error {
	cfg := &fs.cfg
	buf := make([]byte, cfg.BlockSize)

	found := false
	for b := uint32(0); b < 2; b++ {
		if err := fs.read(b, 0, buf); err != nil {
			return err
		}
		sb, ok := decodeSuperblock(buf)
		if ok && (!found || newer(sb.revision, fs.super.revision)) {
			fs.super, found = sb, true
		}
	}
	if !found {
		return ErrCorrupt
	}
	sb := fs.super
	if sb.blockSize != cfg.BlockSize || sb.blockCount != cfg.BlockCount || sb.nameMax > uint32(cfg.nameMax()) {
		return ErrInval
	}
	if sb.pair[0] < 2 || sb.pair[1] < 2 || sb.pair[0] >= sb.blockCount || sb.pair[1] >= sb.blockCount || sb.pair[0] == sb.pair[1] {
		return ErrCorrupt
	}

	var frame []byte
	found = false
	for _, b := range sb.pair {
		if err := fs.read(b, 0, buf); err != nil {
			return err
		}
		rev, f, ok := decodeMeta(buf)
		if ok && (!found || newer(rev, fs.metaRev)) {
			fs.metaRev, frame, found = rev, bytes.Clone(f), true
		}
	}
	if !found {
		return ErrCorrupt
	}

	nodes, err := decodeTable(frame)
	if err != nil {
		return err
	}
	fs.nodes = nodes

	for _, b := range []uint32{0, 1, sb.pair[0], sb.pair[1]} {
		fs.alloc.claim(b)
	}
	for _, n := range nodes {
		if n.dir {
			continue
		}
		if int64(len(n.blocks)) != blocksFor(n.size, cfg.BlockSize) {
			return ErrCorrupt
		}
		for _, b := range n.blocks {
			if b == noBlock {
				continue
			}
			if b >= cfg.BlockCount || !fs.alloc.claim(b) {
				return ErrCorrupt
			}
		}
	}
	return nil
}

// Unmount detaches the filesystem. Open files must be closed first; any data
// they did not sync is lost.
func (fs *FS) Unmount() error {
	defer fs.locked()()
	if !fs.mounted {
		return ErrInval
	}
	fs.mounted = false
	return fs.dev.Sync()
}

// locked calls the lock hook and returns the matching unlock.
func (fs *FS) locked() func() {
	if fs.cfg.Lock == nil {
		return func() {}
	}
	fs.cfg.Lock()
	return fs.cfg.Unlock
}

// Mkdir creates a directory.
func (fs *FS) Mkdir(name string) error {
	defer fs.locked()()
	if !fs.mounted {
		return ErrInval
	}
	p, err := fs.clean(name)
	if err != nil {
		return err
	}
	if p == "" || fs.nodes[p] != nil {
		return ErrExist
	}
	if err := fs.checkParent(p); err != nil {
		return err
	}

	fs.nodes[p] = &node{path: p, dir: true}
	if err := fs.commit(); err != nil {
		delete(fs.nodes, p)
		return err
	}
	return nil
}

// Remove deletes a file or an empty directory. Open handles of a removed file
// keep working until closed.
func (fs *FS) Remove(name string) error {
	defer fs.locked()()
	if !fs.mounted {
		return ErrInval
	}
	p, err := fs.clean(name)
	if err != nil {
		return err
	}
	if p == "" {
		return ErrInval
	}
	n := fs.nodes[p]
	if n == nil {
		return ErrNoEnt
	}
	if n.dir && fs.hasChildren(p) {
		return ErrNotEmpty
	}

	delete(fs.nodes, p)
	fs.detach(n)
	return fs.commit()
}

// Rename moves a file or directory. An existing file at newname is replaced;
// an existing directory is replaced only by a directory and only if empty.
func (fs *FS) Rename(oldname, newname string) error {
	defer fs.locked()()
	if !fs.mounted {
		return ErrInval
	}
	op, err := fs.clean(oldname)
	if err != nil {
		return err
	}
	np, err := fs.clean(newname)
	if err != nil {
		return err
	}
	if op == "" || np == "" {
		return ErrInval
	}
	src := fs.nodes[op]
	if src == nil {
		return ErrNoEnt
	}
	if op == np {
		return nil
	}
	if src.dir && strings.HasPrefix(np, op+"/") {
		return ErrInval
	}
	if err := fs.checkParent(np); err != nil {
		return err
	}

	if dst := fs.nodes[np]; dst != nil {
		switch {
		case src.dir && !dst.dir:
			return ErrNotDir
		case !src.dir && dst.dir:
			return ErrIsDir
		case dst.dir && fs.hasChildren(np):
			return ErrNotEmpty
		}
		delete(fs.nodes, np)
		fs.detach(dst)
	}

	moved := []*node{src}
	if src.dir {
		for p, n := range fs.nodes {
			if strings.HasPrefix(p, op+"/") {
				moved = append(moved, n)
			}
		}
	}
	for _, n := range moved {
		delete(fs.nodes, n.path)
	}
	for _, n := range moved {
		n.path = np + strings.TrimPrefix(n.path, op)
		fs.nodes[n.path] = n
	}
	return fs.commit()
}

// Stat returns information about a path. The root directory is "/".
func (fs *FS) Stat(name string) (Info, error) {
	defer fs.locked()()
	if !fs.mounted {
		return Info{}, ErrInval
	}
	p, err := fs.clean(name)
	if err != nil {
		return Info{}, err
	}
	if p == "" {
		return Info{Name: "/", Dir: true}, nil
	}
	n := fs.nodes[p]
	if n == nil {
		return Info{}, ErrNoEnt
	}
	return n.info(), nil
}

// ReadDir lists the entries of a directory sorted by name.
func (fs *FS) ReadDir(name string) ([]Info, error) {
	defer fs.locked()()
	if !fs.mounted {
		return nil, ErrInval
	}
	p, err := fs.clean(name)
	if err != nil {
		return nil, err
	}
	if p != "" {
		n := fs.nodes[p]
		if n == nil {
			return nil, ErrNoEnt
		}
		if !n.dir {
			return nil, ErrNotDir
		}
	}

	var out []Info
	for cp, n := range fs.nodes {
		if parentOf(cp) == p {
			out = append(out, n.info())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Usage reports how many blocks are in use, metadata included.
func (fs *FS) Usage() Usage {
	defer fs.locked()()
	return Usage{
		BlockSize:  fs.cfg.BlockSize,
		BlockCount: fs.cfg.BlockCount,
		UsedBlocks: fs.alloc.inUse(),
	}
}

func (n *node) info() Info {
	return Info{Name: path.Base(n.path), Dir: n.dir, Size: n.size}
}

// detach drops n from the namespace; its blocks go once no handle uses them.
func (fs *FS) detach(n *node) {
	n.removed = true
	if n.refs == 0 {
		fs.freeBlocks(n.blocks)
		n.blocks = nil
	}
}

func (fs *FS) freeBlocks(blocks []uint32) {
	for _, b := range blocks {
		fs.alloc.free(b)
	}
}

func (fs *FS) hasChildren(p string) bool {
	for cp := range fs.nodes {
		if strings.HasPrefix(cp, p+"/") {
			return true
		}
	}
	return false
}

// clean normalizes name to a slash-separated path without leading slash. The
// root directory is "".
func (fs *FS) clean(name string) (string, error) {
	p := strings.TrimPrefix(path.Clean("/"+name), "/")
	if p == "" {
		return "", nil
	}
	if len(p) > MaxPathLen {
		return "", ErrNameTooLong
	}
	for _, part := range strings.Split(p, "/") {
		if len(part) > fs.cfg.nameMax() {
			return "", ErrNameTooLong
		}
	}
	return p, nil
}

func parentOf(p string) string {
	return strings.TrimPrefix(path.Dir("/"+p), "/")
}

func (fs *FS) checkParent(p string) error {
	par := parentOf(p)
	if par == "" {
		return nil
	}
	n := fs.nodes[par]
	if n == nil {
		return ErrNoEnt
	}
	if !n.dir {
		return ErrNotDir
	}
	return nil
}

// commit writes the directory table to the next metadata block.
func (fs *FS) commit() error {
	frame, err := encodeTable(fs.nodes, fs.cfg.Compression)
	if err != nil {
		return err
	}
	if metaHeaderSize+len(frame) > int(fs.cfg.BlockSize) {
		return ErrNoSpc
	}

	rev := fs.metaRev + 1
	pair := fs.super.pair
	relocate := fs.cfg.BlockCycles > 0 && rev%uint32(fs.cfg.BlockCycles) == 0 && fs.mounted
	if relocate {
		if next, ok := fs.allocPair(); ok {
			pair = next
		} else {
			relocate = false
		}
	}

	if err := fs.writeMeta(pair[rev%2], rev, frame); err != nil {
		return err
	}
	fs.metaRev = rev

	if relocate {
		if err := fs.erase(pair[(rev+1)%2]); err != nil {
			return err
		}
		old := fs.super.pair
		if err := fs.writeSuperblock(pair); err != nil {
			return err
		}
		fs.alloc.free(old[0])
		fs.alloc.free(old[1])
	}

	fs.alloc.release()
	return nil
}

// allocPair reserves two blocks for a relocated metadata pair.
func (fs *FS) allocPair() ([2]uint32, bool) {
	a, err := fs.alloc.alloc()
	if err != nil {
		return [2]uint32{}, false
	}
	b, err := fs.alloc.alloc()
	if err != nil {
		fs.alloc.drop(a)
		return [2]uint32{}, false
	}
	return [2]uint32{a, b}, true
}

func (fs *FS) writeMeta(block, rev uint32, frame []byte) error {
	if err := fs.erase(block); err != nil {
		return err
	}
	return fs.prog(block, encodeMeta(rev, frame))
}

func (fs *FS) writeSuperblock(pair [2]uint32) error {
	sb := fs.super
	sb.revision++
	sb.pair = pair
	block := sb.revision % 2
	if err := fs.erase(block); err != nil {
		return err
	}
	if err := fs.prog(block, sb.encode()); err != nil {
		return err
	}
	fs.super = sb
	return nil
}

// read fills p from block at off in chunks of at most CacheSize bytes.
func (fs *FS) read(block, off uint32, p []byte) error {
	chunk := int(fs.cfg.CacheSize)
	for len(p) > 0 {
		n := min(chunk, len(p))
		if err := fs.dev.Read(block, off, p[:n]); err != nil {
			return &DeviceError{Op: "read", Block: block, Err: err}
		}
		p = p[n:]
		off += uint32(n)
	}
	return nil
}

// prog programs p at the start of an erased block. The tail is padded with
// erased bytes up to a multiple of ProgSize.
func (fs *FS) prog(block uint32, p []byte) error {
	if rem := uint32(len(p)) % fs.cfg.ProgSize; rem != 0 {
		pad := bytes.Repeat([]byte{blockdev.ErasedByte}, int(fs.cfg.ProgSize-rem))
		p = append(p[:len(p):len(p)], pad...)
	}
	chunk := int(fs.cfg.CacheSize)
	off := uint32(0)
	for len(p) > 0 {
		n := min(chunk, len(p))
		if err := fs.dev.Program(block, off, p[:n]); err != nil {
			return &DeviceError{Op: "program", Block: block, Err: err}
		}
		p = p[n:]
		off += uint32(n)
	}
	return nil
}

func (fs *FS) erase(block uint32) error {
	if err := fs.dev.Erase(block); err != nil {
		return &DeviceError{Op: "erase", Block: block, Err: err}
	}
	return nil
}

func blocksFor(size int64, blockSize uint32) int64 {
	return (size + int64(blockSize) - 1) / int64(blockSize)
}
