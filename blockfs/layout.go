package blockfs

import (
	"encoding/binary"
	"hash/crc32"
	"sort"

	"github.com/hupe1980/flashio/internal/compress"
)

const (
	version = 1

	superblockSize = 40
	metaHeaderSize = 16
	metaMagic      = 0x4154454d // "META"

	typeFile = 1
	typeDir  = 2

	// The superblock pair occupies blocks 0 and 1; a fresh metadata pair
	// starts at blocks 2 and 3.
	minBlocks = 4
)

var superMagic = [8]byte{'b', 'l', 'o', 'c', 'k', 'f', 's', 0}

type superblock struct {
	revision   uint32
	blockSize  uint32
	blockCount uint32
	nameMax    uint32
	pair       [2]uint32
}

func (s *superblock) encode() []byte {
	buf := make([]byte, superblockSize)
	copy(buf, superMagic[:])
	binary.LittleEndian.PutUint32(buf[8:], version)
	binary.LittleEndian.PutUint32(buf[12:], s.revision)
	binary.LittleEndian.PutUint32(buf[16:], s.blockSize)
	binary.LittleEndian.PutUint32(buf[20:], s.blockCount)
	binary.LittleEndian.PutUint32(buf[24:], s.nameMax)
	binary.LittleEndian.PutUint32(buf[28:], s.pair[0])
	binary.LittleEndian.PutUint32(buf[32:], s.pair[1])
	binary.LittleEndian.PutUint32(buf[36:], crc32.ChecksumIEEE(buf[:36]))
	return buf
}

func decodeSuperblock(buf []byte) (superblock, bool) {
	if len(buf) < superblockSize || [8]byte(buf[:8]) != superMagic {
		return superblock{}, false
	}
	if binary.LittleEndian.Uint32(buf[36:]) != crc32.ChecksumIEEE(buf[:36]) {
		return superblock{}, false
	}
	if binary.LittleEndian.Uint32(buf[8:]) != version {
		return superblock{}, false
	}
	return superblock{
		revision:   binary.LittleEndian.Uint32(buf[12:]),
		blockSize:  binary.LittleEndian.Uint32(buf[16:]),
		blockCount: binary.LittleEndian.Uint32(buf[20:]),
		nameMax:    binary.LittleEndian.Uint32(buf[24:]),
		pair:       [2]uint32{binary.LittleEndian.Uint32(buf[28:]), binary.LittleEndian.Uint32(buf[32:])},
	}, true
}

// newer reports whether revision a is more recent than b, allowing wraparound.
func newer(a, b uint32) bool {
	return int32(a-b) > 0
}

// encodeMeta builds a metadata block image: header followed by the framed table.
func encodeMeta(rev uint32, frame []byte) []byte {
	buf := make([]byte, metaHeaderSize+len(frame))
	binary.LittleEndian.PutUint32(buf[0:], metaMagic)
	binary.LittleEndian.PutUint32(buf[4:], rev)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(frame)))
	copy(buf[metaHeaderSize:], frame)
	crc := crc32.NewIEEE()
	crc.Write(buf[:12])
	crc.Write(frame)
	binary.LittleEndian.PutUint32(buf[12:], crc.Sum32())
	return buf
}

func decodeMeta(buf []byte) (uint32, []byte, bool) {
	if len(buf) < metaHeaderSize || binary.LittleEndian.Uint32(buf) != metaMagic {
		return 0, nil, false
	}
	n := binary.LittleEndian.Uint32(buf[8:])
	if uint64(n) > uint64(len(buf)-metaHeaderSize) {
		return 0, nil, false
	}
	frame := buf[metaHeaderSize : metaHeaderSize+n]
	crc := crc32.NewIEEE()
	crc.Write(buf[:12])
	crc.Write(frame)
	if crc.Sum32() != binary.LittleEndian.Uint32(buf[12:]) {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(buf[4:]), frame, true
}

// encodeTable serializes the directory table in path order.
func encodeTable(nodes map[string]*node, c compress.Type) ([]byte, error) {
	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(paths)))
	for _, p := range paths {
		n := nodes[p]
		typ := byte(typeFile)
		if n.dir {
			typ = typeDir
		}
		buf = append(buf, typ)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p)))
		buf = append(buf, p...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.size))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(n.blocks)))
		for _, b := range n.blocks {
			buf = binary.LittleEndian.AppendUint32(buf, b)
		}
	}
	return compress.Encode(buf, c)
}

func decodeTable(frame []byte) (map[string]*node, error) {
	raw, err := compress.Decode(frame)
	if err != nil {
		return nil, ErrCorrupt
	}

	r := tableReader{buf: raw}
	count := r.u32()
	if uint64(count) > uint64(len(raw)) {
		return nil, ErrCorrupt
	}
	nodes := make(map[string]*node, count)
	for i := uint32(0); i < count && !r.bad; i++ {
		typ := r.u8()
		name := string(r.bytes(int(r.u16())))
		n := &node{path: name, dir: typ == typeDir, size: int64(r.u32())}
		nb := r.u32()
		if r.bad || uint64(nb)*4 > uint64(len(r.buf)) || (typ != typeFile && typ != typeDir) {
			return nil, ErrCorrupt
		}
		n.blocks = make([]uint32, nb)
		for j := range n.blocks {
			n.blocks[j] = r.u32()
		}
		if _, dup := nodes[name]; dup || name == "" {
			return nil, ErrCorrupt
		}
		nodes[name] = n
	}
	if r.bad {
		return nil, ErrCorrupt
	}
	return nodes, nil
}

type tableReader struct {
	buf []byte
	bad bool
}

func (r *tableReader) bytes(n int) []byte {
	if r.bad || len(r.buf) < n {
		r.bad = true
		return make([]byte, n)
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *tableReader) u8() byte { return r.bytes(1)[0] }
func (r *tableReader) u16() uint16 { return binary.LittleEndian.Uint16(r.bytes(2)) }
func (r *tableReader) u32() uint32 { return binary.LittleEndian.Uint32(r.bytes(4)) }
