package flashio

import "github.com/hupe1980/flashio/blockfs"

// Open flags, with the values used by newlib.
const (
	O_RDONLY = 0x0000
	O_WRONLY = 0x0001
	O_RDWR   = 0x0002
	O_APPEND = 0x0008
	O_CREAT  = 0x0200
	O_TRUNC  = 0x0400
	O_EXCL   = 0x0800

	O_ACCMODE = O_RDONLY | O_WRONLY | O_RDWR
)

// Seek origins.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// translateFlags maps POSIX open flags onto blockfs flags.
func translateFlags(flags int) (int, bool) {
	if flags&^(O_ACCMODE|O_APPEND|O_CREAT|O_TRUNC|O_EXCL) != 0 {
		return 0, false
	}

	var out int
	switch flags & O_ACCMODE {
	case O_RDONLY:
		out = blockfs.ORdOnly
	case O_WRONLY:
		out = blockfs.OWrOnly
	case O_RDWR:
		out = blockfs.ORdWr
	default:
		return 0, false
	}

	if flags&O_CREAT != 0 {
		out |= blockfs.OCreat
	}
	if flags&O_EXCL != 0 {
		out |= blockfs.OExcl
	}
	if flags&O_TRUNC != 0 {
		out |= blockfs.OTrunc
	}
	if flags&O_APPEND != 0 {
		out |= blockfs.OAppend
	}
	return out, true
}

func translateWhence(whence int) (int, bool) {
	switch whence {
	case SEEK_SET:
		return blockfs.SeekSet, true
	case SEEK_CUR:
		return blockfs.SeekCur, true
	case SEEK_END:
		return blockfs.SeekEnd, true
	}
	return 0, false
}
