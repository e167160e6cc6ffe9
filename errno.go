package flashio

import (
	"errors"

	"github.com/hupe1980/flashio/blockfs"
)

// Errno values as defined by newlib.
const (
	EPERM        = 1
	ENOENT       = 2
	EIO          = 5
	EBADF        = 9
	ENOMEM       = 12
	EACCES       = 13
	EEXIST       = 17
	ENODEV       = 19
	ENOTDIR      = 20
	EISDIR       = 21
	EINVAL       = 22
	EMFILE       = 24
	EFBIG        = 27
	ENOSPC       = 28
	ENOTEMPTY    = 90
	ENAMETOOLONG = 91
	ESTALE       = 133
	EILSEQ       = 138
)

var fsErrno = map[blockfs.Error]int{
	blockfs.ErrIO:          EIO,
	blockfs.ErrCorrupt:     EILSEQ,
	blockfs.ErrNoEnt:       ENOENT,
	blockfs.ErrExist:       EEXIST,
	blockfs.ErrNotDir:      ENOTDIR,
	blockfs.ErrIsDir:       EISDIR,
	blockfs.ErrNotEmpty:    ENOTEMPTY,
	blockfs.ErrBadF:        EBADF,
	blockfs.ErrFBig:        EFBIG,
	blockfs.ErrInval:       EINVAL,
	blockfs.ErrNoSpc:       ENOSPC,
	blockfs.ErrNoMem:       ENOMEM,
	blockfs.ErrNameTooLong: ENAMETOOLONG,
}

// Errno maps an error returned by this package to the errno a C syscall shim
// would set. It returns 0 for nil.
//
// Descriptor and argument errors map to fixed values. Filesystem failures map
// to the errno of the underlying code, falling back to EACCES for Open and EIO
// otherwise.
func Errno(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrStaleDescriptor):
		return ESTALE
	case errors.Is(err, ErrBadDescriptor):
		return EBADF
	case errors.Is(err, ErrNoFreeDescriptor):
		return EMFILE
	case errors.Is(err, ErrInvalidArgument):
		return EINVAL
	case errors.Is(err, ErrNotMounted), errors.Is(err, ErrMountFailure):
		return ENODEV
	}

	var fe blockfs.Error
	if errors.As(err, &fe) {
		if n, ok := fsErrno[fe]; ok {
			return n
		}
	}
	if errors.Is(err, blockfs.ErrIO) {
		return EIO
	}
	if errors.Is(err, ErrAccessDenied) {
		return EACCES
	}
	return EIO
}
