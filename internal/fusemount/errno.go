//go:build linux || freebsd

package fusemount

import (
	"syscall"

	"bazil.org/fuse"
	"github.com/hupe1980/flashio"
)

var hostErrno = map[int]syscall.Errno{
	flashio.EPERM:        syscall.EPERM,
	flashio.ENOENT:       syscall.ENOENT,
	flashio.EIO:          syscall.EIO,
	flashio.EBADF:        syscall.EBADF,
	flashio.ENOMEM:       syscall.ENOMEM,
	flashio.EACCES:       syscall.EACCES,
	flashio.EEXIST:       syscall.EEXIST,
	flashio.ENODEV:       syscall.ENODEV,
	flashio.ENOTDIR:      syscall.ENOTDIR,
	flashio.EISDIR:       syscall.EISDIR,
	flashio.EINVAL:       syscall.EINVAL,
	flashio.EMFILE:       syscall.EMFILE,
	flashio.EFBIG:        syscall.EFBIG,
	flashio.ENOSPC:       syscall.ENOSPC,
	flashio.ENOTEMPTY:    syscall.ENOTEMPTY,
	flashio.ENAMETOOLONG: syscall.ENAMETOOLONG,
	flashio.ESTALE:       syscall.ESTALE,
	flashio.EILSEQ:       syscall.EILSEQ,
}

// toErrno converts a flashio error to the host errno FUSE reports. The
// device errno values follow newlib and differ from the host's.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	if n, ok := hostErrno[flashio.Errno(err)]; ok {
		return fuse.Errno(n)
	}
	return fuse.EIO
}
