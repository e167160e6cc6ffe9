// Package flashio provides POSIX-like file storage on flash block devices.
//
// A [System] ties together three layers:
//
//   - a block device ([blockdev.Device]): an in-memory emulation or real flash
//     behind a read-only memory-mapped alias and an interrupt-guarded
//     program/erase pair
//   - a filesystem ([blockfs.FS]) created by [Format] and attached by [Mount]
//   - a fixed-capacity descriptor table and the syscall surface on top of it:
//     Open, Read, Write, Close, Seek and Unlink
//
// # Quick Start
//
//	dev, _ := blockdev.NewMemDevice(flashio.PicoGeometry(1 << 20).Device())
//	geom := flashio.PicoGeometry(1 << 20)
//
//	_ = flashio.Format(dev, geom) // destroys existing contents, call once
//	sys, _ := flashio.Mount(dev, geom)
//
//	fd, _ := sys.Open("/a", flashio.O_CREAT|flashio.O_WRONLY) // fd == 3
//	sys.Write(fd, []byte("hi"))
//	sys.Close(fd)
//
// Format is never run implicitly: Mount fails with [ErrMountFailure] on a device
// without a filesystem.
//
// # Descriptors
//
// Descriptors 0, 1 and 2 are permanently bound to the console (standard input,
// output and error). Open returns the lowest free descriptor starting at 3.
// Every slot carries a generation counter; a [File] obtained from
// [System.OpenFile] remembers it and reports [ErrStaleDescriptor] once its
// descriptor has been closed and reused.
//
// # Errors
//
// Failures are [*PathError] values that match both a kind sentinel
// (ErrBadDescriptor, ErrIOFailure, ...) and the underlying cause, typically a
// [blockfs.Error]:
//
//	_, err := sys.Open("/missing", flashio.O_RDONLY)
//	errors.Is(err, flashio.ErrAccessDenied) // true
//	errors.Is(err, blockfs.ErrNoEnt)        // true
//	flashio.Errno(err)                      // ENOENT
//
// # Concurrency
//
// The descriptor table is always guarded by a mutex. The filesystem layer is
// only serialized when the System is created with [WithLocking].
package flashio
