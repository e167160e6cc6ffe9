package flashio

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/hupe1980/flashio/blockdev"
	"github.com/hupe1980/flashio/blockfs"
	"github.com/hupe1980/flashio/internal/fdtable"
)

// System is a mounted filesystem together with its descriptor table.
//
// Independent Systems may coexist, each on its own device.
type System struct {
	fs      *blockfs.FS
	fds     *fdtable.Table[stream]
	geom    Geometry
	opts    *options
	logger  *Logger
	metrics MetricsCollector
	mounted atomic.Bool
}

// Format writes an empty filesystem to dev. It destroys the existing contents
// and must be called explicitly; Mount never formats.
func Format(dev blockdev.Device, geom Geometry, opts ...Option) error {
	o := newOptions(opts)
	err := blockfs.Format(geom.config(dev, o))
	o.logger.WithGeometry(geom).LogFormat(err)
	return err
}

// Mount attaches to the filesystem on dev. Errors match ErrMountFailure and
// carry the filesystem error code.
func Mount(dev blockdev.Device, geom Geometry, opts ...Option) (*System, error) {
	o := newOptions(opts)
	logger := o.logger.WithGeometry(geom)

	fs, err := blockfs.Mount(geom.config(dev, o))
	if err != nil {
		err = &MountError{Err: err}
		logger.LogMount(o.capacity, err)
		return nil, err
	}

	s := &System{
		fs:      fs,
		fds:     fdtable.New(o.capacity, consoleStreams(o.console)),
		geom:    geom,
		opts:    o,
		logger:  logger,
		metrics: o.metricsCollector,
	}
	s.mounted.Store(true)
	logger.LogMount(o.capacity, nil)
	return s, nil
}

// Geometry returns the geometry the System was mounted with.
func (s *System) Geometry() Geometry { return s.geom }

// Capacity returns the size of the descriptor table.
func (s *System) Capacity() int { return s.fds.Cap() }

// Open opens path and returns the lowest free descriptor (3 or above).
func (s *System) Open(path string, flags int) (int, error) {
	start := time.Now()
	fd, _, err := s.open(path, flags)
	s.metrics.RecordOpen(time.Since(start), err)
	s.logger.LogOpen(path, flags, fd, err)
	return fd, err
}

func (s *System) open(path string, flags int) (int, uint64, error) {
	if !s.mounted.Load() {
		return -1, 0, pathErr("open", path, ErrNotMounted, nil)
	}
	bf, ok := translateFlags(flags)
	if !ok {
		return -1, 0, pathErr("open", path, ErrInvalidArgument, nil)
	}

	fd, gen, err := s.fds.Alloc(nil)
	if err != nil {
		return -1, 0, pathErr("open", path, ErrNoFreeDescriptor, nil)
	}

	f, err := s.fs.OpenFile(path, bf)
	if err != nil {
		_, _ = s.fds.Release(fd)
		return -1, 0, pathErr("open", path, ErrAccessDenied, err)
	}
	if err := s.fds.Set(fd, gen, fileStream{f: f}); err != nil {
		_ = f.Close()
		return -1, 0, pathErr("open", path, ErrBadDescriptor, err)
	}
	return fd, gen, nil
}

// lookup returns the stream at fd. A slot allocated by a concurrent Open that
// has not been filled yet counts as free.
func (s *System) lookup(op string, fd int) (stream, error) {
	if !s.mounted.Load() {
		return nil, fdErr(op, fd, ErrNotMounted, nil)
	}
	st, err := s.fds.Get(fd)
	if err != nil || st == nil {
		return nil, fdErr(op, fd, ErrBadDescriptor, nil)
	}
	return st, nil
}

// Read reads from fd into p. Descriptor 0 reads a line from the console. At end
// of file Read returns 0 and no error.
func (s *System) Read(fd int, p []byte) (int, error) {
	start := time.Now()
	n, err := s.read(fd, p)
	s.metrics.RecordRead(n, time.Since(start), err)
	s.logger.WithFD(fd).LogIO("read", err)
	return n, err
}

func (s *System) read(fd int, p []byte) (int, error) {
	st, err := s.lookup("read", fd)
	if err != nil {
		return 0, err
	}
	n, err := st.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, translateError("read", fd, err)
}

// Write writes p to fd. Descriptors 1 and 2 write to the console.
func (s *System) Write(fd int, p []byte) (int, error) {
	start := time.Now()
	n, err := s.write(fd, p)
	s.metrics.RecordWrite(n, time.Since(start), err)
	s.logger.WithFD(fd).LogIO("write", err)
	return n, err
}

func (s *System) write(fd int, p []byte) (int, error) {
	st, err := s.lookup("write", fd)
	if err != nil {
		return 0, err
	}
	n, err := st.Write(p)
	return n, translateError("write", fd, err)
}

// Close releases fd. The slot is freed even when closing the file fails; the
// failure is still reported. Console descriptors cannot be closed.
func (s *System) Close(fd int) error {
	start := time.Now()
	err := s.close(fd)
	s.metrics.RecordClose(time.Since(start), err)
	s.logger.WithFD(fd).LogClose(err)
	return err
}

func (s *System) close(fd int) error {
	if !s.mounted.Load() {
		return fdErr("close", fd, ErrNotMounted, nil)
	}
	st, err := s.fds.Release(fd)
	if err != nil || st == nil {
		return fdErr("close", fd, ErrBadDescriptor, nil)
	}
	return translateError("close", fd, st.Close())
}

// Seek moves the position of fd and returns the new offset.
func (s *System) Seek(fd int, offset int64, whence int) (int64, error) {
	start := time.Now()
	pos, err := s.seek(fd, offset, whence)
	s.metrics.RecordSeek(time.Since(start), err)
	s.logger.WithFD(fd).LogIO("seek", err)
	return pos, err
}

func (s *System) seek(fd int, offset int64, whence int) (int64, error) {
	w, ok := translateWhence(whence)
	if !ok {
		return -1, fdErr("seek", fd, ErrInvalidArgument, nil)
	}
	st, err := s.lookup("seek", fd)
	if err != nil {
		return -1, err
	}
	pos, err := st.Seek(offset, w)
	if err != nil {
		return -1, translateError("seek", fd, err)
	}
	return pos, nil
}

// Unlink removes the file or empty directory at path.
func (s *System) Unlink(path string) error {
	start := time.Now()
	err := s.pathOp("unlink", path, func() error { return s.fs.Remove(path) })
	s.metrics.RecordUnlink(time.Since(start), err)
	return err
}

// Mkdir creates a directory.
func (s *System) Mkdir(path string) error {
	return s.pathOp("mkdir", path, func() error { return s.fs.Mkdir(path) })
}

// Rename moves oldpath to newpath, replacing a file at newpath.
func (s *System) Rename(oldpath, newpath string) error {
	return s.pathOp("rename", oldpath, func() error { return s.fs.Rename(oldpath, newpath) })
}

func (s *System) pathOp(op, path string, fn func() error) error {
	var err error
	if !s.mounted.Load() {
		err = pathErr(op, path, ErrNotMounted, nil)
	} else if ferr := fn(); ferr != nil {
		err = pathErr(op, path, ErrIOFailure, ferr)
	}
	s.logger.LogPath(op, path, err)
	return err
}

// Stat describes path.
func (s *System) Stat(path string) (Info, error) {
	if !s.mounted.Load() {
		return Info{}, pathErr("stat", path, ErrNotMounted, nil)
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return Info{}, pathErr("stat", path, ErrIOFailure, err)
	}
	return info, nil
}

// ReadDir lists the directory at path.
func (s *System) ReadDir(path string) ([]Info, error) {
	if !s.mounted.Load() {
		return nil, pathErr("readdir", path, ErrNotMounted, nil)
	}
	entries, err := s.fs.ReadDir(path)
	if err != nil {
		return nil, pathErr("readdir", path, ErrIOFailure, err)
	}
	return entries, nil
}

// Fstat describes the file open at fd.
func (s *System) Fstat(fd int) (Info, error) {
	st, err := s.lookup("fstat", fd)
	if err != nil {
		return Info{}, err
	}
	info, err := st.Stat()
	return info, translateError("fstat", fd, err)
}

// Fsync commits the data written to fd.
func (s *System) Fsync(fd int) error {
	st, err := s.lookup("fsync", fd)
	if err != nil {
		return err
	}
	err = translateError("fsync", fd, st.Sync())
	s.logger.WithFD(fd).LogIO("fsync", err)
	return err
}

// Usage reports block consumption of the filesystem.
func (s *System) Usage() blockfs.Usage {
	return s.fs.Usage()
}

// Unmount closes every open descriptor and detaches the filesystem. All later
// calls fail with ErrNotMounted.
func (s *System) Unmount() error {
	if !s.mounted.Swap(false) {
		return pathErr("unmount", "", ErrNotMounted, nil)
	}

	var errs []error
	fds := s.fds.Open()
	for _, fd := range fds {
		st, err := s.fds.Release(fd)
		if err != nil || st == nil {
			continue
		}
		if err := st.Close(); err != nil {
			errs = append(errs, fdErr("close", fd, ErrIOFailure, err))
		}
	}
	if err := s.fs.Unmount(); err != nil {
		errs = append(errs, pathErr("unmount", "", ErrIOFailure, err))
	}

	err := errors.Join(errs...)
	s.logger.LogUnmount(len(fds), err)
	return err
}
