package flashio

import (
	"errors"
	"io"
	"time"

	"github.com/hupe1980/flashio/internal/fdtable"
)

// File is a Go handle on a descriptor. It implements io.ReadWriteSeeker and
// io.Closer and remembers the generation of its slot: once the descriptor is
// closed, every method fails with ErrStaleDescriptor, even if the slot was
// reused for another file. Its calls are logged and measured like the
// descriptor calls of the System.
type File struct {
	sys    *System
	fd     int
	gen    uint64
	name   string
	logger *Logger
}

// OpenFile opens path like Open and wraps the descriptor in a File.
func (s *System) OpenFile(path string, flags int) (*File, error) {
	start := time.Now()
	fd, gen, err := s.open(path, flags)
	s.metrics.RecordOpen(time.Since(start), err)
	s.logger.LogOpen(path, flags, fd, err)
	if err != nil {
		return nil, err
	}
	return &File{sys: s, fd: fd, gen: gen, name: path, logger: s.logger.WithFD(fd)}, nil
}

// Fd returns the descriptor number.
func (f *File) Fd() int { return f.fd }

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.name }

func (f *File) stream(op string) (stream, error) {
	if !f.sys.mounted.Load() {
		return nil, fdErr(op, f.fd, ErrNotMounted, nil)
	}
	st, err := f.sys.fds.GetGen(f.fd, f.gen)
	switch {
	case errors.Is(err, fdtable.ErrStale):
		return nil, fdErr(op, f.fd, ErrStaleDescriptor, nil)
	case err != nil || st == nil:
		return nil, fdErr(op, f.fd, ErrBadDescriptor, nil)
	}
	return st, nil
}

// Read implements io.Reader. It returns io.EOF at end of file.
func (f *File) Read(p []byte) (int, error) {
	start := time.Now()
	n, err := f.read(p)
	if errors.Is(err, io.EOF) {
		f.sys.metrics.RecordRead(n, time.Since(start), nil)
		return n, io.EOF
	}
	f.sys.metrics.RecordRead(n, time.Since(start), err)
	f.logger.LogIO("read", err)
	return n, err
}

func (f *File) read(p []byte) (int, error) {
	st, err := f.stream("read")
	if err != nil {
		return 0, err
	}
	n, err := st.Read(p)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, translateError("read", f.fd, err)
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	start := time.Now()
	n, err := f.write(p)
	f.sys.metrics.RecordWrite(n, time.Since(start), err)
	f.logger.LogIO("write", err)
	return n, err
}

func (f *File) write(p []byte) (int, error) {
	st, err := f.stream("write")
	if err != nil {
		return 0, err
	}
	n, err := st.Write(p)
	return n, translateError("write", f.fd, err)
}

// Seek implements io.Seeker. io.SeekStart, io.SeekCurrent and io.SeekEnd equal
// SEEK_SET, SEEK_CUR and SEEK_END.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	start := time.Now()
	pos, err := f.seek(offset, whence)
	f.sys.metrics.RecordSeek(time.Since(start), err)
	f.logger.LogIO("seek", err)
	return pos, err
}

func (f *File) seek(offset int64, whence int) (int64, error) {
	w, ok := translateWhence(whence)
	if !ok {
		return 0, fdErr("seek", f.fd, ErrInvalidArgument, nil)
	}
	st, err := f.stream("seek")
	if err != nil {
		return 0, err
	}
	pos, err := st.Seek(offset, w)
	return pos, translateError("seek", f.fd, err)
}

// Stat describes the file.
func (f *File) Stat() (Info, error) {
	st, err := f.stream("stat")
	if err != nil {
		return Info{}, err
	}
	info, err := st.Stat()
	return info, translateError("stat", f.fd, err)
}

// Sync commits written data.
func (f *File) Sync() error {
	st, err := f.stream("sync")
	if err != nil {
		return err
	}
	err = translateError("sync", f.fd, st.Sync())
	f.logger.LogIO("sync", err)
	return err
}

// Close releases the descriptor.
func (f *File) Close() error {
	start := time.Now()
	err := f.close()
	f.sys.metrics.RecordClose(time.Since(start), err)
	f.logger.LogClose(err)
	return err
}

func (f *File) close() error {
	if !f.sys.mounted.Load() {
		return fdErr("close", f.fd, ErrNotMounted, nil)
	}
	st, err := f.sys.fds.ReleaseGen(f.fd, f.gen)
	switch {
	case errors.Is(err, fdtable.ErrStale):
		return fdErr("close", f.fd, ErrStaleDescriptor, nil)
	case err != nil || st == nil:
		return fdErr("close", f.fd, ErrBadDescriptor, nil)
	}
	return translateError("close", f.fd, st.Close())
}
