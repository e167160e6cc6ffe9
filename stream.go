package flashio

import (
	"errors"

	"github.com/hupe1980/flashio/blockfs"
)

var (
	errWrongDirection = errors.New("stream does not support this direction")
	errNotSeekable    = errors.New("stream is not seekable")
)

// Info describes a file, directory or console stream.
type Info = blockfs.Info

// stream is what a descriptor slot holds: a console stream for 0-2 or an open
// file for every other descriptor.
type stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Sync() error
	Close() error
	Stat() (Info, error)
}

type fileStream struct {
	f *blockfs.File
}

func (s fileStream) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s fileStream) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s fileStream) Sync() error                 { return s.f.Sync() }
func (s fileStream) Close() error                { return s.f.Close() }

func (s fileStream) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

func (s fileStream) Stat() (Info, error) {
	return Info{Name: s.f.Name(), Size: s.f.Size()}, nil
}
