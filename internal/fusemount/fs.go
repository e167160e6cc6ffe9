//go:build linux || freebsd

package fusemount

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/hupe1980/flashio"
)

// FS adapts a System to the bazil.org/fuse/fs interfaces.
type FS struct {
	sys    *flashio.System
	logger *slog.Logger
}

var _ fs.FS = (*FS)(nil)
var _ fs.FSStatfser = (*FS)(nil)

// New returns the FUSE view of sys.
func New(sys *flashio.System, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FS{sys: sys, logger: logger}
}

func (f *FS) Root() (fs.Node, error) {
	return &Dir{fs: f, path: "/"}, nil
}

func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	u := f.sys.Usage()
	resp.Bsize = u.BlockSize
	resp.Frsize = u.BlockSize
	resp.Blocks = uint64(u.BlockCount)
	resp.Bfree = uint64(u.BlockCount - u.UsedBlocks)
	resp.Bavail = resp.Bfree
	resp.Namelen = 255
	return nil
}

func (f *FS) node(p string, info flashio.Info) fs.Node {
	if info.Dir {
		return &Dir{fs: f, path: p}
	}
	return &File{fs: f, path: p}
}

// Dir is a directory node.
type Dir struct {
	fs   *FS
	path string
}

var (
	_ fs.Node               = (*Dir)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
	_ fs.NodeCreater        = (*Dir)(nil)
	_ fs.NodeMkdirer        = (*Dir)(nil)
	_ fs.NodeRemover        = (*Dir)(nil)
	_ fs.NodeRenamer        = (*Dir)(nil)
)

func (d *Dir) Attr(ctx context.Context, attr *fuse.Attr) error {
	attr.Mode = os.ModeDir | 0o755
	attr.Nlink = 2
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	p := path.Join(d.path, name)
	info, err := d.fs.sys.Stat(p)
	if err != nil {
		return nil, toErrno(err)
	}
	return d.fs.node(p, info), nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fs.sys.ReadDir(d.path)
	if err != nil {
		return nil, toErrno(err)
	}
	out := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		typ := fuse.DT_File
		if e.Dir {
			typ = fuse.DT_Dir
		}
		out = append(out, fuse.Dirent{Name: e.Name, Type: typ})
	}
	return out, nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	p := path.Join(d.path, req.Name)
	h, err := d.fs.open(p, req.Flags|fuse.OpenCreate)
	if err != nil {
		return nil, nil, err
	}
	return &File{fs: d.fs, path: p}, h, nil
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	p := path.Join(d.path, req.Name)
	if err := d.fs.sys.Mkdir(p); err != nil {
		return nil, toErrno(err)
	}
	return &Dir{fs: d.fs, path: p}, nil
}

func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	return toErrno(d.fs.sys.Unlink(path.Join(d.path, req.Name)))
}

func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	nd, ok := newDir.(*Dir)
	if !ok {
		return fuse.Errno(syscall.EXDEV)
	}
	return toErrno(d.fs.sys.Rename(path.Join(d.path, req.OldName), path.Join(nd.path, req.NewName)))
}

// File is a regular file node.
type File struct {
	fs   *FS
	path string
}

var (
	_ fs.Node          = (*File)(nil)
	_ fs.NodeOpener    = (*File)(nil)
	_ fs.NodeSetattrer = (*File)(nil)
)

func (f *File) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := f.fs.sys.Stat(f.path)
	if err != nil {
		return toErrno(err)
	}
	attr.Mode = 0o644
	attr.Nlink = 1
	attr.Size = uint64(info.Size)
	attr.Blocks = (attr.Size + 511) / 512
	return nil
}

func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	return f.fs.open(f.path, req.Flags)
}

// Setattr supports truncation to zero, the only size change the descriptor
// interface can express.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if req.Size != 0 {
			return fuse.Errno(syscall.ENOTSUP)
		}
		fd, err := f.fs.sys.Open(f.path, flashio.O_WRONLY|flashio.O_TRUNC)
		if err != nil {
			return toErrno(err)
		}
		if err := f.fs.sys.Close(fd); err != nil {
			return toErrno(err)
		}
	}
	return f.Attr(ctx, &resp.Attr)
}

func (f *FS) open(p string, flags fuse.OpenFlags) (*Handle, error) {
	file, err := f.sys.OpenFile(p, openFlags(flags))
	if err != nil {
		f.logger.Debug("fuse open failed", "path", p, "error", err)
		return nil, toErrno(err)
	}
	return &Handle{file: file}, nil
}

// openFlags maps host open flags to the descriptor interface's flags.
func openFlags(flags fuse.OpenFlags) int {
	var out int
	switch {
	case flags.IsWriteOnly():
		out = flashio.O_WRONLY
	case flags.IsReadWrite():
		out = flashio.O_RDWR
	default:
		out = flashio.O_RDONLY
	}
	if flags&fuse.OpenCreate != 0 {
		out |= flashio.O_CREAT
	}
	if flags&fuse.OpenExclusive != 0 {
		out |= flashio.O_EXCL
	}
	if flags&fuse.OpenTruncate != 0 {
		out |= flashio.O_TRUNC
	}
	if flags&fuse.OpenAppend != 0 {
		out |= flashio.O_APPEND
	}
	return out
}

// Handle is an open file. It owns one descriptor.
type Handle struct {
	mu   sync.Mutex
	file *flashio.File
}

var (
	_ fs.HandleReader   = (*Handle)(nil)
	_ fs.HandleWriter   = (*Handle)(nil)
	_ fs.HandleFlusher  = (*Handle)(nil)
	_ fs.HandleReleaser = (*Handle)(nil)
)

func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.file.Seek(req.Offset, io.SeekStart); err != nil {
		return toErrno(err)
	}
	buf := make([]byte, req.Size)
	n, err := io.ReadFull(h.file, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return toErrno(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.file.Seek(req.Offset, io.SeekStart); err != nil {
		return toErrno(err)
	}
	n, err := h.file.Write(req.Data)
	resp.Size = n
	return toErrno(err)
}

func (h *Handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return toErrno(h.file.Sync())
}

func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return toErrno(h.file.Close())
}
