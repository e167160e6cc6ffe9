//go:build linux || freebsd

package fusemount

import (
	"context"
	"fmt"
	"log/slog"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/hupe1980/flashio"
)

// Options configures Mount.
type Options struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
	Debug      bool
	Logger     *slog.Logger
}

// Mount serves sys at opts.MountPoint until ctx is done or the host unmounts
// it. The System stays mounted; the caller unmounts it afterwards.
func Mount(ctx context.Context, sys *flashio.System, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName("flashio"),
		fuse.Subtype("flashio"),
	}
	if opts.ReadOnly {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}
	if opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	if opts.Debug {
		fuse.Debug = func(msg interface{}) {
			logger.Debug("fuse", "msg", msg)
		}
	}

	c, err := fuse.Mount(opts.MountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("fusemount: mount %s: %w", opts.MountPoint, err)
	}
	defer c.Close()
	logger.Info("fuse mounted", "mountpoint", opts.MountPoint)

	errc := make(chan error, 1)
	go func() {
		errc <- fs.Serve(c, New(sys, logger))
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := fuse.Unmount(opts.MountPoint); err != nil {
			logger.Warn("fuse unmount failed", "mountpoint", opts.MountPoint, "error", err)
			return err
		}
		err := <-errc
		logger.Info("fuse unmounted", "mountpoint", opts.MountPoint)
		return err
	}
}
