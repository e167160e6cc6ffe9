//go:build !(linux || freebsd)

package fusemount

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hupe1980/flashio"
)

// ErrUnsupported is returned by Mount on platforms without FUSE.
var ErrUnsupported = errors.New("fusemount: FUSE is not supported on this platform")

// Options configures Mount.
type Options struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
	Debug      bool
	Logger     *slog.Logger
}

// Mount always fails with ErrUnsupported.
func Mount(ctx context.Context, sys *flashio.System, opts Options) error {
	return ErrUnsupported
}
