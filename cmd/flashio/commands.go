package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hupe1980/flashio"
	"github.com/hupe1980/flashio/blockdev"
	"github.com/hupe1980/flashio/image"
	"github.com/hupe1980/flashio/internal/fusemount"
	"github.com/timtadh/getopt"
)

// withImage opens the configured image file.
func withImage(e *env, fn func(img *blockdev.Image, geom flashio.Geometry) error) (err error) {
	geom := e.cfg.FlashGeometry()
	img, err := blockdev.OpenImage(e.cfg.Image.Path, geom.Device(), blockdev.WithBase(e.cfg.Image.Base))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, img.Sync(), img.Close())
	}()
	return fn(img, geom)
}

// withSystem mounts the filesystem on the configured image.
func withSystem(e *env, fn func(sys *flashio.System) error) error {
	return withImage(e, func(img *blockdev.Image, geom flashio.Geometry) error {
		opts := append(e.cfg.Options(), flashio.WithConsole(flashio.NewConsole(e.stdin, e.stdout, e.stderr)))
		sys, err := flashio.Mount(img, geom, opts...)
		if err != nil {
			return err
		}
		err = fn(sys)
		return errors.Join(err, sys.Unmount())
	})
}

func argN(args []string, n int, syntax string) error {
	if len(args) != n {
		return usageError("usage: " + syntax)
	}
	return nil
}

func cmdFormat(e *env, args []string) error {
	if err := argN(args, 0, "format"); err != nil {
		return err
	}
	return withImage(e, func(img *blockdev.Image, geom flashio.Geometry) error {
		if err := flashio.Format(img, geom, e.cfg.Options()...); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "formatted %s: %d blocks of %d bytes\n", e.cfg.Image.Path, geom.BlockCount, geom.BlockSize)
		return nil
	})
}

func cmdLs(e *env, args []string) error {
	dir := "/"
	switch len(args) {
	case 0:
	case 1:
		dir = args[0]
	default:
		return usageError("usage: ls [path]")
	}
	return withSystem(e, func(sys *flashio.System) error {
		entries, err := sys.ReadDir(dir)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
		for _, ent := range entries {
			kind := "-"
			if ent.Dir {
				kind = "d"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", kind, ent.Size, ent.Name)
		}
		return w.Flush()
	})
}

func cmdCat(e *env, args []string) error {
	if err := argN(args, 1, "cat <path>"); err != nil {
		return err
	}
	return withSystem(e, func(sys *flashio.System) error {
		f, err := sys.OpenFile(args[0], flashio.O_RDONLY)
		if err != nil {
			return err
		}
		_, err = io.Copy(e.stdout, f)
		return errors.Join(err, f.Close())
	})
}

func cmdPut(e *env, args []string) error {
	if err := argN(args, 2, "put <src> <path>"); err != nil {
		return err
	}
	var src io.Reader = e.stdin
	if args[0] != "-" {
		hf, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer hf.Close()
		src = hf
	}
	return withSystem(e, func(sys *flashio.System) error {
		f, err := sys.OpenFile(args[1], flashio.O_WRONLY|flashio.O_CREAT|flashio.O_TRUNC)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, src)
		return errors.Join(err, f.Close())
	})
}

func cmdRm(e *env, args []string) error {
	if err := argN(args, 1, "rm <path>"); err != nil {
		return err
	}
	return withSystem(e, func(sys *flashio.System) error {
		return sys.Unlink(args[0])
	})
}

func cmdMkdir(e *env, args []string) error {
	if err := argN(args, 1, "mkdir <path>"); err != nil {
		return err
	}
	return withSystem(e, func(sys *flashio.System) error {
		return sys.Mkdir(args[0])
	})
}

func cmdDf(e *env, args []string) error {
	if err := argN(args, 0, "df"); err != nil {
		return err
	}
	return withSystem(e, func(sys *flashio.System) error {
		u := sys.Usage()
		fmt.Fprintf(e.stdout, "blocks %d used %d free %d bytes free %d\n",
			u.BlockCount, u.UsedBlocks, u.BlockCount-u.UsedBlocks, u.FreeBytes())
		return nil
	})
}

// deviceOpt parses an optional --device flag.
func deviceOpt(args []string) ([]string, string, error) {
	rest, optargs, err := getopt.GetOpt(args, "", []string{"device="})
	if err != nil {
		return nil, "", usageError(err.Error())
	}
	device := ""
	for _, oa := range optargs {
		if oa.Opt() == "--device" {
			device = oa.Arg()
		}
	}
	return rest, device, nil
}

func cmdSnapshot(e *env, args []string) error {
	args, device, err := deviceOpt(args)
	if err != nil {
		return err
	}
	store, err := openStore(e.ctx, e.cfg)
	if err != nil {
		return err
	}
	return withImage(e, func(img *blockdev.Image, geom flashio.Geometry) error {
		if device != "" {
			if len(args) != 0 {
				return usageError("usage: snapshot --device=<id>")
			}
			cat, err := openCatalog(e.ctx, e.cfg)
			if err != nil {
				return err
			}
			entry, err := image.Publish(e.ctx, cat, device, img, geom.Device(), store, e.cfg.ImageOptions()...)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "%s version %d: %s\n", entry.Device, entry.Version, entry.Snapshot)
			return nil
		}

		if len(args) != 1 {
			return usageError("usage: snapshot <name>")
		}
		m, err := image.Snapshot(e.ctx, img, geom.Device(), store, args[0], e.cfg.ImageOptions()...)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s: %d chunks, %d of %d bytes stored\n", m.Name, len(m.Chunks), m.StoredSize(), m.RawSize())
		return nil
	})
}

func cmdSnapshots(e *env, args []string) error {
	args, device, err := deviceOpt(args)
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return usageError("usage: snapshots [--device=<id>]")
	}
	if device != "" {
		cat, err := openCatalog(e.ctx, e.cfg)
		if err != nil {
			return err
		}
		hist, err := cat.History(e.ctx, device)
		if err != nil {
			return err
		}
		for _, ent := range hist {
			fmt.Fprintf(e.stdout, "%d\t%s\t%s\n", ent.Version, ent.Created.Format("2006-01-02T15:04:05Z"), ent.Snapshot)
		}
		return nil
	}

	store, err := openStore(e.ctx, e.cfg)
	if err != nil {
		return err
	}
	names, err := image.List(e.ctx, store)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(e.stdout, n)
	}
	return nil
}

func cmdRestore(e *env, args []string) error {
	args, device, err := deviceOpt(args)
	if err != nil {
		return err
	}
	var name string
	switch {
	case device != "" && len(args) == 0:
		cat, err := openCatalog(e.ctx, e.cfg)
		if err != nil {
			return err
		}
		latest, err := cat.Latest(e.ctx, device)
		if err != nil {
			return err
		}
		name = latest.Snapshot
	case device == "" && len(args) == 1:
		name = args[0]
	default:
		return usageError("usage: restore <name> | restore --device=<id>")
	}

	store, err := openStore(e.ctx, e.cfg)
	if err != nil {
		return err
	}
	return withImage(e, func(img *blockdev.Image, geom flashio.Geometry) error {
		m, err := image.Restore(e.ctx, store, name, img, geom.Device(), e.cfg.ImageOptions()...)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "restored %s: %d chunks\n", m.Name, len(m.Chunks))
		return nil
	})
}

func cmdMount(e *env, args []string) error {
	if err := argN(args, 1, "mount <dir>"); err != nil {
		return err
	}
	// FUSE requests arrive concurrently.
	e.cfg.FS.Locking = true
	return withSystem(e, func(sys *flashio.System) error {
		return fusemount.Mount(e.ctx, sys, fusemount.Options{
			MountPoint: args[0],
			Logger:     e.cfg.Logger().Logger,
		})
	})
}
