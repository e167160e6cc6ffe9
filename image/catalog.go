package image

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/flashio/blobstore"
	"github.com/hupe1980/flashio/blockdev"
)

var (
	// ErrConflict is returned by Commit when another writer advanced the
	// device's version first.
	ErrConflict = errors.New("image: concurrent catalog update")
	// ErrNoEntry is returned when a device has no catalog entries.
	ErrNoEntry = errors.New("image: no catalog entry")
)

// Entry records which snapshot is current for a device at a version.
type Entry struct {
	Device   string
	Version  uint64
	Snapshot string
	Created  time.Time
}

// Catalog tracks the snapshot history of devices. Versions start at 1 and
// increase by one per commit.
type Catalog interface {
	// Latest returns the newest entry for device or ErrNoEntry.
	Latest(ctx context.Context, device string) (Entry, error)
	// Commit records snapshot as version expected+1. It fails with
	// ErrConflict unless the device's latest version is expected; a device
	// without entries is at version 0.
	Commit(ctx context.Context, device string, expected uint64, snapshot string) (Entry, error)
	// History returns all entries for device, newest first.
	History(ctx context.Context, device string) ([]Entry, error)
}

// MemoryCatalog is an in-process Catalog.
type MemoryCatalog struct {
	mu      sync.Mutex
	entries map[string][]Entry
	now     func() time.Time
}

var _ Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		entries: make(map[string][]Entry),
		now:     time.Now,
	}
}

func (c *MemoryCatalog) Latest(ctx context.Context, device string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := c.entries[device]
	if len(hist) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoEntry, device)
	}
	return hist[len(hist)-1], nil
}

func (c *MemoryCatalog) Commit(ctx context.Context, device string, expected uint64, snapshot string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := c.entries[device]
	if uint64(len(hist)) != expected {
		return Entry{}, fmt.Errorf("%w: %s is at version %d, not %d", ErrConflict, device, len(hist), expected)
	}
	e := Entry{
		Device:   device,
		Version:  expected + 1,
		Snapshot: snapshot,
		Created:  c.now().UTC(),
	}
	c.entries[device] = append(hist, e)
	return e, nil
}

func (c *MemoryCatalog) History(ctx context.Context, device string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := slices.Clone(c.entries[device])
	slices.Reverse(hist)
	return hist, nil
}

// Publish snapshots dev under a name derived from device, the next version
// and the current time, then commits it to the catalog. If the commit loses a race the
// stored snapshot is deleted and ErrConflict is returned.
func Publish(ctx context.Context, cat Catalog, device string, dev blockdev.Device, geom blockdev.Geometry, store blobstore.BlobStore, opts ...Option) (Entry, error) {
	var current uint64
	latest, err := cat.Latest(ctx, device)
	switch {
	case err == nil:
		current = latest.Version
	case !errors.Is(err, ErrNoEntry):
		return Entry{}, err
	}

	stamp := newOptions(opts).now().UTC().Format("20060102T150405.000000000")
	name := fmt.Sprintf("%s/v%06d-%s", device, current+1, stamp)
	if _, err := Snapshot(ctx, dev, geom, store, name, opts...); err != nil {
		return Entry{}, err
	}
	e, err := cat.Commit(ctx, device, current, name)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			if derr := Delete(ctx, store, name); derr != nil {
				err = errors.Join(err, derr)
			}
		}
		return Entry{}, err
	}
	return e, nil
}
