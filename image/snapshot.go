package image

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/flashio/blobstore"
	"github.com/hupe1980/flashio/blockdev"
	"github.com/hupe1980/flashio/internal/compress"
	"github.com/hupe1980/flashio/internal/hash"
	"golang.org/x/sync/errgroup"
)

// Snapshot reads every block of dev and stores it in store under name. The
// device must not be written while the snapshot runs; unmount the filesystem
// or hold its lock.
func Snapshot(ctx context.Context, dev blockdev.Device, geom blockdev.Geometry, store blobstore.BlobStore, name string, opts ...Option) (*Manifest, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("image: empty snapshot name")
	}
	o := newOptions(opts)

	m := &Manifest{
		Version:     FormatVersion,
		Name:        name,
		Geometry:    geom,
		ChunkBlocks: o.chunkBlocks,
		Compression: o.compression.String(),
		Created:     o.now().UTC(),
	}
	for first := uint32(0); first < geom.BlockCount; first += o.chunkBlocks {
		m.Chunks = append(m.Chunks, Chunk{
			Index:      len(m.Chunks),
			FirstBlock: first,
			Blocks:     min(o.chunkBlocks, geom.BlockCount-first),
		})
	}

	var devMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.controller.Workers())
	for i := range m.Chunks {
		c := &m.Chunks[i]
		raw := int64(c.Blocks) * int64(geom.BlockSize)
		g.Go(func() error {
			return o.controller.Do(gctx, raw, func() error {
				devMu.Lock()
				data, err := readBlocks(dev, geom, c.FirstBlock, c.Blocks)
				devMu.Unlock()
				if err != nil {
					return err
				}
				return storeChunk(gctx, store, name, c, data, o)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data, err := encodeManifest(m, o.codec)
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, manifestName(name), data); err != nil {
		return nil, err
	}
	o.logger.Info("snapshot stored",
		"name", name,
		"chunks", len(m.Chunks),
		"raw_bytes", m.RawSize(),
		"stored_bytes", m.StoredSize())
	return m, nil
}

func readBlocks(dev blockdev.Device, geom blockdev.Geometry, first, count uint32) ([]byte, error) {
	bs := int(geom.BlockSize)
	data := make([]byte, int(count)*bs)
	for i := range count {
		if err := dev.Read(first+i, 0, data[int(i)*bs:int(i+1)*bs]); err != nil {
			return nil, fmt.Errorf("image: read block %d: %w", first+i, err)
		}
	}
	return data, nil
}

func storeChunk(ctx context.Context, store blobstore.BlobStore, name string, c *Chunk, data []byte, o *options) error {
	c.CRC32C = hash.CRC32C(data)
	if isErased(data) {
		c.Erased = true
		return nil
	}

	frame, err := compress.Encode(data, o.compression)
	if err != nil {
		return err
	}
	c.StoredSize = int64(len(frame))
	if err := o.controller.AcquireIO(ctx, len(frame)); err != nil {
		return err
	}
	if err := store.Put(ctx, chunkName(name, c.Index), frame); err != nil {
		return fmt.Errorf("image: store chunk %d: %w", c.Index, err)
	}
	o.logger.Debug("chunk stored", "name", name, "chunk", c.Index, "stored_bytes", c.StoredSize)
	return nil
}

var erasedPage = bytes.Repeat([]byte{blockdev.ErasedByte}, 256)

func isErased(p []byte) bool {
	for len(p) > 0 {
		n := min(len(p), len(erasedPage))
		if !bytes.Equal(p[:n], erasedPage[:n]) {
			return false
		}
		p = p[n:]
	}
	return true
}
