package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/flashio/blobstore"
	"github.com/hupe1980/flashio/blockdev"
	"github.com/hupe1980/flashio/internal/compress"
	"github.com/hupe1980/flashio/internal/hash"
	"golang.org/x/sync/errgroup"
)

// Restore writes the snapshot name back to dev. Every chunk is fetched and
// verified before the device is touched; if any fails, dev is unchanged.
//
// Blocks are erased and only pages holding data are programmed. The device
// must not be mounted while Restore runs.
func Restore(ctx context.Context, store blobstore.BlobStore, name string, dev blockdev.Device, geom blockdev.Geometry, opts ...Option) (*Manifest, error) {
	o := newOptions(opts)

	m, err := ReadManifest(ctx, store, name)
	if err != nil {
		return nil, err
	}
	if err := checkGeometry(m.Geometry, geom); err != nil {
		return nil, err
	}

	chunks := make([][]byte, len(m.Chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.controller.Workers())
	for i := range m.Chunks {
		c := m.Chunks[i]
		if c.Erased {
			continue
		}
		g.Go(func() error {
			return o.controller.Do(gctx, c.StoredSize, func() error {
				data, err := fetchChunk(gctx, store, name, c, m.Geometry.BlockSize, o)
				chunks[i] = data
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, c := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := writeChunk(dev, geom, c, chunks[i]); err != nil {
			return nil, err
		}
		chunks[i] = nil
	}
	if err := dev.Sync(); err != nil {
		return nil, err
	}

	o.logger.Info("snapshot restored", "name", name, "chunks", len(m.Chunks), "raw_bytes", m.RawSize())
	return m, nil
}

func checkGeometry(snap, dev blockdev.Geometry) error {
	if snap.BlockSize != dev.BlockSize || snap.BlockCount != dev.BlockCount {
		return fmt.Errorf("%w: snapshot has %d blocks of %d bytes, device %d of %d",
			ErrGeometry, snap.BlockCount, snap.BlockSize, dev.BlockCount, dev.BlockSize)
	}
	if dev.BlockSize%dev.ProgSize != 0 {
		return fmt.Errorf("%w: program size %d does not divide block size %d", ErrGeometry, dev.ProgSize, dev.BlockSize)
	}
	return nil
}

func fetchChunk(ctx context.Context, store blobstore.BlobStore, name string, c Chunk, blockSize uint32, o *options) ([]byte, error) {
	frame, err := blobstore.Get(ctx, store, chunkName(name, c.Index))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: chunk %d missing", ErrCorrupt, c.Index)
		}
		return nil, err
	}
	if err := o.controller.AcquireIO(ctx, len(frame)); err != nil {
		return nil, err
	}

	data, err := compress.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %v", ErrCorrupt, c.Index, err)
	}
	if int64(len(data)) != int64(c.Blocks)*int64(blockSize) {
		return nil, fmt.Errorf("%w: chunk %d has %d bytes", ErrCorrupt, c.Index, len(data))
	}
	if hash.CRC32C(data) != c.CRC32C {
		return nil, fmt.Errorf("%w: chunk %d checksum mismatch", ErrCorrupt, c.Index)
	}
	return data, nil
}

// writeChunk erases the chunk's blocks and programs every non-erased page.
// A nil data means the chunk is erased.
func writeChunk(dev blockdev.Device, geom blockdev.Geometry, c Chunk, data []byte) error {
	bs, ps := geom.BlockSize, geom.ProgSize
	for i := range c.Blocks {
		block := c.FirstBlock + i
		if err := dev.Erase(block); err != nil {
			return fmt.Errorf("image: erase block %d: %w", block, err)
		}
		if data == nil {
			continue
		}
		blk := data[i*bs : (i+1)*bs]
		for off := uint32(0); off < bs; off += ps {
			page := blk[off : off+ps]
			if isErased(page) {
				continue
			}
			if err := dev.Program(block, off, page); err != nil {
				return fmt.Errorf("image: program block %d: %w", block, err)
			}
		}
	}
	return nil
}
