package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/flashio/blobstore"
	"github.com/hupe1980/flashio/blockdev"
	"github.com/hupe1980/flashio/codec"
)

// FormatVersion is the manifest layout written by this package.
const FormatVersion = 1

const (
	manifestBlob = "MANIFEST"
	headerPrefix = "flashio-image "
)

var (
	// ErrNotFound is returned when a snapshot has no manifest.
	ErrNotFound = errors.New("image: snapshot not found")
	// ErrCorrupt is returned when a manifest or chunk fails validation.
	ErrCorrupt = errors.New("image: corrupt snapshot")
	// ErrGeometry is returned when a snapshot does not fit the target device.
	ErrGeometry = errors.New("image: geometry mismatch")
)

// Chunk describes one stored run of blocks.
type Chunk struct {
	Index      int    `json:"index"`
	FirstBlock uint32 `json:"first_block"`
	Blocks     uint32 `json:"blocks"`
	// CRC32C is the Castagnoli checksum of the raw, uncompressed blocks.
	CRC32C     uint32 `json:"crc32c"`
	StoredSize int64  `json:"stored_size"`
	// Erased chunks consist of erased bytes only and have no blob.
	Erased bool `json:"erased,omitempty"`
}

// Manifest describes a snapshot.
type Manifest struct {
	Version     int               `json:"version"`
	Name        string            `json:"name"`
	Geometry    blockdev.Geometry `json:"geometry"`
	ChunkBlocks uint32            `json:"chunk_blocks"`
	Compression string            `json:"compression"`
	Created     time.Time         `json:"created"`
	Chunks      []Chunk           `json:"chunks"`
}

// RawSize returns the size of the imaged region in bytes.
func (m *Manifest) RawSize() int64 {
	return m.Geometry.Size()
}

// StoredSize returns the bytes held in chunk blobs.
func (m *Manifest) StoredSize() int64 {
	var n int64
	for _, c := range m.Chunks {
		n += c.StoredSize
	}
	return n
}

func (m *Manifest) validate() error {
	if m.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, m.Version)
	}
	if err := m.Geometry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	next := uint32(0)
	for i, c := range m.Chunks {
		if c.Index != i || c.FirstBlock != next || c.Blocks == 0 || c.Blocks > m.ChunkBlocks {
			return fmt.Errorf("%w: chunk %d out of sequence", ErrCorrupt, i)
		}
		next += c.Blocks
	}
	if next != m.Geometry.BlockCount {
		return fmt.Errorf("%w: chunks cover %d of %d blocks", ErrCorrupt, next, m.Geometry.BlockCount)
	}
	return nil
}

func chunkName(name string, index int) string {
	return fmt.Sprintf("%s/chunk-%05d", name, index)
}

func manifestName(name string) string {
	return name + "/" + manifestBlob
}

func encodeManifest(m *Manifest, c codec.Codec) ([]byte, error) {
	body, err := c.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(headerPrefix)+len(c.Name())+1+len(body))
	out = append(out, headerPrefix...)
	out = append(out, c.Name()...)
	out = append(out, '\n')
	return append(out, body...), nil
}

func decodeManifest(data []byte) (*Manifest, error) {
	line, body, ok := bytes.Cut(data, []byte("\n"))
	if !ok || !bytes.HasPrefix(line, []byte(headerPrefix)) {
		return nil, fmt.Errorf("%w: missing manifest header", ErrCorrupt)
	}
	name := string(line[len(headerPrefix):])
	c, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrCorrupt, name)
	}
	var m Manifest
	if err := c.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReadManifest loads and validates the manifest of a snapshot.
func ReadManifest(ctx context.Context, store blobstore.BlobStore, name string) (*Manifest, error) {
	data, err := blobstore.Get(ctx, store, manifestName(name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return decodeManifest(data)
}

// List returns the names of all snapshots in store.
func List(ctx context.Context, store blobstore.BlobStore) ([]string, error) {
	blobs, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, b := range blobs {
		if name, ok := cutManifest(b); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func cutManifest(blob string) (string, bool) {
	suffix := "/" + manifestBlob
	if len(blob) <= len(suffix) || blob[len(blob)-len(suffix):] != suffix {
		return "", false
	}
	return blob[:len(blob)-len(suffix)], true
}

// Delete removes a snapshot. The manifest goes first so a partially deleted
// snapshot is never listed.
func Delete(ctx context.Context, store blobstore.BlobStore, name string) error {
	if err := store.Delete(ctx, manifestName(name)); err != nil {
		return err
	}
	blobs, err := store.List(ctx, name+"/")
	if err != nil {
		return err
	}
	var errs []error
	for _, b := range blobs {
		if err := store.Delete(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
