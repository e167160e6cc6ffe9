package blockdev

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/flashio/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_CreateErased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")
	img, err := OpenImage(path, testGeom, WithBase(testGeom.BlockSize))
	require.NoError(t, err)
	defer img.Close()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int(testGeom.Size()+int64(testGeom.BlockSize)), len(raw))
	assert.Equal(t, bytes.Repeat([]byte{ErasedByte}, len(raw)), raw)
}

func TestImage_ProgramVisibleThroughAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")
	img, err := OpenImage(path, testGeom)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("0123456789abcdef"), 2)
	require.NoError(t, img.Program(2, 32, data))

	got := make([]byte, len(data))
	require.NoError(t, img.Read(2, 32, got))
	assert.Equal(t, data, got)
	require.NoError(t, img.Sync())
	require.NoError(t, img.Close())

	img, err = OpenImage(path, testGeom)
	require.NoError(t, err)
	defer img.Close()
	got = make([]byte, len(data))
	require.NoError(t, img.Read(2, 32, got))
	assert.Equal(t, data, got)
}

func TestImage_NORSemantics(t *testing.T) {
	img, err := OpenImage(filepath.Join(t.TempDir(), "flash.img"), testGeom)
	require.NoError(t, err)
	defer img.Close()

	first := bytes.Repeat([]byte{0xF0}, 16)
	second := bytes.Repeat([]byte{0x3C}, 16)
	require.NoError(t, img.Program(0, 0, first))
	require.NoError(t, img.Program(0, 0, second))

	got := make([]byte, 16)
	require.NoError(t, img.Read(0, 0, got))
	assert.Equal(t, bytes.Repeat([]byte{0x30}, 16), got)

	require.NoError(t, img.Erase(0))
	require.NoError(t, img.Read(0, 0, got))
	assert.Equal(t, bytes.Repeat([]byte{ErasedByte}, 16), got)
}

func TestImage_Unaligned(t *testing.T) {
	irq := NewCriticalSection()
	img, err := OpenImage(filepath.Join(t.TempDir(), "flash.img"), testGeom, WithInterrupts(irq))
	require.NoError(t, err)
	defer img.Close()

	assert.ErrorIs(t, img.Program(0, 3, bytes.Repeat([]byte{0}, 16)), ErrUnaligned)
	assert.ErrorIs(t, img.Program(0, 0, []byte{0}), ErrUnaligned)
	assert.True(t, irq.Enabled())
}

func TestImage_HostFailureRestoresInterrupts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")
	irq := NewCriticalSection()

	ffs := fs.NewFaultyFS(nil)
	img, err := OpenImage(path, testGeom, WithFileSystem(ffs), WithInterrupts(irq))
	require.NoError(t, err)
	defer img.Close()

	ffs.SetLimit(ffs.Written())
	assert.ErrorIs(t, img.Program(1, 0, bytes.Repeat([]byte{0}, 16)), fs.ErrInjected)
	assert.True(t, irq.Enabled())
	assert.ErrorIs(t, img.Erase(1), fs.ErrInjected)
	assert.True(t, irq.Enabled())
}

func TestOpenImage_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenImage(filepath.Join(dir, "a.img"), Geometry{})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = OpenImage(filepath.Join(dir, "b.img"), testGeom, WithBase(3))
	assert.ErrorIs(t, err, ErrUnaligned)

	_, err = OpenImage(filepath.Join(dir, "missing", "c.img"), testGeom)
	assert.Error(t, err)
}
