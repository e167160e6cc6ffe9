package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "images")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "flash.img")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(4096))
	_, err = f.WriteAt([]byte("page"), 256)
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())
	assert.NotZero(t, f.Fd())

	buf := make([]byte, 4)
	_, err = f.ReadAt(buf, 256)
	require.NoError(t, err)
	assert.Equal(t, "page", string(buf))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())
	assert.NoError(t, f.Close())

	newPath := filepath.Join(dir, "flash.bak")
	assert.NoError(t, lfs.Rename(fpath, newPath))
	_, err = lfs.Stat(newPath)
	assert.NoError(t, err)

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_GlobalLimit(t *testing.T) {
	ffs := NewFaultyFS(LocalFS{})
	ffs.SetLimit(5)

	fpath := filepath.Join(t.TempDir(), "faulty.img")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.WriteAt([]byte("!"), 5)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(5), ffs.Written())
}

func TestFaultyFS_Rules(t *testing.T) {
	custom := errors.New("disk on fire")
	ffs := NewFaultyFS(nil)
	ffs.AddRule("bad", Fault{FailAfterBytes: 2, FailOnSync: true, FailOnClose: true, Err: custom})

	tmp := t.TempDir()
	bad, err := ffs.OpenFile(filepath.Join(tmp, "bad.img"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = bad.WriteAt([]byte("ab"), 0)
	assert.NoError(t, err)
	_, err = bad.WriteAt([]byte("c"), 2)
	assert.ErrorIs(t, err, custom)
	assert.ErrorIs(t, bad.Sync(), custom)
	assert.ErrorIs(t, bad.Close(), custom)

	good, err := ffs.OpenFile(filepath.Join(tmp, "good.img"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = good.Write([]byte("abcdef"))
	assert.NoError(t, err)
	assert.NoError(t, good.Sync())
	assert.NoError(t, good.Close())

	assert.NoError(t, ffs.MkdirAll(filepath.Join(tmp, "sub"), 0o755))
	assert.NoError(t, ffs.Rename(filepath.Join(tmp, "good.img"), filepath.Join(tmp, "sub", "good.img")))
	_, err = ffs.Stat(filepath.Join(tmp, "sub", "good.img"))
	assert.NoError(t, err)
	assert.NoError(t, ffs.Remove(filepath.Join(tmp, "sub", "good.img")))
}
