package blockfs

import (
	"io"
	"testing"

	"github.com/hupe1980/flashio/blockdev"
	"github.com/stretchr/testify/require"
)

func testDevice(t *testing.T) *blockdev.MemDevice {
	t.Helper()
	dev, err := blockdev.NewMemDevice(blockdev.Geometry{ReadSize: 1, ProgSize: 16, BlockSize: 512, BlockCount: 32})
	require.NoError(t, err)
	return dev
}

func testConfig(dev blockdev.Device) Config {
	return Config{
		Device:        dev,
		ReadSize:      1,
		ProgSize:      16,
		BlockSize:     512,
		BlockCount:    32,
		CacheSize:     64,
		LookaheadSize: 8,
		BlockCycles:   4,
	}
}

func formatAndMount(t *testing.T, cfg Config) *FS {
	t.Helper()
	require.NoError(t, Format(cfg))
	fs, err := Mount(cfg)
	require.NoError(t, err)
	return fs
}

func writeFile(t *testing.T, fs *FS, name string, data []byte) {
	t.Helper()
	f, err := fs.OpenFile(name, OWrOnly|OCreat|OTrunc)
	require.NoError(t, err)
	n, err := f.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, f.Close())
}

func readFile(t *testing.T, fs *FS, name string) []byte {
	t.Helper()
	f, err := fs.OpenFile(name, ORdOnly)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}
