package blockfs

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/hupe1980/flashio/blockdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	dev := testDevice(t)
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil device", func(c *Config) { c.Device = nil }},
		{"zero prog", func(c *Config) { c.ProgSize = 0 }},
		{"cache not multiple of prog", func(c *Config) { c.CacheSize = 40 }},
		{"block not multiple of cache", func(c *Config) { c.CacheSize = 48; c.ProgSize = 16; c.ReadSize = 16 }},
		{"lookahead not multiple of 8", func(c *Config) { c.LookaheadSize = 12 }},
		{"too few blocks", func(c *Config) { c.BlockCount = 3 }},
		{"zero cycles", func(c *Config) { c.BlockCycles = 0 }},
		{"lock without unlock", func(c *Config) { c.Lock = func() {} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(dev)
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInval)
		})
	}

	cfg := testConfig(dev)
	cfg.BlockCycles = -1
	assert.NoError(t, cfg.Validate())
}

func TestMount_Unformatted(t *testing.T) {
	_, err := Mount(testConfig(testDevice(t)))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMount_GeometryMismatch(t *testing.T) {
	dev := testDevice(t)
	require.NoError(t, Format(testConfig(dev)))

	cfg := testConfig(dev)
	cfg.BlockCount = 16
	_, err := Mount(cfg)
	assert.ErrorIs(t, err, ErrInval)
}

func TestFormat_WipesPreviousContents(t *testing.T) {
	cfg := testConfig(testDevice(t))
	fs := formatAndMount(t, cfg)
	writeFile(t, fs, "keep", []byte("data"))
	require.NoError(t, fs.Unmount())

	fs, err := Mount(cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), readFile(t, fs, "keep"))
	require.NoError(t, fs.Unmount())

	fs = formatAndMount(t, cfg)
	_, err = fs.Stat("keep")
	assert.ErrorIs(t, err, ErrNoEnt)
}

func TestPersistenceAcrossMounts(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			cfg := testConfig(testDevice(t))
			cfg.Compression = c
			fs := formatAndMount(t, cfg)

			require.NoError(t, fs.Mkdir("logs"))
			files := map[string][]byte{
				"a":            []byte("hi"),
				"logs/boot":    bytes.Repeat([]byte("boot ok\n"), 100),
				"logs/empty":   nil,
				"/logs/../big": bytes.Repeat([]byte{0x5A}, 1500),
			}
			for name, data := range files {
				writeFile(t, fs, name, data)
			}
			require.NoError(t, fs.Unmount())

			fs, err := Mount(cfg)
			require.NoError(t, err)
			assert.Equal(t, []byte("hi"), readFile(t, fs, "/a"))
			assert.Equal(t, files["logs/boot"], readFile(t, fs, "logs/boot"))
			assert.Empty(t, readFile(t, fs, "logs/empty"))
			assert.Equal(t, files["/logs/../big"], readFile(t, fs, "big"))

			info, err := fs.Stat("big")
			require.NoError(t, err)
			assert.Equal(t, Info{Name: "big", Size: 1500}, info)
		})
	}
}

func TestMkdirReadDir(t *testing.T) {
	fs := formatAndMount(t, testConfig(testDevice(t)))

	require.NoError(t, fs.Mkdir("etc"))
	assert.ErrorIs(t, fs.Mkdir("etc"), ErrExist)
	assert.ErrorIs(t, fs.Mkdir("/"), ErrExist)
	assert.ErrorIs(t, fs.Mkdir("missing/sub"), ErrNoEnt)
	writeFile(t, fs, "etc/hosts", []byte("localhost"))
	writeFile(t, fs, "readme", []byte("x"))
	assert.ErrorIs(t, fs.Mkdir("readme/sub"), ErrNotDir)

	root, err := fs.ReadDir("/")
	require.NoError(t, err)
	assert.Equal(t, []Info{{Name: "etc", Dir: true}, {Name: "readme", Size: 1}}, root)

	etc, err := fs.ReadDir("etc")
	require.NoError(t, err)
	assert.Equal(t, []Info{{Name: "hosts", Size: 9}}, etc)

	_, err = fs.ReadDir("readme")
	assert.ErrorIs(t, err, ErrNotDir)
	_, err = fs.ReadDir("nope")
	assert.ErrorIs(t, err, ErrNoEnt)

	info, err := fs.Stat("")
	require.NoError(t, err)
	assert.True(t, info.Dir)

	_, err = fs.Stat(string(bytes.Repeat([]byte("n"), DefaultNameMax+1)))
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestRemove(t *testing.T) {
	fs := formatAndMount(t, testConfig(testDevice(t)))
	base := fs.Usage().UsedBlocks

	require.NoError(t, fs.Mkdir("d"))
	writeFile(t, fs, "d/f", bytes.Repeat([]byte{1}, 1024))
	assert.Equal(t, base+2, fs.Usage().UsedBlocks)

	assert.ErrorIs(t, fs.Remove("d"), ErrNotEmpty)
	assert.ErrorIs(t, fs.Remove("nope"), ErrNoEnt)
	assert.ErrorIs(t, fs.Remove("/"), ErrInval)

	require.NoError(t, fs.Remove("d/f"))
	require.NoError(t, fs.Remove("d"))
	assert.Equal(t, base, fs.Usage().UsedBlocks)

	entries, err := fs.ReadDir("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveOpenFile(t *testing.T) {
	fs := formatAndMount(t, testConfig(testDevice(t)))
	base := fs.Usage().UsedBlocks
	writeFile(t, fs, "f", []byte("still here"))

	f, err := fs.OpenFile("f", ORdOnly)
	require.NoError(t, err)
	require.NoError(t, fs.Remove("f"))

	_, err = fs.Stat("f")
	assert.ErrorIs(t, err, ErrNoEnt)

	buf := make([]byte, 32)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "still here", string(buf[:n]))
	require.NoError(t, f.Close())

	// Freed blocks come back with the next commit.
	require.NoError(t, fs.Mkdir("x"))
	assert.Equal(t, base, fs.Usage().UsedBlocks)
}

func TestRename(t *testing.T) {
	cfg := testConfig(testDevice(t))
	fs := formatAndMount(t, cfg)

	require.NoError(t, fs.Mkdir("a"))
	require.NoError(t, fs.Mkdir("a/b"))
	writeFile(t, fs, "a/b/c", []byte("deep"))
	writeFile(t, fs, "file", []byte("one"))
	writeFile(t, fs, "other", []byte("two"))

	require.NoError(t, fs.Rename("a", "z"))
	assert.Equal(t, []byte("deep"), readFile(t, fs, "z/b/c"))
	_, err := fs.Stat("a/b/c")
	assert.ErrorIs(t, err, ErrNoEnt)

	require.NoError(t, fs.Rename("file", "other"))
	assert.Equal(t, []byte("one"), readFile(t, fs, "other"))

	assert.ErrorIs(t, fs.Rename("missing", "x"), ErrNoEnt)
	assert.ErrorIs(t, fs.Rename("z", "z/b/inside"), ErrInval)
	assert.ErrorIs(t, fs.Rename("other", "z"), ErrIsDir)
	assert.ErrorIs(t, fs.Rename("z", "other"), ErrNotDir)
	require.NoError(t, fs.Mkdir("empty"))
	assert.ErrorIs(t, fs.Rename("empty", "z"), ErrNotEmpty)
	require.NoError(t, fs.Rename("z/b", "empty"))
	require.NoError(t, fs.Rename("other", "other"))
	require.NoError(t, fs.Unmount())

	fs, err = Mount(cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte("deep"), readFile(t, fs, "empty/c"))
	assert.Equal(t, []byte("one"), readFile(t, fs, "other"))
}

func TestMetadataRelocation(t *testing.T) {
	cfg := testConfig(testDevice(t))
	fs := formatAndMount(t, cfg)
	start := fs.super.pair

	for i := range 20 {
		require.NoError(t, fs.Mkdir(fmt.Sprintf("d%02d", i)))
	}
	assert.NotEqual(t, start, fs.super.pair)
	assert.Equal(t, uint32(4), fs.Usage().UsedBlocks)
	require.NoError(t, fs.Unmount())

	fs, err := Mount(cfg)
	require.NoError(t, err)
	entries, err := fs.ReadDir("")
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestNoSpace(t *testing.T) {
	cfg := testConfig(testDevice(t))
	cfg.BlockCycles = -1
	fs := formatAndMount(t, cfg)

	f, err := fs.OpenFile("fill", OWrOnly|OCreat)
	require.NoError(t, err)

	chunk := bytes.Repeat([]byte{0xEE}, 512)
	var werr error
	for range 40 {
		if _, werr = f.Write(chunk); werr != nil {
			break
		}
	}
	if werr == nil {
		werr = f.Sync()
	}
	assert.ErrorIs(t, werr, ErrNoSpc)
	assert.ErrorIs(t, f.Close(), ErrNoSpc)
	assert.Equal(t, cfg.BlockCount, fs.Usage().UsedBlocks)

	require.NoError(t, fs.Remove("fill"))
	writeFile(t, fs, "after", []byte("room again"))
	assert.Equal(t, []byte("room again"), readFile(t, fs, "after"))
}

func TestCopyOnWriteSurvivesDeviceFailure(t *testing.T) {
	faulty := blockdev.NewFaultyDevice(testDevice(t))
	cfg := testConfig(faulty)
	fs := formatAndMount(t, cfg)
	writeFile(t, fs, "cfg", []byte("version=1"))

	faulty.FailProgramAfter(0)
	f, err := fs.OpenFile("cfg", OWrOnly|OTrunc)
	require.NoError(t, err)
	_, err = f.Write([]byte("version=2"))
	require.NoError(t, err)

	err = f.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, blockdev.ErrInjected)
	var derr *DeviceError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "program", derr.Op)

	faulty.Reset()
	fs, err = Mount(cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte("version=1"), readFile(t, fs, "cfg"))
}

func TestLockHooks(t *testing.T) {
	cfg := testConfig(testDevice(t))
	var locks, unlocks int
	cfg.Lock = func() { locks++ }
	cfg.Unlock = func() { unlocks++ }

	fs := formatAndMount(t, cfg)
	writeFile(t, fs, "f", []byte("x"))
	_, _ = fs.Stat("f")

	assert.Positive(t, locks)
	assert.Equal(t, locks, unlocks)
}

func TestUnmounted(t *testing.T) {
	fs := formatAndMount(t, testConfig(testDevice(t)))
	require.NoError(t, fs.Unmount())

	assert.ErrorIs(t, fs.Unmount(), ErrInval)
	_, err := fs.OpenFile("f", ORdWr|OCreat)
	assert.ErrorIs(t, err, ErrInval)
	assert.ErrorIs(t, fs.Mkdir("d"), ErrInval)
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "blockfs: no such file or directory", ErrNoEnt.Error())
	assert.Equal(t, -2, ErrNoEnt.Code())
	assert.Equal(t, "blockfs: error -1", Error(-1).Error())
}
