package blockfs

import (
	"fmt"
	"testing"

	"github.com/hupe1980/flashio/blockdev"
	"github.com/hupe1980/flashio/testutil"
	"github.com/stretchr/testify/require"
)

// TestRandomOpsMatchModel applies a random sequence of writes, truncations,
// removals and renames, remounting from time to time, and compares the
// result with an in-memory model.
func TestRandomOpsMatchModel(t *testing.T) {
	for _, seed := range []int64{1, 2, 3} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			runModel(t, testutil.NewRNG(seed), 200)
		})
	}
}

func runModel(t *testing.T, rng *testutil.RNG, ops int) {
	dev, err := blockdev.NewMemDevice(blockdev.Geometry{ReadSize: 1, ProgSize: 16, BlockSize: 512, BlockCount: 128})
	require.NoError(t, err)
	cfg := testConfig(dev)
	cfg.BlockCount = 128
	cfg.Compression = CompressionLZ4
	fs := formatAndMount(t, cfg)

	model := testutil.NewModel()
	names := []string{"a", "b", "c", "d"}
	pick := func() string { return names[rng.Intn(len(names))] }

	for i := range ops {
		switch op := rng.Intn(10); {
		case op < 5:
			name, off := pick(), int64(rng.Intn(1500))
			p := rng.Bytes(1 + rng.Intn(400))
			f, err := fs.OpenFile(name, ORdWr|OCreat)
			require.NoError(t, err)
			_, err = f.Seek(off, SeekSet)
			require.NoError(t, err)
			_, err = f.Write(p)
			require.NoError(t, err)
			require.NoError(t, f.Close())
			model.Create(name)
			model.WriteAt(name, off, p)
		case op < 7:
			name, size := pick(), int64(rng.Intn(1800))
			f, err := fs.OpenFile(name, OWrOnly|OCreat)
			require.NoError(t, err)
			require.NoError(t, f.Truncate(size))
			require.NoError(t, f.Close())
			model.Create(name)
			model.Truncate(name, size)
		case op < 8:
			name := pick()
			err := fs.Remove(name)
			if _, ok := model.Content(name); ok {
				require.NoError(t, err)
				model.Remove(name)
			} else {
				require.ErrorIs(t, err, ErrNoEnt)
			}
		case op < 9:
			from, to := pick(), pick()
			err := fs.Rename(from, to)
			if _, ok := model.Content(from); ok {
				require.NoError(t, err)
				model.Rename(from, to)
			} else {
				require.ErrorIs(t, err, ErrNoEnt)
			}
		default:
			require.NoError(t, fs.Unmount())
			fs, err = Mount(cfg)
			require.NoError(t, err, "remount after op %d", i)
		}
	}

	require.NoError(t, fs.Unmount())
	fs, err = Mount(cfg)
	require.NoError(t, err)

	entries, err := fs.ReadDir("/")
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name)
	}
	want := model.Names()
	if len(want) == 0 {
		want = nil
	}
	require.Equal(t, want, got, "%s", model)

	for _, name := range want {
		expected, _ := model.Content(name)
		require.Equal(t, expected, readFile(t, fs, name), "file %s", name)
	}
}
