package image

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/flashio/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCatalog(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	_, err := cat.Latest(ctx, "pico")
	assert.ErrorIs(t, err, ErrNoEntry)

	e, err := cat.Commit(ctx, "pico", 0, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Version)

	_, err = cat.Commit(ctx, "pico", 0, "s2")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = cat.Commit(ctx, "pico", 1, "s2")
	require.NoError(t, err)

	latest, err := cat.Latest(ctx, "pico")
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.Snapshot)
	assert.Equal(t, uint64(2), latest.Version)

	hist, err := cat.History(ctx, "pico")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "s2", hist[0].Snapshot)
	assert.Equal(t, "s1", hist[1].Snapshot)

	hist, err = cat.History(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestMemoryCatalog_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cat.Commit(ctx, "pico", 0, "s"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryCatalog_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cat := NewMemoryCatalog()
	_, err := cat.Commit(ctx, "pico", 0, "s")
	assert.ErrorIs(t, err, context.Canceled)
}

// racingCatalog lets another writer commit between Latest and Commit.
type racingCatalog struct {
	*MemoryCatalog
	once sync.Once
}

func (c *racingCatalog) Latest(ctx context.Context, device string) (Entry, error) {
	e, err := c.MemoryCatalog.Latest(ctx, device)
	c.once.Do(func() {
		_, _ = c.MemoryCatalog.Commit(ctx, device, 0, "other")
	})
	return e, err
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	cat := NewMemoryCatalog()
	dev := newDevice(t)
	fill(t, dev, 1, 0)

	e1, err := Publish(ctx, cat, "pico", dev, testGeom, store)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.Version)

	fill(t, dev, 2, 10)
	e2, err := Publish(ctx, cat, "pico", dev, testGeom, store)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e2.Version)
	assert.NotEqual(t, e1.Snapshot, e2.Snapshot)

	names, err := List(ctx, store)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{e1.Snapshot, e2.Snapshot}, names)

	restored := newDevice(t)
	_, err = Restore(ctx, store, e2.Snapshot, restored, testGeom)
	require.NoError(t, err)
	assert.Equal(t, dev.Bytes(), restored.Bytes())
}

func TestPublish_ConflictDeletesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	cat := &racingCatalog{MemoryCatalog: NewMemoryCatalog()}

	_, err := Publish(ctx, cat, "pico", newDevice(t), testGeom, store)
	assert.ErrorIs(t, err, ErrConflict)

	names, err := List(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, names)
}
