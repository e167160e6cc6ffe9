package blockfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_NextFit(t *testing.T) {
	a := newAllocator(10, 4)
	a.claim(0)
	a.claim(1)

	b, err := a.alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), b)

	b, err = a.alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), b)

	// Freed blocks are not handed out again before release.
	a.free(2)
	for range 6 {
		_, err = a.alloc()
		require.NoError(t, err)
	}
	_, err = a.alloc()
	assert.ErrorIs(t, err, ErrNoSpc)

	a.release()
	b, err = a.alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), b)
	assert.Equal(t, uint32(10), a.inUse())
}

func TestAllocator_WrapsAround(t *testing.T) {
	a := newAllocator(8, 8)
	for i := range uint32(8) {
		a.claim(i)
	}
	a.drop(1)
	a.next = 5

	b, err := a.alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), b)
	assert.False(t, a.claim(1))
}
