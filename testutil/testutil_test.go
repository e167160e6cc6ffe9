package testutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRNG_Deterministic(t *testing.T) {
	a, b := NewRNG(4711), NewRNG(4711)
	assert.Equal(t, a.Bytes(64), b.Bytes(64))
	assert.Equal(t, a.Name(8), b.Name(8))

	first := a.Bytes(16)
	a.Reset()
	a.Bytes(64)
	a.Name(8)
	assert.Equal(t, first, a.Bytes(16))
	assert.Equal(t, int64(4711), a.Seed())
}

func TestRNG_Compressible(t *testing.T) {
	rng := NewRNG(1)
	p := rng.Compressible(1000)
	assert.Len(t, p, 1000)
	assert.True(t, bytes.Contains(p, []byte("flash")) || bytes.Contains(p, []byte("block")))
}

func TestModel(t *testing.T) {
	m := NewModel()
	m.Create("a")
	m.WriteAt("a", 3, []byte("xy"))
	got, ok := m.Content("a")
	assert.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 'x', 'y'}, got)

	m.Truncate("a", 2)
	got, _ = m.Content("a")
	assert.Equal(t, []byte{0, 0}, got)
	m.Truncate("a", 4)
	got, _ = m.Content("a")
	assert.Equal(t, []byte{0, 0, 0, 0}, got)

	m.Rename("a", "b")
	_, ok = m.Content("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, m.Names())
	assert.Equal(t, int64(4), m.Size())

	m.Remove("b")
	assert.Empty(t, m.Names())
}
