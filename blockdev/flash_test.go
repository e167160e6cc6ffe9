package blockdev

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memController emulates a flash chip over a byte slice that doubles as the alias.
type memController struct {
	t     *testing.T
	mem   []byte
	irq   *CriticalSection
	err   error
	boom  bool
	calls int
}

func (c *memController) ProgramPage(addr uint32, p []byte) error {
	c.calls++
	assert.False(c.t, c.irq.Enabled(), "program must run with interrupts masked")
	if c.boom {
		panic("controller fault")
	}
	if c.err != nil {
		return c.err
	}
	for i, b := range p {
		c.mem[addr+uint32(i)] &= b
	}
	return nil
}

func (c *memController) EraseSector(addr uint32) error {
	c.calls++
	assert.False(c.t, c.irq.Enabled(), "erase must run with interrupts masked")
	if c.err != nil {
		return c.err
	}
	copy(c.mem[addr:addr+testGeom.BlockSize], bytes.Repeat([]byte{ErasedByte}, int(testGeom.BlockSize)))
	return nil
}

func newTestFlash(t *testing.T, base uint32) (*FlashDevice, *memController) {
	t.Helper()
	irq := NewCriticalSection()
	mem := bytes.Repeat([]byte{ErasedByte}, int(base)+int(testGeom.Size()))
	ctrl := &memController{t: t, mem: mem, irq: irq}
	d, err := NewFlashDevice(testGeom, base, mem, ctrl, irq)
	require.NoError(t, err)
	return d, ctrl
}

func TestFlashDevice_RoundTrip(t *testing.T) {
	d, ctrl := newTestFlash(t, 2*testGeom.BlockSize)

	data := bytes.Repeat([]byte{0xA5}, 32)
	require.NoError(t, d.Program(1, 16, data))
	assert.Equal(t, 1, ctrl.calls)

	got := make([]byte, len(data))
	require.NoError(t, d.Read(1, 16, got))
	assert.Equal(t, data, got)

	// The region starts at base: the bytes before it were not touched.
	assert.Equal(t, bytes.Repeat([]byte{ErasedByte}, int(2*testGeom.BlockSize)), ctrl.mem[:2*testGeom.BlockSize])
	assert.Equal(t, data, ctrl.mem[3*testGeom.BlockSize+16:3*testGeom.BlockSize+48])
}

func TestFlashDevice_EraseReadsErased(t *testing.T) {
	d, _ := newTestFlash(t, 0)

	require.NoError(t, d.Program(4, 0, make([]byte, testGeom.BlockSize)))
	require.NoError(t, d.Erase(4))

	got := make([]byte, testGeom.BlockSize)
	require.NoError(t, d.Read(4, 0, got))
	assert.Equal(t, bytes.Repeat([]byte{ErasedByte}, int(testGeom.BlockSize)), got)
	assert.NoError(t, d.Sync())
}

func TestFlashDevice_InterruptsRestored(t *testing.T) {
	d, ctrl := newTestFlash(t, 0)
	irq := ctrl.irq

	require.True(t, irq.Enabled())
	require.NoError(t, d.Program(0, 0, []byte{0x01}))
	assert.True(t, irq.Enabled())
	require.NoError(t, d.Erase(0))
	assert.True(t, irq.Enabled())

	ctrl.err = errors.New("program failed")
	assert.ErrorIs(t, d.Program(0, 0, []byte{0x01}), ctrl.err)
	assert.True(t, irq.Enabled())
	assert.ErrorIs(t, d.Erase(1), ctrl.err)
	assert.True(t, irq.Enabled())

	ctrl.err = nil
	ctrl.boom = true
	assert.Panics(t, func() { _ = d.Program(0, 0, []byte{0x01}) })
	assert.True(t, irq.Enabled())
}

func TestFlashDevice_BoundsCheckedBeforeMasking(t *testing.T) {
	d, ctrl := newTestFlash(t, 0)

	assert.Panics(t, func() { _ = d.Program(testGeom.BlockCount, 0, []byte{1}) })
	assert.Panics(t, func() { _ = d.Erase(testGeom.BlockCount) })
	assert.Panics(t, func() { _ = d.Read(0, testGeom.BlockSize-1, []byte{1, 2}) })
	assert.Zero(t, ctrl.calls)
	assert.True(t, ctrl.irq.Enabled())
}

func TestNewFlashDevice_Errors(t *testing.T) {
	mem := make([]byte, testGeom.Size())

	_, err := NewFlashDevice(testGeom, 0, mem, nil, nil)
	assert.Error(t, err)

	_, err = NewFlashDevice(testGeom, 1, mem, &memController{}, nil)
	assert.ErrorIs(t, err, ErrRegionTooSmall)

	_, err = NewFlashDevice(Geometry{}, 0, mem, &memController{}, nil)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

// blockingController parks inside EraseSector until released.
type blockingController struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingController) ProgramPage(uint32, []byte) error { return nil }

func (c *blockingController) EraseSector(uint32) error {
	c.entered <- struct{}{}
	<-c.release
	return nil
}

func TestCriticalSection_SharedSerializesDevices(t *testing.T) {
	irq := NewCriticalSection()
	mem := bytes.Repeat([]byte{ErasedByte}, int(testGeom.Size()))

	first := &blockingController{entered: make(chan struct{}, 1), release: make(chan struct{})}
	second := &blockingController{entered: make(chan struct{}, 1), release: make(chan struct{})}
	a, err := NewFlashDevice(testGeom, 0, mem, first, irq)
	require.NoError(t, err)
	b, err := NewFlashDevice(testGeom, 0, mem, second, irq)
	require.NoError(t, err)

	done := make(chan error, 2)
	go func() { done <- a.Erase(0) }()
	<-first.entered
	assert.False(t, irq.Enabled())

	go func() { done <- b.Erase(1) }()
	select {
	case <-second.entered:
		t.Fatal("second device entered the masked window of the first")
	case <-time.After(20 * time.Millisecond):
	}

	close(first.release)
	<-second.entered
	close(second.release)
	require.NoError(t, <-done)
	require.NoError(t, <-done)
	assert.True(t, irq.Enabled())
}

func TestCriticalSection_IgnoresForeignState(t *testing.T) {
	irq := NewCriticalSection()
	irq.Restore(0)
	assert.True(t, irq.Enabled())

	s := irq.Disable()
	assert.False(t, irq.Enabled())
	irq.Restore(s)
	assert.True(t, irq.Enabled())
}
