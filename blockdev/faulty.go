package blockdev

import (
	"errors"
	"sync"
)

// ErrInjected is the error returned by FaultyDevice for injected failures.
var ErrInjected = errors.New("blockdev: injected fault")

// Stats counts the calls that reached a FaultyDevice.
type Stats struct {
	Reads    int64
	Programs int64
	Erases   int64
	Syncs    int64
	// Programmed is the number of bytes successfully programmed.
	Programmed int64
}

// FaultyDevice wraps a Device and injects failures.
type FaultyDevice struct {
	dev Device

	mu          sync.Mutex
	budget      int64 // remaining program bytes, -1 for unlimited
	badBlocks   map[uint32]struct{}
	failSync    bool
	failReadsOf map[uint32]struct{}
	stats       Stats
}

// NewFaultyDevice wraps dev with no faults configured.
func NewFaultyDevice(dev Device) *FaultyDevice {
	return &FaultyDevice{
		dev:         dev,
		budget:      -1,
		badBlocks:   make(map[uint32]struct{}),
		failReadsOf: make(map[uint32]struct{}),
	}
}

// FailProgramAfter makes programs fail once n more bytes have been programmed.
// A negative n removes the limit.
func (d *FaultyDevice) FailProgramAfter(n int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.budget = n
}

// FailErase makes erases of the given blocks fail.
func (d *FaultyDevice) FailErase(blocks ...uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range blocks {
		d.badBlocks[b] = struct{}{}
	}
}

// FailRead makes reads of the given blocks fail.
func (d *FaultyDevice) FailRead(blocks ...uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range blocks {
		d.failReadsOf[b] = struct{}{}
	}
}

// FailSync toggles sync failures.
func (d *FaultyDevice) FailSync(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSync = fail
}

// Reset clears every configured fault. Counters are kept.
func (d *FaultyDevice) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.budget = -1
	clear(d.badBlocks)
	clear(d.failReadsOf)
	d.failSync = false
}

// Stats returns a snapshot of the call counters.
func (d *FaultyDevice) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *FaultyDevice) Read(block, off uint32, p []byte) error {
	d.mu.Lock()
	d.stats.Reads++
	_, bad := d.failReadsOf[block]
	d.mu.Unlock()
	if bad {
		return ErrInjected
	}
	return d.dev.Read(block, off, p)
}

func (d *FaultyDevice) Program(block, off uint32, p []byte) error {
	d.mu.Lock()
	d.stats.Programs++
	if d.budget >= 0 {
		if int64(len(p)) > d.budget {
			d.budget = 0
			d.mu.Unlock()
			return ErrInjected
		}
		d.budget -= int64(len(p))
	}
	d.mu.Unlock()

	if err := d.dev.Program(block, off, p); err != nil {
		return err
	}

	d.mu.Lock()
	d.stats.Programmed += int64(len(p))
	d.mu.Unlock()
	return nil
}

func (d *FaultyDevice) Erase(block uint32) error {
	d.mu.Lock()
	d.stats.Erases++
	_, bad := d.badBlocks[block]
	d.mu.Unlock()
	if bad {
		return ErrInjected
	}
	return d.dev.Erase(block)
}

func (d *FaultyDevice) Sync() error {
	d.mu.Lock()
	d.stats.Syncs++
	fail := d.failSync
	d.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return d.dev.Sync()
}
