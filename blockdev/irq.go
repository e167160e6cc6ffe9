package blockdev

import "sync"

// InterruptState is the opaque interrupt-enable state returned by Disable.
type InterruptState uint32

// Interrupts masks and restores interrupts around flash program/erase calls.
type Interrupts interface {
	// Disable masks interrupts and returns the state to hand back to Restore.
	Disable() InterruptState
	// Restore reinstates a state previously returned by Disable.
	Restore(InterruptState)
}

// stateEnabled is the only state a CriticalSection hands out: a Disable that
// returns always found interrupts enabled, since a second Disable blocks.
const stateEnabled InterruptState = 1

// CriticalSection is the host implementation of Interrupts.
//
// A host has no interrupt mask, so a masked window is modelled as holding the
// section's mutex. Devices that share one CriticalSection are serialized: while
// one goroutine is inside a program or erase call no other guarded call on the
// same section can start. NewFlashDevice creates a private section when none is
// given. It is not reentrant; a nested Disable blocks.
type CriticalSection struct {
	mu sync.Mutex
}

// NewCriticalSection returns an enabled critical section.
func NewCriticalSection() *CriticalSection {
	return &CriticalSection{}
}

// Disable enters the critical section.
func (c *CriticalSection) Disable() InterruptState {
	c.mu.Lock()
	return stateEnabled
}

// Restore leaves the critical section. States not returned by Disable are
// ignored.
func (c *CriticalSection) Restore(s InterruptState) {
	if s == stateEnabled {
		c.mu.Unlock()
	}
}

// Enabled reports whether interrupts are currently unmasked.
func (c *CriticalSection) Enabled() bool {
	if c.mu.TryLock() {
		c.mu.Unlock()
		return true
	}
	return false
}
