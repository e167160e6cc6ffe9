// Package fdtable implements a fixed-capacity descriptor table.
//
// Descriptors are small integers. The first Reserved slots are owned by the
// table itself (console streams) and are never handed out by Alloc. Free slots
// are tracked in a bitmap so Alloc always returns the lowest free index, and
// each slot carries a generation counter that changes on release so that a
// handle remembering {fd, generation} can detect reuse.
package fdtable

import (
	"errors"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Reserved is the number of slots at the bottom of the table that Alloc never returns.
const Reserved = 3

var (
	// ErrFull is returned by Alloc when every slot is in use.
	ErrFull = errors.New("fdtable: no free descriptor")
	// ErrBadDescriptor is returned for out-of-range, reserved or free descriptors.
	ErrBadDescriptor = errors.New("fdtable: bad descriptor")
	// ErrStale is returned when a generation no longer matches its slot.
	ErrStale = errors.New("fdtable: stale descriptor")
)

type slot[T any] struct {
	val  T
	open bool
	gen  uint64
}

// Table maps descriptors to values of type T. It is safe for concurrent use.
type Table[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  *roaring.Bitmap
}

// New creates a table with capacity slots. The reserved slots hold the given
// values and are permanently open.
func New[T any](capacity int, reserved [Reserved]T) *Table[T] {
	capacity = max(capacity, Reserved)
	t := &Table[T]{
		slots: make([]slot[T], capacity),
		free:  roaring.New(),
	}
	for i, v := range reserved {
		t.slots[i] = slot[T]{val: v, open: true}
	}
	t.free.AddRange(Reserved, uint64(capacity))
	return t
}

// Cap returns the total number of slots, reserved ones included.
func (t *Table[T]) Cap() int { return len(t.slots) }

// Alloc stores v in the lowest free slot and returns its descriptor and generation.
func (t *Table[T]) Alloc(v T) (int, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.free.IsEmpty() {
		return -1, 0, ErrFull
	}
	fd := int(t.free.Minimum())
	t.free.Remove(uint32(fd))
	s := &t.slots[fd]
	s.val, s.open = v, true
	return fd, s.gen, nil
}

// Get returns the value stored at fd, reserved slots included.
func (t *Table[T]) Get(fd int) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if fd < 0 || fd >= len(t.slots) || !t.slots[fd].open {
		return zero, ErrBadDescriptor
	}
	return t.slots[fd].val, nil
}

// GetGen is Get for a handle that remembers the generation it was issued with.
func (t *Table[T]) GetGen(fd int, gen uint64) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if fd < Reserved || fd >= len(t.slots) {
		return zero, ErrBadDescriptor
	}
	s := &t.slots[fd]
	if s.gen != gen {
		return zero, ErrStale
	}
	if !s.open {
		return zero, ErrBadDescriptor
	}
	return s.val, nil
}

// Set replaces the value of an allocated slot issued with gen.
func (t *Table[T]) Set(fd int, gen uint64, v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < Reserved || fd >= len(t.slots) {
		return ErrBadDescriptor
	}
	s := &t.slots[fd]
	if s.gen != gen {
		return ErrStale
	}
	if !s.open {
		return ErrBadDescriptor
	}
	s.val = v
	return nil
}

// Release frees fd and returns the value it held. Reserved slots cannot be released.
func (t *Table[T]) Release(fd int) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if fd < Reserved || fd >= len(t.slots) || !t.slots[fd].open {
		return zero, ErrBadDescriptor
	}
	return t.release(fd), nil
}

// ReleaseGen is Release for a handle that remembers its generation.
func (t *Table[T]) ReleaseGen(fd int, gen uint64) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if fd < Reserved || fd >= len(t.slots) {
		return zero, ErrBadDescriptor
	}
	if t.slots[fd].gen != gen {
		return zero, ErrStale
	}
	if !t.slots[fd].open {
		return zero, ErrBadDescriptor
	}
	return t.release(fd), nil
}

func (t *Table[T]) release(fd int) T {
	var zero T
	s := &t.slots[fd]
	v := s.val
	s.val, s.open = zero, false
	s.gen++
	t.free.Add(uint32(fd))
	return v
}

// Gen returns the current generation of fd.
func (t *Table[T]) Gen(fd int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.slots) {
		return 0
	}
	return t.slots[fd].gen
}

// InUse returns the number of allocated slots above the reserved ones.
func (t *Table[T]) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots) - Reserved - int(t.free.GetCardinality())
}

// Open returns the allocated descriptors in ascending order.
func (t *Table[T]) Open() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fds []int
	for fd := Reserved; fd < len(t.slots); fd++ {
		if t.slots[fd].open {
			fds = append(fds, fd)
		}
	}
	return fds
}
