package blockfs

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// noBlock marks a hole in a file: the block reads as zeros and has no storage.
const noBlock = ^uint32(0)

// allocator hands out free blocks next-fit through a sliding lookahead window.
//
// Blocks freed by copy-on-write stay in used until release, so they are not
// reused before the metadata commit that stops referencing them.
type allocator struct {
	count   uint32
	window  uint32
	next    uint32
	used    *roaring.Bitmap
	pending *roaring.Bitmap
}

func newAllocator(count, window uint32) *allocator {
	return &allocator{
		count:   count,
		window:  max(window, 1),
		used:    roaring.New(),
		pending: roaring.New(),
	}
}

// claim marks b as in use. It reports false if b was already in use.
func (a *allocator) claim(b uint32) bool {
	return a.used.CheckedAdd(b)
}

func (a *allocator) alloc() (uint32, error) {
	for scanned := uint32(0); scanned < a.count; {
		start := a.next
		end := min(start+a.window, a.count)

		look := roaring.New()
		look.AddRange(uint64(start), uint64(end))
		look.AndNot(a.used)
		if !look.IsEmpty() {
			b := look.Minimum()
			a.used.Add(b)
			a.next = (b + 1) % a.count
			return b, nil
		}

		scanned += end - start
		a.next = end % a.count
	}
	return 0, ErrNoSpc
}

// free schedules b for release at the next commit.
func (a *allocator) free(b uint32) {
	if b != noBlock {
		a.pending.Add(b)
	}
}

// drop returns a block that was never referenced by committed metadata.
func (a *allocator) drop(b uint32) {
	a.used.Remove(b)
}

// release makes every pending block available again.
func (a *allocator) release() {
	a.used.AndNot(a.pending)
	a.pending.Clear()
}

func (a *allocator) inUse() uint32 {
	return uint32(a.used.GetCardinality())
}
