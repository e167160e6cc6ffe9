// Package blockdev provides the block device adapters used by blockfs.
//
// A [Device] exposes the three operations a flash filesystem needs: read a range
// of a block, program a range of a previously erased block, and erase a whole
// block back to [ErasedByte]. Sync is part of the contract but both built-in
// devices apply writes immediately.
//
// # Implementations
//
//   - [MemDevice]: a heap buffer standing in for flash (tests, host tooling)
//   - [FlashDevice]: real flash accessed through a read-only memory-mapped alias
//     and a [Controller] program/erase pair guarded by [Interrupts]
//   - [FaultyDevice]: wraps another device and injects failures
//
// [ImageFlash] is a [Controller] backed by a flash image file on the host; the
// file is mapped read-only and used as the alias of a [FlashDevice], so host tools
// exercise the exact code path that runs against hardware.
//
// # Preconditions
//
// Out-of-range block numbers and ranges that cross a block boundary are
// programming errors, not recoverable failures. Every implementation panics with
// a [*BoundsError] in that case.
package blockdev
