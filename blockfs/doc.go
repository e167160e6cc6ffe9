// Package blockfs is a small copy-on-write filesystem for flash block devices.
//
// It is configured the way flash filesystems usually are: a geometry (read,
// program and erase sizes, block count, cache and lookahead sizes, erase-cycle
// budget) plus a [blockdev.Device] and optional lock hooks.
//
// # On-disk layout
//
// Blocks 0 and 1 hold two copies of the superblock, written alternately. The
// copy with the highest valid revision wins. It records the geometry and the
// location of the metadata pair, two more blocks that are again written
// alternately and carry the directory table. Each metadata commit bumps the
// revision; every BlockCycles commits the pair moves to freshly allocated
// blocks so that metadata wear is spread over the device.
//
// File data is copy-on-write: a modified block is always written to a new,
// erased block, and the block it replaces is released only after the metadata
// commit that stops referencing it. A power loss therefore leaves either the
// old or the new version of a file, never a mix.
//
// # Errors
//
// Operations return an [Error] code (ErrNoEnt, ErrExist, ...) or a
// [*DeviceError] that matches ErrIO. The codes carry the conventional negative
// errno values of embedded flash filesystems.
package blockfs
