// Package image copies whole flash regions to and from object storage.
//
// A snapshot named "v1" is stored as a set of blobs:
//
//	v1/MANIFEST        geometry, chunk list and checksums
//	v1/chunk-00000     compressed frame of the first ChunkBlocks blocks
//	v1/chunk-00001     ...
//
// Chunks whose blocks are all erased are recorded in the manifest but not
// uploaded. The manifest starts with a header line naming the codec that
// encoded the rest of it.
//
// Snapshot and Restore work on raw blocks and do not care what filesystem
// the region holds. Restore verifies every chunk before it erases anything,
// so a corrupt snapshot leaves the device untouched.
//
// A Catalog tracks which snapshot is current for a device, with optimistic
// concurrency: a commit names the version it expects to replace.
package image
