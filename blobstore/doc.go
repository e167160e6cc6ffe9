// Package blobstore provides the object storage that flash image snapshots
// are written to.
//
// A BlobStore is a flat namespace of immutable blobs. Implementations must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: a directory on the local file system, read through mmap
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with multipart uploads
package blobstore
