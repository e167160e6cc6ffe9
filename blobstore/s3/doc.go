// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "firmware", "images/")
//
// # Features
//
//   - Range reads
//   - CRC32C checksums on single-request uploads
//   - Multipart uploads for blobs larger than one part
//   - Automatic pagination for listing
package s3
