// Package hash provides the CRC32-Castagnoli checksum shared by snapshot
// chunks and object storage uploads.
//
//	checksum := hash.CRC32C(data)
package hash
