// Package mmap provides read-only memory mappings of flash image files.
//
// # Overview
//
// On a microcontroller the flash chip is visible through a read-only,
// non-cached memory window, so the filesystem reads storage with plain memory
// loads. Host tools reproduce that window by mapping the flash image file
// read-only and shared: writes performed through the file descriptor become
// visible through the mapping, while the mapping itself can never be written.
//
// # Usage
//
//	f, _ := os.OpenFile("flash.img", os.O_RDWR, 0)
//	m, err := mmap.Map(f, size)
//	if err != nil { ... }
//	defer m.Close()
//
//	alias := m.Bytes()              // read-only view of the whole image
//	sector, _ := m.Region(off, 4096) // view of a single erase sector
//	m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (Advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers must not touch
// the slice returned by Bytes after Close returns.
package mmap
