// Package fs provides the host filesystem abstraction under flash image files.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional read/write, sync and truncate
//   - [FileSystem]: filesystem operations (open, remove, stat, ...)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects I/O errors
//
// # Usage
//
// Production code uses fs.Default:
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests inject [FaultyFS] to simulate a host disk that fails mid-program:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.SetLimit(4096) // fail after one sector has been written
//
// # Design Notes
//
// No context.Context parameters: image file operations are local and not
// interruptible at the syscall level.
package fs
