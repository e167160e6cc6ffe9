package blockfs

import (
	"fmt"
)

// Error is a filesystem error code. Values are negative errno numbers.
type Error int

const (
	ErrIO          Error = -5  // Error during device operation
	ErrCorrupt     Error = -84 // Corrupted
	ErrNoEnt       Error = -2  // No directory entry
	ErrExist       Error = -17 // Entry already exists
	ErrNotDir      Error = -20 // Entry is not a dir
	ErrIsDir       Error = -21 // Entry is a dir
	ErrNotEmpty    Error = -39 // Dir is not empty
	ErrBadF        Error = -9  // Bad file number
	ErrFBig        Error = -27 // File too large
	ErrInval       Error = -22 // Invalid parameter
	ErrNoSpc       Error = -28 // No space left on device
	ErrNoMem       Error = -12 // No more memory available
	ErrNameTooLong Error = -36 // File name too long
)

var errorText = map[Error]string{
	ErrIO:          "device I/O error",
	ErrCorrupt:     "corrupted",
	ErrNoEnt:       "no such file or directory",
	ErrExist:       "file exists",
	ErrNotDir:      "not a directory",
	ErrIsDir:       "is a directory",
	ErrNotEmpty:    "directory not empty",
	ErrBadF:        "bad file number",
	ErrFBig:        "file too large",
	ErrInval:       "invalid argument",
	ErrNoSpc:       "no space left on device",
	ErrNoMem:       "out of memory",
	ErrNameTooLong: "file name too long",
}

func (e Error) Error() string {
	if s, ok := errorText[e]; ok {
		return "blockfs: " + s
	}
	return fmt.Sprintf("blockfs: error %d", int(e))
}

// Code returns the numeric code.
func (e Error) Code() int { return int(e) }

// DeviceError reports a failed block device call.
type DeviceError struct {
	Op    string
	Block uint32
	Err   error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("blockfs: %s block %d: %v", e.Op, e.Block, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is makes every device error match ErrIO.
func (e *DeviceError) Is(target error) bool {
	return target == ErrIO
}

// Code returns ErrIO's code.
func (e *DeviceError) Code() int { return int(ErrIO) }
