package blockfs

// Open flags. The low two bits hold the access mode.
const (
	ORdOnly = 1        // Open a file as read only
	OWrOnly = 2        // Open a file as write only
	ORdWr   = 3        // Open a file as read and write
	OCreat  = 0x0100   // Create a file if it does not exist
	OExcl   = 0x0200   // Fail if a file already exists
	OTrunc  = 0x0400   // Truncate the existing file to zero size
	OAppend = 0x0800   // Move to end of file on every write
	oAccess = 3
	oKnown  = oAccess | OCreat | OExcl | OTrunc | OAppend
)

// Whence values for Seek.
const (
	SeekSet = 0 // Seek relative to an absolute position
	SeekCur = 1 // Seek relative to the current file position
	SeekEnd = 2 // Seek relative to the end of the file
)

func readable(flags int) bool { return flags&ORdOnly != 0 }
func writable(flags int) bool { return flags&OWrOnly != 0 }
