package flashio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMountFailure is matched by every error returned from Mount.
	ErrMountFailure = errors.New("mount failure")
	// ErrBadDescriptor is returned for descriptors that are free, out of range,
	// or used in a direction their stream does not support.
	ErrBadDescriptor = errors.New("bad descriptor")
	// ErrNoFreeDescriptor is returned by Open when every slot is in use.
	ErrNoFreeDescriptor = errors.New("no free descriptor")
	// ErrAccessDenied is returned by Open when the filesystem refuses the file.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidArgument is returned for unknown flags or seek origins.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIOFailure is returned when the filesystem fails a read, write, seek,
	// close, sync or unlink.
	ErrIOFailure = errors.New("I/O failure")
	// ErrStaleDescriptor is returned by a File whose descriptor was closed and
	// possibly reused.
	ErrStaleDescriptor = errors.New("stale descriptor")
	// ErrNotMounted is returned after Unmount.
	ErrNotMounted = errors.New("not mounted")
)

// PathError records a failed operation together with its kind and cause.
//
// errors.Is matches both Kind and the wrapped cause.
type PathError struct {
	Op   string
	Path string
	FD   int
	Kind error
	Err  error
}

func (e *PathError) Error() string {
	var b strings.Builder
	b.WriteString("flashio: ")
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.FD >= 0 {
		fmt.Fprintf(&b, " fd %d", e.FD)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *PathError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Code returns the filesystem error code behind the failure, or 0 if the cause
// is not a filesystem error.
func (e *PathError) Code() int {
	return fsCode(e.Err)
}

// MountError is returned by Mount. It matches ErrMountFailure.
type MountError struct {
	Err error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("flashio: mount: %v", e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

func (e *MountError) Is(target error) bool { return target == ErrMountFailure }

// Code returns the filesystem error code that made the mount fail.
func (e *MountError) Code() int { return fsCode(e.Err) }

func fsCode(err error) int {
	var code interface{ Code() int }
	if errors.As(err, &code) {
		return code.Code()
	}
	return 0
}

func pathErr(op, path string, kind, err error) error {
	return &PathError{Op: op, Path: path, FD: -1, Kind: kind, Err: err}
}

func fdErr(op string, fd int, kind, err error) error {
	return &PathError{Op: op, FD: fd, Kind: kind, Err: err}
}

// translateError classifies a stream failure.
func translateError(op string, fd int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errWrongDirection):
		return fdErr(op, fd, ErrBadDescriptor, err)
	case errors.Is(err, errNotSeekable):
		return fdErr(op, fd, ErrInvalidArgument, err)
	default:
		return fdErr(op, fd, ErrIOFailure, err)
	}
}
