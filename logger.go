package flashio

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with the field names used for filesystem and
// descriptor events.
type Logger struct {
	*slog.Logger
}

// NewLogger returns a Logger writing to handler. A nil handler logs text to
// stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		return NewTextLogger(nil, slog.LevelInfo)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger logs JSON lines at level or above to w (stderr if nil).
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(orStderr(w), &slog.HandlerOptions{Level: level}))
}

// NewTextLogger logs key=value lines at level or above to w (stderr if nil).
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(orStderr(w), &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

func orStderr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

// WithFD adds a descriptor field to the logger. LogClose and LogIO expect a
// logger scoped this way.
func (l *Logger) WithFD(fd int) *Logger {
	return &Logger{
		Logger: l.Logger.With("fd", fd),
	}
}

// WithGeometry adds the block size and count to the logger.
func (l *Logger) WithGeometry(g Geometry) *Logger {
	return &Logger{
		Logger: l.Logger.With("block_size", g.BlockSize, "block_count", g.BlockCount),
	}
}

// LogFormat logs a format operation.
func (l *Logger) LogFormat(err error) {
	if err != nil {
		l.Error("format failed", "error", err)
	} else {
		l.Info("filesystem formatted")
	}
}

// LogMount logs a mount operation.
func (l *Logger) LogMount(capacity int, err error) {
	if err != nil {
		l.Error("mount failed", "error", err)
	} else {
		l.Info("filesystem mounted", "capacity", capacity)
	}
}

// LogOpen logs an open operation.
func (l *Logger) LogOpen(path string, flags, fd int, err error) {
	if err != nil {
		l.Warn("open failed",
			"path", path,
			"flags", flags,
			"error", err,
		)
	} else {
		l.Debug("open completed",
			"path", path,
			"flags", flags,
			"fd", fd,
		)
	}
}

// LogClose logs a close operation.
func (l *Logger) LogClose(err error) {
	if err != nil {
		l.Warn("close failed", "error", err)
	} else {
		l.Debug("close completed")
	}
}

// LogIO logs a failed read, write, seek or sync. Successful transfers are not
// logged to keep console traffic out of the log.
func (l *Logger) LogIO(op string, err error) {
	if err != nil {
		l.Error(op+" failed", "error", err)
	}
}

// LogPath logs a path operation such as unlink, mkdir or rename.
func (l *Logger) LogPath(op, path string, err error) {
	if err != nil {
		l.Warn(op+" failed", "path", path, "error", err)
	} else {
		l.Debug(op+" completed", "path", path)
	}
}

// LogUnmount logs an unmount and the number of descriptors it closed.
func (l *Logger) LogUnmount(closed int, err error) {
	if err != nil {
		l.Error("unmount failed", "closed", closed, "error", err)
	} else {
		l.Info("filesystem unmounted", "closed", closed)
	}
}
