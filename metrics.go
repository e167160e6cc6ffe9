package flashio

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting syscall metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordOpen is called after each open.
	RecordOpen(duration time.Duration, err error)

	// RecordRead is called after each read with the number of bytes transferred.
	RecordRead(n int, duration time.Duration, err error)

	// RecordWrite is called after each write with the number of bytes transferred.
	RecordWrite(n int, duration time.Duration, err error)

	// RecordClose is called after each close.
	RecordClose(duration time.Duration, err error)

	// RecordSeek is called after each seek.
	RecordSeek(duration time.Duration, err error)

	// RecordUnlink is called after each unlink.
	RecordUnlink(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOpen(time.Duration, error)       {}
func (NoopMetricsCollector) RecordRead(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordWrite(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordClose(time.Duration, error)      {}
func (NoopMetricsCollector) RecordSeek(time.Duration, error)       {}
func (NoopMetricsCollector) RecordUnlink(time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	OpenCount       atomic.Int64
	OpenErrors      atomic.Int64
	ReadCount       atomic.Int64
	ReadErrors      atomic.Int64
	ReadBytes       atomic.Int64
	ReadTotalNanos  atomic.Int64
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteBytes      atomic.Int64
	WriteTotalNanos atomic.Int64
	CloseCount      atomic.Int64
	CloseErrors     atomic.Int64
	SeekCount       atomic.Int64
	SeekErrors      atomic.Int64
	UnlinkCount     atomic.Int64
	UnlinkErrors    atomic.Int64
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(_ time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(n int, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadBytes.Add(int64(n))
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(n int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteBytes.Add(int64(n))
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordClose implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClose(_ time.Duration, err error) {
	b.CloseCount.Add(1)
	if err != nil {
		b.CloseErrors.Add(1)
	}
}

// RecordSeek implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSeek(_ time.Duration, err error) {
	b.SeekCount.Add(1)
	if err != nil {
		b.SeekErrors.Add(1)
	}
}

// RecordUnlink implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUnlink(_ time.Duration, err error) {
	b.UnlinkCount.Add(1)
	if err != nil {
		b.UnlinkErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		OpenCount:     b.OpenCount.Load(),
		OpenErrors:    b.OpenErrors.Load(),
		ReadCount:     b.ReadCount.Load(),
		ReadErrors:    b.ReadErrors.Load(),
		ReadBytes:     b.ReadBytes.Load(),
		ReadAvgNanos:  avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		WriteCount:    b.WriteCount.Load(),
		WriteErrors:   b.WriteErrors.Load(),
		WriteBytes:    b.WriteBytes.Load(),
		WriteAvgNanos: avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		CloseCount:    b.CloseCount.Load(),
		CloseErrors:   b.CloseErrors.Load(),
		SeekCount:     b.SeekCount.Load(),
		SeekErrors:    b.SeekErrors.Load(),
		UnlinkCount:   b.UnlinkCount.Load(),
		UnlinkErrors:  b.UnlinkErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	OpenCount     int64
	OpenErrors    int64
	ReadCount     int64
	ReadErrors    int64
	ReadBytes     int64
	ReadAvgNanos  int64
	WriteCount    int64
	WriteErrors   int64
	WriteBytes    int64
	WriteAvgNanos int64
	CloseCount    int64
	CloseErrors   int64
	SeekCount     int64
	SeekErrors    int64
	UnlinkCount   int64
	UnlinkErrors  int64
}
