package clone

import (
	"io"
	"sync"
	"time"
)

// ThrottledWriter caps the write rate of the underlying writer.
type ThrottledWriter struct {
	w            io.Writer
	maxSpeedMBps float64
	lastWrite    time.Time
	sleep        func(time.Duration)
	mu           sync.Mutex
}

// NewThrottledWriter wraps w. maxSpeedMBps <= 0 disables throttling.
func NewThrottledWriter(w io.Writer, maxSpeedMBps float64) *ThrottledWriter {
	return &ThrottledWriter{
		w:            w,
		maxSpeedMBps: maxSpeedMBps,
		lastWrite:    time.Now(),
		sleep:        time.Sleep,
	}
}

func (tw *ThrottledWriter) Write(data []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if len(data) == 0 {
		return 0, nil
	}

	if tw.maxSpeedMBps > 0 {
		bytesPerSec := tw.maxSpeedMBps * 1024 * 1024
		expected := time.Duration(float64(len(data)) / bytesPerSec * float64(time.Second))
		if actual := time.Since(tw.lastWrite); actual < expected {
			tw.sleep(expected - actual)
		}
	}

	n, err := tw.w.Write(data)
	tw.lastWrite = time.Now()
	return n, err
}

type syncer interface{ Sync() error }

// Sync flushes the underlying writer when it supports it.
func (tw *ThrottledWriter) Sync() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if s, ok := tw.w.(syncer); ok {
		return s.Sync()
	}
	return nil
}
