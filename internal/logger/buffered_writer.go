package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the write buffer size for log files
	DefaultBufferSize = 32 * 1024

	// DefaultFlushInterval is how often buffered log lines reach the file
	DefaultFlushInterval = 5 * time.Second
)

var errWriterClosed = errors.New("log writer is closed")

// BufferedFileWriter appends log output to a file through a buffer that is flushed
// on an interval and on Close. It is safe for concurrent use.
type BufferedFileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer

	size     int
	interval time.Duration

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// BufferedWriterOption configures a BufferedFileWriter
type BufferedWriterOption func(*BufferedFileWriter)

// WithBufferSize overrides DefaultBufferSize
func WithBufferSize(size int) BufferedWriterOption {
	return func(w *BufferedFileWriter) {
		if size > 0 {
			w.size = size
		}
	}
}

// WithFlushInterval overrides DefaultFlushInterval; zero disables background flushing.
func WithFlushInterval(interval time.Duration) BufferedWriterOption {
	return func(w *BufferedFileWriter) {
		w.interval = interval
	}
}

// NewBufferedFileWriter opens path for appending, creating it if needed.
func NewBufferedFileWriter(path string, opts ...BufferedWriterOption) (*BufferedFileWriter, error) {
	w := &BufferedFileWriter{
		size:     DefaultBufferSize,
		interval: DefaultFlushInterval,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from logging config
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	w.file = file
	w.buf = bufio.NewWriterSize(file, w.size)

	if w.interval > 0 {
		w.wg.Go(w.flushPeriodically)
	}
	return w, nil
}

func (w *BufferedFileWriter) flushPeriodically() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			_ = w.Flush()
		}
	}
}

// Write buffers p.
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Flush hands buffered bytes to the OS without forcing them to disk.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Buffered reports how many bytes are waiting for the next flush.
func (w *BufferedFileWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0
	}
	return w.buf.Buffered()
}

// Close stops background flushing, then flushes, syncs and closes the file.
// Later calls return the first call's result.
func (w *BufferedFileWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		w.wg.Wait()

		w.mu.Lock()
		defer w.mu.Unlock()
		w.closeErr = errors.Join(w.buf.Flush(), w.file.Sync(), w.file.Close())
		w.buf = nil
	})
	return w.closeErr
}
