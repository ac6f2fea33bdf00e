package views

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"camcapture/models"
)

// RawStream persists the binary-mode frame stream: consecutive raw frame
// records appended verbatim. Each record is already length-delimited by
// the driver's container format, so the file needs no framing of its own
// and stays self-describing together with the JSON sidecar.
type RawStream struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	frames uint64
	bytes  uint64
	closed bool
}

// NewRawStream creates path for appending frame records.
func NewRawStream(path string, bufSizeBytes int) (*RawStream, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("raw stream create %s: %w", path, err)
	}
	if bufSizeBytes <= 0 {
		bufSizeBytes = 1024 * 1024 // raw frames are large; 1 MB default
	}
	return &RawStream{
		file: f,
		buf:  bufio.NewWriterSize(f, bufSizeBytes),
	}, nil
}

// Append writes one frame record. Thread-safe.
func (w *RawStream) Append(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if _, err := w.buf.Write(payload); err != nil {
		return fmt.Errorf("raw stream append: %w", err)
	}
	w.frames++
	w.bytes += uint64(len(payload))
	return nil
}

// Sync flushes and forces the OS to persist the stream to stable storage.
func (w *RawStream) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes remaining data and closes the file. Idempotent.
func (w *RawStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	flushErr := w.buf.Flush()
	w.closed = true
	if err := w.file.Close(); err != nil {
		return err
	}
	return flushErr
}

// Frames returns the number of records appended so far.
func (w *RawStream) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// WriteCaptureSidecar writes the one-shot session metadata JSON next to
// the raw stream. Written exactly once, before any frame record.
func WriteCaptureSidecar(path string, meta models.CaptureMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("capture sidecar encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("capture sidecar write: %w", err)
	}
	return nil
}
