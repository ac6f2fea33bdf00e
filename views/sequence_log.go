package views

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"camcapture/models"
)

// SequenceLog is a concurrency-safe, buffered CSV writer for the
// per-session sequence log (`SequenceNo,diff,drop`).
//
// Design decisions for zero-lag:
//   - Underlying bufio.Writer absorbs write syscall overhead.
//   - The mutex is held only for the duration of a single row encode.
//   - Flush/Sync are driven by the recording writer's clock, not by row
//     arrival, so the hot path never blocks on I/O.
type SequenceLog struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	csv    *csv.Writer
	rows   uint64
	closed bool
}

// NewSequenceLog creates path and writes the header row.
func NewSequenceLog(path string, bufSizeBytes int) (*SequenceLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sequence log create %s: %w", path, err)
	}

	if bufSizeBytes <= 0 {
		bufSizeBytes = 256 * 1024 // 256 KB default
	}

	bw := bufio.NewWriterSize(f, bufSizeBytes)
	cw := csv.NewWriter(bw)

	w := &SequenceLog{
		file: f,
		buf:  bw,
		csv:  cw,
	}

	if err := cw.Write(models.SequenceRecord{}.CSVHeader()); err != nil {
		f.Close()
		return nil, fmt.Errorf("sequence log header: %w", err)
	}

	return w, nil
}

// WriteRecord appends a single row. Thread-safe.
// Write errors surface on the next Flush/Sync and are handled there.
func (w *SequenceLog) WriteRecord(rec *models.SequenceRecord) {
	w.mu.Lock()
	if !w.closed {
		_ = w.csv.Write(rec.CSVRow())
		w.rows++
	}
	w.mu.Unlock()
}

// Flush pushes buffered rows to the OS.
func (w *SequenceLog) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *SequenceLog) flushLocked() error {
	if w.closed {
		return nil
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Sync flushes and forces the OS to persist the file to stable storage.
// This is the recording writer's durability checkpoint.
func (w *SequenceLog) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes remaining rows and closes the file. Idempotent.
func (w *SequenceLog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	flushErr := w.flushLocked()
	w.closed = true
	if err := w.file.Close(); err != nil {
		return err
	}
	return flushErr
}

// Rows returns the number of data rows written (excludes header).
func (w *SequenceLog) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}
