package controller

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"camcapture/models"
	"camcapture/services/buffer"
	"camcapture/utils"
	"camcapture/views"
)

// OutputFormat selects what one recording session persists.
type OutputFormat int

const (
	// FormatBinary appends every raw frame record to <base>.raw and writes
	// the capture metadata once to <base>.json.
	FormatBinary OutputFormat = iota
	// FormatCSV logs only sequence accounting rows to <base>.csv.
	FormatCSV
)

func (f OutputFormat) String() string {
	if f == FormatCSV {
		return "csv"
	}
	return "binary"
}

// ParseOutputFormat maps the wire value ("binary"/"csv") to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "binary":
		return FormatBinary, nil
	case "csv":
		return FormatCSV, nil
	default:
		return FormatBinary, fmt.Errorf("unknown output format %q", s)
	}
}

// RecordingWriter owns one recording session's files and drains its frame
// queue on a dedicated goroutine. Lifecycle: construction opens the files
// (fatal on failure), Start launches the drain loop, Stop signals shutdown
// and waits for the backlog to be flushed and the files closed. A writer
// is never reused across sessions.
//
// Durability: on a wall-clock interval, independent of frame arrival, the
// open file is synced to stable storage. A crash therefore loses at most
// one interval of buffered data. Individual write/sync failures are logged
// and swallowed; aborting a session over one missed checkpoint would throw
// away far more than it saves.
type RecordingWriter struct {
	base    string
	format  OutputFormat
	queue   *buffer.FrameQueue
	tracker *models.SequenceTracker

	seqLog *views.SequenceLog // CSV mode
	stream *views.RawStream   // binary mode

	flushInterval  time.Duration
	dequeueTimeout time.Duration

	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	framesWritten uint64
	dropsLogged   uint64
	statsMu       sync.Mutex
}

// NewRecordingWriter opens the session files for base. A file-open failure
// here is fatal for the session and aborts the start call.
func NewRecordingWriter(base string, format OutputFormat, meta models.CaptureMetadata, storageCfg *utils.StorageConfig) (*RecordingWriter, error) {
	s := storageCfg.Storage

	w := &RecordingWriter{
		base:           base,
		format:         format,
		queue:          buffer.New(s.QueueCapacity),
		tracker:        models.NewSequenceTracker(),
		flushInterval:  time.Duration(s.FlushIntervalMs) * time.Millisecond,
		dequeueTimeout: time.Duration(s.DequeueTimeoutMs) * time.Millisecond,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}

	var err error
	switch format {
	case FormatCSV:
		w.seqLog, err = views.NewSequenceLog(base+".csv", s.CSVBufferKB*1024)
		if err != nil {
			return nil, fmt.Errorf("open session %s: %w", base, err)
		}
	case FormatBinary:
		if err = views.WriteCaptureSidecar(base+".json", meta); err != nil {
			return nil, fmt.Errorf("open session %s: %w", base, err)
		}
		w.stream, err = views.NewRawStream(base+".raw", 0)
		if err != nil {
			return nil, fmt.Errorf("open session %s: %w", base, err)
		}
	default:
		return nil, fmt.Errorf("open session %s: unknown output format %d", base, format)
	}

	return w, nil
}

// Start launches the drain goroutine.
func (w *RecordingWriter) Start() {
	go w.run()
	utils.L().Info("recording writer started  (base=%s, mode=%s, queue_cap=%d)",
		w.base, w.format, w.queue.Capacity())
}

// Enqueue hands one frame to the writer. Never blocks: the queue evicts
// its oldest entry on overflow. Frames arriving after Stop has been
// signalled are discarded, so the drain phase is guaranteed to terminate
// even while acquisition keeps running.
func (w *RecordingWriter) Enqueue(f *models.Frame) {
	select {
	case <-w.stopCh:
		return
	default:
	}
	if w.format == FormatCSV {
		// only accounting columns are persisted; drop the payload early
		f = f.WithoutPayload()
	}
	w.queue.Enqueue(f)
}

// Stop signals the drain loop, waits up to timeout for it to flush the
// backlog and close the files, and force-closes the handles if it does not
// make it in time. Idempotent.
func (w *RecordingWriter) Stop(timeout time.Duration) error {
	w.stopOnce.Do(func() { close(w.stopCh) })

	select {
	case <-w.doneCh:
		return nil
	case <-time.After(timeout):
		// Force-close regardless of queue contents. The run loop's own
		// writes turn into no-ops once the files are closed.
		w.close()
		return fmt.Errorf("recording writer: drain timed out after %s (%d frames abandoned)",
			timeout, w.queue.Len())
	}
}

// run is the consumer loop: dequeue with a bounded timeout so time-based
// flush checks happen even with no traffic, then drain whatever is left
// once stop is signalled.
func (w *RecordingWriter) run() {
	defer close(w.doneCh)
	defer w.close()

	lastFlush := time.Now()

	for {
		select {
		case <-w.stopCh:
			w.drainRemaining()
			return
		default:
		}

		f, ok := w.queue.Dequeue(w.dequeueTimeout)
		if !ok {
			lastFlush = w.maybeFlush(lastFlush)
			continue
		}
		w.writeFrame(f)
		lastFlush = w.maybeFlush(lastFlush)
	}
}

// drainRemaining writes everything already queued before the files close.
func (w *RecordingWriter) drainRemaining() {
	for {
		f, ok := w.queue.TryDequeue()
		if !ok {
			return
		}
		w.writeFrame(f)
	}
}

func (w *RecordingWriter) writeFrame(f *models.Frame) {
	diff, dropped := w.tracker.Observe(f.SequenceNo)
	if dropped {
		w.statsMu.Lock()
		w.dropsLogged++
		w.statsMu.Unlock()
		utils.L().Warn("recording: sequence gap at %d (diff=%d)", f.SequenceNo, diff)
	}

	switch w.format {
	case FormatCSV:
		w.seqLog.WriteRecord(&models.SequenceRecord{
			SequenceNo: f.SequenceNo,
			Diff:       diff,
			Dropped:    dropped,
		})
	case FormatBinary:
		if err := w.stream.Append(f.Payload); err != nil {
			utils.L().Error("recording: append frame %d: %v", f.SequenceNo, err)
			return
		}
	}

	w.statsMu.Lock()
	w.framesWritten++
	w.statsMu.Unlock()
}

// maybeFlush performs the durability checkpoint when the interval elapsed.
// Failures are logged, never propagated.
func (w *RecordingWriter) maybeFlush(lastFlush time.Time) time.Time {
	now := time.Now()
	if now.Sub(lastFlush) < w.flushInterval {
		return lastFlush
	}
	var err error
	switch w.format {
	case FormatCSV:
		err = w.seqLog.Sync()
	case FormatBinary:
		err = w.stream.Sync()
	}
	if err != nil {
		utils.L().Error("recording: durability checkpoint failed: %v", err)
	}
	return now
}

// close flushes and closes the session files exactly once.
func (w *RecordingWriter) close() {
	w.closeOnce.Do(func() {
		var err error
		switch w.format {
		case FormatCSV:
			err = w.seqLog.Close()
		case FormatBinary:
			err = w.stream.Close()
		}
		if err != nil {
			utils.L().Error("recording: close session files: %v", err)
		}
		utils.L().Info("recording writer closed  (base=%s, frames_written=%d, gaps=%d, evicted=%d)",
			w.base, w.FramesWritten(), w.DropsLogged(), w.queue.Evicted())
	})
}

// Base returns the session's output base path.
func (w *RecordingWriter) Base() string { return w.base }

// Format returns the session's output format.
func (w *RecordingWriter) Format() OutputFormat { return w.format }

// FramesWritten returns how many frames have been persisted.
func (w *RecordingWriter) FramesWritten() uint64 {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.framesWritten
}

// DropsLogged returns how many sequence gaps the session has recorded.
func (w *RecordingWriter) DropsLogged() uint64 {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.dropsLogged
}

// QueueEvicted returns how many frames queue overflow has discarded.
func (w *RecordingWriter) QueueEvicted() uint64 { return w.queue.Evicted() }
